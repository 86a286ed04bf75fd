// Package storage is the sqlite-backed goal store for self-hosted,
// single-node deployments. Unlike the rest client it IS the authoritative
// side: clamp, status transition and refund bookkeeping all happen here,
// inside one transaction per mutation.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/jefersonfloz/ahorraplus/internal/core"
	"github.com/jefersonfloz/ahorraplus/internal/goalstore"
)

var (
	ErrGoalNotFound   = errors.New("goal not found")
	ErrOverdraw       = errors.New("deposit exceeds available balance")
	ErrNotEnoughSaved = errors.New("withdrawal exceeds saved amount")
)

type Repository struct {
	db *sql.DB
}

var _ goalstore.Backend = (*Repository)(nil)

// NewRepository opens (and migrates) the sqlite database at dbPath.
func NewRepository(dbPath string) (*Repository, error) {
	if err := migrateSchema(dbPath); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite handles one writer at a time
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

const goalColumns = "id, user_id, name, target_cents, current_cents, start_date, end_date, priority, frequency, status"

func scanGoal(row interface{ Scan(...any) error }) (core.SavingsGoal, error) {
	var (
		g                         core.SavingsGoal
		targetCents, currentCents int64
		startDate, frequency      sql.NullString
		endDate, priority, status string
	)
	err := row.Scan(&g.ID, &g.UserID, &g.Name, &targetCents, &currentCents,
		&startDate, &endDate, &priority, &frequency, &status)
	if err != nil {
		return core.SavingsGoal{}, err
	}
	g.TargetAmount = core.FromCents(targetCents)
	g.CurrentAmount = core.FromCents(currentCents)
	g.Priority = core.Priority(priority)
	g.Status = core.Status(status)
	if frequency.Valid {
		g.Frequency = core.Frequency(frequency.String)
	}
	if d, err := core.ParseDate(endDate); err == nil {
		g.EndDate = d
	}
	if startDate.Valid && startDate.String != "" {
		if d, err := core.ParseDate(startDate.String); err == nil {
			g.StartDate = d
		}
	}
	return g, nil
}

func (r *Repository) ListGoals(ctx context.Context, userID int64) ([]core.SavingsGoal, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+goalColumns+" FROM goals WHERE user_id = ? ORDER BY id", userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []core.SavingsGoal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func (r *Repository) CreateGoal(ctx context.Context, userID int64, draft core.GoalDraft) (core.SavingsGoal, error) {
	if err := draft.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}

	var startDate any
	if !draft.StartDate.IsEmpty() {
		startDate = draft.StartDate.String()
	}
	var frequency any
	if draft.Frequency != "" {
		frequency = string(draft.Frequency)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO goals (user_id, name, target_cents, current_cents, start_date, end_date, priority, frequency, status)
		VALUES (?, ?, ?, 0, ?, ?, ?, ?, 'ACTIVE')`,
		userID, draft.Name, core.Cents(draft.TargetAmount),
		startDate, draft.EndDate.String(), string(draft.Priority), frequency)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("insert goal: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("last insert id: %w", err)
	}
	return r.getGoal(ctx, r.db, id, userID)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *Repository) getGoal(ctx context.Context, q querier, goalID, userID int64) (core.SavingsGoal, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+goalColumns+" FROM goals WHERE id = ? AND user_id = ?", goalID, userID)
	g, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SavingsGoal{}, ErrGoalNotFound
	}
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("get goal %d: %w", goalID, err)
	}
	return g, nil
}

// AddFunds applies the clamped portion of the deposit, records it as an
// expense, and flips the status when the target is reached, all in one tx.
func (r *Repository) AddFunds(ctx context.Context, goalID, userID int64, amount decimal.Decimal) (core.SavingsGoal, error) {
	if !amount.IsPositive() {
		return core.SavingsGoal{}, core.ErrInvalidAmount
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	g, err := r.getGoal(ctx, tx, goalID, userID)
	if err != nil {
		return core.SavingsGoal{}, err
	}

	available, err := r.availableTx(ctx, tx, userID)
	if err != nil {
		return core.SavingsGoal{}, err
	}
	if amount.GreaterThan(available) {
		return core.SavingsGoal{}, ErrOverdraw
	}

	applied := decimal.Min(amount, g.Remaining())
	newCurrent := g.CurrentAmount.Add(applied)
	status := core.StatusActive
	if newCurrent.GreaterThanOrEqual(g.TargetAmount) {
		status = core.StatusCompleted
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE goals SET current_cents = ?, status = ? WHERE id = ?",
		core.Cents(newCurrent), string(status), goalID); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("update goal: %w", err)
	}
	if applied.IsPositive() {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (user_id, kind, amount_cents, description)
			VALUES (?, 'expense', ?, ?)`,
			userID, core.Cents(applied), "deposit to goal "+g.Name); err != nil {
			return core.SavingsGoal{}, fmt.Errorf("record earmark: %w", err)
		}
	}

	updated, err := r.getGoal(ctx, tx, goalID, userID)
	if err != nil {
		return core.SavingsGoal{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

func (r *Repository) WithdrawFunds(ctx context.Context, goalID, userID int64, amount decimal.Decimal) (core.SavingsGoal, error) {
	if !amount.IsPositive() {
		return core.SavingsGoal{}, core.ErrInvalidAmount
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	g, err := r.getGoal(ctx, tx, goalID, userID)
	if err != nil {
		return core.SavingsGoal{}, err
	}
	if amount.GreaterThan(g.CurrentAmount) {
		return core.SavingsGoal{}, ErrNotEnoughSaved
	}

	newCurrent := g.CurrentAmount.Sub(amount)
	if _, err := tx.ExecContext(ctx,
		"UPDATE goals SET current_cents = ? WHERE id = ?",
		core.Cents(newCurrent), goalID); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("update goal: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (user_id, kind, amount_cents, description)
		VALUES (?, 'income', ?, ?)`,
		userID, core.Cents(amount), "withdrawal from goal "+g.Name); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("record release: %w", err)
	}

	updated, err := r.getGoal(ctx, tx, goalID, userID)
	if err != nil {
		return core.SavingsGoal{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

// DeleteGoal removes the goal and refunds its earmarked money unless the
// goal completed (that money counts as spent toward the objective).
func (r *Repository) DeleteGoal(ctx context.Context, goalID, userID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	g, err := r.getGoal(ctx, tx, goalID, userID)
	if err != nil {
		return err
	}

	if g.Status != core.StatusCompleted && g.CurrentAmount.IsPositive() {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (user_id, kind, amount_cents, description)
			VALUES (?, 'income', ?, ?)`,
			userID, core.Cents(g.CurrentAmount), "refund from deleted goal "+g.Name); err != nil {
			return fmt.Errorf("record refund: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM goals WHERE id = ?", goalID); err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}

	return tx.Commit()
}

// RecordTransaction stores an income or expense entry. Used for seeding
// and by admin tooling; the ledger itself only reads the totals.
func (r *Repository) RecordTransaction(ctx context.Context, userID int64, kind string, amount decimal.Decimal, description string) error {
	if kind != "income" && kind != "expense" {
		return fmt.Errorf("invalid transaction kind %q", kind)
	}
	if !amount.IsPositive() {
		return core.ErrInvalidAmount
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (user_id, kind, amount_cents, description)
		VALUES (?, ?, ?, ?)`,
		userID, kind, core.Cents(amount), description)
	if err != nil {
		return fmt.Errorf("record transaction: %w", err)
	}
	return nil
}

func (r *Repository) TotalIncome(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return r.sumKind(ctx, r.db, userID, "income")
}

func (r *Repository) TotalExpenses(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return r.sumKind(ctx, r.db, userID, "expense")
}

func (r *Repository) availableTx(ctx context.Context, tx *sql.Tx, userID int64) (decimal.Decimal, error) {
	income, err := r.sumKind(ctx, tx, userID, "income")
	if err != nil {
		return decimal.Zero, err
	}
	expenses, err := r.sumKind(ctx, tx, userID, "expense")
	if err != nil {
		return decimal.Zero, err
	}
	return income.Sub(expenses), nil
}

func (r *Repository) sumKind(ctx context.Context, q querier, userID int64, kind string) (decimal.Decimal, error) {
	var cents int64
	row := q.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount_cents), 0) FROM transactions WHERE user_id = ? AND kind = ?",
		userID, kind)
	if err := row.Scan(&cents); err != nil {
		return decimal.Zero, fmt.Errorf("sum %s: %w", kind, err)
	}
	return core.FromCents(cents), nil
}
