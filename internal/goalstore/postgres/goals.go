// Package postgres is the pgx-backed authoritative goal store for
// self-hosted multi-node deployments. Mutations run inside a transaction
// with the goal row locked, so concurrent sessions serialize at the store.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/jefersonfloz/ahorraplus/internal/goalstore"
	"github.com/jefersonfloz/ahorraplus/internal/core"
)

var (
	ErrGoalNotFound   = errors.New("goal not found")
	ErrOverdraw       = errors.New("deposit exceeds available balance")
	ErrNotEnoughSaved = errors.New("withdrawal exceeds saved amount")
)

type Store struct {
	pool *pgxpool.Pool
}

var _ goalstore.Backend = (*Store)(nil)

func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const goalColumns = "id, user_id, name, target_amount, current_amount, start_date, end_date, priority, frequency, status"

func scanGoal(row pgx.Row) (core.SavingsGoal, error) {
	var (
		g                    core.SavingsGoal
		startDate, frequency *string
		endDate              string
		priority, status     string
	)
	err := row.Scan(&g.ID, &g.UserID, &g.Name, &g.TargetAmount, &g.CurrentAmount,
		&startDate, &endDate, &priority, &frequency, &status)
	if err != nil {
		return core.SavingsGoal{}, err
	}
	g.Priority = core.Priority(priority)
	g.Status = core.Status(status)
	if frequency != nil {
		g.Frequency = core.Frequency(*frequency)
	}
	if d, err := core.ParseDate(endDate); err == nil {
		g.EndDate = d
	}
	if startDate != nil {
		if d, err := core.ParseDate(*startDate); err == nil {
			g.StartDate = d
		}
	}
	return g, nil
}

func (s *Store) ListGoals(ctx context.Context, userID int64) ([]core.SavingsGoal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, name, target_amount, current_amount,
		       to_char(start_date, 'YYYY-MM-DD'), to_char(end_date, 'YYYY-MM-DD'),
		       priority, frequency, status
		FROM goals WHERE user_id = $1 ORDER BY id`, userID)
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

func (s *Store) CreateGoal(ctx context.Context, userID int64, draft core.GoalDraft) (core.SavingsGoal, error) {
	if err := draft.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}

	var startDate, frequency *string
	if !draft.StartDate.IsEmpty() {
		v := draft.StartDate.String()
		startDate = &v
	}
	if draft.Frequency != "" {
		v := string(draft.Frequency)
		frequency = &v
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO goals (user_id, name, target_amount, current_amount, start_date, end_date, priority, frequency, status)
		VALUES ($1, $2, $3, 0, $4, $5, $6, $7, 'ACTIVE')
		RETURNING id, user_id, name, target_amount, current_amount,
		          to_char(start_date, 'YYYY-MM-DD'), to_char(end_date, 'YYYY-MM-DD'),
		          priority, frequency, status`,
		userID, draft.Name, draft.TargetAmount, startDate, draft.EndDate.String(),
		string(draft.Priority), frequency)

	g, err := scanGoal(row)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("insert goal: %w", err)
	}
	return g, nil
}

func (s *Store) getGoalForUpdate(ctx context.Context, tx pgx.Tx, goalID, userID int64) (core.SavingsGoal, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, user_id, name, target_amount, current_amount,
		       to_char(start_date, 'YYYY-MM-DD'), to_char(end_date, 'YYYY-MM-DD'),
		       priority, frequency, status
		FROM goals WHERE id = $1 AND user_id = $2 FOR UPDATE`, goalID, userID)
	g, err := scanGoal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.SavingsGoal{}, ErrGoalNotFound
	}
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("get goal %d: %w", goalID, err)
	}
	return g, nil
}

func (s *Store) availableTx(ctx context.Context, tx pgx.Tx, userID int64) (decimal.Decimal, error) {
	var available decimal.Decimal
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN kind = 'income' THEN amount ELSE -amount END), 0)
		FROM transactions WHERE user_id = $1`, userID).Scan(&available)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum transactions: %w", err)
	}
	return available, nil
}

func (s *Store) recordTx(ctx context.Context, tx pgx.Tx, userID int64, kind string, amount decimal.Decimal, description string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (user_id, kind, amount, description)
		VALUES ($1, $2, $3, $4)`, userID, kind, amount, description)
	if err != nil {
		return fmt.Errorf("record %s: %w", kind, err)
	}
	return nil
}

// AddFunds clamps the deposit at the target and records the applied
// portion as an expense in the same transaction.
func (s *Store) AddFunds(ctx context.Context, goalID, userID int64, amount decimal.Decimal) (core.SavingsGoal, error) {
	if !amount.IsPositive() {
		return core.SavingsGoal{}, core.ErrInvalidAmount
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	g, err := s.getGoalForUpdate(ctx, tx, goalID, userID)
	if err != nil {
		return core.SavingsGoal{}, err
	}

	available, err := s.availableTx(ctx, tx, userID)
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

	if _, err := tx.Exec(ctx,
		"UPDATE goals SET current_amount = $1, status = $2 WHERE id = $3",
		newCurrent, string(status), goalID); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("update goal: %w", err)
	}
	if applied.IsPositive() {
		if err := s.recordTx(ctx, tx, userID, "expense", applied, "deposit to goal "+g.Name); err != nil {
			return core.SavingsGoal{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("commit: %w", err)
	}

	g.CurrentAmount = newCurrent
	g.Status = status
	return g, nil
}

func (s *Store) WithdrawFunds(ctx context.Context, goalID, userID int64, amount decimal.Decimal) (core.SavingsGoal, error) {
	if !amount.IsPositive() {
		return core.SavingsGoal{}, core.ErrInvalidAmount
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	g, err := s.getGoalForUpdate(ctx, tx, goalID, userID)
	if err != nil {
		return core.SavingsGoal{}, err
	}
	if amount.GreaterThan(g.CurrentAmount) {
		return core.SavingsGoal{}, ErrNotEnoughSaved
	}

	newCurrent := g.CurrentAmount.Sub(amount)
	if _, err := tx.Exec(ctx,
		"UPDATE goals SET current_amount = $1 WHERE id = $2",
		newCurrent, goalID); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("update goal: %w", err)
	}
	if err := s.recordTx(ctx, tx, userID, "income", amount, "withdrawal from goal "+g.Name); err != nil {
		return core.SavingsGoal{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("commit: %w", err)
	}

	g.CurrentAmount = newCurrent
	return g, nil
}

func (s *Store) DeleteGoal(ctx context.Context, goalID, userID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	g, err := s.getGoalForUpdate(ctx, tx, goalID, userID)
	if err != nil {
		return err
	}

	if g.Status != core.StatusCompleted && g.CurrentAmount.IsPositive() {
		if err := s.recordTx(ctx, tx, userID, "income", g.CurrentAmount, "refund from deleted goal "+g.Name); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, "DELETE FROM goals WHERE id = $1", goalID); err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *Store) TotalIncome(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return s.sumKind(ctx, userID, "income")
}

func (s *Store) TotalExpenses(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return s.sumKind(ctx, userID, "expense")
}

func (s *Store) sumKind(ctx context.Context, userID int64, kind string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.pool.QueryRow(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE user_id = $1 AND kind = $2",
		userID, kind).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum %s: %w", kind, err)
	}
	return total, nil
}
