// Package memory provides an in-process authoritative goal store with the
// same contract as the hosted backend: it clamps deposits at the target,
// decides status transitions, and keeps the income/expense totals that
// earmarking moves money through. Used in dev mode and as the test double.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/jefersonfloz/ahorraplus/internal/core"
	"github.com/jefersonfloz/ahorraplus/internal/goalstore"
)

var _ goalstore.Backend = (*Store)(nil)

var (
	ErrGoalNotFound   = errors.New("goal not found")
	ErrOverdraw       = errors.New("deposit exceeds available balance")
	ErrNotEnoughSaved = errors.New("withdrawal exceeds saved amount")
)

type Store struct {
	mu       sync.Mutex
	nextID   int64
	goals    map[int64]core.SavingsGoal
	income   map[int64]decimal.Decimal
	expenses map[int64]decimal.Decimal

	// fail maps an operation name to an error the next call returns,
	// for exercising remote-failure paths in tests.
	fail map[string]error
}

func New() *Store {
	return &Store{
		nextID:   1,
		goals:    make(map[int64]core.SavingsGoal),
		income:   make(map[int64]decimal.Decimal),
		expenses: make(map[int64]decimal.Decimal),
		fail:     make(map[string]error),
	}
}

// SeedIncome credits a user's income total.
func (s *Store) SeedIncome(userID int64, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.income[userID] = s.total(s.income, userID).Add(amount)
}

// SeedExpenses debits a user's expense total.
func (s *Store) SeedExpenses(userID int64, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expenses[userID] = s.total(s.expenses, userID).Add(amount)
}

// FailNext makes the next call of the named operation ("list", "create",
// "add", "withdraw", "delete", "income", "expenses") return err.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[op] = err
}

func (s *Store) takeFailure(op string) error {
	if err, ok := s.fail[op]; ok {
		delete(s.fail, op)
		return err
	}
	return nil
}

func (s *Store) ListGoals(_ context.Context, userID int64) ([]core.SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("list"); err != nil {
		return nil, err
	}
	var out []core.SavingsGoal
	for _, g := range s.goals {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateGoal(_ context.Context, userID int64, draft core.GoalDraft) (core.SavingsGoal, error) {
	if err := draft.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("create"); err != nil {
		return core.SavingsGoal{}, err
	}
	g := core.SavingsGoal{
		ID:            s.nextID,
		UserID:        userID,
		Name:          draft.Name,
		TargetAmount:  draft.TargetAmount,
		CurrentAmount: decimal.Zero,
		StartDate:     draft.StartDate,
		EndDate:       draft.EndDate,
		Priority:      draft.Priority,
		Frequency:     draft.Frequency,
		Status:        core.StatusActive,
	}
	s.nextID++
	s.goals[g.ID] = g
	return g, nil
}

// AddFunds applies as much of the requested amount as fits under the
// target, records the applied portion as an expense (money leaves the
// available balance), and flips the status when the target is reached.
func (s *Store) AddFunds(_ context.Context, goalID, userID int64, amount decimal.Decimal) (core.SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("add"); err != nil {
		return core.SavingsGoal{}, err
	}
	g, ok := s.goals[goalID]
	if !ok || g.UserID != userID {
		return core.SavingsGoal{}, ErrGoalNotFound
	}
	if !amount.IsPositive() {
		return core.SavingsGoal{}, core.ErrInvalidAmount
	}
	available := s.total(s.income, userID).Sub(s.total(s.expenses, userID))
	if amount.GreaterThan(available) {
		return core.SavingsGoal{}, ErrOverdraw
	}
	applied := decimal.Min(amount, g.Remaining())
	g.CurrentAmount = g.CurrentAmount.Add(applied)
	if g.CurrentAmount.GreaterThanOrEqual(g.TargetAmount) {
		g.Status = core.StatusCompleted
	}
	s.expenses[userID] = s.total(s.expenses, userID).Add(applied)
	s.goals[goalID] = g
	return g, nil
}

func (s *Store) WithdrawFunds(_ context.Context, goalID, userID int64, amount decimal.Decimal) (core.SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("withdraw"); err != nil {
		return core.SavingsGoal{}, err
	}
	g, ok := s.goals[goalID]
	if !ok || g.UserID != userID {
		return core.SavingsGoal{}, ErrGoalNotFound
	}
	if !amount.IsPositive() {
		return core.SavingsGoal{}, core.ErrInvalidAmount
	}
	if amount.GreaterThan(g.CurrentAmount) {
		return core.SavingsGoal{}, ErrNotEnoughSaved
	}
	g.CurrentAmount = g.CurrentAmount.Sub(amount)
	s.income[userID] = s.total(s.income, userID).Add(amount)
	s.goals[goalID] = g
	return g, nil
}

// DeleteGoal removes the goal. Money earmarked in a non-completed goal is
// returned to the available balance; a completed goal's money is considered
// spent toward the fulfilled objective.
func (s *Store) DeleteGoal(_ context.Context, goalID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("delete"); err != nil {
		return err
	}
	g, ok := s.goals[goalID]
	if !ok || g.UserID != userID {
		return ErrGoalNotFound
	}
	if g.Status != core.StatusCompleted {
		s.income[userID] = s.total(s.income, userID).Add(g.CurrentAmount)
	}
	delete(s.goals, goalID)
	return nil
}

func (s *Store) TotalIncome(_ context.Context, userID int64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("income"); err != nil {
		return decimal.Zero, err
	}
	return s.total(s.income, userID), nil
}

func (s *Store) TotalExpenses(_ context.Context, userID int64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("expenses"); err != nil {
		return decimal.Zero, err
	}
	return s.total(s.expenses, userID), nil
}

func (s *Store) total(m map[int64]decimal.Decimal, userID int64) decimal.Decimal {
	if v, ok := m[userID]; ok {
		return v
	}
	return decimal.Zero
}
