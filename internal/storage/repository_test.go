package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/jefersonfloz/ahorraplus/internal/core"
)

const userID = int64(1)

func newRepo(t *testing.T) *Repository {
	t.Helper()
	r, err := NewRepository(filepath.Join(t.TempDir(), "ahorra.db"))
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func seedIncome(t *testing.T, r *Repository, amount int64) {
	t.Helper()
	err := r.RecordTransaction(context.Background(), userID, "income",
		decimal.NewFromInt(amount), "salary")
	if err != nil {
		t.Fatalf("RecordTransaction: %v", err)
	}
}

func createGoal(t *testing.T, r *Repository, target int64, priority core.Priority) core.SavingsGoal {
	t.Helper()
	g, err := r.CreateGoal(context.Background(), userID, core.GoalDraft{
		Name:         "Meta",
		TargetAmount: decimal.NewFromInt(target),
		EndDate:      core.NewDate(2027, 6, 1),
		Priority:     priority,
		Frequency:    core.Monthly,
	})
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}
	return g
}

func TestCreateAndListGoals(t *testing.T) {
	r := newRepo(t)
	g := createGoal(t, r, 500, core.PriorityHigh)

	if g.ID == 0 {
		t.Error("expected assigned id")
	}
	if g.Status != core.StatusActive || !g.CurrentAmount.IsZero() {
		t.Errorf("new goal should be empty and active: %+v", g)
	}

	goals, err := r.ListGoals(context.Background(), userID)
	if err != nil {
		t.Fatalf("ListGoals: %v", err)
	}
	if len(goals) != 1 || goals[0].Name != "Meta" || goals[0].EndDate.String() != "2027-06-01" {
		t.Errorf("unexpected list: %+v", goals)
	}
}

func TestAddFundsClampAndComplete(t *testing.T) {
	r := newRepo(t)
	seedIncome(t, r, 1000)
	g := createGoal(t, r, 500, core.PriorityLow)
	ctx := context.Background()

	updated, err := r.AddFunds(ctx, g.ID, userID, decimal.NewFromInt(800))
	if err != nil {
		t.Fatalf("AddFunds: %v", err)
	}
	if !updated.CurrentAmount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("current = %s, want 500", updated.CurrentAmount)
	}
	if updated.Status != core.StatusCompleted {
		t.Errorf("status = %s", updated.Status)
	}

	income, _ := r.TotalIncome(ctx, userID)
	expenses, _ := r.TotalExpenses(ctx, userID)
	if !income.Sub(expenses).Equal(decimal.NewFromInt(500)) {
		t.Errorf("available = %s, want 500 (only the clamped portion moved)", income.Sub(expenses))
	}
}

func TestAddFundsOverdraw(t *testing.T) {
	r := newRepo(t)
	seedIncome(t, r, 100)
	g := createGoal(t, r, 5000, core.PriorityLow)

	if _, err := r.AddFunds(context.Background(), g.ID, userID, decimal.NewFromInt(500)); !errors.Is(err, ErrOverdraw) {
		t.Errorf("expected ErrOverdraw, got %v", err)
	}
}

func TestWithdrawFunds(t *testing.T) {
	r := newRepo(t)
	seedIncome(t, r, 1000)
	g := createGoal(t, r, 500, core.PriorityLow)
	ctx := context.Background()

	if _, err := r.AddFunds(ctx, g.ID, userID, decimal.NewFromInt(300)); err != nil {
		t.Fatalf("AddFunds: %v", err)
	}
	updated, err := r.WithdrawFunds(ctx, g.ID, userID, decimal.NewFromInt(200))
	if err != nil {
		t.Fatalf("WithdrawFunds: %v", err)
	}
	if !updated.CurrentAmount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("current = %s, want 100", updated.CurrentAmount)
	}

	if _, err := r.WithdrawFunds(ctx, g.ID, userID, decimal.NewFromInt(500)); !errors.Is(err, ErrNotEnoughSaved) {
		t.Errorf("expected ErrNotEnoughSaved, got %v", err)
	}
}

func TestDeleteGoalRefundAsymmetry(t *testing.T) {
	r := newRepo(t)
	seedIncome(t, r, 1000)
	ctx := context.Background()

	activeGoal := createGoal(t, r, 500, core.PriorityLow)
	doneGoal := createGoal(t, r, 300, core.PriorityLow)
	if _, err := r.AddFunds(ctx, activeGoal.ID, userID, decimal.NewFromInt(300)); err != nil {
		t.Fatalf("AddFunds: %v", err)
	}
	if _, err := r.AddFunds(ctx, doneGoal.ID, userID, decimal.NewFromInt(300)); err != nil {
		t.Fatalf("AddFunds: %v", err)
	}

	if err := r.DeleteGoal(ctx, activeGoal.ID, userID); err != nil {
		t.Fatalf("DeleteGoal active: %v", err)
	}
	income, _ := r.TotalIncome(ctx, userID)
	expenses, _ := r.TotalExpenses(ctx, userID)
	if !income.Sub(expenses).Equal(decimal.NewFromInt(700)) {
		t.Errorf("available after active delete = %s, want 700", income.Sub(expenses))
	}

	if err := r.DeleteGoal(ctx, doneGoal.ID, userID); err != nil {
		t.Fatalf("DeleteGoal completed: %v", err)
	}
	income, _ = r.TotalIncome(ctx, userID)
	expenses, _ = r.TotalExpenses(ctx, userID)
	if !income.Sub(expenses).Equal(decimal.NewFromInt(700)) {
		t.Errorf("available after completed delete = %s, want unchanged 700", income.Sub(expenses))
	}
}

func TestGoalNotFound(t *testing.T) {
	r := newRepo(t)
	if _, err := r.AddFunds(context.Background(), 99, userID, decimal.NewFromInt(10)); !errors.Is(err, ErrGoalNotFound) {
		t.Errorf("expected ErrGoalNotFound, got %v", err)
	}
	if err := r.DeleteGoal(context.Background(), 99, userID); !errors.Is(err, ErrGoalNotFound) {
		t.Errorf("expected ErrGoalNotFound, got %v", err)
	}
}

func TestRecordTransactionValidation(t *testing.T) {
	r := newRepo(t)
	if err := r.RecordTransaction(context.Background(), userID, "transfer", decimal.NewFromInt(10), ""); err == nil {
		t.Error("expected error for unknown kind")
	}
	if err := r.RecordTransaction(context.Background(), userID, "income", decimal.Zero, ""); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}
