package goalstore

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jefersonfloz/ahorraplus/internal/core"
)

// Ports for the authoritative collaborators. The ledger controller sends
// intents through these and reconciles by refetching; it never computes
// goal state itself.
type (
	// GoalStore is the authoritative record of savings goals. AddFunds
	// clamps at the target amount and returns the applied record, which
	// callers must treat as truth (the full requested amount may not have
	// been applied).
	GoalStore interface {
		ListGoals(ctx context.Context, userID int64) ([]core.SavingsGoal, error)
		CreateGoal(ctx context.Context, userID int64, draft core.GoalDraft) (core.SavingsGoal, error)
		AddFunds(ctx context.Context, goalID, userID int64, amount decimal.Decimal) (core.SavingsGoal, error)
		WithdrawFunds(ctx context.Context, goalID, userID int64, amount decimal.Decimal) (core.SavingsGoal, error)
		DeleteGoal(ctx context.Context, goalID, userID int64) error
	}

	// BalanceSource supplies the income and expense totals from which the
	// available balance is derived. Read-only from the ledger's side.
	BalanceSource interface {
		TotalIncome(ctx context.Context, userID int64) (decimal.Decimal, error)
		TotalExpenses(ctx context.Context, userID int64) (decimal.Decimal, error)
	}

	// Backend bundles the two collaborator ports behind one implementation.
	Backend interface {
		GoalStore
		BalanceSource
	}
)
