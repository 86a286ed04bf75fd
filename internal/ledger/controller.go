// Package ledger implements the savings-goal controller: the single writer
// that mediates every balance-affecting interaction between a user session
// and the goal store, enforces local preconditions before the network, and
// reconciles by refetching instead of patching optimistically.
package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/jefersonfloz/ahorraplus/internal/core"
	"github.com/jefersonfloz/ahorraplus/internal/goalstore"
)

const completionsBuffer = 16

// Controller owns the session-scoped ledger state for one user. All
// operations for a session are expected to be issued serially; concurrent
// calls from other devices race at the store, which stays the final
// arbiter.
type Controller struct {
	store     goalstore.GoalStore
	balance   goalstore.BalanceSource
	userID    int64
	userEmail string
	policy    Policy

	publisher EventPublisher

	mu         sync.Mutex
	snapshot   core.Snapshot
	loaded     bool
	seenStatus map[int64]core.Status

	completions chan CompletedEvent
}

// NewController builds a controller for one user session. The snapshot is
// empty until the first LoadAll succeeds.
func NewController(store goalstore.GoalStore, balance goalstore.BalanceSource, userID int64, policy Policy) *Controller {
	return &Controller{
		store:       store,
		balance:     balance,
		userID:      userID,
		policy:      policy,
		seenStatus:  make(map[int64]core.Status),
		completions: make(chan CompletedEvent, completionsBuffer),
	}
}

// SetPublisher attaches an optional completion-event publisher.
func (c *Controller) SetPublisher(p EventPublisher) {
	c.publisher = p
}

// SetUserEmail records the session's email address, carried on completion
// events so the notification worker knows where to send.
func (c *Controller) SetUserEmail(email string) {
	c.userEmail = email
}

// Completions returns the one-shot goal-completed notification channel.
func (c *Controller) Completions() <-chan CompletedEvent {
	return c.completions
}

// Snapshot returns a copy of the last successfully reconciled view and
// whether one has been loaded yet.
func (c *Controller) Snapshot() (core.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	goals := make([]core.SavingsGoal, len(c.snapshot.Goals))
	copy(goals, c.snapshot.Goals)
	return core.Snapshot{Goals: goals, AvailableBalance: c.snapshot.AvailableBalance}, c.loaded
}

// LoadAll fetches the goal list and the balance totals concurrently and
// replaces the cached view wholesale. If any fetch fails, nothing is
// replaced and a DataUnavailableError is returned: the view must stay
// atomic for display purposes, partial success is not accepted.
// Reconciliation is idempotent and safe to call redundantly.
func (c *Controller) LoadAll(ctx context.Context) error {
	var (
		goals            []core.SavingsGoal
		income, expenses decimal.Decimal
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		goals, err = c.store.ListGoals(gctx, c.userID)
		return err
	})
	g.Go(func() error {
		var err error
		income, err = c.balance.TotalIncome(gctx, c.userID)
		return err
	})
	g.Go(func() error {
		var err error
		expenses, err = c.balance.TotalExpenses(gctx, c.userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return &DataUnavailableError{Err: err}
	}

	available := income.Sub(expenses)

	c.mu.Lock()
	c.snapshot = core.Snapshot{
		Goals:            goals,
		AvailableBalance: available,
	}
	c.loaded = true
	var events []CompletedEvent
	for _, goal := range goals {
		events = append(events, c.noteStatusLocked(goal)...)
	}
	c.mu.Unlock()

	c.emit(ctx, events)

	slog.DebugContext(ctx, "Ledger reconciled",
		"user_id", c.userID,
		"goals", len(goals),
		"available", available)
	return nil
}

// CreateGoal validates the draft locally and sends the creation intent.
// Creation never moves money; the new goal starts empty and active.
func (c *Controller) CreateGoal(ctx context.Context, draft core.GoalDraft) (core.SavingsGoal, error) {
	if err := draft.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}

	created, err := c.store.CreateGoal(ctx, c.userID, draft)
	if err != nil {
		return core.SavingsGoal{}, &RemoteError{Op: "create goal", Err: err}
	}

	c.mu.Lock()
	events := c.noteStatusLocked(created)
	c.mu.Unlock()
	c.emit(ctx, events)

	if err := c.LoadAll(ctx); err != nil {
		return created, err
	}
	return created, nil
}

// Deposit moves money from the available balance into a goal. The local
// balance check is a UX courtesy against the last-loaded snapshot; the
// store performs the authoritative overdraw check and clamps the applied
// amount at the target, so the returned record is truth, not the request.
func (c *Controller) Deposit(ctx context.Context, goalID int64, amount decimal.Decimal) (core.SavingsGoal, error) {
	if !amount.IsPositive() {
		return core.SavingsGoal{}, core.ErrInvalidAmount
	}

	c.mu.Lock()
	if !c.loaded {
		c.mu.Unlock()
		return core.SavingsGoal{}, ErrNotLoaded
	}
	if _, ok := c.snapshot.Find(goalID); !ok {
		c.mu.Unlock()
		return core.SavingsGoal{}, ErrGoalNotFound
	}
	if amount.GreaterThan(c.snapshot.AvailableBalance) {
		c.mu.Unlock()
		return core.SavingsGoal{}, ErrInsufficientFunds
	}
	c.mu.Unlock()

	updated, err := c.store.AddFunds(ctx, goalID, c.userID, amount)
	if err != nil {
		return core.SavingsGoal{}, &RemoteError{Op: "add funds", Err: err}
	}

	c.mu.Lock()
	events := c.noteStatusLocked(updated)
	c.mu.Unlock()
	c.emit(ctx, events)

	if err := c.LoadAll(ctx); err != nil {
		return updated, err
	}
	return updated, nil
}

// Withdraw moves money from a goal back to the available balance, subject
// to the priority lock: HIGH-priority goals reject withdrawals until
// completed, regardless of the amount.
func (c *Controller) Withdraw(ctx context.Context, goalID int64, amount decimal.Decimal) (core.SavingsGoal, error) {
	if !amount.IsPositive() {
		return core.SavingsGoal{}, core.ErrInvalidAmount
	}

	c.mu.Lock()
	if !c.loaded {
		c.mu.Unlock()
		return core.SavingsGoal{}, ErrNotLoaded
	}
	goal, ok := c.snapshot.Find(goalID)
	if !ok {
		c.mu.Unlock()
		return core.SavingsGoal{}, ErrGoalNotFound
	}
	if c.policy.LockHighPriority && goal.Priority == core.PriorityHigh && !goal.Completed() {
		c.mu.Unlock()
		return core.SavingsGoal{}, ErrWithdrawalLocked
	}
	if amount.GreaterThan(goal.CurrentAmount) {
		c.mu.Unlock()
		return core.SavingsGoal{}, ErrInsufficientFunds
	}
	c.mu.Unlock()

	updated, err := c.store.WithdrawFunds(ctx, goalID, c.userID, amount)
	if err != nil {
		return core.SavingsGoal{}, &RemoteError{Op: "withdraw funds", Err: err}
	}

	c.mu.Lock()
	events := c.noteStatusLocked(updated)
	c.mu.Unlock()
	c.emit(ctx, events)

	if err := c.LoadAll(ctx); err != nil {
		return updated, err
	}
	return updated, nil
}

// DeleteWillRefund reports, before the destructive call, whether deleting
// the goal returns its earmarked money to the available balance, so the
// caller can present an accurate confirmation prompt.
func (c *Controller) DeleteWillRefund(goalID int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return false, ErrNotLoaded
	}
	goal, ok := c.snapshot.Find(goalID)
	if !ok {
		return false, ErrGoalNotFound
	}
	return !goal.Completed() || c.policy.RefundCompletedOnDelete, nil
}

// DeleteGoal sends the deletion intent and reconciles. The refund decision
// itself belongs to the store (see DeleteWillRefund for the preview).
func (c *Controller) DeleteGoal(ctx context.Context, goalID int64) error {
	c.mu.Lock()
	if !c.loaded {
		c.mu.Unlock()
		return ErrNotLoaded
	}
	if _, ok := c.snapshot.Find(goalID); !ok {
		c.mu.Unlock()
		return ErrGoalNotFound
	}
	c.mu.Unlock()

	if err := c.store.DeleteGoal(ctx, goalID, c.userID); err != nil {
		return &RemoteError{Op: "delete goal", Err: err}
	}

	c.mu.Lock()
	delete(c.seenStatus, goalID)
	c.mu.Unlock()

	return c.LoadAll(ctx)
}

// Views returns the derived presentation models for the current snapshot.
func (c *Controller) Views(today time.Time) []core.GoalView {
	snap, _ := c.Snapshot()
	views := make([]core.GoalView, 0, len(snap.Goals))
	for _, g := range snap.Goals {
		views = append(views, core.NewGoalView(g, today))
	}
	return views
}

// noteStatusLocked records the observed status of a goal and returns a
// completion event if this is an ACTIVE-to-COMPLETED edge. The first
// observation of a goal only records its status: "newly completed" is
// never inferred from a single snapshot diffed against nothing.
// Caller must hold c.mu.
func (c *Controller) noteStatusLocked(goal core.SavingsGoal) []CompletedEvent {
	prev, seen := c.seenStatus[goal.ID]
	c.seenStatus[goal.ID] = goal.Status
	if !seen || prev == core.StatusCompleted || goal.Status != core.StatusCompleted {
		return nil
	}
	return []CompletedEvent{{
		GoalID:      goal.ID,
		UserID:      goal.UserID,
		UserEmail:   c.userEmail,
		GoalName:    goal.Name,
		CompletedAt: time.Now(),
	}}
}

func (c *Controller) emit(ctx context.Context, events []CompletedEvent) {
	for _, ev := range events {
		slog.InfoContext(ctx, "Goal completed",
			"goal_id", ev.GoalID,
			"goal_name", ev.GoalName,
			"user_id", ev.UserID)

		select {
		case c.completions <- ev:
		default:
			slog.WarnContext(ctx, "Completion channel full, dropping event",
				"goal_id", ev.GoalID)
		}

		if c.publisher != nil {
			if err := c.publisher.PublishGoalCompleted(ctx, ev); err != nil {
				// Don't fail the operation - the local notification already fired
				slog.ErrorContext(ctx, "Failed to publish completion event",
					"goal_id", ev.GoalID, "error", err)
			}
		}
	}
}
