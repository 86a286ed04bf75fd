package core

import (
	"math"
	"time"
)

// GoalView is the derived presentation model for a single goal. It is a
// pure function of the last-loaded snapshot and carries no side effects.
type GoalView struct {
	Goal           SavingsGoal
	Progress       float64
	DaysRemaining  int
	DeadlinePassed bool
	CanWithdraw    bool
}

// Progress returns the completion percentage in [0, 100]. A zero target
// yields zero rather than dividing.
func Progress(g SavingsGoal) float64 {
	if g.TargetAmount.IsZero() {
		return 0
	}
	ratio, _ := g.CurrentAmount.Div(g.TargetAmount).Float64()
	if ratio > 1 {
		ratio = 1
	}
	return ratio * 100
}

// DaysRemaining returns the number of days until the goal's end date,
// rounded up. Negative values mean the deadline has passed; they are
// surfaced as-is, never clamped to zero.
func DaysRemaining(g SavingsGoal, today time.Time) int {
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	diff := g.EndDate.Sub(day)
	return int(math.Ceil(diff.Hours() / 24))
}

// CanWithdraw reports whether the goal currently accepts withdrawals:
// there must be earmarked money, and HIGH-priority goals stay locked
// until completed.
func CanWithdraw(g SavingsGoal) bool {
	return g.CurrentAmount.IsPositive() && (g.Priority != PriorityHigh || g.Completed())
}

// NewGoalView computes the derived values for a goal as of today.
func NewGoalView(g SavingsGoal, today time.Time) GoalView {
	days := DaysRemaining(g, today)
	return GoalView{
		Goal:           g,
		Progress:       Progress(g),
		DaysRemaining:  days,
		DeadlinePassed: days < 0,
		CanWithdraw:    CanWithdraw(g),
	}
}
