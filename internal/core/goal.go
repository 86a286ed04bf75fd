package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
)

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Yearly  Frequency = "YEARLY"
)

type (
	Priority  string
	Status    string
	Frequency string

	Date struct {
		time.Time
	}

	// SavingsGoal mirrors the authoritative record held by the goal store.
	// CurrentAmount is money earmarked inside the goal and stays within
	// [0, TargetAmount]; the store, not this client, enforces the clamp.
	SavingsGoal struct {
		ID            int64
		UserID        int64
		Name          string
		TargetAmount  decimal.Decimal
		CurrentAmount decimal.Decimal
		StartDate     Date
		EndDate       Date
		Priority      Priority
		Frequency     Frequency
		Status        Status
	}

	// GoalDraft is the payload for creating a goal. New goals always start
	// with a zero current amount and ACTIVE status.
	GoalDraft struct {
		Name         string
		TargetAmount decimal.Decimal
		StartDate    Date
		EndDate      Date
		Priority     Priority
		Frequency    Frequency
	}

	// Snapshot is the read-only view of a user's ledger state. It is
	// replaced wholesale on every reconciliation, never patched.
	Snapshot struct {
		Goals            []SavingsGoal
		AvailableBalance decimal.Decimal
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyName        = errors.New("empty goal name")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidPriority  = errors.New("invalid priority")
	ErrInvalidFrequency = errors.New("invalid frequency")
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusCompleted:
		return true
	default:
		return false
	}
}

func (f Frequency) IsValid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	default:
		return false
	}
}

// Completed reports whether the goal reached its target.
func (g SavingsGoal) Completed() bool {
	return g.Status == StatusCompleted
}

// Remaining returns how much is still missing to reach the target,
// never below zero.
func (g SavingsGoal) Remaining() decimal.Decimal {
	r := g.TargetAmount.Sub(g.CurrentAmount)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

func (d GoalDraft) Validate() error {
	if len(strings.TrimSpace(d.Name)) == 0 {
		return ErrEmptyName
	}
	if len(d.Name) > 100 {
		return errors.New("goal name too long (max 100 characters)")
	}
	if !d.TargetAmount.IsPositive() {
		return ErrInvalidAmount
	}
	if d.EndDate.IsZero() {
		return ErrInvalidDate
	}
	if !d.StartDate.IsZero() && d.EndDate.Before(d.StartDate.Time) {
		return errors.New("end date must not be before start date")
	}
	if !d.Priority.IsValid() {
		return ErrInvalidPriority
	}
	if d.Frequency != "" && !d.Frequency.IsValid() {
		return ErrInvalidFrequency
	}
	return nil
}

// NewDate creates a Date from year, month, day at UTC midnight.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a calendar date in YYYY-MM-DD form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// IsEmpty returns true for the zero date (optional dates).
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (d Date) String() string {
	return d.Format("2006-01-02")
}

// Find returns the goal with the given id from the snapshot.
func (s Snapshot) Find(goalID int64) (SavingsGoal, bool) {
	for _, g := range s.Goals {
		if g.ID == goalID {
			return g, true
		}
	}
	return SavingsGoal{}, false
}

// EarmarkedTotal sums the current amounts across all goals in the snapshot.
func (s Snapshot) EarmarkedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, g := range s.Goals {
		total = total.Add(g.CurrentAmount)
	}
	return total
}
