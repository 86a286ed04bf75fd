package ledger

import (
	"context"
	"time"
)

// CompletedEvent is emitted exactly once per goal per controller session
// when the goal is observed transitioning into COMPLETED.
type CompletedEvent struct {
	GoalID      int64
	UserID      int64
	UserEmail   string
	GoalName    string
	CompletedAt time.Time
}

// EventPublisher forwards completion events beyond the session, e.g. to a
// message broker for the notification worker. Publish failures are logged
// and never fail the triggering operation.
type EventPublisher interface {
	PublishGoalCompleted(ctx context.Context, ev CompletedEvent) error
}
