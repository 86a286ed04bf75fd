package amqp

import (
	"encoding/json"
	"time"
)

// GoalCompletedMessage announces that a savings goal reached its target.
// The notify worker turns these into celebration emails.
type GoalCompletedMessage struct {
	GoalID      int64     `json:"goal_id"`
	UserID      int64     `json:"user_id"`
	GoalName    string    `json:"goal_name"`
	UserEmail   string    `json:"user_email,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// NewGoalCompletedMessage creates a completion message for a goal.
func NewGoalCompletedMessage(goalID, userID int64, goalName, userEmail string, completedAt time.Time) *GoalCompletedMessage {
	return &GoalCompletedMessage{
		GoalID:      goalID,
		UserID:      userID,
		GoalName:    goalName,
		UserEmail:   userEmail,
		CompletedAt: completedAt,
	}
}

// ToJSON converts the message to JSON bytes
func (m *GoalCompletedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// GoalCompletedMessageFromJSON creates a message from JSON bytes
func GoalCompletedMessageFromJSON(data []byte) (*GoalCompletedMessage, error) {
	var msg GoalCompletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
