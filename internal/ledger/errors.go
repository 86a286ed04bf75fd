package ledger

import (
	"errors"
	"fmt"
)

// Local precondition failures. These are terminal for the call and never
// reach the network.
var (
	ErrInsufficientFunds = errors.New("insufficient available balance")
	ErrWithdrawalLocked  = errors.New("high-priority goal is locked until completed")
	ErrGoalNotFound      = errors.New("goal not found")
	ErrNotLoaded         = errors.New("ledger snapshot not loaded")
)

// RemoteError reports a goal-store or balance-source call that failed after
// local preconditions passed. The cached snapshot is left untouched.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// DataUnavailableError reports a failed reconciliation: one of the fetches
// behind LoadAll did not succeed, so no partial view was accepted.
type DataUnavailableError struct {
	Err error
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("ledger data unavailable: %v", e.Err)
}

func (e *DataUnavailableError) Unwrap() error { return e.Err }
