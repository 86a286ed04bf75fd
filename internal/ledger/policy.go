package ledger

// Policy holds the deployment-configurable ledger rules.
type Policy struct {
	// LockHighPriority blocks withdrawals from HIGH-priority goals until
	// they complete. The lock is a commitment device, enforced locally
	// before any network call.
	LockHighPriority bool

	// RefundCompletedOnDelete controls the pre-delete refund preview for
	// completed goals. When false, deleting a completed goal does not
	// return its money: it is considered spent toward the fulfilled
	// objective. Must match the goal store's own delete policy.
	RefundCompletedOnDelete bool
}

// DefaultPolicy returns the most constrained rule set: lock on, no refund
// for completed goals.
func DefaultPolicy() Policy {
	return Policy{
		LockHighPriority:        true,
		RefundCompletedOnDelete: false,
	}
}
