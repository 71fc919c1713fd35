package session

import "errors"

// Infrastructure-level fatal errors, spec §7. Protocol-level faults are
// represented as *stun.Error instead and never reach these.
var (
	ErrOwnerDied        = errors.New("session: owner died")
	ErrSocketClosed     = errors.New("session: client socket closed")
	ErrRegistryRejected = errors.New("session: allocation registry rejected the allocation")
)
