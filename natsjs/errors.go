package natsjs

import "errors"

// Sentinel errors returned by the NATS JetStream transport.
var (
	// ErrConnectionClosed is returned for operations on a closed connection.
	ErrConnectionClosed = errors.New("natsjs: connection is closed")

	// ErrReceiverClosed is returned for operations on a closed receiver.
	ErrReceiverClosed = errors.New("natsjs: receiver is closed")

	// ErrLockNotFound is returned when a lock token does not correspond to a
	// held lock (unknown token, expired lock, or receive-and-delete mode).
	ErrLockNotFound = errors.New("natsjs: lock not found")

	// ErrSessionLocked is returned when the requested session is held by
	// another receiver.
	ErrSessionLocked = errors.New("natsjs: session is locked by another receiver")

	// ErrNoSessionsAvailable is returned when no unlocked session exists on
	// the subscription.
	ErrNoSessionsAvailable = errors.New("natsjs: no sessions available")

	// ErrInvalidSessionID is returned when a session ID cannot be used as a
	// subject token.
	ErrInvalidSessionID = errors.New("natsjs: invalid session ID")

	// ErrInvalidPrefetchCount is returned when the prefetch count is negative.
	ErrInvalidPrefetchCount = errors.New("natsjs: prefetch count must not be negative")

	// ErrInvalidMaxMessages is returned when a receive or peek asks for fewer
	// than one message.
	ErrInvalidMaxMessages = errors.New("natsjs: max messages must be at least 1")

	// ErrRuleExists is returned when adding a rule whose name is already in use.
	ErrRuleExists = errors.New("natsjs: rule already exists")

	// ErrRuleNotFound is returned when removing an unknown rule.
	ErrRuleNotFound = errors.New("natsjs: rule not found")
)
