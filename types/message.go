package types

import (
	"fmt"
	"time"
)

// LockToken is an opaque identifier correlating a disposition call with a
// specific locked message.
//
// Tokens are minted by the Receiver when a message is delivered in
// ReceiveModePeekLock and remain valid while the message lock is held. The
// client never generates, orders, or deduplicates tokens; it only passes them
// back to the Receiver.
type LockToken string

// SequenceNumber is the broker-assigned monotonic identifier of a message
// within its stream. It allows direct re-fetch of a specific message
// independent of lock state.
type SequenceNumber uint64

// ReceiveMode controls how received messages are settled at the broker.
type ReceiveMode int

const (
	// ReceiveModePeekLock locks a message on delivery. The message remains
	// available for redelivery until it is completed, abandoned, deferred,
	// dead-lettered, or its lock expires. This is the default mode.
	ReceiveModePeekLock ReceiveMode = iota

	// ReceiveModeReceiveAndDelete considers a message consumed the moment the
	// broker delivers it. Disposition calls are broker-side no-ops in this
	// mode; the client still forwards them.
	ReceiveModeReceiveAndDelete
)

// String returns a human-readable name for the receive mode.
func (m ReceiveMode) String() string {
	switch m {
	case ReceiveModePeekLock:
		return "PeekLock"
	case ReceiveModeReceiveAndDelete:
		return "ReceiveAndDelete"
	default:
		return fmt.Sprintf("ReceiveMode(%d)", int(m))
	}
}

// Valid reports whether the receive mode is one of the defined enum values.
func (m ReceiveMode) Valid() bool {
	return m == ReceiveModePeekLock || m == ReceiveModeReceiveAndDelete
}

// Message is a single message delivered from a subscription.
//
// LockToken is empty when the message was received in
// ReceiveModeReceiveAndDelete, browsed via Peek, or re-fetched by sequence
// number (direct reads do not lock). LockedUntil is the zero time in the same
// cases.
type Message struct {
	// ID is the application-assigned message identifier (broker-generated
	// when the publisher did not set one).
	ID string

	// Body is the message payload.
	Body []byte

	// Subject is the broker subject the message was published on.
	Subject string

	// SessionID groups related messages for ordered, exclusive consumption.
	// Empty for sessionless messages.
	SessionID string

	// LockToken correlates this delivery with its lock. See LockToken.
	LockToken LockToken

	// SequenceNumber is the broker-assigned stream sequence of this message.
	SequenceNumber SequenceNumber

	// EnqueuedAt is the broker receive timestamp.
	EnqueuedAt time.Time

	// LockedUntil is when the current lock expires. Zero when unlocked.
	LockedUntil time.Time

	// DeliveryCount is the number of delivery attempts, starting at 1.
	DeliveryCount int

	// DeadLetterSource is the entity path the message was dead-lettered from.
	// Empty unless the message was consumed from a dead-letter sub-queue.
	DeadLetterSource string

	// Headers carries application and broker metadata.
	Headers map[string]string
}
