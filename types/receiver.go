package types

import (
	"context"
	"time"
)

// Connection creates receivers bound to a subscription path.
//
// A single Connection may back many clients. CreateReceiver may be called
// multiple times over the connection's lifetime, but each client calls it at
// most once: the receiver it returns is cached for the client's lifetime.
//
// Implementations that also support sessions implement SessionAcceptor; the
// client probes for that capability at construction time.
type Connection interface {
	// CreateReceiver constructs a Receiver for the given subscription path.
	//
	// The path is the canonical "<topic>/Subscriptions/<name>" form produced
	// by FormatSubscriptionPath, optionally with the dead-letter suffix from
	// FormatDeadLetterPath appended.
	//
	// Construction may perform network I/O (consumer creation, handshakes)
	// and is therefore expected to be expensive; callers defer it until the
	// first operation that needs the receiver.
	CreateReceiver(ctx context.Context, subscriptionPath string, mode ReceiveMode) (Receiver, error)
}

// Receiver performs message retrieval and disposition against the broker for
// one subscription.
//
// All methods are safe for concurrent use. Batch disposition methods accept
// an empty token slice as a legal no-op and settle tokens in caller order.
type Receiver interface {
	// Receive fetches up to maxMessages messages. It returns fewer (possibly
	// zero) messages when the subscription has no more available within the
	// receiver's wait window. In ReceiveModePeekLock each returned message
	// carries a lock token valid until its LockedUntil deadline.
	Receive(ctx context.Context, maxMessages int) ([]*Message, error)

	// ReceiveBySequenceNumbers re-fetches specific messages by stream
	// sequence, independent of lock state. Sequences no longer present in
	// the stream are skipped; the result order is the receiver's, not
	// necessarily the request order. Returned messages carry no lock token.
	ReceiveBySequenceNumbers(ctx context.Context, seqs []SequenceNumber) ([]*Message, error)

	// Peek browses messages without locking or consuming them, starting at
	// the given sequence (0 means the start of the stream).
	Peek(ctx context.Context, from SequenceNumber, maxMessages int) ([]*Message, error)

	// Complete settles the given locked messages as successfully processed.
	Complete(ctx context.Context, tokens []LockToken) error

	// Abandon releases the locks, making the messages available for
	// redelivery.
	Abandon(ctx context.Context, tokens []LockToken) error

	// Defer sets the messages aside; deferred messages are retrieved only by
	// sequence number.
	Defer(ctx context.Context, tokens []LockToken) error

	// DeadLetter moves the messages to the subscription's dead-letter
	// sub-queue.
	DeadLetter(ctx context.Context, tokens []LockToken) error

	// RenewLock extends the lock held by token and returns the new expiry.
	RenewLock(ctx context.Context, token LockToken) (time.Time, error)

	// PrefetchCount returns the number of messages the receiver fetches
	// ahead of application demand.
	PrefetchCount() int

	// SetPrefetchCount adjusts the prefetch window.
	SetPrefetchCount(n int) error

	// Close releases the receiver's broker resources.
	Close(ctx context.Context) error
}

// SessionAcceptor accepts a session on a subscription for ordered, exclusive
// consumption.
//
// Implemented by connections (or injected explicitly) that support
// session-enabled subscriptions.
type SessionAcceptor interface {
	// AcceptSession locks the session identified by sessionID on the given
	// subscription path. An empty sessionID requests the next available
	// session.
	AcceptSession(ctx context.Context, subscriptionPath, sessionID string, mode ReceiveMode) (Session, error)
}

// Session is an exclusively locked, ordered view over one session's messages.
//
// A Session is a full Receiver scoped to the session; closing it releases the
// session lock.
type Session interface {
	Receiver

	// SessionID returns the identifier of the accepted session.
	SessionID() string
}

// Rule names a subject filter applied to a subscription.
type Rule struct {
	// Name identifies the rule on the subscription.
	Name string

	// SubjectFilter is the broker subject filter the rule admits.
	SubjectFilter string
}

// RuleManager manages the subject filters of a subscription.
//
// Optional receiver capability: the client probes its receiver for this
// interface and reports ErrRulesNotSupported when absent.
type RuleManager interface {
	// AddRule installs a named subject filter on the subscription.
	AddRule(ctx context.Context, name, subjectFilter string) error

	// RemoveRule removes a previously installed rule by name.
	RemoveRule(ctx context.Context, name string) error

	// Rules lists the rules currently applied, sorted by name.
	Rules(ctx context.Context) ([]Rule, error)
}
