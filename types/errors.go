package types

import "errors"

// Sentinel errors for the sublease library.
//
// These errors provide type-safe error checking using errors.Is() and errors.As().
// All components should use these sentinel errors for known error conditions.
// Transport implementations wrap external errors with context using
// fmt.Errorf("%s: %w", msg, err); the client facade itself never wraps, so a
// collaborator failure passes through it unmodified.
//
// Error Naming Convention:
//   - Use descriptive names with Err prefix
//   - Group by component (Client, capability, transport)
//   - Use consistent messages across similar error types

// Client construction errors - Invalid-argument failures raised synchronously
// before any broker resource is touched.
var (
	// ErrConnectionRequired is returned when the connection is nil.
	ErrConnectionRequired = errors.New("connection is required")

	// ErrTopicPathRequired is returned when the topic path is empty or blank.
	ErrTopicPathRequired = errors.New("topic path is required")

	// ErrSubscriptionNameRequired is returned when the subscription name is empty or blank.
	ErrSubscriptionNameRequired = errors.New("subscription name is required")

	// ErrInvalidReceiveMode is returned when the receive mode is not a defined value.
	ErrInvalidReceiveMode = errors.New("invalid receive mode")

	// ErrMalformedEntityPath is returned when an entity path does not follow
	// the "<topic>/Subscriptions/<name>" grammar.
	ErrMalformedEntityPath = errors.New("malformed entity path")
)

// Client lifecycle errors.
var (
	// ErrClientClosed is returned for any operation invoked after Close.
	ErrClientClosed = errors.New("client is closed")

	// ErrHandlerAlreadyRegistered is returned when RegisterMessageHandler is
	// called on a client that already runs a message pump.
	ErrHandlerAlreadyRegistered = errors.New("message handler already registered")

	// ErrHandlerRequired is returned when RegisterMessageHandler is called
	// with a nil handler.
	ErrHandlerRequired = errors.New("message handler is required")
)

// Capability errors - Returned when an optional collaborator capability is absent.
var (
	// ErrSessionsNotSupported is returned when session acceptance is requested
	// but neither an explicit acceptor nor a session-capable connection is available.
	ErrSessionsNotSupported = errors.New("sessions not supported by this connection")

	// ErrRulesNotSupported is returned when rule management is requested but
	// the receiver does not implement RuleManager.
	ErrRulesNotSupported = errors.New("rules not supported by this receiver")
)
