package sublease

import "github.com/arloliu/sublease/types"

// Sentinel errors returned by the Client.
//
// These alias the canonical definitions in the types package so that
// errors.Is checks succeed regardless of which package a caller imported the
// sentinel from.
var (
	// ErrConnectionRequired is returned when the connection is nil.
	ErrConnectionRequired = types.ErrConnectionRequired

	// ErrTopicPathRequired is returned when the topic path is empty or blank.
	ErrTopicPathRequired = types.ErrTopicPathRequired

	// ErrSubscriptionNameRequired is returned when the subscription name is empty or blank.
	ErrSubscriptionNameRequired = types.ErrSubscriptionNameRequired

	// ErrInvalidReceiveMode is returned when the receive mode is not a defined value.
	ErrInvalidReceiveMode = types.ErrInvalidReceiveMode

	// ErrMalformedEntityPath is returned when an entity path does not follow
	// the "<topic>/Subscriptions/<name>" grammar.
	ErrMalformedEntityPath = types.ErrMalformedEntityPath

	// ErrClientClosed is returned for any operation invoked after Close.
	ErrClientClosed = types.ErrClientClosed

	// ErrHandlerAlreadyRegistered is returned when RegisterMessageHandler is
	// called on a client that already runs a message pump.
	ErrHandlerAlreadyRegistered = types.ErrHandlerAlreadyRegistered

	// ErrHandlerRequired is returned when RegisterMessageHandler is called
	// with a nil handler.
	ErrHandlerRequired = types.ErrHandlerRequired

	// ErrSessionsNotSupported is returned when session acceptance is requested
	// but neither an explicit acceptor nor a session-capable connection is available.
	ErrSessionsNotSupported = types.ErrSessionsNotSupported

	// ErrRulesNotSupported is returned when rule management is requested but
	// the receiver does not implement RuleManager.
	ErrRulesNotSupported = types.ErrRulesNotSupported
)
