package sublease

import "github.com/arloliu/sublease/types"

// Re-export types from the types package.
//
// This file provides a stable, backward-compatible public API for the library's
// core types and interfaces. It uses type aliases to re-export definitions
// from the `types` subpackage, which contains the actual implementations.
//
// This pattern solves the "import cycle" problem by allowing transport
// packages to depend on `types` without depending on the root `sublease`
// package, while still providing a convenient `sublease.Message`,
// `sublease.Receiver`, etc. for users.
type (
	Message        = types.Message
	LockToken      = types.LockToken
	SequenceNumber = types.SequenceNumber
	ReceiveMode    = types.ReceiveMode
	Rule           = types.Rule
)

// Re-export interfaces from the types package for convenience.
type (
	Connection         = types.Connection
	Receiver           = types.Receiver
	Session            = types.Session
	SessionAcceptor    = types.SessionAcceptor
	RuleManager        = types.RuleManager
	MessageHandler     = types.MessageHandler
	MessageHandlerFunc = types.MessageHandlerFunc
	MetricsCollector   = types.MetricsCollector
	Logger             = types.Logger
	Hooks              = types.Hooks
)

// Re-export ReceiveMode constants from the types package.
const (
	ReceiveModePeekLock         = types.ReceiveModePeekLock
	ReceiveModeReceiveAndDelete = types.ReceiveModeReceiveAndDelete
)

// Re-export entity path helpers from the types package.
var (
	FormatSubscriptionPath = types.FormatSubscriptionPath
	FormatDeadLetterPath   = types.FormatDeadLetterPath
	SplitSubscriptionPath  = types.SplitSubscriptionPath
	ValidateEntityPath     = types.ValidateEntityPath
)
