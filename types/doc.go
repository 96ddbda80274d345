// Package types provides core type definitions and interfaces for the sublease library.
//
// This package contains shared types that are used across multiple packages in the
// sublease library. By keeping these types in a separate package, we avoid import
// cycles between the main sublease package and its transport implementations.
//
// Key types:
//   - Connection: Factory for subscription-bound receivers
//   - Receiver: Message retrieval and disposition contract
//   - Session / SessionAcceptor: Session-scoped exclusive consumption
//   - Message, LockToken, SequenceNumber, ReceiveMode: Message model
//   - Logger: Structured logging interface
//   - MetricsCollector: Metrics recording interface
package types
