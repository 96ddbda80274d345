package types

import "context"

// Hooks defines callbacks for client lifecycle events.
//
// All hooks are optional. Unlike regular operations, hook errors never fail
// the triggering client call; they are surfaced through OnError (when set)
// and otherwise dropped.
//
// Best practices for hook implementation:
//   - Complete quickly (< 1 second recommended)
//   - Respect context cancellation
//   - Make hooks idempotent
//
// Example:
//
//	hooks := &sublease.Hooks{
//	    OnClosing: func(ctx context.Context) error {
//	        return flushLocalState(ctx)
//	    },
//	}
type Hooks struct {
	// OnReceiverCreated is called once, after the lazily constructed receiver
	// first becomes available.
	OnReceiverCreated func(ctx context.Context) error

	// OnClosing is called exactly once, at the start of the first Close call,
	// before the receiver (if any) is closed. Client-family variants use it
	// to release resources beyond the shared receiver.
	OnClosing func(ctx context.Context) error

	// OnError is called when a hook itself fails.
	OnError func(ctx context.Context, err error)
}
