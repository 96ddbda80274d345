package types

import "context"

// MessageHandler processes messages yielded by the client's message pump.
//
// Behavior summary:
//   - The pump receives a message and calls Handle once per message.
//   - By default, when Handle returns nil, the pump completes the message.
//     When Handle returns a non-nil error, the pump abandons it.
//   - If manual disposition is enabled on the pump, no automatic settlement
//     happens; the handler is responsible for completing, abandoning,
//     deferring, or dead-lettering the message via its lock token.
//
// Concurrency:
//   - The pump dispatches up to its configured concurrency limit of handler
//     calls in parallel. Handlers must be safe for concurrent invocation.
//   - Blocking in Handle applies backpressure to the pump's receive loop once
//     all handler slots are busy.
//
// Redelivery semantics:
//   - In peek-lock mode, failing to settle before the lock expires causes
//     redelivery. Exactly-once is not guaranteed; design handlers to be
//     idempotent.
type MessageHandler interface {
	// Handle processes a single message.
	//
	// In default mode, return nil for the pump to complete the message, or an
	// error for the pump to abandon it.
	Handle(ctx context.Context, msg *Message) error
}

// MessageHandlerFunc adapts a function to the MessageHandler interface.
type MessageHandlerFunc func(ctx context.Context, msg *Message) error

// Handle calls the underlying function.
func (f MessageHandlerFunc) Handle(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}
