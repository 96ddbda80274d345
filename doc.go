// Package sublease provides a client-side facade for consuming a topic
// subscription on a message broker.
//
// A Client mediates application calls against a single lazily constructed
// Receiver: lock-token addressed dispositions (complete, abandon, defer,
// dead-letter), lock renewal, sequence-number re-fetch, session acceptance,
// and prefetch control. The natsjs subpackage provides a NATS JetStream
// backed implementation of the transport collaborators.
//
// # Quick Start
//
// Basic usage against NATS JetStream:
//
//	import (
//	    "github.com/arloliu/sublease"
//	    "github.com/arloliu/sublease/natsjs"
//	)
//
//	conn, err := natsjs.Connect(natsURL, natsjs.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close(context.Background())
//
//	client, err := sublease.NewClient(conn, "orders", "audit")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close(context.Background())
//
//	msgs, err := client.Receive(ctx, 10)
//	for _, msg := range msgs {
//	    process(msg)
//	    _ = client.Complete(ctx, msg.LockToken)
//	}
//
// # Key Behaviors
//
//   - Lazy receiver: the underlying Receiver is constructed on first use,
//     exactly once even under concurrent first access, and a failed
//     construction is retried by the next call rather than cached.
//   - Single equals batch: every single-token convenience call is a
//     one-element invocation of the corresponding batch call, so the two
//     shapes can never diverge in behavior.
//   - Transparent errors: collaborator failures pass through the facade
//     unmodified; the Client does not wrap, retry, or log them.
//
// # Sessions
//
// Session-enabled subscriptions support ordered, exclusive consumption:
//
//	session, err := client.AcceptNextSession(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close(context.Background())
//
// # Message Pump
//
// Instead of calling Receive in a loop, register a handler:
//
//	err = client.RegisterMessageHandler(sublease.MessageHandlerFunc(
//	    func(ctx context.Context, msg *sublease.Message) error {
//	        return process(msg) // nil => complete, error => abandon
//	    },
//	))
package sublease
