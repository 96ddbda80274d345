// Package natsjs implements the sublease transport collaborators on NATS
// JetStream.
//
// Topology mapping:
//   - A topic path maps to one JetStream stream. The stream name and subject
//     root derive from the topic path; lossy sanitization appends a short
//     hash suffix for collision safety.
//   - Published messages land on "<root>.msg.<sessionID>" subjects
//     ("_default_" for sessionless messages); dead-lettered copies land on
//     "<root>.dlq.<subscription>".
//   - A subscription maps to a durable pull consumer filtered on the topic's
//     message namespace. Peek-lock uses explicit acknowledgement; receive-
//     and-delete uses no acknowledgement.
//
// Lock tokens are UUIDs minted per delivery and tracked in-process with their
// lock deadline (the consumer's AckWait). Dispositions translate to JetStream
// acknowledgements: complete acks, abandon naks, defer terminates delivery
// while the message stays sequence-fetchable, and dead-letter publishes an
// annotated copy to the dead-letter subject before terminating.
//
// Sessions are subject-scoped exclusive consumers; exclusivity comes from
// named consumer creation, so a second acceptor observes the existing
// consumer and fails with ErrSessionLocked.
package natsjs
