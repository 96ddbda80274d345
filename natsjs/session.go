package natsjs

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/xid"

	"github.com/arloliu/sublease/types"
)

// session is an exclusively locked, ordered receiver scoped to one session's
// subject. Closing it deletes the session consumer, releasing the lock.
type session struct {
	*receiver
	id string
}

var _ types.Session = (*session)(nil)

// SessionID returns the identifier of the accepted session.
func (s *session) SessionID() string {
	return s.id
}

// Close releases the session lock and the receiver's local resources.
func (s *session) Close(ctx context.Context) error {
	// Delete first so the lock is released even if local cleanup fails.
	if err := s.stream.DeleteConsumer(ctx, s.consumerName); err != nil &&
		!errors.Is(err, jetstream.ErrConsumerNotFound) {
		_ = s.receiver.Close(ctx)
		return fmt.Errorf("failed to release session %s: %w", s.id, err)
	}

	return s.receiver.Close(ctx)
}

// AcceptSession locks a session on the subscription for ordered, exclusive
// consumption.
//
// A session maps to a named consumer filtered on the session's subject with
// at most one unacknowledged delivery, so messages arrive strictly in order.
// Exclusivity comes from consumer creation: the consumer carries a per-holder
// ID in its metadata, and a second acceptor observing an existing live
// consumer fails with ErrSessionLocked. An abandoned session releases itself
// after the configured inactivity threshold.
//
// An empty sessionID accepts the next available session: the stream's active
// session subjects are enumerated and each is tried in order until one locks;
// ErrNoSessionsAvailable when none does.
func (c *Connection) AcceptSession(ctx context.Context, subscriptionPath, sessionID string, mode types.ReceiveMode) (types.Session, error) {
	if c.closed.Load() {
		return nil, ErrConnectionClosed
	}
	if !mode.Valid() {
		return nil, types.ErrInvalidReceiveMode
	}

	topicPath, subscriptionName, deadLetter, err := types.SplitSubscriptionPath(subscriptionPath)
	if err != nil {
		return nil, err
	}
	if deadLetter {
		// Dead-lettered copies lose their subject-encoded session grouping.
		return nil, types.ErrSessionsNotSupported
	}

	stream, err := c.ensureStream(ctx, topicPath)
	if err != nil {
		return nil, err
	}

	params := receiverParams{
		topicPath:        topicPath,
		subscriptionName: subscriptionName,
		subscriptionPath: subscriptionPath,
		mode:             mode,
	}

	if sessionID != "" {
		if !validSubjectToken(sessionID) || sessionID == defaultSessionToken {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
		}

		return c.lockSession(ctx, stream, params, sessionID)
	}

	return c.acceptNextSession(ctx, stream, params)
}

// lockSession attempts to take exclusive ownership of one session.
func (c *Connection) lockSession(ctx context.Context, stream jetstream.Stream, params receiverParams, sessionID string) (types.Session, error) {
	params.sessionID = sessionID

	recv := &receiver{
		js:     c.js,
		stream: stream,
		cfg:    c.cfg,
		logger: c.logger,
		params: params,
	}
	recv.root = streamName(params.topicPath)
	recv.dlqSubject = deadLetterSubject(recv.root, params.subscriptionName)
	recv.filterPrefix = messageSubject(recv.root, sessionID)
	recv.consumerName = sanitizeName("sess_" + params.topicPath + "_" + params.subscriptionName + "_" + sessionID)
	recv.locks = newLockMap()
	recv.prefetch.Store(int64(c.cfg.Prefetch))

	cfg := recv.consumerConfig([]string{recv.filterPrefix})
	cfg.Metadata = map[string]string{"sublease-holder": xid.New().String()}

	consumer, err := stream.CreateConsumer(ctx, cfg)
	if err != nil {
		if errors.Is(err, jetstream.ErrConsumerExists) ||
			errors.Is(err, jetstream.ErrConsumerNameAlreadyInUse) {
			return nil, fmt.Errorf("%w: session %s", ErrSessionLocked, sessionID)
		}

		return nil, fmt.Errorf("failed to accept session %s: %w", sessionID, err)
	}

	recv.consumer = consumer
	recv.appliedFilters = []string{recv.filterPrefix}

	c.logger.Debug("session accepted",
		"subscriptionPath", params.subscriptionPath,
		"sessionID", sessionID,
	)

	return &session{receiver: recv, id: sessionID}, nil
}

// acceptNextSession enumerates the topic's active session subjects and locks
// the first available one.
func (c *Connection) acceptNextSession(ctx context.Context, stream jetstream.Stream, params receiverParams) (types.Session, error) {
	root := streamName(params.topicPath)

	info, err := stream.Info(ctx, jetstream.WithSubjectFilter(messageFilter(root)))
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate sessions: %w", err)
	}

	prefix := root + ".msg."
	ids := make([]string, 0, len(info.State.Subjects))
	for subject := range info.State.Subjects {
		id := strings.TrimPrefix(subject, prefix)
		if id == subject || id == defaultSessionToken || !validSubjectToken(id) {
			continue
		}
		ids = append(ids, id)
	}
	// Deterministic probe order keeps contention behavior reproducible.
	slices.Sort(ids)

	for _, id := range ids {
		sess, err := c.lockSession(ctx, stream, params, id)
		if err == nil {
			return sess, nil
		}
		if errors.Is(err, ErrSessionLocked) {
			continue
		}

		return nil, err
	}

	return nil, ErrNoSessionsAvailable
}
