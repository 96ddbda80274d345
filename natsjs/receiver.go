package natsjs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/sublease/internal/backoff"
	"github.com/arloliu/sublease/types"
)

// Message headers written and read by the transport.
const (
	// HeaderMessageID carries the publisher-assigned message ID
	// (deduplicated by JetStream within its duplicate window).
	HeaderMessageID = "Nats-Msg-Id"

	// HeaderDeadLetterSource records the subscription path a message was
	// dead-lettered from.
	HeaderDeadLetterSource = "Sublease-Dead-Letter-Source"

	// HeaderDeadLetterSequence records the original stream sequence of a
	// dead-lettered message.
	HeaderDeadLetterSequence = "Sublease-Dead-Letter-Sequence"

	// HeaderSessionID preserves the session ID on dead-lettered copies,
	// whose subject no longer encodes it.
	HeaderSessionID = "Sublease-Session-Id"
)

// receiverParams identifies the subscription a receiver binds to.
type receiverParams struct {
	topicPath        string
	subscriptionName string
	subscriptionPath string
	deadLetter       bool
	mode             types.ReceiveMode

	// sessionID scopes the receiver to one session's subject. Session
	// receivers use named (non-durable) consumers with an inactivity
	// threshold, so an abandoned session lock releases itself.
	sessionID string
}

// lockEntry tracks one outstanding message lock.
type lockEntry struct {
	msg         jetstream.Msg
	seq         types.SequenceNumber
	sessionID   string
	lockedUntil time.Time
}

// receiver implements types.Receiver on a JetStream durable pull consumer.
type receiver struct {
	js     jetstream.JetStream
	stream jetstream.Stream
	cfg    Config
	logger types.Logger
	params receiverParams

	root         string // sanitized topic, stream name and subject root
	filterPrefix string // subject prefix this receiver consumes
	dlqSubject   string // where DeadLetter publishes copies
	consumerName string

	// consumer is replaced when rule reconciliation updates the filter set.
	mu       sync.Mutex
	consumer jetstream.Consumer

	// rules is nil when the receiver does not support rule management
	// (dead-letter and session receivers have fixed filters).
	rules          map[string]string
	appliedFilters []string

	prefetch atomic.Int64

	// buffer holds prefetched deliveries not yet handed to the application.
	// Lock tokens are minted at hand-off, not at fetch.
	bufMu  sync.Mutex
	buffer []jetstream.Msg

	locks  *xsync.Map[types.LockToken, *lockEntry]
	closed atomic.Bool
}

var _ types.Receiver = (*receiver)(nil)

func newLockMap() *xsync.Map[types.LockToken, *lockEntry] {
	return xsync.NewMap[types.LockToken, *lockEntry]()
}

// newReceiver builds a receiver and its pull consumer.
func (c *Connection) newReceiver(ctx context.Context, stream jetstream.Stream, params receiverParams) (*receiver, error) {
	root := streamName(params.topicPath)

	r := &receiver{
		js:         c.js,
		stream:     stream,
		cfg:        c.cfg,
		logger:     c.logger,
		params:     params,
		root:       root,
		dlqSubject: deadLetterSubject(root, params.subscriptionName),
		locks:      newLockMap(),
	}
	r.prefetch.Store(int64(c.cfg.Prefetch))

	switch {
	case params.deadLetter:
		r.filterPrefix = r.dlqSubject
		r.consumerName = sanitizeName("dlq_" + params.topicPath + "_" + params.subscriptionName)
	case params.sessionID != "":
		r.filterPrefix = messageSubject(root, params.sessionID)
		r.consumerName = sanitizeName("sess_" + params.topicPath + "_" + params.subscriptionName + "_" + params.sessionID)
	default:
		r.filterPrefix = root + ".msg."
		r.consumerName = sanitizeName("sub_" + params.topicPath + "_" + params.subscriptionName)
		// Subscriptions start with the default rule admitting every message
		// subject of the topic.
		r.rules = map[string]string{DefaultRuleName: ">"}
	}

	consumer, err := r.createConsumer(ctx)
	if err != nil {
		return nil, err
	}
	r.consumer = consumer

	c.logger.Debug("receiver created",
		"subscriptionPath", params.subscriptionPath,
		"consumer", r.consumerName,
		"mode", params.mode.String(),
	)

	return r, nil
}

// consumerConfig builds the consumer configuration for the receiver's
// current filter set.
func (r *receiver) consumerConfig(filters []string) jetstream.ConsumerConfig {
	cfg := jetstream.ConsumerConfig{
		Name:           r.consumerName,
		FilterSubjects: filters,
		AckWait:        r.cfg.AckWait,
	}

	if r.params.mode == types.ReceiveModePeekLock {
		cfg.AckPolicy = jetstream.AckExplicitPolicy
		cfg.MaxDeliver = r.cfg.MaxDeliver
	} else {
		cfg.AckPolicy = jetstream.AckNonePolicy
	}

	if r.params.sessionID != "" {
		// Session consumers: exclusive, strictly ordered, self-releasing.
		cfg.MaxAckPending = 1
		cfg.InactiveThreshold = r.cfg.SessionInactiveThreshold
	} else {
		cfg.Durable = r.consumerName
	}

	return cfg
}

// createConsumer creates or updates the pull consumer with retry on
// transient failures.
func (r *receiver) createConsumer(ctx context.Context) (jetstream.Consumer, error) {
	filters := r.effectiveFilters()
	cfg := r.consumerConfig(filters)

	var (
		lastErr error
		delay   time.Duration
	)

	for attempt := 0; attempt < r.cfg.CreateRetries; attempt++ {
		consumer, err := r.stream.CreateOrUpdateConsumer(ctx, cfg)
		if err == nil {
			r.appliedFilters = filters
			return consumer, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, fmt.Errorf("context canceled during consumer creation: %w", ctx.Err())
		}

		if attempt < r.cfg.CreateRetries-1 {
			delay = backoff.Jitter(delay, r.cfg.RetryBackoff, 2.0, 0, nil)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return nil, fmt.Errorf("failed to create consumer %s after %d attempts: %w",
		r.consumerName, r.cfg.CreateRetries, lastErr)
}

// Receive fetches up to maxMessages messages, serving the prefetch buffer
// first and pulling the remainder (plus the prefetch surplus) from the
// broker.
func (r *receiver) Receive(ctx context.Context, maxMessages int) ([]*types.Message, error) {
	if r.closed.Load() {
		return nil, ErrReceiverClosed
	}
	if maxMessages < 1 {
		return nil, ErrInvalidMaxMessages
	}

	out := make([]*types.Message, 0, maxMessages)

	r.bufMu.Lock()
	for len(r.buffer) > 0 && len(out) < maxMessages {
		msg := r.buffer[0]
		r.buffer = r.buffer[1:]
		if converted, err := r.deliver(msg); err == nil {
			out = append(out, converted)
		}
	}
	r.bufMu.Unlock()

	if len(out) == maxMessages {
		return out, nil
	}

	r.mu.Lock()
	consumer := r.consumer
	r.mu.Unlock()

	want := maxMessages - len(out) + int(r.prefetch.Load())
	batch, err := consumer.Fetch(want, jetstream.FetchMaxWait(r.cfg.FetchMaxWait))
	if err != nil {
		if len(out) > 0 {
			return out, nil
		}

		return nil, fmt.Errorf("fetch failed: %w", err)
	}

	var surplus []jetstream.Msg
	for msg := range batch.Messages() {
		if len(out) < maxMessages {
			if converted, err := r.deliver(msg); err == nil {
				out = append(out, converted)
			}
			continue
		}
		surplus = append(surplus, msg)
	}

	if len(surplus) > 0 {
		r.bufMu.Lock()
		r.buffer = append(r.buffer, surplus...)
		r.bufMu.Unlock()
	}

	if batchErr := batch.Error(); batchErr != nil && len(out) == 0 &&
		!errors.Is(batchErr, nats.ErrTimeout) {
		return nil, fmt.Errorf("fetch failed: %w", batchErr)
	}

	return out, nil
}

// deliver converts a JetStream delivery into a Message, minting and
// registering a lock token in peek-lock mode.
func (r *receiver) deliver(msg jetstream.Msg) (*types.Message, error) {
	meta, err := msg.Metadata()
	if err != nil {
		// Malformed delivery; drop it rather than fail the whole batch.
		r.logger.Warn("dropping message without metadata", "subject", msg.Subject(), "error", err)
		return nil, fmt.Errorf("message metadata unavailable: %w", err)
	}

	converted := &types.Message{
		Body:           msg.Data(),
		Subject:        msg.Subject(),
		SessionID:      r.sessionIDOf(msg),
		SequenceNumber: types.SequenceNumber(meta.Sequence.Stream),
		EnqueuedAt:     meta.Timestamp,
		DeliveryCount:  int(meta.NumDelivered),
		Headers:        flattenHeaders(msg.Headers()),
	}
	converted.ID = converted.Headers[HeaderMessageID]
	converted.DeadLetterSource = converted.Headers[HeaderDeadLetterSource]

	if r.params.mode == types.ReceiveModePeekLock {
		token := types.LockToken(uuid.NewString())
		until := time.Now().Add(r.cfg.AckWait)
		r.locks.Store(token, &lockEntry{
			msg:         msg,
			seq:         converted.SequenceNumber,
			sessionID:   converted.SessionID,
			lockedUntil: until,
		})
		converted.LockToken = token
		converted.LockedUntil = until
	}

	return converted, nil
}

// sessionIDOf extracts the session ID from a delivery's subject
// ("<root>.msg.<sessionID>"), falling back to the preserved header for
// dead-lettered copies.
func (r *receiver) sessionIDOf(msg jetstream.Msg) string {
	if id := msg.Headers().Get(HeaderSessionID); id != "" {
		return id
	}

	parts := strings.Split(msg.Subject(), ".")
	if len(parts) == 3 && parts[1] == "msg" && parts[2] != defaultSessionToken {
		return parts[2]
	}

	return ""
}

// ReceiveBySequenceNumbers re-fetches messages directly from the stream by
// sequence. Sequences no longer retained are skipped. Direct reads do not
// lock, so returned messages carry no lock token.
func (r *receiver) ReceiveBySequenceNumbers(ctx context.Context, seqs []types.SequenceNumber) ([]*types.Message, error) {
	if r.closed.Load() {
		return nil, ErrReceiverClosed
	}

	out := make([]*types.Message, 0, len(seqs))
	for _, seq := range seqs {
		raw, err := r.stream.GetMsg(ctx, uint64(seq))
		if err != nil {
			if errors.Is(err, jetstream.ErrMsgNotFound) {
				continue
			}

			return nil, fmt.Errorf("failed to get message %d: %w", seq, err)
		}
		out = append(out, r.rawToMessage(raw))
	}

	return out, nil
}

// Peek browses the receiver's subjects without locking or consuming,
// starting at the given sequence (0 means the stream start).
func (r *receiver) Peek(ctx context.Context, from types.SequenceNumber, maxMessages int) ([]*types.Message, error) {
	if r.closed.Load() {
		return nil, ErrReceiverClosed
	}
	if maxMessages < 1 {
		return nil, ErrInvalidMaxMessages
	}

	info, err := r.stream.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream info: %w", err)
	}

	seq := uint64(from)
	if seq < info.State.FirstSeq {
		seq = info.State.FirstSeq
	}

	out := make([]*types.Message, 0, maxMessages)
	for ; seq <= info.State.LastSeq && len(out) < maxMessages; seq++ {
		raw, err := r.stream.GetMsg(ctx, seq)
		if err != nil {
			if errors.Is(err, jetstream.ErrMsgNotFound) {
				continue
			}

			return nil, fmt.Errorf("failed to get message %d: %w", seq, err)
		}
		if !strings.HasPrefix(raw.Subject, r.filterPrefix) {
			continue
		}
		out = append(out, r.rawToMessage(raw))
	}

	return out, nil
}

// rawToMessage converts a direct stream read into a Message (no lock token).
func (r *receiver) rawToMessage(raw *jetstream.RawStreamMsg) *types.Message {
	headers := flattenHeaders(raw.Header)

	msg := &types.Message{
		ID:               headers[HeaderMessageID],
		Body:             raw.Data,
		Subject:          raw.Subject,
		SequenceNumber:   types.SequenceNumber(raw.Sequence),
		EnqueuedAt:       raw.Time,
		Headers:          headers,
		DeadLetterSource: headers[HeaderDeadLetterSource],
	}

	if id := headers[HeaderSessionID]; id != "" {
		msg.SessionID = id
	} else {
		parts := strings.Split(raw.Subject, ".")
		if len(parts) == 3 && parts[1] == "msg" && parts[2] != defaultSessionToken {
			msg.SessionID = parts[2]
		}
	}

	return msg
}

// Complete acknowledges the locked messages.
func (r *receiver) Complete(ctx context.Context, tokens []types.LockToken) error {
	return r.settle(ctx, tokens, func(_ context.Context, entry *lockEntry) error {
		return entry.msg.Ack()
	})
}

// Abandon releases the locks; the messages become eligible for redelivery.
func (r *receiver) Abandon(ctx context.Context, tokens []types.LockToken) error {
	return r.settle(ctx, tokens, func(_ context.Context, entry *lockEntry) error {
		return entry.msg.Nak()
	})
}

// Defer terminates delivery of the locked messages while leaving them in the
// stream; deferred messages are retrieved via ReceiveBySequenceNumbers.
func (r *receiver) Defer(ctx context.Context, tokens []types.LockToken) error {
	return r.settle(ctx, tokens, func(_ context.Context, entry *lockEntry) error {
		return entry.msg.Term()
	})
}

// DeadLetter publishes an annotated copy of each locked message to the
// subscription's dead-letter subject, then terminates the original delivery.
func (r *receiver) DeadLetter(ctx context.Context, tokens []types.LockToken) error {
	return r.settle(ctx, tokens, func(ctx context.Context, entry *lockEntry) error {
		copyMsg := &nats.Msg{
			Subject: r.dlqSubject,
			Data:    entry.msg.Data(),
			Header:  nats.Header{},
		}
		for key, vals := range entry.msg.Headers() {
			for _, v := range vals {
				copyMsg.Header.Add(key, v)
			}
		}
		copyMsg.Header.Set(HeaderDeadLetterSource, r.params.subscriptionPath)
		copyMsg.Header.Set(HeaderDeadLetterSequence, strconv.FormatUint(uint64(entry.seq), 10))
		if entry.sessionID != "" {
			copyMsg.Header.Set(HeaderSessionID, entry.sessionID)
		}

		if _, err := r.js.PublishMsg(ctx, copyMsg); err != nil {
			return fmt.Errorf("failed to publish dead-letter copy: %w", err)
		}

		return entry.msg.Term()
	})
}

// settle applies one disposition to each token in caller order; the first
// failure aborts the remainder.
//
// In receive-and-delete mode the broker considered the messages consumed on
// delivery, so dispositions succeed as no-ops. An unknown or expired token
// in peek-lock mode fails with ErrLockNotFound.
func (r *receiver) settle(ctx context.Context, tokens []types.LockToken, op func(context.Context, *lockEntry) error) error {
	if r.closed.Load() {
		return ErrReceiverClosed
	}
	if r.params.mode == types.ReceiveModeReceiveAndDelete {
		return nil
	}

	for _, token := range tokens {
		entry, ok := r.locks.LoadAndDelete(token)
		if !ok {
			return fmt.Errorf("%w: token %s", ErrLockNotFound, token)
		}
		if time.Now().After(entry.lockedUntil) {
			return fmt.Errorf("%w: lock expired for token %s", ErrLockNotFound, token)
		}
		if err := op(ctx, entry); err != nil {
			return err
		}
	}

	return nil
}

// RenewLock extends the lock held by token by another AckWait and returns
// the new expiry.
func (r *receiver) RenewLock(_ context.Context, token types.LockToken) (time.Time, error) {
	if r.closed.Load() {
		return time.Time{}, ErrReceiverClosed
	}
	// No locks exist in receive-and-delete mode.
	if r.params.mode == types.ReceiveModeReceiveAndDelete {
		return time.Time{}, fmt.Errorf("%w: no lock in %s mode", ErrLockNotFound, r.params.mode)
	}

	entry, ok := r.locks.Load(token)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: token %s", ErrLockNotFound, token)
	}
	if time.Now().After(entry.lockedUntil) {
		r.locks.Delete(token)
		return time.Time{}, fmt.Errorf("%w: lock expired for token %s", ErrLockNotFound, token)
	}

	if err := entry.msg.InProgress(); err != nil {
		return time.Time{}, fmt.Errorf("failed to renew lock: %w", err)
	}

	until := time.Now().Add(r.cfg.AckWait)
	r.locks.Store(token, &lockEntry{
		msg:         entry.msg,
		seq:         entry.seq,
		sessionID:   entry.sessionID,
		lockedUntil: until,
	})

	return until, nil
}

// PrefetchCount returns the current prefetch window.
func (r *receiver) PrefetchCount() int {
	return int(r.prefetch.Load())
}

// SetPrefetchCount adjusts the prefetch window. Takes effect on the next
// Receive call; already buffered messages are unaffected.
func (r *receiver) SetPrefetchCount(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPrefetchCount, n)
	}
	r.prefetch.Store(int64(n))

	return nil
}

// Close releases the receiver's local resources.
//
// Buffered but undelivered messages are NAKed so they redeliver promptly.
// Outstanding locks are left to expire at their AckWait deadline. The durable
// consumer is NOT deleted - the subscription outlives its receivers.
func (r *receiver) Close(_ context.Context) error {
	if r.closed.Swap(true) {
		return nil
	}

	r.bufMu.Lock()
	buffered := r.buffer
	r.buffer = nil
	r.bufMu.Unlock()

	for _, msg := range buffered {
		if err := msg.Nak(); err != nil {
			r.logger.Debug("failed to nak buffered message on close", "error", err)
		}
	}

	r.locks.Clear()
	r.logger.Debug("receiver closed", "consumer", r.consumerName)

	return nil
}

// flattenHeaders converts NATS multi-value headers to the first-value map
// exposed on Message.
func flattenHeaders(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for key, vals := range h {
		if len(vals) > 0 {
			out[key] = vals[0]
		}
	}

	return out
}
