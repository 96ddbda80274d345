package sublease

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/sublease/internal/logger"
	"github.com/arloliu/sublease/internal/metrics"
	"github.com/arloliu/sublease/types"
)

// Client is a facade for consuming one subscription on a topic.
//
// The client owns a single Receiver that is constructed lazily on the first
// operation that needs it, exactly once even under concurrent first access.
// All operations are safe for concurrent use; once the receiver exists they
// run against it without facade-level locking.
//
// Collaborator failures pass through the client unmodified: no wrapping, no
// retries, no logging in error paths. A failed receiver construction is not
// cached; the next call retries it.
type Client struct {
	conn types.Connection

	// ownedConn is set when the client dialed the connection itself
	// (NewClientFromConnectionString); Close then closes the connection too.
	ownedConn interface {
		Close(ctx context.Context) error
	}

	topicPath        string
	subscriptionName string
	subscriptionPath string
	mode             types.ReceiveMode

	acceptor types.SessionAcceptor
	hooks    *types.Hooks
	logger   types.Logger
	metrics  types.MetricsCollector

	// receiver holds the lazily constructed handle; nil until first success.
	receiver atomic.Pointer[receiverRef]

	// initMu serializes receiver construction. It is held across the
	// check-and-set (including the CreateReceiver call that produces the value
	// to set) and never across any post-init operation I/O.
	initMu sync.Mutex

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	pumpMu sync.Mutex
	pump   *messagePump
}

// receiverRef wraps the Receiver interface value for atomic.Pointer storage.
type receiverRef struct {
	r types.Receiver
}

// NewClient creates a client for the given topic subscription.
//
// The subscription path is computed once at construction:
// "<topicPath>/Subscriptions/<subscriptionName>". Construction is cheap and
// performs no I/O; the underlying Receiver is created on first use.
//
// Validation failures are returned synchronously, before any broker resource
// is touched: ErrConnectionRequired, ErrTopicPathRequired,
// ErrSubscriptionNameRequired, ErrInvalidReceiveMode.
//
// Parameters:
//   - conn: Connection used to construct the Receiver (required)
//   - topicPath: Path of the topic (required, non-blank)
//   - subscriptionName: Name of the subscription on the topic (required, non-blank)
//   - opts: Optional configuration (receive mode, logger, metrics, hooks, session acceptor)
//
// Returns:
//   - *Client: The client facade
//   - error: Validation error, or nil
//
// Example:
//
//	client, err := sublease.NewClient(conn, "orders", "audit")
//	if err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
func NewClient(conn types.Connection, topicPath, subscriptionName string, opts ...Option) (*Client, error) {
	return newClient(conn, topicPath, subscriptionName, false, opts...)
}

// NewDeadLetterClient creates a client bound to the dead-letter sub-queue of
// the given subscription.
//
// The resulting client consumes messages previously dead-lettered from
// "<topicPath>/Subscriptions/<subscriptionName>". Dispositions behave as on a
// regular subscription; each received message carries its DeadLetterSource.
func NewDeadLetterClient(conn types.Connection, topicPath, subscriptionName string, opts ...Option) (*Client, error) {
	return newClient(conn, topicPath, subscriptionName, true, opts...)
}

func newClient(conn types.Connection, topicPath, subscriptionName string, deadLetter bool, opts ...Option) (*Client, error) {
	if conn == nil {
		return nil, ErrConnectionRequired
	}
	if strings.TrimSpace(topicPath) == "" {
		return nil, ErrTopicPathRequired
	}
	if strings.TrimSpace(subscriptionName) == "" {
		return nil, ErrSubscriptionNameRequired
	}

	options := clientOptions{
		mode: types.ReceiveModePeekLock,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.mode.Valid() {
		return nil, ErrInvalidReceiveMode
	}
	if options.logger == nil {
		options.logger = logger.NewNop()
	}
	if options.metrics == nil {
		options.metrics = metrics.NewNop()
	}
	if options.hooks == nil {
		options.hooks = &types.Hooks{}
	}

	subscriptionPath := types.FormatSubscriptionPath(topicPath, subscriptionName)
	if deadLetter {
		subscriptionPath = types.FormatDeadLetterPath(subscriptionPath)
	}

	// Session acceptance strategy: explicit option wins, otherwise probe the
	// connection for the capability. Absence is detected per-call, not here.
	acceptor := options.acceptor
	if acceptor == nil {
		if sa, ok := conn.(types.SessionAcceptor); ok {
			acceptor = sa
		}
	}

	return &Client{
		conn:             conn,
		topicPath:        topicPath,
		subscriptionName: subscriptionName,
		subscriptionPath: subscriptionPath,
		mode:             options.mode,
		acceptor:         acceptor,
		hooks:            options.hooks,
		logger:           options.logger,
		metrics:          options.metrics,
	}, nil
}

// TopicPath returns the topic path the client was constructed with.
func (c *Client) TopicPath() string {
	return c.topicPath
}

// SubscriptionName returns the subscription name the client was constructed with.
func (c *Client) SubscriptionName() string {
	return c.subscriptionName
}

// SubscriptionPath returns the canonical subscription path computed at
// construction time.
func (c *Client) SubscriptionPath() string {
	return c.subscriptionPath
}

// ReceiveMode returns the receive mode fixed at construction time.
func (c *Client) ReceiveMode() types.ReceiveMode {
	return c.mode
}

// getReceiver returns the lazily constructed Receiver, creating it on first
// call.
//
// Check-lock-check: the uncontended fast path is a single atomic load. On a
// miss, callers race into initMu, re-check under the lock, and only the first
// one constructs. A construction failure leaves the cache empty so a later
// call retries; the error is surfaced unmodified to the caller that
// triggered it.
func (c *Client) getReceiver(ctx context.Context) (types.Receiver, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if ref := c.receiver.Load(); ref != nil {
		return ref.r, nil
	}

	c.initMu.Lock()
	defer c.initMu.Unlock()

	// Re-check: another caller may have finished construction, or Close may
	// have raced in, while we waited for the lock.
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if ref := c.receiver.Load(); ref != nil {
		return ref.r, nil
	}

	start := time.Now()
	recv, err := c.conn.CreateReceiver(ctx, c.subscriptionPath, c.mode)
	c.metrics.RecordReceiverInit(time.Since(start).Seconds(), err == nil)
	if err != nil {
		return nil, err
	}

	c.receiver.Store(&receiverRef{r: recv})
	c.logger.Debug("receiver created", "subscriptionPath", c.subscriptionPath, "mode", c.mode.String())
	c.runHook(ctx, "OnReceiverCreated", c.hooks.OnReceiverCreated)

	return recv, nil
}

// Receive fetches up to maxMessages messages from the subscription.
//
// Triggers lazy receiver construction on first use. Fewer messages (possibly
// none) are returned when the subscription has no more available within the
// receiver's wait window.
func (c *Client) Receive(ctx context.Context, maxMessages int) ([]*types.Message, error) {
	recv, err := c.getReceiver(ctx)
	if err != nil {
		return nil, err
	}

	msgs, err := recv.Receive(ctx, maxMessages)
	if err != nil {
		return nil, err
	}
	c.metrics.RecordReceiveBatch(maxMessages, len(msgs))

	return msgs, nil
}

// ReceiveOne fetches a single message, or (nil, nil) when none is available.
//
// Defined as Receive(ctx, 1) returning the first element; the single and
// batch receive paths share one code path and cannot diverge.
func (c *Client) ReceiveOne(ctx context.Context) (*types.Message, error) {
	msgs, err := c.Receive(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	return msgs[0], nil
}

// ReceiveBySequenceNumbers re-fetches specific messages by broker sequence
// number, independent of lock state.
//
// The slice may be empty (a legal no-op forwarded to the receiver). Messages
// are returned in the order the receiver produces them, which is not
// necessarily the request order; no correspondence between requested and
// returned messages is validated at this layer.
func (c *Client) ReceiveBySequenceNumbers(ctx context.Context, seqs []types.SequenceNumber) ([]*types.Message, error) {
	recv, err := c.getReceiver(ctx)
	if err != nil {
		return nil, err
	}

	return recv.ReceiveBySequenceNumbers(ctx, seqs)
}

// ReceiveBySequenceNumber re-fetches a single message by sequence number, or
// (nil, nil) when the sequence is no longer present.
//
// Defined as the one-element form of ReceiveBySequenceNumbers.
func (c *Client) ReceiveBySequenceNumber(ctx context.Context, seq types.SequenceNumber) (*types.Message, error) {
	msgs, err := c.ReceiveBySequenceNumbers(ctx, []types.SequenceNumber{seq})
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	return msgs[0], nil
}

// Peek browses up to maxMessages messages without locking or consuming them,
// starting at the given sequence number (0 means the start of the stream).
func (c *Client) Peek(ctx context.Context, from types.SequenceNumber, maxMessages int) ([]*types.Message, error) {
	recv, err := c.getReceiver(ctx)
	if err != nil {
		return nil, err
	}

	return recv.Peek(ctx, from, maxMessages)
}

// CompleteBatch settles the given locked messages as successfully processed.
//
// The token slice may be empty (forwarded as a no-op) and is passed to the
// receiver in caller order. Receiver failures propagate unchanged.
func (c *Client) CompleteBatch(ctx context.Context, tokens []types.LockToken) error {
	return c.dispose(ctx, "complete", types.Receiver.Complete, tokens)
}

// Complete settles a single locked message as successfully processed.
//
// Defined as CompleteBatch with a one-element token slice.
func (c *Client) Complete(ctx context.Context, token types.LockToken) error {
	return c.CompleteBatch(ctx, []types.LockToken{token})
}

// AbandonBatch releases the locks on the given messages, making them
// available for redelivery.
func (c *Client) AbandonBatch(ctx context.Context, tokens []types.LockToken) error {
	return c.dispose(ctx, "abandon", types.Receiver.Abandon, tokens)
}

// Abandon releases the lock on a single message.
//
// Defined as AbandonBatch with a one-element token slice.
func (c *Client) Abandon(ctx context.Context, token types.LockToken) error {
	return c.AbandonBatch(ctx, []types.LockToken{token})
}

// DeferBatch sets the given messages aside; deferred messages are retrieved
// only via ReceiveBySequenceNumbers.
func (c *Client) DeferBatch(ctx context.Context, tokens []types.LockToken) error {
	return c.dispose(ctx, "defer", types.Receiver.Defer, tokens)
}

// Defer sets a single message aside.
//
// Defined as DeferBatch with a one-element token slice.
func (c *Client) Defer(ctx context.Context, token types.LockToken) error {
	return c.DeferBatch(ctx, []types.LockToken{token})
}

// DeadLetterBatch moves the given messages to the subscription's dead-letter
// sub-queue.
func (c *Client) DeadLetterBatch(ctx context.Context, tokens []types.LockToken) error {
	return c.dispose(ctx, "dead_letter", types.Receiver.DeadLetter, tokens)
}

// DeadLetter moves a single message to the dead-letter sub-queue.
//
// Defined as DeadLetterBatch with a one-element token slice.
func (c *Client) DeadLetter(ctx context.Context, token types.LockToken) error {
	return c.DeadLetterBatch(ctx, []types.LockToken{token})
}

// dispose is the shared batch disposition path for all four verbs.
//
// Dispositions are forwarded even in ReceiveModeReceiveAndDelete, where they
// are broker-side no-ops; whether to reject them locally is a receiver
// decision, not a facade one.
func (c *Client) dispose(
	ctx context.Context,
	verb string,
	op func(types.Receiver, context.Context, []types.LockToken) error,
	tokens []types.LockToken,
) error {
	recv, err := c.getReceiver(ctx)
	if err != nil {
		return err
	}

	err = op(recv, ctx, tokens)
	c.metrics.RecordDisposition(verb, len(tokens), err == nil)

	return err
}

// RenewLock extends the lock held by token and returns the new expiry.
//
// There is intentionally no batch variant of this verb; the broker protocol
// renews one lock per call.
func (c *Client) RenewLock(ctx context.Context, token types.LockToken) (time.Time, error) {
	recv, err := c.getReceiver(ctx)
	if err != nil {
		return time.Time{}, err
	}

	until, err := recv.RenewLock(ctx, token)
	c.metrics.RecordLockRenewal(err == nil)

	return until, err
}

// AcceptSession locks the session identified by sessionID on this
// subscription for ordered, exclusive consumption. An empty sessionID
// requests the next available session.
//
// The session-acceptance strategy is resolved at construction time: an
// explicit WithSessionAcceptor option, otherwise the connection's
// SessionAcceptor capability. Returns ErrSessionsNotSupported when neither
// is available.
func (c *Client) AcceptSession(ctx context.Context, sessionID string) (types.Session, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if c.acceptor == nil {
		return nil, ErrSessionsNotSupported
	}

	session, err := c.acceptor.AcceptSession(ctx, c.subscriptionPath, sessionID, c.mode)
	c.metrics.RecordSessionAccept(sessionID != "", err == nil)

	return session, err
}

// AcceptNextSession locks the next available session on this subscription.
//
// Defined as AcceptSession with an empty session ID.
func (c *Client) AcceptNextSession(ctx context.Context) (types.Session, error) {
	return c.AcceptSession(ctx, "")
}

// PrefetchCount returns the receiver's prefetch window.
//
// Reading the property forces lazy receiver construction; the getter is not
// side-effect-free.
func (c *Client) PrefetchCount(ctx context.Context) (int, error) {
	recv, err := c.getReceiver(ctx)
	if err != nil {
		return 0, err
	}

	count := recv.PrefetchCount()
	c.metrics.RecordPrefetchCount(count)

	return count, nil
}

// SetPrefetchCount adjusts the receiver's prefetch window.
//
// Writing the property forces lazy receiver construction.
func (c *Client) SetPrefetchCount(ctx context.Context, n int) error {
	recv, err := c.getReceiver(ctx)
	if err != nil {
		return err
	}
	if err := recv.SetPrefetchCount(n); err != nil {
		return err
	}
	c.metrics.RecordPrefetchCount(n)

	return nil
}

// AddRule installs a named subject filter on the subscription.
//
// Forces lazy receiver construction. Returns ErrRulesNotSupported when the
// receiver does not implement RuleManager.
func (c *Client) AddRule(ctx context.Context, name, subjectFilter string) error {
	rm, err := c.ruleManager(ctx)
	if err != nil {
		return err
	}

	return rm.AddRule(ctx, name, subjectFilter)
}

// RemoveRule removes a previously installed rule by name.
func (c *Client) RemoveRule(ctx context.Context, name string) error {
	rm, err := c.ruleManager(ctx)
	if err != nil {
		return err
	}

	return rm.RemoveRule(ctx, name)
}

// Rules lists the rules currently applied to the subscription.
func (c *Client) Rules(ctx context.Context) ([]types.Rule, error) {
	rm, err := c.ruleManager(ctx)
	if err != nil {
		return nil, err
	}

	return rm.Rules(ctx)
}

func (c *Client) ruleManager(ctx context.Context) (types.RuleManager, error) {
	recv, err := c.getReceiver(ctx)
	if err != nil {
		return nil, err
	}
	rm, ok := recv.(types.RuleManager)
	if !ok {
		return nil, ErrRulesNotSupported
	}

	return rm, nil
}

// Close shuts the client down.
//
// The first call stops the message pump (if registered), runs the OnClosing
// hook exactly once, closes the receiver only if one was constructed, and
// closes an owned connection. Closing a client whose receiver was never built
// is a no-op at the receiver layer. Close is idempotent-safe: subsequent
// calls return the first call's result, and all other operations return
// ErrClientClosed.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.logger.Debug("closing client", "subscriptionPath", c.subscriptionPath)

		c.stopPump()
		c.runHook(ctx, "OnClosing", c.hooks.OnClosing)

		// Serialize with any in-flight lazy construction so we never leak a
		// receiver built after the closed flag was set.
		c.initMu.Lock()
		ref := c.receiver.Load()
		c.initMu.Unlock()

		if ref != nil {
			if err := ref.r.Close(ctx); err != nil {
				c.closeErr = err
			}
		}
		if c.ownedConn != nil {
			if err := c.ownedConn.Close(ctx); err != nil && c.closeErr == nil {
				c.closeErr = err
			}
		}
	})

	return c.closeErr
}

// runHook invokes an optional lifecycle hook. Hook failures never fail the
// triggering client call; they are routed to OnError when set.
func (c *Client) runHook(ctx context.Context, name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}
	if err := fn(ctx); err != nil {
		c.logger.Warn("lifecycle hook failed", "hook", name, "error", err)
		if c.hooks.OnError != nil {
			c.hooks.OnError(ctx, err)
		}
	}
}
