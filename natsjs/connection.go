package natsjs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/sublease/internal/backoff"
	"github.com/arloliu/sublease/internal/logger"
	"github.com/arloliu/sublease/types"
)

// Connection implements types.Connection on NATS JetStream.
//
// A Connection may back many clients concurrently. It creates topic streams
// on demand and constructs receivers as durable pull consumers. It also
// implements types.SessionAcceptor, so clients constructed from it support
// session acceptance without extra configuration.
type Connection struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	cfg    Config
	logger types.Logger

	// ownsConn is set when Connect dialed the NATS connection; Close then
	// closes it. Connections wrapped via New stay open.
	ownsConn bool
	closed   atomic.Bool
}

// Compile-time assertions for the collaborator contracts.
var (
	_ types.Connection      = (*Connection)(nil)
	_ types.SessionAcceptor = (*Connection)(nil)
)

// ConnOption configures a Connection.
type ConnOption func(*connOptions)

type connOptions struct {
	logger types.Logger
}

// WithLogger sets the logger used by the connection and the receivers it
// creates. Defaults to a no-op logger.
func WithLogger(l types.Logger) ConnOption {
	return func(o *connOptions) {
		o.logger = l
	}
}

// New wraps an existing NATS connection.
//
// The caller keeps ownership of nc: closing the returned Connection does not
// close it.
//
// Parameters:
//   - nc: Established NATS connection (required)
//   - cfg: Transport configuration; zero fields are filled with defaults
//   - opts: Optional configuration
//
// Returns:
//   - *Connection: The JetStream-backed connection
//   - error: Validation or JetStream initialization error
func New(nc *nats.Conn, cfg Config, opts ...ConnOption) (*Connection, error) {
	if nc == nil {
		return nil, types.ErrConnectionRequired
	}

	return newConnection(nc, cfg, false, opts...)
}

// Connect dials a NATS server and wraps the resulting connection.
//
// The returned Connection owns the dialed NATS connection and closes it in
// Close.
//
// Example:
//
//	conn, err := natsjs.Connect(nats.DefaultURL, natsjs.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer conn.Close(context.Background())
func Connect(url string, cfg Config, opts ...ConnOption) (*Connection, error) {
	ApplyDefaults(&cfg)

	nc, err := nats.Connect(url,
		nats.Timeout(cfg.ConnectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	conn, err := newConnection(nc, cfg, true, opts...)
	if err != nil {
		nc.Close()
		return nil, err
	}

	return conn, nil
}

func newConnection(nc *nats.Conn, cfg Config, ownsConn bool, opts ...ConnOption) (*Connection, error) {
	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid natsjs config: %w", err)
	}

	options := connOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = logger.NewNop()
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &Connection{
		nc:       nc,
		js:       js,
		cfg:      cfg,
		logger:   options.logger,
		ownsConn: ownsConn,
	}, nil
}

// Config returns a copy of the connection's effective configuration.
func (c *Connection) Config() Config {
	return c.cfg
}

// CreateReceiver constructs a receiver for the given subscription path.
//
// The topic's stream is created on demand. A regular path binds a durable
// pull consumer to the topic's message namespace; a dead-letter path
// ("<path>/$DeadLetterQueue") binds it to the subscription's dead-letter
// subject instead.
func (c *Connection) CreateReceiver(ctx context.Context, subscriptionPath string, mode types.ReceiveMode) (types.Receiver, error) {
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

	stream, err := c.ensureStream(ctx, topicPath)
	if err != nil {
		return nil, err
	}

	return c.newReceiver(ctx, stream, receiverParams{
		topicPath:        topicPath,
		subscriptionName: subscriptionName,
		subscriptionPath: subscriptionPath,
		deadLetter:       deadLetter,
		mode:             mode,
	})
}

// Close closes the connection.
//
// When the connection was dialed by Connect, the underlying NATS connection
// is drained and closed; a wrapped connection (New) is left open for its
// owner. Close is idempotent.
func (c *Connection) Close(_ context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}
	if !c.ownsConn {
		return nil
	}

	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}

	return nil
}

// ensureStream creates or opens the topic's stream.
//
// Handles the race where multiple clients create the same stream
// concurrently, retrying with jittered backoff on transient errors.
func (c *Connection) ensureStream(ctx context.Context, topicPath string) (jetstream.Stream, error) {
	name := streamName(topicPath)
	streamCfg := jetstream.StreamConfig{
		Name:     name,
		Subjects: []string{name + ".>"},
		Replicas: c.cfg.StreamReplicas,
		MaxAge:   c.cfg.StreamMaxAge,
	}

	var (
		lastErr error
		delay   time.Duration
	)

	for attempt := 0; attempt < c.cfg.CreateRetries; attempt++ {
		stream, err := c.js.CreateStream(ctx, streamCfg)
		if err == nil {
			return stream, nil
		}

		// Stream already exists (possibly created by a concurrent client
		// with the same config); open it instead.
		if errors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
			stream, err = c.js.Stream(ctx, name)
			if err == nil {
				return stream, nil
			}
			lastErr = fmt.Errorf("stream exists but failed to open: %w", err)
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("context canceled during stream creation: %w", ctx.Err())
		}

		if attempt < c.cfg.CreateRetries-1 {
			delay = backoff.Jitter(delay, c.cfg.RetryBackoff, 2.0, 0, nil)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return nil, fmt.Errorf("failed to create/open stream %s after %d attempts: %w",
		name, c.cfg.CreateRetries, lastErr)
}
