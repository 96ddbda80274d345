package sublease

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/arloliu/sublease/internal/backoff"
	"github.com/arloliu/sublease/types"
)

// PumpOption configures the message pump started by RegisterMessageHandler.
type PumpOption func(*pumpOptions)

// pumpOptions holds optional message pump configuration.
type pumpOptions struct {
	maxConcurrent     int
	batchSize         int
	manualDisposition bool
	retryBase         time.Duration
	retryCap          time.Duration
	retryMult         float64
	retrySeed         int64
}

func defaultPumpOptions() pumpOptions {
	return pumpOptions{
		maxConcurrent: 1,
		batchSize:     16,
		retryBase:     200 * time.Millisecond,
		retryCap:      5 * time.Second,
		retryMult:     1.6,
	}
}

// PumpMaxConcurrent sets how many handler invocations may run in parallel.
//
// Values below 1 are treated as 1 (strictly ordered dispatch).
func PumpMaxConcurrent(n int) PumpOption {
	return func(o *pumpOptions) {
		if n >= 1 {
			o.maxConcurrent = n
		}
	}
}

// PumpBatchSize sets how many messages the pump requests per Receive call.
func PumpBatchSize(n int) PumpOption {
	return func(o *pumpOptions) {
		if n >= 1 {
			o.batchSize = n
		}
	}
}

// PumpManualDisposition disables automatic settlement.
//
// By default the pump completes a message when the handler returns nil and
// abandons it on error. With manual disposition the handler settles messages
// itself via the client's disposition calls and their lock tokens.
func PumpManualDisposition() PumpOption {
	return func(o *pumpOptions) {
		o.manualDisposition = true
	}
}

// PumpRetryBackoff tunes the decorrelated jitter backoff applied between
// failed Receive calls.
//
// Parameters:
//   - base: Initial delay (default 200ms)
//   - capDur: Maximum delay (default 5s)
//   - mult: Growth multiplier per attempt (default 1.6)
func PumpRetryBackoff(base, capDur time.Duration, mult float64) PumpOption {
	return func(o *pumpOptions) {
		o.retryBase = base
		o.retryCap = capDur
		o.retryMult = mult
	}
}

// PumpRetrySeed fixes the backoff RNG seed for deterministic tests.
// A zero seed (the default) uses the shared process-level PRNG.
func PumpRetrySeed(seed int64) PumpOption {
	return func(o *pumpOptions) {
		o.retrySeed = seed
	}
}

// messagePump is the background receive loop feeding a bounded set of
// concurrent handler invocations.
type messagePump struct {
	client  *Client
	handler types.MessageHandler
	opts    pumpOptions

	cancel context.CancelFunc
	sem    chan struct{}
	wg     sync.WaitGroup
}

// RegisterMessageHandler starts a background message pump that feeds received
// messages to the given handler.
//
// At most one pump may run per client; a second registration returns
// ErrHandlerAlreadyRegistered. The pump stops when the client is closed.
//
// Settlement: when the handler returns nil the pump completes the message;
// on error it abandons it (making it available for redelivery). Both
// automatic paths are skipped for unlocked messages and under
// PumpManualDisposition.
//
// Receive failures do not stop the pump; it retries after a decorrelated
// jitter backoff.
//
// Parameters:
//   - handler: MessageHandler invoked once per message (required)
//   - opts: Optional pump configuration (concurrency, batch size, disposition mode, backoff)
//
// Returns:
//   - error: ErrHandlerRequired, ErrClientClosed, ErrHandlerAlreadyRegistered, or nil
//
// Example:
//
//	err := client.RegisterMessageHandler(
//	    sublease.MessageHandlerFunc(func(ctx context.Context, msg *sublease.Message) error {
//	        return process(msg)
//	    }),
//	    sublease.PumpMaxConcurrent(8),
//	)
func (c *Client) RegisterMessageHandler(handler types.MessageHandler, opts ...PumpOption) error {
	if handler == nil {
		return ErrHandlerRequired
	}
	if c.closed.Load() {
		return ErrClientClosed
	}

	options := defaultPumpOptions()
	for _, opt := range opts {
		opt(&options)
	}

	c.pumpMu.Lock()
	defer c.pumpMu.Unlock()
	if c.pump != nil {
		return ErrHandlerAlreadyRegistered
	}

	ctx, cancel := context.WithCancel(context.Background())
	pump := &messagePump{
		client:  c,
		handler: handler,
		opts:    options,
		cancel:  cancel,
		sem:     make(chan struct{}, options.maxConcurrent),
	}
	c.pump = pump

	pump.wg.Add(1)
	go pump.run(ctx)

	c.logger.Debug("message pump started",
		"maxConcurrent", options.maxConcurrent,
		"batchSize", options.batchSize,
		"manualDisposition", options.manualDisposition,
	)

	return nil
}

// stopPump cancels the pump loop and waits for in-flight handlers to finish.
func (c *Client) stopPump() {
	c.pumpMu.Lock()
	pump := c.pump
	c.pumpMu.Unlock()

	if pump == nil {
		return
	}
	pump.cancel()
	pump.wg.Wait()
}

// run is the pump's receive loop.
func (p *messagePump) run(ctx context.Context) {
	defer p.wg.Done()

	rng := backoff.NewRetryRNG(p.opts.retrySeed)
	var delay time.Duration

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := p.client.Receive(ctx, p.opts.batchSize)
		if err != nil {
			if errors.Is(err, ErrClientClosed) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded) {
				return
			}
			p.client.logger.Warn("pump receive failed, backing off", "error", err)
			delay = backoff.Jitter(delay, p.opts.retryBase, p.opts.retryMult, p.opts.retryCap, rng)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			continue
		}
		delay = 0

		for _, msg := range msgs {
			select {
			case <-ctx.Done():
				return
			case p.sem <- struct{}{}:
			}

			p.wg.Add(1)
			go p.dispatch(ctx, msg)
		}
	}
}

// dispatch invokes the handler for one message and settles it unless manual
// disposition is enabled.
func (p *messagePump) dispatch(ctx context.Context, msg *types.Message) {
	defer p.wg.Done()
	defer func() { <-p.sem }()

	err := p.handler.Handle(ctx, msg)

	if p.opts.manualDisposition || msg.LockToken == "" {
		return
	}

	if err != nil {
		if aerr := p.client.Abandon(ctx, msg.LockToken); aerr != nil {
			p.client.logger.Warn("pump failed to abandon message", "lockToken", msg.LockToken, "error", aerr)
		}

		return
	}
	if cerr := p.client.Complete(ctx, msg.LockToken); cerr != nil {
		p.client.logger.Warn("pump failed to complete message", "lockToken", msg.LockToken, "error", cerr)
	}
}
