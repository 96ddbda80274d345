package sublease

// Option configures a Client with optional dependencies.
type Option func(*clientOptions)

// clientOptions holds optional Client configuration.
type clientOptions struct {
	mode     ReceiveMode
	acceptor SessionAcceptor
	hooks    *Hooks
	metrics  MetricsCollector
	logger   Logger
}

// WithReceiveMode sets the receive mode for the client.
//
// The default is ReceiveModePeekLock. The mode is fixed at construction and
// immutable thereafter.
//
// Parameters:
//   - mode: ReceiveModePeekLock or ReceiveModeReceiveAndDelete
//
// Returns:
//   - Option: Functional option for NewClient
//
// Example:
//
//	client, err := sublease.NewClient(conn, "orders", "audit",
//	    sublease.WithReceiveMode(sublease.ReceiveModeReceiveAndDelete))
func WithReceiveMode(mode ReceiveMode) Option {
	return func(o *clientOptions) {
		o.mode = mode
	}
}

// WithSessionAcceptor sets an explicit session-acceptance strategy.
//
// When set, it takes precedence over the capability probe on the connection.
// Without it, the client probes whether the connection implements
// SessionAcceptor; if neither is available, session operations return
// ErrSessionsNotSupported.
//
// Parameters:
//   - acceptor: SessionAcceptor implementation
//
// Returns:
//   - Option: Functional option for NewClient
func WithSessionAcceptor(acceptor SessionAcceptor) Option {
	return func(o *clientOptions) {
		o.acceptor = acceptor
	}
}

// WithHooks sets lifecycle event hooks.
//
// Parameters:
//   - hooks: Hooks structure with callback functions
//
// Returns:
//   - Option: Functional option for NewClient
//
// Example:
//
//	hooks := &sublease.Hooks{
//	    OnClosing: func(ctx context.Context) error {
//	        return releaseFamilyResources(ctx)
//	    },
//	}
//	client, err := sublease.NewClient(conn, "orders", "audit", sublease.WithHooks(hooks))
func WithHooks(hooks *Hooks) Option {
	return func(o *clientOptions) {
		o.hooks = hooks
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for NewClient
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *clientOptions) {
		o.metrics = metrics
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Returns:
//   - Option: Functional option for NewClient
//
// Example:
//
//	logger := zap.NewExample().Sugar()
//	client, err := sublease.NewClient(conn, "orders", "audit", sublease.WithLogger(logger))
func WithLogger(logger Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}
