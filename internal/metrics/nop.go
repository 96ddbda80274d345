// Package metrics provides metrics collector implementations for the sublease library.
package metrics

import "github.com/arloliu/sublease/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external
// metrics collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Returns:
//   - *NopMetrics: A new no-op metrics collector instance
//
// Example:
//
//	client, err := sublease.NewClient(conn, topic, sub, sublease.WithMetrics(metrics.NewNop()))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// ReceiverMetrics implementation

// RecordReceiverInit discards the receiver construction metric.
func (n *NopMetrics) RecordReceiverInit(_ /* duration */ float64, _ /* success */ bool) {
	// No-op
}

// RecordReceiveBatch discards the receive batch metric.
func (n *NopMetrics) RecordReceiveBatch(_ /* requested */, _ /* returned */ int) {
	// No-op
}

// RecordPrefetchCount discards the prefetch gauge.
func (n *NopMetrics) RecordPrefetchCount(_ /* count */ int) {
	// No-op
}

// DispositionMetrics implementation

// RecordDisposition discards the disposition metric.
func (n *NopMetrics) RecordDisposition(_ /* verb */ string, _ /* tokens */ int, _ /* success */ bool) {
	// No-op
}

// RecordLockRenewal discards the lock renewal metric.
func (n *NopMetrics) RecordLockRenewal(_ /* success */ bool) {
	// No-op
}

// SessionMetrics implementation

// RecordSessionAccept discards the session acceptance metric.
func (n *NopMetrics) RecordSessionAccept(_ /* named */, _ /* success */ bool) {
	// No-op
}
