package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// All methods may be called from concurrent application goroutines and must
// be thread-safe.
//
// This interface composes smaller, domain-focused interfaces for better modularity.
type MetricsCollector interface {
	ReceiverMetrics
	DispositionMetrics
	SessionMetrics
}

// ReceiverMetrics defines metrics for receiver lifecycle and retrieval.
type ReceiverMetrics interface {
	// RecordReceiverInit records a lazy receiver construction attempt.
	//
	// Parameters:
	//   - duration: Construction time in seconds
	//   - success: true if the receiver was constructed, false on failure
	RecordReceiverInit(duration float64, success bool)

	// RecordReceiveBatch records a completed Receive call.
	//
	// Parameters:
	//   - requested: Maximum messages asked for
	//   - returned: Messages actually delivered
	RecordReceiveBatch(requested, returned int)

	// RecordPrefetchCount sets the current prefetch window (gauge metric).
	RecordPrefetchCount(count int)
}

// DispositionMetrics defines metrics for message settlement.
type DispositionMetrics interface {
	// RecordDisposition records a batch disposition call.
	//
	// Parameters:
	//   - verb: Disposition verb ("complete", "abandon", "defer", "dead_letter")
	//   - tokens: Number of lock tokens in the batch
	//   - success: true if the receiver accepted the batch
	RecordDisposition(verb string, tokens int, success bool)

	// RecordLockRenewal records a lock renewal attempt.
	RecordLockRenewal(success bool)
}

// SessionMetrics defines metrics for session acceptance.
type SessionMetrics interface {
	// RecordSessionAccept records a session acceptance attempt.
	//
	// Parameters:
	//   - named: true when a specific session ID was requested
	//   - success: true if a session was accepted
	RecordSessionAccept(named, success bool)
}
