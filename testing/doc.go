// Package testing provides test utilities for the sublease library.
//
// This package offers helpers for setting up test environments, particularly
// embedded NATS servers for integration testing, plus recording fakes for the
// collaborator contracts. It follows Go's convention of providing testing
// utilities in a dedicated package (similar to net/http/httptest).
//
// Key utilities:
//   - StartEmbeddedNATS: Single NATS server with JetStream
//   - CreateTestStream / PublishTestMessages: Topic setup helpers
//   - FakeConnection / FakeReceiver / FakeSessionAcceptor: Recording doubles
//   - NewTestLogger: testing.T-backed Logger
//
// Example usage:
//
//	import (
//	    "testing"
//	    sltest "github.com/arloliu/sublease/testing"
//	)
//
//	func TestMyComponent(t *testing.T) {
//	    _, nc := sltest.StartEmbeddedNATS(t)
//	    // Use nc for your tests
//	}
package testing
