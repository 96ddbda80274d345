package testing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/sublease/types"
)

// Call records one invocation on a fake collaborator.
//
// Args holds the method-specific arguments: the token slice for disposition
// verbs, the sequence slice for sequence retrieval, the max-message count for
// Receive and Peek, the requested session ID for AcceptSession, and so on.
type Call struct {
	Method string
	Args   []any
}

// journal is the shared mutex-guarded call recorder of the fakes.
type journal struct {
	mu    sync.Mutex
	calls []Call
}

func (j *journal) record(method string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, Call{Method: method, Args: args})
}

// Calls returns a copy of the recorded calls in invocation order.
func (j *journal) Calls() []Call {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Call, len(j.calls))
	copy(out, j.calls)

	return out
}

// Methods returns the recorded method names in invocation order.
func (j *journal) Methods() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.calls))
	for i, c := range j.calls {
		out[i] = c.Method
	}

	return out
}

// FakeReceiver is a recording types.Receiver double.
//
// Every method appends to the call journal and then follows the scripted
// behavior: the optional per-method hook when set, otherwise Err (when set),
// otherwise a benign default. Safe for concurrent use.
type FakeReceiver struct {
	journal

	// Err, when set, is returned by every delegated method.
	Err error

	// ReceiveFunc overrides Receive's scripted result.
	ReceiveFunc func(ctx context.Context, maxMessages int) ([]*types.Message, error)

	// Messages is returned by Receive (and sequence/peek retrieval) when
	// ReceiveFunc and Err are unset.
	Messages []*types.Message

	// RenewUntil is returned by RenewLock on success.
	RenewUntil time.Time

	mu         sync.Mutex
	prefetch   int
	closeCount int
}

var _ types.Receiver = (*FakeReceiver)(nil)

// Receive records the call and returns the scripted messages.
func (f *FakeReceiver) Receive(ctx context.Context, maxMessages int) ([]*types.Message, error) {
	f.record("Receive", maxMessages)
	if f.ReceiveFunc != nil {
		return f.ReceiveFunc(ctx, maxMessages)
	}
	if f.Err != nil {
		return nil, f.Err
	}
	if len(f.Messages) > maxMessages {
		return f.Messages[:maxMessages], nil
	}

	return f.Messages, nil
}

// ReceiveBySequenceNumbers records the call and returns the scripted messages.
func (f *FakeReceiver) ReceiveBySequenceNumbers(_ context.Context, seqs []types.SequenceNumber) ([]*types.Message, error) {
	f.record("ReceiveBySequenceNumbers", seqs)
	if f.Err != nil {
		return nil, f.Err
	}

	return f.Messages, nil
}

// Peek records the call and returns the scripted messages.
func (f *FakeReceiver) Peek(_ context.Context, from types.SequenceNumber, maxMessages int) ([]*types.Message, error) {
	f.record("Peek", from, maxMessages)
	if f.Err != nil {
		return nil, f.Err
	}

	return f.Messages, nil
}

// Complete records the call with its token slice.
func (f *FakeReceiver) Complete(_ context.Context, tokens []types.LockToken) error {
	f.record("Complete", tokens)
	return f.Err
}

// Abandon records the call with its token slice.
func (f *FakeReceiver) Abandon(_ context.Context, tokens []types.LockToken) error {
	f.record("Abandon", tokens)
	return f.Err
}

// Defer records the call with its token slice.
func (f *FakeReceiver) Defer(_ context.Context, tokens []types.LockToken) error {
	f.record("Defer", tokens)
	return f.Err
}

// DeadLetter records the call with its token slice.
func (f *FakeReceiver) DeadLetter(_ context.Context, tokens []types.LockToken) error {
	f.record("DeadLetter", tokens)
	return f.Err
}

// RenewLock records the call and returns RenewUntil.
func (f *FakeReceiver) RenewLock(_ context.Context, token types.LockToken) (time.Time, error) {
	f.record("RenewLock", token)
	if f.Err != nil {
		return time.Time{}, f.Err
	}

	return f.RenewUntil, nil
}

// PrefetchCount records the call and returns the stored value.
func (f *FakeReceiver) PrefetchCount() int {
	f.record("PrefetchCount")
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.prefetch
}

// SetPrefetchCount records the call and stores the value.
func (f *FakeReceiver) SetPrefetchCount(n int) error {
	f.record("SetPrefetchCount", n)
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefetch = n

	return nil
}

// Close records the call and counts invocations.
func (f *FakeReceiver) Close(_ context.Context) error {
	f.record("Close")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCount++

	return f.Err
}

// CloseCount returns how many times Close was called.
func (f *FakeReceiver) CloseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closeCount
}

// FakeConnection is a recording types.Connection double.
//
// CreateReceiver returns the configured Receiver (a fresh FakeReceiver when
// unset). CreateErr, when set, fails the next CreateReceiver call and is
// cleared, so a retry succeeds, matching the no-poisoning contract of lazy
// acquisition. CreateDelay widens the construction race window for
// concurrency tests.
type FakeConnection struct {
	journal

	// Receiver is handed out by CreateReceiver. Lazily set to a new
	// FakeReceiver on first use when nil.
	Receiver types.Receiver

	// CreateErr fails the next CreateReceiver call, then clears itself.
	CreateErr error

	// CreateDelay is slept inside CreateReceiver before returning.
	CreateDelay time.Duration

	mu          sync.Mutex
	createCount int
}

var _ types.Connection = (*FakeConnection)(nil)

// CreateReceiver records the call and returns the configured receiver.
func (f *FakeConnection) CreateReceiver(_ context.Context, subscriptionPath string, mode types.ReceiveMode) (types.Receiver, error) {
	f.record("CreateReceiver", subscriptionPath, mode)

	if f.CreateDelay > 0 {
		time.Sleep(f.CreateDelay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCount++

	if f.CreateErr != nil {
		err := f.CreateErr
		f.CreateErr = nil

		return nil, err
	}
	if f.Receiver == nil {
		f.Receiver = &FakeReceiver{}
	}

	return f.Receiver, nil
}

// CreateCount returns how many times CreateReceiver was called.
func (f *FakeConnection) CreateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.createCount
}

// FakeSession is a recording types.Session double.
type FakeSession struct {
	FakeReceiver
	ID string
}

var _ types.Session = (*FakeSession)(nil)

// SessionID returns the fake session's identifier.
func (f *FakeSession) SessionID() string {
	return f.ID
}

// FakeSessionAcceptor is a recording types.SessionAcceptor double.
//
// AcceptSession returns Session when set, otherwise a FakeSession whose ID is
// the requested session ID (or "assigned-<n>" for next-available requests).
type FakeSessionAcceptor struct {
	journal

	// Session, when set, is returned by every AcceptSession call.
	Session types.Session

	// Err, when set, fails every AcceptSession call.
	Err error

	mu       sync.Mutex
	assigned int
}

var _ types.SessionAcceptor = (*FakeSessionAcceptor)(nil)

// AcceptSession records the call and returns the scripted session.
func (f *FakeSessionAcceptor) AcceptSession(_ context.Context, subscriptionPath, sessionID string, mode types.ReceiveMode) (types.Session, error) {
	f.record("AcceptSession", subscriptionPath, sessionID, mode)
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Session != nil {
		return f.Session, nil
	}

	id := sessionID
	if id == "" {
		f.mu.Lock()
		f.assigned++
		id = fmt.Sprintf("assigned-%d", f.assigned)
		f.mu.Unlock()
	}

	return &FakeSession{ID: id}, nil
}
