package sublease

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/sublease/internal/logger"
	sltest "github.com/arloliu/sublease/testing"
	"github.com/arloliu/sublease/types"
)

func TestNewClient_Validation(t *testing.T) {
	conn := &sltest.FakeConnection{}

	t.Run("nil connection", func(t *testing.T) {
		_, err := NewClient(nil, "orders", "audit")
		require.ErrorIs(t, err, ErrConnectionRequired)
	})

	t.Run("blank topic path", func(t *testing.T) {
		_, err := NewClient(conn, "   ", "audit")
		require.ErrorIs(t, err, ErrTopicPathRequired)

		_, err = NewClient(conn, "", "audit")
		require.ErrorIs(t, err, ErrTopicPathRequired)
	})

	t.Run("blank subscription name", func(t *testing.T) {
		_, err := NewClient(conn, "orders", " ")
		require.ErrorIs(t, err, ErrSubscriptionNameRequired)
	})

	t.Run("invalid receive mode", func(t *testing.T) {
		_, err := NewClient(conn, "orders", "audit", WithReceiveMode(ReceiveMode(42)))
		require.ErrorIs(t, err, ErrInvalidReceiveMode)
	})

	t.Run("no receiver constructed at build time", func(t *testing.T) {
		_, err := NewClient(conn, "orders", "audit")
		require.NoError(t, err)
		require.Equal(t, 0, conn.CreateCount())
	})
}

func TestNewClient_Identity(t *testing.T) {
	conn := &sltest.FakeConnection{}

	client, err := NewClient(conn, "orders", "audit")
	require.NoError(t, err)

	require.Equal(t, "orders", client.TopicPath())
	require.Equal(t, "audit", client.SubscriptionName())
	require.Equal(t, "orders/Subscriptions/audit", client.SubscriptionPath())
	require.Equal(t, ReceiveModePeekLock, client.ReceiveMode())

	deleting, err := NewClient(conn, "orders", "audit", WithReceiveMode(ReceiveModeReceiveAndDelete))
	require.NoError(t, err)
	require.Equal(t, ReceiveModeReceiveAndDelete, deleting.ReceiveMode())
}

func TestNewDeadLetterClient_Path(t *testing.T) {
	conn := &sltest.FakeConnection{}

	client, err := NewDeadLetterClient(conn, "orders", "audit")
	require.NoError(t, err)
	require.Equal(t, "orders/Subscriptions/audit/$DeadLetterQueue", client.SubscriptionPath())
}

func TestClient_LazyReceiver_ExactlyOnceUnderConcurrency(t *testing.T) {
	ctx := t.Context()
	conn := &sltest.FakeConnection{CreateDelay: 10 * time.Millisecond}

	client, err := NewClient(conn, "orders", "audit", WithLogger(logger.NewTest(t)))
	require.NoError(t, err)

	const callers = 50
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := range callers {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = client.PrefetchCount(ctx)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, conn.CreateCount(), "receiver must be constructed exactly once")

	// The construction call carries the computed path and mode.
	calls := conn.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "CreateReceiver", calls[0].Method)
	require.Equal(t, "orders/Subscriptions/audit", calls[0].Args[0])
	require.Equal(t, ReceiveModePeekLock, calls[0].Args[1])
}

func TestClient_LazyReceiver_FailureRetries(t *testing.T) {
	ctx := t.Context()
	boom := errors.New("handshake failed")
	conn := &sltest.FakeConnection{CreateErr: boom}

	client, err := NewClient(conn, "orders", "audit")
	require.NoError(t, err)

	// First call surfaces the exact construction error.
	_, err = client.Receive(ctx, 5)
	require.ErrorIs(t, err, boom)
	require.Equal(t, boom, err, "construction failure must pass through unmodified")
	require.Equal(t, 1, conn.CreateCount())

	// Cache stayed empty: the second call retries construction and succeeds.
	_, err = client.Receive(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, 2, conn.CreateCount())
}

// dispositionVerbs ties each verb's single and batch form together for the
// expansion tests.
func dispositionVerbs(client *Client) []struct {
	name   string
	single func(context.Context, types.LockToken) error
	batch  func(context.Context, []types.LockToken) error
} {
	return []struct {
		name   string
		single func(context.Context, types.LockToken) error
		batch  func(context.Context, []types.LockToken) error
	}{
		{"Complete", client.Complete, client.CompleteBatch},
		{"Abandon", client.Abandon, client.AbandonBatch},
		{"Defer", client.Defer, client.DeferBatch},
		{"DeadLetter", client.DeadLetter, client.DeadLetterBatch},
	}
}

func TestClient_SingleIsOneElementBatch(t *testing.T) {
	ctx := t.Context()
	recv := &sltest.FakeReceiver{}
	conn := &sltest.FakeConnection{Receiver: recv}

	client, err := NewClient(conn, "orders", "audit")
	require.NoError(t, err)

	for _, verb := range dispositionVerbs(client) {
		t.Run(verb.name, func(t *testing.T) {
			before := len(recv.Calls())

			require.NoError(t, verb.single(ctx, types.LockToken("tok-1")))

			calls := recv.Calls()[before:]
			require.Len(t, calls, 1)
			require.Equal(t, verb.name, calls[0].Method)
			require.Equal(t, []types.LockToken{"tok-1"}, calls[0].Args[0])
		})
	}
}

func TestClient_BatchPreservesOrderAndForwardsEmpty(t *testing.T) {
	ctx := t.Context()
	recv := &sltest.FakeReceiver{}
	conn := &sltest.FakeConnection{Receiver: recv}

	client, err := NewClient(conn, "orders", "audit")
	require.NoError(t, err)

	tokens := []types.LockToken{"c", "a", "b"}

	for _, verb := range dispositionVerbs(client) {
		t.Run(verb.name, func(t *testing.T) {
			before := len(recv.Calls())

			// Caller order is preserved, not sorted or deduplicated.
			require.NoError(t, verb.batch(ctx, tokens))
			// An empty batch is a legal no-op forwarded to the receiver.
			require.NoError(t, verb.batch(ctx, []types.LockToken{}))
			// A nil batch is forwarded the same way.
			require.NoError(t, verb.batch(ctx, nil))

			calls := recv.Calls()[before:]
			require.Len(t, calls, 3)
			require.Equal(t, tokens, calls[0].Args[0])
			require.Empty(t, calls[1].Args[0])
			require.Empty(t, calls[2].Args[0])
		})
	}
}

func TestClient_SingleSequenceEqualsBatchTokenOrder(t *testing.T) {
	ctx := t.Context()
	tokens := []types.LockToken{"t1", "t2", "t3"}

	batchRecv := &sltest.FakeReceiver{}
	batchClient, err := NewClient(&sltest.FakeConnection{Receiver: batchRecv}, "orders", "audit")
	require.NoError(t, err)
	require.NoError(t, batchClient.CompleteBatch(ctx, tokens))

	singleRecv := &sltest.FakeReceiver{}
	singleClient, err := NewClient(&sltest.FakeConnection{Receiver: singleRecv}, "orders", "audit")
	require.NoError(t, err)
	for _, token := range tokens {
		require.NoError(t, singleClient.Complete(ctx, token))
	}

	// Flattened token order seen by the receiver is identical either way.
	flatten := func(calls []sltest.Call) []types.LockToken {
		var out []types.LockToken
		for _, c := range calls {
			require.Equal(t, "Complete", c.Method)
			out = append(out, c.Args[0].([]types.LockToken)...)
		}

		return out
	}
	require.Equal(t, flatten(batchRecv.Calls()), flatten(singleRecv.Calls()))
}

func TestClient_ReceiveOne(t *testing.T) {
	ctx := t.Context()

	t.Run("returns first of Receive(1)", func(t *testing.T) {
		first := &types.Message{ID: "m1"}
		recv := &sltest.FakeReceiver{Messages: []*types.Message{first, {ID: "m2"}}}
		client, err := NewClient(&sltest.FakeConnection{Receiver: recv}, "orders", "audit")
		require.NoError(t, err)

		msg, err := client.ReceiveOne(ctx)
		require.NoError(t, err)
		require.Same(t, first, msg)

		calls := recv.Calls()
		require.Len(t, calls, 1)
		require.Equal(t, "Receive", calls[0].Method)
		require.Equal(t, 1, calls[0].Args[0])
	})

	t.Run("absent when empty", func(t *testing.T) {
		recv := &sltest.FakeReceiver{}
		client, err := NewClient(&sltest.FakeConnection{Receiver: recv}, "orders", "audit")
		require.NoError(t, err)

		msg, err := client.ReceiveOne(ctx)
		require.NoError(t, err)
		require.Nil(t, msg)
	})
}

func TestClient_ReceiveBySequenceNumbers(t *testing.T) {
	ctx := t.Context()
	// Receiver order is returned as-is; no correspondence validation.
	returned := []*types.Message{{SequenceNumber: 9}, {SequenceNumber: 3}}
	recv := &sltest.FakeReceiver{Messages: returned}
	client, err := NewClient(&sltest.FakeConnection{Receiver: recv}, "orders", "audit")
	require.NoError(t, err)

	seqs := []types.SequenceNumber{3, 9, 12}
	msgs, err := client.ReceiveBySequenceNumbers(ctx, seqs)
	require.NoError(t, err)
	require.Equal(t, returned, msgs)

	calls := recv.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "ReceiveBySequenceNumbers", calls[0].Method)
	require.Equal(t, seqs, calls[0].Args[0])

	// Single form wraps into a one-element slice and takes the first result.
	msg, err := client.ReceiveBySequenceNumber(ctx, 9)
	require.NoError(t, err)
	require.Same(t, returned[0], msg)
	require.Equal(t, []types.SequenceNumber{9}, recv.Calls()[1].Args[0])

	// Absent when the sequence is no longer retained.
	recv.Messages = nil
	msg, err = client.ReceiveBySequenceNumber(ctx, 77)
	require.NoError(t, err)
	require.Nil(t, msg)
}

func TestClient_AcceptSession(t *testing.T) {
	ctx := t.Context()

	t.Run("explicit acceptor forwards ID unchanged", func(t *testing.T) {
		acceptor := &sltest.FakeSessionAcceptor{}
		client, err := NewClient(&sltest.FakeConnection{}, "orders", "audit",
			WithSessionAcceptor(acceptor))
		require.NoError(t, err)

		session, err := client.AcceptSession(ctx, "S")
		require.NoError(t, err)
		require.Equal(t, "S", session.SessionID())

		calls := acceptor.Calls()
		require.Len(t, calls, 1)
		require.Equal(t, "orders/Subscriptions/audit", calls[0].Args[0])
		require.Equal(t, "S", calls[0].Args[1])
		require.Equal(t, ReceiveModePeekLock, calls[0].Args[2])
	})

	t.Run("next-available equals empty ID", func(t *testing.T) {
		acceptor := &sltest.FakeSessionAcceptor{}
		client, err := NewClient(&sltest.FakeConnection{}, "orders", "audit",
			WithSessionAcceptor(acceptor))
		require.NoError(t, err)

		_, err = client.AcceptNextSession(ctx)
		require.NoError(t, err)
		_, err = client.AcceptSession(ctx, "")
		require.NoError(t, err)

		calls := acceptor.Calls()
		require.Len(t, calls, 2)
		require.Equal(t, calls[0].Args, calls[1].Args, "AcceptNextSession must forward identically to AcceptSession(\"\")")
	})

	t.Run("acceptor failure passes through unmodified", func(t *testing.T) {
		boom := errors.New("session rejected")
		acceptor := &sltest.FakeSessionAcceptor{Err: boom}
		client, err := NewClient(&sltest.FakeConnection{}, "orders", "audit",
			WithSessionAcceptor(acceptor))
		require.NoError(t, err)

		_, err = client.AcceptSession(ctx, "S")
		require.Equal(t, boom, err)
	})

	t.Run("no acceptor and no capability", func(t *testing.T) {
		client, err := NewClient(&sltest.FakeConnection{}, "orders", "audit")
		require.NoError(t, err)

		_, err = client.AcceptSession(ctx, "S")
		require.ErrorIs(t, err, ErrSessionsNotSupported)
	})

	t.Run("does not construct the receiver", func(t *testing.T) {
		conn := &sltest.FakeConnection{}
		client, err := NewClient(conn, "orders", "audit",
			WithSessionAcceptor(&sltest.FakeSessionAcceptor{}))
		require.NoError(t, err)

		_, err = client.AcceptNextSession(ctx)
		require.NoError(t, err)
		require.Equal(t, 0, conn.CreateCount())
	})
}

// sessionCapableConn is a connection that also implements SessionAcceptor,
// for the capability-probe path.
type sessionCapableConn struct {
	sltest.FakeConnection
	acceptor sltest.FakeSessionAcceptor
}

func (c *sessionCapableConn) AcceptSession(ctx context.Context, subscriptionPath, sessionID string, mode types.ReceiveMode) (types.Session, error) {
	return c.acceptor.AcceptSession(ctx, subscriptionPath, sessionID, mode)
}

func TestClient_SessionCapabilityProbe(t *testing.T) {
	ctx := t.Context()
	conn := &sessionCapableConn{}

	client, err := NewClient(conn, "orders", "audit")
	require.NoError(t, err)

	session, err := client.AcceptSession(ctx, "S")
	require.NoError(t, err)
	require.Equal(t, "S", session.SessionID())
	require.Len(t, conn.acceptor.Calls(), 1)

	// An explicit acceptor takes precedence over the probe.
	explicit := &sltest.FakeSessionAcceptor{}
	client2, err := NewClient(conn, "orders", "audit", WithSessionAcceptor(explicit))
	require.NoError(t, err)

	_, err = client2.AcceptSession(ctx, "S2")
	require.NoError(t, err)
	require.Len(t, explicit.Calls(), 1)
	require.Len(t, conn.acceptor.Calls(), 1, "probed acceptor must not receive the call")
}

func TestClient_RenewLock(t *testing.T) {
	ctx := t.Context()
	until := time.Now().Add(30 * time.Second)
	recv := &sltest.FakeReceiver{RenewUntil: until}
	client, err := NewClient(&sltest.FakeConnection{Receiver: recv}, "orders", "audit")
	require.NoError(t, err)

	got, err := client.RenewLock(ctx, "tok-9")
	require.NoError(t, err)
	require.Equal(t, until, got)

	calls := recv.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "RenewLock", calls[0].Method)
	require.Equal(t, types.LockToken("tok-9"), calls[0].Args[0])
}

func TestClient_Prefetch_ForcesConstruction(t *testing.T) {
	ctx := t.Context()

	t.Run("getter", func(t *testing.T) {
		conn := &sltest.FakeConnection{}
		client, err := NewClient(conn, "orders", "audit")
		require.NoError(t, err)

		_, err = client.PrefetchCount(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, conn.CreateCount())
	})

	t.Run("setter", func(t *testing.T) {
		conn := &sltest.FakeConnection{}
		client, err := NewClient(conn, "orders", "audit")
		require.NoError(t, err)

		require.NoError(t, client.SetPrefetchCount(ctx, 32))
		require.Equal(t, 1, conn.CreateCount())

		n, err := client.PrefetchCount(ctx)
		require.NoError(t, err)
		require.Equal(t, 32, n)
		require.Equal(t, 1, conn.CreateCount(), "second property access reuses the receiver")
	})
}

func TestClient_ErrorPassthrough(t *testing.T) {
	ctx := t.Context()
	boom := errors.New("broker rejected operation")
	recv := &sltest.FakeReceiver{Err: boom}
	client, err := NewClient(&sltest.FakeConnection{Receiver: recv}, "orders", "audit")
	require.NoError(t, err)

	_, err = client.Receive(ctx, 3)
	require.Equal(t, boom, err)

	require.Equal(t, boom, client.CompleteBatch(ctx, []types.LockToken{"t"}))
	require.Equal(t, boom, client.Abandon(ctx, "t"))
	require.Equal(t, boom, client.DeferBatch(ctx, nil))
	require.Equal(t, boom, client.DeadLetter(ctx, "t"))

	_, err = client.RenewLock(ctx, "t")
	require.Equal(t, boom, err)

	_, err = client.ReceiveBySequenceNumbers(ctx, []types.SequenceNumber{1})
	require.Equal(t, boom, err)
}

func TestClient_RulesNotSupported(t *testing.T) {
	ctx := t.Context()
	client, err := NewClient(&sltest.FakeConnection{}, "orders", "audit")
	require.NoError(t, err)

	require.ErrorIs(t, client.AddRule(ctx, "r", "vip.>"), ErrRulesNotSupported)
	require.ErrorIs(t, client.RemoveRule(ctx, "r"), ErrRulesNotSupported)

	_, err = client.Rules(ctx)
	require.ErrorIs(t, err, ErrRulesNotSupported)
}

// ruleCapableReceiver adds RuleManager to the fake receiver.
type ruleCapableReceiver struct {
	sltest.FakeReceiver
	rules []types.Rule
}

func (r *ruleCapableReceiver) AddRule(_ context.Context, name, subjectFilter string) error {
	r.rules = append(r.rules, types.Rule{Name: name, SubjectFilter: subjectFilter})
	return nil
}

func (r *ruleCapableReceiver) RemoveRule(_ context.Context, name string) error {
	for i, rule := range r.rules {
		if rule.Name == name {
			r.rules = append(r.rules[:i], r.rules[i+1:]...)
			return nil
		}
	}

	return errors.New("rule not found")
}

func (r *ruleCapableReceiver) Rules(_ context.Context) ([]types.Rule, error) {
	return r.rules, nil
}

func TestClient_RulesForwarding(t *testing.T) {
	ctx := t.Context()
	recv := &ruleCapableReceiver{}
	client, err := NewClient(&sltest.FakeConnection{Receiver: recv}, "orders", "audit")
	require.NoError(t, err)

	require.NoError(t, client.AddRule(ctx, "vip", "vip.>"))

	rules, err := client.Rules(ctx)
	require.NoError(t, err)
	require.Equal(t, []types.Rule{{Name: "vip", SubjectFilter: "vip.>"}}, rules)

	require.NoError(t, client.RemoveRule(ctx, "vip"))
	rules, err = client.Rules(ctx)
	require.NoError(t, err)
	require.Empty(t, rules)
}

func TestClient_Close(t *testing.T) {
	ctx := t.Context()

	t.Run("before any operation", func(t *testing.T) {
		recv := &sltest.FakeReceiver{}
		conn := &sltest.FakeConnection{Receiver: recv}
		var closing int
		client, err := NewClient(conn, "orders", "audit", WithHooks(&Hooks{
			OnClosing: func(context.Context) error {
				closing++
				return nil
			},
		}))
		require.NoError(t, err)

		require.NoError(t, client.Close(ctx))
		require.Equal(t, 0, conn.CreateCount(), "close must not construct the receiver")
		require.Equal(t, 0, recv.CloseCount(), "unconstructed receiver must not be closed")
		require.Equal(t, 1, closing, "OnClosing hook runs exactly once")
	})

	t.Run("after construction", func(t *testing.T) {
		recv := &sltest.FakeReceiver{}
		conn := &sltest.FakeConnection{Receiver: recv}
		var closing int
		client, err := NewClient(conn, "orders", "audit", WithHooks(&Hooks{
			OnClosing: func(context.Context) error {
				closing++
				return nil
			},
		}))
		require.NoError(t, err)

		_, err = client.Receive(ctx, 1)
		require.NoError(t, err)

		require.NoError(t, client.Close(ctx))
		require.NoError(t, client.Close(ctx), "double close is safe")
		require.Equal(t, 1, recv.CloseCount())
		require.Equal(t, 1, closing)
	})

	t.Run("operations after close", func(t *testing.T) {
		client, err := NewClient(&sltest.FakeConnection{}, "orders", "audit",
			WithSessionAcceptor(&sltest.FakeSessionAcceptor{}))
		require.NoError(t, err)
		require.NoError(t, client.Close(ctx))

		_, err = client.Receive(ctx, 1)
		require.ErrorIs(t, err, ErrClientClosed)

		require.ErrorIs(t, client.Complete(ctx, "t"), ErrClientClosed)

		_, err = client.AcceptNextSession(ctx)
		require.ErrorIs(t, err, ErrClientClosed)

		_, err = client.PrefetchCount(ctx)
		require.ErrorIs(t, err, ErrClientClosed)
	})

	t.Run("receiver close error is reported", func(t *testing.T) {
		boom := errors.New("close failed")
		recv := &sltest.FakeReceiver{}
		conn := &sltest.FakeConnection{Receiver: recv}
		client, err := NewClient(conn, "orders", "audit")
		require.NoError(t, err)

		_, err = client.Receive(ctx, 1)
		require.NoError(t, err)

		recv.Err = boom
		require.Equal(t, boom, client.Close(ctx))
	})
}

func TestClient_Hooks(t *testing.T) {
	ctx := t.Context()

	t.Run("OnReceiverCreated fires once", func(t *testing.T) {
		var created int
		client, err := NewClient(&sltest.FakeConnection{}, "orders", "audit", WithHooks(&Hooks{
			OnReceiverCreated: func(context.Context) error {
				created++
				return nil
			},
		}))
		require.NoError(t, err)

		_, err = client.Receive(ctx, 1)
		require.NoError(t, err)
		_, err = client.Receive(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, 1, created)
	})

	t.Run("hook failure does not fail the operation", func(t *testing.T) {
		hookErr := errors.New("hook exploded")
		var reported error
		client, err := NewClient(&sltest.FakeConnection{}, "orders", "audit", WithHooks(&Hooks{
			OnReceiverCreated: func(context.Context) error { return hookErr },
			OnError: func(_ context.Context, err error) {
				reported = err
			},
		}))
		require.NoError(t, err)

		_, err = client.Receive(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, hookErr, reported)
	})
}
