package integration_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/sublease"
	"github.com/arloliu/sublease/natsjs"
	sltest "github.com/arloliu/sublease/testing"
)

// drainSession consumes and completes count messages from a session, one at
// a time, returning bodies in arrival order.
func drainSession(t *testing.T, ctx context.Context, session sublease.Session, count int) [][]byte {
	t.Helper()

	out := make([][]byte, 0, count)
	deadline := time.Now().Add(10 * time.Second)
	for len(out) < count && time.Now().Before(deadline) {
		msgs, err := session.Receive(ctx, 1)
		require.NoError(t, err)
		for _, msg := range msgs {
			out = append(out, msg.Body)
			require.NoError(t, session.Complete(ctx, []sublease.LockToken{msg.LockToken}))
		}
	}
	require.Len(t, out, count)

	return out
}

func TestSessionOrderedDelivery(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	t.Parallel()

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	defer cancel()

	client, _, nc := newTestClient(t, "orders", "audit")
	bodies := sltest.PublishTestMessages(t, nc, "orders", "s1", 5)

	session, err := client.AcceptSession(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "s1", session.SessionID())
	defer session.Close(ctx)

	got := drainSession(t, ctx, session, 5)
	require.Equal(t, bodies, got, "session messages must arrive in publish order")
}

func TestSessionExclusivity(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	t.Parallel()

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	defer cancel()

	client, conn, nc := newTestClient(t, "orders", "audit")
	sltest.PublishTestMessages(t, nc, "orders", "s1", 1)

	session, err := client.AcceptSession(ctx, "s1")
	require.NoError(t, err)

	// A second acceptance of the same session fails while the lock is held,
	// from this client or any other over the same connection.
	_, err = client.AcceptSession(ctx, "s1")
	require.ErrorIs(t, err, natsjs.ErrSessionLocked)

	other, err := sublease.NewClient(conn, "orders", "audit")
	require.NoError(t, err)
	defer other.Close(ctx)

	_, err = other.AcceptSession(ctx, "s1")
	require.ErrorIs(t, err, natsjs.ErrSessionLocked)

	// Closing releases the lock; the session is acceptable again.
	require.NoError(t, session.Close(ctx))

	reacquired, err := other.AcceptSession(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, reacquired.Close(ctx))
}

func TestSessionSeparation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	t.Parallel()

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	defer cancel()

	client, _, nc := newTestClient(t, "orders", "audit")
	s1Bodies := sltest.PublishTestMessages(t, nc, "orders", "s1", 2)
	s2Bodies := sltest.PublishTestMessages(t, nc, "orders", "s2", 2)

	s1, err := client.AcceptSession(ctx, "s1")
	require.NoError(t, err)
	defer s1.Close(ctx)
	s2, err := client.AcceptSession(ctx, "s2")
	require.NoError(t, err)
	defer s2.Close(ctx)

	require.Equal(t, s1Bodies, drainSession(t, ctx, s1, 2))
	require.Equal(t, s2Bodies, drainSession(t, ctx, s2, 2))
}

func TestAcceptNextSession(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	t.Parallel()

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	defer cancel()

	client, _, nc := newTestClient(t, "orders", "audit")

	// No session subjects yet (sessionless traffic does not count).
	sltest.PublishTestMessages(t, nc, "orders", "", 1)
	_, err := client.AcceptNextSession(ctx)
	require.ErrorIs(t, err, natsjs.ErrNoSessionsAvailable)

	sltest.PublishTestMessages(t, nc, "orders", "s1", 1)
	sltest.PublishTestMessages(t, nc, "orders", "s2", 1)

	// s1 is taken; next-available must skip it and lock s2.
	s1, err := client.AcceptSession(ctx, "s1")
	require.NoError(t, err)
	defer s1.Close(ctx)

	next, err := client.AcceptNextSession(ctx)
	require.NoError(t, err)
	require.Equal(t, "s2", next.SessionID())
	defer next.Close(ctx)

	// All sessions locked.
	_, err = client.AcceptNextSession(ctx)
	require.ErrorIs(t, err, natsjs.ErrNoSessionsAvailable)
}

func TestSessionValidation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	t.Parallel()

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	defer cancel()

	client, conn, _ := newTestClient(t, "orders", "audit")

	_, err := client.AcceptSession(ctx, "bad.id")
	require.ErrorIs(t, err, natsjs.ErrInvalidSessionID)

	_, err = client.AcceptSession(ctx, "_default_")
	require.ErrorIs(t, err, natsjs.ErrInvalidSessionID)

	// Dead-letter sub-queues lose the subject-encoded session grouping.
	dlq, err := sublease.NewDeadLetterClient(conn, "orders", "audit")
	require.NoError(t, err)
	defer dlq.Close(ctx)

	_, err = dlq.AcceptSession(ctx, "s1")
	require.ErrorIs(t, err, sublease.ErrSessionsNotSupported)
}

func TestSessionDeadLetterPreservesSessionID(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	t.Parallel()

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	defer cancel()

	client, conn, nc := newTestClient(t, "orders", "audit")
	sltest.PublishTestMessages(t, nc, "orders", "s1", 1)

	session, err := client.AcceptSession(ctx, "s1")
	require.NoError(t, err)
	defer session.Close(ctx)

	msgs, err := session.Receive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "s1", msgs[0].SessionID)

	require.NoError(t, session.DeadLetter(ctx, []sublease.LockToken{msgs[0].LockToken}))

	dlq, err := sublease.NewDeadLetterClient(conn, "orders", "audit")
	require.NoError(t, err)
	defer dlq.Close(ctx)

	copied := receiveAll(t, ctx, dlq, 1)[0]
	require.Equal(t, "s1", copied.SessionID, "session ID survives dead-lettering via header")
	require.NoError(t, dlq.Complete(ctx, copied.LockToken))
}
