package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatSubscriptionPath(t *testing.T) {
	require.Equal(t, "orders/Subscriptions/audit", FormatSubscriptionPath("orders", "audit"))
	require.Equal(t, "region/orders/Subscriptions/audit", FormatSubscriptionPath("region/orders", "audit"))
}

func TestFormatDeadLetterPath(t *testing.T) {
	path := FormatSubscriptionPath("orders", "audit")
	require.Equal(t, "orders/Subscriptions/audit/$DeadLetterQueue", FormatDeadLetterPath(path))
}

func TestSplitSubscriptionPath(t *testing.T) {
	t.Run("plain subscription path", func(t *testing.T) {
		topic, sub, dlq, err := SplitSubscriptionPath("orders/Subscriptions/audit")
		require.NoError(t, err)
		require.Equal(t, "orders", topic)
		require.Equal(t, "audit", sub)
		require.False(t, dlq)
	})

	t.Run("dead-letter path", func(t *testing.T) {
		topic, sub, dlq, err := SplitSubscriptionPath("orders/Subscriptions/audit/$DeadLetterQueue")
		require.NoError(t, err)
		require.Equal(t, "orders", topic)
		require.Equal(t, "audit", sub)
		require.True(t, dlq)
	})

	t.Run("topic with separators", func(t *testing.T) {
		topic, sub, dlq, err := SplitSubscriptionPath("region/eu/orders/Subscriptions/audit")
		require.NoError(t, err)
		require.Equal(t, "region/eu/orders", topic)
		require.Equal(t, "audit", sub)
		require.False(t, dlq)
	})

	t.Run("round-trips formatted paths", func(t *testing.T) {
		path := FormatSubscriptionPath("invoices", "billing")
		topic, sub, _, err := SplitSubscriptionPath(path)
		require.NoError(t, err)
		require.Equal(t, path, FormatSubscriptionPath(topic, sub))
	})

	t.Run("rejects malformed paths", func(t *testing.T) {
		malformed := []string{
			"",
			"orders",
			"orders/audit",
			"orders/Subscriptions",
			"/Subscriptions/audit",
			"orders/Subscriptions/",
			"$DeadLetterQueue",
		}
		for _, path := range malformed {
			_, _, _, err := SplitSubscriptionPath(path)
			require.ErrorIs(t, err, ErrMalformedEntityPath, "path %q", path)
		}
	})
}

func TestValidateEntityPath(t *testing.T) {
	valid := []string{"orders", "region/orders", "orders-v2.events"}
	for _, path := range valid {
		require.NoError(t, ValidateEntityPath(path), "path %q", path)
	}

	invalid := []string{
		"",
		"   ",
		"/orders",
		"orders/",
		"orders//audit",
		"orders/ /audit",
		strings.Repeat("x", 261),
	}
	for _, path := range invalid {
		require.ErrorIs(t, ValidateEntityPath(path), ErrMalformedEntityPath, "path %q", path)
	}
}

func TestReceiveModeString(t *testing.T) {
	require.Equal(t, "PeekLock", ReceiveModePeekLock.String())
	require.Equal(t, "ReceiveAndDelete", ReceiveModeReceiveAndDelete.String())
	require.Equal(t, "ReceiveMode(7)", ReceiveMode(7).String())
}

func TestReceiveModeValid(t *testing.T) {
	require.True(t, ReceiveModePeekLock.Valid())
	require.True(t, ReceiveModeReceiveAndDelete.Valid())
	require.False(t, ReceiveMode(-1).Valid())
	require.False(t, ReceiveMode(2).Valid())
}
