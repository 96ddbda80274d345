package sublease

import (
	"context"
	"strings"

	"github.com/arloliu/sublease/natsjs"
)

// NewClientFromConnectionString dials the broker and creates a client in one
// step.
//
// The connection string is a NATS URL (e.g. "nats://broker:4222"); transport
// tuning comes from SUBLEASE_* environment variables on top of defaults. The
// returned client owns the dialed connection and closes it in Close, unlike
// NewClient, where connection lifetime stays with the caller.
//
// Parameters:
//   - connStr: NATS URL to dial (required, non-blank)
//   - topicPath: Path of the topic (required, non-blank)
//   - subscriptionName: Name of the subscription on the topic (required, non-blank)
//   - opts: Optional configuration, as for NewClient
//
// Returns:
//   - *Client: The client facade, owning its connection
//   - error: Validation, environment parsing, or dial error
//
// Example:
//
//	client, err := sublease.NewClientFromConnectionString(
//	    "nats://localhost:4222", "orders", "audit")
//	if err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
func NewClientFromConnectionString(connStr, topicPath, subscriptionName string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(connStr) == "" {
		return nil, ErrConnectionRequired
	}

	cfg, err := natsjs.ConfigFromEnv()
	if err != nil {
		return nil, err
	}

	conn, err := natsjs.Connect(connStr, cfg)
	if err != nil {
		return nil, err
	}

	client, err := NewClient(conn, topicPath, subscriptionName, opts...)
	if err != nil {
		_ = conn.Close(context.Background())
		return nil, err
	}
	client.ownedConn = conn

	return client, nil
}
