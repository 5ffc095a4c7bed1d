package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestClient(t *testing.T) *pubsub.Client {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPublishDeliversJSON(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	topic, err := client.CreateTopic(ctx, "runs")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "runs-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	p := New(client)
	t.Cleanup(p.Stop)
	id, err := p.Publish(ctx, "runs", map[string]any{"run_id": "r-1", "reason": "finished"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	recvCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var got map[string]any
	err = sub.Receive(recvCtx, func(_ context.Context, msg *pubsub.Message) {
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		require.Equal(t, "application/json", msg.Attributes["content-type"])
		msg.Ack()
		cancel()
	})
	require.NoError(t, err)
	require.Equal(t, "r-1", got["run_id"])
	require.Equal(t, "finished", got["reason"])
}

func TestPublishMissingTopic(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := New(newTestClient(t))
	t.Cleanup(p.Stop)

	_, err := p.Publish(ctx, "absent", map[string]string{"a": "b"})
	require.Error(t, err)
}

func TestPublishUnmarshalablePayload(t *testing.T) {
	p := New(newTestClient(t))
	_, err := p.Publish(context.Background(), "runs", func() {})
	require.ErrorContains(t, err, "marshal payload")
}

func TestPublishWithoutClient(t *testing.T) {
	_, err := New(nil).Publish(context.Background(), "runs", 1)
	require.ErrorContains(t, err, "not configured")
}
