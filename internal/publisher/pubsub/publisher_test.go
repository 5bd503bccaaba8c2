package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	gpubsub "cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
)

func newTestPublisher(t *testing.T) (*Publisher, *gpubsub.Client) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { srv.Close() })

	conn, err := grpc.Dial(srv.Addr, grpc.WithInsecure())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	client, err := gpubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)

	return New(client), client
}

func TestPublisher_PublishRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, client := newTestPublisher(t)

	topic, err := client.CreateTopic(ctx, "crawl-events")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "sub-id", gpubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	id, err := p.Publish(ctx, "crawl-events", map[string]any{"job_id": "job-1", "status": "completed"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	recvCtx, cancel := context.WithCancel(ctx)
	c := make(chan *gpubsub.Message, 1)
	go func() {
		_ = sub.Receive(recvCtx, func(_ context.Context, msg *gpubsub.Message) {
			c <- msg
			msg.Ack()
			cancel()
		})
	}()
	msg := <-c

	var payload map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Equal(t, "job-1", payload["job_id"])
	assert.Equal(t, "completed", payload["status"])

	require.NoError(t, p.Close())
}

func TestPublisher_ReusesTopicHandle(t *testing.T) {
	ctx := context.Background()
	p, client := newTestPublisher(t)

	_, err := client.CreateTopic(ctx, "crawl-events")
	require.NoError(t, err)

	_, err = p.Publish(ctx, "crawl-events", map[string]any{"job_id": "job-1"})
	require.NoError(t, err)
	first := p.topic("crawl-events")

	_, err = p.Publish(ctx, "crawl-events", map[string]any{"job_id": "job-2"})
	require.NoError(t, err)
	assert.Same(t, first, p.topic("crawl-events"))

	require.NoError(t, p.Close())
}

func TestPublisher_RequiresTopicAndClient(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPublisher(t)

	_, err := p.Publish(ctx, "", map[string]any{})
	assert.Error(t, err)

	var unset Publisher
	_, err = unset.Publish(ctx, "crawl-events", map[string]any{})
	assert.Error(t, err)
	assert.NoError(t, unset.Close())
}
