package rabbitmq

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_RoutesByKey(t *testing.T) {
	url := amqpURL(t)

	conn, err := Connect(context.Background(), url, 5, time.Second)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	queues := []QueueConfig{{QueueName: "publish-test", RoutingKey: "publish.test"}}
	ch, err := SetupChannel(conn, queues)
	require.NoError(t, err)
	defer func() { _ = ch.Close() }()
	_, err = ch.QueuePurge("publish-test", false)
	require.NoError(t, err)

	type testMsg struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	msg := testMsg{ID: 1, Name: "Hello"}

	pub := NewPublisher(ch)
	require.NoError(t, pub.Publish(context.Background(), "publish.test", msg))

	deliveries, err := ch.Consume("publish-test", "test-consumer", true, false, false, false, nil)
	require.NoError(t, err)

	select {
	case d := <-deliveries:
		var got testMsg
		require.NoError(t, json.Unmarshal(d.Body, &got))
		assert.Equal(t, msg, got)
		assert.Equal(t, "application/json", d.ContentType)
		assert.NotEmpty(t, d.MessageId)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message")
	}

	t.Run("marshal error", func(t *testing.T) {
		badMsg := struct {
			Ch chan int `json:"ch"`
		}{Ch: make(chan int)}

		err := pub.Publish(context.Background(), "publish.test", badMsg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rabbitmq.PublishMessage")
	})
}

func TestPublisher_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewPublisher(nil).Publish(ctx, "any", struct{}{})
	assert.ErrorIs(t, err, context.Canceled)
}
