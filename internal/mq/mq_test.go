package mq

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/codearena/judge/config"
	"github.com/stretchr/testify/require"
)

func TestOpenDisabled(t *testing.T) {
	for _, backend := range []string{"", "none", " NONE "} {
		_, err := Open(context.Background(), config.MQConfig{Backend: backend})
		require.ErrorIs(t, err, ErrDisabled)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), config.MQConfig{Backend: "kafka"})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrDisabled)
}

func TestOpenRequiresBrokerURL(t *testing.T) {
	_, err := Open(context.Background(), config.MQConfig{Backend: "nats"})
	require.Error(t, err)

	_, err = Open(context.Background(), config.MQConfig{Backend: "rabbitmq"})
	require.Error(t, err)
}

func TestMemoryPublishJSON(t *testing.T) {
	backend := NewMemoryBackend()
	queue := New(backend)
	defer queue.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan Message, 1)
	go func() {
		_ = queue.Subscribe(ctx, "submission.recorded", func(ctx context.Context, msg Message) error {
			received <- msg
			return nil
		})
	}()
	require.Eventually(t, func() bool { return backend.Subscribers("submission.recorded") == 1 }, time.Second, 5*time.Millisecond)

	id, err := queue.PublishJSON(ctx, "submission.recorded", map[string]int{"submissionId": 4}, map[string]string{"problem_id": "2"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	select {
	case msg := <-received:
		require.Equal(t, id, msg.ID)
		require.JSONEq(t, `{"submissionId":4}`, string(msg.Data))
		require.Equal(t, "application/json", msg.Attributes[AttrContentType])
		require.Equal(t, "2", msg.Attributes["problem_id"])
	case <-ctx.Done():
		t.Fatal("message was not delivered")
	}
}

func TestMemoryPublishWithoutSubscribers(t *testing.T) {
	backend := NewMemoryBackend()

	id, err := backend.Publish(context.Background(), "events", []byte("x"), nil)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, backend.Close())
	_, err = backend.Publish(context.Background(), "events", []byte("x"), nil)
	require.Error(t, err)
}

func TestMemorySubscriberStopsWithContext(t *testing.T) {
	backend := NewMemoryBackend()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- backend.Subscribe(ctx, "events", func(ctx context.Context, msg Message) error { return nil })
	}()
	require.Eventually(t, func() bool { return backend.Subscribers("events") == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	require.Equal(t, 0, backend.Subscribers("events"))
}

func TestPubSubMessageCarriesContentType(t *testing.T) {
	attrs := map[string]string{"problem_id": "4"}
	msg := newPubSubMessage([]byte("raw"), attrs)
	require.Equal(t, defaultContentType, msg.Attributes[AttrContentType])
	require.Equal(t, "4", msg.Attributes["problem_id"])
	require.NotContains(t, attrs, AttrContentType)

	msg = newPubSubMessage([]byte(`{}`), map[string]string{AttrContentType: "application/json"})
	require.Equal(t, "application/json", msg.Attributes[AttrContentType])
}

func TestFromPubSubMessage(t *testing.T) {
	msg := newPubSubMessage([]byte(`{"id":1}`), map[string]string{AttrContentType: "application/json", "user_id": "7"})
	msg.ID = "srv-1"

	got := fromPubSubMessage(msg)
	require.Equal(t, "srv-1", got.ID)
	require.Equal(t, []byte(`{"id":1}`), got.Data)
	require.Equal(t, "application/json", got.Attributes[AttrContentType])
	require.Equal(t, "7", got.Attributes["user_id"])

	got = fromPubSubMessage(&pubsub.Message{ID: "srv-2", Data: []byte("x")})
	require.Equal(t, defaultContentType, got.Attributes[AttrContentType])
}
