package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) *redis.Client {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestSessionClosedPublishes(t *testing.T) {
	rdb := setupTestRedis(t)
	p := NewPublisher(rdb, zap.NewNop())

	sub := rdb.Subscribe(context.Background(), Channel)
	t.Cleanup(func() { sub.Close() })
	// Wait for the subscription to be established before publishing.
	if _, err := sub.Receive(context.Background()); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	p.SessionClosed(context.Background(), "d1", 90*time.Second)

	select {
	case msg := <-sub.Channel():
		var evt SessionClosedEvent
		assert.NoError(t, json.Unmarshal([]byte(msg.Payload), &evt))
		assert.Equal(t, "session_closed", evt.Type)
		assert.Equal(t, "d1", evt.DocumentID)
		assert.Equal(t, 90, evt.DurationSec)
		assert.NotEmpty(t, evt.ClosedAt)
	case <-time.After(time.Second):
		t.Fatalf("expected session event to be published")
	}
}

func TestNilPublisherIsSafe(t *testing.T) {
	var p *Publisher
	p.SessionClosed(context.Background(), "d1", time.Second)

	p = NewPublisher(nil, zap.NewNop())
	p.SessionClosed(context.Background(), "d1", time.Second)
}
