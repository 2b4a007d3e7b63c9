// Package events publishes room lifecycle notifications over Redis pub/sub
// so sibling services (history, notifications) can react to editing
// sessions ending.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Channel carries session lifecycle events.
const Channel = "collab_sessions"

// SessionClosedEvent is published when the last editor leaves a document
// and its session is evicted.
type SessionClosedEvent struct {
	Type        string `json:"type"`
	DocumentID  string `json:"documentId"`
	DurationSec int    `json:"durationSeconds"`
	ClosedAt    string `json:"closedAt"`
}

// Publisher emits lifecycle events. A nil Publisher is valid and publishes
// nothing, so the feature stays optional when Redis is not configured.
type Publisher struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewPublisher(rdb *redis.Client, log *zap.Logger) *Publisher {
	return &Publisher{rdb: rdb, log: log}
}

// SessionClosed publishes a session-closed event. Failures are logged and
// swallowed; lifecycle events are best effort.
func (p *Publisher) SessionClosed(ctx context.Context, documentID string, duration time.Duration) {
	if p == nil || p.rdb == nil {
		return
	}
	payload, err := json.Marshal(SessionClosedEvent{
		Type:        "session_closed",
		DocumentID:  documentID,
		DurationSec: int(duration.Seconds()),
		ClosedAt:    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		p.log.Warn("failed to marshal session event", zap.Error(err))
		return
	}
	if err := p.rdb.Publish(ctx, Channel, payload).Err(); err != nil {
		p.log.Warn("failed to publish session event",
			zap.String("documentId", documentID), zap.Error(err))
	}
}
