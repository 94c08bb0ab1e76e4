package realtime

import (
	"context"
	"encoding/json"

	"callbridge/internal/calllog"

	"github.com/redis/go-redis/v9"
)

// Channel is the single named event stream agent desktops subscribe to.
const Channel = "call_status"

// Snapshot is the state notification published after a record write commits.
// It is a hint, not a source of truth: subscribers re-read the record.
type Snapshot struct {
	RefID        string             `json:"ref_id"`
	CallID       string             `json:"call_id,omitempty"`
	Status       calllog.CallStatus `json:"status"`
	Duration     int                `json:"duration"`
	RecordingURL string             `json:"recording_url,omitempty"`
	RawStatus    string             `json:"call_status,omitempty"`
}

// Publisher fans out call state transitions to connected subscribers.
// At-least-once, best-effort; delivery is never retried and publish failure
// must never roll back the record write that preceded it.
type Publisher interface {
	Publish(ctx context.Context, snap Snapshot) error
}

// RedisPublisher publishes snapshots on a Redis pub/sub channel.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, snap Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, Channel, body).Err()
}

// NopPublisher discards snapshots. Used in tests and when Redis is absent.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, snap Snapshot) error { return nil }
