package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"callbridge/internal/calllog"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisPublisherPublishesSnapshot(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := rdb.Subscribe(ctx, Channel)
	t.Cleanup(func() { _ = sub.Close() })
	// Wait for the subscription before publishing.
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	p := NewRedisPublisher(rdb)
	snap := Snapshot{
		RefID:        "ref-1",
		CallID:       "cid-1",
		Status:       calllog.StatusCompleted,
		Duration:     37,
		RecordingURL: "https://rec/1",
	}
	require.NoError(t, p.Publish(ctx, snap))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, Channel, msg.Channel)

	var got Snapshot
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	require.Equal(t, snap, got)
}

func TestNopPublisher(t *testing.T) {
	require.NoError(t, NopPublisher{}.Publish(context.Background(), Snapshot{RefID: "x"}))
}
