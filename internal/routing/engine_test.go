package routing

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"callbridge/internal/agents"
	"callbridge/internal/calllog"

	"github.com/stretchr/testify/require"
)

func seedWaitingCall(t *testing.T, store *calllog.MemoryStore, key string, start time.Time) {
	t.Helper()
	_, created, err := store.FindOrCreate(context.Background(), key, calllog.CreateParams{
		Direction:  calllog.DirectionInbound,
		FromNumber: "+919876543210",
		Status:     calllog.StatusRinging,
		StartTime:  start,
	})
	require.NoError(t, err)
	require.True(t, created)
}

func TestAssignNextRoutesOldestCall(t *testing.T) {
	store := calllog.NewMemoryStore()
	dir := agents.NewMemoryDirectory()
	dir.Add(agents.Mapping{User: "agent@example.com", AgentNumber: "+918030000000", Available: true})

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	seedWaitingCall(t, store, "CALL-NEW", base.Add(time.Minute))
	seedWaitingCall(t, store, "CALL-OLD", base)

	e := NewEngine(store, dir, nil)
	e.RNG = rand.New(rand.NewSource(1))

	got, err := e.AssignNext(context.Background())
	require.NoError(t, err)
	require.Equal(t, "CALL-OLD", got.CallKey)
	require.Equal(t, "agent@example.com", got.Agent)

	rec, err := store.Get(context.Background(), "CALL-OLD")
	require.NoError(t, err)
	require.Equal(t, calllog.StatusRouted, rec.Status)
	require.Equal(t, "agent@example.com", rec.ReceiverAgent)

	// The only agent is now busy; the younger call must wait.
	_, err = e.AssignNext(context.Background())
	require.ErrorIs(t, err, ErrNoAvailableAgents)
}

func TestAssignNextNoWaitingCalls(t *testing.T) {
	store := calllog.NewMemoryStore()
	dir := agents.NewMemoryDirectory()
	dir.Add(agents.Mapping{User: "agent@example.com", AgentNumber: "+918030000000", Available: true})

	e := NewEngine(store, dir, nil)
	_, err := e.AssignNext(context.Background())
	require.ErrorIs(t, err, ErrNoWaitingCalls)
}

func TestReleaseMakesAgentAssignableAgain(t *testing.T) {
	store := calllog.NewMemoryStore()
	dir := agents.NewMemoryDirectory()
	dir.Add(agents.Mapping{User: "agent@example.com", AgentNumber: "+918030000000", Available: true})

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	seedWaitingCall(t, store, "CALL-1", base)
	seedWaitingCall(t, store, "CALL-2", base.Add(time.Second))

	e := NewEngine(store, dir, nil)
	e.RNG = rand.New(rand.NewSource(1))

	_, err := e.AssignNext(context.Background())
	require.NoError(t, err)
	_, err = e.AssignNext(context.Background())
	require.ErrorIs(t, err, ErrNoAvailableAgents)

	require.NoError(t, e.Release(context.Background(), "agent@example.com"))

	got, err := e.AssignNext(context.Background())
	require.NoError(t, err)
	require.Equal(t, "CALL-2", got.CallKey)
}
