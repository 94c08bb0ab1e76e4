package routing

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"callbridge/internal/agents"
	"callbridge/internal/calllog"
	"callbridge/internal/realtime"
	"callbridge/pkg/logger"
)

// Engine assigns waiting inbound calls to available agents.
//
// Priority:
//  1. Oldest waiting call first.
//  2. Uniform pick among available agents.
//
// The engine only writes through the call store, so its Routed status obeys
// the same ordering guards as webhook writes: a call that completed or was
// abandoned while sitting in the queue is never pulled back.
type Engine struct {
	Store     calllog.Store
	Agents    agents.Directory
	Publisher realtime.Publisher

	RNG *rand.Rand
	Now func() time.Time
}

func NewEngine(store calllog.Store, dir agents.Directory, pub realtime.Publisher) *Engine {
	if pub == nil {
		pub = realtime.NopPublisher{}
	}
	return &Engine{Store: store, Agents: dir, Publisher: pub, Now: time.Now}
}

// Assignment reports one routed call.
type Assignment struct {
	CallKey     string
	Agent       string
	AgentNumber string
}

var (
	ErrNoWaitingCalls    = errors.New("routing: no waiting calls")
	ErrNoAvailableAgents = errors.New("routing: no available agents")
)

// AssignNext routes the oldest waiting inbound call to one available agent
// and marks that agent busy. Callers loop on it until ErrNoWaitingCalls or
// ErrNoAvailableAgents.
func (e *Engine) AssignNext(ctx context.Context) (Assignment, error) {
	if e.Store == nil || e.Agents == nil {
		return Assignment{}, errors.New("routing: store and directory are required")
	}

	rec, ok, err := e.Store.OldestUnassigned(ctx)
	if err != nil {
		return Assignment{}, err
	}
	if !ok {
		return Assignment{}, ErrNoWaitingCalls
	}

	available, err := e.Agents.ListAvailable(ctx)
	if err != nil {
		return Assignment{}, err
	}
	m, ok := e.pick(available)
	if !ok {
		return Assignment{}, ErrNoAvailableAgents
	}

	routed := calllog.StatusRouted
	updated, err := e.Store.Apply(ctx, rec.CallKey, calllog.Update{
		Status:   &routed,
		Receiver: m.User,
	})
	if err != nil {
		return Assignment{}, err
	}

	if err := e.Agents.SetAvailability(ctx, m.User, false); err != nil {
		logger.From(ctx).Warn("agent availability update failed", "user", m.User, "err", err)
	}

	snap := realtime.Snapshot{
		RefID:     updated.CallKey,
		Status:    updated.Status,
		RawStatus: "routed",
	}
	if err := e.Publisher.Publish(ctx, snap); err != nil {
		logger.From(ctx).Warn("routed publish failed", "call_key", updated.CallKey, "err", err)
	}

	return Assignment{CallKey: updated.CallKey, Agent: m.User, AgentNumber: m.AgentNumber}, nil
}

// Release marks an agent available again, typically after their call ends.
func (e *Engine) Release(ctx context.Context, user string) error {
	if e.Agents == nil {
		return errors.New("routing: directory is required")
	}
	return e.Agents.SetAvailability(ctx, user, true)
}

// Run drains the queue on a fixed interval until the context is cancelled.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.drain(ctx)
		}
	}
}

func (e *Engine) drain(ctx context.Context) {
	for {
		_, err := e.AssignNext(ctx)
		if errors.Is(err, ErrNoWaitingCalls) || errors.Is(err, ErrNoAvailableAgents) {
			return
		}
		if err != nil {
			logger.From(ctx).Error("queue assignment failed", "err", err)
			return
		}
	}
}

// pick chooses uniformly among the available agents.
func (e *Engine) pick(available []agents.Mapping) (agents.Mapping, bool) {
	if len(available) == 0 {
		return agents.Mapping{}, false
	}
	rng := e.RNG
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return available[rng.Intn(len(available))], true
}
