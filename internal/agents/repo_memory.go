package agents

import (
	"context"
	"sort"
	"sync"

	"callbridge/internal/calllog"
)

// MemoryDirectory is an in-memory Directory for tests and early development.
type MemoryDirectory struct {
	mu       sync.RWMutex
	byUser   map[string]Mapping
	byNumber map[string]string // normalized number (exact and last-10) -> user
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byUser:   map[string]Mapping{},
		byNumber: map[string]string{},
	}
}

func (d *MemoryDirectory) Add(m Mapping) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m.AgentNumber = calllog.NormalizeNumber(m.AgentNumber)
	d.byUser[m.User] = m
	for _, k := range normalizeKeys(m.AgentNumber) {
		d.byNumber[k] = m.User
	}
}

func (d *MemoryDirectory) UserForNumber(ctx context.Context, agentNumber string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, k := range normalizeKeys(agentNumber) {
		if user, ok := d.byNumber[k]; ok {
			return user, nil
		}
	}
	return "", ErrNotFound
}

func (d *MemoryDirectory) MappingForUser(ctx context.Context, user string) (Mapping, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.byUser[user]
	if !ok {
		return Mapping{}, ErrNotFound
	}
	return m, nil
}

func (d *MemoryDirectory) ListAvailable(ctx context.Context) ([]Mapping, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Mapping, 0)
	for _, m := range d.byUser {
		if m.Available {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out, nil
}

func (d *MemoryDirectory) SetAvailability(ctx context.Context, user string, available bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.byUser[user]
	if !ok {
		return ErrNotFound
	}
	m.Available = available
	d.byUser[user] = m
	return nil
}
