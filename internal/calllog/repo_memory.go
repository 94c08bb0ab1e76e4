package calllog

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and early development.
// Per-key mutexes keep the concurrency contract identical to the Postgres
// implementation: events for the same call serialize, different calls don't
// block each other.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]CallRecord

	locks sync.Map // call key -> *sync.Mutex

	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]CallRecord),
		clock:   time.Now,
	}
}

// SetClock overrides the clock for deterministic tests.
func (s *MemoryStore) SetClock(clock func() time.Time) { s.clock = clock }

func (s *MemoryStore) keyLock(callKey string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(callKey, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (s *MemoryStore) Get(ctx context.Context, callKey string) (CallRecord, error) {
	if callKey == "" {
		return CallRecord{}, ErrInvalidArgument
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[Truncate(callKey)]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) FindOrCreate(ctx context.Context, callKey string, params CreateParams) (CallRecord, bool, error) {
	if callKey == "" {
		return CallRecord{}, false, ErrInvalidArgument
	}
	key := Truncate(callKey)
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	rec, ok := s.records[key]
	s.mu.RUnlock()
	if ok {
		return rec, false, nil
	}

	rec = newRecord(key, params, s.clock().UTC())
	s.mu.Lock()
	s.records[key] = rec
	s.mu.Unlock()
	return rec, true, nil
}

func (s *MemoryStore) Apply(ctx context.Context, callKey string, upd Update) (CallRecord, error) {
	if callKey == "" {
		return CallRecord{}, ErrInvalidArgument
	}
	key := Truncate(callKey)
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	merge(&rec, upd, s.clock().UTC())
	s.records[key] = rec
	return rec, nil
}

func (s *MemoryStore) Cancel(ctx context.Context, callKey string, at time.Time) (CallRecord, error) {
	if callKey == "" {
		return CallRecord{}, ErrInvalidArgument
	}
	key := Truncate(callKey)
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	if !rec.Status.IsTerminal() {
		rec.Status = StatusCancelled
		rec.EndTime = &at
		rec.UpdatedAt = s.clock().UTC()
		s.records[key] = rec
	}
	return rec, nil
}

func (s *MemoryStore) OldestUnassigned(ctx context.Context) (CallRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var oldest CallRecord
	found := false
	for _, rec := range s.records {
		if rec.Direction != DirectionInbound || rec.ReceiverAgent != "" {
			continue
		}
		if rec.Status != StatusRinging && rec.Status != StatusInitiated {
			continue
		}
		if !found || rec.StartTime.Before(oldest.StartTime) {
			oldest = rec
			found = true
		}
	}
	return oldest, found, nil
}
