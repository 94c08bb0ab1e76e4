package entity

import (
	"context"
	"sync"

	"callbridge/internal/calllog"
)

// MemoryRecordStore is an in-memory RecordStore for tests and early
// development. Numbers are indexed by their last-10-digits form so lookups
// succeed with or without a country prefix.
type MemoryRecordStore struct {
	mu       sync.RWMutex
	leads    map[string]string
	deals    map[string]string
	contacts map[string]string
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		leads:    map[string]string{},
		deals:    map[string]string{},
		contacts: map[string]string{},
	}
}

func (s *MemoryRecordStore) AddLead(number, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[calllog.LastTenDigits(number)] = id
}

func (s *MemoryRecordStore) AddDeal(number, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deals[calllog.LastTenDigits(number)] = id
}

func (s *MemoryRecordStore) AddContact(number, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[calllog.LastTenDigits(number)] = id
}

func (s *MemoryRecordStore) find(m map[string]string, number string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return m[calllog.LastTenDigits(number)]
}

func (s *MemoryRecordStore) FindLeadByPhone(ctx context.Context, number string) (string, error) {
	return s.find(s.leads, number), nil
}

func (s *MemoryRecordStore) FindDealByPhone(ctx context.Context, number string) (string, error) {
	return s.find(s.deals, number), nil
}

func (s *MemoryRecordStore) FindContactByPhone(ctx context.Context, number string) (string, error) {
	return s.find(s.contacts, number), nil
}
