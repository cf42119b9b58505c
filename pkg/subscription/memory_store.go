package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory RecordStore for tests and local
// development. Safe for concurrent use. Records are cloned on the way in
// and out so callers cannot mutate shared state.
type MemoryStore struct {
	mu         sync.RWMutex
	records    map[uuid.UUID]*Record
	byCustomer map[string]uuid.UUID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:    make(map[uuid.UUID]*Record),
		byCustomer: make(map[string]uuid.UUID),
	}
}

// Get returns the record for the user or ErrRecordNotFound.
func (s *MemoryStore) Get(ctx context.Context, userID uuid.UUID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return rec.clone(), nil
}

// GetByCustomerID returns the record holding the gateway customer
// reference or ErrRecordNotFound.
func (s *MemoryStore) GetByCustomerID(ctx context.Context, customerID string) (*Record, error) {
	if customerID == "" {
		return nil, ErrRecordNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.byCustomer[customerID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return s.records[userID].clone(), nil
}

// Ensure returns the user's record, creating a free-tier one on first
// touch. Concurrent calls for the same user converge on a single record.
func (s *MemoryStore) Ensure(ctx context.Context, userID uuid.UUID, now time.Time) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[userID]; ok {
		return rec.clone(), nil
	}

	rec := NewFreeRecord(userID, now)
	s.records[userID] = rec
	return rec.clone(), nil
}

// Save writes the full record, replacing whatever is stored.
func (s *MemoryStore) Save(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.records[rec.UserID]; ok && prev.CustomerID != "" && prev.CustomerID != rec.CustomerID {
		delete(s.byCustomer, prev.CustomerID)
	}

	stored := rec.clone()
	s.records[rec.UserID] = stored
	if stored.CustomerID != "" {
		s.byCustomer[stored.CustomerID] = stored.UserID
	}
	return nil
}
