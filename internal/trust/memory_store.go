package trust

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for demo/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record // derived key → record
}

// NewMemoryStore creates an in-memory trust record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Create(_ context.Context, owner, authority string) error {
	key := RecordKey(owner)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[key]; ok {
		return ErrAlreadyExists
	}
	s.records[key] = &Record{
		Owner:       strings.ToLower(owner),
		Score:       DefaultScore,
		Flags:       0,
		LastUpdated: time.Now(),
		Authority:   strings.ToLower(authority),
	}
	return nil
}

func (s *MemoryStore) Update(_ context.Context, owner, caller string, score int, flags Flags) error {
	key := RecordKey(owner)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return ErrNotFound
	}
	if !strings.EqualFold(caller, rec.Authority) {
		return ErrUnauthorized
	}
	if !ValidScore(score) {
		return ErrInvalidScore
	}

	rec.Score = score
	rec.Flags = flags
	rec.LastUpdated = time.Now()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, owner string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[RecordKey(owner)]
	if !ok {
		return nil, ErrNotFound
	}
	snapshot := *rec
	return &snapshot, nil
}
