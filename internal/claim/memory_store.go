package claim

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryConfigStore is an in-memory ConfigStore for demo/test use.
type MemoryConfigStore struct {
	mu      sync.RWMutex
	configs map[string]*Config // derived key → config
}

// NewMemoryConfigStore creates an in-memory campaign config store.
func NewMemoryConfigStore() *MemoryConfigStore {
	return &MemoryConfigStore{configs: make(map[string]*Config)}
}

func (s *MemoryConfigStore) Create(_ context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	key := ConfigKey(cfg.Campaign)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.configs[key]; ok {
		return ErrAlreadyExists
	}
	stored := *cfg
	stored.Treasury = strings.ToLower(cfg.Treasury)
	stored.Authority = strings.ToLower(cfg.Authority)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.configs[key] = &stored
	return nil
}

func (s *MemoryConfigStore) Get(_ context.Context, campaign string) (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[ConfigKey(campaign)]
	if !ok {
		return nil, ErrConfigNotFound
	}
	snapshot := *cfg
	return &snapshot, nil
}

// MemoryReceiptStore is an in-memory ReceiptStore for demo/test use.
type MemoryReceiptStore struct {
	mu       sync.RWMutex
	receipts map[string]*Receipt // campaign|claimer → receipt
}

// NewMemoryReceiptStore creates an in-memory receipt store.
func NewMemoryReceiptStore() *MemoryReceiptStore {
	return &MemoryReceiptStore{receipts: make(map[string]*Receipt)}
}

func receiptKey(campaign, claimer string) string {
	return strings.ToLower(campaign) + "|" + strings.ToLower(claimer)
}

func (s *MemoryReceiptStore) Create(_ context.Context, receipt *Receipt) error {
	key := receiptKey(receipt.Campaign, receipt.Claimer)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.receipts[key]; ok {
		return ErrAlreadyClaimed
	}
	stored := *receipt
	s.receipts[key] = &stored
	return nil
}

func (s *MemoryReceiptStore) Get(_ context.Context, campaign, claimer string) (*Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.receipts[receiptKey(campaign, claimer)]
	if !ok {
		return nil, ErrReceiptNotFound
	}
	snapshot := *r
	return &snapshot, nil
}

func (s *MemoryReceiptStore) ListByCampaign(_ context.Context, campaign string, limit int) ([]*Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	campaign = strings.ToLower(campaign)
	var result []*Receipt
	for _, r := range s.receipts {
		if strings.ToLower(r.Campaign) == campaign {
			snapshot := *r
			result = append(result, &snapshot)
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}
