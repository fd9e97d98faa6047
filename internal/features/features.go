// Package features turns a wallet's raw activity history into the fixed
// behavioral feature vector consumed by the scorer.
//
// Features are computed fresh on every scoring pass and never cached. A
// wallet with no observed activity yields the zero-valued vector; that is
// a defined state (brand-new or inactive wallet), not an error.
package features

import (
	"context"
	"fmt"
	"time"
)

// DefaultActivityLimit caps how many recent activity records are fetched
// per wallet. With a full window the age feature underestimates true
// account age; known limitation.
const DefaultActivityLimit = 100

// Activity is one observed action by a wallet.
type Activity struct {
	Timestamp time.Time
	Failed    bool
}

// ActivityProvider fetches recent activity for a wallet, newest first.
// It may return an empty slice (no observed activity) or fail transiently.
type ActivityProvider interface {
	RecentActivity(ctx context.Context, wallet string, limit int) ([]Activity, error)
}

// FundingLinker reports whether a wallet is linked to a known funding
// cluster. Implementations must be deterministic; the check is injected
// here so the sybil heuristic can be replaced without touching the scorer.
type FundingLinker interface {
	Linked(ctx context.Context, wallet string) (bool, error)
}

// WalletFeatures is the behavioral feature vector for one wallet.
type WalletFeatures struct {
	Age           time.Duration `json:"age"`           // since oldest record in the window
	ActivityCount int           `json:"activityCount"` // records in the window
	FailedRatio   float64       `json:"failedRatio"`   // 0-1
	SharedFunding bool          `json:"sharedFunding"` // known funding cluster
	BurstRate     float64       `json:"burstRate"`     // events per minute
}

// ExtractionError distinguishes "could not determine" from "no activity".
// It wraps the upstream cause so callers can schedule a retry.
type ExtractionError struct {
	Wallet string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("features: extraction failed for %s: %v", e.Wallet, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor computes WalletFeatures from an activity provider and a
// funding linker.
type Extractor struct {
	provider ActivityProvider
	linker   FundingLinker
	limit    int
	now      func() time.Time // injectable clock for tests
}

// Option configures the extractor.
type Option func(*Extractor)

// WithLimit overrides the activity fetch limit.
func WithLimit(limit int) Option {
	return func(e *Extractor) {
		if limit > 0 {
			e.limit = limit
		}
	}
}

// WithClock overrides the wall clock (for tests).
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// NewExtractor creates a feature extractor.
func NewExtractor(provider ActivityProvider, linker FundingLinker, opts ...Option) *Extractor {
	e := &Extractor{
		provider: provider,
		linker:   linker,
		limit:    DefaultActivityLimit,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract computes the feature vector for a wallet.
// Records are expected newest-first; a transient provider or linker
// failure surfaces as *ExtractionError.
func (e *Extractor) Extract(ctx context.Context, wallet string) (*WalletFeatures, error) {
	records, err := e.provider.RecentActivity(ctx, wallet, e.limit)
	if err != nil {
		return nil, &ExtractionError{Wallet: wallet, Err: err}
	}

	if len(records) == 0 {
		return &WalletFeatures{}, nil
	}

	newest := records[0]
	oldest := records[len(records)-1]
	count := len(records)

	failed := 0
	for _, r := range records {
		if r.Failed {
			failed++
		}
	}

	// Burst: events per minute across the window, floored at one minute.
	// A single record is treated as instantaneous.
	burst := float64(count)
	if count > 1 {
		minutes := newest.Timestamp.Sub(oldest.Timestamp).Minutes()
		if minutes < 1 {
			minutes = 1
		}
		burst = float64(count) / minutes
	}

	shared := false
	if e.linker != nil {
		shared, err = e.linker.Linked(ctx, wallet)
		if err != nil {
			return nil, &ExtractionError{Wallet: wallet, Err: err}
		}
	}

	return &WalletFeatures{
		Age:           e.now().Sub(oldest.Timestamp),
		ActivityCount: count,
		FailedRatio:   float64(failed) / float64(count),
		SharedFunding: shared,
		BurstRate:     burst,
	}, nil
}
