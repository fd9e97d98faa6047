// Package observer discovers candidate wallets to score and serves the
// activity history the feature extractor reads.
//
// The chain scanner polls recent blocks and maintains a bounded
// in-memory window of per-wallet activity. The window underestimates a
// wallet's full history; scoring heuristics are written against the
// window, which is a limitation of the discovery mechanism, not of the
// record store.
package observer

import (
	"context"
)

// CandidateSource supplies a bounded list of wallets once per scoring
// pass. Duplicates across passes are expected and harmless; re-scoring
// is idempotent in effect.
type CandidateSource interface {
	Candidates(ctx context.Context, limit int) ([]string, error)
}

// StaticSource is a fixed candidate list for tests and simulations.
type StaticSource struct {
	Wallets []string
}

// Candidates returns up to limit wallets from the fixed list.
func (s *StaticSource) Candidates(_ context.Context, limit int) ([]string, error) {
	if limit <= 0 || limit >= len(s.Wallets) {
		out := make([]string, len(s.Wallets))
		copy(out, s.Wallets)
		return out, nil
	}
	out := make([]string, limit)
	copy(out, s.Wallets[:limit])
	return out, nil
}
