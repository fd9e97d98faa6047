// Package scoring computes a wallet's trust score from its behavioral
// feature vector.
//
// The model is an additive penalty starting from 100. Every penalty is
// evaluated against the original features, never against an intermediate
// score, so the result is independent of evaluation order; the sum is
// clamped to [0,100] at the end. The scorer is pure: same features in,
// same (score, flags) out, no I/O.
package scoring

import (
	"time"

	"github.com/Ekaji/veritas/internal/features"
	"github.com/Ekaji/veritas/internal/trust"
)

// Heuristic thresholds and penalties.
const (
	failureRatioThreshold = 0.2
	failurePenalty        = 20

	botMaxAge            = time.Hour
	botBurstThreshold    = 10.0 // events per minute
	botPenalty           = 30

	sybilPenalty = 50

	// "New and thin" sub-threshold signal: penalized but not flagged.
	thinMaxAge   = 6 * time.Minute
	thinMaxCount = 5
	thinPenalty  = 10
)

// Result is the scorer's verdict for one wallet.
type Result struct {
	Score int         `json:"score"`
	Flags trust.Flags `json:"flags"`
}

// Scorer computes trust scores. Stateless; safe for concurrent use.
type Scorer struct{}

// NewScorer creates a scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Compute evaluates the feature vector and returns (score, flags).
func (s *Scorer) Compute(f *features.WalletFeatures) Result {
	penalty := 0
	var flags trust.Flags

	if f.FailedRatio > failureRatioThreshold {
		penalty += failurePenalty
		flags |= trust.FlagHighFailureRate
	}

	if f.Age < botMaxAge && f.BurstRate > botBurstThreshold {
		penalty += botPenalty
		flags |= trust.FlagBotActivity
	}

	if f.SharedFunding {
		penalty += sybilPenalty
		flags |= trust.FlagSybilCluster
	}

	if f.Age < thinMaxAge && f.ActivityCount < thinMaxCount {
		penalty += thinPenalty
	}

	score := trust.MaxScore - penalty
	if score < trust.MinScore {
		score = trust.MinScore
	}
	if score > trust.MaxScore {
		score = trust.MaxScore
	}

	return Result{Score: score, Flags: flags}
}
