// Package agent drives the periodic scoring pipeline: discover candidate
// wallets, extract features, score, and attest the result.
//
// Passes over different wallets are independent; within one wallet the
// stages are strictly sequential. A wallet that fails extraction or
// attestation is logged and skipped, never aborting its siblings. The
// pipeline keeps no state between passes beyond what lives in the trust
// record store.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ekaji/veritas/internal/attest"
	"github.com/Ekaji/veritas/internal/features"
	"github.com/Ekaji/veritas/internal/metrics"
	"github.com/Ekaji/veritas/internal/observer"
	"github.com/Ekaji/veritas/internal/scoring"
)

// Defaults for the run loop.
const (
	DefaultInterval       = 5 * time.Minute
	DefaultCandidateLimit = 50

	// DefaultAttestThreshold: clean wallets above this score with no
	// flags are not written, to save store writes. Original behavior of
	// the scoring agent; disable with AttestAll.
	DefaultAttestThreshold = 50
)

// Scanner is the optional pre-pass hook a chain-backed candidate source
// implements to refresh its view before candidates are drawn.
type Scanner interface {
	Scan(ctx context.Context) error
}

// Runner owns the scoring loop.
type Runner struct {
	source    observer.CandidateSource
	extractor *features.Extractor
	scorer    *scoring.Scorer
	attester  *attest.Attester
	logger    *slog.Logger

	interval        time.Duration
	candidateLimit  int
	attestThreshold int
	attestAll       bool
	onResult        func(wallet string, result scoring.Result)

	stop chan struct{}
}

// Option configures the runner.
type Option func(*Runner)

// WithInterval sets the pass interval.
func WithInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithCandidateLimit caps candidates per pass.
func WithCandidateLimit(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.candidateLimit = n
		}
	}
}

// WithAttestAll writes every computed score, including clean wallets.
func WithAttestAll() Option {
	return func(r *Runner) { r.attestAll = true }
}

// WithAttestThreshold sets the score at or above which an unflagged
// wallet is skipped instead of written.
func WithAttestThreshold(n int) Option {
	return func(r *Runner) {
		if n >= 0 && n <= 100 {
			r.attestThreshold = n
		}
	}
}

// WithResultHook registers a callback invoked after each successful
// attestation (used to feed the realtime event stream).
func WithResultHook(fn func(wallet string, result scoring.Result)) Option {
	return func(r *Runner) { r.onResult = fn }
}

// NewRunner creates a scoring pipeline runner.
func NewRunner(source observer.CandidateSource, extractor *features.Extractor, scorer *scoring.Scorer, attester *attest.Attester, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		source:          source,
		extractor:       extractor,
		scorer:          scorer,
		attester:        attester,
		logger:          logger,
		interval:        DefaultInterval,
		candidateLimit:  DefaultCandidateLimit,
		attestThreshold: DefaultAttestThreshold,
		stop:            make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins the periodic loop. Call in a goroutine. The first pass
// runs immediately; a new pass starts only on the tick after the
// previous one returned.
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// Stop signals the runner to stop.
func (r *Runner) Stop() {
	select {
	case r.stop <- struct{}{}:
	default:
	}
}

// RunOnce executes a single scoring pass.
func (r *Runner) RunOnce(ctx context.Context) {
	start := time.Now()

	if scanner, ok := r.source.(Scanner); ok {
		if err := scanner.Scan(ctx); err != nil {
			// Stale window; score whatever the last scan produced.
			r.logger.Warn("chain scan failed, using previous window", "error", err)
		}
	}

	wallets, err := r.source.Candidates(ctx, r.candidateLimit)
	if err != nil {
		metrics.ScoringPassesTotal.WithLabelValues("discovery_failed").Inc()
		r.logger.Error("candidate discovery failed", "error", err)
		return
	}

	metrics.CandidatesObserved.Observe(float64(len(wallets)))
	r.logger.Info("scoring pass started", "candidates", len(wallets))

	var scored, skipped, failed int
	for _, wallet := range wallets {
		select {
		case <-ctx.Done():
			return
		default:
		}

		switch err := r.processWallet(ctx, wallet); {
		case err == nil:
			scored++
		case errors.Is(err, errSkippedClean):
			skipped++
		default:
			failed++
			r.logger.Warn("wallet pass failed", "wallet", wallet, "error", err)
		}
	}

	metrics.ScoringPassesTotal.WithLabelValues("ok").Inc()
	r.logger.Info("scoring pass complete",
		"attested", scored,
		"skippedClean", skipped,
		"failed", failed,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
}

// errSkippedClean marks a wallet that scored clean and was not written.
var errSkippedClean = errors.New("agent: clean wallet, attestation skipped")

func (r *Runner) processWallet(ctx context.Context, wallet string) error {
	f, err := r.extractor.Extract(ctx, wallet)
	if err != nil {
		metrics.WalletsScoredTotal.WithLabelValues("extract_failed").Inc()
		return fmt.Errorf("extract: %w", err)
	}

	result := r.scorer.Compute(f)

	if !r.attestAll && result.Flags == 0 && result.Score >= r.attestThreshold {
		metrics.WalletsScoredTotal.WithLabelValues("clean_skipped").Inc()
		r.logger.Debug("wallet is clean, skipping attestation",
			"wallet", wallet, "score", result.Score)
		return errSkippedClean
	}

	if err := r.attester.Attest(ctx, wallet, result); err != nil {
		metrics.WalletsScoredTotal.WithLabelValues("attest_failed").Inc()
		return err
	}

	metrics.WalletsScoredTotal.WithLabelValues("attested").Inc()
	if r.onResult != nil {
		r.onResult(wallet, result)
	}
	return nil
}
