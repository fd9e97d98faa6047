// Package attest writes computed trust scores into the authoritative
// record store on behalf of the agent authority.
package attest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ekaji/veritas/internal/metrics"
	"github.com/Ekaji/veritas/internal/retry"
	"github.com/Ekaji/veritas/internal/scoring"
	"github.com/Ekaji/veritas/internal/traces"
	"github.com/Ekaji/veritas/internal/trust"
)

// Default retry policy for transient store failures. Validation errors
// (invalid score, unauthorized) are never retried.
const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
)

// Attester ensures a trust record exists for a wallet and writes the
// latest (score, flags) into it.
type Attester struct {
	store       trust.Store
	authority   string // address acting as caller and record authority
	logger      *slog.Logger
	maxAttempts int
	baseDelay   time.Duration
}

// New creates an attester that writes as the given authority address.
func New(store trust.Store, authority string, logger *slog.Logger) *Attester {
	return &Attester{
		store:       store,
		authority:   authority,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
	}
}

// WithRetry overrides the retry policy for transient store failures.
func (a *Attester) WithRetry(maxAttempts int, baseDelay time.Duration) *Attester {
	a.maxAttempts = maxAttempts
	a.baseDelay = baseDelay
	return a
}

// Attest ensures the wallet's record exists, then updates it with the
// computed result. An existing record is fine; a create that succeeds
// followed by an update that fails leaves the record at its default state
// (100, no flags), which is reported so the caller can retry the pass.
func (a *Attester) Attest(ctx context.Context, wallet string, result scoring.Result) error {
	ctx, span := traces.StartSpan(ctx, "attest.write",
		traces.Wallet(wallet), traces.Score(result.Score))
	defer span.End()

	if err := a.ensureRecord(ctx, wallet); err != nil {
		metrics.AttestationsTotal.WithLabelValues("create_failed").Inc()
		return fmt.Errorf("attest: ensure record for %s: %w", wallet, err)
	}

	err := retry.Do(ctx, a.maxAttempts, a.baseDelay, func() error {
		err := a.store.Update(ctx, wallet, a.authority, result.Score, result.Flags)
		if isValidationError(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		metrics.AttestationsTotal.WithLabelValues("update_failed").Inc()
		return fmt.Errorf("attest: update record for %s: %w", wallet, err)
	}

	metrics.AttestationsTotal.WithLabelValues("ok").Inc()
	metrics.TrustScoreWritten.Observe(float64(result.Score))

	a.logger.Info("attested wallet",
		"wallet", wallet,
		"score", result.Score,
		"flags", result.Flags.String(),
	)
	return nil
}

// ensureRecord creates the record if absent. A concurrent or earlier
// creation is not an error.
func (a *Attester) ensureRecord(ctx context.Context, wallet string) error {
	return retry.Do(ctx, a.maxAttempts, a.baseDelay, func() error {
		err := a.store.Create(ctx, wallet, a.authority)
		if errors.Is(err, trust.ErrAlreadyExists) {
			return nil
		}
		if isValidationError(err) {
			return retry.Permanent(err)
		}
		return err
	})
}

// isValidationError reports whether err indicates a caller or data bug
// rather than transient unavailability.
func isValidationError(err error) bool {
	return errors.Is(err, trust.ErrInvalidScore) ||
		errors.Is(err, trust.ErrUnauthorized) ||
		errors.Is(err, trust.ErrNotFound)
}
