package claim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/Ekaji/veritas/internal/idgen"
	"github.com/Ekaji/veritas/internal/metrics"
	"github.com/Ekaji/veritas/internal/traces"
	"github.com/Ekaji/veritas/internal/treasury"
	"github.com/Ekaji/veritas/internal/trust"
)

// Gate evaluates claim attempts against the claimer's current trust
// record. The gate holds no state of its own: it reads, decides, and
// acts, so a claim racing a score update simply observes whichever value
// the store returns.
type Gate struct {
	configs  ConfigStore
	receipts ReceiptStore
	records  trust.Store
	payer    treasury.Transactor
	logger   *slog.Logger
	events   EventEmitter
}

// EventEmitter receives successful payout notifications.
type EventEmitter interface {
	ClaimPaid(campaign, claimer, amountWei, txHash string)
}

// NewGate creates a claim gate.
func NewGate(configs ConfigStore, receipts ReceiptStore, records trust.Store, payer treasury.Transactor, logger *slog.Logger) *Gate {
	return &Gate{
		configs:  configs,
		receipts: receipts,
		records:  records,
		payer:    payer,
		logger:   logger,
	}
}

// WithEvents attaches an emitter notified on every paid claim.
func (g *Gate) WithEvents(events EventEmitter) *Gate {
	g.events = events
	return g
}

// Claim attempts a payout for claimer under the given campaign.
//
// The threshold is inclusive: a score exactly equal to the campaign
// minimum succeeds. Rejections (no record, low score, already claimed)
// take no funds-transfer action.
func (g *Gate) Claim(ctx context.Context, campaign, claimer string) (*Receipt, error) {
	ctx, span := traces.StartSpan(ctx, "claim.attempt",
		traces.Campaign(campaign), traces.Wallet(claimer))
	defer span.End()

	cfg, err := g.configs.Get(ctx, campaign)
	if err != nil {
		metrics.ClaimsTotal.WithLabelValues("no_campaign").Inc()
		return nil, err
	}
	span.SetAttributes(traces.Amount(cfg.AmountWei))

	rec, err := g.records.Get(ctx, claimer)
	if err != nil {
		metrics.ClaimsTotal.WithLabelValues("no_record").Inc()
		return nil, err
	}

	if rec.Score < cfg.MinScore {
		metrics.ClaimsTotal.WithLabelValues("low_score").Inc()
		g.logger.Info("claim rejected",
			"campaign", campaign,
			"claimer", claimer,
			"score", rec.Score,
			"minScore", cfg.MinScore,
		)
		return nil, fmt.Errorf("%w: score %d, minimum %d", ErrLowTrustScore, rec.Score, cfg.MinScore)
	}

	// The uniqueness check must fail closed: only the not-found sentinel
	// clears the path to a transfer. A store error here could mask an
	// existing receipt and pay the wallet twice.
	switch _, err := g.receipts.Get(ctx, campaign, claimer); {
	case err == nil:
		metrics.ClaimsTotal.WithLabelValues("already_claimed").Inc()
		return nil, ErrAlreadyClaimed
	case !errors.Is(err, ErrReceiptNotFound):
		metrics.ClaimsTotal.WithLabelValues("receipt_check_failed").Inc()
		return nil, fmt.Errorf("claim: receipt lookup for %s: %w", claimer, err)
	}

	amount, ok := new(big.Int).SetString(cfg.AmountWei, 10)
	if !ok {
		return nil, fmt.Errorf("%w: bad payout amount %q", ErrInvalidConfig, cfg.AmountWei)
	}

	result, err := g.payer.Transfer(ctx, claimer, amount)
	if err != nil {
		metrics.ClaimsTotal.WithLabelValues("transfer_failed").Inc()
		return nil, fmt.Errorf("claim: payout for %s: %w", claimer, err)
	}

	receipt := &Receipt{
		ID:        idgen.WithPrefix("clm_"),
		Campaign:  cfg.Campaign,
		Claimer:   claimer,
		Score:     rec.Score,
		AmountWei: cfg.AmountWei,
		TxHash:    result.TxHash,
		PaidAt:    time.Now(),
	}
	if err := g.receipts.Create(ctx, receipt); err != nil {
		// Funds already moved; surface the receipt write failure loudly
		// rather than pretending the claim failed.
		g.logger.Error("paid claim but failed to record receipt",
			"campaign", campaign,
			"claimer", claimer,
			"tx", result.TxHash,
			"error", err,
		)
		return receipt, fmt.Errorf("claim: record receipt for %s: %w", claimer, err)
	}

	metrics.ClaimsTotal.WithLabelValues("paid").Inc()
	if wei, ok := new(big.Int).SetString(cfg.AmountWei, 10); ok {
		f, _ := new(big.Float).SetInt(wei).Float64()
		metrics.ClaimPayoutsWei.Add(f)
	}

	if g.events != nil {
		g.events.ClaimPaid(cfg.Campaign, claimer, cfg.AmountWei, result.TxHash)
	}

	g.logger.Info("claim paid",
		"campaign", campaign,
		"claimer", claimer,
		"score", rec.Score,
		"amountWei", cfg.AmountWei,
		"tx", result.TxHash,
	)
	return receipt, nil
}
