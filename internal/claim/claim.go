// Package claim gates a one-shot treasury payout behind a minimum trust
// score.
//
// A campaign is configured once (minimum score, treasury, payout amount)
// and is read-only on the claim path. Each claim reads the claimer's
// current trust record, applies the inclusive threshold, and either pays
// out atomically or rejects. A paid claim leaves a receipt; repeat claims
// by the same wallet are rejected before any funds move.
package claim

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/Ekaji/veritas/internal/trust"
)

var (
	ErrConfigNotFound  = errors.New("claim: campaign config not found")
	ErrReceiptNotFound = errors.New("claim: receipt not found")
	ErrAlreadyExists   = errors.New("claim: campaign config already exists")
	ErrInvalidConfig   = errors.New("claim: invalid campaign config")
	ErrLowTrustScore   = errors.New("claim: trust score below campaign minimum")
	ErrAlreadyClaimed  = errors.New("claim: wallet already claimed this campaign")
)

// Config is the per-campaign claim configuration.
type Config struct {
	Campaign  string    `json:"campaign"`  // campaign key, e.g. "genesis-airdrop"
	MinScore  int       `json:"minScore"`  // inclusive threshold, 0-100
	Authority string    `json:"authority"` // who may create/alter the campaign
	Treasury  string    `json:"treasury"`  // funding source address
	AmountWei string    `json:"amountWei"` // fixed payout per claim, wei decimal string
	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks config invariants before creation.
func (c *Config) Validate() error {
	if c.Campaign == "" {
		return errors.New("claim: campaign key is required")
	}
	if !trust.ValidScore(c.MinScore) {
		return ErrInvalidConfig
	}
	if c.Treasury == "" || c.Authority == "" {
		return errors.New("claim: treasury and authority are required")
	}
	if c.AmountWei == "" {
		return errors.New("claim: payout amount is required")
	}
	return nil
}

// ConfigKey derives the storage key for a campaign config.
func ConfigKey(campaign string) string {
	sum := sha256.Sum256([]byte("claim-config:" + strings.ToLower(campaign)))
	return hex.EncodeToString(sum[:])
}

// Receipt records one paid claim. Its presence is what blocks a second
// payout to the same wallet.
type Receipt struct {
	ID        string    `json:"id"`
	Campaign  string    `json:"campaign"`
	Claimer   string    `json:"claimer"`
	Score     int       `json:"score"` // score observed at claim time
	AmountWei string    `json:"amountWei"`
	TxHash    string    `json:"txHash"`
	PaidAt    time.Time `json:"paidAt"`
}

// ConfigStore persists campaign configs at their derived keys.
// Create must be atomic check-then-create: a second Create for the same
// campaign fails with ErrAlreadyExists and never overwrites.
type ConfigStore interface {
	Create(ctx context.Context, cfg *Config) error
	Get(ctx context.Context, campaign string) (*Config, error)
}

// ReceiptStore persists claim receipts. Create must reject a second
// receipt for the same (campaign, claimer) with ErrAlreadyClaimed.
type ReceiptStore interface {
	Create(ctx context.Context, receipt *Receipt) error
	Get(ctx context.Context, campaign, claimer string) (*Receipt, error)
	ListByCampaign(ctx context.Context, campaign string, limit int) ([]*Receipt, error)
}
