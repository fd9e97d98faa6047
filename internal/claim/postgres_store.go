package claim

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/Ekaji/veritas/internal/idgen"
)

// PostgresConfigStore persists campaign configs in PostgreSQL.
type PostgresConfigStore struct {
	db *sql.DB
}

// NewPostgresConfigStore creates a PostgreSQL-backed campaign config store.
func NewPostgresConfigStore(db *sql.DB) *PostgresConfigStore {
	return &PostgresConfigStore{db: db}
}

// Migrate creates the claim_configs table if it doesn't exist.
func (s *PostgresConfigStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS claim_configs (
			config_key  VARCHAR(64) PRIMARY KEY,
			campaign    VARCHAR(128) NOT NULL,
			min_score   SMALLINT NOT NULL CHECK (min_score >= 0 AND min_score <= 100),
			authority   VARCHAR(64) NOT NULL,
			treasury    VARCHAR(64) NOT NULL,
			amount_wei  NUMERIC(38,0) NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (s *PostgresConfigStore) Create(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO claim_configs (config_key, campaign, min_score, authority, treasury, amount_wei, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::NUMERIC(38,0), NOW())
		ON CONFLICT (config_key) DO NOTHING
	`, ConfigKey(cfg.Campaign), strings.ToLower(cfg.Campaign), cfg.MinScore,
		strings.ToLower(cfg.Authority), strings.ToLower(cfg.Treasury), cfg.AmountWei)
	if err != nil {
		return fmt.Errorf("failed to create claim config: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create claim config: %w", err)
	}
	if rows == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *PostgresConfigStore) Get(ctx context.Context, campaign string) (*Config, error) {
	cfg := &Config{}
	err := s.db.QueryRowContext(ctx, `
		SELECT campaign, min_score, authority, treasury, amount_wei::TEXT, created_at
		FROM claim_configs
		WHERE config_key = $1
	`, ConfigKey(campaign)).Scan(
		&cfg.Campaign, &cfg.MinScore, &cfg.Authority, &cfg.Treasury, &cfg.AmountWei, &cfg.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim config: %w", err)
	}
	return cfg, nil
}

// PostgresReceiptStore persists claim receipts in PostgreSQL. The unique
// (campaign, claimer) index is what enforces one payout per wallet.
type PostgresReceiptStore struct {
	db *sql.DB
}

// NewPostgresReceiptStore creates a PostgreSQL-backed receipt store.
func NewPostgresReceiptStore(db *sql.DB) *PostgresReceiptStore {
	return &PostgresReceiptStore{db: db}
}

// Migrate creates the claim_receipts table if it doesn't exist.
func (s *PostgresReceiptStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS claim_receipts (
			id          VARCHAR(36) PRIMARY KEY,
			campaign    VARCHAR(128) NOT NULL,
			claimer     VARCHAR(64) NOT NULL,
			score       SMALLINT NOT NULL,
			amount_wei  NUMERIC(38,0) NOT NULL,
			tx_hash     VARCHAR(80) NOT NULL,
			paid_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (campaign, claimer)
		);

		CREATE INDEX IF NOT EXISTS idx_claim_receipts_campaign
			ON claim_receipts (campaign, paid_at DESC);
	`)
	return err
}

func (s *PostgresReceiptStore) Create(ctx context.Context, receipt *Receipt) error {
	if receipt.ID == "" {
		receipt.ID = idgen.WithPrefix("clm_")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO claim_receipts (id, campaign, claimer, score, amount_wei, tx_hash, paid_at)
		VALUES ($1, $2, $3, $4, $5::NUMERIC(38,0), $6, $7)
	`, receipt.ID, strings.ToLower(receipt.Campaign), strings.ToLower(receipt.Claimer),
		receipt.Score, receipt.AmountWei, receipt.TxHash, receipt.PaidAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrAlreadyClaimed
		}
		return fmt.Errorf("failed to create claim receipt: %w", err)
	}
	return nil
}

func (s *PostgresReceiptStore) Get(ctx context.Context, campaign, claimer string) (*Receipt, error) {
	r := &Receipt{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, campaign, claimer, score, amount_wei::TEXT, tx_hash, paid_at
		FROM claim_receipts
		WHERE campaign = $1 AND claimer = $2
	`, strings.ToLower(campaign), strings.ToLower(claimer)).Scan(
		&r.ID, &r.Campaign, &r.Claimer, &r.Score, &r.AmountWei, &r.TxHash, &r.PaidAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim receipt: %w", err)
	}
	return r, nil
}

func (s *PostgresReceiptStore) ListByCampaign(ctx context.Context, campaign string, limit int) ([]*Receipt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, campaign, claimer, score, amount_wei::TEXT, tx_hash, paid_at
		FROM claim_receipts
		WHERE campaign = $1
		ORDER BY paid_at DESC
		LIMIT $2
	`, strings.ToLower(campaign), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list claim receipts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Receipt
	for rows.Next() {
		r := &Receipt{}
		if err := rows.Scan(&r.ID, &r.Campaign, &r.Claimer, &r.Score, &r.AmountWei, &r.TxHash, &r.PaidAt); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
