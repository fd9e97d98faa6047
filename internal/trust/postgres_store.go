package trust

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PostgresStore persists trust records in PostgreSQL.
//
// The derived record key is the primary key, so Create maps to a single
// INSERT ... ON CONFLICT DO NOTHING and never races a concurrent creator.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed trust record store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the trust_records table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS trust_records (
			record_key    VARCHAR(64) PRIMARY KEY,
			owner_addr    VARCHAR(64) NOT NULL,
			score         SMALLINT NOT NULL CHECK (score >= 0 AND score <= 100),
			flags         BIGINT NOT NULL DEFAULT 0,
			authority     VARCHAR(64) NOT NULL,
			last_updated  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, owner, authority string) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO trust_records (record_key, owner_addr, score, flags, authority, last_updated)
		VALUES ($1, $2, $3, 0, $4, NOW())
		ON CONFLICT (record_key) DO NOTHING
	`, RecordKey(owner), strings.ToLower(owner), DefaultScore, strings.ToLower(authority))
	if err != nil {
		return fmt.Errorf("failed to create trust record: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create trust record: %w", err)
	}
	if rows == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, owner, caller string, score int, flags Flags) error {
	if !ValidScore(score) {
		return ErrInvalidScore
	}

	// Authority check and write happen in one statement; a zero row count
	// means either the record is missing or the caller is not the authority.
	res, err := s.db.ExecContext(ctx, `
		UPDATE trust_records
		SET score = $1, flags = $2, last_updated = NOW()
		WHERE record_key = $3 AND authority = $4
	`, score, int64(flags), RecordKey(owner), strings.ToLower(caller))
	if err != nil {
		return fmt.Errorf("failed to update trust record: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update trust record: %w", err)
	}
	if rows == 0 {
		if _, getErr := s.Get(ctx, owner); getErr != nil {
			return getErr
		}
		return ErrUnauthorized
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, owner string) (*Record, error) {
	var (
		rec     Record
		flags   int64
		updated time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT owner_addr, score, flags, authority, last_updated
		FROM trust_records
		WHERE record_key = $1
	`, RecordKey(owner)).Scan(&rec.Owner, &rec.Score, &flags, &rec.Authority, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trust record: %w", err)
	}

	rec.Flags = Flags(flags)
	rec.LastUpdated = updated
	return &rec, nil
}
