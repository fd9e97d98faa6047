// Package trust maintains the authoritative per-wallet trust record.
//
// Each scored wallet has exactly one record, stored at a key derived from
// the wallet address. Records are created once with a default score of 100
// and are mutated only by the authority named at creation time. Score
// writes outside [0,100] are rejected atomically.
package trust

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("trust: record not found")
	ErrAlreadyExists = errors.New("trust: record already exists")
	ErrUnauthorized  = errors.New("trust: caller is not the record authority")
	ErrInvalidScore  = errors.New("trust: score must be between 0 and 100")
)

// Score bounds. Every record starts at MaxScore.
const (
	MinScore     = 0
	MaxScore     = 100
	DefaultScore = MaxScore
)

// Flags is a bitmask of independently-set risk categories.
// Multiple flags may be set on the same record.
type Flags uint32

const (
	FlagWashTrading      Flags = 1 << 0
	FlagBotActivity      Flags = 1 << 1
	FlagSybilCluster     Flags = 1 << 2
	FlagMixerInteraction Flags = 1 << 3
	FlagHighFailureRate  Flags = 1 << 4
)

// Has reports whether all bits in f are set.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

// String renders the set flags as a comma-separated list for logs.
func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	names := []struct {
		bit  Flags
		name string
	}{
		{FlagWashTrading, "wash_trading"},
		{FlagBotActivity, "bot_activity"},
		{FlagSybilCluster, "sybil_cluster"},
		{FlagMixerInteraction, "mixer_interaction"},
		{FlagHighFailureRate, "high_failure_rate"},
	}
	var set []string
	for _, n := range names {
		if f.Has(n.bit) {
			set = append(set, n.name)
		}
	}
	if len(set) == 0 {
		return "unknown"
	}
	return strings.Join(set, ",")
}

// Record is the authoritative trust state for one wallet.
type Record struct {
	Owner       string    `json:"owner"`     // wallet being scored, immutable
	Score       int       `json:"score"`     // 0-100
	Flags       Flags     `json:"flags"`     // risk bitmask
	LastUpdated time.Time `json:"lastUpdated"`
	Authority   string    `json:"authority"` // who may mutate score/flags
}

// RecordKey derives the storage key for a wallet's trust record.
// The key is a deterministic function of the address, so existence checks
// and lookups never need a secondary index.
func RecordKey(owner string) string {
	sum := sha256.Sum256([]byte("trust:" + strings.ToLower(owner)))
	return hex.EncodeToString(sum[:])
}

// Store persists trust records.
//
// Implementations must make Create an atomic check-then-create (a second
// Create for the same owner fails with ErrAlreadyExists, never overwrites)
// and must apply Update all-or-nothing: on any validation failure the
// stored score, flags, and timestamp are untouched.
type Store interface {
	// Create inserts a record with default state (score 100, no flags).
	Create(ctx context.Context, owner, authority string) error

	// Update sets score and flags on behalf of caller. Fails with
	// ErrUnauthorized if caller is not the record's authority and with
	// ErrInvalidScore if score is outside [0,100].
	Update(ctx context.Context, owner, caller string, score int, flags Flags) error

	// Get returns a snapshot of the record. Callers must re-read to
	// observe later writes.
	Get(ctx context.Context, owner string) (*Record, error)
}

// ValidScore reports whether s is inside the allowed range.
func ValidScore(s int) bool { return s >= MinScore && s <= MaxScore }
