// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Blockchain settings
	RPCURL     string
	ChainID    int64
	PrivateKey string // Hex-encoded, with or without 0x prefix
	ScanBlocks uint64 // trailing blocks processed per scan

	// Scoring pipeline
	PassInterval    time.Duration
	CandidateLimit  int
	AttestAll       bool // write clean wallets too
	AttestThreshold int  // clean wallets at or above this score are skipped
	FundingCluster  []string

	// Claims
	Campaign       string // campaign key auto-created on startup (optional)
	MinScore       int
	ClaimAmountWei string

	// Observability
	OTLPEndpoint string
}

// Defaults
const (
	DefaultRPCURL          = "https://sepolia.base.org"
	DefaultChainID         = 84532 // Base Sepolia
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultScanBlocks      = 5
	DefaultPassInterval    = 5 * time.Minute
	DefaultCandidateLimit  = 50
	DefaultAttestThreshold = 50
	DefaultMinScore        = 60
	DefaultClaimAmountWei  = "100000000000000000" // 0.1 in wei
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", DefaultPort),
		Env:             getEnv("ENV", DefaultEnv),
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:     os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RPCURL:          getEnv("RPC_URL", DefaultRPCURL),
		ChainID:         getEnvInt64("CHAIN_ID", DefaultChainID),
		PrivateKey:      os.Getenv("PRIVATE_KEY"), // Required, no default
		ScanBlocks:      uint64(getEnvInt64("SCAN_BLOCKS", DefaultScanBlocks)),
		PassInterval:    getEnvDuration("PASS_INTERVAL", DefaultPassInterval),
		CandidateLimit:  int(getEnvInt64("CANDIDATE_LIMIT", DefaultCandidateLimit)),
		AttestAll:       getEnvBool("ATTEST_ALL", false),
		AttestThreshold: int(getEnvInt64("ATTEST_THRESHOLD", DefaultAttestThreshold)),
		FundingCluster:  getEnvList("FUNDING_CLUSTER"),
		Campaign:        os.Getenv("CAMPAIGN"),
		MinScore:        int(getEnvInt64("MIN_SCORE", DefaultMinScore)),
		ClaimAmountWei:  getEnv("CLAIM_AMOUNT_WEI", DefaultClaimAmountWei),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY is required")
	}

	// Allow both with and without 0x prefix
	key := c.PrivateKey
	if len(key) == 66 && key[:2] == "0x" {
		key = key[2:]
	}
	if len(key) != 64 {
		return fmt.Errorf("PRIVATE_KEY must be 64 hex characters (with or without 0x prefix)")
	}

	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}

	if c.MinScore < 0 || c.MinScore > 100 {
		return fmt.Errorf("MIN_SCORE must be between 0 and 100")
	}

	if c.AttestThreshold < 0 || c.AttestThreshold > 100 {
		return fmt.Errorf("ATTEST_THRESHOLD must be between 0 and 100")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

// getEnvList parses a comma-separated env var, trimming whitespace and
// dropping empty entries.
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
