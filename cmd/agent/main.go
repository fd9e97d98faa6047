// Command agent runs the scoring pipeline standalone, without the HTTP
// server. Useful for cron-driven scoring or debugging a single pass.
//
//	go run ./cmd/agent          # run the periodic loop
//	go run ./cmd/agent -once    # run one pass and exit
package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/Ekaji/veritas/internal/agent"
	"github.com/Ekaji/veritas/internal/attest"
	"github.com/Ekaji/veritas/internal/config"
	"github.com/Ekaji/veritas/internal/features"
	"github.com/Ekaji/veritas/internal/logging"
	"github.com/Ekaji/veritas/internal/observer"
	"github.com/Ekaji/veritas/internal/scoring"
	"github.com/Ekaji/veritas/internal/signer"
	"github.com/Ekaji/veritas/internal/trust"
)

func main() {
	once := flag.Bool("once", false, "run a single scoring pass and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, "text")

	sig, err := signer.FromHex(cfg.PrivateKey)
	if err != nil {
		logger.Error("failed to load signing key", "error", err)
		os.Exit(1)
	}

	var store trust.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()

		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}

		pg := trust.NewPostgresStore(db)
		if err := pg.Migrate(context.Background()); err != nil {
			logger.Warn("failed to migrate trust store", "error", err)
		}
		store = pg
	} else {
		// Without a database a standalone agent scores into the void;
		// still useful for dry runs.
		store = trust.NewMemoryStore()
		logger.Warn("no DATABASE_URL set, scores will not persist")
	}

	scanner, err := observer.NewChainScanner(observer.Config{
		RPCURL:     cfg.RPCURL,
		ChainID:    cfg.ChainID,
		ScanBlocks: cfg.ScanBlocks,
	}, logging.Component(logger, "scanner"))
	if err != nil {
		logger.Error("failed to create chain scanner", "error", err)
		os.Exit(1)
	}

	linker := features.NewClusterLinker(cfg.FundingCluster)
	extractor := features.NewExtractor(scanner, linker)
	attester := attest.New(store, sig.Address(), logger)

	opts := []agent.Option{
		agent.WithInterval(cfg.PassInterval),
		agent.WithCandidateLimit(cfg.CandidateLimit),
		agent.WithAttestThreshold(cfg.AttestThreshold),
	}
	if cfg.AttestAll {
		opts = append(opts, agent.WithAttestAll())
	}
	runner := agent.NewRunner(scanner, extractor, scoring.NewScorer(), attester,
		logging.Component(logger, "agent"), opts...)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once {
		logger.Info("running single scoring pass", "authority", sig.Address())
		runner.RunOnce(ctx)
		return
	}

	logger.Info("starting scoring agent",
		"authority", sig.Address(),
		"interval", cfg.PassInterval,
	)
	runner.Start(ctx)
	logger.Info("scoring agent stopped")
}
