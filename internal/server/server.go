// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/Ekaji/veritas/internal/agent"
	"github.com/Ekaji/veritas/internal/attest"
	"github.com/Ekaji/veritas/internal/claim"
	"github.com/Ekaji/veritas/internal/config"
	"github.com/Ekaji/veritas/internal/features"
	"github.com/Ekaji/veritas/internal/logging"
	"github.com/Ekaji/veritas/internal/metrics"
	"github.com/Ekaji/veritas/internal/observer"
	"github.com/Ekaji/veritas/internal/realtime"
	"github.com/Ekaji/veritas/internal/scoring"
	"github.com/Ekaji/veritas/internal/signer"
	"github.com/Ekaji/veritas/internal/traces"
	"github.com/Ekaji/veritas/internal/treasury"
	"github.com/Ekaji/veritas/internal/trust"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg      *config.Config
	signer   *signer.Signer
	trust    trust.Store
	configs  claim.ConfigStore
	receipts claim.ReceiptStore
	gate     *claim.Gate
	payer    treasury.Transactor
	scanner  *observer.ChainScanner
	runner   *agent.Runner
	hub      *realtime.Hub

	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	shutdownOtel func(context.Context) error
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithTreasury sets a custom payout transactor (for testing)
func WithTreasury(t treasury.Transactor) Option {
	return func(s *Server) {
		s.payer = t
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set logger/treasury)
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	sig, err := signer.FromHex(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}
	s.signer = sig

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		trustStore := trust.NewPostgresStore(db)
		if err := trustStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate trust store", "error", err)
		}
		s.trust = trustStore

		configStore := claim.NewPostgresConfigStore(db)
		if err := configStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate claim config store", "error", err)
		}
		s.configs = configStore

		receiptStore := claim.NewPostgresReceiptStore(db)
		if err := receiptStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate claim receipt store", "error", err)
		}
		s.receipts = receiptStore
	} else {
		s.trust = trust.NewMemoryStore()
		s.configs = claim.NewMemoryConfigStore()
		s.receipts = claim.NewMemoryReceiptStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Payout treasury over the configured chain, unless injected
	if s.payer == nil {
		t, err := treasury.NewEth(treasury.Config{
			RPCURL:  cfg.RPCURL,
			ChainID: cfg.ChainID,
		}, sig)
		if err != nil {
			return nil, fmt.Errorf("failed to create treasury: %w", err)
		}
		s.payer = t
	}
	s.logger.Info("treasury configured", "address", s.payer.Address())

	// Chain scanner doubles as candidate source and activity provider
	scanner, err := observer.NewChainScanner(observer.Config{
		RPCURL:     cfg.RPCURL,
		ChainID:    cfg.ChainID,
		ScanBlocks: cfg.ScanBlocks,
	}, logging.Component(s.logger, "scanner"))
	if err != nil {
		return nil, fmt.Errorf("failed to create chain scanner: %w", err)
	}
	s.scanner = scanner

	// Realtime hub for WebSocket streaming
	s.hub = realtime.NewHub(logging.Component(s.logger, "hub"))

	// Scoring pipeline
	linker := features.NewClusterLinker(cfg.FundingCluster)
	extractor := features.NewExtractor(scanner, linker)
	attester := attest.New(s.trust, sig.Address(), logging.Component(s.logger, "attest"))

	runnerOpts := []agent.Option{
		agent.WithInterval(cfg.PassInterval),
		agent.WithCandidateLimit(cfg.CandidateLimit),
		agent.WithAttestThreshold(cfg.AttestThreshold),
		agent.WithResultHook(func(wallet string, result scoring.Result) {
			s.hub.BroadcastScore(wallet, result.Score, result.Flags.String())
		}),
	}
	if cfg.AttestAll {
		runnerOpts = append(runnerOpts, agent.WithAttestAll())
	}
	s.runner = agent.NewRunner(scanner, extractor, scoring.NewScorer(), attester,
		logging.Component(s.logger, "agent"), runnerOpts...)
	s.logger.Info("scoring pipeline configured",
		"interval", cfg.PassInterval,
		"candidateLimit", cfg.CandidateLimit,
		"attestThreshold", cfg.AttestThreshold,
		"attestAll", cfg.AttestAll,
		"fundingCluster", linker.Size(),
	)

	// Claim gate with realtime payout events
	s.gate = claim.NewGate(s.configs, s.receipts, s.trust, s.payer, s.logger).
		WithEvents(&hubClaimEmitter{s.hub})

	// Auto-create the configured campaign so claims work out of the box
	if cfg.Campaign != "" {
		err := s.configs.Create(ctx, &claim.Config{
			Campaign:  cfg.Campaign,
			MinScore:  cfg.MinScore,
			Authority: sig.Address(),
			Treasury:  s.payer.Address(),
			AmountWei: cfg.ClaimAmountWei,
		})
		switch {
		case errors.Is(err, claim.ErrAlreadyExists):
			s.logger.Info("campaign already initialized", "campaign", cfg.Campaign)
		case err != nil:
			return nil, fmt.Errorf("failed to initialize campaign: %w", err)
		default:
			s.logger.Info("campaign initialized",
				"campaign", cfg.Campaign,
				"minScore", cfg.MinScore,
				"amountWei", cfg.ClaimAmountWei,
			)
		}
	}

	// Tracing (no-op without an endpoint)
	shutdown, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.shutdownOtel = shutdown
	}

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for real-time score and claim events
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")

	trustHandler := trust.NewHandler(s.trust)
	trustHandler.RegisterRoutes(v1)

	claimHandler := claim.NewHandler(s.gate, s.configs, s.receipts, s.signer.Address())
	claimHandler.RegisterRoutes(v1)

	v1.GET("/stats", s.statsHandler)
}

// Handlers

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if _, err := s.payer.BalanceWei(ctx); err != nil {
		checks["rpc"] = "unhealthy"
	} else {
		checks["rpc"] = "healthy"
	}

	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v != "healthy" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Veritas",
		"description": "Wallet trust scoring and threshold-gated claim payouts",
		"version":     "0.1.0",
		"chainId":     s.cfg.ChainID,
		"authority":   s.signer.Address(),
	})
}

// statsHandler returns realtime hub counters and pipeline settings
func (s *Server) statsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"realtime": s.hub.Stats(),
		"pipeline": gin.H{
			"passInterval":   s.cfg.PassInterval.String(),
			"candidateLimit": s.cfg.CandidateLimit,
			"attestAll":      s.cfg.AttestAll,
			"scanBlocks":     s.cfg.ScanBlocks,
		},
	})
}

// Lifecycle

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"authority", s.signer.Address(),
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start the scoring pipeline
	go s.runner.Start(runCtx)

	// Start realtime hub
	go s.hub.Run(runCtx)

	// Export connection pool stats
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (runner, hub)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.runner.Stop()
	s.logger.Info("scoring pipeline stopped")

	if s.shutdownOtel != nil {
		if err := s.shutdownOtel(ctx); err != nil {
			s.logger.Error("trace exporter shutdown error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// hubClaimEmitter adapts realtime.Hub to claim.EventEmitter
type hubClaimEmitter struct {
	hub *realtime.Hub
}

func (e *hubClaimEmitter) ClaimPaid(campaign, claimer, amountWei, txHash string) {
	e.hub.BroadcastClaim(campaign, claimer, amountWei, txHash)
}

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
