package observer

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/Ekaji/veritas/internal/features"
)

// ChainClient abstracts the go-ethereum client for testing.
type ChainClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Config for the chain scanner.
type Config struct {
	RPCURL     string
	ChainID    int64
	ScanBlocks uint64 // how many trailing blocks to process per scan
}

// Per-wallet activity cap; oldest entries are dropped beyond this.
const maxActivityPerWallet = 256

// walletWindow holds one wallet's observed activity, newest first.
type walletWindow struct {
	activity []features.Activity
	lastSeen time.Time
}

// ChainScanner polls recent blocks, collecting transaction senders as
// scoring candidates and their per-transaction outcomes as activity.
// It implements both CandidateSource and features.ActivityProvider.
type ChainScanner struct {
	client ChainClient
	signer types.Signer
	cfg    Config
	logger *slog.Logger

	mu        sync.RWMutex
	wallets   map[string]*walletWindow
	lastBlock uint64
}

// Option configures the scanner.
type Option func(*ChainScanner)

// WithClient sets a custom chain client (useful for testing).
func WithClient(client ChainClient) Option {
	return func(s *ChainScanner) { s.client = client }
}

// NewChainScanner creates a scanner over the given RPC endpoint.
func NewChainScanner(cfg Config, logger *slog.Logger, opts ...Option) (*ChainScanner, error) {
	if cfg.ScanBlocks == 0 {
		cfg.ScanBlocks = 5
	}

	s := &ChainScanner{
		signer:  types.LatestSignerForChainID(big.NewInt(cfg.ChainID)),
		cfg:     cfg,
		logger:  logger,
		wallets: make(map[string]*walletWindow),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		client, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("observer: failed to connect to RPC: %w", err)
		}
		s.client = client
	}
	return s, nil
}

// Scan processes blocks since the previous scan (bounded by ScanBlocks)
// and folds their transactions into the activity window. Call once at the
// start of each scoring pass.
func (s *ChainScanner) Scan(ctx context.Context) error {
	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("observer: failed to get head block: %w", err)
	}

	s.mu.RLock()
	last := s.lastBlock
	s.mu.RUnlock()

	from := last + 1
	if last == 0 || head-last > s.cfg.ScanBlocks {
		if head >= s.cfg.ScanBlocks {
			from = head - s.cfg.ScanBlocks + 1
		} else {
			from = 1
		}
	}
	if from > head {
		return nil // nothing new
	}

	for n := from; n <= head; n++ {
		block, err := s.client.BlockByNumber(ctx, new(big.Int).SetUint64(n))
		if err != nil {
			return fmt.Errorf("observer: failed to fetch block %d: %w", n, err)
		}
		s.ingestBlock(ctx, block)
	}

	s.mu.Lock()
	s.lastBlock = head
	tracked := len(s.wallets)
	s.mu.Unlock()

	s.logger.Debug("chain scan complete",
		"fromBlock", from,
		"toBlock", head,
		"trackedWallets", tracked,
	)
	return nil
}

func (s *ChainScanner) ingestBlock(ctx context.Context, block *types.Block) {
	blockTime := time.Unix(int64(block.Time()), 0)

	for _, tx := range block.Transactions() {
		sender, err := types.Sender(s.signer, tx)
		if err != nil {
			continue // unsignable or foreign-chain tx, skip
		}

		failed := false
		if receipt, err := s.client.TransactionReceipt(ctx, tx.Hash()); err == nil && receipt != nil {
			failed = receipt.Status != types.ReceiptStatusSuccessful
		}

		s.record(strings.ToLower(sender.Hex()), features.Activity{
			Timestamp: blockTime,
			Failed:    failed,
		})
	}
}

func (s *ChainScanner) record(wallet string, act features.Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[wallet]
	if !ok {
		w = &walletWindow{}
		s.wallets[wallet] = w
	}

	// Blocks arrive oldest-to-newest; prepend keeps newest first.
	w.activity = append([]features.Activity{act}, w.activity...)
	if len(w.activity) > maxActivityPerWallet {
		w.activity = w.activity[:maxActivityPerWallet]
	}
	w.lastSeen = time.Now()
}

// Candidates returns up to limit wallets, most recently active first.
func (s *ChainScanner) Candidates(_ context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type entry struct {
		wallet   string
		lastSeen time.Time
	}
	entries := make([]entry, 0, len(s.wallets))
	for wallet, w := range s.wallets {
		entries = append(entries, entry{wallet, w.lastSeen})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].lastSeen.After(entries[j].lastSeen)
	})

	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	out := make([]string, limit)
	for i := 0; i < limit; i++ {
		out[i] = entries[i].wallet
	}
	return out, nil
}

// RecentActivity returns the wallet's observed activity, newest first.
// An unknown wallet yields an empty slice: from the window's point of
// view it simply has no activity.
func (s *ChainScanner) RecentActivity(_ context.Context, wallet string, limit int) ([]features.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[strings.ToLower(wallet)]
	if !ok {
		return nil, nil
	}

	n := len(w.activity)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]features.Activity, n)
	copy(out, w.activity[:n])
	return out, nil
}
