package claim

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"

	"github.com/Ekaji/veritas/internal/treasury"
	"github.com/Ekaji/veritas/internal/trust"
)

const (
	campaign  = "genesis-airdrop"
	agentAddr = "0x9999000000000000000000000000000000000099"
	claimer   = "0xabcd000000000000000000000000000000000001"
	payout    = "100000000000000000" // 0.1 in wei
)

func newGateFixture(t *testing.T) (*Gate, trust.Store, *treasury.MemoryTreasury) {
	t.Helper()

	configs := NewMemoryConfigStore()
	err := configs.Create(context.Background(), &Config{
		Campaign:  campaign,
		MinScore:  60,
		Authority: agentAddr,
		Treasury:  agentAddr,
		AmountWei: payout,
	})
	if err != nil {
		t.Fatalf("failed to create campaign: %v", err)
	}

	records := trust.NewMemoryStore()
	payer := treasury.NewMemory(agentAddr, new(big.Int).Lsh(big.NewInt(1), 62))
	gate := NewGate(configs, NewMemoryReceiptStore(), records, payer, slog.Default())
	return gate, records, payer
}

func setScore(t *testing.T, records trust.Store, wallet string, score int) {
	t.Helper()
	if err := records.Create(context.Background(), wallet, agentAddr); err != nil &&
		!errors.Is(err, trust.ErrAlreadyExists) {
		t.Fatalf("create record: %v", err)
	}
	if err := records.Update(context.Background(), wallet, agentAddr, score, 0); err != nil {
		t.Fatalf("set score: %v", err)
	}
}

func TestClaimAtThresholdSucceeds(t *testing.T) {
	gate, records, payer := newGateFixture(t)
	setScore(t, records, claimer, 60) // exactly the minimum

	receipt, err := gate.Claim(context.Background(), campaign, claimer)
	if err != nil {
		t.Fatalf("score equal to minimum must be accepted: %v", err)
	}
	if receipt.Score != 60 || receipt.Claimer != claimer {
		t.Errorf("unexpected receipt: %+v", receipt)
	}
	if receipt.TxHash == "" {
		t.Error("receipt must carry the payout tx hash")
	}

	payouts := payer.Payouts()
	if len(payouts) != 1 {
		t.Fatalf("expected exactly one payout, got %d", len(payouts))
	}
	if payouts[0].AmountWei.String() != payout {
		t.Errorf("payout amount: got %s, want %s", payouts[0].AmountWei, payout)
	}
}

func TestClaimBelowThresholdRejected(t *testing.T) {
	gate, records, payer := newGateFixture(t)
	setScore(t, records, claimer, 59) // one below the minimum

	_, err := gate.Claim(context.Background(), campaign, claimer)
	if !errors.Is(err, ErrLowTrustScore) {
		t.Fatalf("expected ErrLowTrustScore, got %v", err)
	}
	if len(payer.Payouts()) != 0 {
		t.Error("rejected claim must not move funds")
	}
}

func TestClaimWithoutRecordRejected(t *testing.T) {
	gate, _, payer := newGateFixture(t)

	_, err := gate.Claim(context.Background(), campaign, claimer)
	if !errors.Is(err, trust.ErrNotFound) {
		t.Fatalf("expected trust.ErrNotFound, got %v", err)
	}
	if len(payer.Payouts()) != 0 {
		t.Error("claim without a trust record must not move funds")
	}
}

func TestClaimUnknownCampaign(t *testing.T) {
	gate, records, _ := newGateFixture(t)
	setScore(t, records, claimer, 90)

	_, err := gate.Claim(context.Background(), "no-such-campaign", claimer)
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestDoubleClaimRejected(t *testing.T) {
	gate, records, payer := newGateFixture(t)
	setScore(t, records, claimer, 95)

	if _, err := gate.Claim(context.Background(), campaign, claimer); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}

	_, err := gate.Claim(context.Background(), campaign, claimer)
	if !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}
	if len(payer.Payouts()) != 1 {
		t.Errorf("second claim must not pay again, got %d payouts", len(payer.Payouts()))
	}
}

// faultyReceipts wraps a ReceiptStore with an injectable Get failure.
type faultyReceipts struct {
	*MemoryReceiptStore
	getErr error
}

func (s *faultyReceipts) Get(ctx context.Context, campaign, claimer string) (*Receipt, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.MemoryReceiptStore.Get(ctx, campaign, claimer)
}

func TestClaimReceiptLookupFailureBlocksPayout(t *testing.T) {
	configs := NewMemoryConfigStore()
	err := configs.Create(context.Background(), &Config{
		Campaign:  campaign,
		MinScore:  60,
		Authority: agentAddr,
		Treasury:  agentAddr,
		AmountWei: payout,
	})
	if err != nil {
		t.Fatalf("failed to create campaign: %v", err)
	}

	records := trust.NewMemoryStore()
	payer := treasury.NewMemory(agentAddr, new(big.Int).Lsh(big.NewInt(1), 62))
	receipts := &faultyReceipts{MemoryReceiptStore: NewMemoryReceiptStore()}
	gate := NewGate(configs, receipts, records, payer, slog.Default())
	setScore(t, records, claimer, 80)

	if _, err := gate.Claim(context.Background(), campaign, claimer); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}

	// A store outage during the uniqueness check must block the claim,
	// not be mistaken for "no receipt yet".
	receipts.getErr = errors.New("pq: connection reset by peer")
	_, err = gate.Claim(context.Background(), campaign, claimer)
	if err == nil {
		t.Fatal("claim must fail when the receipt lookup fails")
	}
	if errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("store failure must surface as itself, got %v", err)
	}
	if got := len(payer.Payouts()); got != 1 {
		t.Fatalf("treasury must not pay twice, got %d payouts", got)
	}

	// Once the store recovers the repeat claim is rejected normally.
	receipts.getErr = nil
	if _, err := gate.Claim(context.Background(), campaign, claimer); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed after recovery, got %v", err)
	}
	if got := len(payer.Payouts()); got != 1 {
		t.Errorf("payout count after recovery: got %d, want 1", got)
	}
}

func TestClaimTransferFailureLeavesNoReceipt(t *testing.T) {
	gate, records, payer := newGateFixture(t)
	setScore(t, records, claimer, 80)
	payer.FailNext(errors.New("rpc: connection refused"))

	_, err := gate.Claim(context.Background(), campaign, claimer)
	if err == nil {
		t.Fatal("expected transfer failure to surface")
	}

	// The wallet can retry once the transfer path recovers.
	if _, err := gate.Claim(context.Background(), campaign, claimer); err != nil {
		t.Fatalf("retry after transfer failure must succeed: %v", err)
	}
}

func TestClaimObservesLatestScore(t *testing.T) {
	gate, records, _ := newGateFixture(t)
	setScore(t, records, claimer, 30)

	if _, err := gate.Claim(context.Background(), campaign, claimer); !errors.Is(err, ErrLowTrustScore) {
		t.Fatalf("expected rejection at score 30, got %v", err)
	}

	// Re-scored above the threshold; the gate reads current state.
	setScore(t, records, claimer, 75)
	if _, err := gate.Claim(context.Background(), campaign, claimer); err != nil {
		t.Fatalf("claim after re-score failed: %v", err)
	}
}

func TestConfigCreateOnce(t *testing.T) {
	configs := NewMemoryConfigStore()
	cfg := &Config{
		Campaign:  campaign,
		MinScore:  50,
		Authority: agentAddr,
		Treasury:  agentAddr,
		AmountWei: payout,
	}
	if err := configs.Create(context.Background(), cfg); err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	dup := *cfg
	dup.MinScore = 10
	if err := configs.Create(context.Background(), &dup); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	// Original config untouched.
	got, err := configs.Get(context.Background(), campaign)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.MinScore != 50 {
		t.Errorf("duplicate create mutated config: minScore=%d", got.MinScore)
	}
}

func TestConfigValidate(t *testing.T) {
	base := Config{
		Campaign:  campaign,
		MinScore:  50,
		Authority: agentAddr,
		Treasury:  agentAddr,
		AmountWei: payout,
	}

	bad := base
	bad.MinScore = 101
	if err := bad.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("minScore 101: expected ErrInvalidConfig, got %v", err)
	}

	bad = base
	bad.Campaign = ""
	if err := bad.Validate(); err == nil {
		t.Error("empty campaign must fail validation")
	}

	if err := base.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}
