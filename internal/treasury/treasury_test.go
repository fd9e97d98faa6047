package treasury

import (
	"context"
	"errors"
	"math/big"
	"testing"
)

const (
	treasuryAddr = "0x9999000000000000000000000000000000000099"
	recipient    = "0xabcd000000000000000000000000000000000001"
)

func wei(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad wei literal: " + s)
	}
	return v
}

func TestMemoryTransferDebitsBalance(t *testing.T) {
	m := NewMemory(treasuryAddr, wei("1000"))

	result, err := m.Transfer(context.Background(), recipient, wei("300"))
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if result.TxHash == "" || result.To != recipient {
		t.Errorf("unexpected result: %+v", result)
	}

	balance, err := m.BalanceWei(context.Background())
	if err != nil {
		t.Fatalf("BalanceWei failed: %v", err)
	}
	if balance.Cmp(wei("700")) != 0 {
		t.Errorf("balance after transfer: got %s, want 700", balance)
	}
}

func TestMemoryTransferInsufficientBalance(t *testing.T) {
	m := NewMemory(treasuryAddr, wei("100"))

	_, err := m.Transfer(context.Background(), recipient, wei("300"))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	balance, _ := m.BalanceWei(context.Background())
	if balance.Cmp(wei("100")) != 0 {
		t.Errorf("failed transfer must not move funds: balance %s", balance)
	}
	if len(m.Payouts()) != 0 {
		t.Error("failed transfer must not record a payout")
	}
}

func TestMemoryTransferRejectsBadAddress(t *testing.T) {
	m := NewMemory(treasuryAddr, wei("1000"))

	if _, err := m.Transfer(context.Background(), "not-an-address", wei("1")); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestMemoryFailNext(t *testing.T) {
	m := NewMemory(treasuryAddr, wei("1000"))
	boom := errors.New("rpc down")
	m.FailNext(boom)

	if _, err := m.Transfer(context.Background(), recipient, wei("1")); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}

	// Only the next transfer fails; the one after goes through.
	if _, err := m.Transfer(context.Background(), recipient, wei("1")); err != nil {
		t.Fatalf("transfer after injected failure must succeed: %v", err)
	}
}

func TestMemoryPayoutsSnapshot(t *testing.T) {
	m := NewMemory(treasuryAddr, wei("1000"))
	if _, err := m.Transfer(context.Background(), recipient, wei("10")); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	payouts := m.Payouts()
	if len(payouts) != 1 {
		t.Fatalf("expected 1 payout, got %d", len(payouts))
	}

	// Mutating the snapshot must not reach the treasury's record.
	payouts[0].AmountWei.SetInt64(0)
	if m.Payouts()[0].AmountWei.Cmp(wei("10")) != 0 {
		t.Error("Payouts must return an isolated copy")
	}
}
