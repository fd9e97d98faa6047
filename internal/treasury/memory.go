package treasury

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Ekaji/veritas/internal/idgen"
)

// MemoryTreasury is an in-memory Transactor for demo/test use. It tracks
// a single balance and debits it atomically per transfer.
type MemoryTreasury struct {
	mu       sync.Mutex
	address  string
	balance  *big.Int
	paid     []*TransferResult
	failNext error
}

// NewMemory creates an in-memory treasury with the given starting balance.
func NewMemory(address string, balanceWei *big.Int) *MemoryTreasury {
	return &MemoryTreasury{
		address: strings.ToLower(address),
		balance: new(big.Int).Set(balanceWei),
	}
}

// FailNext makes the next Transfer fail with err (test hook).
func (t *MemoryTreasury) FailNext(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failNext = err
}

func (t *MemoryTreasury) Address() string { return t.address }

func (t *MemoryTreasury) BalanceWei(_ context.Context) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.balance), nil
}

func (t *MemoryTreasury) Transfer(_ context.Context, to string, amountWei *big.Int) (*TransferResult, error) {
	if !common.IsHexAddress(to) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, to)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failNext != nil {
		err := t.failNext
		t.failNext = nil
		return nil, &TransferError{Op: "transfer", Err: err}
	}
	if t.balance.Cmp(amountWei) < 0 {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, t.balance, amountWei)
	}

	t.balance.Sub(t.balance, amountWei)
	result := &TransferResult{
		TxHash:      "0x" + idgen.Hex(32),
		From:        t.address,
		To:          strings.ToLower(to),
		AmountWei:   new(big.Int).Set(amountWei),
		ConfirmedAt: time.Now(),
	}
	t.paid = append(t.paid, result)
	return result, nil
}

// Payouts returns a snapshot of completed transfers. Entries are copies;
// mutating them does not touch the treasury's record.
func (t *MemoryTreasury) Payouts() []*TransferResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*TransferResult, len(t.paid))
	for i, p := range t.paid {
		cp := *p
		cp.AmountWei = new(big.Int).Set(p.AmountWei)
		out[i] = &cp
	}
	return out
}
