// Package treasury moves payout funds from the campaign treasury to a
// claimer. The claim gate treats it as an opaque collaborator: a transfer
// either completes in full or fails with ErrTransferFailed; there is no
// partial state.
package treasury

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"
)

var (
	ErrTransferFailed      = errors.New("treasury: transfer failed")
	ErrInsufficientBalance = errors.New("treasury: insufficient balance")
	ErrInvalidAddress      = errors.New("treasury: invalid address")
	ErrTimeout             = errors.New("treasury: confirmation timed out")
)

// TransferError wraps transfer failures with context.
type TransferError struct {
	Op     string // operation that failed
	TxHash string // transaction hash if available
	Err    error  // underlying error
}

func (e *TransferError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("treasury: %s failed (tx: %s): %v", e.Op, e.TxHash, e.Err)
	}
	return fmt.Sprintf("treasury: %s failed: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// TransferResult describes a completed payout.
type TransferResult struct {
	TxHash      string    `json:"txHash"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	AmountWei   *big.Int  `json:"amountWei"`
	BlockNumber uint64    `json:"blockNumber"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

// Transactor executes payouts. Implementations must be atomic per call:
// a returned error means no funds moved (or the transaction reverted and
// the chain rolled it back).
type Transactor interface {
	Transfer(ctx context.Context, to string, amountWei *big.Int) (*TransferResult, error)
	Address() string
	BalanceWei(ctx context.Context) (*big.Int, error)
}
