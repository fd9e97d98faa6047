package treasury

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/Ekaji/veritas/internal/signer"
)

const (
	// nativeTransferGas is the fixed gas cost of a plain value transfer.
	nativeTransferGas = uint64(21000)

	// DefaultConfirmationTimeout bounds the wait for a receipt.
	DefaultConfirmationTimeout = 30 * time.Second

	// confirmationPollInterval between receipt checks.
	confirmationPollInterval = 2 * time.Second
)

// EthClient abstracts the go-ethereum client for testing.
type EthClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// EthTreasury pays claims with native-value transfers signed by the
// treasury key.
type EthTreasury struct {
	client  EthClient
	signer  *signer.Signer
	chainID int64
	timeout time.Duration
}

// Config for creating an EthTreasury.
type Config struct {
	RPCURL  string
	ChainID int64
}

// Option configures the treasury.
type Option func(*EthTreasury)

// WithClient sets a custom client (useful for testing).
func WithClient(client EthClient) Option {
	return func(t *EthTreasury) { t.client = client }
}

// WithConfirmationTimeout overrides the receipt wait timeout.
func WithConfirmationTimeout(d time.Duration) Option {
	return func(t *EthTreasury) { t.timeout = d }
}

// NewEth creates a treasury backed by an Ethereum JSON-RPC endpoint.
func NewEth(cfg Config, sig *signer.Signer, opts ...Option) (*EthTreasury, error) {
	t := &EthTreasury{
		signer:  sig,
		chainID: cfg.ChainID,
		timeout: DefaultConfirmationTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.client == nil {
		client, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("treasury: failed to connect to RPC: %w", err)
		}
		t.client = client
	}
	return t, nil
}

// Address returns the treasury address.
func (t *EthTreasury) Address() string {
	return t.signer.Address()
}

// BalanceWei returns the treasury's current native balance.
func (t *EthTreasury) BalanceWei(ctx context.Context) (*big.Int, error) {
	bal, err := t.client.BalanceAt(ctx, t.signer.CommonAddress(), nil)
	if err != nil {
		return nil, &TransferError{Op: "balance", Err: err}
	}
	return bal, nil
}

// Transfer sends amountWei to the claimer and waits for one confirmation.
// The transaction is all-or-nothing: a revert surfaces as ErrTransferFailed.
func (t *EthTreasury) Transfer(ctx context.Context, to string, amountWei *big.Int) (*TransferResult, error) {
	if !common.IsHexAddress(to) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, to)
	}
	toAddr := common.HexToAddress(to)

	bal, err := t.BalanceWei(ctx)
	if err != nil {
		return nil, err
	}
	if bal.Cmp(amountWei) < 0 {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, bal, amountWei)
	}

	nonce, err := t.client.PendingNonceAt(ctx, t.signer.CommonAddress())
	if err != nil {
		return nil, &TransferError{Op: "nonce", Err: err}
	}

	gasPrice, err := t.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, &TransferError{Op: "gas price", Err: err}
	}

	tx := types.NewTransaction(nonce, toAddr, amountWei, nativeTransferGas, gasPrice, nil)
	signed, err := t.signer.SignTx(tx, t.chainID)
	if err != nil {
		return nil, &TransferError{Op: "sign", Err: err}
	}

	if err := t.client.SendTransaction(ctx, signed); err != nil {
		return nil, &TransferError{Op: "send", Err: err}
	}

	return t.waitForConfirmation(ctx, signed.Hash(), toAddr, amountWei)
}

func (t *EthTreasury) waitForConfirmation(ctx context.Context, hash common.Hash, to common.Address, amount *big.Int) (*TransferResult, error) {
	deadline := time.Now().Add(t.timeout)
	ticker := time.NewTicker(confirmationPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := t.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return nil, &TransferError{Op: "transfer", TxHash: hash.Hex(), Err: ErrTransferFailed}
			}
			return &TransferResult{
				TxHash:      hash.Hex(),
				From:        t.signer.Address(),
				To:          strings.ToLower(to.Hex()),
				AmountWei:   new(big.Int).Set(amount),
				BlockNumber: receipt.BlockNumber.Uint64(),
				ConfirmedAt: time.Now(),
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, &TransferError{Op: "confirm", TxHash: hash.Hex(), Err: ErrTimeout}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
