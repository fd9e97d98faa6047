// Package signer loads the agent's ECDSA identity key and derives the
// address used as the trust record authority and transaction sender.
//
// The rest of the system treats a Signer only as "a value that can act as
// caller/authority"; nothing outside this package inspects the key.
package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrInvalidPrivateKey = errors.New("signer: invalid private key")

// Signer holds the agent identity key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// FromHex parses a hex-encoded private key, with or without 0x prefix.
func FromHex(hexKey string) (*Signer, error) {
	hexKey = strings.TrimSpace(hexKey)
	hexKey = strings.TrimPrefix(hexKey, "0x")
	if len(hexKey) != 64 {
		return nil, fmt.Errorf("%w: expected 64 hex characters, got %d", ErrInvalidPrivateKey, len(hexKey))
	}

	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the signer's address, lowercased for use as a store key.
func (s *Signer) Address() string {
	return strings.ToLower(s.address.Hex())
}

// CommonAddress returns the signer's address in go-ethereum form.
func (s *Signer) CommonAddress() common.Address {
	return s.address
}

// SignTx signs a transaction for the given chain.
func (s *Signer) SignTx(tx *types.Transaction, chainID int64) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(chainID)), s.key)
	if err != nil {
		return nil, fmt.Errorf("signer: failed to sign transaction: %w", err)
	}
	return signed, nil
}
