package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeyManager holds the single signing key used to authorise outgoing
// transactions and the address derived from it.
type KeyManager struct {
	privateKey *ecdsa.PrivateKey // The wallet's private key
	address    common.Address    // The derived Ethereum address
}

// NewKeyManager creates a new key manager from a private key string.
// It accepts a hex-encoded private key (with or without 0x prefix) and returns
// an initialized KeyManager instance.
//
// Example:
//
//	km, err := NewKeyManager("0x1234...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	address := km.GetAddress()
func NewKeyManager(privateKeyHex string) (*KeyManager, error) {
	if privateKeyHex == "" {
		return nil, fmt.Errorf("private key cannot be empty")
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return NewKeyManagerFromECDSA(privateKey), nil
}

// NewKeyManagerFromECDSA wraps an already parsed private key.
func NewKeyManagerFromECDSA(privateKey *ecdsa.PrivateKey) *KeyManager {
	return &KeyManager{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}
}

// GetAddress returns the Ethereum address associated with this key manager.
func (km *KeyManager) GetAddress() common.Address {
	return km.address
}

// SignRequest converts a fully populated request into a transaction and signs
// it for the given chain. A request without a chain ID takes chainID; one
// naming another chain is rejected, as is a From address that differs from
// the key's address.
func (km *KeyManager) SignRequest(req *TransactionRequest, chainID *big.Int) (*types.Transaction, error) {
	if req.From != nil && *req.From != km.address {
		return nil, NewWalletError(ErrCodeInvalidAddress,
			fmt.Sprintf("request sender %s does not match signing key %s", req.From.Hex(), km.address.Hex()), nil, "")
	}
	if chainID == nil {
		chainID = req.ChainID
	}
	if chainID == nil {
		return nil, MissingFieldError("chainId")
	}
	if req.ChainID == nil {
		req = req.Clone().WithChainID(chainID)
	} else if req.ChainID.Cmp(chainID) != 0 {
		return nil, NewWalletError(ErrCodeChainMismatch,
			fmt.Sprintf("request chain %s does not match signing chain %s", req.ChainID, chainID), nil, "")
	}

	tx, err := req.ToTransaction()
	if err != nil {
		return nil, err
	}

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), km.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signedTx, nil
}
