// Package testchain runs an in-process chain whose block production is driven
// by fee thresholds, for exercising fee escalation end to end.
package testchain

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/eth/ethconfig"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/node"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/gas-escalator/pkg/wallet"
)

// ChainID is the chain id of the simulated chain.
const ChainID = 1337

// DefaultBalance funds every account passed to New with 1000 ether.
var DefaultBalance = new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))

// Threshold is the minimum fee pair a transaction needs to be mined.
type Threshold struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Harness wraps a simulated backend. Transactions only make it into a block
// when they pay at least the configured threshold; everything else is
// dropped and the chain moves on without it.
type Harness struct {
	backend *simulated.Backend
	client  *wallet.NetworkClient
	dir     string
	keys    *wallet.KeyManager
	log     *logrus.Logger

	mu        sync.Mutex
	threshold *Threshold
}

// New starts a simulated chain funding the key's account. The node serves its
// full API, txpool namespace included, over an IPC socket in a temporary
// directory that Close removes.
func New(keys *wallet.KeyManager, log *logrus.Logger) (*Harness, error) {
	if log == nil {
		log = logrus.New()
	}

	dir, err := os.MkdirTemp("", "testchain")
	if err != nil {
		return nil, fmt.Errorf("failed to create chain directory: %w", err)
	}
	endpoint := filepath.Join(dir, "chain.ipc")

	backend := simulated.NewBackend(types.GenesisAlloc{
		keys.GetAddress(): {Balance: DefaultBalance},
	}, func(nodeConf *node.Config, _ *ethconfig.Config) {
		nodeConf.IPCPath = endpoint
	})

	fail := func(err error) (*Harness, error) {
		backend.Close()
		os.RemoveAll(dir)
		return nil, err
	}

	raw, err := rpc.Dial(endpoint)
	if err != nil {
		return fail(fmt.Errorf("failed to dial simulated chain: %w", err))
	}

	config, err := wallet.DefaultNetworkConfig(wallet.DEV)
	if err != nil {
		raw.Close()
		return fail(err)
	}
	config.ChainID = ChainID

	return &Harness{
		backend: backend,
		client:  wallet.NewNetworkClient(raw, config, log),
		dir:     dir,
		keys:    keys,
		log:     log,
	}, nil
}

// Client returns a network client connected to the chain.
func (h *Harness) Client() *wallet.NetworkClient {
	return h.client
}

// Backend exposes the simulated backend.
func (h *Harness) Backend() *simulated.Backend {
	return h.backend
}

// SetEIP1559Threshold sets the fees a transaction must pay to be mined.
func (h *Harness) SetEIP1559Threshold(maxFeePerGas, maxPriorityFeePerGas *big.Int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.threshold = &Threshold{
		MaxFeePerGas:         new(big.Int).Set(maxFeePerGas),
		MaxPriorityFeePerGas: new(big.Int).Set(maxPriorityFeePerGas),
	}
}

// Mine decides the fate of the pending transaction hash. If it pays the
// threshold, a block including it is mined and Mine returns true. Otherwise
// the pool is dropped, an empty block is mined and, when original is not nil,
// original is signed with the harness key and broadcast again so the next
// attempt finds it pending. Without a threshold Mine does nothing.
func (h *Harness) Mine(ctx context.Context, hash common.Hash, original *wallet.TransactionRequest) (bool, error) {
	h.mu.Lock()
	threshold := h.threshold
	h.mu.Unlock()

	log := h.log.WithField("tx_hash", hash.Hex())
	if threshold == nil {
		log.Warn("No EIP-1559 threshold configured, skipping mining")
		return false, nil
	}

	tx, _, err := h.client.TransactionByHash(ctx, hash)
	if err != nil {
		return false, err
	}

	if tx.GasFeeCap().Cmp(threshold.MaxFeePerGas) >= 0 && tx.GasTipCap().Cmp(threshold.MaxPriorityFeePerGas) >= 0 {
		block := h.backend.Commit()
		log.WithFields(logrus.Fields{
			"block_hash":               block.Hex(),
			"max_fee_per_gas":          tx.GasFeeCap().String(),
			"max_priority_fee_per_gas": tx.GasTipCap().String(),
		}).Info("Transaction meets threshold, mined")
		return true, nil
	}

	h.backend.Rollback()
	h.backend.Commit()
	log.WithFields(logrus.Fields{
		"max_fee_per_gas":          tx.GasFeeCap().String(),
		"max_priority_fee_per_gas": tx.GasTipCap().String(),
	}).Info("Transaction below threshold, dropped")

	if original == nil {
		return false, nil
	}
	return false, h.resend(ctx, original)
}

func (h *Harness) resend(ctx context.Context, original *wallet.TransactionRequest) error {
	req := original.Clone()
	if req.ChainID == nil {
		req.WithChainID(big.NewInt(ChainID))
	}
	if !req.IsLegacy() && (req.MaxFeePerGas == nil || req.MaxPriorityFeePerGas == nil) {
		fees, err := h.client.EstimateEIP1559Fees(ctx)
		if err != nil {
			return err
		}
		req.WithMaxFeePerGas(fees.MaxFeePerGas).WithMaxPriorityFeePerGas(fees.MaxPriorityFeePerGas)
	}
	if req.Gas == nil {
		gas, err := h.client.EstimateGas(ctx, req)
		if err != nil {
			return err
		}
		req.WithGas(gas)
	}

	tx, err := h.keys.SignRequest(req, req.ChainID)
	if err != nil {
		return err
	}
	if err := h.client.SendTransaction(ctx, tx); err != nil {
		return err
	}
	h.log.WithField("tx_hash", tx.Hash().Hex()).Debug("Original transaction rebroadcast")
	return nil
}

// Close disconnects the client and shuts the chain down.
func (h *Harness) Close() error {
	h.client.Close()
	err := h.backend.Close()
	if rmErr := os.RemoveAll(h.dir); err == nil {
		err = rmErr
	}
	return err
}
