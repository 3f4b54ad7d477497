package wallet

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// PoolTransaction is one entry of a node's transaction pool.
type PoolTransaction struct {
	Hash                 common.Hash
	From                 common.Address
	To                   *common.Address
	Nonce                uint64
	Gas                  uint64
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// PoolContent is the transaction pool grouped by sender. Each sender's
// transactions are ordered by ascending nonce.
type PoolContent struct {
	Pending map[common.Address][]*PoolTransaction
	Queued  map[common.Address][]*PoolTransaction
}

// rpcPoolTransaction mirrors the RPCTransaction objects returned by txpool_content.
type rpcPoolTransaction struct {
	Hash                 common.Hash     `json:"hash"`
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to"`
	Nonce                hexutil.Uint64  `json:"nonce"`
	Gas                  hexutil.Uint64  `json:"gas"`
	GasPrice             *hexutil.Big    `json:"gasPrice"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas"`
}

// rpcPoolContent is the raw txpool_content result: section -> sender -> nonce -> tx.
type rpcPoolContent map[string]map[string]map[string]*rpcPoolTransaction

func (raw rpcPoolContent) toPoolContent() (*PoolContent, error) {
	pending, err := flattenPoolSection(raw["pending"])
	if err != nil {
		return nil, fmt.Errorf("pending section: %w", err)
	}
	queued, err := flattenPoolSection(raw["queued"])
	if err != nil {
		return nil, fmt.Errorf("queued section: %w", err)
	}
	return &PoolContent{Pending: pending, Queued: queued}, nil
}

func flattenPoolSection(section map[string]map[string]*rpcPoolTransaction) (map[common.Address][]*PoolTransaction, error) {
	out := make(map[common.Address][]*PoolTransaction, len(section))
	for account, byNonce := range section {
		if !common.IsHexAddress(account) {
			return nil, fmt.Errorf("invalid sender key %q", account)
		}
		sender := common.HexToAddress(account)

		txs := make([]*PoolTransaction, 0, len(byNonce))
		for _, tx := range byNonce {
			if tx == nil {
				continue
			}
			txs = append(txs, &PoolTransaction{
				Hash:                 tx.Hash,
				From:                 tx.From,
				To:                   tx.To,
				Nonce:                uint64(tx.Nonce),
				Gas:                  uint64(tx.Gas),
				GasPrice:             (*big.Int)(tx.GasPrice),
				MaxFeePerGas:         (*big.Int)(tx.MaxFeePerGas),
				MaxPriorityFeePerGas: (*big.Int)(tx.MaxPriorityFeePerGas),
			})
		}
		txs = append(out[sender], txs...)
		sort.SliceStable(txs, func(i, j int) bool { return txs[i].Nonce < txs[j].Nonce })
		out[sender] = txs
	}
	return out, nil
}

// ParsePoolContent decodes a raw txpool_content result.
func ParsePoolContent(data []byte) (*PoolContent, error) {
	var raw rpcPoolContent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode pool content: %w", err)
	}
	return raw.toPoolContent()
}
