package sender_test

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/lisanmuaddib/gas-escalator/pkg/wallet"
)

// fakeNode keeps one pending transaction per sender and nonce, the way a
// node's pool replaces same-nonce transactions.
type fakeNode struct {
	mu sync.Mutex

	chainID  *big.Int
	block    uint64
	nonce    uint64
	fees     wallet.FeeEstimate
	pending  map[common.Address]map[uint64]*types.Transaction
	sent     []*types.Transaction
	mined    map[common.Hash]*types.Receipt
	sendErr  error
	gasCalls int
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		chainID: big.NewInt(1337),
		block:   1,
		fees: wallet.FeeEstimate{
			MaxFeePerGas:         big.NewInt(2_000_000_000),
			MaxPriorityFeePerGas: big.NewInt(1_000_000_000),
		},
		pending: make(map[common.Address]map[uint64]*types.Transaction),
		mined:   make(map[common.Hash]*types.Receipt),
	}
}

func (n *fakeNode) EstimateGas(ctx context.Context, req *wallet.TransactionRequest) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gasCalls++
	return 21000, nil
}

func (n *fakeNode) EstimateEIP1559Fees(ctx context.Context) (wallet.FeeEstimate, error) {
	return wallet.FeeEstimate{
		MaxFeePerGas:         new(big.Int).Set(n.fees.MaxFeePerGas),
		MaxPriorityFeePerGas: new(big.Int).Set(n.fees.MaxPriorityFeePerGas),
	}, nil
}

func (n *fakeNode) PoolContent(ctx context.Context) (*wallet.PoolContent, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	content := &wallet.PoolContent{Pending: make(map[common.Address][]*wallet.PoolTransaction)}
	for from, byNonce := range n.pending {
		for nonce, tx := range byNonce {
			content.Pending[from] = append(content.Pending[from], &wallet.PoolTransaction{
				Hash:                 tx.Hash(),
				From:                 from,
				Nonce:                nonce,
				MaxFeePerGas:         tx.GasFeeCap(),
				MaxPriorityFeePerGas: tx.GasTipCap(),
			})
		}
	}
	return content, nil
}

func (n *fakeNode) BlockNumber(ctx context.Context) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.block, nil
}

func (n *fakeNode) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nonce, nil
}

func (n *fakeNode) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(n.chainID), nil
}

func (n *fakeNode) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendErr != nil {
		return n.sendErr
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return err
	}
	if n.pending[from] == nil {
		n.pending[from] = make(map[uint64]*types.Transaction)
	}
	n.pending[from][tx.Nonce()] = tx
	n.sent = append(n.sent, tx)
	return nil
}

func (n *fakeNode) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if receipt, ok := n.mined[hash]; ok {
		return receipt, nil
	}
	return nil, wallet.NewWalletError(wallet.ErrCodeReceiptNotFound, "receipt not found", errors.New("not found"), wallet.DEV)
}

// newBlock advances the chain, mining hash when it is non-zero.
func (n *fakeNode) newBlock(hash common.Hash) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.block++
	if hash != (common.Hash{}) {
		n.mined[hash] = &types.Receipt{
			TxHash:      hash,
			Status:      types.ReceiptStatusSuccessful,
			BlockNumber: new(big.Int).SetUint64(n.block),
		}
	}
}

func (n *fakeNode) sentCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// restore puts tx back as the pending transaction for its sender and nonce,
// dropping whatever replaced it.
func (n *fakeNode) restore(tx *types.Transaction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	from, _ := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	n.pending[from][tx.Nonce()] = tx
}

func (n *fakeNode) sentAt(i int) *types.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent[i]
}
