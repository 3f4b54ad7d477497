package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// basefeeWiggleMultiplier is how many base fees of headroom a default fee
// estimate leaves above the latest block, mirroring go-ethereum's transactor.
const basefeeWiggleMultiplier = 2

// FeeEstimate is an EIP-1559 fee pair in wei.
type FeeEstimate struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// NetworkClient talks to a single EVM node. Every call goes through an
// optional rate limiter so that a resubmission loop cannot flood the node.
// It is safe for concurrent use.
type NetworkClient struct {
	network NetworkType
	config  NetworkConfig
	rpc     *rpc.Client
	eth     *ethclient.Client
	limiter *rate.Limiter
	log     *logrus.Logger
}

// NewNetworkClient wraps an established RPC connection.
func NewNetworkClient(rpcClient *rpc.Client, config NetworkConfig, log *logrus.Logger) *NetworkClient {
	if log == nil {
		log = logrus.New()
	}
	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}
	if config.GasLimitMultiplier < 1 {
		config.GasLimitMultiplier = 1
	}
	return &NetworkClient{
		network: config.Type,
		config:  config,
		rpc:     rpcClient,
		eth:     ethclient.NewClient(rpcClient),
		limiter: limiter,
		log:     log,
	}
}

// Network returns the network this client is connected to.
func (c *NetworkClient) Network() NetworkType {
	return c.network
}

// Config returns the configuration the client was built with.
func (c *NetworkClient) Config() NetworkConfig {
	return c.config
}

func (c *NetworkClient) throttle(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return NewWalletError(ErrCodeRPCError, "rate limiter wait aborted", err, c.network)
	}
	return nil
}

// EstimateGas asks the node for the gas the request would consume and applies
// the configured safety multiplier.
func (c *NetworkClient) EstimateGas(ctx context.Context, req *TransactionRequest) (uint64, error) {
	if err := c.throttle(ctx); err != nil {
		return 0, err
	}
	estimatedGas, err := c.eth.EstimateGas(ctx, req.CallMsg())
	if err != nil {
		return 0, NewWalletError(ErrCodeGasEstimationFailed, "failed to estimate gas", err, c.network)
	}

	gasLimit := uint64(float64(estimatedGas) * c.config.GasLimitMultiplier)

	c.log.WithFields(logrus.Fields{
		"network":       c.network,
		"estimated_gas": estimatedGas,
		"gas_limit":     gasLimit,
	}).Debug("Estimated gas")

	return gasLimit, nil
}

// EstimateEIP1559Fees returns the node's default fee pair: the suggested tip
// and a fee cap of tip plus twice the latest base fee.
func (c *NetworkClient) EstimateEIP1559Fees(ctx context.Context) (FeeEstimate, error) {
	if err := c.throttle(ctx); err != nil {
		return FeeEstimate{}, err
	}
	tip, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return FeeEstimate{}, NewWalletError(ErrCodeRPCError, "failed to suggest gas tip cap", err, c.network)
	}

	if err := c.throttle(ctx); err != nil {
		return FeeEstimate{}, err
	}
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return FeeEstimate{}, NewWalletError(ErrCodeRPCError, "failed to get latest header", err, c.network)
	}
	if head.BaseFee == nil {
		return FeeEstimate{}, NewWalletError(ErrCodeInvalidNetwork, "latest block has no base fee, network is not EIP-1559", nil, c.network)
	}

	maxFee := new(big.Int).Mul(head.BaseFee, big.NewInt(basefeeWiggleMultiplier))
	maxFee.Add(maxFee, tip)

	c.log.WithFields(logrus.Fields{
		"network":                  c.network,
		"base_fee":                 head.BaseFee.String(),
		"max_fee_per_gas":          maxFee.String(),
		"max_priority_fee_per_gas": tip.String(),
	}).Debug("Estimated EIP-1559 fees")

	return FeeEstimate{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: tip}, nil
}

// PoolContent retrieves the node's transaction pool through txpool_content.
func (c *NetworkClient) PoolContent(ctx context.Context) (*PoolContent, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	var raw rpcPoolContent
	if err := c.rpc.CallContext(ctx, &raw, "txpool_content"); err != nil {
		return nil, NewWalletError(ErrCodeRPCError, "failed to get txpool content", err, c.network)
	}
	content, err := raw.toPoolContent()
	if err != nil {
		return nil, NewWalletError(ErrCodeRPCError, "malformed txpool content", err, c.network)
	}
	return content, nil
}

// BlockNumber returns the number of the most recent block.
func (c *NetworkClient) BlockNumber(ctx context.Context) (uint64, error) {
	if err := c.throttle(ctx); err != nil {
		return 0, err
	}
	number, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, NewWalletError(ErrCodeRPCError, "failed to get current block number", err, c.network)
	}
	return number, nil
}

// ChainID returns the configured chain ID, asking the node when none is configured.
func (c *NetworkClient) ChainID(ctx context.Context) (*big.Int, error) {
	if c.config.ChainID != 0 {
		return big.NewInt(c.config.ChainID), nil
	}
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	chainID, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, NewWalletError(ErrCodeRPCError, "failed to get chain ID", err, c.network)
	}
	return chainID, nil
}

// PendingNonceAt returns the next nonce for account, counting pooled transactions.
func (c *NetworkClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if err := c.throttle(ctx); err != nil {
		return 0, err
	}
	nonce, err := c.eth.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, NewWalletError(ErrCodeRPCError, "failed to get nonce", err, c.network)
	}
	return nonce, nil
}

// SendTransaction broadcasts a signed transaction.
func (c *NetworkClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := c.throttle(ctx); err != nil {
		return err
	}
	if err := c.eth.SendTransaction(ctx, tx); err != nil {
		return NewWalletError(ErrCodeTransactionFailed, "failed to send transaction", err, c.network)
	}
	return nil
}

// TransactionByHash returns a transaction and whether it is still pending.
func (c *NetworkClient) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, false, err
	}
	tx, isPending, err := c.eth.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, false, NewWalletError(ErrCodeRPCError, fmt.Sprintf("failed to get transaction %s", hash.Hex()), err, c.network)
	}
	return tx, isPending, nil
}

// TransactionReceipt returns the receipt of a mined transaction. A transaction
// that is not mined yet yields an ErrCodeReceiptNotFound error wrapping
// ethereum.NotFound.
func (c *NetworkClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	receipt, err := c.eth.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, NewWalletError(ErrCodeReceiptNotFound, "transaction not mined", err, c.network)
	}
	if err != nil {
		return nil, NewWalletError(ErrCodeRPCError, "failed to get transaction receipt", err, c.network)
	}
	return receipt, nil
}

// Close closes the underlying RPC connection.
func (c *NetworkClient) Close() {
	c.eth.Close()
	c.log.WithField("network", c.network).Debug("Closed network connection")
}
