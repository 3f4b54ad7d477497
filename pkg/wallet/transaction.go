package wallet

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// TransactionStatus represents the status of a transaction on the blockchain.
// It tracks important transaction details like hash, confirmation status,
// gas usage, and any errors that occurred during processing.
type TransactionStatus struct {
	// Hash is the unique transaction identifier
	Hash common.Hash

	// Status indicates transaction success (1) or failure (0)
	Status uint64

	// BlockNumber is the block height where transaction was mined
	BlockNumber *big.Int

	// GasUsed is the actual amount of gas consumed
	GasUsed uint64

	// EffectiveGasPrice is the actual gas price paid
	EffectiveGasPrice *big.Int

	// Confirmations is the number of block confirmations
	Confirmations uint64

	// State tracks the current transaction state
	State TransactionState

	// Timestamp when the status was last updated
	Timestamp time.Time
}

// TransactionState represents the possible states of a transaction
type TransactionState int

const (
	// TxStatePending indicates transaction is waiting to be mined
	TxStatePending TransactionState = iota

	// TxStateConfirmed indicates transaction was successfully mined
	TxStateConfirmed

	// TxStateFailed indicates transaction failed during execution
	TxStateFailed

	// TxStateDropped indicates transaction was dropped from mempool
	TxStateDropped
)

func (s TransactionState) String() string {
	switch s {
	case TxStatePending:
		return "pending"
	case TxStateConfirmed:
		return "confirmed"
	case TxStateFailed:
		return "failed"
	case TxStateDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

const (
	// defaultReceiptTimeout is how long to wait for a receipt
	defaultReceiptTimeout = 5 * time.Minute

	// defaultPollInterval is how often to check for receipt
	defaultPollInterval = 5 * time.Second
)

// ReceiptOptions controls WaitForReceipt polling.
type ReceiptOptions struct {
	PollInterval     time.Duration
	Timeout          time.Duration
	MinConfirmations uint64
}

// DefaultReceiptOptions returns the polling defaults used for mainnet-like networks.
func DefaultReceiptOptions() ReceiptOptions {
	return ReceiptOptions{
		PollInterval:     defaultPollInterval,
		Timeout:          defaultReceiptTimeout,
		MinConfirmations: 1,
	}
}

// ReceiptStatus converts a receipt lookup into a TransactionStatus without
// waiting. It returns nil when the transaction is not mined yet.
func (c *NetworkClient) ReceiptStatus(ctx context.Context, hash common.Hash) (*TransactionStatus, error) {
	receipt, err := c.TransactionReceipt(ctx, hash)
	if IsWalletError(err, ErrCodeReceiptNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	currentBlock, err := c.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	state := TxStateConfirmed
	if receipt.Status == 0 {
		state = TxStateFailed
	}
	var confirmations uint64
	if mined := receipt.BlockNumber.Uint64(); currentBlock >= mined {
		confirmations = currentBlock - mined + 1
	}

	return &TransactionStatus{
		Hash:              hash,
		Status:            receipt.Status,
		BlockNumber:       receipt.BlockNumber,
		GasUsed:           receipt.GasUsed,
		EffectiveGasPrice: receipt.EffectiveGasPrice,
		Confirmations:     confirmations,
		State:             state,
		Timestamp:         time.Now(),
	}, nil
}

// WaitForReceipt waits for a transaction receipt and returns the transaction status.
// It polls the network at regular intervals until the transaction is mined and
// has reached the minimum number of confirmations.
//
// Example:
//
//	status, err := client.WaitForReceipt(ctx, txHash, DefaultReceiptOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Transaction confirmed in block %s\n", status.BlockNumber)
func (c *NetworkClient) WaitForReceipt(ctx context.Context, hash common.Hash, opts ReceiptOptions) (*TransactionStatus, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultReceiptTimeout
	}

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	timeout := time.After(opts.Timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, NewWalletError(ErrCodeTimeout, "context cancelled while waiting for receipt", ctx.Err(), c.network)
		case <-timeout:
			return nil, NewWalletError(ErrCodeTimeout, "timeout waiting for receipt", nil, c.network)
		case <-ticker.C:
			status, err := c.ReceiptStatus(ctx, hash)
			if err != nil {
				c.log.WithError(err).WithField("tx_hash", hash.Hex()).Debug("Receipt lookup failed, retrying")
				continue
			}
			if status == nil || status.Confirmations < opts.MinConfirmations {
				continue // Wait for minimum confirmations
			}

			c.log.WithFields(logrus.Fields{
				"tx_hash":       hash.Hex(),
				"block_number":  status.BlockNumber,
				"confirmations": status.Confirmations,
				"state":         status.State.String(),
			}).Debug("Receipt found")

			return status, nil
		}
	}
}
