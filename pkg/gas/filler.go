package gas

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/lisanmuaddib/gas-escalator/pkg/escalator"
	"github.com/lisanmuaddib/gas-escalator/pkg/txpool"
	"github.com/lisanmuaddib/gas-escalator/pkg/wallet"
)

const (
	// replacementBumpPercent is the minimum fee increase nodes require before
	// they accept a transaction replacing one with the same nonce.
	replacementBumpPercent = 110
	percentDenominator     = 100
)

// ChainClient is the node access Decide needs.
type ChainClient interface {
	EstimateGas(ctx context.Context, req *wallet.TransactionRequest) (uint64, error)
	EstimateEIP1559Fees(ctx context.Context) (wallet.FeeEstimate, error)
	PoolContent(ctx context.Context) (*wallet.PoolContent, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Filler decides and applies fee fields. One Filler may serve any number of
// concurrent Decide calls; they share the escalator's bid store.
type Filler struct {
	escalator *escalator.LinearEscalator
	log       *logrus.Logger
}

// NewFiller creates a filler. With a nil escalator every bid is zero and a
// replacement only gets the minimum bump.
func NewFiller(esc *escalator.LinearEscalator, log *logrus.Logger) *Filler {
	if log == nil {
		log = logrus.New()
	}
	return &Filler{escalator: esc, log: log}
}

// Escalator returns the escalator backing the filler, which may be nil.
func (f *Filler) Escalator() *escalator.LinearEscalator {
	return f.escalator
}

// Status reports whether req already specifies every fee field for its type.
func (f *Filler) Status(req *wallet.TransactionRequest) ControlFlow {
	if req == nil || req.Gas == nil {
		return Ready
	}
	if req.IsLegacy() {
		return Finished
	}
	if req.MaxFeePerGas != nil && req.MaxPriorityFeePerGas != nil {
		return Finished
	}
	return Ready
}

// Decide resolves the gas limit and fees for req.
//
// The gas limit and the baseline fees are taken from the request when set and
// estimated by the node otherwise; both lookups run concurrently. If the pool
// holds a pending transaction from req.From with req.Nonce, the decision
// replaces it: the tip is the larger of the escalated bid and the minimum
// 10% replacement bump, on top of the baseline base fee. Otherwise the
// baseline is returned unchanged.
func (f *Filler) Decide(ctx context.Context, client ChainClient, req *wallet.TransactionRequest) (Decision, error) {
	var (
		gasLimit uint64
		baseline FeeEstimate
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if req.Gas != nil {
			gasLimit = *req.Gas
			return nil
		}
		estimate, err := client.EstimateGas(gctx, req)
		if err != nil {
			return err
		}
		gasLimit = estimate
		return nil
	})
	g.Go(func() error {
		if req.MaxFeePerGas != nil && req.MaxPriorityFeePerGas != nil {
			baseline = FeeEstimate{
				MaxFeePerGas:         new(big.Int).Set(req.MaxFeePerGas),
				MaxPriorityFeePerGas: new(big.Int).Set(req.MaxPriorityFeePerGas),
			}
			return nil
		}
		estimate, err := client.EstimateEIP1559Fees(gctx)
		if err != nil {
			return err
		}
		baseline = estimate
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if baseline.MaxFeePerGas == nil || baseline.MaxPriorityFeePerGas == nil {
		return nil, wallet.NewWalletError(wallet.ErrCodeInvalidFees, "fee estimate is incomplete", nil, "")
	}

	baseFee := new(big.Int).Sub(baseline.MaxFeePerGas, baseline.MaxPriorityFeePerGas)
	if baseFee.Sign() < 0 {
		return nil, wallet.NewWalletError(wallet.ErrCodeInvalidFees, "max fee per gas is below max priority fee per gas", nil, "")
	}

	replacementFee := new(big.Int).Mul(baseline.MaxFeePerGas, big.NewInt(replacementBumpPercent))
	replacementFee.Div(replacementFee, big.NewInt(percentDenominator))
	replacementTip := new(big.Int).Sub(replacementFee, baseFee)

	pending, err := txpool.NewLookup(client, f.log).FindPending(ctx, req.From, req.Nonce)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		f.log.WithFields(logrus.Fields{
			"gas":                      gasLimit,
			"max_fee_per_gas":          baseline.MaxFeePerGas.String(),
			"max_priority_fee_per_gas": baseline.MaxPriorityFeePerGas.String(),
		}).Debug("No pending transaction, using baseline fees")
		return EIP1559{GasLimit: gasLimit, Estimate: baseline}, nil
	}

	currentBlock, err := client.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	bid := f.bid(*pending, currentBlock)
	tip := bid
	if replacementTip.Cmp(tip) > 0 {
		tip = replacementTip
	}
	maxFee := new(big.Int).Add(baseFee, tip)

	f.log.WithFields(logrus.Fields{
		"tx_hash":                  pending.Hex(),
		"current_block":            currentBlock,
		"base_fee":                 baseFee.String(),
		"bid":                      bid.String(),
		"replacement_tip":          replacementTip.String(),
		"max_fee_per_gas":          maxFee.String(),
		"max_priority_fee_per_gas": tip.String(),
	}).Info("Escalating pending transaction")

	return EIP1559{
		GasLimit: gasLimit,
		Estimate: FeeEstimate{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: new(big.Int).Set(tip)},
	}, nil
}

func (f *Filler) bid(id common.Hash, currentBlock uint64) *big.Int {
	if f.escalator == nil {
		return new(big.Int)
	}
	return f.escalator.Bid(id, currentBlock).ToBig()
}

// Fill writes decision onto req and returns it. The fields of the other fee
// type are cleared so the request describes exactly one transaction type.
func (f *Filler) Fill(decision Decision, req *wallet.TransactionRequest) *wallet.TransactionRequest {
	switch d := decision.(type) {
	case Legacy:
		req.WithGas(d.GasLimit).WithGasPrice(d.GasPrice)
		req.MaxFeePerGas = nil
		req.MaxPriorityFeePerGas = nil
	case EIP1559:
		req.WithGas(d.GasLimit).
			WithMaxFeePerGas(d.Estimate.MaxFeePerGas).
			WithMaxPriorityFeePerGas(d.Estimate.MaxPriorityFeePerGas)
		req.GasPrice = nil
	}
	return req
}
