package simulation

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/gas-escalator/pkg/gas"
	"github.com/lisanmuaddib/gas-escalator/pkg/wallet"
)

// transferGas is the gas limit of every simulated submission.
const transferGas = 21000

// Strategy is how a simulated transaction is priced after submission.
type Strategy int

const (
	// Naive keeps the fees chosen at submission.
	Naive Strategy = iota
	// Escalator re-prices the transaction through the gas filler on every block.
	Escalator
)

func (s Strategy) String() string {
	switch s {
	case Naive:
		return "naive"
	case Escalator:
		return "escalator"
	default:
		return "unknown"
	}
}

// Outcome is one simulated transaction that made it into a block.
type Outcome struct {
	Strategy    Strategy
	SubmittedAt uint64
	IncludedAt  uint64
	MaxFee      uint64
	Tip         uint64
}

// Delay is the number of blocks the transaction waited.
func (o Outcome) Delay() uint64 {
	return o.IncludedAt - o.SubmittedAt
}

// Summary aggregates the outcomes of one strategy.
type Summary struct {
	Strategy  Strategy
	Included  int
	Pending   int
	MeanDelay float64
	MeanTip   float64
	MaxDelay  uint64
}

// Report is the result of a replay.
type Report struct {
	FromBlock uint64
	ToBlock   uint64
	Outcomes  map[Strategy][]Outcome
	Pending   map[Strategy]int
}

// Summary aggregates the outcomes of strategy.
func (r *Report) Summary(strategy Strategy) Summary {
	outcomes := r.Outcomes[strategy]
	s := Summary{Strategy: strategy, Included: len(outcomes), Pending: r.Pending[strategy]}
	if len(outcomes) == 0 {
		return s
	}
	var delay, tip float64
	for _, o := range outcomes {
		delay += float64(o.Delay())
		tip += float64(o.Tip)
		if o.Delay() > s.MaxDelay {
			s.MaxDelay = o.Delay()
		}
	}
	s.MeanDelay = delay / float64(len(outcomes))
	s.MeanTip = tip / float64(len(outcomes))
	return s
}

type simulatedTx struct {
	id          common.Hash
	sender      common.Address
	strategy    Strategy
	submittedAt uint64
	maxFee      uint64
	tip         uint64
	request     *wallet.TransactionRequest
}

// Replayer drives a replay over a dataset.
type Replayer struct {
	dataset *Dataset
	tips    map[uint64]uint64
	filler  *gas.Filler
	log     *logrus.Logger
}

// NewReplayer prepares a replay of dataset. filler re-prices the escalator
// strategy; its escalator decides how aggressively.
func NewReplayer(dataset *Dataset, filler *gas.Filler, log *logrus.Logger) *Replayer {
	if log == nil {
		log = logrus.New()
	}
	return &Replayer{
		dataset: dataset,
		tips:    TipOracle(dataset),
		filler:  filler,
		log:     log,
	}
}

// Replay submits one transaction per strategy at every block in
// [from, from+count) and tracks when each would have been included. Fees at
// submission come from the previous block: the oracle tip and twice the base
// fee on top. Blocks missing from the dataset, or whose previous block is
// missing, are skipped.
func (r *Replayer) Replay(ctx context.Context, from, count uint64) (*Report, error) {
	report := &Report{
		FromBlock: from,
		ToBlock:   from + count,
		Outcomes:  make(map[Strategy][]Outcome),
		Pending:   make(map[Strategy]int),
	}
	chain := newReplayChain()
	var pending []*simulatedTx

	for current := from; current < from+count; current++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		block, ok := r.dataset.Block(current)
		if !ok || len(block.Txs) == 0 {
			continue
		}
		previous, ok := r.dataset.Block(current - 1)
		if !ok {
			continue
		}
		chain.setBlock(current)

		// Re-price what is still waiting before this block's submissions join the pool.
		for _, tx := range pending {
			if tx.strategy != Escalator {
				continue
			}
			if err := r.reprice(ctx, chain, tx, current); err != nil {
				return nil, err
			}
		}

		tip := r.tips[previous.Number]
		maxFee := 2*previous.BaseFee + tip
		for _, strategy := range []Strategy{Naive, Escalator} {
			tx := newSimulatedTx(strategy, current, maxFee, tip)
			pending = append(pending, tx)
			if strategy == Escalator {
				chain.add(tx)
			}
		}

		pending = r.include(block, pending, chain, report)
	}

	for _, tx := range pending {
		report.Pending[tx.strategy]++
	}

	for _, strategy := range []Strategy{Naive, Escalator} {
		s := report.Summary(strategy)
		r.log.WithFields(logrus.Fields{
			"strategy":   strategy.String(),
			"included":   s.Included,
			"pending":    s.Pending,
			"mean_delay": s.MeanDelay,
			"mean_tip":   s.MeanTip,
		}).Info("Replay finished")
	}
	return report, nil
}

// include moves every pending transaction the block would have taken into
// the report. Per strategy, the pool is served by descending tip and stops at
// the first transaction that does not fit.
func (r *Replayer) include(block *Block, pending []*simulatedTx, chain *replayChain, report *Report) []*simulatedTx {
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].tip > pending[j].tip })

	blocked := make(map[Strategy]bool)
	remaining := pending[:0]
	for _, tx := range pending {
		if blocked[tx.strategy] || !WouldBeIncluded(block, tx.maxFee, tx.tip) {
			blocked[tx.strategy] = true
			remaining = append(remaining, tx)
			continue
		}

		outcome := Outcome{
			Strategy:    tx.strategy,
			SubmittedAt: tx.submittedAt,
			IncludedAt:  block.Number,
			MaxFee:      tx.maxFee,
			Tip:         EffectiveTip(block, tx.maxFee, tx.tip),
		}
		report.Outcomes[tx.strategy] = append(report.Outcomes[tx.strategy], outcome)
		chain.remove(tx)

		r.log.WithFields(logrus.Fields{
			"strategy":     tx.strategy.String(),
			"block_number": block.Number,
			"delay":        outcome.Delay(),
			"tip":          outcome.Tip,
		}).Debug("Simulated transaction included")
	}
	return remaining
}

// reprice runs the waiting transaction through the filler as a replacement
// of what the pool holds. When the fees change, the pool reports the
// replacement under a new hash from then on and later replacements are priced
// against it.
func (r *Replayer) reprice(ctx context.Context, chain *replayChain, tx *simulatedTx, block uint64) error {
	decision, err := r.filler.Decide(ctx, chain, tx.request.Clone())
	if err != nil {
		return fmt.Errorf("failed to re-price transaction submitted at block %d: %w", tx.submittedAt, err)
	}
	eip, ok := decision.(gas.EIP1559)
	if !ok {
		return fmt.Errorf("unexpected %T decision", decision)
	}
	if !eip.Estimate.MaxFeePerGas.IsUint64() || !eip.Estimate.MaxPriorityFeePerGas.IsUint64() {
		return fmt.Errorf("decided fees overflow uint64")
	}

	maxFee := eip.Estimate.MaxFeePerGas.Uint64()
	tip := eip.Estimate.MaxPriorityFeePerGas.Uint64()
	if maxFee == tx.maxFee && tip == tx.tip {
		return nil
	}
	previous := chain.replace(tx, block, maxFee, tip)

	r.log.WithFields(logrus.Fields{
		"block_number":    block,
		"submitted_at":    tx.submittedAt,
		"replaced_hash":   previous.Hex(),
		"tx_hash":         tx.id.Hex(),
		"max_fee_per_gas": maxFee,
		"tip":             tip,
	}).Debug("Simulated transaction replaced")
	return nil
}

func newSimulatedTx(strategy Strategy, block, maxFee, tip uint64) *simulatedTx {
	var seed [9]byte
	binary.BigEndian.PutUint64(seed[:8], block)
	seed[8] = byte(strategy)
	sender := common.BytesToAddress(crypto.Keccak256(seed[:])[12:])

	return &simulatedTx{
		id:          crypto.Keccak256Hash(sender.Bytes()),
		sender:      sender,
		strategy:    strategy,
		submittedAt: block,
		maxFee:      maxFee,
		tip:         tip,
		request: wallet.NewTransactionRequest().
			WithFrom(sender).
			WithNonce(0).
			WithGas(transferGas).
			WithMaxFeePerGas(new(big.Int).SetUint64(maxFee)).
			WithMaxPriorityFeePerGas(new(big.Int).SetUint64(tip)),
	}
}

// replayChain serves gas.ChainClient from the replay state. Its pool holds
// the escalator strategy's waiting transactions, each under the hash of its
// latest replacement.
type replayChain struct {
	mu      sync.Mutex
	block   uint64
	pending map[common.Address]*simulatedTx
}

func newReplayChain() *replayChain {
	return &replayChain{pending: make(map[common.Address]*simulatedTx)}
}

func (c *replayChain) setBlock(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.block = n
}

func (c *replayChain) add(tx *simulatedTx) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[tx.sender] = tx
}

// replace swaps the pooled transaction for one paying maxFee and tip and
// returns the hash it replaced.
func (c *replayChain) replace(tx *simulatedTx, block, maxFee, tip uint64) common.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()

	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], block)
	previous := tx.id
	tx.id = crypto.Keccak256Hash(previous.Bytes(), seed[:])
	tx.maxFee = maxFee
	tx.tip = tip
	tx.request.WithMaxFeePerGas(new(big.Int).SetUint64(maxFee)).WithMaxPriorityFeePerGas(new(big.Int).SetUint64(tip))
	return previous
}

func (c *replayChain) remove(tx *simulatedTx) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, tx.sender)
}

func (c *replayChain) EstimateGas(ctx context.Context, req *wallet.TransactionRequest) (uint64, error) {
	return transferGas, nil
}

func (c *replayChain) EstimateEIP1559Fees(ctx context.Context) (wallet.FeeEstimate, error) {
	return wallet.FeeEstimate{}, fmt.Errorf("replay requests carry their own fees")
}

func (c *replayChain) PoolContent(ctx context.Context) (*wallet.PoolContent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	content := &wallet.PoolContent{Pending: make(map[common.Address][]*wallet.PoolTransaction, len(c.pending))}
	for sender, tx := range c.pending {
		content.Pending[sender] = []*wallet.PoolTransaction{{
			Hash:                 tx.id,
			From:                 sender,
			Nonce:                0,
			Gas:                  transferGas,
			MaxFeePerGas:         new(big.Int).SetUint64(tx.maxFee),
			MaxPriorityFeePerGas: new(big.Int).SetUint64(tx.tip),
		}}
	}
	return content, nil
}

func (c *replayChain) BlockNumber(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.block, nil
}
