package simulation

import "sort"

const (
	// FallbackTip is used for blocks without any priced transaction.
	FallbackTip uint64 = 1_000_000_000

	// tipPercentile selects the tip a cautious wallet would have suggested.
	tipPercentile = 20
)

// TipOracle returns the suggested tip of every block: the 20th percentile of
// the tips its transactions paid above the base fee.
func TipOracle(d *Dataset) map[uint64]uint64 {
	tips := make(map[uint64]uint64, d.Len())
	for number, block := range d.blocks {
		tips[number] = SuggestedTip(block)
	}
	return tips
}

// SuggestedTip computes the oracle tip of one block.
func SuggestedTip(block *Block) uint64 {
	paid := make([]uint64, 0, len(block.Txs))
	for _, tx := range block.Txs {
		if tx.GasPrice >= block.BaseFee {
			paid = append(paid, tx.GasPrice-block.BaseFee)
		}
	}
	if len(paid) == 0 {
		return FallbackTip
	}

	sort.Slice(paid, func(i, j int) bool { return paid[i] < paid[j] })
	index := tipPercentile * len(paid) / 100
	if index > len(paid)-1 {
		index = len(paid) - 1
	}
	return paid[index]
}

// EffectiveTip is the tip a transaction pays in block: its tip, limited by
// what the fee cap leaves above the base fee.
func EffectiveTip(block *Block, maxFee, tip uint64) uint64 {
	if block.BaseFee >= maxFee {
		return 0
	}
	if headroom := maxFee - block.BaseFee; headroom < tip {
		return headroom
	}
	return tip
}

// WouldBeIncluded reports whether a transaction offering maxFee and tip
// could have made it into block: the fee cap covers the base fee and the
// effective tip is at least the smallest tip the block actually included.
func WouldBeIncluded(block *Block, maxFee, tip uint64) bool {
	if block.BaseFee > maxFee {
		return false
	}
	tip = EffectiveTip(block, maxFee, tip)
	for _, tx := range block.Txs {
		if tx.GasPrice >= block.BaseFee && tip >= tx.GasPrice-block.BaseFee {
			return true
		}
	}
	return false
}
