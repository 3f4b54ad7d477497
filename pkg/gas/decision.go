// Package gas decides the fee fields of outgoing transactions. When an earlier
// attempt with the same sender and nonce is still pending, the decision
// replaces it with an escalated priority fee.
package gas

import (
	"math/big"

	"github.com/lisanmuaddib/gas-escalator/pkg/wallet"
)

// FeeEstimate is an EIP-1559 fee pair in wei.
type FeeEstimate = wallet.FeeEstimate

// Decision is the outcome of Filler.Decide. It is either Legacy or EIP1559.
type Decision interface {
	// Gas returns the decided gas limit.
	Gas() uint64
	isDecision()
}

// Legacy fixes a gas limit and a single gas price.
type Legacy struct {
	GasLimit uint64
	GasPrice *big.Int
}

// EIP1559 fixes a gas limit and a fee cap / tip pair.
type EIP1559 struct {
	GasLimit uint64
	Estimate FeeEstimate
}

func (d Legacy) Gas() uint64  { return d.GasLimit }
func (d EIP1559) Gas() uint64 { return d.GasLimit }

func (Legacy) isDecision()  {}
func (EIP1559) isDecision() {}

// ControlFlow is the readiness of a request for the filler.
type ControlFlow int

const (
	// Ready means the filler still has fields to decide.
	Ready ControlFlow = iota
	// Finished means the request already carries every fee field.
	Finished
)

func (c ControlFlow) String() string {
	switch c {
	case Ready:
		return "ready"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}
