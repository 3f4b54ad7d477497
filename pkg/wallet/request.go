package wallet

import (
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TransactionRequest is an unsigned transaction whose fields may still be
// incomplete. Unset optional fields are nil. The fee fields are the mutable
// part that the gas filler writes before the request is signed.
type TransactionRequest struct {
	From  *common.Address
	To    *common.Address
	Nonce *uint64
	Value *big.Int
	Data  []byte

	// Gas is the gas limit authorised for the transaction
	Gas *uint64

	// GasPrice is only used by legacy transactions
	GasPrice *big.Int

	// EIP-1559 fee fields
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int

	ChainID    *big.Int
	AccessList types.AccessList
}

// NewTransactionRequest returns an empty request.
func NewTransactionRequest() *TransactionRequest {
	return &TransactionRequest{}
}

// WithFrom sets the sender address.
func (r *TransactionRequest) WithFrom(from common.Address) *TransactionRequest {
	r.From = &from
	return r
}

// WithTo sets the recipient address.
func (r *TransactionRequest) WithTo(to common.Address) *TransactionRequest {
	r.To = &to
	return r
}

// WithNonce sets the sender nonce.
func (r *TransactionRequest) WithNonce(nonce uint64) *TransactionRequest {
	r.Nonce = &nonce
	return r
}

// WithValue sets the amount of native currency to transfer in wei.
func (r *TransactionRequest) WithValue(value *big.Int) *TransactionRequest {
	r.Value = copyBig(value)
	return r
}

// WithData sets the call data.
func (r *TransactionRequest) WithData(data []byte) *TransactionRequest {
	r.Data = common.CopyBytes(data)
	return r
}

// WithGas sets the gas limit.
func (r *TransactionRequest) WithGas(gas uint64) *TransactionRequest {
	r.Gas = &gas
	return r
}

// WithGasPrice sets the legacy gas price.
func (r *TransactionRequest) WithGasPrice(price *big.Int) *TransactionRequest {
	r.GasPrice = copyBig(price)
	return r
}

// WithMaxFeePerGas sets the EIP-1559 fee cap.
func (r *TransactionRequest) WithMaxFeePerGas(fee *big.Int) *TransactionRequest {
	r.MaxFeePerGas = copyBig(fee)
	return r
}

// WithMaxPriorityFeePerGas sets the EIP-1559 tip cap.
func (r *TransactionRequest) WithMaxPriorityFeePerGas(fee *big.Int) *TransactionRequest {
	r.MaxPriorityFeePerGas = copyBig(fee)
	return r
}

// WithChainID sets the chain the transaction is signed for.
func (r *TransactionRequest) WithChainID(chainID *big.Int) *TransactionRequest {
	r.ChainID = copyBig(chainID)
	return r
}

// IsLegacy reports whether the request describes a pre-EIP-1559 transaction:
// a gas price is set and neither dynamic fee field is.
func (r *TransactionRequest) IsLegacy() bool {
	return r.GasPrice != nil && r.MaxFeePerGas == nil && r.MaxPriorityFeePerGas == nil
}

// Clone returns a deep copy of the request.
func (r *TransactionRequest) Clone() *TransactionRequest {
	if r == nil {
		return nil
	}
	cpy := &TransactionRequest{
		Value:                copyBig(r.Value),
		Data:                 common.CopyBytes(r.Data),
		GasPrice:             copyBig(r.GasPrice),
		MaxFeePerGas:         copyBig(r.MaxFeePerGas),
		MaxPriorityFeePerGas: copyBig(r.MaxPriorityFeePerGas),
		ChainID:              copyBig(r.ChainID),
	}
	if r.From != nil {
		from := *r.From
		cpy.From = &from
	}
	if r.To != nil {
		to := *r.To
		cpy.To = &to
	}
	if r.Nonce != nil {
		nonce := *r.Nonce
		cpy.Nonce = &nonce
	}
	if r.Gas != nil {
		gas := *r.Gas
		cpy.Gas = &gas
	}
	if r.AccessList != nil {
		cpy.AccessList = make(types.AccessList, len(r.AccessList))
		copy(cpy.AccessList, r.AccessList)
	}
	return cpy
}

// CallMsg converts the request into the message shape expected by
// eth_estimateGas. Fee fields are passed through so the node can check the
// sender's balance against them.
func (r *TransactionRequest) CallMsg() ethereum.CallMsg {
	msg := ethereum.CallMsg{
		To:         r.To,
		Value:      r.Value,
		Data:       r.Data,
		AccessList: r.AccessList,
	}
	if r.From != nil {
		msg.From = *r.From
	}
	if r.IsLegacy() {
		msg.GasPrice = r.GasPrice
	} else {
		msg.GasFeeCap = r.MaxFeePerGas
		msg.GasTipCap = r.MaxPriorityFeePerGas
	}
	return msg
}

// ToTransaction builds the unsigned transaction described by the request.
// Every field a signer needs must be present: nonce, gas, chain ID and the fee
// fields for the request's type.
func (r *TransactionRequest) ToTransaction() (*types.Transaction, error) {
	if r.Nonce == nil {
		return nil, MissingFieldError("nonce")
	}
	if r.Gas == nil {
		return nil, MissingFieldError("gas")
	}
	value := r.Value
	if value == nil {
		value = new(big.Int)
	}

	if r.IsLegacy() {
		return types.NewTx(&types.LegacyTx{
			Nonce:    *r.Nonce,
			GasPrice: r.GasPrice,
			Gas:      *r.Gas,
			To:       r.To,
			Value:    value,
			Data:     r.Data,
		}), nil
	}

	if r.ChainID == nil {
		return nil, MissingFieldError("chainId")
	}
	if r.MaxFeePerGas == nil {
		return nil, MissingFieldError("maxFeePerGas")
	}
	if r.MaxPriorityFeePerGas == nil {
		return nil, MissingFieldError("maxPriorityFeePerGas")
	}
	if r.MaxFeePerGas.Cmp(r.MaxPriorityFeePerGas) < 0 {
		return nil, NewWalletError(ErrCodeInvalidFees, "max fee per gas is below max priority fee per gas", nil, "")
	}
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:    r.ChainID,
		Nonce:      *r.Nonce,
		GasTipCap:  r.MaxPriorityFeePerGas,
		GasFeeCap:  r.MaxFeePerGas,
		Gas:        *r.Gas,
		To:         r.To,
		Value:      value,
		Data:       r.Data,
		AccessList: r.AccessList,
	}), nil
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
