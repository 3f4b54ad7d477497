package wallet

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Standard ERC20 ABI defines the minimal ABI for interacting with ERC20 tokens.
// It includes the balanceOf and transfer functions which are required for basic token operations.
const erc20ABI = `[
	{
		"constant": true,
		"inputs": [{"name": "_owner", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "balance", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "_to", "type": "address"},
			{"name": "_value", "type": "uint256"}
		],
		"name": "transfer",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	}
]`

var (
	erc20Once   sync.Once
	erc20Parsed abi.ABI
	erc20Err    error
)

func parsedERC20() (abi.ABI, error) {
	erc20Once.Do(func() {
		erc20Parsed, erc20Err = abi.JSON(strings.NewReader(erc20ABI))
	})
	return erc20Parsed, erc20Err
}

// EncodeERC20Transfer returns the call data of transfer(to, amount).
func EncodeERC20Transfer(to common.Address, amount *big.Int) ([]byte, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid token amount %v", amount)
	}
	parsed, err := parsedERC20()
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}
	data, err := parsed.Pack("transfer", to, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack transfer call: %w", err)
	}
	return data, nil
}

// NewERC20TransferRequest builds a request that moves amount tokens of the
// token contract to the recipient. Fee fields are left for the gas filler.
func NewERC20TransferRequest(token, to common.Address, amount *big.Int) (*TransactionRequest, error) {
	data, err := EncodeERC20Transfer(to, amount)
	if err != nil {
		return nil, err
	}
	return NewTransactionRequest().WithTo(token).WithValue(new(big.Int)).WithData(data), nil
}
