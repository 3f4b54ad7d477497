// Package simulation replays historical blocks to compare a fixed-fee
// submission strategy with fee escalation.
package simulation

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// BlockFee is the base fee of one historical block.
type BlockFee struct {
	BlockNumber   uint64 `json:"block_number"`
	BaseFeePerGas uint64 `json:"base_fee_per_gas"`
}

// HistoricalTx is one transaction included in a historical block.
type HistoricalTx struct {
	BlockNumber      uint64         `json:"block_number"`
	TransactionIndex uint64         `json:"transaction_index"`
	FromAddress      common.Address `json:"from_address"`
	GasLimit         uint64         `json:"gas_limit"`
	GasUsed          uint64         `json:"gas_used"`
	GasPrice         uint64         `json:"gas_price"`
}

// keptTransactionFields are the fields CleanTransactions preserves.
var keptTransactionFields = map[string]struct{}{
	"block_number":      {},
	"transaction_index": {},
	"from_address":      {},
	"gas_limit":         {},
	"gas_used":          {},
	"gas_price":         {},
}

// Block is a historical block with the transactions that paid at least its base fee.
type Block struct {
	Number  uint64
	BaseFee uint64
	Txs     []HistoricalTx
}

// Dataset indexes blocks by number.
type Dataset struct {
	blocks map[uint64]*Block
}

// NewDataset groups txs under their blocks. Transactions of unknown blocks
// and transactions priced below their block's base fee are ignored.
func NewDataset(fees []BlockFee, txs []HistoricalTx) *Dataset {
	d := &Dataset{blocks: make(map[uint64]*Block, len(fees))}
	for _, fee := range fees {
		if _, ok := d.blocks[fee.BlockNumber]; !ok {
			d.blocks[fee.BlockNumber] = &Block{Number: fee.BlockNumber, BaseFee: fee.BaseFeePerGas}
		}
	}
	for _, tx := range txs {
		block, ok := d.blocks[tx.BlockNumber]
		if !ok || tx.GasPrice < block.BaseFee {
			continue
		}
		block.Txs = append(block.Txs, tx)
	}
	return d
}

// Block returns the block with the given number.
func (d *Dataset) Block(number uint64) (*Block, bool) {
	b, ok := d.blocks[number]
	return b, ok
}

// Len returns the number of blocks.
func (d *Dataset) Len() int {
	return len(d.blocks)
}

// BlockNumbers returns every block number in ascending order.
func (d *Dataset) BlockNumbers() []uint64 {
	numbers := make([]uint64, 0, len(d.blocks))
	for n := range d.blocks {
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	return numbers
}

// LoadBlockFees decodes a JSON array of block fees.
func LoadBlockFees(r io.Reader) ([]BlockFee, error) {
	var fees []BlockFee
	if err := json.NewDecoder(r).Decode(&fees); err != nil {
		return nil, fmt.Errorf("failed to decode block fees: %w", err)
	}
	return fees, nil
}

// LoadTransactions decodes a JSON array of historical transactions.
func LoadTransactions(r io.Reader) ([]HistoricalTx, error) {
	var txs []HistoricalTx
	if err := json.NewDecoder(r).Decode(&txs); err != nil {
		return nil, fmt.Errorf("failed to decode transactions: %w", err)
	}
	return txs, nil
}

// LoadFiles reads a block fee file and a transaction file into a dataset.
func LoadFiles(blocksPath, txsPath string) (*Dataset, error) {
	fees, txs, err := LoadRecords(blocksPath, txsPath)
	if err != nil {
		return nil, err
	}
	return NewDataset(fees, txs), nil
}

// LoadRecords reads a block fee file and a transaction file without
// grouping them.
func LoadRecords(blocksPath, txsPath string) ([]BlockFee, []HistoricalTx, error) {
	blocksFile, err := os.Open(blocksPath)
	if err != nil {
		return nil, nil, err
	}
	defer blocksFile.Close()

	fees, err := LoadBlockFees(blocksFile)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", blocksPath, err)
	}

	txsFile, err := os.Open(txsPath)
	if err != nil {
		return nil, nil, err
	}
	defer txsFile.Close()

	txs, err := LoadTransactions(txsFile)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", txsPath, err)
	}
	return fees, txs, nil
}

// CleanTransactions copies a raw transaction export from in to out keeping
// only the fields a replay needs. It returns the number of transactions written.
func CleanTransactions(in io.Reader, out io.Writer) (int, error) {
	var raw []map[string]json.RawMessage
	if err := json.NewDecoder(in).Decode(&raw); err != nil {
		return 0, fmt.Errorf("failed to decode transactions: %w", err)
	}

	cleaned := make([]map[string]json.RawMessage, 0, len(raw))
	for _, tx := range raw {
		kept := make(map[string]json.RawMessage, len(keptTransactionFields))
		for key, value := range tx {
			if _, ok := keptTransactionFields[key]; ok {
				kept[key] = value
			}
		}
		cleaned = append(cleaned, kept)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cleaned); err != nil {
		return 0, fmt.Errorf("failed to encode transactions: %w", err)
	}
	return len(cleaned), nil
}
