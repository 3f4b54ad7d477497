package db

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lisanmuaddib/gas-escalator/pkg/db/models"
	"github.com/lisanmuaddib/gas-escalator/pkg/simulation"
)

const importBatchSize = 500

// DatasetStore persists replay datasets so a simulation can run without the
// raw JSON exports.
type DatasetStore struct {
	mu     sync.Mutex
	logger *logrus.Logger
	db     *gorm.DB
}

func NewDatasetStore(db *gorm.DB, logger *logrus.Logger) *DatasetStore {
	return &DatasetStore{
		logger: logger,
		db:     db,
	}
}

// Close releases the store's database connection.
func (s *DatasetStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	return sqlDB.Close()
}

// Import stores blocks and transactions. Rows already present are left
// untouched, so re-importing an overlapping export is harmless. Transactions
// whose block is not part of fees are skipped.
func (s *DatasetStore) Import(ctx context.Context, fees []simulation.BlockFee, txs []simulation.HistoricalTx) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blocks := make([]models.Block, 0, len(fees))
	for _, f := range fees {
		number, err := toInt64("block_number", f.BlockNumber)
		if err != nil {
			return 0, 0, err
		}
		baseFee, err := toInt64("base_fee_per_gas", f.BaseFeePerGas)
		if err != nil {
			return 0, 0, err
		}
		blocks = append(blocks, models.Block{Number: number, BaseFeePerGas: baseFee})
	}

	known := make(map[uint64]struct{}, len(fees))
	for _, f := range fees {
		known[f.BlockNumber] = struct{}{}
	}

	rows := make([]models.Transaction, 0, len(txs))
	for _, tx := range txs {
		if _, ok := known[tx.BlockNumber]; !ok {
			continue
		}
		row, err := transactionRow(tx)
		if err != nil {
			return 0, 0, err
		}
		rows = append(rows, row)
	}

	var blocksAdded, txsAdded int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(blocks) > 0 {
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(blocks, importBatchSize)
			if result.Error != nil {
				return fmt.Errorf("failed to insert blocks: %w", result.Error)
			}
			blocksAdded = result.RowsAffected
		}
		if len(rows) > 0 {
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, importBatchSize)
			if result.Error != nil {
				return fmt.Errorf("failed to insert transactions: %w", result.Error)
			}
			txsAdded = result.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	s.logger.WithFields(logrus.Fields{
		"blocks":             len(blocks),
		"blocks_added":       blocksAdded,
		"transactions":       len(rows),
		"skipped":            len(txs) - len(rows),
		"transactions_added": txsAdded,
	}).Info("Imported dataset")

	return blocksAdded, txsAdded, nil
}

// Load reads the blocks in [from, from+count) and their transactions, and
// builds a dataset from them. A count of zero loads every stored block.
func (s *DatasetStore) Load(ctx context.Context, from, count uint64) (*simulation.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := s.db.WithContext(ctx).Model(&models.Block{}).Order("number")
	if count > 0 {
		numbers := make(pq.Int64Array, 0, count)
		for n := from; n < from+count; n++ {
			v, err := toInt64("block_number", n)
			if err != nil {
				return nil, err
			}
			numbers = append(numbers, v)
		}
		query = query.Where("number = ANY(?)", numbers)
	}

	var blocks []models.Block
	if err := query.Find(&blocks).Error; err != nil {
		return nil, fmt.Errorf("failed to load blocks: %w", err)
	}
	if len(blocks) == 0 {
		return simulation.NewDataset(nil, nil), nil
	}

	numbers := make(pq.Int64Array, 0, len(blocks))
	fees := make([]simulation.BlockFee, 0, len(blocks))
	for _, b := range blocks {
		numbers = append(numbers, b.Number)
		fees = append(fees, simulation.BlockFee{
			BlockNumber:   uint64(b.Number),
			BaseFeePerGas: uint64(b.BaseFeePerGas),
		})
	}

	var rows []models.Transaction
	if err := s.db.WithContext(ctx).
		Where("block_number = ANY(?)", numbers).
		Order("block_number, transaction_index").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	txs := make([]simulation.HistoricalTx, 0, len(rows))
	for _, r := range rows {
		txs = append(txs, simulation.HistoricalTx{
			BlockNumber:      uint64(r.BlockNumber),
			TransactionIndex: uint64(r.TransactionIndex),
			FromAddress:      common.HexToAddress(r.FromAddress),
			GasLimit:         uint64(r.GasLimit),
			GasUsed:          uint64(r.GasUsed),
			GasPrice:         uint64(r.GasPrice),
		})
	}

	s.logger.WithFields(logrus.Fields{
		"from":         from,
		"count":        count,
		"blocks":       len(fees),
		"transactions": len(txs),
	}).Debug("Loaded dataset")

	return simulation.NewDataset(fees, txs), nil
}

func transactionRow(tx simulation.HistoricalTx) (models.Transaction, error) {
	values := []struct {
		name string
		v    uint64
	}{
		{"block_number", tx.BlockNumber},
		{"transaction_index", tx.TransactionIndex},
		{"gas_limit", tx.GasLimit},
		{"gas_used", tx.GasUsed},
		{"gas_price", tx.GasPrice},
	}
	out := make([]int64, len(values))
	for i, v := range values {
		n, err := toInt64(v.name, v.v)
		if err != nil {
			return models.Transaction{}, err
		}
		out[i] = n
	}
	return models.Transaction{
		BlockNumber:      out[0],
		TransactionIndex: out[1],
		FromAddress:      tx.FromAddress.Hex(),
		GasLimit:         out[2],
		GasUsed:          out[3],
		GasPrice:         out[4],
	}, nil
}

// toInt64 rejects values that do not fit a Postgres BIGINT.
func toInt64(field string, v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%s %d overflows BIGINT", field, v)
	}
	return int64(v), nil
}
