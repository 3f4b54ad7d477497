// Package models holds the gorm models of the dataset tables.
package models

import "time"

// Block is one historical block and its base fee.
type Block struct {
	Number        int64     `gorm:"primaryKey;column:number;autoIncrement:false"`
	BaseFeePerGas int64     `gorm:"column:base_fee_per_gas;not null"`
	ImportedAt    time.Time `gorm:"column:imported_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name for GORM
func (Block) TableName() string {
	return "blocks"
}

// Transaction is one historical transaction, keyed by block and position.
type Transaction struct {
	BlockNumber      int64  `gorm:"primaryKey;column:block_number;autoIncrement:false"`
	TransactionIndex int64  `gorm:"primaryKey;column:transaction_index;autoIncrement:false"`
	FromAddress      string `gorm:"column:from_address;not null;size:42"`
	GasLimit         int64  `gorm:"column:gas_limit;not null"`
	GasUsed          int64  `gorm:"column:gas_used;not null"`
	GasPrice         int64  `gorm:"column:gas_price;not null"`
}

// TableName specifies the table name for GORM
func (Transaction) TableName() string {
	return "transactions"
}
