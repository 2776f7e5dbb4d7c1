package schema

import (
	"time"

	"gorm.io/datatypes"

	"github.com/agritrace/provenance-anchor/internal/domain"
)

// LedgerAnchor represents the ledger_anchors table - local bookkeeping for one
// submitted anchor transaction. The chain copy is authoritative for existence;
// this row only tracks what the service observed.
type LedgerAnchor struct {
	// ID is the internal database primary key
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// TxHash is the globally unique transaction identifier
	TxHash string `gorm:"column:tx_hash;not null;type:text;uniqueIndex:idx_anchors_tx_hash"`
	// BlockNumber is the block containing the transaction
	BlockNumber *uint64 `gorm:"column:block_number;type:bigint"`
	// BlockHash is the hash of the containing block
	BlockHash *string `gorm:"column:block_hash;type:text"`
	// FromAddress is the sender (the service signing identity)
	FromAddress string `gorm:"column:from_address;not null;type:text"`
	// ToAddress is the receiver (same identity for self-addressed anchors)
	ToAddress string `gorm:"column:to_address;not null;type:text"`
	// GasUsed is the gas consumed by the transaction
	GasUsed uint64 `gorm:"column:gas_used;not null;default:0"`
	// EffectiveGasPrice is the price paid per gas unit, as a decimal string to
	// avoid overflow. Nil when the receipt reported no price.
	EffectiveGasPrice *string `gorm:"column:effective_gas_price;type:numeric(78,0)"`
	// NetworkID identifies the ledger network the anchor lives on
	NetworkID string `gorm:"column:network_id;type:text"`
	// Status is the observed confirmation status
	Status domain.AnchorStatus `gorm:"column:status;not null;type:text;default:'pending'"`
	// Payload is the decoded envelope recovered from the transaction body
	Payload datatypes.JSON `gorm:"column:payload;type:jsonb"`
	// CreatedAt is the timestamp when this anchor was recorded
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp of the last status transition
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the LedgerAnchor model
func (LedgerAnchor) TableName() string {
	return "ledger_anchors"
}
