package schema

import (
	"time"

	"github.com/agritrace/provenance-anchor/internal/domain"
)

// ProvenanceRecord represents the provenance_records table - the off-chain claim
// protected by an anchored digest. DataDigest is immutable once anchored; only
// status and notes are expected to change afterwards.
type ProvenanceRecord struct {
	// ID is the internal database primary key
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// ProducerID references the producer making this claim
	ProducerID string `gorm:"column:producer_id;not null;type:text;index:idx_records_producer"`
	// Product is the product descriptor
	Product string `gorm:"column:product;not null;type:text"`
	// Location is where the recorded event took place
	Location string `gorm:"column:location;not null;type:text"`
	// EventDate is when the recorded event took place
	EventDate time.Time `gorm:"column:event_date;not null;type:timestamptz"`
	// Quantity is the claimed quantity
	Quantity float64 `gorm:"column:quantity;not null"`
	// Unit is the quantity unit (kg, tons, crates)
	Unit string `gorm:"column:unit;type:text"`
	// QualityGrade is the claimed quality grade
	QualityGrade string `gorm:"column:quality_grade;type:text"`
	// Notes is free-text commentary; mutable without re-anchoring
	Notes string `gorm:"column:notes;type:text"`
	// DataDigest is the digest of the canonical record, 0x-prefixed hex
	DataDigest string `gorm:"column:data_digest;not null;type:text;uniqueIndex:idx_records_data_digest"`
	// CombinedDigest is the digest over record plus attached files (nil when no files)
	CombinedDigest *string `gorm:"column:combined_digest;type:text"`
	// TxHash is the anchor transaction this record references (at most one at creation)
	TxHash *string `gorm:"column:tx_hash;type:text;index:idx_records_tx_hash"`
	// Status is the record lifecycle status
	Status domain.RecordStatus `gorm:"column:status;not null;type:text;default:'active'"`
	// Version increases monotonically; re-anchoring requires a new version
	Version uint64 `gorm:"column:version;not null;default:1"`
	// CreatedAt is the timestamp when this record was stored
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this record was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`

	// Associations
	Attachments      []FileAttachment  `gorm:"foreignKey:RecordID;constraint:OnDelete:CASCADE"`
	VerificationLogs []VerificationLog `gorm:"foreignKey:RecordID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the ProvenanceRecord model
func (ProvenanceRecord) TableName() string {
	return "provenance_records"
}
