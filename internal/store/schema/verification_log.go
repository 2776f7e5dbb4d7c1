package schema

import (
	"time"

	"gorm.io/datatypes"

	"github.com/agritrace/provenance-anchor/internal/domain"
)

// VerificationLog represents the verification_logs table - append-only audit
// trail of verification attempts. Every attempt, success or failure, produces
// exactly one row; rows are never updated or deleted.
type VerificationLog struct {
	// ID is the internal database primary key
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// RecordID references the verified record
	RecordID uint64 `gorm:"column:record_id;not null;index:idx_verifications_record"`
	// RequestID is a ULID stamped per verification request
	RequestID string `gorm:"column:request_id;not null;type:text"`
	// TxHash is the anchor transaction used as verification context
	TxHash *string `gorm:"column:tx_hash;type:text"`
	// Method identifies how the verification was performed
	Method domain.VerificationMethod `gorm:"column:method;not null;type:text"`
	// IsValid is the boolean outcome
	IsValid bool `gorm:"column:is_valid;not null"`
	// StoredDigest is the digest on file at verification time
	StoredDigest string `gorm:"column:stored_digest;not null;type:text"`
	// CurrentDigest is the digest computed from the caller-supplied data
	CurrentDigest string `gorm:"column:current_digest;not null;type:text"`
	// CallerIP is the requester's IP for audit
	CallerIP string `gorm:"column:caller_ip;type:text"`
	// CallerUserAgent is the requester's user agent for audit
	CallerUserAgent string `gorm:"column:caller_user_agent;type:text"`
	// Details holds additional context as JSON (ledger cross-check facts, etc.)
	Details datatypes.JSON `gorm:"column:details;type:jsonb"`
	// CreatedAt is the timestamp of the attempt
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the VerificationLog model
func (VerificationLog) TableName() string {
	return "verification_logs"
}
