package store

import (
	"context"

	"github.com/agritrace/provenance-anchor/internal/domain"
	"github.com/agritrace/provenance-anchor/internal/store/schema"
)

// RecordBundle is a fully loaded record with its attachments, anchor
// bookkeeping, and verification history
type RecordBundle struct {
	Record           schema.ProvenanceRecord
	Attachments      []schema.FileAttachment
	Anchor           *schema.LedgerAnchor
	VerificationLogs []schema.VerificationLog
}

// Store defines the interface for database operations
type Store interface {
	// EnsureProducerExists provisions a producer row if none exists.
	// Idempotent and safe under concurrent execution; it never overwrites
	// an existing producer.
	EnsureProducerExists(ctx context.Context, producerID string, name string) error

	// PersistRecord inserts the record, its attachments, and a system-audit
	// entry in one transaction, then records the anchor row with duplicate
	// suppression. Returns the new record's internal ID.
	PersistRecord(ctx context.Context, record *schema.ProvenanceRecord, anchorRow *schema.LedgerAnchor, files []schema.FileAttachment) (uint64, error)

	// LoadRecord resolves an identifier (internal id, digest, or anchor
	// transaction hash) to a full record bundle
	LoadRecord(ctx context.Context, identifier string) (*RecordBundle, error)

	// LogVerification appends one verification attempt row
	LogVerification(ctx context.Context, row *schema.VerificationLog) error

	// UpdateAnchorStatus applies an observed confirmation-status transition
	UpdateAnchorStatus(ctx context.Context, txHash string, status domain.AnchorStatus, blockNumber *uint64) error

	// UpdateRecordStatus changes a record's lifecycle status
	UpdateRecordStatus(ctx context.Context, recordID uint64, status domain.RecordStatus) error

	// SoftDeleteAttachment flags an attachment as deleted without removing it
	SoftDeleteAttachment(ctx context.Context, attachmentID uint64) error

	// HealthCheck verifies database connectivity
	HealthCheck(ctx context.Context) error
}
