package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agritrace/provenance-anchor/internal/domain"
	"github.com/agritrace/provenance-anchor/internal/logger"
	"github.com/agritrace/provenance-anchor/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// ConfigureConnectionPool configures the connection pool settings for a GORM
// database connection. Zero values fall back to defaults:
//   - MaxOpenConns: 20
//   - MaxIdleConns: 5
//   - ConnMaxLifetime: 5 minutes
//   - ConnMaxIdleTime: 10 minutes
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// EnsureProducerExists provisions a producer row with best-effort defaults.
// Conflict-tolerant insert, not read-then-write, so concurrent calls for the
// same producer are safe and an existing producer is never overwritten.
func (s *pgStore) EnsureProducerExists(ctx context.Context, producerID string, name string) error {
	producer := schema.Producer{ID: producerID}
	if name != "" {
		producer.Name = &name
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&producer).Error
	if err != nil {
		return &domain.PersistenceError{Err: fmt.Errorf("failed to ensure producer %s: %w", producerID, err)}
	}

	return nil
}

// PersistRecord inserts the record and its attachments atomically - a record
// with half its files missing is incoherent. The anchor row is inserted after
// the transaction with duplicate-key suppression and its failure is logged,
// not returned: the anchor already exists immutably on-chain regardless of
// local bookkeeping.
func (s *pgStore) PersistRecord(ctx context.Context, record *schema.ProvenanceRecord, anchorRow *schema.LedgerAnchor, files []schema.FileAttachment) (uint64, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}

		for i := range files {
			files[i].RecordID = record.ID
		}
		if len(files) > 0 {
			if err := tx.Create(&files).Error; err != nil {
				return fmt.Errorf("failed to insert attachments: %w", err)
			}
		}

		audit := schema.SystemAudit{
			Actor:    record.ProducerID,
			Action:   "record_stored",
			Entity:   "provenance_record",
			EntityID: strconv.FormatUint(record.ID, 10),
		}
		if err := tx.Create(&audit).Error; err != nil {
			return fmt.Errorf("failed to insert audit entry: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, &domain.PersistenceError{Err: err}
	}

	if anchorRow != nil {
		err := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "tx_hash"}}, DoNothing: true}).
			Create(anchorRow).Error
		if err != nil {
			logger.WarnCtx(ctx, "Failed to record ledger anchor locally",
				zap.String("tx_hash", anchorRow.TxHash),
				zap.Uint64("record_id", record.ID),
				zap.Error(err))
		}
	}

	return record.ID, nil
}

// LoadRecord resolves an identifier to a record bundle. A 66-character hex
// identifier is tried as a digest first, then as an anchor transaction hash;
// anything numeric resolves by primary key.
func (s *pgStore) LoadRecord(ctx context.Context, identifier string) (*RecordBundle, error) {
	var record schema.ProvenanceRecord

	query := s.db.WithContext(ctx)
	switch {
	case domain.IsHexIdentifier(identifier):
		query = query.Where("data_digest = ? OR combined_digest = ? OR tx_hash = ?", identifier, identifier, identifier)
	default:
		id, err := strconv.ParseUint(identifier, 10, 64)
		if err != nil {
			return nil, &domain.NotFoundError{Identifier: identifier}
		}
		query = query.Where("id = ?", id)
	}

	err := query.First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &domain.NotFoundError{Identifier: identifier}
		}
		return nil, &domain.PersistenceError{Err: fmt.Errorf("failed to load record: %w", err)}
	}

	bundle := &RecordBundle{Record: record}

	err = s.db.WithContext(ctx).
		Where("record_id = ?", record.ID).
		Order("id ASC").
		Find(&bundle.Attachments).Error
	if err != nil {
		return nil, &domain.PersistenceError{Err: fmt.Errorf("failed to load attachments: %w", err)}
	}

	err = s.db.WithContext(ctx).
		Where("record_id = ?", record.ID).
		Order("id ASC").
		Find(&bundle.VerificationLogs).Error
	if err != nil {
		return nil, &domain.PersistenceError{Err: fmt.Errorf("failed to load verification logs: %w", err)}
	}

	if record.TxHash != nil {
		var anchorRow schema.LedgerAnchor
		err = s.db.WithContext(ctx).Where("tx_hash = ?", *record.TxHash).First(&anchorRow).Error
		if err == nil {
			bundle.Anchor = &anchorRow
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &domain.PersistenceError{Err: fmt.Errorf("failed to load anchor: %w", err)}
		}
	}

	return bundle, nil
}

// LogVerification appends one verification attempt row
func (s *pgStore) LogVerification(ctx context.Context, row *schema.VerificationLog) error {
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return &domain.PersistenceError{Err: fmt.Errorf("failed to log verification: %w", err)}
	}
	return nil
}

// UpdateAnchorStatus applies an observed confirmation-status transition
func (s *pgStore) UpdateAnchorStatus(ctx context.Context, txHash string, status domain.AnchorStatus, blockNumber *uint64) error {
	updates := map[string]interface{}{"status": status}
	if blockNumber != nil {
		updates["block_number"] = *blockNumber
	}

	err := s.db.WithContext(ctx).
		Model(&schema.LedgerAnchor{}).
		Where("tx_hash = ?", txHash).
		Updates(updates).Error
	if err != nil {
		return &domain.PersistenceError{Err: fmt.Errorf("failed to update anchor status: %w", err)}
	}

	return nil
}

// UpdateRecordStatus changes a record's lifecycle status. The anchored digest
// commits to none of the fields touched here.
func (s *pgStore) UpdateRecordStatus(ctx context.Context, recordID uint64, status domain.RecordStatus) error {
	result := s.db.WithContext(ctx).
		Model(&schema.ProvenanceRecord{}).
		Where("id = ?", recordID).
		Update("status", status)
	if result.Error != nil {
		return &domain.PersistenceError{Err: fmt.Errorf("failed to update record status: %w", result.Error)}
	}
	if result.RowsAffected == 0 {
		return &domain.NotFoundError{Identifier: strconv.FormatUint(recordID, 10)}
	}

	return nil
}

// SoftDeleteAttachment flags an attachment as deleted without removing the row
func (s *pgStore) SoftDeleteAttachment(ctx context.Context, attachmentID uint64) error {
	result := s.db.WithContext(ctx).
		Model(&schema.FileAttachment{}).
		Where("id = ? AND deleted = ?", attachmentID, false).
		Update("deleted", true)
	if result.Error != nil {
		return &domain.PersistenceError{Err: fmt.Errorf("failed to delete attachment: %w", result.Error)}
	}
	if result.RowsAffected == 0 {
		return &domain.NotFoundError{Identifier: strconv.FormatUint(attachmentID, 10)}
	}

	return nil
}

// HealthCheck verifies database connectivity
func (s *pgStore) HealthCheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}
