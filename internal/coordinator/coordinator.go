package coordinator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/agritrace/provenance-anchor/internal/anchor"
	"github.com/agritrace/provenance-anchor/internal/digest"
	"github.com/agritrace/provenance-anchor/internal/domain"
	"github.com/agritrace/provenance-anchor/internal/logger"
	"github.com/agritrace/provenance-anchor/internal/store"
	"github.com/agritrace/provenance-anchor/internal/store/schema"
)

// Coordinator orchestrates the hash engine, the ledger anchorer, and the
// record store so digest, anchor, and relational state stay consistent.
type Coordinator interface {
	// Store hashes, anchors, and persists a new provenance record
	Store(ctx context.Context, input *StoreInput) (*StoreResult, error)

	// Retrieve loads a record and, best-effort, its ledger confirmation
	Retrieve(ctx context.Context, identifier string, withLedger bool) (*RetrieveResult, error)

	// Verify recomputes the digest of caller-supplied data, compares it to
	// the stored digest, and logs the attempt regardless of outcome
	Verify(ctx context.Context, input *VerifyInput) (*VerifyResult, error)

	// Reconfirm recovers an anchor from the ledger and applies the observed
	// status to local bookkeeping
	Reconfirm(ctx context.Context, txHash string) (*anchor.Recovery, error)
}

// StoreInput is one store request
type StoreInput struct {
	Record       *domain.ProvenanceRecord
	ProducerName string
	Files        []domain.FileUpload
	Metadata     map[string]string
}

// StoreResult is the response to a successful store
type StoreResult struct {
	RecordID       uint64              `json:"record_id"`
	DataDigest     domain.Digest       `json:"data_digest"`
	CombinedDigest domain.Digest       `json:"combined_digest"`
	TxHash         string              `json:"tx_hash"`
	BlockNumber    uint64              `json:"block_number"`
	AnchorStatus   domain.AnchorStatus `json:"anchor_status"`
}

// RetrieveResult combines local record state with whatever ledger
// confirmation could be obtained
type RetrieveResult struct {
	Bundle *store.RecordBundle
	Ledger *anchor.Recovery
}

// VerifyInput is one verification request
type VerifyInput struct {
	Identifier      string
	Fresh           *domain.ProvenanceRecord
	Caller          domain.CallerInfo
	WithLedgerCheck bool
}

// VerifyResult carries the verdict explicitly; a mismatch is a result,
// never an error
type VerifyResult struct {
	Outcome       domain.VerificationOutcome `json:"outcome"`
	StoredDigest  domain.Digest              `json:"stored_digest"`
	CurrentDigest domain.Digest              `json:"current_digest"`
	RecordID      uint64                     `json:"record_id"`
	RequestID     string                     `json:"request_id"`
	LedgerDigest  *domain.Digest             `json:"ledger_digest,omitempty"`
}

type coordinator struct {
	engine   digest.Engine
	anchorer anchor.Anchorer
	store    store.Store
}

// New creates a new provenance coordinator
func New(engine digest.Engine, anchorer anchor.Anchorer, st store.Store) Coordinator {
	return &coordinator{engine: engine, anchorer: anchorer, store: st}
}

// Store runs the full pipeline: ensure producer, digest, anchor, persist.
// A failure after anchoring but before persistence leaves an orphaned
// on-chain anchor with no local record; the returned error carries the
// transaction hash so reconciliation stays possible.
func (c *coordinator) Store(ctx context.Context, input *StoreInput) (*StoreResult, error) {
	record := input.Record
	if result := domain.ValidateRecord(record); !result.Valid {
		return nil, domain.NewValidationError(result.Errors...)
	}
	if record.Version == 0 {
		record.Version = 1
	}

	if err := c.store.EnsureProducerExists(ctx, record.ProducerID, input.ProducerName); err != nil {
		return nil, err
	}

	digests, err := c.engine.DigestCombined(record, input.Files)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{
		"producer_id": record.ProducerID,
		"product":     record.Product,
	}
	for k, v := range input.Metadata {
		metadata[k] = v
	}

	anchored, err := c.anchorer.Anchor(ctx, digests.CombinedDigest, metadata)
	if err != nil {
		return nil, err
	}

	recordID, err := c.persist(ctx, record, digests, anchored, input.Files)
	if err != nil {
		logger.ErrorCtx(ctx, err,
			zap.String("tx_hash", anchored.TxHash),
			zap.String("digest", digests.CombinedDigest.String()))
		return nil, &domain.PersistenceError{Err: err, OrphanedTxHash: anchored.TxHash}
	}

	return &StoreResult{
		RecordID:       recordID,
		DataDigest:     digests.RecordDigest,
		CombinedDigest: digests.CombinedDigest,
		TxHash:         anchored.TxHash,
		BlockNumber:    anchored.BlockNumber,
		AnchorStatus:   anchored.Status,
	}, nil
}

// persist maps domain state onto schema rows and writes them
func (c *coordinator) persist(ctx context.Context, record *domain.ProvenanceRecord, digests *digest.CombinedResult, anchored *anchor.Result, files []domain.FileUpload) (uint64, error) {
	row := &schema.ProvenanceRecord{
		ProducerID:   record.ProducerID,
		Product:      record.Product,
		Location:     record.Location,
		EventDate:    record.EventDate,
		Quantity:     record.Quantity,
		Unit:         record.Unit,
		QualityGrade: record.QualityGrade,
		Notes:        record.Notes,
		DataDigest:   digests.RecordDigest.String(),
		TxHash:       &anchored.TxHash,
		Status:       domain.RecordStatusActive,
		Version:      record.Version,
	}
	if len(files) > 0 {
		combined := digests.CombinedDigest.String()
		row.CombinedDigest = &combined
	}

	attachments := make([]schema.FileAttachment, 0, len(files))
	for i, f := range files {
		contentType := f.ContentType
		if contentType == "" {
			contentType = mimetype.Detect(f.Data).String()
		}
		attachments = append(attachments, schema.FileAttachment{
			OriginalName: f.Name,
			StoredName:   uuid.NewString(),
			Size:         digests.FileDigests[i].Size,
			ContentType:  contentType,
			Digest:       digests.FileDigests[i].Digest.String(),
		})
	}

	payload, err := json.Marshal(anchored.Envelope)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	var gasPrice *string
	if anchored.EffectiveGasPrice != nil {
		s := anchored.EffectiveGasPrice.String()
		gasPrice = &s
	}
	anchorRow := &schema.LedgerAnchor{
		TxHash:            anchored.TxHash,
		BlockNumber:       &anchored.BlockNumber,
		BlockHash:         &anchored.BlockHash,
		FromAddress:       anchored.From,
		ToAddress:         anchored.To,
		GasUsed:           anchored.GasUsed,
		EffectiveGasPrice: gasPrice,
		NetworkID:         anchored.ChainID,
		Status:            anchored.Status,
		Payload:           datatypes.JSON(payload),
	}

	return c.store.PersistRecord(ctx, row, anchorRow, attachments)
}

// Retrieve loads local state and degrades gracefully when the ledger copy
// cannot be obtained: a broken RPC must not hide a valid local record.
func (c *coordinator) Retrieve(ctx context.Context, identifier string, withLedger bool) (*RetrieveResult, error) {
	bundle, err := c.store.LoadRecord(ctx, identifier)
	if err != nil {
		return nil, err
	}

	result := &RetrieveResult{Bundle: bundle}

	if withLedger && bundle.Record.TxHash != nil {
		recovery, err := c.anchorer.Recover(ctx, *bundle.Record.TxHash)
		if err != nil {
			logger.WarnCtx(ctx, "Ledger recovery degraded",
				zap.String("tx_hash", *bundle.Record.TxHash),
				zap.Error(err))
		} else {
			result.Ledger = recovery
		}
	}

	return result, nil
}

// Verify recomputes the digest from caller-supplied data and compares it to
// the locally stored digest, which is authoritative; the ledger copy is only
// consulted when the caller explicitly asks. Every attempt is logged; an
// audit-log outage never blocks the verdict.
func (c *coordinator) Verify(ctx context.Context, input *VerifyInput) (*VerifyResult, error) {
	bundle, err := c.store.LoadRecord(ctx, input.Identifier)
	if err != nil {
		return nil, err
	}
	record := bundle.Record

	fresh := input.Fresh
	if fresh.Version == 0 {
		fresh.Version = record.Version
	}

	currentDigest, err := c.engine.Digest(fresh)
	if err != nil {
		return nil, err
	}

	storedDigest := domain.Digest(record.DataDigest)
	outcome := domain.OutcomeTampered
	if currentDigest == storedDigest {
		outcome = domain.OutcomeVerified
	}

	method := domain.MethodHashComparison
	result := &VerifyResult{
		Outcome:       outcome,
		StoredDigest:  storedDigest,
		CurrentDigest: currentDigest,
		RecordID:      record.ID,
		RequestID:     ulid.Make().String(),
	}

	var details datatypes.JSON
	if input.WithLedgerCheck && record.TxHash != nil {
		method = domain.MethodLedgerCrossCheck
		if recovery, err := c.anchorer.Recover(ctx, *record.TxHash); err != nil {
			logger.WarnCtx(ctx, "Ledger cross-check degraded",
				zap.String("tx_hash", *record.TxHash),
				zap.Error(err))
		} else if recovery.Envelope != nil {
			result.LedgerDigest = &recovery.Envelope.Hash
			details, _ = json.Marshal(map[string]interface{}{
				"ledger_digest": recovery.Envelope.Hash,
				"block_number":  recovery.BlockNumber,
				"anchor_status": recovery.Status,
			})
		}
	}

	logRow := &schema.VerificationLog{
		RecordID:        record.ID,
		RequestID:       result.RequestID,
		TxHash:          record.TxHash,
		Method:          method,
		IsValid:         outcome == domain.OutcomeVerified,
		StoredDigest:    storedDigest.String(),
		CurrentDigest:   currentDigest.String(),
		CallerIP:        input.Caller.IP,
		CallerUserAgent: input.Caller.UserAgent,
		Details:         details,
	}
	if err := c.store.LogVerification(ctx, logRow); err != nil {
		logger.ErrorCtx(ctx, err,
			zap.Uint64("record_id", record.ID),
			zap.String("request_id", result.RequestID))
	}

	return result, nil
}

// Reconfirm re-reads an anchor from the ledger and applies the observed
// confirmation status to the local anchor row
func (c *coordinator) Reconfirm(ctx context.Context, txHash string) (*anchor.Recovery, error) {
	recovery, err := c.anchorer.Recover(ctx, txHash)
	if err != nil {
		return nil, err
	}

	if err := c.store.UpdateAnchorStatus(ctx, recovery.TxHash, recovery.Status, &recovery.BlockNumber); err != nil {
		logger.WarnCtx(ctx, "Failed to apply re-confirmed anchor status",
			zap.String("tx_hash", recovery.TxHash),
			zap.Error(err))
	}

	return recovery, nil
}
