package rest

import (
	"time"

	"github.com/agritrace/provenance-anchor/internal/anchor"
	"github.com/agritrace/provenance-anchor/internal/coordinator"
	"github.com/agritrace/provenance-anchor/internal/domain"
	"github.com/agritrace/provenance-anchor/internal/store/schema"
)

// StoreRecordRequest is the payload of a store request. With attachments it
// arrives as the "record" field of a multipart form; without, as the JSON body.
type StoreRecordRequest struct {
	ProducerID   string            `json:"producer_id"`
	ProducerName string            `json:"producer_name"`
	Product      string            `json:"product"`
	Location     string            `json:"location"`
	EventDate    time.Time         `json:"event_date"`
	Quantity     float64           `json:"quantity"`
	Unit         string            `json:"unit"`
	QualityGrade string            `json:"quality_grade"`
	Notes        string            `json:"notes"`
	Metadata     map[string]string `json:"metadata"`
}

// ToRecord maps the request onto a domain record
func (r *StoreRecordRequest) ToRecord() *domain.ProvenanceRecord {
	return &domain.ProvenanceRecord{
		ProducerID:   r.ProducerID,
		Product:      r.Product,
		Location:     r.Location,
		EventDate:    r.EventDate,
		Quantity:     r.Quantity,
		Unit:         r.Unit,
		QualityGrade: r.QualityGrade,
		Notes:        r.Notes,
	}
}

// VerifyRecordRequest carries the caller's fresh copy of the record fields
type VerifyRecordRequest struct {
	ProducerID   string    `json:"producer_id"`
	Product      string    `json:"product"`
	Location     string    `json:"location"`
	EventDate    time.Time `json:"event_date"`
	Quantity     float64   `json:"quantity"`
	Unit         string    `json:"unit"`
	QualityGrade string    `json:"quality_grade"`
	Notes        string    `json:"notes"`
	Version      uint64    `json:"version"`
	LedgerCheck  bool      `json:"ledger_check"`
}

// ToRecord maps the request onto a domain record for re-hashing
func (r *VerifyRecordRequest) ToRecord() *domain.ProvenanceRecord {
	return &domain.ProvenanceRecord{
		ProducerID:   r.ProducerID,
		Product:      r.Product,
		Location:     r.Location,
		EventDate:    r.EventDate,
		Quantity:     r.Quantity,
		Unit:         r.Unit,
		QualityGrade: r.QualityGrade,
		Notes:        r.Notes,
		Version:      r.Version,
	}
}

// UpdateStatusRequest changes a record's lifecycle status
type UpdateStatusRequest struct {
	Status domain.RecordStatus `json:"status"`
}

// AttachmentDTO is the API shape of a file attachment
type AttachmentDTO struct {
	ID           uint64    `json:"id"`
	OriginalName string    `json:"original_name"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type"`
	Digest       string    `json:"digest"`
	Deleted      bool      `json:"deleted"`
	CreatedAt    time.Time `json:"created_at"`
}

// VerificationDTO is the API shape of one verification log row
type VerificationDTO struct {
	ID            uint64                    `json:"id"`
	RequestID     string                    `json:"request_id"`
	Method        domain.VerificationMethod `json:"method"`
	IsValid       bool                      `json:"is_valid"`
	StoredDigest  string                    `json:"stored_digest"`
	CurrentDigest string                    `json:"current_digest"`
	CreatedAt     time.Time                 `json:"created_at"`
}

// AnchorDTO is the API shape of local anchor bookkeeping
type AnchorDTO struct {
	TxHash            string              `json:"tx_hash"`
	BlockNumber       *uint64             `json:"block_number,omitempty"`
	BlockHash         *string             `json:"block_hash,omitempty"`
	FromAddress       string              `json:"from_address"`
	ToAddress         string              `json:"to_address"`
	GasUsed           uint64              `json:"gas_used"`
	EffectiveGasPrice *string             `json:"effective_gas_price,omitempty"`
	NetworkID         string              `json:"network_id,omitempty"`
	Status            domain.AnchorStatus `json:"status"`
}

// LedgerDTO is the API shape of a live ledger recovery. Envelope is null when
// the transaction payload could not be decoded.
type LedgerDTO struct {
	TxHash      string              `json:"tx_hash"`
	BlockNumber uint64              `json:"block_number"`
	BlockHash   string              `json:"block_hash"`
	From        string              `json:"from"`
	To          string              `json:"to"`
	GasUsed     uint64              `json:"gas_used"`
	Status      domain.AnchorStatus `json:"status"`
	Envelope    *anchor.Envelope    `json:"envelope"`
}

// RecordResponse combines local record state with whatever ledger
// confirmation could be obtained
type RecordResponse struct {
	ID             uint64              `json:"id"`
	ProducerID     string              `json:"producer_id"`
	Product        string              `json:"product"`
	Location       string              `json:"location"`
	EventDate      time.Time           `json:"event_date"`
	Quantity       float64             `json:"quantity"`
	Unit           string              `json:"unit,omitempty"`
	QualityGrade   string              `json:"quality_grade,omitempty"`
	Notes          string              `json:"notes,omitempty"`
	DataDigest     string              `json:"data_digest"`
	CombinedDigest *string             `json:"combined_digest,omitempty"`
	TxHash         *string             `json:"tx_hash,omitempty"`
	Status         domain.RecordStatus `json:"status"`
	Version        uint64              `json:"version"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	Attachments    []AttachmentDTO     `json:"attachments"`
	Verifications  []VerificationDTO   `json:"verifications"`
	Anchor         *AnchorDTO          `json:"anchor,omitempty"`
	Ledger         *LedgerDTO          `json:"ledger,omitempty"`
}

// NetworkResponse is the read-only ledger status
type NetworkResponse struct {
	ChainID       string `json:"chain_id"`
	NetworkID     string `json:"network_id"`
	LatestBlock   uint64 `json:"latest_block"`
	SignerAddress string `json:"signer_address"`
	SignerBalance string `json:"signer_balance"`
}

// mapRecordResponse assembles the retrieve response from a coordinator result
func mapRecordResponse(result *coordinator.RetrieveResult) *RecordResponse {
	bundle := result.Bundle
	resp := &RecordResponse{
		ID:             bundle.Record.ID,
		ProducerID:     bundle.Record.ProducerID,
		Product:        bundle.Record.Product,
		Location:       bundle.Record.Location,
		EventDate:      bundle.Record.EventDate,
		Quantity:       bundle.Record.Quantity,
		Unit:           bundle.Record.Unit,
		QualityGrade:   bundle.Record.QualityGrade,
		Notes:          bundle.Record.Notes,
		DataDigest:     bundle.Record.DataDigest,
		CombinedDigest: bundle.Record.CombinedDigest,
		TxHash:         bundle.Record.TxHash,
		Status:         bundle.Record.Status,
		Version:        bundle.Record.Version,
		CreatedAt:      bundle.Record.CreatedAt,
		UpdatedAt:      bundle.Record.UpdatedAt,
		Attachments:    mapAttachments(bundle.Attachments),
		Verifications:  mapVerifications(bundle.VerificationLogs),
	}

	if bundle.Anchor != nil {
		resp.Anchor = &AnchorDTO{
			TxHash:            bundle.Anchor.TxHash,
			BlockNumber:       bundle.Anchor.BlockNumber,
			BlockHash:         bundle.Anchor.BlockHash,
			FromAddress:       bundle.Anchor.FromAddress,
			ToAddress:         bundle.Anchor.ToAddress,
			GasUsed:           bundle.Anchor.GasUsed,
			EffectiveGasPrice: bundle.Anchor.EffectiveGasPrice,
			NetworkID:         bundle.Anchor.NetworkID,
			Status:            bundle.Anchor.Status,
		}
	}

	if result.Ledger != nil {
		resp.Ledger = mapLedger(result.Ledger)
	}

	return resp
}

func mapLedger(r *anchor.Recovery) *LedgerDTO {
	return &LedgerDTO{
		TxHash:      r.TxHash,
		BlockNumber: r.BlockNumber,
		BlockHash:   r.BlockHash,
		From:        r.From,
		To:          r.To,
		GasUsed:     r.GasUsed,
		Status:      r.Status,
		Envelope:    r.Envelope,
	}
}

func mapAttachments(rows []schema.FileAttachment) []AttachmentDTO {
	dtos := make([]AttachmentDTO, 0, len(rows))
	for _, a := range rows {
		dtos = append(dtos, AttachmentDTO{
			ID:           a.ID,
			OriginalName: a.OriginalName,
			Size:         a.Size,
			ContentType:  a.ContentType,
			Digest:       a.Digest,
			Deleted:      a.Deleted,
			CreatedAt:    a.CreatedAt,
		})
	}
	return dtos
}

func mapVerifications(rows []schema.VerificationLog) []VerificationDTO {
	dtos := make([]VerificationDTO, 0, len(rows))
	for _, v := range rows {
		dtos = append(dtos, VerificationDTO{
			ID:            v.ID,
			RequestID:     v.RequestID,
			Method:        v.Method,
			IsValid:       v.IsValid,
			StoredDigest:  v.StoredDigest,
			CurrentDigest: v.CurrentDigest,
			CreatedAt:     v.CreatedAt,
		})
	}
	return dtos
}
