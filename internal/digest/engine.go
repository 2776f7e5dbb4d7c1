package digest

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/agritrace/provenance-anchor/internal/adapter"
	"github.com/agritrace/provenance-anchor/internal/domain"
)

// Engine computes deterministic digests over provenance records and files.
// Hashing is a pure function of its input: store-time and verify-time
// computations over logically identical data always match.
type Engine interface {
	// Digest canonicalizes the record and returns its Keccak-256 digest
	Digest(record *domain.ProvenanceRecord) (domain.Digest, error)

	// DigestCombined computes the record digest, one digest per file, and a
	// combined digest folding all of them in file-submission order
	DigestCombined(record *domain.ProvenanceRecord, files []domain.FileUpload) (*CombinedResult, error)

	// Verify recomputes the record digest and compares it to expected
	Verify(record *domain.ProvenanceRecord, expected domain.Digest) (bool, error)

	// HashBytes returns the Keccak-256 digest of raw bytes
	HashBytes(data []byte) domain.Digest
}

// FileDigest is the per-file digest computed over raw bytes at upload time
type FileDigest struct {
	Name   string
	Size   int64
	Digest domain.Digest
}

// CombinedResult carries every digest produced for one store operation
type CombinedResult struct {
	RecordDigest   domain.Digest
	CombinedDigest domain.Digest
	FileDigests    []FileDigest
}

// canonicalPayload is the exact set of fields a record digest commits to.
// Mutable bookkeeping (status, row timestamps) is deliberately excluded so
// later status or note-free updates never invalidate the anchored digest.
// EventDate is normalized to UTC RFC3339 before hashing.
type canonicalPayload struct {
	ProducerID   string  `json:"producer_id"`
	Product      string  `json:"product"`
	Location     string  `json:"location"`
	EventDate    string  `json:"event_date"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit"`
	QualityGrade string  `json:"quality_grade"`
	Notes        string  `json:"notes"`
	Version      uint64  `json:"version"`
}

type engine struct {
	jcs adapter.JCS
}

// NewEngine creates a new digest engine
func NewEngine(jcs adapter.JCS) Engine {
	return &engine{jcs: jcs}
}

// Digest canonicalizes the record and returns its Keccak-256 digest
func (e *engine) Digest(record *domain.ProvenanceRecord) (domain.Digest, error) {
	if result := domain.ValidateRecord(record); !result.Valid {
		return "", domain.NewValidationError(result.Errors...)
	}

	payload := canonicalPayload{
		ProducerID:   record.ProducerID,
		Product:      record.Product,
		Location:     record.Location,
		EventDate:    record.EventDate.UTC().Format(time.RFC3339),
		Quantity:     record.Quantity,
		Unit:         record.Unit,
		QualityGrade: record.QualityGrade,
		Notes:        record.Notes,
		Version:      record.Version,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal canonical payload: %w", err)
	}

	canonical, err := e.jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize payload: %w", err)
	}

	return e.HashBytes(canonical), nil
}

// DigestCombined computes record, per-file, and combined digests.
// The combined digest hashes the concatenation of the record digest bytes and
// each file digest bytes in submission order. Order matters: it must be
// identical between anchor time and verification time.
func (e *engine) DigestCombined(record *domain.ProvenanceRecord, files []domain.FileUpload) (*CombinedResult, error) {
	recordDigest, err := e.Digest(record)
	if err != nil {
		return nil, err
	}

	result := &CombinedResult{
		RecordDigest: recordDigest,
		FileDigests:  make([]FileDigest, 0, len(files)),
	}

	folded := digestBytes(recordDigest)
	for _, f := range files {
		fd := e.HashBytes(f.Data)
		result.FileDigests = append(result.FileDigests, FileDigest{
			Name:   f.Name,
			Size:   int64(len(f.Data)),
			Digest: fd,
		})
		folded = append(folded, digestBytes(fd)...)
	}

	if len(files) == 0 {
		result.CombinedDigest = recordDigest
	} else {
		result.CombinedDigest = e.HashBytes(folded)
	}

	return result, nil
}

// Verify recomputes the record digest and compares it to expected.
// Plain string equality suffices here: this is integrity checking, not
// secret comparison.
func (e *engine) Verify(record *domain.ProvenanceRecord, expected domain.Digest) (bool, error) {
	computed, err := e.Digest(record)
	if err != nil {
		return false, err
	}
	return computed == expected, nil
}

// HashBytes returns the Keccak-256 digest of raw bytes as 0x-prefixed hex
func (e *engine) HashBytes(data []byte) domain.Digest {
	return domain.Digest("0x" + hex.EncodeToString(crypto.Keccak256(data)))
}

// digestBytes decodes the 32-byte value of a digest, dropping the 0x prefix
func digestBytes(d domain.Digest) []byte {
	raw, _ := hex.DecodeString(string(d)[2:])
	return raw
}
