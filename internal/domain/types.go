package domain

import (
	"regexp"
	"time"
)

// RecordStatus represents the lifecycle status of a provenance record
type RecordStatus string

const (
	RecordStatusActive   RecordStatus = "active"
	RecordStatusInactive RecordStatus = "inactive"
	RecordStatusPending  RecordStatus = "pending"
	RecordStatusVerified RecordStatus = "verified"
	RecordStatusRejected RecordStatus = "rejected"
)

// IsValidRecordStatus checks if a record status is valid
func IsValidRecordStatus(status RecordStatus) bool {
	return status == RecordStatusActive ||
		status == RecordStatusInactive ||
		status == RecordStatusPending ||
		status == RecordStatusVerified ||
		status == RecordStatusRejected
}

// AnchorStatus represents the confirmation status of a ledger anchor
type AnchorStatus string

const (
	AnchorStatusPending   AnchorStatus = "pending"
	AnchorStatusConfirmed AnchorStatus = "confirmed"
	AnchorStatusFailed    AnchorStatus = "failed"
	AnchorStatusReverted  AnchorStatus = "reverted"
)

// VerificationOutcome is the verdict of a verification attempt.
// A mismatch is an expected, common outcome and is never modeled as an error.
type VerificationOutcome string

const (
	OutcomeVerified VerificationOutcome = "VERIFIED"
	OutcomeTampered VerificationOutcome = "TAMPERED"
)

// VerificationMethod identifies how a verification was performed
type VerificationMethod string

const (
	MethodHashComparison   VerificationMethod = "hash_comparison"
	MethodLedgerCrossCheck VerificationMethod = "ledger_cross_check"
)

// digestPattern matches a 0x-prefixed lowercase 32-byte hex string.
// Digests and transaction hashes share this shape (66 characters total).
var digestPattern = regexp.MustCompile(`^0x[0-9a-f]{64}$`)

// Digest is a 0x-prefixed Keccak-256 hex string used as a tamper-evidence fingerprint
type Digest string

// Valid checks the digest is lowercase hex of the expected fixed length
func (d Digest) Valid() bool {
	return digestPattern.MatchString(string(d))
}

func (d Digest) String() string {
	return string(d)
}

// IsHexIdentifier reports whether s has the shared digest/tx-hash shape,
// so retrieval can accept either interchangeably.
func IsHexIdentifier(s string) bool {
	return digestPattern.MatchString(s)
}

// ProvenanceRecord is the off-chain claim being protected.
// DataDigest is immutable once anchored; status and notes may change afterwards
// without retroactively changing the anchored payload.
type ProvenanceRecord struct {
	ID             uint64       `json:"id"`
	ProducerID     string       `json:"producer_id"`
	Product        string       `json:"product"`
	Location       string       `json:"location"`
	EventDate      time.Time    `json:"event_date"`
	Quantity       float64      `json:"quantity"`
	Unit           string       `json:"unit,omitempty"`
	QualityGrade   string       `json:"quality_grade,omitempty"`
	Notes          string       `json:"notes,omitempty"`
	DataDigest     Digest       `json:"data_digest"`
	CombinedDigest *Digest      `json:"combined_digest,omitempty"`
	Status         RecordStatus `json:"status"`
	Version        uint64       `json:"version"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// FileUpload carries the raw bytes of one attached file at submission time
type FileUpload struct {
	Name        string
	ContentType string
	Data        []byte
}

// CallerInfo carries caller provenance captured for the verification audit log
type CallerInfo struct {
	IP        string
	UserAgent string
}

// ValidationResult is the tagged-variant outcome of validating a record
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ValidateRecord checks the fields a digest commits to. It is a pure function:
// the same record always yields the same result.
func ValidateRecord(r *ProvenanceRecord) ValidationResult {
	var errs []string

	if r == nil {
		return ValidationResult{Valid: false, Errors: []string{"record is required"}}
	}
	if r.ProducerID == "" {
		errs = append(errs, "producer_id is required")
	}
	if r.Product == "" {
		errs = append(errs, "product is required")
	}
	if r.Location == "" {
		errs = append(errs, "location is required")
	}
	if r.EventDate.IsZero() {
		errs = append(errs, "event_date is required")
	}
	if r.Quantity <= 0 {
		errs = append(errs, "quantity must be greater than zero")
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
