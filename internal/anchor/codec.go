package anchor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/agritrace/provenance-anchor/internal/domain"
)

// EnvelopeVersion is the current payload schema version. Bump when the
// envelope shape changes; Recover must keep decoding every historical version.
const EnvelopeVersion = 1

// Envelope is the wire contract with the ledger: the transaction's opaque
// data field carries exactly this structure as UTF-8 JSON. This file is the
// single definition of the payload schema.
type Envelope struct {
	Version   int               `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Hash      domain.Digest     `json:"hash"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// EncodeEnvelope serializes an envelope into transaction data bytes
func EncodeEnvelope(e *Envelope) ([]byte, error) {
	if !e.Hash.Valid() {
		return nil, domain.NewLedgerError(domain.LedgerCauseInvalidDigest,
			fmt.Errorf("invalid digest format: %q", e.Hash))
	}

	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope parses transaction data bytes back into an envelope.
// An error here means the payload is absent or not legible as an envelope;
// callers report that as a separate fact from ledger-level confirmation.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty transaction payload")
	}

	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if e.Hash == "" {
		return nil, fmt.Errorf("envelope has no hash field")
	}

	return &e, nil
}
