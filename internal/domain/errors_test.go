package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Error(t *testing.T) {
	err := NewValidationError("producer_id is required", "quantity must be greater than zero")
	assert.Contains(t, err.Error(), "producer_id is required")
	assert.Contains(t, err.Error(), "quantity must be greater than zero")

	empty := NewValidationError()
	assert.Equal(t, "validation failed", empty.Error())
}

func TestLedgerError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewLedgerError(LedgerCauseNetwork, cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "network_error")

	var ledgerErr *LedgerError
	assert.ErrorAs(t, fmt.Errorf("anchoring failed: %w", err), &ledgerErr)
	assert.Equal(t, LedgerCauseNetwork, ledgerErr.Cause)
}

func TestPersistenceError_CarriesOrphanedTxHash(t *testing.T) {
	cause := errors.New("connection reset")
	err := &PersistenceError{Err: cause, OrphanedTxHash: "0xabc"}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "0xabc")
}

func TestNotFoundError_IsRecordNotFound(t *testing.T) {
	err := &NotFoundError{Identifier: "record-42"}

	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.Contains(t, err.Error(), "record-42")

	wrapped := fmt.Errorf("lookup failed: %w", err)
	assert.ErrorIs(t, wrapped, ErrRecordNotFound)
}
