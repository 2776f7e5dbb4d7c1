package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRecordNotFound is returned when no record matches an identifier
	ErrRecordNotFound = errors.New("record not found")

	// ErrAnchorNotFound is returned when a ledger transaction cannot be located
	ErrAnchorNotFound = errors.New("anchor transaction not found")

	// ErrAnchorNotConfirmed is returned when a transaction exists but has no confirmed receipt
	ErrAnchorNotConfirmed = errors.New("anchor transaction not confirmed")
)

// LedgerErrorCause classifies ledger failures so callers can distinguish
// retryable network conditions from permanent ones
type LedgerErrorCause string

const (
	LedgerCauseNetwork           LedgerErrorCause = "network_error"
	LedgerCauseInsufficientFunds LedgerErrorCause = "insufficient_funds"
	LedgerCauseReverted          LedgerErrorCause = "transaction_reverted"
	LedgerCauseInvalidDigest     LedgerErrorCause = "invalid_digest"
)

// ValidationError indicates bad or missing input fields. Never retried.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

// NewValidationError builds a ValidationError from field messages
func NewValidationError(fields ...string) *ValidationError {
	return &ValidationError{Fields: fields}
}

// LedgerError indicates a failure at the ledger boundary
type LedgerError struct {
	Cause LedgerErrorCause
	Err   error
}

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ledger error (%s): %v", e.Cause, e.Err)
	}
	return fmt.Sprintf("ledger error (%s)", e.Cause)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// NewLedgerError wraps err with a ledger failure classification
func NewLedgerError(cause LedgerErrorCause, err error) *LedgerError {
	return &LedgerError{Cause: cause, Err: err}
}

// PersistenceError indicates the relational store failed. When the failure
// happened after a successful anchor submission, OrphanedTxHash carries the
// on-chain transaction left without a local record.
type PersistenceError struct {
	Err            error
	OrphanedTxHash string
}

func (e *PersistenceError) Error() string {
	if e.OrphanedTxHash != "" {
		return fmt.Sprintf("persistence error (orphaned anchor %s): %v", e.OrphanedTxHash, e.Err)
	}
	return fmt.Sprintf("persistence error: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NotFoundError indicates an identifier matched nothing
type NotFoundError struct {
	Identifier string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no record matches identifier %q", e.Identifier)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrRecordNotFound
}
