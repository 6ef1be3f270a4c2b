// Package recordstore provides standardized error types shared by all
// store backends.
package recordstore

import (
	"errors"
	"fmt"
)

var (
	// ErrRecordNotFound indicates no record exists for the given type and id.
	ErrRecordNotFound = errors.New("record not found")

	// ErrRecordExists indicates a record with the same id already exists.
	ErrRecordExists = errors.New("record already exists")

	// ErrConcurrentModification indicates a stale write: the record
	// changed since the caller read it. Retryable after a re-fetch.
	ErrConcurrentModification = errors.New("record was modified concurrently")
)

// ValidationError indicates a submit- or cancel-time precondition
// failed inside the store.
type ValidationError struct {
	Op         string
	RecordType string
	RecordID   string
	Message    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed for %s/%s: %s", e.Op, e.RecordType, e.RecordID, e.Message)
}

// StoreError wraps backend failures with operation context.
type StoreError struct {
	Op         string
	RecordType string
	RecordID   string
	Err        error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s operation failed for %s/%s: %v", e.Op, e.RecordType, e.RecordID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a new store error with context.
func NewStoreError(op, recordType, recordID string, err error) *StoreError {
	return &StoreError{Op: op, RecordType: recordType, RecordID: recordID, Err: err}
}

// IsRecordNotFound checks if an error indicates a missing record.
func IsRecordNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

// IsConcurrentModification checks if an error indicates a stale write.
func IsConcurrentModification(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsValidation checks if an error is a store-level validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError

	return errors.As(err, &ve)
}
