package errors

import (
	"errors"
	"fmt"
)

var (
	ErrStorageFull       = errors.New("local storage is full")
	ErrNotEntitled       = errors.New("identity is not entitled to sync")
	ErrReadOnlyVariant   = errors.New("rubric variant is read-only for structured editing")
	ErrRubricNotFound    = errors.New("rubric not found")
	ErrMissingIdempotent = errors.New("missing idempotency key")
	ErrMissingFilter     = errors.New("questionKey or questionNo is required")
	ErrInvalidFileFormat = errors.New("invalid file format")
	ErrSchemaValidation  = errors.New("schema validation failed")
	ErrWorkerPoolFull    = errors.New("worker pool queue is full")
)

// StorageFullRemediation is shown alongside ErrStorageFull.
const StorageFullRemediation = "local storage is full: purge hidden records and try again"

type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s",
		e.Field, e.Value, e.Message)
}

// NetworkError is a failed call against the remote record store. Local data is
// never modified when one is returned.
type NetworkError struct {
	Op         string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("network error during %s (HTTP %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e NetworkError) Unwrap() error {
	return e.Err
}

func NewNetworkError(op string, statusCode int, retryable bool, err error) error {
	return NetworkError{
		Op:         op,
		StatusCode: statusCode,
		Retryable:  retryable,
		Err:        err,
	}
}

// IsRetryable reports whether err is a NetworkError worth retrying.
func IsRetryable(err error) bool {
	var netErr NetworkError
	if errors.As(err, &netErr) {
		return netErr.Retryable
	}
	return false
}

// ParseError is malformed rubric text. Callers recover by falling back to a
// default preview; it is never fatal.
type ParseError struct {
	Err error
}

func (e ParseError) Error() string {
	return fmt.Sprintf("rubric parse error: %v", e.Err)
}

func (e ParseError) Unwrap() error {
	return e.Err
}

// StorageFullError wraps the backend failure that exhausted the quota.
type StorageFullError struct {
	Key string
	Err error
}

func (e StorageFullError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (key %q): %v", StorageFullRemediation, e.Key, e.Err)
	}
	return fmt.Sprintf("%s (key %q)", StorageFullRemediation, e.Key)
}

func (e StorageFullError) Is(target error) bool {
	return target == ErrStorageFull
}

func (e StorageFullError) Unwrap() error {
	return e.Err
}
