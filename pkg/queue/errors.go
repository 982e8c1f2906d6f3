package queue

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a job failure. The executor is the only component
// that acts on the kind; handlers and repositories just classify.
type ErrorKind string

const (
	// KindValidation marks a permanently malformed job. It is
	// dead-lettered immediately without consuming retry budget.
	KindValidation ErrorKind = "validation"

	// KindTransient marks an infrastructure failure (timeouts,
	// connection refused, store unavailable). Retried with backoff.
	KindTransient ErrorKind = "transient"
)

// JobError carries an error kind through handler boundaries.
type JobError struct {
	Kind ErrorKind
	Err  error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// Permanent wraps err as a validation failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &JobError{Kind: KindValidation, Err: err}
}

// Transient wraps err as a retryable infrastructure failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &JobError{Kind: KindTransient, Err: err}
}

// IsPermanent reports whether err should bypass the retry budget.
// Unclassified errors default to transient: I/O failures are the common
// case and a spurious retry is cheaper than a spurious dead-letter.
func IsPermanent(err error) bool {
	var je *JobError
	if errors.As(err, &je) {
		return je.Kind == KindValidation
	}
	return false
}
