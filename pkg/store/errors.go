package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no PDO record exists for the requested id.
	ErrNotFound = errors.New("pdo record not found")

	// ErrImmutable is returned by any attempt to overwrite, update, or delete
	// a stored PDO record. Records are append-only.
	ErrImmutable = errors.New("pdo records are immutable")

	// Evidence resolution failures. These are soft from the exporter's point
	// of view: an export continues with a placeholder for a missing input,
	// but fails hard when the decision or outcome cannot be resolved.
	ErrEvidenceNotFound     = errors.New("evidence not found")
	ErrEvidenceAccessDenied = errors.New("evidence access denied")
	ErrEvidenceExpired      = errors.New("evidence expired")
)

// IntegrityError is returned when a stored record's recomputed hash no
// longer matches its seal. It always indicates tampering of the backing
// store, never a recoverable condition.
type IntegrityError struct {
	PDOID    string
	Stored   string
	Computed string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("pdo %s failed integrity check: stored hash %s, computed %s",
		e.PDOID, e.Stored, e.Computed)
}
