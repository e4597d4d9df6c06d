package proofpack

import "fmt"

// ExportErrorCode classifies fatal export failures. Export either produces a
// complete bundle or fails with one of these codes; no partial bundle is
// ever emitted.
type ExportErrorCode string

const (
	// ErrCodeSourceIntegrity means the source record (or an ancestor) failed
	// its own seal check before export started.
	ErrCodeSourceIntegrity ExportErrorCode = "SOURCE_INTEGRITY_FAILURE"

	// ErrCodeLineageCycle means the ancestry chain revisits a record.
	ErrCodeLineageCycle ExportErrorCode = "LINEAGE_CYCLE_DETECTED"

	// ErrCodeRequiredArtifactUnresolved means the decision or outcome
	// artifact could not be resolved. Unlike inputs, these may not degrade
	// to placeholders.
	ErrCodeRequiredArtifactUnresolved ExportErrorCode = "REQUIRED_ARTIFACT_UNRESOLVED"
)

// ExportError is a fatal, coded export failure.
type ExportError struct {
	Code    ExportErrorCode
	Message string
	Err     error
}

func (e *ExportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ExportError) Unwrap() error { return e.Err }
