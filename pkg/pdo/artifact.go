package pdo

import (
	"fmt"
	"time"

	"github.com/chainbridge-oss/proofpack/pkg/canonicalize"
)

// Role identifies which slot of a PDO record an artifact fills.
type Role string

const (
	RoleInput    Role = "input"
	RoleDecision Role = "decision"
	RoleOutcome  Role = "outcome"
)

// Valid reports whether r is a member of the fixed role enumeration.
func (r Role) Valid() bool {
	switch r {
	case RoleInput, RoleDecision, RoleOutcome:
		return true
	}
	return false
}

// timestampKey returns the role-specific JSON key for the artifact timestamp.
func (r Role) timestampKey() string {
	switch r {
	case RoleDecision:
		return "decided_at"
	case RoleOutcome:
		return "observed_at"
	default:
		return "acquired_at"
	}
}

// ResolutionStatus explains why an artifact could not be resolved. An empty
// status means the artifact resolved successfully.
type ResolutionStatus string

const (
	ResolutionNotFound     ResolutionStatus = "not_found"
	ResolutionAccessDenied ResolutionStatus = "access_denied"
	ResolutionExpired      ResolutionStatus = "expired"
)

// Artifact is a single piece of evidence captured for a PDO record: an
// input, the decision document, or the outcome document. Content is an
// arbitrary JSON value; its hash is computed over the canonical encoding of
// the content alone, so two exports of the same evidence always agree.
type Artifact struct {
	Ref              string
	Role             Role
	Content          any
	ContentHash      string
	HashAlgorithm    string
	Timestamp        time.Time
	ResolutionStatus ResolutionStatus
}

// Resolved reports whether the artifact carries real content.
func (a *Artifact) Resolved() bool {
	return a.ResolutionStatus == ""
}

// NewResolvedArtifact builds an artifact around resolved content and hashes
// it immediately.
func NewResolvedArtifact(ref string, role Role, content any, ts time.Time) (*Artifact, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("pdo: invalid artifact role %q", role)
	}
	hash, err := canonicalize.CanonicalHash(content)
	if err != nil {
		return nil, fmt.Errorf("pdo: hashing artifact %s: %w", ref, err)
	}
	return &Artifact{
		Ref:           ref,
		Role:          role,
		Content:       content,
		ContentHash:   hash,
		HashAlgorithm: canonicalize.HashAlgorithm,
		Timestamp:     ts.UTC(),
	}, nil
}

// NewUnresolvedArtifact builds a placeholder for evidence that could not be
// fetched. Content is an explicit null and the hash covers that null, so the
// placeholder itself is still tamper evident inside a bundle.
func NewUnresolvedArtifact(ref string, role Role, status ResolutionStatus, ts time.Time) (*Artifact, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("pdo: invalid artifact role %q", role)
	}
	if status == "" {
		return nil, fmt.Errorf("pdo: unresolved artifact %s requires a resolution status", ref)
	}
	hash, err := canonicalize.CanonicalHash(nil)
	if err != nil {
		return nil, fmt.Errorf("pdo: hashing null content for %s: %w", ref, err)
	}
	return &Artifact{
		Ref:              ref,
		Role:             role,
		Content:          nil,
		ContentHash:      hash,
		HashAlgorithm:    canonicalize.HashAlgorithm,
		Timestamp:        ts.UTC(),
		ResolutionStatus: status,
	}, nil
}

// VerifyContentHash recomputes the content hash and compares it to the
// stored value.
func (a *Artifact) VerifyContentHash() bool {
	computed, err := canonicalize.CanonicalHash(a.Content)
	if err != nil {
		return false
	}
	return computed == a.ContentHash
}

// EncodeCanonical returns the canonical file encoding of the artifact as
// written into a bundle's inputs/, decision/, or outcome/ directory.
func (a *Artifact) EncodeCanonical() ([]byte, error) {
	payload := map[string]any{
		"ref":            a.Ref,
		"role":           string(a.Role),
		"content":        a.Content,
		"content_hash":   a.ContentHash,
		"hash_algorithm": a.HashAlgorithm,
	}
	payload[a.Role.timestampKey()] = canonicalize.FormatTime(a.Timestamp)
	if a.ResolutionStatus != "" {
		payload["resolution_status"] = string(a.ResolutionStatus)
	}
	return canonicalize.JCS(payload)
}

