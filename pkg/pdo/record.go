// Package pdo defines the Proof → Decision → Outcome record, the atomic,
// immutable audit unit this core exports evidence for.
//
// A record is hash-sealed exactly once, at creation time, over its canonical
// content minus the seal itself. Any later divergence between the stored hash
// and the recomputed hash is tamper evidence, never a recoverable state.
package pdo

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chainbridge-oss/proofpack/pkg/canonicalize"
)

// Version is the current PDO record schema version.
const Version = "1.0"

// Outcome classifies the decision result recorded by a PDO.
type Outcome string

const (
	OutcomeApproved  Outcome = "approved"
	OutcomeRejected  Outcome = "rejected"
	OutcomeDeferred  Outcome = "deferred"
	OutcomeEscalated Outcome = "escalated"
)

// Valid reports whether o is a member of the fixed outcome enumeration.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeApproved, OutcomeRejected, OutcomeDeferred, OutcomeEscalated:
		return true
	}
	return false
}

// ActorType classifies who produced the decision.
type ActorType string

const (
	ActorTypeAgent  ActorType = "agent"
	ActorTypeHuman  ActorType = "human"
	ActorTypeSystem ActorType = "system"
)

// Valid reports whether a is a member of the fixed actor-type enumeration.
func (a ActorType) Valid() bool {
	switch a {
	case ActorTypeAgent, ActorTypeHuman, ActorTypeSystem:
		return true
	}
	return false
}

// HashOptions controls which fields the record hash covers.
//
// The default (zero value) excludes metadata and tags, so operational
// annotation changes do not disturb the seal. Setting IncludeMetadata
// extends tamper detection over metadata and tags at the cost of hash
// sensitivity to annotation edits. Exporter and verifier must agree on
// this choice.
type HashOptions struct {
	IncludeMetadata bool
}

// Record is an immutable Proof → Decision → Outcome record.
type Record struct {
	PDOID         uuid.UUID      `json:"pdo_id"`
	Version       string         `json:"version"`
	InputRefs     []string       `json:"input_refs"`
	DecisionRef   string         `json:"decision_ref"`
	OutcomeRef    string         `json:"outcome_ref"`
	Outcome       Outcome        `json:"outcome"`
	SourceSystem  string         `json:"source_system"`
	Actor         string         `json:"actor"`
	ActorType     ActorType      `json:"actor_type"`
	RecordedAt    time.Time      `json:"recorded_at"`
	PreviousPDOID *uuid.UUID     `json:"previous_pdo_id"`
	CorrelationID *string        `json:"correlation_id"`
	Metadata      map[string]any `json:"metadata"`
	Tags          []string       `json:"tags"`
	Hash          string         `json:"hash"`
	HashAlgorithm string         `json:"hash_algorithm"`
}

// Draft carries the caller-supplied fields for a new record. Identity,
// timestamp, and seal are assigned at creation time.
type Draft struct {
	InputRefs     []string
	DecisionRef   string
	OutcomeRef    string
	Outcome       Outcome
	SourceSystem  string
	Actor         string
	ActorType     ActorType
	PreviousPDOID *uuid.UUID
	CorrelationID *string
	Metadata      map[string]any
	Tags          []string
}

// Validate checks required fields and enum membership.
func (d Draft) Validate() error {
	if d.DecisionRef == "" {
		return fmt.Errorf("pdo: decision_ref is required")
	}
	if d.OutcomeRef == "" {
		return fmt.Errorf("pdo: outcome_ref is required")
	}
	if !d.Outcome.Valid() {
		return fmt.Errorf("pdo: invalid outcome %q", d.Outcome)
	}
	if !d.ActorType.Valid() {
		return fmt.Errorf("pdo: invalid actor_type %q", d.ActorType)
	}
	if d.SourceSystem == "" {
		return fmt.Errorf("pdo: source_system is required")
	}
	if d.Actor == "" {
		return fmt.Errorf("pdo: actor is required")
	}
	return nil
}

// NewRecord builds and hash-seals a record from a draft. The seal is
// computed exactly once here; stores persist it verbatim and verify it on
// every read.
func NewRecord(d Draft, recordedAt time.Time, opts HashOptions) (*Record, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	r := &Record{
		PDOID:         uuid.New(),
		Version:       Version,
		InputRefs:     append([]string(nil), d.InputRefs...),
		DecisionRef:   d.DecisionRef,
		OutcomeRef:    d.OutcomeRef,
		Outcome:       d.Outcome,
		SourceSystem:  d.SourceSystem,
		Actor:         d.Actor,
		ActorType:     d.ActorType,
		RecordedAt:    recordedAt.UTC(),
		PreviousPDOID: d.PreviousPDOID,
		CorrelationID: d.CorrelationID,
		Metadata:      copyMetadata(d.Metadata),
		Tags:          append([]string(nil), d.Tags...),
		HashAlgorithm: canonicalize.HashAlgorithm,
	}

	hash, err := r.ComputeHash(opts)
	if err != nil {
		return nil, err
	}
	r.Hash = hash
	return r, nil
}

// CanonicalPayload returns the hashable view of the record: every field
// except the seal (hash, hash_algorithm), and — unless opts says otherwise —
// except metadata and tags. Nullable fields are present with explicit nulls.
func (r *Record) CanonicalPayload(opts HashOptions) map[string]any {
	payload := map[string]any{
		"pdo_id":          canonicalize.FormatUUID(r.PDOID.String()),
		"version":         r.Version,
		"input_refs":      refsOrEmpty(r.InputRefs),
		"decision_ref":    r.DecisionRef,
		"outcome_ref":     r.OutcomeRef,
		"outcome":         string(r.Outcome),
		"source_system":   r.SourceSystem,
		"actor":           r.Actor,
		"actor_type":      string(r.ActorType),
		"recorded_at":     canonicalize.FormatTime(r.RecordedAt),
		"previous_pdo_id": nullableUUID(r.PreviousPDOID),
		"correlation_id":  nullableString(r.CorrelationID),
	}
	if opts.IncludeMetadata {
		payload["metadata"] = metadataOrEmpty(r.Metadata)
		payload["tags"] = refsOrEmpty(r.Tags)
	}
	return payload
}

// ComputeHash derives the record hash from the canonical payload.
func (r *Record) ComputeHash(opts HashOptions) (string, error) {
	return canonicalize.CanonicalHash(r.CanonicalPayload(opts))
}

// VerifyHash recomputes the hash and compares it to the stored seal.
func (r *Record) VerifyHash(opts HashOptions) bool {
	computed, err := r.ComputeHash(opts)
	if err != nil {
		return false
	}
	return computed == r.Hash && strings.EqualFold(r.HashAlgorithm, canonicalize.HashAlgorithm)
}

// EncodeCanonical returns the full canonical file encoding of the record —
// the hashable payload plus metadata, tags, and the seal itself. These are
// the exact bytes written to pdo/record.json and lineage/ files.
func (r *Record) EncodeCanonical() ([]byte, error) {
	payload := r.CanonicalPayload(HashOptions{})
	payload["metadata"] = metadataOrEmpty(r.Metadata)
	payload["tags"] = refsOrEmpty(r.Tags)
	payload["hash"] = r.Hash
	payload["hash_algorithm"] = r.HashAlgorithm
	return canonicalize.JCS(payload)
}

func refsOrEmpty(refs []string) []string {
	if refs == nil {
		return []string{}
	}
	return refs
}

func metadataOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func copyMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func nullableUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return canonicalize.FormatUUID(id.String())
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
