// Package resolver turns evidence refs into export artifacts.
//
// Resolution failures are split into two classes. Soft failures (not found,
// access denied, expired) become unresolved placeholder artifacts so an
// export can continue and disclose the gap. Hard failures (I/O, transport)
// propagate as errors and abort the export.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chainbridge-oss/proofpack/pkg/pdo"
	"github.com/chainbridge-oss/proofpack/pkg/store"
)

// Resolver resolves a single evidence ref into an artifact for the given
// role.
type Resolver interface {
	Resolve(ctx context.Context, ref string, role pdo.Role) (*pdo.Artifact, error)
}

// StoreResolver resolves refs against an EvidenceStore.
type StoreResolver struct {
	source store.EvidenceStore
	clock  func() time.Time
	log    *slog.Logger
}

func NewStoreResolver(source store.EvidenceStore) *StoreResolver {
	return &StoreResolver{
		source: source,
		clock:  time.Now,
		log:    slog.Default().With("component", "resolver"),
	}
}

// WithClock overrides the timestamp used for unresolved placeholders.
func (r *StoreResolver) WithClock(clock func() time.Time) *StoreResolver {
	r.clock = clock
	return r
}

func (r *StoreResolver) Resolve(ctx context.Context, ref string, role pdo.Role) (*pdo.Artifact, error) {
	e, err := r.source.GetEvidence(ctx, ref)
	if err != nil {
		status, soft := classify(err)
		if !soft {
			return nil, fmt.Errorf("resolve %s: %w", ref, err)
		}
		r.log.Warn("evidence unresolved", "ref", ref, "role", string(role), "status", string(status))
		return pdo.NewUnresolvedArtifact(ref, role, status, r.clock())
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = r.clock()
	}
	return pdo.NewResolvedArtifact(ref, role, e.Content, ts)
}

func classify(err error) (pdo.ResolutionStatus, bool) {
	switch {
	case errors.Is(err, store.ErrEvidenceNotFound):
		return pdo.ResolutionNotFound, true
	case errors.Is(err, store.ErrEvidenceAccessDenied):
		return pdo.ResolutionAccessDenied, true
	case errors.Is(err, store.ErrEvidenceExpired):
		return pdo.ResolutionExpired, true
	}
	return "", false
}
