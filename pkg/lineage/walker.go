// Package lineage walks a PDO record's ancestry chain.
//
// Lineage is a singly linked list through previous_pdo_id, newest to oldest.
// The walker follows it backwards, guards against cycles, and verifies every
// ancestor's seal before letting it into an export.
package lineage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/chainbridge-oss/proofpack/pkg/pdo"
	"github.com/chainbridge-oss/proofpack/pkg/store"
)

// DefaultMaxDepth bounds how many ancestors a single walk may visit.
const DefaultMaxDepth = 1000

// CycleError is returned when the chain revisits a record.
type CycleError struct {
	PDOID uuid.UUID
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("lineage cycle detected at pdo %s", e.PDOID)
}

// BrokenChainError is returned when an ancestor referenced by the chain does
// not exist in the store.
type BrokenChainError struct {
	PDOID uuid.UUID
	Err   error
}

func (e *BrokenChainError) Error() string {
	return fmt.Sprintf("lineage references missing pdo %s: %v", e.PDOID, e.Err)
}

func (e *BrokenChainError) Unwrap() error { return e.Err }

// Walker resolves ancestry chains from a PDO store.
type Walker struct {
	store    store.PDOStore
	maxDepth int
	log      *slog.Logger
}

func NewWalker(s store.PDOStore) *Walker {
	return &Walker{
		store:    s,
		maxDepth: DefaultMaxDepth,
		log:      slog.Default().With("component", "lineage"),
	}
}

// WithMaxDepth overrides the depth bound.
func (w *Walker) WithMaxDepth(depth int) *Walker {
	w.maxDepth = depth
	return w
}

// Ancestors returns the chain of records preceding r, ordered newest first
// (immediate parent at index 0). The starting record itself is not included.
// The walk stops at a null previous_pdo_id or at the depth bound, whichever
// comes first; depth exhaustion truncates the oldest side of the chain.
//
// Store integrity errors propagate unwrapped so callers can distinguish a
// tampered ancestor from a missing one.
func (w *Walker) Ancestors(ctx context.Context, r *pdo.Record) ([]*pdo.Record, error) {
	visited := map[uuid.UUID]struct{}{r.PDOID: {}}
	var chain []*pdo.Record

	next := r.PreviousPDOID
	for next != nil && len(chain) < w.maxDepth {
		if _, seen := visited[*next]; seen {
			return nil, &CycleError{PDOID: *next}
		}

		ancestor, err := w.store.Get(ctx, *next)
		if err != nil {
			var integrity *store.IntegrityError
			if errors.As(err, &integrity) {
				return nil, err
			}
			if errors.Is(err, store.ErrNotFound) {
				return nil, &BrokenChainError{PDOID: *next, Err: err}
			}
			return nil, fmt.Errorf("walking lineage at %s: %w", next, err)
		}

		visited[ancestor.PDOID] = struct{}{}
		chain = append(chain, ancestor)
		next = ancestor.PreviousPDOID
	}

	if len(chain) > 0 {
		w.log.Debug("lineage resolved", "pdo_id", r.PDOID, "depth", len(chain))
	}
	return chain, nil
}
