package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/chainbridge-oss/proofpack/pkg/pdo"
)

// MemoryPDOStore is an in-memory append-only record store. Records are
// stored and returned as deep copies so callers cannot mutate persisted
// state behind the seal.
type MemoryPDOStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*pdo.Record
	opts    options
}

func NewMemoryPDOStore(opts ...Option) *MemoryPDOStore {
	return &MemoryPDOStore{
		records: make(map[uuid.UUID]*pdo.Record),
		opts:    applyOptions(opts),
	}
}

func (s *MemoryPDOStore) Create(ctx context.Context, d pdo.Draft) (*pdo.Record, error) {
	r, err := pdo.NewRecord(d, s.opts.clock(), s.opts.hashOpts)
	if err != nil {
		return nil, err
	}
	if err := s.Put(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *MemoryPDOStore) Put(_ context.Context, r *pdo.Record) error {
	if !r.VerifyHash(s.opts.hashOpts) {
		computed, _ := r.ComputeHash(s.opts.hashOpts)
		return &IntegrityError{PDOID: r.PDOID.String(), Stored: r.Hash, Computed: computed}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[r.PDOID]; exists {
		return fmt.Errorf("pdo %s: %w", r.PDOID, ErrImmutable)
	}

	stored, err := copyRecord(r)
	if err != nil {
		return err
	}
	s.records[r.PDOID] = stored
	return nil
}

func (s *MemoryPDOStore) Get(_ context.Context, id uuid.UUID) (*pdo.Record, error) {
	s.mu.RLock()
	r, ok := s.records[id]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("pdo %s: %w", id, ErrNotFound)
	}

	out, err := copyRecord(r)
	if err != nil {
		return nil, err
	}
	if !out.VerifyHash(s.opts.hashOpts) {
		computed, _ := out.ComputeHash(s.opts.hashOpts)
		return nil, &IntegrityError{PDOID: id.String(), Stored: out.Hash, Computed: computed}
	}
	return out, nil
}

// tamper overwrites a stored record in place. Test hook for exercising
// integrity detection; there is no exported mutation path.
func (s *MemoryPDOStore) tamper(id uuid.UUID, mutate func(*pdo.Record)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[id]; ok {
		mutate(r)
	}
}

func copyRecord(r *pdo.Record) (*pdo.Record, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("copy pdo record: %w", err)
	}
	var out pdo.Record
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("copy pdo record: %w", err)
	}
	return &out, nil
}

// MemoryEvidenceStore is an in-memory evidence source. Refs can be loaded
// with content or primed to fail with a specific resolution error.
type MemoryEvidenceStore struct {
	mu       sync.RWMutex
	evidence map[string]*Evidence
	failures map[string]error
}

func NewMemoryEvidenceStore() *MemoryEvidenceStore {
	return &MemoryEvidenceStore{
		evidence: make(map[string]*Evidence),
		failures: make(map[string]error),
	}
}

// Put registers resolvable evidence under ref.
func (s *MemoryEvidenceStore) Put(ref string, e *Evidence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evidence[ref] = e
	delete(s.failures, ref)
}

// Fail makes subsequent resolutions of ref return err.
func (s *MemoryEvidenceStore) Fail(ref string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[ref] = err
	delete(s.evidence, ref)
}

// Delete removes ref entirely; resolutions return ErrEvidenceNotFound.
func (s *MemoryEvidenceStore) Delete(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.evidence, ref)
	delete(s.failures, ref)
}

func (s *MemoryEvidenceStore) GetEvidence(_ context.Context, ref string) (*Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err, ok := s.failures[ref]; ok {
		return nil, fmt.Errorf("evidence %s: %w", ref, err)
	}
	e, ok := s.evidence[ref]
	if !ok {
		return nil, fmt.Errorf("evidence %s: %w", ref, ErrEvidenceNotFound)
	}
	return e, nil
}
