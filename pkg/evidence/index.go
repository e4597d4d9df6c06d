package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chainbridge-oss/proofpack/pkg/canonicalize"
	"github.com/chainbridge-oss/proofpack/pkg/store"
)

// ErrBlobNotFound reports a missing blob.
var ErrBlobNotFound = errors.New("blob not found")

// IndexEntry maps one evidence ref onto its blob address.
type IndexEntry struct {
	Address    string `json:"address"`
	AcquiredAt string `json:"acquired_at"`
	ExpiresAt  string `json:"expires_at,omitempty"`
}

// Source resolves evidence refs through an index backed by a blob store. It
// implements the evidence lookup contract used during export.
type Source struct {
	blobs BlobStore
	clock func() time.Time

	mu      sync.RWMutex
	entries map[string]IndexEntry
}

var _ store.EvidenceStore = (*Source)(nil)

func NewSource(blobs BlobStore) *Source {
	return &Source{
		blobs:   blobs,
		clock:   time.Now,
		entries: make(map[string]IndexEntry),
	}
}

// WithClock overrides the expiry clock.
func (s *Source) WithClock(clock func() time.Time) *Source {
	s.clock = clock
	return s
}

// Add canonically encodes content, persists it as a blob, and indexes it
// under ref. Re-adding a ref overwrites its index entry.
func (s *Source) Add(ctx context.Context, ref string, content any, acquiredAt time.Time) error {
	data, err := canonicalize.JCS(content)
	if err != nil {
		return fmt.Errorf("encoding evidence %s: %w", ref, err)
	}
	address, err := s.blobs.Put(ctx, data)
	if err != nil {
		return fmt.Errorf("storing evidence %s: %w", ref, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[ref] = IndexEntry{
		Address:    address,
		AcquiredAt: canonicalize.FormatTime(acquiredAt),
	}
	return nil
}

// Expire marks ref as expired at the given instant.
func (s *Source) Expire(ref string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[ref]
	if !ok {
		return
	}
	entry.ExpiresAt = canonicalize.FormatTime(at)
	s.entries[ref] = entry
}

// GetEvidence looks ref up in the index and fetches its blob.
func (s *Source) GetEvidence(ctx context.Context, ref string) (*store.Evidence, error) {
	s.mu.RLock()
	entry, ok := s.entries[ref]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("evidence %s: %w", ref, store.ErrEvidenceNotFound)
	}

	if entry.ExpiresAt != "" {
		expires, err := canonicalize.ParseTime(entry.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("evidence %s has malformed expiry %q: %w", ref, entry.ExpiresAt, err)
		}
		if !s.clock().Before(expires) {
			return nil, fmt.Errorf("evidence %s: %w", ref, store.ErrEvidenceExpired)
		}
	}

	data, err := s.blobs.Get(ctx, entry.Address)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, fmt.Errorf("evidence %s: %w", ref, store.ErrEvidenceNotFound)
		}
		return nil, fmt.Errorf("evidence %s: %w", ref, err)
	}

	var content any
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("evidence %s is not valid JSON: %w", ref, err)
	}

	acquired, err := canonicalize.ParseTime(entry.AcquiredAt)
	if err != nil {
		return nil, fmt.Errorf("evidence %s has malformed timestamp %q: %w", ref, entry.AcquiredAt, err)
	}

	return &store.Evidence{Ref: ref, Content: content, Timestamp: acquired}, nil
}

// indexFile is the on-disk index layout.
type indexFile struct {
	Entries map[string]IndexEntry `json:"entries"`
}

// SaveIndex writes the ref index to path.
func (s *Source) SaveIndex(path string) error {
	s.mu.RLock()
	data, err := json.MarshalIndent(indexFile{Entries: s.entries}, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing index: %w", err)
	}
	return nil
}

// LoadIndex replaces the ref index with the contents of path.
func (s *Source) LoadIndex(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading index: %w", err)
	}
	var f indexFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parsing index %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = f.Entries
	if s.entries == nil {
		s.entries = make(map[string]IndexEntry)
	}
	return nil
}
