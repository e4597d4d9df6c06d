// Package evidence provides content-addressed storage for the raw evidence
// payloads that decision records reference.
//
// Blobs are addressed as "sha256:<hex>" so a payload can never be swapped
// underneath the address that names it. An index maps the opaque refs carried
// by records onto blob addresses.
package evidence

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chainbridge-oss/proofpack/pkg/canonicalize"
)

// addressPrefix tags every blob address with its hash algorithm.
const addressPrefix = "sha256:"

// BlobStore is content-addressed storage for evidence payloads.
type BlobStore interface {
	// Put persists data and returns its address.
	Put(ctx context.Context, data []byte) (string, error)
	// Get retrieves data by address.
	Get(ctx context.Context, address string) ([]byte, error)
	// Exists reports whether a blob is present.
	Exists(ctx context.Context, address string) (bool, error)
	// Delete removes a blob. Deleting an absent blob is not an error.
	Delete(ctx context.Context, address string) error
}

// Address returns the blob address for data.
func Address(data []byte) string {
	return addressPrefix + canonicalize.HashBytes(data)
}

// parseAddress extracts the hex digest from a "sha256:<hex>" address.
func parseAddress(address string) (string, error) {
	digest, ok := strings.CutPrefix(address, addressPrefix)
	if !ok || len(digest) != 64 {
		return "", fmt.Errorf("invalid blob address: %q", address)
	}
	for _, c := range digest {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("invalid blob address: %q", address)
		}
	}
	return digest, nil
}

// FileBlobStore keeps blobs on the local filesystem, one file per digest.
type FileBlobStore struct {
	baseDir string
	mu      sync.RWMutex
}

func NewFileBlobStore(baseDir string) (*FileBlobStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure blob dir: %w", err)
	}
	return &FileBlobStore{baseDir: baseDir}, nil
}

func (s *FileBlobStore) Put(_ context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	address := Address(data)
	path := s.path(address)

	// Content addressing makes Put idempotent.
	if _, err := os.Stat(path); err == nil {
		return address, nil
	}

	// Write to a temp file, then rename, so a crash never leaves a
	// half-written blob behind its final address.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("commit blob: %w", err)
	}
	return address, nil
}

func (s *FileBlobStore) Get(_ context.Context, address string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	digest, err := parseAddress(address)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.baseDir, digest+".blob"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob %s: %w", address, ErrBlobNotFound)
		}
		return nil, fmt.Errorf("read blob %s: %w", address, err)
	}
	return data, nil
}

func (s *FileBlobStore) Exists(_ context.Context, address string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	digest, err := parseAddress(address)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(s.baseDir, digest+".blob"))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat blob %s: %w", address, err)
}

func (s *FileBlobStore) Delete(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	digest, err := parseAddress(address)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.baseDir, digest+".blob")); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob %s: %w", address, err)
	}
	return nil
}

func (s *FileBlobStore) path(address string) string {
	digest := strings.TrimPrefix(address, addressPrefix)
	return filepath.Join(s.baseDir, digest+".blob")
}

// readAll drains r, closing is the caller's concern.
func readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read blob body: %w", err)
	}
	return data, nil
}
