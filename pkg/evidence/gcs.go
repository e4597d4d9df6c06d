//go:build gcp

package evidence

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
)

// GCSBlobStore keeps evidence blobs in a Google Cloud Storage bucket.
type GCSBlobStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSConfig configures a GCSBlobStore.
type GCSConfig struct {
	Bucket string
	Prefix string // optional object prefix
}

// NewGCSBlobStore authenticates via Application Default Credentials.
func NewGCSBlobStore(ctx context.Context, cfg GCSConfig) (*GCSBlobStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCSBlobStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *GCSBlobStore) Put(ctx context.Context, data []byte) (string, error) {
	address := Address(data)
	obj := s.object(address)

	// Content addressing makes Put idempotent.
	if _, err := obj.Attrs(ctx); err == nil {
		return address, nil
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close: %w", err)
	}
	return address, nil
}

func (s *GCSBlobStore) Get(ctx context.Context, address string) ([]byte, error) {
	if _, err := parseAddress(address); err != nil {
		return nil, err
	}
	r, err := s.object(address).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("blob %s: %w", address, ErrBlobNotFound)
		}
		return nil, fmt.Errorf("gcs get %s: %w", address, err)
	}
	defer func() { _ = r.Close() }()
	return readAll(r)
}

func (s *GCSBlobStore) Exists(ctx context.Context, address string) (bool, error) {
	if _, err := parseAddress(address); err != nil {
		return false, err
	}
	_, err := s.object(address).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("gcs attrs: %w", err)
	}
	return true, nil
}

func (s *GCSBlobStore) Delete(ctx context.Context, address string) error {
	if _, err := parseAddress(address); err != nil {
		return err
	}
	if err := s.object(address).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete %s: %w", address, err)
	}
	return nil
}

func (s *GCSBlobStore) Close() error {
	return s.client.Close()
}

func (s *GCSBlobStore) object(address string) *storage.ObjectHandle {
	digest, _ := parseAddress(address)
	return s.client.Bucket(s.bucket).Object(s.prefix + digest + ".blob")
}
