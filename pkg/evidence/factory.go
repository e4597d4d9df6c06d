package evidence

import (
	"context"
	"fmt"
	"os"
)

// BackendType selects a blob storage backend.
type BackendType string

const (
	BackendFS  BackendType = "fs"
	BackendS3  BackendType = "s3"
	BackendGCS BackendType = "gcs"
)

// NewBlobStoreFromEnv creates a blob store from environment variables.
//
// Environment variables:
//   - EVIDENCE_STORAGE_TYPE: "fs" (default), "s3", or "gcs"
//   - EVIDENCE_DIR: base directory for the filesystem store (default: "data/evidence")
//
// For S3:
//   - EVIDENCE_S3_BUCKET (required)
//   - EVIDENCE_S3_REGION or AWS_REGION
//   - EVIDENCE_S3_ENDPOINT (optional, for MinIO/LocalStack)
//   - EVIDENCE_S3_PREFIX (optional)
//
// For GCS (requires the gcp build tag):
//   - EVIDENCE_GCS_BUCKET (required)
//   - EVIDENCE_GCS_PREFIX (optional)
func NewBlobStoreFromEnv(ctx context.Context) (BlobStore, error) {
	backend := BackendType(os.Getenv("EVIDENCE_STORAGE_TYPE"))
	if backend == "" {
		backend = BackendFS
	}

	switch backend {
	case BackendFS:
		dir := os.Getenv("EVIDENCE_DIR")
		if dir == "" {
			dir = "data/evidence"
		}
		return NewFileBlobStore(dir)
	case BackendS3:
		return newS3BlobStoreFromEnv(ctx)
	case BackendGCS:
		return newGCSBlobStoreFromEnv(ctx)
	default:
		return nil, fmt.Errorf("unsupported evidence storage type: %s", backend)
	}
}

func newS3BlobStoreFromEnv(ctx context.Context) (BlobStore, error) {
	bucket := os.Getenv("EVIDENCE_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("EVIDENCE_S3_BUCKET is required for S3 storage")
	}

	region := os.Getenv("EVIDENCE_S3_REGION")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}

	return NewS3BlobStore(ctx, S3Config{
		Bucket:   bucket,
		Region:   region,
		Endpoint: os.Getenv("EVIDENCE_S3_ENDPOINT"),
		Prefix:   os.Getenv("EVIDENCE_S3_PREFIX"),
	})
}
