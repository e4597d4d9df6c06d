//go:build !gcp

package evidence

import (
	"context"
	"fmt"
)

func newGCSBlobStoreFromEnv(ctx context.Context) (BlobStore, error) {
	return nil, fmt.Errorf("GCS storage is not enabled in this build (use -tags gcp)")
}
