package proofpack

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainbridge-oss/proofpack/pkg/store"
)

func exportedBundle(t *testing.T) *Bundle {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryPDOStore()
	id := uuid.New()
	require.NoError(t, s.Put(ctx, sealedRecord(t, id, time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC), nil)))

	bundle, err := newExporter(s, evidenceFixture()).Export(ctx, id)
	require.NoError(t, err)
	return bundle
}

func TestWriteDir(t *testing.T) {
	bundle := exportedBundle(t)
	dest := t.TempDir()

	root, err := WriteDir(bundle, dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, bundle.RootDir()), root)

	for path, want := range bundle.Files {
		got, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(path)))
		require.NoError(t, err, "bundle file %s must exist on disk", path)
		assert.Equal(t, want, got)
	}
}

func TestWriteArchive_LayoutAndDeterminism(t *testing.T) {
	bundle := exportedBundle(t)

	var buf bytes.Buffer
	require.NoError(t, WriteArchive(bundle, &buf))

	gr, err := gzip.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	tr := tar.NewReader(gr)

	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)

		assert.True(t, hdr.ModTime.Equal(time.Unix(0, 0)), "mtime must be epoch for determinism")
		assert.Zero(t, hdr.Uid)
		assert.Zero(t, hdr.Gid)

		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		rel := hdr.Name[len(bundle.RootDir())+1:]
		assert.Equal(t, bundle.Files[rel], data)
	}

	assert.True(t, sort.StringsAreSorted(names), "entries must be written in sorted path order")
	assert.Len(t, names, len(bundle.Files))
}
