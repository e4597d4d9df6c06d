package verifier

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LoadDir reads a bundle directory into memory, keyed by path relative to
// the bundle root. dir may point at the proofpack-{pdo_id}/ directory itself
// or at a directory containing exactly one such subdirectory.
func LoadDir(dir string) (map[string][]byte, error) {
	root := dir
	if _, err := os.Stat(filepath.Join(dir, "manifest.json")); err != nil {
		nested, err := findBundleRoot(dir)
		if err != nil {
			return nil, err
		}
		root = nested
	}

	files := make(map[string][]byte)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		files[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func findBundleRoot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", dir, err)
	}
	var candidates []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "proofpack-") {
			candidates = append(candidates, filepath.Join(dir, entry.Name()))
		}
	}
	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("%s contains no proofpack bundle", dir)
	case 1:
		return candidates[0], nil
	}
	return "", fmt.Errorf("%s contains %d proofpack bundles, expected one", dir, len(candidates))
}

// LoadArchive reads a tar.gz bundle stream into memory, stripping the
// proofpack-{pdo_id}/ top-level directory from paths.
func LoadArchive(r io.Reader) (map[string][]byte, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer gr.Close()

	files := make(map[string][]byte)
	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tar read: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", hdr.Name, err)
		}
		files[stripBundleRoot(hdr.Name)] = data
	}
	return files, nil
}

// LoadArchiveFile reads a tar.gz bundle from disk.
func LoadArchiveFile(path string) (map[string][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer f.Close()
	return LoadArchive(f)
}

func stripBundleRoot(name string) string {
	name = strings.TrimPrefix(name, "./")
	if i := strings.IndexByte(name, '/'); i >= 0 && strings.HasPrefix(name, "proofpack-") {
		return name[i+1:]
	}
	return name
}
