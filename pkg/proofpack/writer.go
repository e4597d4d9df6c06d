package proofpack

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// VerificationInstructions is the static VERIFICATION.txt shipped inside
// every bundle so an auditor can verify it with nothing but this text.
const VerificationInstructions = `PROOFPACK VERIFICATION INSTRUCTIONS
===================================

This bundle is self-contained and verifiable offline. No network access or
access to the originating system is required. You need only: SHA-256, a JSON
parser, and UTF-8 decoding.

All JSON files in this bundle are canonical: UTF-8 without BOM, object keys
sorted lexicographically by byte value, compact separators ("," and ":"),
arrays in semantic order, timestamps as ISO-8601 UTC with a Z suffix, UUIDs
lowercase, hashes lowercase hexadecimal.

Verify in this order:

1. PDO hash check.
   Parse pdo/record.json. Remove the "hash", "hash_algorithm", "metadata",
   and "tags" fields. Re-encode the remainder canonically, hash with
   SHA-256, and compare to the record's "hash" field. A mismatch means the
   record was altered: INVALID_PDO_HASH.

2. Manifest hash check.
   Remove the "integrity" block from manifest.json, re-encode the remainder
   canonically, hash with SHA-256, and compare to
   "integrity.manifest_hash". A mismatch means the manifest was altered:
   INVALID_MANIFEST_HASH.

3. Artifact hash check.
   For every entry in manifest.json "contents" (pdo, inputs, decision,
   outcome, lineage), hash the raw bytes of the file at "path" and compare
   to the entry's "hash". A mismatch means that file was altered:
   INVALID_ARTIFACT_HASH for pdo, input, decision, and outcome files;
   INVALID_LINEAGE for lineage files.

4. Lineage check.
   Walk the lineage files oldest to newest. Each record's "pdo_id" must
   equal the next record's "previous_pdo_id", each "recorded_at" must be
   strictly increasing, the newest entry must be the "previous_pdo_id" of
   pdo/record.json, and each lineage record must pass the check in step 1.
   Any break: INVALID_LINEAGE.

5. Reference consistency check.
   The manifest "pdo_id" must match pdo/record.json "pdo_id". The refs
   listed under manifest "contents" inputs/decision/outcome must match the
   record's "input_refs" (same order), "decision_ref", and "outcome_ref".
   Any mismatch: INVALID_REFERENCES.

A file listed in the manifest but absent from the bundle is INCOMPLETE, as
is a bundle file that no longer parses as JSON. A "proofpack_version" this
verifier does not understand is UNSUPPORTED_VERSION. Only if every check
passes is the bundle VALID.

Inputs with "resolution_status" set had evidence that could not be
retrieved at export time. The placeholder proves the evidence was expected
and missing; it does not prove what the evidence contained.
`

// WriteDir materializes the bundle under destDir as the canonical
// proofpack-{pdo_id}/ tree.
func WriteDir(b *Bundle, destDir string) (string, error) {
	root := filepath.Join(destDir, b.RootDir())

	for _, path := range sortedPaths(b.Files) {
		full := filepath.Join(root, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return "", fmt.Errorf("create %s: %w", filepath.Dir(full), err)
		}
		if err := os.WriteFile(full, b.Files[path], 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", path, err)
		}
	}
	return root, nil
}

// WriteArchive writes the bundle as a deterministic tar.gz stream.
// Determinism: sorted paths, fixed mtime(0), stable uid/gid(0), so two
// exports of identical content produce identical archives.
func WriteArchive(b *Bundle, w io.Writer) error {
	gw := gzip.NewWriter(w)
	tw := tar.NewWriter(gw)

	root := b.RootDir()
	for _, path := range sortedPaths(b.Files) {
		if err := writeEntry(tw, root+"/"+path, b.Files[path]); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("close gzip: %w", err)
	}
	return nil
}

// WriteArchiveFile writes the bundle archive to outPath.
func WriteArchiveFile(b *Bundle, outPath string) error {
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()
	return WriteArchive(b, f)
}

func writeEntry(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{
		Name:    name,
		Size:    int64(len(data)),
		Mode:    0644,
		ModTime: time.Unix(0, 0),
		Uid:     0,
		Gid:     0,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("write data %s: %w", name, err)
	}
	return nil
}

func sortedPaths(files map[string][]byte) []string {
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
