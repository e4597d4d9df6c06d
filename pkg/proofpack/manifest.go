package proofpack

import (
	"fmt"

	"github.com/chainbridge-oss/proofpack/pkg/canonicalize"
)

// ProofPackVersion is the bundle format version this exporter produces.
const ProofPackVersion = "1.0"

// manifestHashInputs names the manifest body fields covered by
// manifest_hash, in canonical order. The integrity block itself is excluded
// to avoid a hash-of-a-hash cycle.
var manifestHashInputs = []string{"contents", "exported_at", "exporter", "pdo_id", "proofpack_version"}

// ExporterInfo identifies the producing system inside the manifest.
type ExporterInfo struct {
	System    string `json:"system"`
	Component string `json:"component"`
	Version   string `json:"version"`
}

// Entry binds one bundle file to its expected content hash. Artifact entries
// carry the originating ref; record entries carry the pdo_id.
type Entry struct {
	Ref           string `json:"ref,omitempty"`
	PDOID         string `json:"pdo_id,omitempty"`
	Path          string `json:"path"`
	Hash          string `json:"hash"`
	HashAlgorithm string `json:"hash_algorithm"`
}

// Contents lists every file in the bundle by section. Inputs preserve the
// record's input_refs order; lineage is ordered oldest first.
type Contents struct {
	PDO      Entry   `json:"pdo"`
	Inputs   []Entry `json:"inputs"`
	Decision Entry   `json:"decision"`
	Outcome  Entry   `json:"outcome"`
	Lineage  []Entry `json:"lineage"`
}

// Integrity seals the manifest body.
type Integrity struct {
	ManifestHash  string   `json:"manifest_hash"`
	HashAlgorithm string   `json:"hash_algorithm"`
	HashInputs    []string `json:"hash_inputs"`
}

// Manifest is the root integrity object of a bundle.
type Manifest struct {
	ProofPackVersion string       `json:"proofpack_version"`
	PDOID            string       `json:"pdo_id"`
	ExportedAt       string       `json:"exported_at"`
	Exporter         ExporterInfo `json:"exporter"`
	Contents         Contents     `json:"contents"`
	Integrity        Integrity    `json:"integrity"`
}

// body returns the hash-covered portion of the manifest. Nil slices render
// as empty arrays so the body hash never depends on how the manifest was
// constructed.
func (m *Manifest) body() map[string]any {
	return map[string]any{
		"proofpack_version": m.ProofPackVersion,
		"pdo_id":            m.PDOID,
		"exported_at":       m.ExportedAt,
		"exporter":          m.Exporter,
		"contents": map[string]any{
			"pdo":      m.Contents.PDO,
			"inputs":   entriesOrEmpty(m.Contents.Inputs),
			"decision": m.Contents.Decision,
			"outcome":  m.Contents.Outcome,
			"lineage":  entriesOrEmpty(m.Contents.Lineage),
		},
	}
}

// BodyHash computes manifest_hash over the canonical manifest body.
func (m *Manifest) BodyHash() (string, error) {
	hash, err := canonicalize.CanonicalHash(m.body())
	if err != nil {
		return "", fmt.Errorf("hashing manifest body: %w", err)
	}
	return hash, nil
}

// Seal computes and installs the integrity block.
func (m *Manifest) Seal() error {
	hash, err := m.BodyHash()
	if err != nil {
		return err
	}
	m.Integrity = Integrity{
		ManifestHash:  hash,
		HashAlgorithm: canonicalize.HashAlgorithm,
		HashInputs:    manifestHashInputs,
	}
	return nil
}

// EncodeCanonical returns the manifest.json bytes.
func (m *Manifest) EncodeCanonical() ([]byte, error) {
	full := m.body()
	full["integrity"] = m.Integrity
	return canonicalize.JCS(full)
}

func entriesOrEmpty(entries []Entry) []Entry {
	if entries == nil {
		return []Entry{}
	}
	return entries
}
