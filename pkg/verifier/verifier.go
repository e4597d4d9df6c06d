// Package verifier checks ProofPack bundles entirely offline.
//
// The verifier is deliberately independent of the exporter: it never touches
// the originating store and works on the bundle's raw bytes alone, decoding
// JSON generically rather than through the exporter's types. The one shared
// dependency is the canonicalization routine, which both sides must agree on
// byte for byte.
//
// Data-integrity problems are typed outcomes, never errors: a distrustful
// third party needs a structured, citable answer. That includes bundle files
// that no longer parse as JSON; truncated or garbled bytes are themselves
// tamper evidence and report INCOMPLETE. Errors are reserved for operational
// failures outside the bundle's bytes, such as unreadable input.
package verifier

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/chainbridge-oss/proofpack/pkg/canonicalize"
)

// Outcome is the verification result taxonomy. A bundle is binary
// valid/invalid; the outcome names precisely why.
type Outcome string

const (
	OutcomeValid               Outcome = "VALID"
	OutcomeInvalidPDOHash      Outcome = "INVALID_PDO_HASH"
	OutcomeInvalidArtifactHash Outcome = "INVALID_ARTIFACT_HASH"
	OutcomeInvalidManifestHash Outcome = "INVALID_MANIFEST_HASH"
	OutcomeInvalidLineage      Outcome = "INVALID_LINEAGE"
	OutcomeInvalidReferences   Outcome = "INVALID_REFERENCES"
	OutcomeIncomplete          Outcome = "INCOMPLETE"
	OutcomeUnsupportedVersion  Outcome = "UNSUPPORTED_VERSION"
)

// supportedVersions gates proofpack_version before any hash work happens.
var supportedVersions = mustConstraint("^1.0")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// CheckResult records one verification step.
type CheckResult struct {
	Name    string  `json:"name"`
	Passed  bool    `json:"passed"`
	Outcome Outcome `json:"outcome,omitempty"`
	Detail  string  `json:"detail,omitempty"`
}

// Report is the full verification result.
type Report struct {
	Outcome          Outcome       `json:"outcome"`
	PDOID            string        `json:"pdo_id,omitempty"`
	ProofPackVersion string        `json:"proofpack_version,omitempty"`
	VerifiedAt       string        `json:"verified_at"`
	Checks           []CheckResult `json:"checks"`
}

// Valid reports whether every check passed.
func (r *Report) Valid() bool { return r.Outcome == OutcomeValid }

// Verifier checks bundles. The zero value short-circuits on the first
// failure; CollectAll runs every check and reports the first failure's
// outcome.
type Verifier struct {
	// CollectAll runs all checks instead of stopping at the first failure.
	CollectAll bool

	// IncludeMetadata extends the PDO hash check over metadata and tags.
	// Must match the setting the records were sealed with.
	IncludeMetadata bool

	clock func() time.Time
}

func New() *Verifier {
	return &Verifier{clock: time.Now}
}

// WithClock overrides the verified_at timestamp source.
func (v *Verifier) WithClock(clock func() time.Time) *Verifier {
	v.clock = clock
	return v
}

// Verify checks a bundle given as files keyed by path relative to the
// bundle root.
func (v *Verifier) Verify(files map[string][]byte) (*Report, error) {
	if v.clock == nil {
		v.clock = time.Now
	}
	report := &Report{VerifiedAt: canonicalize.FormatTime(v.clock())}

	manifestBytes, ok := files["manifest.json"]
	if !ok {
		report.Outcome = OutcomeIncomplete
		report.Checks = append(report.Checks, CheckResult{
			Name: "manifest_present", Outcome: OutcomeIncomplete,
			Detail: "manifest.json is missing from the bundle",
		})
		return report, nil
	}

	var manifest map[string]any
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		report.Outcome = OutcomeIncomplete
		report.Checks = append(report.Checks, CheckResult{
			Name: "manifest_parses", Outcome: OutcomeIncomplete,
			Detail: fmt.Sprintf("manifest.json is not valid JSON: %v", err),
		})
		return report, nil
	}

	report.ProofPackVersion, _ = manifest["proofpack_version"].(string)
	report.PDOID, _ = manifest["pdo_id"].(string)

	// A version this verifier does not understand always stops
	// verification: later checks would be interpreting a foreign format.
	// The gate runs before schema validation, since a future format
	// legitimately carries a shape this verifier's schema rejects.
	if stop := v.run(report, v.versionResult(report.ProofPackVersion)); stop || report.Outcome == OutcomeUnsupportedVersion {
		return report, nil
	}

	if err := validateManifestSchema(manifestBytes); err != nil {
		if v.run(report, &CheckResult{
			Name: "manifest_schema", Outcome: OutcomeIncomplete,
			Detail: fmt.Sprintf("manifest.json does not match the bundle schema: %v", err),
		}) {
			return report, nil
		}
	}

	record, stop := v.checkPDOHash(report, files)
	if stop {
		return report, nil
	}
	// The manifest seal is checked before the per-file hashes so tampering
	// is attributed precisely: a doctored manifest reports
	// INVALID_MANIFEST_HASH rather than blaming the files it mis-lists.
	if v.run(report, v.checkManifestHash(manifest)) {
		return report, nil
	}
	if v.run(report, v.checkArtifactHashes(manifest, files)) {
		return report, nil
	}
	if v.run(report, v.checkLineage(manifest, record, files)) {
		return report, nil
	}
	if v.run(report, v.checkReferences(manifest, record)) {
		return report, nil
	}

	if report.Outcome == "" {
		report.Outcome = OutcomeValid
	}
	return report, nil
}

// run records one check result and reports whether verification should
// stop. The first failure fixes the report outcome even in collect-all
// mode.
func (v *Verifier) run(report *Report, result *CheckResult) bool {
	report.Checks = append(report.Checks, *result)
	if result.Passed {
		return false
	}
	if report.Outcome == "" {
		report.Outcome = result.Outcome
	}
	return !v.CollectAll
}

func (v *Verifier) versionResult(version string) *CheckResult {
	parsed, err := semver.NewVersion(version)
	if err != nil || !supportedVersions.Check(parsed) {
		return &CheckResult{
			Name: "version_supported", Outcome: OutcomeUnsupportedVersion,
			Detail: fmt.Sprintf("proofpack_version %q is not supported", version),
		}
	}
	return &CheckResult{Name: "version_supported", Passed: true}
}

// checkPDOHash loads and checks the main record. Later checks need the
// parsed record, so a missing or unparseable record stops verification
// outright.
func (v *Verifier) checkPDOHash(report *Report, files map[string][]byte) (map[string]any, bool) {
	recordBytes, ok := files["pdo/record.json"]
	if !ok {
		v.run(report, &CheckResult{
			Name: "pdo_hash", Outcome: OutcomeIncomplete,
			Detail: "pdo/record.json is missing from the bundle",
		})
		return nil, true
	}

	var record map[string]any
	if err := json.Unmarshal(recordBytes, &record); err != nil {
		v.run(report, &CheckResult{
			Name: "pdo_hash", Outcome: OutcomeIncomplete,
			Detail: fmt.Sprintf("pdo/record.json is not valid JSON: %v", err),
		})
		return nil, true
	}

	stop := v.run(report, v.recordHashResult("pdo_hash", record, OutcomeInvalidPDOHash))
	return record, stop
}

// recordHashResult recomputes a record's seal from its decoded fields.
func (v *Verifier) recordHashResult(name string, record map[string]any, failure Outcome) *CheckResult {
	storedHash, _ := record["hash"].(string)

	payload := make(map[string]any, len(record))
	for k, val := range record {
		switch k {
		case "hash", "hash_algorithm":
			continue
		case "metadata", "tags":
			if !v.IncludeMetadata {
				continue
			}
		}
		payload[k] = val
	}

	computed, err := canonicalize.CanonicalHash(payload)
	if err != nil {
		return &CheckResult{
			Name: name, Outcome: failure,
			Detail: fmt.Sprintf("record could not be canonically encoded: %v", err),
		}
	}
	if computed != storedHash {
		return &CheckResult{
			Name: name, Outcome: failure,
			Detail: fmt.Sprintf("stored hash %s does not match computed %s", storedHash, computed),
		}
	}
	return &CheckResult{Name: name, Passed: true}
}

// checkArtifactHashes re-hashes the raw bytes of every file the manifest
// lists. Problems with lineage files are lineage breaks; for the rest, a
// missing file leaves the bundle incomplete and altered bytes are an
// artifact hash failure.
func (v *Verifier) checkArtifactHashes(manifest map[string]any, files map[string][]byte) *CheckResult {
	for _, section := range manifestSections(manifest) {
		for _, entry := range section.entries {
			path, _ := entry["path"].(string)
			expected, _ := entry["hash"].(string)

			data, ok := files[path]
			if !ok {
				outcome := OutcomeIncomplete
				if section.name == "lineage" {
					outcome = OutcomeInvalidLineage
				}
				return &CheckResult{
					Name: "artifact_hashes", Outcome: outcome,
					Detail: fmt.Sprintf("%s listed in manifest but missing from bundle", path),
				}
			}
			if actual := canonicalize.HashBytes(data); actual != expected {
				outcome := OutcomeInvalidArtifactHash
				if section.name == "lineage" {
					outcome = OutcomeInvalidLineage
				}
				return &CheckResult{
					Name: "artifact_hashes", Outcome: outcome,
					Detail: fmt.Sprintf("%s: manifest hash %s does not match file hash %s", path, expected, actual),
				}
			}
		}
	}
	return &CheckResult{Name: "artifact_hashes", Passed: true}
}

func (v *Verifier) checkManifestHash(manifest map[string]any) *CheckResult {
	integrity, _ := manifest["integrity"].(map[string]any)
	stored, _ := integrity["manifest_hash"].(string)

	body := make(map[string]any, len(manifest))
	for k, val := range manifest {
		if k == "integrity" {
			continue
		}
		body[k] = val
	}

	computed, err := canonicalize.CanonicalHash(body)
	if err != nil {
		return &CheckResult{
			Name: "manifest_hash", Outcome: OutcomeInvalidManifestHash,
			Detail: fmt.Sprintf("manifest body could not be canonically encoded: %v", err),
		}
	}
	if computed != stored {
		return &CheckResult{
			Name: "manifest_hash", Outcome: OutcomeInvalidManifestHash,
			Detail: fmt.Sprintf("stored manifest_hash %s does not match computed %s", stored, computed),
		}
	}
	return &CheckResult{Name: "manifest_hash", Passed: true}
}

// checkLineage walks the included chain oldest to newest: every lineage
// record's own seal must hold, linkage must be contiguous, recorded_at must
// be strictly increasing, and the newest entry must be the main record's
// direct parent. An empty lineage section is fine; depth-limited exports
// truncate the oldest side of the chain.
func (v *Verifier) checkLineage(manifest map[string]any, record map[string]any, files map[string][]byte) *CheckResult {
	entries := sectionEntries(manifest, "lineage")
	if len(entries) == 0 {
		return &CheckResult{Name: "lineage", Passed: true}
	}

	fail := func(format string, args ...any) *CheckResult {
		return &CheckResult{
			Name: "lineage", Outcome: OutcomeInvalidLineage,
			Detail: fmt.Sprintf(format, args...),
		}
	}

	chain := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		path, _ := entry["path"].(string)
		data, ok := files[path]
		if !ok {
			return fail("%s listed in manifest but missing from bundle", path)
		}
		var ancestor map[string]any
		if err := json.Unmarshal(data, &ancestor); err != nil {
			return fail("%s is not valid JSON: %v", path, err)
		}
		if result := v.recordHashResult("lineage", ancestor, OutcomeInvalidLineage); !result.Passed {
			return fail("%s: %s", path, result.Detail)
		}
		chain = append(chain, ancestor)
	}

	var prevRecordedAt *time.Time
	for i, ancestor := range chain {
		ts, err := recordedAt(ancestor)
		if err != nil {
			return fail("lineage entry %d: %v", i, err)
		}
		if prevRecordedAt != nil && !ts.After(*prevRecordedAt) {
			return fail("recorded_at is not strictly increasing at lineage entry %d", i)
		}
		prevRecordedAt = &ts

		if i+1 < len(chain) {
			childPrev, _ := chain[i+1]["previous_pdo_id"].(string)
			id, _ := ancestor["pdo_id"].(string)
			if childPrev != id {
				return fail("lineage entry %d (%s) is not the previous_pdo_id of entry %d", i, id, i+1)
			}
		}
	}

	newest := chain[len(chain)-1]
	newestID, _ := newest["pdo_id"].(string)
	recordPrev, _ := record["previous_pdo_id"].(string)
	if recordPrev != newestID {
		return fail("newest lineage entry %s is not the record's previous_pdo_id", newestID)
	}

	ts, err := recordedAt(record)
	if err != nil {
		return fail("record: %v", err)
	}
	if !ts.After(*prevRecordedAt) {
		return fail("record's recorded_at is not after its newest ancestor")
	}

	return &CheckResult{Name: "lineage", Passed: true}
}

// checkReferences joins the manifest back to the record: ids must match and
// the manifest's listed refs must reproduce the record's reference fields
// in order.
func (v *Verifier) checkReferences(manifest map[string]any, record map[string]any) *CheckResult {
	fail := func(format string, args ...any) *CheckResult {
		return &CheckResult{
			Name: "references", Outcome: OutcomeInvalidReferences,
			Detail: fmt.Sprintf(format, args...),
		}
	}

	manifestID, _ := manifest["pdo_id"].(string)
	recordID, _ := record["pdo_id"].(string)
	if manifestID != recordID {
		return fail("manifest pdo_id %s does not match record pdo_id %s", manifestID, recordID)
	}

	recordInputs := stringSlice(record["input_refs"])
	manifestInputs := make([]string, 0)
	for _, entry := range sectionEntries(manifest, "inputs") {
		ref, _ := entry["ref"].(string)
		manifestInputs = append(manifestInputs, ref)
	}
	if len(recordInputs) != len(manifestInputs) {
		return fail("manifest lists %d inputs, record has %d input_refs", len(manifestInputs), len(recordInputs))
	}
	for i := range recordInputs {
		if recordInputs[i] != manifestInputs[i] {
			return fail("input %d: manifest ref %s does not match record ref %s", i, manifestInputs[i], recordInputs[i])
		}
	}

	for _, single := range []struct {
		section string
		field   string
	}{
		{"decision", "decision_ref"},
		{"outcome", "outcome_ref"},
	} {
		entry := sectionEntry(manifest, single.section)
		manifestRef, _ := entry["ref"].(string)
		recordRef, _ := record[single.field].(string)
		if manifestRef != recordRef {
			return fail("manifest %s ref %s does not match record %s %s", single.section, manifestRef, single.field, recordRef)
		}
	}

	return &CheckResult{Name: "references", Passed: true}
}

type manifestSection struct {
	name    string
	entries []map[string]any
}

// manifestSections flattens contents into a deterministic check order.
func manifestSections(manifest map[string]any) []manifestSection {
	return []manifestSection{
		{"pdo", []map[string]any{sectionEntry(manifest, "pdo")}},
		{"inputs", sectionEntries(manifest, "inputs")},
		{"decision", []map[string]any{sectionEntry(manifest, "decision")}},
		{"outcome", []map[string]any{sectionEntry(manifest, "outcome")}},
		{"lineage", sectionEntries(manifest, "lineage")},
	}
}

func sectionEntry(manifest map[string]any, name string) map[string]any {
	contents, _ := manifest["contents"].(map[string]any)
	entry, _ := contents[name].(map[string]any)
	return entry
}

func sectionEntries(manifest map[string]any, name string) []map[string]any {
	contents, _ := manifest["contents"].(map[string]any)
	raw, _ := contents[name].([]any)
	entries := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if entry, ok := item.(map[string]any); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

func recordedAt(record map[string]any) (time.Time, error) {
	raw, _ := record["recorded_at"].(string)
	ts, err := canonicalize.ParseTime(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid recorded_at %q", raw)
	}
	return ts, nil
}

func stringSlice(v any) []string {
	raw, _ := v.([]any)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, _ := item.(string)
		out = append(out, s)
	}
	return out
}
