// Package proofpack builds deterministic, tamper-evident evidence bundles
// for PDO records.
//
// An export is a pure read against the record store and evidence sources: it
// either produces a complete bundle or fails with a coded ExportError, never
// a partial tree.
package proofpack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chainbridge-oss/proofpack/pkg/canonicalize"
	"github.com/chainbridge-oss/proofpack/pkg/lineage"
	"github.com/chainbridge-oss/proofpack/pkg/pdo"
	"github.com/chainbridge-oss/proofpack/pkg/resolver"
	"github.com/chainbridge-oss/proofpack/pkg/store"
)

// defaultResolveConcurrency bounds parallel input resolution per export.
const defaultResolveConcurrency = 8

// Bundle is a fully assembled ProofPack: the sealed manifest plus every
// bundle file keyed by its path relative to the bundle root.
type Bundle struct {
	PDOID    uuid.UUID
	Manifest *Manifest
	Files    map[string][]byte
}

// RootDir returns the canonical bundle directory name.
func (b *Bundle) RootDir() string {
	return "proofpack-" + canonicalize.FormatUUID(b.PDOID.String())
}

// Exporter assembles bundles from a record store and an artifact resolver.
type Exporter struct {
	store       store.PDOStore
	resolver    resolver.Resolver
	walker      *lineage.Walker
	info        ExporterInfo
	clock       func() time.Time
	hashOpts    pdo.HashOptions
	concurrency int
	log         *slog.Logger
}

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

// WithExporterInfo sets the identity stamped into every manifest.
func WithExporterInfo(info ExporterInfo) ExporterOption {
	return func(e *Exporter) { e.info = info }
}

// WithClock overrides the exported_at timestamp source.
func WithClock(clock func() time.Time) ExporterOption {
	return func(e *Exporter) { e.clock = clock }
}

// WithHashOptions sets the record hash coverage checked during export.
func WithHashOptions(opts pdo.HashOptions) ExporterOption {
	return func(e *Exporter) { e.hashOpts = opts }
}

// WithLineageDepth bounds how many ancestors an export may include.
func WithLineageDepth(depth int) ExporterOption {
	return func(e *Exporter) { e.walker = e.walker.WithMaxDepth(depth) }
}

// WithResolveConcurrency bounds parallel input resolution.
func WithResolveConcurrency(n int) ExporterOption {
	return func(e *Exporter) { e.concurrency = n }
}

func NewExporter(s store.PDOStore, r resolver.Resolver, opts ...ExporterOption) *Exporter {
	e := &Exporter{
		store:    s,
		resolver: r,
		walker:   lineage.NewWalker(s),
		info: ExporterInfo{
			System:    "proofpack",
			Component: "exporter",
			Version:   ProofPackVersion,
		},
		clock:       time.Now,
		concurrency: defaultResolveConcurrency,
		log:         slog.Default().With("component", "exporter"),
	}
	for _, fn := range opts {
		fn(e)
	}
	return e
}

// Export builds the bundle for pdoID.
func (e *Exporter) Export(ctx context.Context, pdoID uuid.UUID) (*Bundle, error) {
	started := e.clock()

	rec, err := e.fetchRecord(ctx, pdoID)
	if err != nil {
		return nil, err
	}

	inputs, err := e.resolveInputs(ctx, rec)
	if err != nil {
		return nil, err
	}
	decision, err := e.resolveRequired(ctx, rec.DecisionRef, pdo.RoleDecision)
	if err != nil {
		return nil, err
	}
	outcome, err := e.resolveRequired(ctx, rec.OutcomeRef, pdo.RoleOutcome)
	if err != nil {
		return nil, err
	}

	ancestors, err := e.walkLineage(ctx, rec)
	if err != nil {
		return nil, err
	}

	bundle, err := e.assemble(rec, inputs, decision, outcome, ancestors)
	if err != nil {
		return nil, err
	}

	e.log.Info("export complete",
		"pdo_id", bundle.PDOID,
		"files", len(bundle.Files),
		"lineage_depth", len(ancestors),
		"duration", e.clock().Sub(started))
	return bundle, nil
}

func (e *Exporter) fetchRecord(ctx context.Context, pdoID uuid.UUID) (*pdo.Record, error) {
	rec, err := e.store.Get(ctx, pdoID)
	if err != nil {
		var integrity *store.IntegrityError
		if errors.As(err, &integrity) {
			return nil, &ExportError{
				Code:    ErrCodeSourceIntegrity,
				Message: fmt.Sprintf("source record %s failed integrity check", pdoID),
				Err:     err,
			}
		}
		return nil, fmt.Errorf("fetching pdo %s: %w", pdoID, err)
	}
	if !rec.VerifyHash(e.hashOpts) {
		return nil, &ExportError{
			Code:    ErrCodeSourceIntegrity,
			Message: fmt.Sprintf("source record %s failed integrity check", pdoID),
		}
	}
	return rec, nil
}

// resolveInputs fans resolution out across inputs and fans back in
// preserving input_refs order, which is semantic.
func (e *Exporter) resolveInputs(ctx context.Context, rec *pdo.Record) ([]*pdo.Artifact, error) {
	artifacts := make([]*pdo.Artifact, len(rec.InputRefs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, ref := range rec.InputRefs {
		g.Go(func() error {
			a, err := e.resolver.Resolve(gctx, ref, pdo.RoleInput)
			if err != nil {
				return err
			}
			artifacts[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolving inputs for %s: %w", rec.PDOID, err)
	}
	return artifacts, nil
}

func (e *Exporter) resolveRequired(ctx context.Context, ref string, role pdo.Role) (*pdo.Artifact, error) {
	a, err := e.resolver.Resolve(ctx, ref, role)
	if err != nil {
		return nil, fmt.Errorf("resolving %s %s: %w", role, ref, err)
	}
	if !a.Resolved() {
		return nil, &ExportError{
			Code:    ErrCodeRequiredArtifactUnresolved,
			Message: fmt.Sprintf("%s artifact %s is %s", role, ref, a.ResolutionStatus),
		}
	}
	return a, nil
}

// walkLineage returns verified ancestors ordered oldest first.
func (e *Exporter) walkLineage(ctx context.Context, rec *pdo.Record) ([]*pdo.Record, error) {
	chain, err := e.walker.Ancestors(ctx, rec)
	if err != nil {
		var cycle *lineage.CycleError
		if errors.As(err, &cycle) {
			return nil, &ExportError{
				Code:    ErrCodeLineageCycle,
				Message: fmt.Sprintf("lineage of %s revisits %s", rec.PDOID, cycle.PDOID),
				Err:     err,
			}
		}
		var integrity *store.IntegrityError
		if errors.As(err, &integrity) {
			return nil, &ExportError{
				Code:    ErrCodeSourceIntegrity,
				Message: fmt.Sprintf("ancestor %s failed integrity check", integrity.PDOID),
				Err:     err,
			}
		}
		return nil, fmt.Errorf("walking lineage of %s: %w", rec.PDOID, err)
	}

	// Walker returns newest first; bundles carry lineage oldest first.
	oldestFirst := make([]*pdo.Record, len(chain))
	for i, r := range chain {
		oldestFirst[len(chain)-1-i] = r
	}

	for _, ancestor := range oldestFirst {
		if !ancestor.VerifyHash(e.hashOpts) {
			return nil, &ExportError{
				Code:    ErrCodeSourceIntegrity,
				Message: fmt.Sprintf("ancestor %s failed integrity check", ancestor.PDOID),
			}
		}
	}
	return oldestFirst, nil
}

func (e *Exporter) assemble(rec *pdo.Record, inputs []*pdo.Artifact, decision, outcome *pdo.Artifact, ancestors []*pdo.Record) (*Bundle, error) {
	files := make(map[string][]byte)

	recordBytes, err := rec.EncodeCanonical()
	if err != nil {
		return nil, fmt.Errorf("encoding record %s: %w", rec.PDOID, err)
	}
	files["pdo/record.json"] = recordBytes

	pdoEntry := Entry{
		PDOID:         canonicalize.FormatUUID(rec.PDOID.String()),
		Path:          "pdo/record.json",
		Hash:          canonicalize.HashBytes(recordBytes),
		HashAlgorithm: canonicalize.HashAlgorithm,
	}

	inputEntries := make([]Entry, 0, len(inputs))
	for _, a := range inputs {
		entry, err := addArtifact(files, "inputs", a)
		if err != nil {
			return nil, err
		}
		inputEntries = append(inputEntries, entry)
	}

	decisionEntry, err := addArtifact(files, "decision", decision)
	if err != nil {
		return nil, err
	}
	outcomeEntry, err := addArtifact(files, "outcome", outcome)
	if err != nil {
		return nil, err
	}

	lineageEntries := make([]Entry, 0, len(ancestors))
	for _, ancestor := range ancestors {
		data, err := ancestor.EncodeCanonical()
		if err != nil {
			return nil, fmt.Errorf("encoding ancestor %s: %w", ancestor.PDOID, err)
		}
		id := canonicalize.FormatUUID(ancestor.PDOID.String())
		path := "lineage/" + id + ".json"
		files[path] = data
		lineageEntries = append(lineageEntries, Entry{
			PDOID:         id,
			Path:          path,
			Hash:          canonicalize.HashBytes(data),
			HashAlgorithm: canonicalize.HashAlgorithm,
		})
	}

	manifest := &Manifest{
		ProofPackVersion: ProofPackVersion,
		PDOID:            canonicalize.FormatUUID(rec.PDOID.String()),
		ExportedAt:       canonicalize.FormatTime(e.clock()),
		Exporter:         e.info,
		Contents: Contents{
			PDO:      pdoEntry,
			Inputs:   inputEntries,
			Decision: decisionEntry,
			Outcome:  outcomeEntry,
			Lineage:  lineageEntries,
		},
	}
	if err := manifest.Seal(); err != nil {
		return nil, err
	}

	manifestBytes, err := manifest.EncodeCanonical()
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	files["manifest.json"] = manifestBytes
	files["VERIFICATION.txt"] = []byte(VerificationInstructions)

	return &Bundle{
		PDOID:    rec.PDOID,
		Manifest: manifest,
		Files:    files,
	}, nil
}

// addArtifact encodes an artifact into files and returns its manifest
// entry. File names derive from the encoded bytes, so distinct files never
// collide and identical files dedupe to one path.
func addArtifact(files map[string][]byte, dir string, a *pdo.Artifact) (Entry, error) {
	data, err := a.EncodeCanonical()
	if err != nil {
		return Entry{}, fmt.Errorf("encoding artifact %s: %w", a.Ref, err)
	}
	hash := canonicalize.HashBytes(data)
	path := dir + "/" + canonicalize.HashPrefix(hash) + ".json"
	files[path] = data
	return Entry{
		Ref:           a.Ref,
		Path:          path,
		Hash:          hash,
		HashAlgorithm: canonicalize.HashAlgorithm,
	}, nil
}
