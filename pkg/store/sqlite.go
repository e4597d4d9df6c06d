package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"

	"github.com/chainbridge-oss/proofpack/pkg/canonicalize"
	"github.com/chainbridge-oss/proofpack/pkg/pdo"
)

// SQLitePDOStore is a durable append-only record store backed by SQLite.
type SQLitePDOStore struct {
	db   *sql.DB
	opts options
}

func NewSQLitePDOStore(db *sql.DB, opts ...Option) (*SQLitePDOStore, error) {
	s := &SQLitePDOStore{db: db, opts: applyOptions(opts)}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLitePDOStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS pdo_records (
        pdo_id TEXT PRIMARY KEY,
        version TEXT NOT NULL,
        input_refs JSON NOT NULL,
        decision_ref TEXT NOT NULL,
        outcome_ref TEXT NOT NULL,
        outcome TEXT NOT NULL,
        source_system TEXT NOT NULL,
        actor TEXT NOT NULL,
        actor_type TEXT NOT NULL,
        recorded_at TEXT NOT NULL,
        previous_pdo_id TEXT,
        correlation_id TEXT,
        metadata JSON,
        tags JSON,
        hash TEXT NOT NULL,
        hash_algorithm TEXT NOT NULL
    );`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLitePDOStore) Create(ctx context.Context, d pdo.Draft) (*pdo.Record, error) {
	r, err := pdo.NewRecord(d, s.opts.clock(), s.opts.hashOpts)
	if err != nil {
		return nil, err
	}
	if err := s.Put(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *SQLitePDOStore) Put(ctx context.Context, r *pdo.Record) error {
	if !r.VerifyHash(s.opts.hashOpts) {
		computed, _ := r.ComputeHash(s.opts.hashOpts)
		return &IntegrityError{PDOID: r.PDOID.String(), Stored: r.Hash, Computed: computed}
	}

	query := `INSERT INTO pdo_records (
		pdo_id, version, input_refs, decision_ref, outcome_ref, outcome, source_system, actor, actor_type, recorded_at, previous_pdo_id, correlation_id, metadata, tags, hash, hash_algorithm
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	inputRefs, _ := json.Marshal(r.InputRefs)
	metaJSON, _ := json.Marshal(r.Metadata)
	tagsJSON, _ := json.Marshal(r.Tags)

	_, err := s.db.ExecContext(ctx, query,
		r.PDOID.String(), r.Version, string(inputRefs), r.DecisionRef, r.OutcomeRef, string(r.Outcome),
		r.SourceSystem, r.Actor, string(r.ActorType), canonicalize.FormatTime(r.RecordedAt),
		nullableUUIDString(r.PreviousPDOID), nullableStringValue(r.CorrelationID),
		string(metaJSON), string(tagsJSON), r.Hash, r.HashAlgorithm,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("pdo %s: %w", r.PDOID, ErrImmutable)
		}
		return fmt.Errorf("failed to insert pdo record: %w", err)
	}
	return nil
}

func (s *SQLitePDOStore) Get(ctx context.Context, id uuid.UUID) (*pdo.Record, error) {
	query := `
        SELECT pdo_id, version, input_refs, decision_ref, outcome_ref, outcome, source_system, actor, actor_type, recorded_at, previous_pdo_id, correlation_id, metadata, tags, hash, hash_algorithm
        FROM pdo_records
        WHERE pdo_id = ?
    `
	row := s.db.QueryRowContext(ctx, query, id.String())

	r, err := scanPDORow(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("pdo %s: %w", id, ErrNotFound)
		}
		return nil, err
	}

	if !r.VerifyHash(s.opts.hashOpts) {
		computed, _ := r.ComputeHash(s.opts.hashOpts)
		return nil, &IntegrityError{PDOID: id.String(), Stored: r.Hash, Computed: computed}
	}
	return r, nil
}

func scanPDORow(scan func(...any) error) (*pdo.Record, error) {
	var (
		pdoID         string
		version       string
		inputRefs     string
		decisionRef   string
		outcomeRef    string
		outcome       string
		sourceSystem  string
		actor         string
		actorType     string
		recordedAt    string
		previousPDOID sql.NullString
		correlationID sql.NullString
		metaJSON      sql.NullString
		tagsJSON      sql.NullString
		hash          string
		hashAlgorithm string
	)
	if err := scan(&pdoID, &version, &inputRefs, &decisionRef, &outcomeRef, &outcome,
		&sourceSystem, &actor, &actorType, &recordedAt, &previousPDOID, &correlationID,
		&metaJSON, &tagsJSON, &hash, &hashAlgorithm); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(pdoID)
	if err != nil {
		return nil, fmt.Errorf("invalid pdo_id %q in store: %w", pdoID, err)
	}
	ts, err := canonicalize.ParseTime(recordedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid recorded_at for pdo %s: %w", pdoID, err)
	}

	r := &pdo.Record{
		PDOID:         id,
		Version:       version,
		DecisionRef:   decisionRef,
		OutcomeRef:    outcomeRef,
		Outcome:       pdo.Outcome(outcome),
		SourceSystem:  sourceSystem,
		Actor:         actor,
		ActorType:     pdo.ActorType(actorType),
		RecordedAt:    ts,
		Hash:          hash,
		HashAlgorithm: hashAlgorithm,
	}

	if err := json.Unmarshal([]byte(inputRefs), &r.InputRefs); err != nil {
		return nil, fmt.Errorf("invalid input_refs for pdo %s: %w", pdoID, err)
	}
	if previousPDOID.Valid && previousPDOID.String != "" {
		prev, err := uuid.Parse(previousPDOID.String)
		if err != nil {
			return nil, fmt.Errorf("invalid previous_pdo_id for pdo %s: %w", pdoID, err)
		}
		r.PreviousPDOID = &prev
	}
	if correlationID.Valid {
		corr := correlationID.String
		r.CorrelationID = &corr
	}
	if metaJSON.Valid && metaJSON.String != "" {
		_ = json.Unmarshal([]byte(metaJSON.String), &r.Metadata)
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		_ = json.Unmarshal([]byte(tagsJSON.String), &r.Tags)
	}
	return r, nil
}

func nullableUUIDString(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func nullableStringValue(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
