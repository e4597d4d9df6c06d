package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	_ "github.com/lib/pq"

	"github.com/chainbridge-oss/proofpack/pkg/canonicalize"
	"github.com/chainbridge-oss/proofpack/pkg/pdo"
)

// PostgresPDOStore is a durable append-only record store backed by Postgres.
// Schema migration is owned by deployment tooling, not this store.
type PostgresPDOStore struct {
	db   *sql.DB
	opts options
}

func NewPostgresPDOStore(db *sql.DB, opts ...Option) *PostgresPDOStore {
	return &PostgresPDOStore{db: db, opts: applyOptions(opts)}
}

func (s *PostgresPDOStore) Create(ctx context.Context, d pdo.Draft) (*pdo.Record, error) {
	r, err := pdo.NewRecord(d, s.opts.clock(), s.opts.hashOpts)
	if err != nil {
		return nil, err
	}
	if err := s.Put(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresPDOStore) Put(ctx context.Context, r *pdo.Record) error {
	if !r.VerifyHash(s.opts.hashOpts) {
		computed, _ := r.ComputeHash(s.opts.hashOpts)
		return &IntegrityError{PDOID: r.PDOID.String(), Stored: r.Hash, Computed: computed}
	}

	query := `
		INSERT INTO pdo_records (pdo_id, version, input_refs, decision_ref, outcome_ref, outcome, source_system, actor, actor_type, recorded_at, previous_pdo_id, correlation_id, metadata, tags, hash, hash_algorithm)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (pdo_id) DO NOTHING
	`

	inputRefs, _ := json.Marshal(r.InputRefs)
	metaJSON, _ := json.Marshal(r.Metadata)
	tagsJSON, _ := json.Marshal(r.Tags)

	res, err := s.db.ExecContext(ctx, query,
		r.PDOID.String(), r.Version, string(inputRefs), r.DecisionRef, r.OutcomeRef, string(r.Outcome),
		r.SourceSystem, r.Actor, string(r.ActorType), canonicalize.FormatTime(r.RecordedAt),
		nullableUUIDString(r.PreviousPDOID), nullableStringValue(r.CorrelationID),
		string(metaJSON), string(tagsJSON), r.Hash, r.HashAlgorithm,
	)
	if err != nil {
		return fmt.Errorf("failed to insert pdo record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert pdo record: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("pdo %s: %w", r.PDOID, ErrImmutable)
	}
	return nil
}

func (s *PostgresPDOStore) Get(ctx context.Context, id uuid.UUID) (*pdo.Record, error) {
	query := `
		SELECT pdo_id, version, input_refs, decision_ref, outcome_ref, outcome, source_system, actor, actor_type, recorded_at, previous_pdo_id, correlation_id, metadata, tags, hash, hash_algorithm
		FROM pdo_records
		WHERE pdo_id = $1
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
