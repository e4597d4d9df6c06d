package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainbridge-oss/proofpack/pkg/canonicalize"
	"github.com/chainbridge-oss/proofpack/pkg/pdo"
)

func TestPostgresStore_Put(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewPostgresPDOStore(db)

	r, err := pdo.NewRecord(storeDraft(), time.Now(), pdo.HashOptions{})
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO pdo_records").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Put(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutConflictIsImmutable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewPostgresPDOStore(db)

	r, err := pdo.NewRecord(storeDraft(), time.Now(), pdo.HashOptions{})
	require.NoError(t, err)

	// ON CONFLICT DO NOTHING reports zero rows affected for a duplicate id.
	mock.ExpectExec("INSERT INTO pdo_records").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = s.Put(context.Background(), r)
	assert.ErrorIs(t, err, ErrImmutable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutRejectsBrokenSeal(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewPostgresPDOStore(db)

	r, err := pdo.NewRecord(storeDraft(), time.Now(), pdo.HashOptions{})
	require.NoError(t, err)
	r.Actor = "intruder"

	err = s.Put(context.Background(), r)
	var integrity *IntegrityError
	assert.ErrorAs(t, err, &integrity)
}

func TestPostgresStore_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewPostgresPDOStore(db)

	r, err := pdo.NewRecord(storeDraft(), time.Now(), pdo.HashOptions{})
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{
		"pdo_id", "version", "input_refs", "decision_ref", "outcome_ref", "outcome",
		"source_system", "actor", "actor_type", "recorded_at", "previous_pdo_id",
		"correlation_id", "metadata", "tags", "hash", "hash_algorithm",
	}).AddRow(
		r.PDOID.String(), r.Version, `["evidence://inputs/a"]`, r.DecisionRef, r.OutcomeRef,
		string(r.Outcome), r.SourceSystem, r.Actor, string(r.ActorType),
		canonicalize.FormatTime(r.RecordedAt), nil, nil, `{}`, `[]`, r.Hash, r.HashAlgorithm,
	)

	mock.ExpectQuery("SELECT (.+) FROM pdo_records").
		WithArgs(r.PDOID.String()).
		WillReturnRows(rows)

	got, err := s.Get(context.Background(), r.PDOID)
	require.NoError(t, err)
	assert.Equal(t, r.Hash, got.Hash)
	assert.True(t, got.VerifyHash(pdo.HashOptions{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetDetectsRowTampering(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewPostgresPDOStore(db)

	r, err := pdo.NewRecord(storeDraft(), time.Now(), pdo.HashOptions{})
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{
		"pdo_id", "version", "input_refs", "decision_ref", "outcome_ref", "outcome",
		"source_system", "actor", "actor_type", "recorded_at", "previous_pdo_id",
		"correlation_id", "metadata", "tags", "hash", "hash_algorithm",
	}).AddRow(
		r.PDOID.String(), r.Version, `["evidence://inputs/a"]`, r.DecisionRef, r.OutcomeRef,
		string(pdo.OutcomeRejected), r.SourceSystem, r.Actor, string(r.ActorType),
		canonicalize.FormatTime(r.RecordedAt), nil, nil, `{}`, `[]`, r.Hash, r.HashAlgorithm,
	)

	mock.ExpectQuery("SELECT (.+) FROM pdo_records").
		WithArgs(r.PDOID.String()).
		WillReturnRows(rows)

	_, err = s.Get(context.Background(), r.PDOID)
	var integrity *IntegrityError
	assert.ErrorAs(t, err, &integrity)
}
