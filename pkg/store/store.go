// Package store provides append-only persistence for PDO records and the
// evidence sources exports resolve artifacts from.
//
// Every implementation seals a record's hash exactly once at create time and
// verifies it on every read. There is deliberately no update or delete
// surface; immutability is enforced by the API shape, and overwrite attempts
// surface ErrImmutable.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/chainbridge-oss/proofpack/pkg/pdo"
)

// PDOStore is the append-only record store.
type PDOStore interface {
	// Create validates and hash-seals a draft, persists it, and returns the
	// sealed record.
	Create(ctx context.Context, d pdo.Draft) (*pdo.Record, error)

	// Put persists an already-sealed record, verifying the seal first.
	// Inserting an id that already exists returns ErrImmutable.
	Put(ctx context.Context, r *pdo.Record) error

	// Get returns the record with the given id, verifying its seal. A seal
	// mismatch returns *IntegrityError.
	Get(ctx context.Context, id uuid.UUID) (*pdo.Record, error)
}

// Evidence is a single resolvable artifact held by an evidence source.
type Evidence struct {
	Ref       string
	Content   any
	Timestamp time.Time
}

// EvidenceStore resolves evidence refs to content. Failures are reported
// through the typed errors in this package so callers can distinguish
// not-found from access-denied from expired.
type EvidenceStore interface {
	GetEvidence(ctx context.Context, ref string) (*Evidence, error)
}

// Option configures a store implementation.
type Option func(*options)

type options struct {
	clock    func() time.Time
	hashOpts pdo.HashOptions
}

// WithClock overrides the timestamp source used for recorded_at. Intended
// for tests.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithHashOptions sets the hash coverage applied when sealing and verifying
// records. All stores reading the same records must agree on this.
func WithHashOptions(opts pdo.HashOptions) Option {
	return func(o *options) { o.hashOpts = opts }
}

func applyOptions(opts []Option) options {
	o := options{clock: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
