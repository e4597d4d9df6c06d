package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainbridge-oss/proofpack/pkg/pdo"
	"github.com/chainbridge-oss/proofpack/pkg/store"
)

func TestStoreResolver_ResolvedArtifact(t *testing.T) {
	ctx := context.Background()
	src := store.NewMemoryEvidenceStore()

	ts := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	src.Put("evidence://inputs/credit", &store.Evidence{
		Ref:       "evidence://inputs/credit",
		Content:   map[string]any{"score": 722},
		Timestamp: ts,
	})

	a, err := NewStoreResolver(src).Resolve(ctx, "evidence://inputs/credit", pdo.RoleInput)
	require.NoError(t, err)

	assert.True(t, a.Resolved())
	assert.Equal(t, ts, a.Timestamp)
	assert.True(t, a.VerifyContentHash())
}

func TestStoreResolver_SoftFailuresBecomePlaceholders(t *testing.T) {
	ctx := context.Background()
	src := store.NewMemoryEvidenceStore()
	src.Fail("evidence://inputs/locked", store.ErrEvidenceAccessDenied)
	src.Fail("evidence://inputs/old", store.ErrEvidenceExpired)

	fixed := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	r := NewStoreResolver(src).WithClock(func() time.Time { return fixed })

	cases := []struct {
		ref    string
		status pdo.ResolutionStatus
	}{
		{"evidence://inputs/missing", pdo.ResolutionNotFound},
		{"evidence://inputs/locked", pdo.ResolutionAccessDenied},
		{"evidence://inputs/old", pdo.ResolutionExpired},
	}

	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			a, err := r.Resolve(ctx, tc.ref, pdo.RoleInput)
			require.NoError(t, err)
			assert.False(t, a.Resolved())
			assert.Equal(t, tc.status, a.ResolutionStatus)
			assert.Nil(t, a.Content)
			assert.Equal(t, fixed, a.Timestamp)
		})
	}
}

type failingSource struct{ err error }

func (f failingSource) GetEvidence(context.Context, string) (*store.Evidence, error) {
	return nil, f.err
}

func TestStoreResolver_HardFailurePropagates(t *testing.T) {
	hard := errors.New("connection reset")
	r := NewStoreResolver(failingSource{err: hard})

	_, err := r.Resolve(context.Background(), "evidence://inputs/a", pdo.RoleInput)
	assert.ErrorIs(t, err, hard)
}

// fakeRedis implements the small command surface the cache uses, backed by a
// plain map.
type fakeRedis struct {
	data map[string]string
	sets int
	gets int
	down bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.gets++
	if f.down {
		return redis.NewStringResult("", errors.New("connection refused"))
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.sets++
	if f.down {
		return redis.NewStatusResult("", errors.New("connection refused"))
	}
	f.data[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

type countingResolver struct {
	next  Resolver
	calls int
}

func (c *countingResolver) Resolve(ctx context.Context, ref string, role pdo.Role) (*pdo.Artifact, error) {
	c.calls++
	return c.next.Resolve(ctx, ref, role)
}

func TestCachedResolver_ReadThrough(t *testing.T) {
	ctx := context.Background()
	src := store.NewMemoryEvidenceStore()
	src.Put("evidence://inputs/a", &store.Evidence{
		Ref:       "evidence://inputs/a",
		Content:   map[string]any{"v": float64(1)},
		Timestamp: time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC),
	})

	inner := &countingResolver{next: NewStoreResolver(src)}
	fake := newFakeRedis()
	r := NewCachedResolver(inner, fake, time.Minute)

	a1, err := r.Resolve(ctx, "evidence://inputs/a", pdo.RoleInput)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 1, fake.sets)

	a2, err := r.Resolve(ctx, "evidence://inputs/a", pdo.RoleInput)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls, "second resolve must be served from cache")
	assert.Equal(t, a1.ContentHash, a2.ContentHash)
	assert.True(t, a2.Timestamp.Equal(a1.Timestamp))
}

func TestCachedResolver_UnresolvedNotCached(t *testing.T) {
	ctx := context.Background()
	src := store.NewMemoryEvidenceStore()

	inner := &countingResolver{next: NewStoreResolver(src)}
	fake := newFakeRedis()
	r := NewCachedResolver(inner, fake, time.Minute)

	a, err := r.Resolve(ctx, "evidence://inputs/gone", pdo.RoleInput)
	require.NoError(t, err)
	assert.False(t, a.Resolved())
	assert.Equal(t, 0, fake.sets)

	// Evidence reappears; the next export must see it.
	src.Put("evidence://inputs/gone", &store.Evidence{
		Ref:     "evidence://inputs/gone",
		Content: "recovered",
	})
	a, err = r.Resolve(ctx, "evidence://inputs/gone", pdo.RoleInput)
	require.NoError(t, err)
	assert.True(t, a.Resolved())
	assert.Equal(t, 2, inner.calls)
}

func TestCachedResolver_CorruptEntryFallsThrough(t *testing.T) {
	ctx := context.Background()
	src := store.NewMemoryEvidenceStore()
	src.Put("evidence://inputs/a", &store.Evidence{
		Ref:       "evidence://inputs/a",
		Content:   "good",
		Timestamp: time.Now(),
	})

	fake := newFakeRedis()
	fake.data[cacheKeyPrefix+"evidence://inputs/a"] = `{"ref":"evidence://inputs/a","content":"bad","content_hash":"deadbeef","timestamp":"2025-05-01T00:00:00.000000000Z"}`

	r := NewCachedResolver(NewStoreResolver(src), fake, time.Minute)

	a, err := r.Resolve(ctx, "evidence://inputs/a", pdo.RoleInput)
	require.NoError(t, err)
	assert.True(t, a.Resolved())
	assert.True(t, a.VerifyContentHash())
}

func TestCachedResolver_CacheOutageIsNotFatal(t *testing.T) {
	ctx := context.Background()
	src := store.NewMemoryEvidenceStore()
	src.Put("evidence://inputs/a", &store.Evidence{Ref: "evidence://inputs/a", Content: "x", Timestamp: time.Now()})

	fake := newFakeRedis()
	fake.down = true
	r := NewCachedResolver(NewStoreResolver(src), fake, time.Minute)

	a, err := r.Resolve(ctx, "evidence://inputs/a", pdo.RoleInput)
	require.NoError(t, err)
	assert.True(t, a.Resolved())
}
