package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chainbridge-oss/proofpack/pkg/canonicalize"
	"github.com/chainbridge-oss/proofpack/pkg/pdo"
)

const cacheKeyPrefix = "proofpack:evidence:"

// redisCmdable is the slice of the go-redis client surface the cache needs.
type redisCmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedResolver decorates a Resolver with a Redis read-through cache.
//
// Only successfully resolved artifacts are cached. Unresolved placeholders
// always go back to the source, so evidence that reappears is picked up on
// the next export. Cache entries carry the content hash and are re-verified
// on read; a corrupt entry falls through to the source.
type CachedResolver struct {
	next  Resolver
	redis redisCmdable
	ttl   time.Duration
	log   *slog.Logger
}

func NewCachedResolver(next Resolver, client redisCmdable, ttl time.Duration) *CachedResolver {
	return &CachedResolver{
		next:  next,
		redis: client,
		ttl:   ttl,
		log:   slog.Default().With("component", "resolver_cache"),
	}
}

type cacheEntry struct {
	Ref         string          `json:"ref"`
	Role        string          `json:"role"`
	Content     json.RawMessage `json:"content"`
	ContentHash string          `json:"content_hash"`
	Timestamp   string          `json:"timestamp"`
}

func (c *CachedResolver) Resolve(ctx context.Context, ref string, role pdo.Role) (*pdo.Artifact, error) {
	key := cacheKeyPrefix + ref

	if raw, err := c.redis.Get(ctx, key).Result(); err == nil {
		if a, ok := c.decode(raw, ref, role); ok {
			return a, nil
		}
		c.log.Warn("discarding corrupt cache entry", "ref", ref)
	} else if !errors.Is(err, redis.Nil) {
		// Cache being down is not a reason to fail an export.
		c.log.Warn("cache read failed", "ref", ref, "error", err)
	}

	a, err := c.next.Resolve(ctx, ref, role)
	if err != nil {
		return nil, err
	}
	if a.Resolved() {
		c.put(ctx, key, a)
	}
	return a, nil
}

func (c *CachedResolver) decode(raw, ref string, role pdo.Role) (*pdo.Artifact, bool) {
	var entry cacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil || entry.Ref != ref {
		return nil, false
	}

	var content any
	if err := json.Unmarshal(entry.Content, &content); err != nil {
		return nil, false
	}
	computed, err := canonicalize.CanonicalHash(content)
	if err != nil || computed != entry.ContentHash {
		return nil, false
	}
	ts, err := canonicalize.ParseTime(entry.Timestamp)
	if err != nil {
		return nil, false
	}

	// The artifact is rebuilt for the requested role, not the cached one:
	// the same ref may serve as input in one record and outcome in another.
	a, err := pdo.NewResolvedArtifact(ref, role, content, ts)
	if err != nil {
		return nil, false
	}
	return a, true
}

func (c *CachedResolver) put(ctx context.Context, key string, a *pdo.Artifact) {
	content, err := json.Marshal(a.Content)
	if err != nil {
		return
	}
	entry := cacheEntry{
		Ref:         a.Ref,
		Role:        string(a.Role),
		Content:     content,
		ContentHash: a.ContentHash,
		Timestamp:   canonicalize.FormatTime(a.Timestamp),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, string(raw), c.ttl).Err(); err != nil {
		c.log.Warn("cache write failed", "ref", a.Ref, "error", err)
	}
}

var _ redisCmdable = (*redis.Client)(nil)
