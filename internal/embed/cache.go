package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"

	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"
)

// Cache stores computed vectors keyed by content hash. Implementations
// must be safe for concurrent use; the cache is the only state shared
// between jobs.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vec []float32)
}

// ContentHash derives the cache key for a (model, text) pair. A model
// version bump changes every key, so stale vectors are never served across
// model upgrades.
func ContentHash(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// MemoryCache is an in-process TTL cache.
type MemoryCache struct {
	c *gocache.Cache
}

// NewMemoryCache creates a cache whose entries expire after ttl and are
// purged at twice that interval.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	purge := 2 * ttl
	if ttl == gocache.NoExpiration {
		purge = 10 * time.Minute
	}
	return &MemoryCache{c: gocache.New(ttl, purge)}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]float32, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	return vec, ok
}

func (m *MemoryCache) Set(_ context.Context, key string, vec []float32) {
	m.c.Set(key, vec, gocache.DefaultExpiration)
}

// RedisCache shares vectors across processes. Misses and transport errors
// are treated identically; the embedder recomputes either way.
type RedisCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache creates a redis-backed cache.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl, prefix: "emb:"}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	raw, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if err != nil || len(raw)%4 != 0 || len(raw) == 0 {
		return nil, false
	}
	return bytesToVec(raw), true
}

func (r *RedisCache) Set(ctx context.Context, key string, vec []float32) {
	r.rdb.Set(ctx, r.prefix+key, vecToBytes(vec), r.ttl)
}

func vecToBytes(vec []float32) []byte {
	out := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

func bytesToVec(raw []byte) []float32 {
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return vec
}
