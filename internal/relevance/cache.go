// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package relevance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"github.com/pdiddy/evidence-engine/internal/logging"
	"github.com/pdiddy/evidence-engine/internal/model"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// ErrMiss is returned by a Store for an absent key.
var ErrMiss = errors.New("cache miss")

// Store is the key/value backend behind the cached extractor and scorer.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisStore is a Store on a Redis server.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects lazily; the first command dials.
func NewRedisStore(cfg types.CacheConfig) *RedisStore {
	return &RedisStore{rdb: redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddress,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		MaxRetries:   1,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})}
}

// Get returns ErrMiss when key is absent.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return b, err
}

// Set stores value with ttl.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// cacheKey is "<prefix>:<model>:<sha256 of parts>".
func cacheKey(prefix, modelID string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return prefix + ":" + modelID + ":" + hex.EncodeToString(h.Sum(nil))
}

// cached runs compute on a miss and stores its result. Store failures and
// undecodable entries are logged and treated as misses; they never fail
// the call.
func cached[T any](ctx context.Context, store Store, ttl time.Duration, logger *log.Logger, key string, compute func() (T, error)) (T, error) {
	if b, err := store.Get(ctx, key); err == nil {
		var v T
		if err := sonic.ConfigStd.Unmarshal(b, &v); err == nil {
			return v, nil
		}
		logger.Debug("discarding undecodable cache entry", "key", key)
	} else if !errors.Is(err, ErrMiss) {
		logger.Debug("cache read failed", "key", key, "err", err)
	}

	v, err := compute()
	if err != nil {
		return v, err
	}
	if b, err := sonic.ConfigStd.Marshal(v); err == nil {
		if err := store.Set(ctx, key, b, ttl); err != nil {
			logger.Debug("cache write failed", "key", key, "err", err)
		}
	}
	return v, nil
}

// CachedExtractor memoizes a SectionExtractor keyed by embedding model,
// query and abstract.
type CachedExtractor struct {
	inner   SectionExtractor
	modelID string
	store   Store
	ttl     time.Duration
	logger  *log.Logger
}

// NewCachedExtractor wraps inner. modelID must identify the embedding
// model inner uses so entries never cross models.
func NewCachedExtractor(inner SectionExtractor, modelID string, store Store, ttl time.Duration, logger *log.Logger) *CachedExtractor {
	return &CachedExtractor{inner: inner, modelID: modelID, store: store, ttl: ttl, logger: logging.OrDiscard(logger)}
}

// Extract returns a cached section or computes and stores one.
func (c *CachedExtractor) Extract(ctx context.Context, query, abstract string) (types.RelevantSection, error) {
	key := cacheKey("evidence:section", c.modelID, query, abstract)
	return cached(ctx, c.store, c.ttl, c.logger, key, func() (types.RelevantSection, error) {
		return c.inner.Extract(ctx, query, abstract)
	})
}

// CachedScorer memoizes an EntailmentScorer keyed by entailment model,
// its pair order, query and sentence.
type CachedScorer struct {
	inner   EntailmentScorer
	modelID string
	store   Store
	ttl     time.Duration
	logger  *log.Logger
}

// NewCachedScorer wraps inner, which must predict with m. Entries are
// keyed by m's identifier and pair order, so predictions made under one
// order are never served after the order changes.
func NewCachedScorer(inner EntailmentScorer, m model.EntailmentModel, store Store, ttl time.Duration, logger *log.Logger) *CachedScorer {
	modelID := m.Identifier() + "/" + m.Order().String()
	return &CachedScorer{inner: inner, modelID: modelID, store: store, ttl: ttl, logger: logging.OrDiscard(logger)}
}

// Score returns a cached agreeableness or computes and stores one.
func (c *CachedScorer) Score(ctx context.Context, query, sentence string) (types.Agreeableness, error) {
	key := cacheKey("evidence:entail", c.modelID, query, sentence)
	return cached(ctx, c.store, c.ttl, c.logger, key, func() (types.Agreeableness, error) {
		return c.inner.Score(ctx, query, sentence)
	})
}
