// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package relevance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/evidence-engine/internal/model"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	failGet bool
	failSet bool
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, errors.New("connection refused")
	}
	b, ok := m.data[key]
	if !ok {
		return nil, ErrMiss
	}
	return b, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet {
		return errors.New("connection refused")
	}
	m.data[key] = value
	return nil
}

type countingExtractor struct {
	calls int
	err   error
}

func (c *countingExtractor) Extract(_ context.Context, query, abstract string) (types.RelevantSection, error) {
	c.calls++
	if c.err != nil {
		return types.RelevantSection{}, c.err
	}
	return types.RelevantSection{EmbeddingModel: "m", Sentence: abstract, Score: 0.75}, nil
}

func TestCachedExtractor_HitSkipsInner(t *testing.T) {
	inner := &countingExtractor{}
	store := newMemStore()
	c := NewCachedExtractor(inner, "m", store, time.Hour, nil)
	ctx := context.Background()

	first, err := c.Extract(ctx, "q", "Only sentence.")
	require.NoError(t, err)
	second, err := c.Extract(ctx, "q", "Only sentence.")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
	assert.Len(t, store.data, 1)

	_, err = c.Extract(ctx, "other query", "Only sentence.")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedExtractor_ErrorsAreNotCached(t *testing.T) {
	inner := &countingExtractor{err: errors.New("boom")}
	store := newMemStore()
	c := NewCachedExtractor(inner, "m", store, time.Hour, nil)

	_, err := c.Extract(context.Background(), "q", "a")
	require.Error(t, err)
	assert.Empty(t, store.data)
}

func TestCachedExtractor_StoreFailureIsAMiss(t *testing.T) {
	inner := &countingExtractor{}
	store := newMemStore()
	store.failGet, store.failSet = true, true
	c := NewCachedExtractor(inner, "m", store, time.Hour, nil)

	got, err := c.Extract(context.Background(), "q", "a.")
	require.NoError(t, err)
	assert.Equal(t, "a.", got.Sentence)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedExtractor_CorruptEntryIsAMiss(t *testing.T) {
	inner := &countingExtractor{}
	store := newMemStore()
	store.data[cacheKey("evidence:section", "m", "q", "a.")] = []byte("{not json")
	c := NewCachedExtractor(inner, "m", store, time.Hour, nil)

	_, err := c.Extract(context.Background(), "q", "a.")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedScorer(t *testing.T) {
	store := newMemStore()
	nli := fakeEntailment{p: model.Prediction{Entailment: 0.5, Contradiction: 0.25, Neutral: 0.25}}
	c := NewCachedScorer(NewScorer(nli), nli, store, time.Hour, nil)

	got, err := c.Score(context.Background(), "q", "s")
	require.NoError(t, err)
	assert.Equal(t, 0.5, got.Agree)
	require.Len(t, store.data, 1)

	// A second model never reads the first model's entry.
	otherNLI := fakeEntailment{p: model.Prediction{Neutral: 1}, id: "other-nli"}
	other := NewCachedScorer(NewScorer(otherNLI), otherNLI, store, time.Hour, nil)
	got, err = other.Score(context.Background(), "q", "s")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Neutral)
	assert.Len(t, store.data, 2)
}

func TestCachedScorer_PairOrderChangeMisses(t *testing.T) {
	store := newMemStore()
	premiseFirst := fakeEntailment{p: model.Prediction{Entailment: 0.8, Contradiction: 0.1, Neutral: 0.1}}
	_, err := NewCachedScorer(NewScorer(premiseFirst), premiseFirst, store, time.Hour, nil).
		Score(context.Background(), "q", "s")
	require.NoError(t, err)

	separator := fakeEntailment{p: model.Prediction{Entailment: 0.1, Contradiction: 0.8, Neutral: 0.1}, order: model.QuerySeparator}
	got, err := NewCachedScorer(NewScorer(separator), separator, store, time.Hour, nil).
		Score(context.Background(), "q", "s")
	require.NoError(t, err)
	assert.Equal(t, 0.8, got.Disagree, "same model id, other order recomputes")
	assert.Len(t, store.data, 2)
}

func TestCacheKey(t *testing.T) {
	a := cacheKey("p", "m", "ab", "c")
	b := cacheKey("p", "m", "a", "bc")
	assert.NotEqual(t, a, b, "part boundaries are part of the key")
	assert.Equal(t, a, cacheKey("p", "m", "ab", "c"))
	assert.Contains(t, a, "p:m:")
}

func TestRedisStore_UnreachableDegradesToMiss(t *testing.T) {
	store := NewRedisStore(types.CacheConfig{RedisAddress: "127.0.0.1:1"})
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Error(t, store.Ping(ctx))

	inner := &countingExtractor{}
	c := NewCachedExtractor(inner, "m", store, time.Minute, nil)
	got, err := c.Extract(ctx, "q", "a.")
	require.NoError(t, err)
	assert.Equal(t, "a.", got.Sentence)
}
