// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/pdiddy/evidence-engine/internal/evidence"
	"github.com/pdiddy/evidence-engine/internal/history"
	"github.com/pdiddy/evidence-engine/internal/httputil"
	"github.com/pdiddy/evidence-engine/internal/index"
	"github.com/pdiddy/evidence-engine/internal/literature"
	"github.com/pdiddy/evidence-engine/internal/model"
	"github.com/pdiddy/evidence-engine/internal/query"
	"github.com/pdiddy/evidence-engine/internal/relevance"
	"github.com/pdiddy/evidence-engine/internal/summary"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

var (
	litOnce   sync.Once
	litClient *httputil.Client
)

// literatureClient returns the process-wide literature client, so every
// collaborator waits on the same limiter per endpoint.
func literatureClient(cfg types.LiteratureConfig) *httputil.Client {
	litOnce.Do(func() { litClient = literature.NewClient(cfg) })
	return litClient
}

// newExpander builds the query expander: the vocabulary linker plus the
// chunk or LLM entity extractor.
func newExpander(cfg types.Config) (*query.Expander, error) {
	vocab := query.DefaultVocabulary()
	if cfg.Pipeline.VocabularyFile != "" {
		v, err := query.LoadVocabulary(cfg.Pipeline.VocabularyFile)
		if err != nil {
			return nil, err
		}
		vocab = v
	}

	var extractor query.EntityExtractor = query.ChunkExtractor{}
	switch cfg.Pipeline.KeywordExtractor {
	case "", "chunk":
	case "llm":
		extractor = &query.LLMExtractor{
			Client:   summary.NewClient(cfg.Summary, &http.Client{Timeout: cfg.Models.Timeout}),
			Model:    cfg.Summary.Model,
			Fallback: query.ChunkExtractor{},
			Logger:   logger,
		}
	default:
		return nil, fmt.Errorf("unknown keyword extractor %q (want chunk or llm)", cfg.Pipeline.KeywordExtractor)
	}
	return &query.Expander{
		Extractor: extractor,
		Linker:    query.NewLinker(vocab, cfg.Pipeline.MappingThreshold),
	}, nil
}

// newScorers builds the relevance extractor and entailment scorer, wrapped
// in the Redis cache when enabled. The returned close function is never nil.
func newScorers(cfg types.Config, emb model.EmbeddingModel) (relevance.SectionExtractor, relevance.EntailmentScorer, func(), error) {
	ent, err := model.NewEntailment(cfg.Models.Entailment, model.NewClient(cfg.Models))
	if err != nil {
		return nil, nil, nil, err
	}
	var ext relevance.SectionExtractor = relevance.NewExtractor(emb)
	var sc relevance.EntailmentScorer = relevance.NewScorer(ent)
	if !cfg.Cache.Enabled {
		return ext, sc, func() {}, nil
	}

	store := relevance.NewRedisStore(cfg.Cache)
	if err := store.Ping(context.Background()); err != nil {
		logger.Warn("relevance cache unavailable, continuing uncached", "addr", cfg.Cache.RedisAddress, "err", err)
	}
	ext = relevance.NewCachedExtractor(ext, emb.Identifier(), store, cfg.Cache.TTL, logger)
	sc = relevance.NewCachedScorer(sc, ent, store, cfg.Cache.TTL, logger)
	return ext, sc, func() { _ = store.Close() }, nil
}

// newPipeline wires the full evidence pipeline from cfg.
func newPipeline(cfg types.Config) (*evidence.Pipeline, func(), error) {
	src, cites, err := literature.NewSource(cfg.Literature, literatureClient(cfg.Literature))
	if err != nil {
		return nil, nil, err
	}
	x, err := newExpander(cfg)
	if err != nil {
		return nil, nil, err
	}
	emb, err := model.NewEmbedding(cfg.Models.Embedding, model.NewClient(cfg.Models))
	if err != nil {
		return nil, nil, err
	}
	ext, sc, closeFn, err := newScorers(cfg, emb)
	if err != nil {
		return nil, nil, err
	}
	return evidence.New(cfg.Pipeline, src, cites, x, emb, ext, sc, logger), closeFn, nil
}

// newSearcher opens the configured index and wraps it in a Searcher with
// Semantic Scholar enrichment when enabled.
func newSearcher(ctx context.Context, cfg types.Config) (*index.Searcher, func(), error) {
	emb, err := model.NewEmbedding(cfg.Models.Embedding, model.NewClient(cfg.Models))
	if err != nil {
		return nil, nil, err
	}
	idx, closeFn, err := index.Open(ctx, cfg.Index, emb)
	if err != nil {
		return nil, nil, err
	}
	s := &index.Searcher{Index: idx, Logger: logger}
	if cfg.Index.Enrich {
		s.Enricher = &literature.SemanticScholar{
			Client: literatureClient(cfg.Literature),
			APIKey: cfg.Literature.SemanticScholarAPIKey,
		}
	}
	return s, closeFn, nil
}

// openHistory opens the history store.
func openHistory(cfg types.Config) (*history.Store, error) {
	return history.NewStore(cfg.History)
}

// newSummarizer builds the chat summarizer.
func newSummarizer(cfg types.Config) *summary.Summarizer {
	return summary.New(cfg.Summary, summary.NewClient(cfg.Summary, &http.Client{Timeout: cfg.Models.Timeout}))
}
