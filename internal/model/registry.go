// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package model

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/pdiddy/evidence-engine/internal/httputil"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// EmbeddingFactory builds an embedding model from its config.
type EmbeddingFactory func(cfg types.EmbeddingConfig, client *httputil.Client) (EmbeddingModel, error)

// EntailmentFactory builds an entailment model from its config.
type EntailmentFactory func(cfg types.EntailmentConfig, client *httputil.Client) (EntailmentModel, error)

// NewClient builds the HTTP client for model variants. Model endpoints
// get their own limiters, spaced by cfg.RequestSpacing, so inference
// workers are not held to the literature rate.
func NewClient(cfg types.ModelConfig) *httputil.Client {
	return &httputil.Client{
		HTTP:      &http.Client{Timeout: cfg.Timeout},
		Limiters:  httputil.NewLimiters(cfg.RequestSpacing),
		UserAgent: cfg.UserAgent,
	}
}

var (
	regMu      sync.RWMutex
	embeddings = map[string]EmbeddingFactory{}
	entailers  = map[string]EntailmentFactory{}
)

// RegisterEmbedding makes an embedding variant available by name. It
// panics on a duplicate name, like database/sql.Register.
func RegisterEmbedding(name string, f EmbeddingFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, dup := embeddings[name]; dup {
		panic("model: duplicate embedding variant " + name)
	}
	embeddings[name] = f
}

// RegisterEntailment makes an entailment variant available by name.
func RegisterEntailment(name string, f EntailmentFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, dup := entailers[name]; dup {
		panic("model: duplicate entailment variant " + name)
	}
	entailers[name] = f
}

// NewEmbedding builds the embedding variant named by cfg.Variant.
func NewEmbedding(cfg types.EmbeddingConfig, client *httputil.Client) (EmbeddingModel, error) {
	regMu.RLock()
	f, ok := embeddings[cfg.Variant]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown embedding variant %q (have %v)", cfg.Variant, EmbeddingVariants())
	}
	return f(cfg, client)
}

// NewEntailment builds the entailment variant named by cfg.Variant.
func NewEntailment(cfg types.EntailmentConfig, client *httputil.Client) (EntailmentModel, error) {
	regMu.RLock()
	f, ok := entailers[cfg.Variant]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown entailment variant %q (have %v)", cfg.Variant, EntailmentVariants())
	}
	return f(cfg, client)
}

// EmbeddingVariants returns the registered embedding names, sorted.
func EmbeddingVariants() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	return sortedKeys(embeddings)
}

// EntailmentVariants returns the registered entailment names, sorted.
func EntailmentVariants() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	return sortedKeys(entailers)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func init() {
	RegisterEmbedding("openai", newOpenAIEmbedding)
	RegisterEmbedding("tei", newTEIEmbedding)
	RegisterEmbedding("hashing", newHashingEmbedding)
	RegisterEntailment("hf", newHFEntailment)
}
