// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pdiddy/evidence-engine/internal/errs"
	"github.com/pdiddy/evidence-engine/internal/httputil"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// TEIEmbedding calls a text-embeddings-inference server (POST /embed),
// the usual way sentence-transformers models such as all-MiniLM-L6-v2 or
// S-PubMedBert are served.
type TEIEmbedding struct {
	client   *httputil.Client
	endpoint string
	model    string
	apiKey   string
}

func newTEIEmbedding(cfg types.EmbeddingConfig, client *httputil.Client) (EmbeddingModel, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("tei embedding: endpoint is required")
	}
	if client == nil {
		client = NewClient(types.ModelConfig{})
	}
	model := cfg.Model
	if model == "" {
		model = "tei"
	}
	return &TEIEmbedding{
		client:   client,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    model,
		apiKey:   cfg.APIKey,
	}, nil
}

// Identifier returns "tei/<model>".
func (e *TEIEmbedding) Identifier() string { return "tei/" + e.model }

// Embed returns the vector for one text.
func (e *TEIEmbedding) Embed(ctx context.Context, text string) ([]float64, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request.
func (e *TEIEmbedding) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	const op = "tei.embed"
	payload, err := json.Marshal(map[string]any{"inputs": texts, "truncate": true})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	body, err := e.client.Fetch(ctx, req, op)
	if err != nil {
		return nil, err
	}
	var vecs [][]float64
	if err := json.Unmarshal(body, &vecs); err != nil {
		return nil, errs.E(errs.ExternalService, op, fmt.Errorf("parse response: %w", err))
	}
	if len(vecs) != len(texts) {
		return nil, errs.Ef(errs.ExternalService, op, "got %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}
