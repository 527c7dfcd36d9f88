// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package model

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pdiddy/evidence-engine/internal/errs"
	"github.com/pdiddy/evidence-engine/internal/httputil"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// OpenAIEmbedding embeds text with the OpenAI embeddings API or any
// compatible server reachable at Endpoint.
type OpenAIEmbedding struct {
	client     *openai.Client
	model      string
	dimensions int
}

func newOpenAIEmbedding(cfg types.EmbeddingConfig, client *httputil.Client) (EmbeddingModel, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai embedding: model is required")
	}
	conf := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		conf.BaseURL = cfg.Endpoint
	}
	if client != nil && client.HTTP != nil {
		conf.HTTPClient = client.HTTP
	}
	return &OpenAIEmbedding{
		client:     openai.NewClientWithConfig(conf),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, nil
}

// Identifier returns "openai/<model>".
func (e *OpenAIEmbedding) Identifier() string { return "openai/" + e.model }

// Embed returns the vector for one text.
func (e *OpenAIEmbedding) Embed(ctx context.Context, text string) ([]float64, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request, returning vectors in input order.
func (e *OpenAIEmbedding) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	const op = "openai.embed"
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dimensions,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.E(errs.ExternalService, op, err)
	}
	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, errs.Ef(errs.ExternalService, op, "embedding index %d out of range", d.Index)
		}
		out[d.Index] = toFloat64(d.Embedding)
	}
	for i, v := range out {
		if v == nil {
			return nil, errs.Ef(errs.ExternalService, op, "missing embedding for input %d", i)
		}
	}
	return out, nil
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
