// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package model defines the embedding and entailment model contracts and a
// registry of named variants. Implements: prd002-relevance (R1, R2).
//
// Components receive model instances at construction time. Nothing in this
// package keeps a process-wide model instance; the registry maps variant
// names to constructors only.
package model

import (
	"context"
	"fmt"
	"math"

	"github.com/pdiddy/evidence-engine/internal/errs"
)

// EmbeddingModel produces a fixed-length vector for a text.
type EmbeddingModel interface {
	// Identifier names the model (e.g. "openai/text-embedding-3-small").
	// Stored alongside derived scores and used as an index pre-filter.
	Identifier() string

	Embed(ctx context.Context, text string) ([]float64, error)
}

// BatchEmbedder is implemented by models that embed many texts per call.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// EmbedAll embeds texts in order, using one batch call when m supports it.
func EmbedAll(ctx context.Context, m EmbeddingModel, texts []string) ([][]float64, error) {
	if b, ok := m.(BatchEmbedder); ok {
		vecs, err := b.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(texts) {
			return nil, errs.Ef(errs.ExternalService, "model.embed", "got %d vectors for %d texts", len(vecs), len(texts))
		}
		return vecs, nil
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Cosine returns the cosine similarity of a and b. Zero vectors and
// mismatched lengths yield 0.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Rescale maps a cosine into [0,1]. Pruned clamps negatives to 0;
// unpruned maps [-1,1] linearly via (cos+1)/2 so weakly related texts
// stay rankable.
func Rescale(cos float64, pruned bool) float64 {
	if pruned {
		return math.Max(0, cos)
	}
	return (cos + 1) / 2
}

// Similarity embeds a and b with m and returns their rescaled cosine.
func Similarity(ctx context.Context, m EmbeddingModel, a, b string, pruned bool) (float64, error) {
	va, err := m.Embed(ctx, a)
	if err != nil {
		return 0, err
	}
	vb, err := m.Embed(ctx, b)
	if err != nil {
		return 0, err
	}
	return Rescale(Cosine(va, vb), pruned), nil
}

// Prediction is a three-way entailment distribution.
type Prediction struct {
	Entailment    float64
	Contradiction float64
	Neutral       float64
}

// probabilityTolerance bounds how far a distribution may sum from 1.
const probabilityTolerance = 0.01

// Validate returns an errs.InvalidProbability error unless the three
// probabilities sum to 1±0.01.
func (p Prediction) Validate() error {
	sum := p.Entailment + p.Contradiction + p.Neutral
	if !(sum >= 1-probabilityTolerance && sum <= 1+probabilityTolerance) {
		return errs.Ef(errs.InvalidProbability, "model.predict", "probabilities sum to %.4f", sum)
	}
	return nil
}

// PairOrder fixes how a (sentence, query) pair is presented to an
// entailment model. Model output is not symmetric, so each model declares
// one order and every caller goes through it.
type PairOrder int

const (
	// PremiseFirst sends the sentence as premise and the query as hypothesis.
	PremiseFirst PairOrder = iota

	// QuerySeparator sends one input "query [SEP] sentence".
	QuerySeparator
)

// ParsePairOrder parses "premise-first" or "query-separator". Empty means PremiseFirst.
func ParsePairOrder(s string) (PairOrder, error) {
	switch s {
	case "", "premise-first":
		return PremiseFirst, nil
	case "query-separator":
		return QuerySeparator, nil
	default:
		return 0, fmt.Errorf("unknown pair order %q", s)
	}
}

func (o PairOrder) String() string {
	if o == QuerySeparator {
		return "query-separator"
	}
	return "premise-first"
}

// FormatPair renders premise and hypothesis as model inputs. PremiseFirst
// returns them as a text pair; QuerySeparator returns a single text
// "hypothesis [SEP] premise" and an empty pair.
func FormatPair(o PairOrder, premise, hypothesis string) (text, pair string) {
	if o == QuerySeparator {
		return hypothesis + " [SEP] " + premise, ""
	}
	return premise, hypothesis
}

// EntailmentModel predicts how strongly premise supports hypothesis.
// Implementations present the pair to the underlying model in their
// declared Order.
type EntailmentModel interface {
	Identifier() string
	Order() PairOrder
	Predict(ctx context.Context, premise, hypothesis string) (Prediction, error)
}

// PredictPair scores sentence (premise) against query (hypothesis) and
// validates the distribution.
func PredictPair(ctx context.Context, m EntailmentModel, query, sentence string) (Prediction, error) {
	p, err := m.Predict(ctx, sentence, query)
	if err != nil {
		return Prediction{}, err
	}
	if err := p.Validate(); err != nil {
		return Prediction{}, err
	}
	return p, nil
}
