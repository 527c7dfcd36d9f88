// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package relevance picks the most query-relevant sentence of an abstract
// and scores it for entailment against the query.
// Implements: prd002-relevance (R3, R4).
package relevance

import (
	"context"
	"regexp"
	"strings"

	"github.com/pdiddy/evidence-engine/internal/errs"
	"github.com/pdiddy/evidence-engine/internal/model"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// SectionExtractor returns the sentence of abstract most similar to query.
type SectionExtractor interface {
	Extract(ctx context.Context, query, abstract string) (types.RelevantSection, error)
}

// EntailmentScorer scores a sentence for agreement with query.
type EntailmentScorer interface {
	Score(ctx context.Context, query, sentence string) (types.Agreeableness, error)
}

// sentenceBoundary matches terminal punctuation followed by whitespace.
var sentenceBoundary = regexp.MustCompile(`[.!?]\s+`)

// SplitSentences splits text after each '.', '!' or '?' that is followed by
// whitespace. Abbreviations mis-split; that is accepted. Empty pieces are
// dropped.
func SplitSentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start : loc[0]+1]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// Extractor is the embedding-based SectionExtractor.
type Extractor struct {
	model model.EmbeddingModel
}

// NewExtractor returns an extractor scoring with m.
func NewExtractor(m model.EmbeddingModel) *Extractor {
	return &Extractor{model: m}
}

// Extract scores every sentence against query with unpruned similarity and
// returns the first sentence holding the maximum score. An abstract with no
// sentences fails with errs.NoSentences.
func (e *Extractor) Extract(ctx context.Context, query, abstract string) (types.RelevantSection, error) {
	sentences := SplitSentences(abstract)
	if len(sentences) == 0 {
		return types.RelevantSection{}, errs.Ef(errs.NoSentences, "relevance.extract", "abstract has no sentences")
	}

	texts := make([]string, 0, len(sentences)+1)
	texts = append(texts, query)
	texts = append(texts, sentences...)
	vecs, err := model.EmbedAll(ctx, e.model, texts)
	if err != nil {
		return types.RelevantSection{}, err
	}

	qv := vecs[0]
	best := 0
	bestScore := model.Rescale(model.Cosine(qv, vecs[1]), false)
	for i := 1; i < len(sentences); i++ {
		score := model.Rescale(model.Cosine(qv, vecs[i+1]), false)
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	return types.RelevantSection{
		EmbeddingModel: e.model.Identifier(),
		Sentence:       sentences[best],
		Score:          bestScore,
	}, nil
}

// Scorer is the EntailmentScorer backed by an entailment model.
type Scorer struct {
	model model.EntailmentModel
}

// NewScorer returns a scorer predicting with m.
func NewScorer(m model.EntailmentModel) *Scorer {
	return &Scorer{model: m}
}

// Score predicts with the sentence as premise and query as hypothesis (in
// the model's declared pair order). A distribution that does not sum to
// 1±0.01 fails with errs.InvalidProbability.
func (s *Scorer) Score(ctx context.Context, query, sentence string) (types.Agreeableness, error) {
	p, err := model.PredictPair(ctx, s.model, query, sentence)
	if err != nil {
		return types.Agreeableness{}, err
	}
	return types.Agreeableness{
		EntailmentModel: s.model.Identifier(),
		Agree:           p.Entailment,
		Disagree:        p.Contradiction,
		Neutral:         p.Neutral,
	}, nil
}
