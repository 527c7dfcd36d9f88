// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package index implements the hybrid lexical and vector search path:
// an in-memory HNSW index, a Milvus-backed index, and a Searcher that
// validates filters and post-filters results the index cannot evaluate.
// Implements: prd003-hybrid-search (R1-R4).
package index

import (
	"context"
	"sort"

	"github.com/pdiddy/evidence-engine/internal/errs"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// ErrNotFound is returned by Get for an unknown document id.
var ErrNotFound = errs.Ef(errs.NotFound, "index.get", "document not found")

// HybridQuery is one request to a HybridIndex.
type HybridQuery struct {
	// Text is matched lexically and, embedded, by vector similarity.
	Text string

	// Filter supplies the pre-filter bounds (publication years). Other
	// bounds are ignored by the index.
	Filter types.DocumentFilter

	// EmbeddingModel restricts results to documents embedded by this
	// model. Empty means the index's own model.
	EmbeddingModel string

	// Alpha blends lexical (0) and vector (1) scores.
	Alpha float64

	Limit  int
	Offset int
}

// HybridIndex is a searchable document store.
type HybridIndex interface {
	HybridSearch(ctx context.Context, q HybridQuery) ([]types.Hit, error)
	Get(ctx context.Context, id string) (types.CandidateDocument, error)
}

// candidate carries both raw scores of one document before fusion.
type candidate struct {
	doc    types.CandidateDocument
	vec    float64
	lex    float64
	hasVec bool
}

// fuse min-max normalizes the vector and lexical scores independently and
// blends them as alpha*vec + (1-alpha)*lex. Documents missing from the
// vector side score 0 there. Ties keep the order of cands.
func fuse(cands []candidate, alpha float64) []types.Hit {
	if len(cands) == 0 {
		return nil
	}
	vecs := make([]float64, len(cands))
	lexs := make([]float64, len(cands))
	for i, c := range cands {
		vecs[i], lexs[i] = c.vec, c.lex
	}
	normalize(vecs)
	normalize(lexs)

	hits := make([]types.Hit, len(cands))
	for i, c := range cands {
		v := vecs[i]
		if !c.hasVec {
			v = 0
		}
		hits[i] = types.Hit{Score: alpha*v + (1-alpha)*lexs[i], Document: c.doc}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits
}

// normalize rescales xs to [0,1] in place. A constant non-zero slice maps
// to 1; an all-zero slice stays zero.
func normalize(xs []float64) {
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = min(lo, x)
		hi = max(hi, x)
	}
	for i, x := range xs {
		switch {
		case hi > lo:
			xs[i] = (x - lo) / (hi - lo)
		case hi != 0:
			xs[i] = 1
		default:
			xs[i] = 0
		}
	}
}

// page applies offset and limit to hits.
func page(hits []types.Hit, offset, limit int) []types.Hit {
	if offset >= len(hits) {
		return nil
	}
	hits = hits[offset:]
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// documentText is the text indexed for a document.
func documentText(d types.CandidateDocument) string {
	return d.Title + "\n" + d.Abstract
}
