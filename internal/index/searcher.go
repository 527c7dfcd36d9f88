// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/pdiddy/evidence-engine/internal/errs"
	"github.com/pdiddy/evidence-engine/internal/logging"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Enricher refreshes citation and reference counts before post-filtering.
// *literature.SemanticScholar satisfies it.
type Enricher interface {
	Enrich(ctx context.Context, docs []types.CandidateDocument) ([]types.CandidateDocument, error)
}

// Searcher runs the hybrid search path over an index.
type Searcher struct {
	Index HybridIndex

	// Enricher, when set, runs before post-filters that need counts.
	Enricher Enricher

	// EmbeddingModel pins results to one model's vectors. Empty uses the
	// index's own model.
	EmbeddingModel string

	Logger *log.Logger
}

// Search validates f, queries the index, and applies the post-filters.
// Invalid input fails with errs.InvalidFilter before the index is
// touched. An index returning nothing is errs.NoDocumentsFound; a
// post-filter that removes every hit yields an empty, successful result.
func (s *Searcher) Search(ctx context.Context, query string, f types.DocumentFilter, alpha float64, topK, offset int) ([]types.Hit, error) {
	const op = "index.search"
	logger := logging.OrDiscard(s.Logger)

	switch {
	case strings.TrimSpace(query) == "":
		return nil, errs.Ef(errs.InvalidFilter, op, "query is empty")
	case alpha < 0 || alpha > 1:
		return nil, errs.Ef(errs.InvalidFilter, op, "alpha must be within [0,1], got %g", alpha)
	case topK <= 0:
		return nil, errs.Ef(errs.InvalidFilter, op, "top_k must be positive, got %d", topK)
	case offset < 0:
		return nil, errs.Ef(errs.InvalidFilter, op, "offset must be non-negative, got %d", offset)
	}
	if err := f.Validate(); err != nil {
		return nil, errs.E(errs.InvalidFilter, op, err)
	}

	hits, err := s.Index.HybridSearch(ctx, HybridQuery{
		Text:           query,
		Filter:         f,
		EmbeddingModel: s.EmbeddingModel,
		Alpha:          alpha,
		Limit:          topK,
		Offset:         offset,
	})
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, errs.Ef(errs.NoDocumentsFound, op, "no documents found for %q", query)
	}
	logger.Debug("hybrid search", "query", query, "hits", len(hits), "alpha", alpha)

	if !f.HasPostFilters() {
		return hits, nil
	}
	if s.Enricher != nil {
		hits = s.enrich(ctx, logger, hits)
	}
	return PostFilter(hits, f), nil
}

// enrich returns a copy of hits with refreshed counts. Failures leave the
// indexed counts in place.
func (s *Searcher) enrich(ctx context.Context, logger *log.Logger, hits []types.Hit) []types.Hit {
	docs := make([]types.CandidateDocument, len(hits))
	for i, h := range hits {
		docs[i] = h.Document
	}
	enriched, err := s.Enricher.Enrich(ctx, docs)
	if err != nil || len(enriched) != len(hits) {
		logger.Warn("enrichment failed, filtering on indexed counts", "err", err)
		return hits
	}
	out := make([]types.Hit, len(hits))
	for i, h := range hits {
		out[i] = types.Hit{Score: h.Score, Document: enriched[i]}
	}
	return out
}

// PostFilter returns the hits satisfying every active post-filter bound,
// in their original order. hits is not modified.
func PostFilter(hits []types.Hit, f types.DocumentFilter) []types.Hit {
	out := make([]types.Hit, 0, len(hits))
	for _, h := range hits {
		if f.MatchesPost(h.Document) {
			out = append(out, h)
		}
	}
	return out
}

// Filter keys accepted by ParseFilter.
const (
	KeyMinCitations    = "min_citations"
	KeyMaxCitations    = "max_citations"
	KeyMinReferences   = "min_references"
	KeyMaxReferences   = "max_references"
	KeyJournals        = "journals"
	KeyPublishedAfter  = "published_after"
	KeyPublishedBefore = "published_before"
)

// ParseFilter builds a DocumentFilter from raw string inputs such as CLI
// flags or query parameters. Empty values are inactive. Journals are
// comma-separated. Any malformed value is errs.InvalidFilter.
func ParseFilter(raw map[string]string) (types.DocumentFilter, error) {
	const op = "index.parse_filter"
	var f types.DocumentFilter
	ints := map[string]**int{
		KeyMinCitations:    &f.MinCitations,
		KeyMaxCitations:    &f.MaxCitations,
		KeyMinReferences:   &f.MinReferences,
		KeyMaxReferences:   &f.MaxReferences,
		KeyPublishedAfter:  &f.PublishedAfter,
		KeyPublishedBefore: &f.PublishedBefore,
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := strings.TrimSpace(raw[k])
		if v == "" {
			continue
		}
		if k == KeyJournals {
			for _, j := range strings.Split(v, ",") {
				if j = strings.TrimSpace(j); j != "" {
					f.Journals = append(f.Journals, j)
				}
			}
			continue
		}
		dst, ok := ints[k]
		if !ok {
			return types.DocumentFilter{}, errs.Ef(errs.InvalidFilter, op, "unknown filter %q", k)
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return types.DocumentFilter{}, errs.E(errs.InvalidFilter, op, fmt.Errorf("%s: %q is not an integer", k, v))
		}
		*dst = &n
	}
	if err := f.Validate(); err != nil {
		return types.DocumentFilter{}, errs.E(errs.InvalidFilter, op, err)
	}
	return f, nil
}
