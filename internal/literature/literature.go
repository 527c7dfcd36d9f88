// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package literature talks to the external bibliographic services: keyword
// search, metadata fetch, citation counts, metadata enrichment, and
// citation formatting. Implements: prd004-literature (R1-R5).
//
// Every collaborator goes through an httputil.Client so calls to one host
// are spaced by its rate limiter and 429s are retried. Transport failures,
// non-2xx statuses, and unparseable bodies surface as errs.ExternalService.
package literature

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pdiddy/evidence-engine/internal/httputil"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Source searches a bibliographic database and fetches records.
type Source interface {
	Name() string

	// Search returns up to retmax identifiers in the source's relevance order.
	Search(ctx context.Context, term string, retmax int) ([]string, error)

	// FetchMetadata returns records for ids. Unknown ids are omitted; the
	// order follows ids.
	FetchMetadata(ctx context.Context, ids []string) ([]types.CandidateDocument, error)
}

// CitationCounter returns total citations per identifier in one batched
// call. Identifiers the service does not know are absent from the map.
type CitationCounter interface {
	CitationCounts(ctx context.Context, ids []string) (map[string]int, error)
}

// NewClient builds the shared rate-limited client for cfg. Every host gets
// cfg.RequestSpacing between calls.
func NewClient(cfg types.LiteratureConfig) *httputil.Client {
	return &httputil.Client{
		HTTP:       &http.Client{Timeout: cfg.Timeout},
		Limiters:   httputil.NewLimiters(cfg.RequestSpacing),
		MaxRetries: cfg.MaxRetries,
		UserAgent:  cfg.UserAgent,
	}
}

// NewSource returns the configured search backend and its matching
// citation counter: PubMed with iCite, or OpenAlex with its own counts.
func NewSource(cfg types.LiteratureConfig, client *httputil.Client) (Source, CitationCounter, error) {
	switch cfg.Backend {
	case "", "pubmed":
		return &PubMed{Client: client, APIKey: cfg.PubMedAPIKey}, &ICite{Client: client}, nil
	case "openalex":
		oa := &OpenAlex{Client: client, Email: cfg.OpenAlexEmail}
		return oa, oa, nil
	default:
		return nil, nil, fmt.Errorf("unknown literature backend %q", cfg.Backend)
	}
}

// chunk splits ids into batches of at most n.
func chunk(ids []string, n int) [][]string {
	var out [][]string
	for len(ids) > n {
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
