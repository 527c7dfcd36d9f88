// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package literature

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pdiddy/evidence-engine/internal/errs"
	"github.com/pdiddy/evidence-engine/internal/httputil"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// semanticBatchBase is the Semantic Scholar paper batch endpoint. Declared
// as a var so tests can substitute an httptest server.
var semanticBatchBase = "https://api.semanticscholar.org/graph/v1/paper/batch"

const (
	semanticFields = "paperId,referenceCount,citationCount,journal,authors"
	semanticBatch  = 500
)

// SemanticScholar looks up citation and reference counts, journal, and
// authors for PMIDs in one batched POST.
type SemanticScholar struct {
	Client *httputil.Client
	APIKey string
}

// PaperStats is the enrichment record for one paper.
type PaperStats struct {
	PaperID        string
	CitationCount  int
	ReferenceCount int
	Journal        string
	Authors        []string
}

type semanticPaper struct {
	PaperID        string `json:"paperId"`
	CitationCount  int    `json:"citationCount"`
	ReferenceCount int    `json:"referenceCount"`
	Journal        *struct {
		Name string `json:"name"`
	} `json:"journal"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
}

// Lookup returns stats keyed by PMID. PMIDs Semantic Scholar does not know
// are absent.
func (s *SemanticScholar) Lookup(ctx context.Context, pmids []string) (map[string]PaperStats, error) {
	const op = "semanticscholar.batch"
	out := make(map[string]PaperStats, len(pmids))
	for _, batch := range chunk(pmids, semanticBatch) {
		ids := make([]string, len(batch))
		for i, id := range batch {
			ids[i] = "PMID:" + id
		}
		payload, err := json.Marshal(map[string][]string{"ids": ids})
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqURL := semanticBatchBase + "?" + url.Values{"fields": {semanticFields}}.Encode()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if s.APIKey != "" {
			req.Header.Set("x-api-key", s.APIKey)
		}

		body, err := s.Client.Fetch(ctx, req, op)
		if err != nil {
			return nil, err
		}
		// The response is aligned with the request; unknown ids are null.
		var papers []*semanticPaper
		if err := json.Unmarshal(body, &papers); err != nil {
			return nil, errs.E(errs.ExternalService, op, fmt.Errorf("parsing batch response: %w", err))
		}
		for i, p := range papers {
			if p == nil || i >= len(batch) {
				continue
			}
			st := PaperStats{
				PaperID:        p.PaperID,
				CitationCount:  p.CitationCount,
				ReferenceCount: p.ReferenceCount,
			}
			if p.Journal != nil {
				st.Journal = strings.TrimSpace(p.Journal.Name)
			}
			for _, a := range p.Authors {
				st.Authors = append(st.Authors, a.Name)
			}
			out[batch[i]] = st
		}
	}
	return out, nil
}

// CitationCounts makes SemanticScholar usable as a CitationCounter.
func (s *SemanticScholar) CitationCounts(ctx context.Context, pmids []string) (map[string]int, error) {
	stats, err := s.Lookup(ctx, pmids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(stats))
	for id, st := range stats {
		out[id] = st.CitationCount
	}
	return out, nil
}

// Enrich returns a copy of docs with counts filled from Semantic Scholar.
// Journal and authors are filled only where the record lacks them.
func (s *SemanticScholar) Enrich(ctx context.Context, docs []types.CandidateDocument) ([]types.CandidateDocument, error) {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	stats, err := s.Lookup(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]types.CandidateDocument, len(docs))
	for i, d := range docs {
		if st, ok := stats[d.ID]; ok {
			d.CitationCount = st.CitationCount
			d.ReferenceCount = st.ReferenceCount
			if d.Journal == "" {
				d.Journal = st.Journal
			}
			if len(d.Authors) == 0 {
				d.Authors = st.Authors
			}
		}
		out[i] = d
	}
	return out, nil
}
