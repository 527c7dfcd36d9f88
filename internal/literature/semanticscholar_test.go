// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package literature

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/evidence-engine/internal/errs"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

func semanticServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, semanticFields, r.URL.Query().Get("fields"))
		assert.Equal(t, "s2-key", r.Header.Get("x-api-key"))

		var body struct {
			IDs []string `json:"ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"PMID:1", "PMID:2", "PMID:3"}, body.IDs)

		fmt.Fprint(w, `[
			{"paperId":"p1","citationCount":12,"referenceCount":40,"journal":{"name":"Lancet"},"authors":[{"name":"X"}]},
			null,
			{"paperId":"p3","citationCount":0,"referenceCount":5,"journal":null,"authors":[]}
		]`)
	}))
}

func TestSemanticScholarLookup(t *testing.T) {
	ts := semanticServer(t)
	defer ts.Close()
	swap(t, &semanticBatchBase, ts.URL)

	s := &SemanticScholar{Client: testClient(ts), APIKey: "s2-key"}
	stats, err := s.Lookup(context.Background(), []string{"1", "2", "3"})
	require.NoError(t, err)
	assert.Len(t, stats, 2)
	assert.Equal(t, PaperStats{PaperID: "p1", CitationCount: 12, ReferenceCount: 40, Journal: "Lancet", Authors: []string{"X"}}, stats["1"])
	assert.Equal(t, 5, stats["3"].ReferenceCount)
	_, ok := stats["2"]
	assert.False(t, ok, "null entries are skipped")
}

func TestSemanticScholarEnrichCopies(t *testing.T) {
	ts := semanticServer(t)
	defer ts.Close()
	swap(t, &semanticBatchBase, ts.URL)

	docs := []types.CandidateDocument{
		{ID: "1"},
		{ID: "2", CitationCount: 99},
		{ID: "3", Journal: "Kept Journal"},
	}
	s := &SemanticScholar{Client: testClient(ts), APIKey: "s2-key"}
	got, err := s.Enrich(context.Background(), docs)
	require.NoError(t, err)

	assert.Equal(t, 12, got[0].CitationCount)
	assert.Equal(t, "Lancet", got[0].Journal)
	assert.Equal(t, 99, got[1].CitationCount, "unknown papers keep their counts")
	assert.Equal(t, "Kept Journal", got[2].Journal)
	assert.Equal(t, 0, docs[0].CitationCount, "input is not mutated")
}

func TestSemanticScholarCitationCounts(t *testing.T) {
	ts := semanticServer(t)
	defer ts.Close()
	swap(t, &semanticBatchBase, ts.URL)

	counts, err := (&SemanticScholar{Client: testClient(ts), APIKey: "s2-key"}).CitationCounts(context.Background(), []string{"1", "2", "3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"1": 12, "3": 0}, counts)
}

func TestSemanticScholarFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()
	swap(t, &semanticBatchBase, ts.URL)

	_, err := (&SemanticScholar{Client: testClient(ts)}).Lookup(context.Background(), []string{"1"})
	assert.True(t, errs.Is(err, errs.ExternalService))
}
