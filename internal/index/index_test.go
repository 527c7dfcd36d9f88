// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/evidence-engine/internal/errs"
	"github.com/pdiddy/evidence-engine/internal/model"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

func intp(n int) *int { return &n }

var corpus = []types.CandidateDocument{
	{ID: "1", Title: "Sitting time and cardiovascular risk", Abstract: "Prolonged sitting raises cardiovascular risk in adults.", Year: 2015, Journal: "Lancet", CitationCount: 40, ReferenceCount: 30},
	{ID: "2", Title: "Coffee and sleep", Abstract: "Caffeine intake delays sleep onset.", Year: 2019, Journal: "Sleep", CitationCount: 5, ReferenceCount: 12},
	{ID: "3", Title: "Sedentary behaviour in children", Abstract: "Screen time and sitting in school children.", Year: 2008, Journal: "BMJ", CitationCount: 12, ReferenceCount: 55},
}

func newMemory(t *testing.T) *MemoryIndex {
	t.Helper()
	idx := NewMemoryIndex(model.NewHashingEmbedding(256))
	require.NoError(t, idx.Add(context.Background(), corpus...))
	return idx
}

func hitIDs(hits []types.Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Document.ID
	}
	return out
}

// --- fusion ---

func TestNormalize(t *testing.T) {
	xs := []float64{2, 4, 3}
	normalize(xs)
	assert.Equal(t, []float64{0, 1, 0.5}, xs)

	same := []float64{0.7, 0.7}
	normalize(same)
	assert.Equal(t, []float64{1, 1}, same)

	zero := []float64{0, 0}
	normalize(zero)
	assert.Equal(t, []float64{0, 0}, zero)
}

func TestFuse(t *testing.T) {
	cands := []candidate{
		{doc: types.CandidateDocument{ID: "lex"}, vec: 0.1, lex: 9, hasVec: true},
		{doc: types.CandidateDocument{ID: "vec"}, vec: 0.9, lex: 1, hasVec: true},
		{doc: types.CandidateDocument{ID: "lexonly"}, lex: 5},
	}
	assert.Equal(t, []string{"lex", "lexonly", "vec"}, hitIDs(fuse(cands, 0)))
	assert.Equal(t, []string{"vec", "lex", "lexonly"}, hitIDs(fuse(cands, 1)))

	hits := fuse(cands, 0.5)
	for _, h := range hits {
		assert.GreaterOrEqual(t, h.Score, 0.0)
		assert.LessOrEqual(t, h.Score, 1.0)
	}
	assert.Nil(t, fuse(nil, 0.5))
}

func TestPage(t *testing.T) {
	hits := []types.Hit{{Score: 3}, {Score: 2}, {Score: 1}}
	assert.Len(t, page(hits, 0, 2), 2)
	assert.Equal(t, 1.0, page(hits, 2, 5)[0].Score)
	assert.Nil(t, page(hits, 3, 1))
}

// --- BM25 ---

func TestBM25(t *testing.T) {
	s := newBM25([]string{
		"sitting sitting risk",
		"coffee sleep",
		"sitting at work",
	})
	scores := s.scores("Sitting risk")
	assert.Greater(t, scores[0], scores[2], "more matching terms score higher")
	assert.Greater(t, scores[2], 0.0)
	assert.Zero(t, scores[1])

	assert.Equal(t, []string{"sitting", "risk", "2x"}, tokenize("Sitting-risk (2x)!"))
}

// --- MemoryIndex ---

func TestMemoryIndex_LexicalAndVector(t *testing.T) {
	idx := newMemory(t)
	ctx := context.Background()

	for _, alpha := range []float64{0, 0.5, 1} {
		hits, err := idx.HybridSearch(ctx, HybridQuery{Text: "caffeine sleep", Alpha: alpha, Limit: 3})
		require.NoError(t, err)
		require.NotEmpty(t, hits, "alpha %g", alpha)
		assert.Equal(t, "2", hits[0].Document.ID, "alpha %g", alpha)
	}
}

func TestMemoryIndex_PreFilterAndModel(t *testing.T) {
	idx := newMemory(t)
	ctx := context.Background()

	hits, err := idx.HybridSearch(ctx, HybridQuery{
		Text:   "sitting",
		Alpha:  0.5,
		Limit:  5,
		Filter: types.DocumentFilter{PublishedAfter: intp(2010)},
	})
	require.NoError(t, err)
	assert.NotContains(t, hitIDs(hits), "3", "2008 fails published_after")

	hits, err = idx.HybridSearch(ctx, HybridQuery{Text: "sitting", Alpha: 0.5, Limit: 5, EmbeddingModel: "openai/other"})
	require.NoError(t, err)
	assert.Empty(t, hits, "vectors from other models never match")
}

func TestMemoryIndex_GetAndReplace(t *testing.T) {
	idx := newMemory(t)
	ctx := context.Background()

	d, err := idx.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "hashing/256", d.EmbeddingModel)

	_, err = idx.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, errs.Is(err, errs.NotFound))

	updated := corpus[1]
	updated.CitationCount = 500
	require.NoError(t, idx.Add(ctx, updated))
	assert.Equal(t, 3, idx.Len())
	d, _ = idx.Get(ctx, "2")
	assert.Equal(t, 500, d.CitationCount)

	assert.Error(t, idx.Add(ctx, types.CandidateDocument{Title: "no id"}))
}

// --- Searcher ---

type fakeIndex struct {
	hits  []types.Hit
	err   error
	calls int
	last  HybridQuery
}

func (f *fakeIndex) HybridSearch(_ context.Context, q HybridQuery) ([]types.Hit, error) {
	f.calls++
	f.last = q
	return f.hits, f.err
}

func (f *fakeIndex) Get(context.Context, string) (types.CandidateDocument, error) {
	return types.CandidateDocument{}, ErrNotFound
}

func hitsWithCitations(counts ...int) []types.Hit {
	var hits []types.Hit
	for i, c := range counts {
		hits = append(hits, types.Hit{
			Score:    float64(len(counts) - i),
			Document: types.CandidateDocument{ID: string(rune('a' + i)), CitationCount: c, Journal: "Lancet"},
		})
	}
	return hits
}

func TestSearcher_PostFilterEmptyIsSuccess(t *testing.T) {
	idx := &fakeIndex{hits: hitsWithCitations(5, 5, 5)}
	s := &Searcher{Index: idx}

	hits, err := s.Search(context.Background(), "sitting", types.DocumentFilter{MinCitations: intp(10)}, 0.5, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Len(t, idx.hits, 3, "the index result is not mutated")
}

func TestSearcher_NoDocumentsFound(t *testing.T) {
	s := &Searcher{Index: &fakeIndex{}}
	_, err := s.Search(context.Background(), "sitting", types.DocumentFilter{}, 0.5, 5, 0)
	assert.True(t, errs.Is(err, errs.NoDocumentsFound))
}

func TestSearcher_PostFilterNeverLeaksLowCitations(t *testing.T) {
	idx := &fakeIndex{hits: hitsWithCitations(3, 50, 9, 10, 100)}
	s := &Searcher{Index: idx}

	hits, err := s.Search(context.Background(), "sitting", types.DocumentFilter{MinCitations: intp(10)}, 0.5, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "d", "e"}, hitIDs(hits), "order is kept")
	for _, h := range hits {
		assert.GreaterOrEqual(t, h.Document.CitationCount, 10)
	}
}

func TestSearcher_InvalidInputBeforeSearch(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		f      types.DocumentFilter
		alpha  float64
		topK   int
		offset int
	}{
		{"empty query", " ", types.DocumentFilter{}, 0.5, 5, 0},
		{"alpha high", "q", types.DocumentFilter{}, 1.5, 5, 0},
		{"alpha negative", "q", types.DocumentFilter{}, -0.1, 5, 0},
		{"zero topK", "q", types.DocumentFilter{}, 0.5, 0, 0},
		{"negative offset", "q", types.DocumentFilter{}, 0.5, 5, -1},
		{"negative citations", "q", types.DocumentFilter{MinCitations: intp(-1)}, 0.5, 5, 0},
		{"inverted references", "q", types.DocumentFilter{MinReferences: intp(9), MaxReferences: intp(2)}, 0.5, 5, 0},
		{"inverted years", "q", types.DocumentFilter{PublishedAfter: intp(2020), PublishedBefore: intp(2000)}, 0.5, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := &fakeIndex{hits: hitsWithCitations(1)}
			_, err := (&Searcher{Index: idx}).Search(context.Background(), tt.query, tt.f, tt.alpha, tt.topK, tt.offset)
			assert.True(t, errs.Is(err, errs.InvalidFilter), "got %v", err)
			assert.Equal(t, 400, errs.HTTPStatus(err))
			assert.Zero(t, idx.calls)
		})
	}
}

func TestSearcher_PassesQuery(t *testing.T) {
	idx := &fakeIndex{hits: hitsWithCitations(1)}
	s := &Searcher{Index: idx, EmbeddingModel: "tei/bge"}
	f := types.DocumentFilter{PublishedAfter: intp(2001)}

	_, err := s.Search(context.Background(), "sitting", f, 0.3, 7, 2)
	require.NoError(t, err)
	assert.Equal(t, HybridQuery{Text: "sitting", Filter: f, EmbeddingModel: "tei/bge", Alpha: 0.3, Limit: 7, Offset: 2}, idx.last)
}

func TestSearcher_IndexError(t *testing.T) {
	down := errs.Ef(errs.ExternalService, "index.milvus.search", "unavailable")
	_, err := (&Searcher{Index: &fakeIndex{err: down}}).Search(context.Background(), "q", types.DocumentFilter{}, 0.5, 5, 0)
	assert.True(t, errs.Is(err, errs.ExternalService))
}

type fakeEnricher struct {
	counts map[string]int
	err    error
}

func (e fakeEnricher) Enrich(_ context.Context, docs []types.CandidateDocument) ([]types.CandidateDocument, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([]types.CandidateDocument, len(docs))
	for i, d := range docs {
		if c, ok := e.counts[d.ID]; ok {
			d.CitationCount = c
		}
		out[i] = d
	}
	return out, nil
}

func TestSearcher_Enrichment(t *testing.T) {
	idx := &fakeIndex{hits: hitsWithCitations(1, 1)}
	s := &Searcher{Index: idx, Enricher: fakeEnricher{counts: map[string]int{"b": 30}}}

	hits, err := s.Search(context.Background(), "q", types.DocumentFilter{MinCitations: intp(10)}, 0.5, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, hitIDs(hits))
	assert.Equal(t, 1, idx.hits[1].Document.CitationCount, "index hits are copied, not mutated")

	s.Enricher = fakeEnricher{err: errors.New("s2 down")}
	hits, err = s.Search(context.Background(), "q", types.DocumentFilter{MinCitations: intp(1)}, 0.5, 5, 0)
	require.NoError(t, err)
	assert.Len(t, hits, 2, "indexed counts are used when enrichment fails")
}

func TestSearcher_EndToEndMemory(t *testing.T) {
	s := &Searcher{Index: newMemory(t)}
	hits, err := s.Search(context.Background(), "sitting risk", types.DocumentFilter{Journals: []string{"lancet"}}, 0.5, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, hitIDs(hits))
}

// --- ParseFilter ---

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter(map[string]string{
		KeyMinCitations:   "10",
		KeyMaxReferences:  "50",
		KeyJournals:       "Lancet, BMJ ,",
		KeyPublishedAfter: "2010",
		KeyMaxCitations:   "",
	})
	require.NoError(t, err)
	assert.Equal(t, 10, *f.MinCitations)
	assert.Nil(t, f.MaxCitations)
	assert.Equal(t, 50, *f.MaxReferences)
	assert.Equal(t, []string{"Lancet", "BMJ"}, f.Journals)
	assert.Equal(t, 2010, *f.PublishedAfter)

	for _, raw := range []map[string]string{
		{KeyMinCitations: "ten"},
		{"color": "blue"},
		{KeyMinCitations: "-3"},
		{KeyPublishedAfter: "99"},
	} {
		_, err := ParseFilter(raw)
		assert.True(t, errs.Is(err, errs.InvalidFilter), "%v", raw)
	}
}

// --- Milvus helpers ---

func TestFilterExpr(t *testing.T) {
	assert.Equal(t, `embedding_model == "tei/bge"`, filterExpr(types.DocumentFilter{}, "tei/bge"))
	assert.Equal(t,
		`embedding_model == "m" && (year == 0 || year >= 2010) && (year == 0 || year <= 2020)`,
		filterExpr(types.DocumentFilter{PublishedAfter: intp(2010), PublishedBefore: intp(2020)}, "m"))
	assert.Empty(t, filterExpr(types.DocumentFilter{}, ""))
}

func TestDocumentsFromColumns(t *testing.T) {
	cols := []column.Column{
		column.NewColumnVarChar(fieldID, []string{"1", "2"}),
		column.NewColumnVarChar(fieldTitle, []string{"A", "B"}),
		column.NewColumnInt64(fieldYear, []int64{2015, 0}),
		column.NewColumnInt64(fieldCitationCount, []int64{40, 5}),
		column.NewColumnVarChar(fieldModel, []string{"m", "m"}),
	}
	docs, err := documentsFromColumns(cols)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, types.CandidateDocument{ID: "1", Title: "A", Year: 2015, CitationCount: 40, EmbeddingModel: "m", Source: "index"}, docs[0])
	assert.Equal(t, 0, docs[1].Year)

	none, err := documentsFromColumns(nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

// --- corpus ---

func TestLoadCorpusAndOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`documents:
  - id: "31000001"
    title: Sitting time and mortality
    abstract: Sitting more than eight hours a day raised mortality.
    year: 2019
    journal: The Lancet
    citation_count: 12
`), 0o644))

	docs, err := LoadCorpus(path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "The Lancet", docs[0].Journal)
	assert.Equal(t, 12, docs[0].CitationCount)

	idx, closeFn, err := Open(context.Background(), types.IndexConfig{CorpusFile: path}, model.NewHashingEmbedding(64))
	require.NoError(t, err)
	defer closeFn()
	d, err := idx.Get(context.Background(), "31000001")
	require.NoError(t, err)
	assert.Equal(t, 2019, d.Year)

	_, _, err = Open(context.Background(), types.IndexConfig{Backend: "faiss"}, model.NewHashingEmbedding(64))
	assert.Error(t, err)

	jsonPath := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"documents":[{"title":"x"}]}`), 0o644))
	_, err = LoadCorpus(jsonPath)
	assert.ErrorContains(t, err, "has no id")
}
