// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package evidence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/evidence-engine/internal/errs"
	"github.com/pdiddy/evidence-engine/internal/logging"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// --- test doubles ---

type fakeSource struct {
	ids       []string
	docs      map[string]types.CandidateDocument
	searchErr error
	fetchErr  error

	mu       sync.Mutex
	retmax   int
	lastTerm string
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) Search(_ context.Context, term string, retmax int) ([]string, error) {
	s.mu.Lock()
	s.retmax, s.lastTerm = retmax, term
	s.mu.Unlock()
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	if len(s.ids) > retmax {
		return s.ids[:retmax], nil
	}
	return s.ids, nil
}

func (s *fakeSource) FetchMetadata(_ context.Context, ids []string) ([]types.CandidateDocument, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	var out []types.CandidateDocument
	for _, id := range ids {
		if d, ok := s.docs[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

type fakeCitations struct {
	counts map[string]int
	err    error
}

func (c fakeCitations) CitationCounts(context.Context, []string) (map[string]int, error) {
	return c.counts, c.err
}

// simEmbedding maps the query to the x axis and each abstract to a unit
// vector whose cosine with the query is its configured similarity.
type simEmbedding struct {
	query string
	sims  map[string]float64
}

func (e simEmbedding) Identifier() string { return "sim" }

func (e simEmbedding) Embed(_ context.Context, text string) ([]float64, error) {
	if text == e.query {
		return []float64{1, 0}, nil
	}
	s, ok := e.sims[text]
	if !ok {
		return nil, fmt.Errorf("unknown text %q", text)
	}
	return []float64{s, math.Sqrt(1 - s*s)}, nil
}

type fakeExtractor struct {
	fail  map[string]error
	calls atomic.Int32
}

func (x *fakeExtractor) Extract(ctx context.Context, _ string, abstract string) (types.RelevantSection, error) {
	x.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return types.RelevantSection{}, err
	}
	if err := x.fail[abstract]; err != nil {
		return types.RelevantSection{}, err
	}
	first, _, _ := strings.Cut(abstract, ".")
	return types.RelevantSection{EmbeddingModel: "sim", Sentence: first + ".", Score: 0.8}, nil
}

type fakeScorer struct {
	fail map[string]error
}

func (s fakeScorer) Score(_ context.Context, _ string, sentence string) (types.Agreeableness, error) {
	if err := s.fail[sentence]; err != nil {
		return types.Agreeableness{}, err
	}
	return types.Agreeableness{EntailmentModel: "nli", Agree: 0.7, Disagree: 0.1, Neutral: 0.2}, nil
}

const hypothesis = "sitting and health risks"

func doc(id string) types.CandidateDocument {
	return types.CandidateDocument{ID: id, Title: "Title " + id, Abstract: "Abstract " + id + ". More text."}
}

// newFixture builds a pipeline over documents whose query similarities
// are sims, in source order.
func newFixture(sims map[string]float64, order ...string) (*Pipeline, *fakeSource, *fakeExtractor) {
	src := &fakeSource{docs: map[string]types.CandidateDocument{}}
	emb := simEmbedding{query: hypothesis, sims: map[string]float64{}}
	for _, id := range order {
		d := doc(id)
		src.ids = append(src.ids, id)
		src.docs[id] = d
		emb.sims[d.Abstract] = sims[id]
	}
	ext := &fakeExtractor{}
	p := &Pipeline{
		Source:    src,
		Citations: fakeCitations{counts: map[string]int{"a": 3, "b": 11, "c": 7}},
		Embedder:  emb,
		Extractor: ext,
		Scorer:    fakeScorer{},
		Logger:    logging.Discard(),
		Workers:   2,
	}
	return p, src, ext
}

func ids(docs []types.ScoredDocument) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

// --- Run ---

func TestRun_OrdersBySimilarity(t *testing.T) {
	p, _, _ := newFixture(map[string]float64{"a": 0.9, "b": 0.4, "c": 0.7}, "a", "b", "c")

	res, err := p.Run(context.Background(), hypothesis, types.FilterSpec{})
	require.NoError(t, err)
	require.Len(t, res.Documents, 3)

	assert.Equal(t, []string{"a", "c", "b"}, ids(res.Documents))
	assert.InDelta(t, 0.9, res.Documents[0].OverallSimilarity, 1e-9)
	assert.InDelta(t, 0.7, res.Documents[1].OverallSimilarity, 1e-9)
	assert.InDelta(t, 0.4, res.Documents[2].OverallSimilarity, 1e-9)

	for _, d := range res.Documents {
		require.NotNil(t, d.Relevant)
		require.NotNil(t, d.Agreeableness)
		assert.Equal(t, "Abstract "+d.ID+".", d.Relevant.Sentence)
	}
	assert.Equal(t, 3, res.Documents[0].CitationTotal)
	assert.Equal(t, 7, res.Documents[1].CitationTotal)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, hypothesis, res.Term, "no expander uses the literal query")
}

func TestRun_RankingInvariant(t *testing.T) {
	sims := map[string]float64{"a": 0.2, "b": 0.5, "c": 0.5, "d": 0.95, "e": 0.1, "f": 0.6}
	p, _, _ := newFixture(sims, "a", "b", "c", "d", "e", "f")

	res, err := p.Run(context.Background(), hypothesis, types.FilterSpec{})
	require.NoError(t, err)
	for i := 1; i < len(res.Documents); i++ {
		assert.GreaterOrEqual(t, res.Documents[i-1].OverallSimilarity, res.Documents[i].OverallSimilarity)
	}
	// b and c tie; source order decides.
	assert.Equal(t, []string{"d", "f", "b", "c", "a", "e"}, ids(res.Documents))
}

func TestRun_Idempotent(t *testing.T) {
	sims := map[string]float64{"a": 0.3, "b": 0.8, "c": 0.3}
	p, _, _ := newFixture(sims, "a", "b", "c")

	first, err := p.Run(context.Background(), hypothesis, types.FilterSpec{})
	require.NoError(t, err)
	second, err := p.Run(context.Background(), hypothesis, types.FilterSpec{})
	require.NoError(t, err)

	assert.Equal(t, first.Documents, second.Documents)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRun_TruncatesAndOverFetches(t *testing.T) {
	p, src, _ := newFixture(map[string]float64{"a": 0.1, "b": 0.2, "c": 0.3}, "a", "b", "c")

	res, err := p.Run(context.Background(), hypothesis, types.FilterSpec{MaxResults: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, ids(res.Documents))
	assert.Equal(t, 3, res.Candidates)
	assert.Equal(t, 12, src.retmax, "max(ceil(2*1.5), 2+10)")

	p.OverFetchFactor = 2
	p.MinOverFetch = 1
	_, err = p.Run(context.Background(), hypothesis, types.FilterSpec{MaxResults: 20})
	require.NoError(t, err)
	assert.Equal(t, 40, src.retmax)
}

func TestRun_NoDocumentsFound(t *testing.T) {
	p, src, _ := newFixture(nil)
	src.ids = nil

	_, err := p.Run(context.Background(), hypothesis, types.FilterSpec{})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.NoDocumentsFound))
	assert.Equal(t, 404, errs.HTTPStatus(err))
}

func TestRun_DropsDocumentsWithoutAbstract(t *testing.T) {
	p, src, _ := newFixture(map[string]float64{"a": 0.5, "b": 0.6}, "a", "b")
	d := src.docs["a"]
	d.Abstract = "  "
	src.docs["a"] = d

	res, err := p.Run(context.Background(), hypothesis, types.FilterSpec{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(res.Documents))

	d = src.docs["b"]
	d.Abstract = ""
	src.docs["b"] = d
	_, err = p.Run(context.Background(), hypothesis, types.FilterSpec{})
	assert.True(t, errs.Is(err, errs.NoDocumentsFound), "all abstracts missing")
}

func TestRun_ExternalFailuresAreFatal(t *testing.T) {
	down := errs.Ef(errs.ExternalService, "pubmed.search", "HTTP 503")

	p, src, _ := newFixture(map[string]float64{"a": 0.5}, "a")
	src.searchErr = down
	_, err := p.Run(context.Background(), hypothesis, types.FilterSpec{})
	assert.True(t, errs.Is(err, errs.ExternalService))

	src.searchErr = nil
	src.fetchErr = down
	_, err = p.Run(context.Background(), hypothesis, types.FilterSpec{})
	assert.True(t, errs.Is(err, errs.ExternalService))
}

func TestRun_InvalidFilter(t *testing.T) {
	p, src, _ := newFixture(map[string]float64{"a": 0.5}, "a")
	_, err := p.Run(context.Background(), hypothesis, types.FilterSpec{MinYear: 2020, MaxYear: 2010})
	assert.True(t, errs.Is(err, errs.InvalidFilter))
	assert.Zero(t, src.retmax, "no search issued")
}

func TestRun_ExcludesFailingDocuments(t *testing.T) {
	var buf bytes.Buffer
	p, src, ext := newFixture(map[string]float64{"a": 0.9, "b": 0.8, "c": 0.7}, "a", "b", "c")
	p.Logger = logging.New(&buf, "warn")
	ext.fail = map[string]error{src.docs["a"].Abstract: errs.Ef(errs.NoSentences, "relevance.extract", "abstract has no sentences")}
	p.Scorer = fakeScorer{fail: map[string]error{"Abstract c.": errs.Ef(errs.InvalidProbability, "model.predict", "sum 0.5")}}

	res, err := p.Run(context.Background(), hypothesis, types.FilterSpec{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(res.Documents))
	assert.Equal(t, 2, res.Excluded)

	out := buf.String()
	assert.Contains(t, out, "pmid=a")
	assert.Contains(t, out, "pmid=c")
	assert.Contains(t, out, "excluding document")
}

func TestRun_CitationFailureIsNotFatal(t *testing.T) {
	p, _, _ := newFixture(map[string]float64{"a": 0.9}, "a")
	p.Citations = fakeCitations{err: errors.New("icite down")}

	res, err := p.Run(context.Background(), hypothesis, types.FilterSpec{})
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)
	assert.Zero(t, res.Documents[0].CitationTotal)
}

func TestRun_CitationBounds(t *testing.T) {
	p, _, _ := newFixture(map[string]float64{"a": 0.9, "b": 0.8, "c": 0.7}, "a", "b", "c")
	lo, hi := 5, 10
	res, err := p.Run(context.Background(), hypothesis, types.FilterSpec{MinCitations: &lo, MaxCitations: &hi})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(res.Documents))
}

func TestRun_Cancelled(t *testing.T) {
	p, _, ext := newFixture(map[string]float64{"a": 0.9, "b": 0.8}, "a", "b")
	ctx, cancel := context.WithCancel(context.Background())
	p.Scorer = cancelScorer{cancel: cancel}

	_, err := p.Run(ctx, hypothesis, types.FilterSpec{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, int(ext.calls.Load()), 2)
}

func TestRun_DocumentTimeoutExcludesOnlyThatDocument(t *testing.T) {
	p, _, _ := newFixture(map[string]float64{"a": 0.9, "b": 0.8, "c": 0.7}, "a", "b", "c")
	timeout := errs.E(errs.ExternalService, "hf.predict",
		fmt.Errorf("Post \"http://nli/predict\": %w (Client.Timeout exceeded while awaiting headers)", context.DeadlineExceeded))
	p.Scorer = fakeScorer{fail: map[string]error{"Abstract b.": timeout}}

	res, err := p.Run(context.Background(), hypothesis, types.FilterSpec{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids(res.Documents))
	assert.Equal(t, 1, res.Excluded)
}

func TestRelevantSections_DocumentTimeoutExcludesOnlyThatDocument(t *testing.T) {
	p, src, ext := newFixture(map[string]float64{"a": 0.3, "b": 0.6}, "a", "b")
	ext.fail = map[string]error{src.docs["a"].Abstract: fmt.Errorf("tei.embed: %w", context.DeadlineExceeded)}

	got, err := p.RelevantSections(context.Background(), hypothesis,
		[]types.CandidateDocument{src.docs["a"], src.docs["b"]})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(got))
}

// cancelScorer cancels the run on its first call.
type cancelScorer struct{ cancel context.CancelFunc }

func (s cancelScorer) Score(ctx context.Context, _, _ string) (types.Agreeableness, error) {
	s.cancel()
	return types.Agreeableness{}, ctx.Err()
}

type fixedExpander string

func (e fixedExpander) Expand(context.Context, string, types.FilterSpec) (string, error) {
	return string(e), nil
}

func TestRun_UsesExpandedTerm(t *testing.T) {
	p, src, _ := newFixture(map[string]float64{"a": 0.9}, "a")
	p.Expander = fixedExpander(`"sedentary behavior" AND "risk factors"`)

	res, err := p.Run(context.Background(), hypothesis, types.FilterSpec{})
	require.NoError(t, err)
	assert.Equal(t, `"sedentary behavior" AND "risk factors"`, src.lastTerm)
	assert.Equal(t, src.lastTerm, res.Term)
}

// --- FurtherReads ---

func TestFurtherReads_KeepsSourceOrder(t *testing.T) {
	p, src, ext := newFixture(map[string]float64{"a": 0.1, "b": 0.9, "c": 0.5}, "a", "b", "c")
	p.FurtherReadsLimit = 2

	res, err := p.FurtherReads(context.Background(), hypothesis, types.FilterSpec{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(res.Documents))
	assert.Equal(t, 2, src.retmax)
	assert.Zero(t, ext.calls.Load(), "no sentence scoring")
	for _, d := range res.Documents {
		assert.Zero(t, d.OverallSimilarity)
		assert.Nil(t, d.Relevant)
	}
	assert.Equal(t, 11, res.Documents[1].CitationTotal)
}

// --- RelevantSections ---

func TestRelevantSections(t *testing.T) {
	p, src, ext := newFixture(map[string]float64{"a": 0.3, "b": 0.6}, "a", "b")
	ext.fail = map[string]error{src.docs["b"].Abstract: errs.Ef(errs.NoSentences, "x", "none")}
	empty := types.CandidateDocument{ID: "z"}

	got, err := p.RelevantSections(context.Background(), hypothesis,
		[]types.CandidateDocument{src.docs["a"], empty, src.docs["b"]})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
	assert.InDelta(t, 0.3, got[0].OverallSimilarity, 1e-9)
	assert.Equal(t, "Abstract a.", got[0].Relevant.Sentence)
}

func TestNew(t *testing.T) {
	cfg := types.DefaultConfig().Pipeline
	p := New(cfg, &fakeSource{}, nil, nil, simEmbedding{}, &fakeExtractor{}, fakeScorer{}, nil)
	assert.Equal(t, cfg.Workers, p.Workers)
	assert.Equal(t, cfg.FurtherReads, p.FurtherReadsLimit)
	assert.Equal(t, 4, (&Pipeline{}).workers())
	assert.Equal(t, 30, (&Pipeline{}).retmax(20))
}
