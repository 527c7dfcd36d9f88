// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package evidence runs the hypothesis-to-evidence pipeline: query
// expansion, literature search, similarity ranking, and per-document
// relevance and entailment scoring.
// Implements: prd001-evidence (R1-R6).
package evidence

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/evidence-engine/internal/errs"
	"github.com/pdiddy/evidence-engine/internal/literature"
	"github.com/pdiddy/evidence-engine/internal/logging"
	"github.com/pdiddy/evidence-engine/internal/model"
	"github.com/pdiddy/evidence-engine/internal/relevance"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// QueryExpander builds a literature search expression. *query.Expander
// satisfies it.
type QueryExpander interface {
	Expand(ctx context.Context, q string, f types.FilterSpec) (string, error)
}

const (
	defaultMaxResults   = 20
	defaultOverFetch    = 1.5
	defaultMinOverFetch = 10
	defaultWorkers      = 4
	defaultFurtherReads = 5
)

// Pipeline wires the collaborators of one evidence run. Source, Embedder,
// Extractor, and Scorer are required; Expander and Citations are optional.
type Pipeline struct {
	Source    literature.Source
	Citations literature.CitationCounter
	Expander  QueryExpander
	Embedder  model.EmbeddingModel
	Extractor relevance.SectionExtractor
	Scorer    relevance.EntailmentScorer
	Logger    *log.Logger

	// MaxResults applies when a run's FilterSpec leaves it zero.
	MaxResults int

	// Workers bounds concurrent per-document scoring.
	Workers int

	// OverFetchFactor and MinOverFetch size the literature search so that
	// entries dropped for missing abstracts still leave enough candidates.
	OverFetchFactor float64
	MinOverFetch    int

	// FurtherReadsLimit is the result count of the further-reads path.
	FurtherReadsLimit int
}

// New builds a Pipeline from cfg. Zero config values take defaults.
func New(cfg types.PipelineConfig, src literature.Source, cites literature.CitationCounter,
	x QueryExpander, emb model.EmbeddingModel, ext relevance.SectionExtractor,
	sc relevance.EntailmentScorer, logger *log.Logger) *Pipeline {
	return &Pipeline{
		Source:            src,
		Citations:         cites,
		Expander:          x,
		Embedder:          emb,
		Extractor:         ext,
		Scorer:            sc,
		Logger:            logger,
		MaxResults:        cfg.MaxResults,
		Workers:           cfg.Workers,
		OverFetchFactor:   cfg.OverFetchFactor,
		MinOverFetch:      cfg.MinOverFetch,
		FurtherReadsLimit: cfg.FurtherReads,
	}
}

// Result is the outcome of one run.
type Result struct {
	// RunID identifies the run in logs and history.
	RunID string `json:"run_id" yaml:"run_id"`

	Query string `json:"query" yaml:"query"`

	// Term is the expanded search expression sent to the literature source.
	Term string `json:"term" yaml:"term"`

	// Documents is the ranked output.
	Documents []types.ScoredDocument `json:"documents" yaml:"documents"`

	// Candidates counts documents with abstracts before truncation.
	Candidates int `json:"candidates" yaml:"candidates"`

	// Excluded counts documents dropped by per-document scoring failures.
	Excluded int `json:"excluded" yaml:"excluded"`

	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Run executes the full pipeline for query. Search and metadata failures
// abort the run; a scoring failure drops only the affected document.
// The output is sorted by descending overall similarity, ties keeping
// the literature source's order.
func (p *Pipeline) Run(ctx context.Context, query string, f types.FilterSpec) (Result, error) {
	const op = "evidence.run"
	start := time.Now()
	logger := logging.OrDiscard(p.Logger)

	if err := f.Validate(); err != nil {
		return Result{}, errs.E(errs.InvalidFilter, op, err)
	}
	if strings.TrimSpace(query) == "" {
		return Result{}, errs.Ef(errs.InvalidFilter, op, "query is empty")
	}
	n := f.MaxResults
	if n == 0 {
		n = p.MaxResults
	}
	if n <= 0 {
		n = defaultMaxResults
	}

	res := Result{RunID: uuid.NewString(), Query: query}
	logger = logger.With("run", res.RunID)

	term, err := p.expand(ctx, query, f)
	if err != nil {
		return Result{}, err
	}
	res.Term = term
	logger.Info("searching literature", "source", p.Source.Name(), "term", term)

	docs, err := p.candidates(ctx, term, p.retmax(n))
	if err != nil {
		return Result{}, err
	}
	res.Candidates = len(docs)

	ranked, err := p.rank(ctx, query, docs)
	if err != nil {
		return Result{}, err
	}
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	logger.Debug("ranked candidates", "candidates", len(docs), "kept", len(ranked))

	ranked = p.attachCitations(ctx, logger, ranked)
	ranked = filterCitations(ranked, f)

	scored, excluded, err := p.score(ctx, logger, query, ranked)
	if err != nil {
		return Result{}, err
	}
	res.Documents = scored
	res.Excluded = excluded
	res.Elapsed = time.Since(start)
	logger.Info("run complete", "documents", len(scored), "excluded", excluded, "elapsed", res.Elapsed)
	return res, nil
}

// FurtherReads returns a short list of documents in the literature
// source's relevance order. No similarity or sentence scoring is done.
func (p *Pipeline) FurtherReads(ctx context.Context, query string, f types.FilterSpec) (Result, error) {
	const op = "evidence.further_reads"
	start := time.Now()
	logger := logging.OrDiscard(p.Logger)

	if err := f.Validate(); err != nil {
		return Result{}, errs.E(errs.InvalidFilter, op, err)
	}
	n := p.FurtherReadsLimit
	if n <= 0 {
		n = defaultFurtherReads
	}
	res := Result{RunID: uuid.NewString(), Query: query}

	term, err := p.expand(ctx, query, f)
	if err != nil {
		return Result{}, err
	}
	res.Term = term

	docs, err := p.candidates(ctx, term, n)
	if err != nil {
		return Result{}, err
	}
	res.Candidates = len(docs)
	if len(docs) > n {
		docs = docs[:n]
	}

	out := make([]types.ScoredDocument, len(docs))
	for i, d := range docs {
		out[i] = types.ScoredDocument{CandidateDocument: d}
	}
	out = p.attachCitations(ctx, logger.With("run", res.RunID), out)
	res.Documents = filterCitations(out, f)
	res.Elapsed = time.Since(start)
	return res, nil
}

// RelevantSections scores caller-supplied documents against query: the
// overall similarity plus the best-matching sentence. Input order is
// kept; documents without an abstract or whose scoring fails are dropped.
func (p *Pipeline) RelevantSections(ctx context.Context, query string, docs []types.CandidateDocument) ([]types.ScoredDocument, error) {
	logger := logging.OrDiscard(p.Logger)
	var withAbstract []types.CandidateDocument
	for _, d := range docs {
		if d.HasAbstract() {
			withAbstract = append(withAbstract, d)
		}
	}
	sims, err := p.similarities(ctx, query, withAbstract)
	if err != nil {
		return nil, err
	}

	slots := make([]*types.ScoredDocument, len(withAbstract))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for i, d := range withAbstract {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sec, err := p.Extractor.Extract(gctx, query, d.Abstract)
			if err != nil {
				if isCancel(gctx) {
					return err
				}
				logger.Warn("relevant section failed, excluding document", "pmid", d.ID, "err", err)
				return nil
			}
			slots[i] = &types.ScoredDocument{CandidateDocument: d, OverallSimilarity: sims[i], Relevant: &sec}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return collect(slots), nil
}

func (p *Pipeline) expand(ctx context.Context, query string, f types.FilterSpec) (string, error) {
	if p.Expander == nil {
		return strings.TrimSpace(query), nil
	}
	return p.Expander.Expand(ctx, query, f)
}

// retmax over-fetches so that n documents survive the abstract filter.
func (p *Pipeline) retmax(n int) int {
	factor := p.OverFetchFactor
	if factor < 1 {
		factor = defaultOverFetch
	}
	extra := p.MinOverFetch
	if extra <= 0 {
		extra = defaultMinOverFetch
	}
	return max(int(math.Ceil(float64(n)*factor)), n+extra)
}

// candidates searches and fetches metadata, dropping entries without an
// abstract. Zero ids or zero abstracts is NoDocumentsFound.
func (p *Pipeline) candidates(ctx context.Context, term string, retmax int) ([]types.CandidateDocument, error) {
	const op = "evidence.candidates"
	ids, err := p.Source.Search(ctx, term, retmax)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, errs.Ef(errs.NoDocumentsFound, op, "no documents found for %q", term)
	}
	fetched, err := p.Source.FetchMetadata(ctx, ids)
	if err != nil {
		return nil, err
	}
	docs := make([]types.CandidateDocument, 0, len(fetched))
	for _, d := range fetched {
		if d.HasAbstract() {
			docs = append(docs, d)
		}
	}
	if len(docs) == 0 {
		return nil, errs.Ef(errs.NoDocumentsFound, op, "none of %d documents has an abstract", len(fetched))
	}
	return docs, nil
}

// similarities returns the pruned similarity of query to each abstract.
func (p *Pipeline) similarities(ctx context.Context, query string, docs []types.CandidateDocument) ([]float64, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	texts := make([]string, 0, len(docs)+1)
	texts = append(texts, query)
	for _, d := range docs {
		texts = append(texts, d.Abstract)
	}
	vecs, err := model.EmbedAll(ctx, p.Embedder, texts)
	if err != nil {
		return nil, err
	}
	sims := make([]float64, len(docs))
	for i := range docs {
		sims[i] = model.Rescale(model.Cosine(vecs[0], vecs[i+1]), true)
	}
	return sims, nil
}

// rank sorts docs by descending similarity. The sort is stable so ties
// keep source order.
func (p *Pipeline) rank(ctx context.Context, query string, docs []types.CandidateDocument) ([]types.ScoredDocument, error) {
	sims, err := p.similarities(ctx, query, docs)
	if err != nil {
		return nil, err
	}
	out := make([]types.ScoredDocument, len(docs))
	for i, d := range docs {
		out[i] = types.ScoredDocument{CandidateDocument: d, OverallSimilarity: sims[i]}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OverallSimilarity > out[j].OverallSimilarity
	})
	return out, nil
}

// attachCitations sets CitationTotal from one batched lookup. A failed
// lookup is logged and leaves totals at zero.
func (p *Pipeline) attachCitations(ctx context.Context, logger *log.Logger, docs []types.ScoredDocument) []types.ScoredDocument {
	if p.Citations == nil || len(docs) == 0 {
		return docs
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	counts, err := p.Citations.CitationCounts(ctx, ids)
	if err != nil {
		logger.Warn("citation lookup failed, totals default to 0", "err", err)
		return docs
	}
	for i := range docs {
		docs[i].CitationTotal = counts[docs[i].ID]
	}
	return docs
}

func filterCitations(docs []types.ScoredDocument, f types.FilterSpec) []types.ScoredDocument {
	if f.MinCitations == nil && f.MaxCitations == nil {
		return docs
	}
	out := make([]types.ScoredDocument, 0, len(docs))
	for _, d := range docs {
		if f.CitationsInRange(d.CitationTotal) {
			out = append(out, d)
		}
	}
	return out
}

// score runs relevance extraction and entailment scoring per document on
// a bounded worker group. Order of docs is preserved in the output.
func (p *Pipeline) score(ctx context.Context, logger *log.Logger, query string, docs []types.ScoredDocument) ([]types.ScoredDocument, int, error) {
	slots := make([]*types.ScoredDocument, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for i, d := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sd, err := p.scoreOne(gctx, query, d)
			if err != nil {
				if isCancel(gctx) {
					return err
				}
				logger.Warn("scoring failed, excluding document", "pmid", d.ID, "err", err)
				return nil
			}
			slots[i] = &sd
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	out := collect(slots)
	return out, len(docs) - len(out), nil
}

func (p *Pipeline) scoreOne(ctx context.Context, query string, d types.ScoredDocument) (types.ScoredDocument, error) {
	sec, err := p.Extractor.Extract(ctx, query, d.Abstract)
	if err != nil {
		return d, err
	}
	agr, err := p.Scorer.Score(ctx, query, sec.Sentence)
	if err != nil {
		return d, err
	}
	d.Relevant = &sec
	d.Agreeableness = &agr
	return d, nil
}

func (p *Pipeline) workers() int {
	if p.Workers <= 0 {
		return defaultWorkers
	}
	return p.Workers
}

func collect(slots []*types.ScoredDocument) []types.ScoredDocument {
	out := make([]types.ScoredDocument, 0, len(slots))
	for _, s := range slots {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

// isCancel reports whether the run's own ctx has ended. A deadline error
// from one document's HTTP client leaves ctx live and excludes only that
// document.
func isCancel(ctx context.Context) bool {
	return ctx.Err() != nil
}
