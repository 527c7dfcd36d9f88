// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/hnsw"

	"github.com/pdiddy/evidence-engine/internal/model"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// vectorCandidates widens the HNSW search so that pre-filtering still
// leaves enough vector hits for the requested page.
const vectorCandidates = 4

// MemoryIndex is a HybridIndex held in process. Vectors live in an HNSW
// graph; the lexical side is BM25 over title and abstract, rebuilt when
// documents are added.
type MemoryIndex struct {
	embedder model.EmbeddingModel

	mu    sync.RWMutex
	graph *hnsw.Graph[string]
	docs  map[string]types.CandidateDocument
	vecs  map[string][]float64
	order []string
	lex   *bm25
}

// NewMemoryIndex returns an empty index embedding with m.
func NewMemoryIndex(m model.EmbeddingModel) *MemoryIndex {
	g := hnsw.NewGraph[string]()
	g.Distance = hnsw.CosineDistance
	return &MemoryIndex{
		embedder: m,
		graph:    g,
		docs:     make(map[string]types.CandidateDocument),
		vecs:     make(map[string][]float64),
	}
}

// Len returns the number of indexed documents.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Add embeds and indexes docs. Re-adding an id replaces its record but
// keeps its original position for tie-breaking.
func (m *MemoryIndex) Add(ctx context.Context, docs ...types.CandidateDocument) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = documentText(d)
	}
	vecs, err := model.EmbedAll(ctx, m.embedder, texts)
	if err != nil {
		return fmt.Errorf("embedding documents: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("document %d has no id", i)
		}
		d.EmbeddingModel = m.embedder.Identifier()
		if _, ok := m.docs[d.ID]; ok {
			m.graph.Delete(d.ID)
		} else {
			m.order = append(m.order, d.ID)
		}
		m.docs[d.ID] = d
		m.vecs[d.ID] = vecs[i]
		m.graph.Add(hnsw.MakeNode(d.ID, toFloat32(vecs[i])))
	}
	m.lex = nil
	return nil
}

// Get returns the document with id, or ErrNotFound.
func (m *MemoryIndex) Get(_ context.Context, id string) (types.CandidateDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	if !ok {
		return types.CandidateDocument{}, ErrNotFound
	}
	return d, nil
}

// HybridSearch scores pre-filtered documents lexically and by vector
// similarity and returns the fused page.
func (m *MemoryIndex) HybridSearch(ctx context.Context, q HybridQuery) ([]types.Hit, error) {
	qvec, err := m.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	want := q.EmbeddingModel
	if want == "" {
		want = m.embedder.Identifier()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lex == nil {
		texts := make([]string, len(m.order))
		for i, id := range m.order {
			texts[i] = documentText(m.docs[id])
		}
		m.lex = newBM25(texts)
	}

	nearest := make(map[string]bool)
	if n := m.graph.Len(); n > 0 {
		k := min(n, max(q.Limit+q.Offset, 1)*vectorCandidates)
		for _, node := range m.graph.Search(toFloat32(qvec), k) {
			nearest[node.Key] = true
		}
	}

	lexScores := m.lex.scores(q.Text)
	var cands []candidate
	for i, id := range m.order {
		d := m.docs[id]
		if d.EmbeddingModel != want || !q.Filter.MatchesPre(d) {
			continue
		}
		c := candidate{doc: d, lex: lexScores[i]}
		if nearest[id] {
			c.vec = model.Cosine(qvec, m.vecs[id])
			c.hasVec = true
		}
		if c.hasVec || c.lex > 0 {
			cands = append(cands, c)
		}
	}
	return page(fuse(cands, q.Alpha), q.Offset, q.Limit), nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
