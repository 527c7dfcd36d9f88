// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/evidence-engine/internal/model"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// corpusFile is the on-disk form of a document corpus.
type corpusFile struct {
	Documents []types.CandidateDocument `json:"documents" yaml:"documents"`
}

// LoadCorpus reads documents from a YAML or JSON file (by extension).
// Documents without an id are rejected.
func LoadCorpus(path string) ([]types.CandidateDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading corpus: %w", err)
	}
	var c corpusFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = sonic.ConfigStd.Unmarshal(data, &c)
	default:
		err = yaml.Unmarshal(data, &c)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing corpus %s: %w", path, err)
	}
	for i, d := range c.Documents {
		if strings.TrimSpace(d.ID) == "" {
			return nil, fmt.Errorf("corpus %s: document %d has no id", path, i)
		}
	}
	return c.Documents, nil
}

// Open returns the index backend named in cfg. The memory backend is
// seeded from cfg.CorpusFile when set. The returned close function is
// never nil.
func Open(ctx context.Context, cfg types.IndexConfig, m model.EmbeddingModel) (HybridIndex, func(), error) {
	switch cfg.Backend {
	case "", "memory":
		idx := NewMemoryIndex(m)
		if cfg.CorpusFile != "" {
			docs, err := LoadCorpus(cfg.CorpusFile)
			if err != nil {
				return nil, nil, err
			}
			if err := idx.Add(ctx, docs...); err != nil {
				return nil, nil, err
			}
		}
		return idx, func() {}, nil
	case "milvus":
		idx, err := NewMilvusIndex(ctx, cfg, m)
		if err != nil {
			return nil, nil, err
		}
		return idx, func() { _ = idx.Close(context.Background()) }, nil
	default:
		return nil, nil, fmt.Errorf("unknown index backend %q (want memory or milvus)", cfg.Backend)
	}
}
