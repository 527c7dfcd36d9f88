// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/evidence-engine/internal/errs"
	"github.com/pdiddy/evidence-engine/internal/index"
	"github.com/pdiddy/evidence-engine/internal/model"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Hybrid lexical and vector search over a document corpus",
	Long: `Index searches a corpus held in memory (seeded from a YAML or JSON file) or
in a Milvus collection. Scores blend BM25 and embedding similarity; date
bounds are applied inside the index and citation, reference, and journal
bounds are applied to the returned hits.`,
}

// --- load subcommand ---

// adder is implemented by every index backend.
type adder interface {
	Add(ctx context.Context, docs ...types.CandidateDocument) error
}

var indexLoadCmd = &cobra.Command{
	Use:   "load <corpus-file>",
	Short: "Embed and insert a corpus file into the configured index",
	Long: `Load embeds every document in a YAML or JSON corpus file and inserts it
into the configured index. The memory backend lives only for one process,
so there load just checks that the corpus embeds; pass --corpus to
"index search" instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		docs, err := index.LoadCorpus(args[0])
		if err != nil {
			return err
		}
		emb, err := model.NewEmbedding(cfg.Models.Embedding, model.NewClient(cfg.Models))
		if err != nil {
			return err
		}
		cfg.Index.CorpusFile = ""
		idx, closeFn, err := index.Open(cmd.Context(), cfg.Index, emb)
		if err != nil {
			return err
		}
		defer closeFn()

		a, ok := idx.(adder)
		if !ok {
			return fmt.Errorf("index backend %q does not accept documents", cfg.Index.Backend)
		}
		if err := a.Add(cmd.Context(), docs...); err != nil {
			return err
		}
		fmt.Printf("Loaded %d documents into the %s index (%s)\n", len(docs), backendName(cfg.Index), emb.Identifier())
		return nil
	},
}

func backendName(cfg types.IndexConfig) string {
	if cfg.Backend == "" {
		return "memory"
	}
	return cfg.Backend
}

// --- search subcommand ---

var indexSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a filtered hybrid search",
	Long: `Search ranks corpus documents against the query. Filters are given as
repeated --filter key=value pairs:

  min_citations, max_citations, min_references, max_references,
  published_after, published_before (years), journals (comma-separated)

Malformed filters fail before the index is queried.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndexSearch,
}

func runIndexSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if corpus, _ := cmd.Flags().GetString("corpus"); corpus != "" {
		cfg.Index.CorpusFile = corpus
	}
	raw, _ := cmd.Flags().GetStringArray("filter")
	f, err := filterFromPairs(raw)
	if err != nil {
		return err
	}
	alpha := cfg.Index.Alpha
	if cmd.Flags().Changed("alpha") {
		alpha, _ = cmd.Flags().GetFloat64("alpha")
	}
	topK := cfg.Index.TopK
	if cmd.Flags().Changed("top-k") {
		topK, _ = cmd.Flags().GetInt("top-k")
	}
	offset, _ := cmd.Flags().GetInt("offset")
	if enrich, _ := cmd.Flags().GetBool("enrich"); enrich {
		cfg.Index.Enrich = true
	}

	s, closeFn, err := newSearcher(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	hits, err := s.Search(cmd.Context(), strings.Join(args, " "), f, alpha, topK, offset)
	if err != nil {
		return err
	}
	return writeHits(cmd, os.Stdout, hits)
}

// filterFromPairs parses key=value strings into a DocumentFilter.
func filterFromPairs(pairs []string) (types.DocumentFilter, error) {
	raw := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return types.DocumentFilter{}, errs.Ef(errs.InvalidFilter, "index.parse_filter", "filter %q: want key=value", p)
		}
		raw[strings.TrimSpace(k)] = v
	}
	return index.ParseFilter(raw)
}

func writeHits(cmd *cobra.Command, w io.Writer, hits []types.Hit) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	yamlOutput, _ := cmd.Flags().GetBool("yaml")
	switch {
	case jsonOutput:
		data, err := sonic.ConfigStd.MarshalIndent(hits, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case yamlOutput:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(hits); err != nil {
			return err
		}
		return enc.Close()
	}

	if len(hits) == 0 {
		fmt.Fprintln(w, "No results matched the filters.")
		return nil
	}
	fmt.Fprintf(w, "%-4s  %-6s  %-12s  %-5s  %-5s  %s\n", "Rank", "Score", "ID", "Year", "Cites", "Title")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for i, h := range hits {
		d := h.Document
		fmt.Fprintf(w, "%-4d  %-6.3f  %-12s  %-5d  %-5d  %s\n",
			i+1, h.Score, truncate(d.ID, 12), d.Year, d.CitationCount, truncate(d.Title, 50))
	}
	fmt.Fprintf(w, "\n%d results\n", len(hits))
	return nil
}

func init() {
	indexSearchCmd.Flags().StringArray("filter", nil, "filter as key=value (repeatable)")
	indexSearchCmd.Flags().Float64("alpha", 0, "blend of lexical (0) and vector (1) scoring (default from config)")
	indexSearchCmd.Flags().Int("top-k", 0, "number of results (default from config)")
	indexSearchCmd.Flags().Int("offset", 0, "number of results to skip")
	indexSearchCmd.Flags().String("corpus", "", "corpus file for the memory backend")
	indexSearchCmd.Flags().Bool("enrich", false, "fetch citation and reference counts from Semantic Scholar")
	addOutputFlags(indexSearchCmd)

	indexCmd.AddCommand(indexLoadCmd)
	indexCmd.AddCommand(indexSearchCmd)

	rootCmd.AddCommand(indexCmd)
}
