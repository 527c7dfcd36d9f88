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

	"github.com/pdiddy/evidence-engine/internal/evidence"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// --- query ---

var queryCmd = &cobra.Command{
	Use:   "query <hypothesis>",
	Short: "Run the evidence pipeline for a hypothesis",
	Long: `Query expands the hypothesis into a literature search expression, fetches
candidate abstracts, ranks them by similarity to the hypothesis, and scores
each one's most relevant sentence for agreement. Documents whose scoring
fails are logged and left out; any literature or model service failure
aborts the run.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if w, _ := cmd.Flags().GetInt("workers"); w > 0 {
		cfg.Pipeline.Workers = w
	}
	f := filterSpecFromFlags(cmd, cfg)
	p, closeFn, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	hypothesis := strings.Join(args, " ")
	res, err := p.Run(cmd.Context(), hypothesis, f)
	if err != nil {
		return err
	}
	logger.Info("run complete", "run", res.RunID, "term", res.Term,
		"candidates", res.Candidates, "excluded", res.Excluded, "elapsed", res.Elapsed)

	if save, _ := cmd.Flags().GetBool("save"); save {
		if err := saveResult(cmd.Context(), cfg, res); err != nil {
			return err
		}
	}
	return writeResults(cmd, os.Stdout, res.Documents)
}

func saveResult(ctx context.Context, cfg types.Config, res evidence.Result) error {
	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	e, err := store.Save(ctx, cfg.History.UserID, res.Query, res.Documents)
	if err != nil {
		return err
	}
	logger.Info("saved to history", "id", e.ID)
	return nil
}

// --- further-reads ---

var furtherReadsCmd = &cobra.Command{
	Use:   "further-reads <hypothesis>",
	Short: "List a few papers in the literature source's relevance order",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if n, _ := cmd.Flags().GetInt("count"); n > 0 {
			cfg.Pipeline.FurtherReads = n
		}
		f := filterSpecFromFlags(cmd, cfg)
		p, closeFn, err := newPipeline(cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		res, err := p.FurtherReads(cmd.Context(), strings.Join(args, " "), f)
		if err != nil {
			return err
		}
		return writeResults(cmd, os.Stdout, res.Documents)
	},
}

// --- sections ---

var sectionsCmd = &cobra.Command{
	Use:   "sections <hypothesis>",
	Short: "Score caller-supplied documents read as JSON from stdin",
	Long: `Sections reads a JSON array of documents (id, title, abstract, year) from
standard input and reports each one's overall similarity and most relevant
sentence. Input order is kept.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		docs, err := readDocuments(cmd.InOrStdin())
		if err != nil {
			return err
		}
		p, closeFn, err := newPipeline(cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		scored, err := p.RelevantSections(cmd.Context(), strings.Join(args, " "), docs)
		if err != nil {
			return err
		}
		return writeResults(cmd, os.Stdout, scored)
	},
}

func readDocuments(r io.Reader) ([]types.CandidateDocument, error) {
	var docs []types.CandidateDocument
	if err := sonic.ConfigStd.NewDecoder(r).Decode(&docs); err != nil {
		return nil, fmt.Errorf("decoding documents: %w", err)
	}
	return docs, nil
}

// --- shared helpers ---

// filterSpecFromFlags builds a FilterSpec from the pipeline flags, with
// config defaults for anything not given.
func filterSpecFromFlags(cmd *cobra.Command, cfg types.Config) types.FilterSpec {
	f := types.FilterSpec{
		PublicationTypes: cfg.Pipeline.PublicationTypes,
		MaxResults:       cfg.Pipeline.MaxResults,
	}
	flags := cmd.Flags()
	if flags.Changed("pub-types") {
		f.PublicationTypes, _ = flags.GetStringSlice("pub-types")
	}
	if flags.Changed("max-results") {
		f.MaxResults, _ = flags.GetInt("max-results")
	}
	f.MinYear, _ = flags.GetInt("min-year")
	f.MaxYear, _ = flags.GetInt("max-year")
	if flags.Changed("min-citations") {
		n, _ := flags.GetInt("min-citations")
		f.MinCitations = &n
	}
	if flags.Changed("max-citations") {
		n, _ := flags.GetInt("max-citations")
		f.MaxCitations = &n
	}
	return f
}

// writeResults renders docs as JSON, YAML, or a table.
func writeResults(cmd *cobra.Command, w io.Writer, docs []types.ScoredDocument) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	yamlOutput, _ := cmd.Flags().GetBool("yaml")
	switch {
	case jsonOutput:
		data, err := types.EncodeResults(docs)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case yamlOutput:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(types.NewResultSet(docs)); err != nil {
			return err
		}
		return enc.Close()
	}

	if len(docs) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}
	fmt.Fprintf(w, "%-4s  %-10s  %-5s  %-6s  %-6s  %-6s  %-5s  %s\n",
		"Rank", "ID", "Year", "Sim", "Agree", "Disagr", "Cites", "Title")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for i, d := range docs {
		r := d.Record()
		fmt.Fprintf(w, "%-4d  %-10s  %-5d  %-6.3f  %-6.3f  %-6.3f  %-5d  %s\n",
			i+1, d.ID, r.Year, r.OverallSimilarity, r.Agree, r.Disagree, r.CitationTotal, truncate(r.Title, 50))
		if r.RelevantSentence != "" {
			fmt.Fprintf(w, "      > %s\n", truncate(r.RelevantSentence, 92))
		}
	}
	fmt.Fprintf(w, "\n%d results\n", len(docs))
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("json", false, "output results as JSON")
	cmd.Flags().Bool("yaml", false, "output results as YAML")
	cmd.MarkFlagsMutuallyExclusive("json", "yaml")
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().Int("max-results", 0, "number of documents to return (0 = config default)")
	cmd.Flags().Int("min-year", 0, "earliest publication year")
	cmd.Flags().Int("max-year", 0, "latest publication year")
	cmd.Flags().StringSlice("pub-types", nil, `publication types, OR-joined (e.g. "journal article,review")`)
	cmd.Flags().Int("min-citations", 0, "minimum citation total")
	cmd.Flags().Int("max-citations", 0, "maximum citation total")
}

func init() {
	addFilterFlags(queryCmd)
	addOutputFlags(queryCmd)
	queryCmd.Flags().Int("workers", 0, "concurrent per-document scorers (0 = config default)")
	queryCmd.Flags().Bool("save", false, "save the result set to history")

	addFilterFlags(furtherReadsCmd)
	addOutputFlags(furtherReadsCmd)
	furtherReadsCmd.Flags().Int("count", 0, "number of papers (0 = config default)")

	addOutputFlags(sectionsCmd)

	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(furtherReadsCmd)
	rootCmd.AddCommand(sectionsCmd)
}
