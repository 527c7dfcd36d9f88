// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/pdiddy/evidence-engine/internal/summary"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize <hypothesis>",
	Short: "Summarize the evidence for a hypothesis with a chat model",
	Long: `Summarize runs the evidence pipeline (or loads a saved result set with
--entry) and asks the configured chat model for a one-sentence answer plus
findings grouped by theme, citing documents by number. With --per-document
it prints one sentence per document instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSummarize,
}

func runSummarize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	hypothesis := strings.Join(args, " ")

	var scored []types.ScoredDocument
	if id, _ := cmd.Flags().GetString("entry"); id != "" {
		store, err := openHistory(cfg)
		if err != nil {
			return err
		}
		e, err := store.Get(cmd.Context(), cfg.History.UserID, id)
		store.Close()
		if err != nil {
			return err
		}
		scored = e.Documents
	} else {
		p, closeFn, err := newPipeline(cfg)
		if err != nil {
			return err
		}
		res, err := p.Run(cmd.Context(), hypothesis, filterSpecFromFlags(cmd, cfg))
		closeFn()
		if err != nil {
			return err
		}
		scored = res.Documents
	}

	docs := make([]types.CandidateDocument, len(scored))
	for i, d := range scored {
		docs[i] = d.CandidateDocument
	}
	s := newSummarizer(cfg)
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if perDoc, _ := cmd.Flags().GetBool("per-document"); perDoc {
		lines, err := s.DocumentSummaries(cmd.Context(), hypothesis, docs)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(os.Stdout, lines)
		}
		for i, l := range lines {
			fmt.Printf("[%d] %s\n", i+1, l)
		}
		return nil
	}

	sum, err := s.Summarize(cmd.Context(), hypothesis, docs)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(os.Stdout, sum)
	}
	printSummary(os.Stdout, sum, docs)
	return nil
}

func printSummary(w io.Writer, sum summary.Summary, docs []types.CandidateDocument) {
	fmt.Fprintln(w, sum.Answer)
	for _, c := range sum.Categories {
		fmt.Fprintf(w, "\n%s\n", c.Heading)
		for _, p := range c.Points {
			fmt.Fprintf(w, "  - %s\n", p)
		}
	}
	fmt.Fprintln(w, "\nReferences")
	for i, d := range docs {
		fmt.Fprintf(w, "  [%d] %s (%s)\n", i+1, d.Title, d.ID)
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func init() {
	addFilterFlags(summarizeCmd)
	summarizeCmd.Flags().String("entry", "", "summarize a saved history entry instead of running the pipeline")
	summarizeCmd.Flags().Bool("per-document", false, "one sentence per document")
	summarizeCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(summarizeCmd)
}
