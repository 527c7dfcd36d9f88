// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/evidence-engine/internal/literature"
)

var citeCmd = &cobra.Command{
	Use:   "cite <pmid>...",
	Short: "Format PubMed records as citations",
	Long: `Cite fetches the PubMed summary for each PMID and prints it in the chosen
style: bibtex, mla, apa, or csl (CSL-YAML for Pandoc and reference managers).`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		style, _ := cmd.Flags().GetString("style")
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		pm := &literature.PubMed{
			Client: literatureClient(cfg.Literature),
			APIKey: cfg.Literature.PubMedAPIKey,
		}
		for i, pmid := range args {
			d, err := pm.Summary(cmd.Context(), pmid)
			if err != nil {
				return err
			}
			out, err := literature.FormatCitation(style, d)
			if err != nil {
				return err
			}
			if i > 0 {
				fmt.Println()
			}
			fmt.Println(strings.TrimRight(out, "\n"))
		}
		return nil
	},
}

func init() {
	citeCmd.Flags().String("style", "apa", "citation style: "+strings.Join(literature.CitationStyles, ", "))
	rootCmd.AddCommand(citeCmd)
}
