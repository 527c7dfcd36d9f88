// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/evidence-engine/internal/model"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of evidence-engine",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("evidence-engine %s\n", version)
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			fmt.Printf("embedding variants:  %v\n", model.EmbeddingVariants())
			fmt.Printf("entailment variants: %v\n", model.EntailmentVariants())
		}
	},
}

func init() {
	versionCmd.Flags().BoolP("verbose", "v", false, "also list registered model variants")
	rootCmd.AddCommand(versionCmd)
}
