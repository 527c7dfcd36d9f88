// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/evidence-engine/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage saved result sets (list, show, delete, search, export)",
	Long: `History keeps result sets saved with "query --save" in a local SQLite
database, scoped to the configured user. Saved queries are full-text
searchable.`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved result sets, newest first",
	Args:  cobra.NoArgs,
	RunE: withHistory(func(cmd *cobra.Command, store *history.Store, user string, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := store.List(cmd.Context(), user, limit)
		if err != nil {
			return err
		}
		return writeEntries(os.Stdout, entries)
	}),
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one saved result set",
	Args:  cobra.ExactArgs(1),
	RunE: withHistory(func(cmd *cobra.Command, store *history.Store, user string, args []string) error {
		e, err := store.Get(cmd.Context(), user, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s\n%s\n\n", e.ID, e.CreatedAt.Local().Format(time.DateTime), e.Query)
		return writeResults(cmd, os.Stdout, e.Documents)
	}),
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved result set",
	Args:  cobra.ExactArgs(1),
	RunE: withHistory(func(cmd *cobra.Command, store *history.Store, user string, args []string) error {
		if err := store.Delete(cmd.Context(), user, args[0]); err != nil {
			return err
		}
		fmt.Println("Deleted", args[0])
		return nil
	}),
}

var historySearchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Full-text search over saved queries",
	Args:  cobra.MinimumNArgs(1),
	RunE: withHistory(func(cmd *cobra.Command, store *history.Store, user string, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := store.Search(cmd.Context(), user, strings.Join(args, " "), limit)
		if err != nil {
			return err
		}
		return writeEntries(os.Stdout, entries)
	}),
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every saved result set as YAML or JSON",
	Args:  cobra.NoArgs,
	RunE: withHistory(func(cmd *cobra.Command, store *history.Store, user string, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("output")
		if out == "" || out == "-" {
			return store.Export(cmd.Context(), user, format, os.Stdout)
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		if err := store.Export(cmd.Context(), user, format, f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "Exported to", out)
		return nil
	}),
}

// withHistory opens the store for the configured user around fn.
func withHistory(fn func(cmd *cobra.Command, store *history.Store, user string, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if dir, _ := cmd.Flags().GetString("history-dir"); dir != "" {
			cfg.History.Dir = dir
		}
		if user, _ := cmd.Flags().GetString("user"); user != "" {
			cfg.History.UserID = user
		}
		store, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		return fn(cmd, store, cfg.History.UserID, args)
	}
}

func writeEntries(w io.Writer, entries []history.Entry) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No saved result sets.")
		return nil
	}
	fmt.Fprintf(w, "%-36s  %-19s  %-5s  %s\n", "ID", "Saved", "Docs", "Query")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, e := range entries {
		fmt.Fprintf(w, "%-36s  %-19s  %-5d  %s\n",
			e.ID, e.CreatedAt.Local().Format(time.DateTime), len(e.Documents), truncate(e.Query, 40))
	}
	return nil
}

func init() {
	historyCmd.PersistentFlags().String("history-dir", "", "directory holding history.db (default from config)")
	historyCmd.PersistentFlags().String("user", "", "user the entries belong to (default from config)")

	historyListCmd.Flags().Int("limit", 0, "maximum entries (0 = default)")
	historySearchCmd.Flags().Int("limit", 0, "maximum entries (0 = default)")
	addOutputFlags(historyShowCmd)
	historyExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	historyExportCmd.Flags().StringP("output", "o", "", "output file (default stdout)")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historySearchCmd)
	historyCmd.AddCommand(historyExportCmd)

	rootCmd.AddCommand(historyCmd)
}
