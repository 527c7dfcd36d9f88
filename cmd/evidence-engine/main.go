// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the evidence-engine CLI.
// Implements: prd001-evidence, prd003-hybrid-search, prd004-literature,
//             prd005-query, prd006-summary (CLI surface).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/evidence-engine/internal/errs"
	"github.com/pdiddy/evidence-engine/internal/logging"
	"github.com/pdiddy/evidence-engine/internal/secrets"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// loadedSecrets holds API keys loaded from .secrets/ at startup.
	loadedSecrets map[string]string

	// configLoaded is set when initConfig found a config file.
	configLoaded bool

	logger = logging.Stderr()
)

// rootCmd is the base command for the evidence-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "evidence-engine",
	Short: "Find and score biomedical literature for a research hypothesis",
	Long: `evidence-engine turns a free-text research hypothesis into a ranked list
of biomedical papers. For each paper it reports the abstract's overall
similarity to the hypothesis, the single most relevant sentence, and how
strongly that sentence agrees with, contradicts, or is neutral toward it.

The query command runs the full pipeline against PubMed (or OpenAlex).
The index command searches a local or Milvus-hosted corpus with hybrid
lexical and vector scoring. Results can be saved to, searched in, and
exported from a local history.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		logger = logging.New(os.Stderr, level)

		dir, _ := cmd.Flags().GetString("secrets-dir")
		s, err := secrets.Load(dir, logger)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.Debug("loaded secrets", "keys", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./evidence-engine.yaml or ~/.config/evidence-engine/config.yaml)")
	rootCmd.PersistentFlags().String("secrets-dir", ".secrets/", "directory of API key files")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("evidence-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "evidence-engine"))
		}
	}

	viper.SetEnvPrefix("EVIDENCE_ENGINE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		configLoaded = true
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// envStrings and envInts are the settings EVIDENCE_ENGINE_<KEY> variables
// may override, e.g. EVIDENCE_ENGINE_LITERATURE_BACKEND=openalex.
var envStrings = map[string]func(*types.Config) *string{
	"literature_backend":         func(c *types.Config) *string { return &c.Literature.Backend },
	"embedding_variant":          func(c *types.Config) *string { return &c.Models.Embedding.Variant },
	"embedding_model":            func(c *types.Config) *string { return &c.Models.Embedding.Model },
	"embedding_endpoint":         func(c *types.Config) *string { return &c.Models.Embedding.Endpoint },
	"entailment_model":           func(c *types.Config) *string { return &c.Models.Entailment.Model },
	"entailment_endpoint":        func(c *types.Config) *string { return &c.Models.Entailment.Endpoint },
	"index_backend":              func(c *types.Config) *string { return &c.Index.Backend },
	"index_corpus_file":          func(c *types.Config) *string { return &c.Index.CorpusFile },
	"index_milvus_address":       func(c *types.Config) *string { return &c.Index.MilvusAddress },
	"cache_redis_address":        func(c *types.Config) *string { return &c.Cache.RedisAddress },
	"history_dir":                func(c *types.Config) *string { return &c.History.Dir },
	"history_user_id":            func(c *types.Config) *string { return &c.History.UserID },
	"summary_model":              func(c *types.Config) *string { return &c.Summary.Model },
	"pipeline_keyword_extractor": func(c *types.Config) *string { return &c.Pipeline.KeywordExtractor },
	"pipeline_vocabulary_file":   func(c *types.Config) *string { return &c.Pipeline.VocabularyFile },
}

var envInts = map[string]func(*types.Config) *int{
	"pipeline_max_results": func(c *types.Config) *int { return &c.Pipeline.MaxResults },
	"pipeline_workers":     func(c *types.Config) *int { return &c.Pipeline.Workers },
	"index_top_k":          func(c *types.Config) *int { return &c.Index.TopK },
}

// loadConfig layers the config file, environment, and secrets over the
// defaults.
func loadConfig() (types.Config, error) {
	cfg := types.DefaultConfig()
	if configLoaded {
		if err := overlaySettings(&cfg, viper.AllSettings()); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", viper.ConfigFileUsed(), err)
		}
	}
	for key, field := range envStrings {
		if v := viper.GetString(key); v != "" {
			*field(&cfg) = v
		}
	}
	for key, field := range envInts {
		if viper.IsSet(key) {
			*field(&cfg) = viper.GetInt(key)
		}
	}
	if viper.IsSet("cache_enabled") {
		cfg.Cache.Enabled = viper.GetBool("cache_enabled")
	}
	secrets.Apply(&cfg, loadedSecrets)
	return cfg, nil
}

// overlaySettings applies the settings viper parsed from the config file
// onto cfg. The settings go back through yaml so the types' yaml tags,
// inline structs, and duration strings decode as written.
func overlaySettings(cfg *types.Config, settings map[string]any) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// exitMessage returns what the user sees for err. Classified errors go
// through errs.PublicMessage; unclassified ones are local (flags, files).
func exitMessage(err error) string {
	var e *errs.Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	return errs.PublicMessage(err)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		logger.Debug("command failed", "err", err)
		fmt.Fprintln(os.Stderr, "Error:", exitMessage(err))
		os.Exit(1)
	}
}
