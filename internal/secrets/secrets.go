// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys and credentials from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key name and the
// file contents (trimmed) are the value.
//
// Supported key files: pubmed-api-key, openai-api-key, semantic-scholar-api-key,
// hf-api-token, openalex-email, milvus-token, redis-password.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/pdiddy/evidence-engine/internal/logging"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Key file names.
const (
	PubMedAPIKey          = "pubmed-api-key"
	OpenAIAPIKey          = "openai-api-key"
	SemanticScholarAPIKey = "semantic-scholar-api-key"
	HFAPIToken            = "hf-api-token"
	OpenAlexEmail         = "openalex-email"
	MilvusToken           = "milvus-token"
	RedisPassword         = "redis-password"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files are logged as warnings but do not abort.
func Load(dir string, logger *log.Logger) (map[string]string, error) {
	logger = logging.OrDiscard(logger)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("could not read secret", "name", name, "err", err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// Apply copies secrets into the config fields they authenticate. Values
// already set (from the config file, env, or flags) take precedence.
// The OpenAI key serves both the embedding variant and summarization.
func Apply(cfg *types.Config, s map[string]string) {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = s[key]
		}
	}

	fill(&cfg.Literature.PubMedAPIKey, PubMedAPIKey)
	fill(&cfg.Literature.SemanticScholarAPIKey, SemanticScholarAPIKey)
	fill(&cfg.Literature.OpenAlexEmail, OpenAlexEmail)
	fill(&cfg.Index.MilvusToken, MilvusToken)
	fill(&cfg.Cache.RedisPassword, RedisPassword)
	fill(&cfg.Summary.APIKey, OpenAIAPIKey)
	fill(&cfg.Models.Entailment.APIKey, HFAPIToken)

	switch cfg.Models.Embedding.Variant {
	case "openai":
		fill(&cfg.Models.Embedding.APIKey, OpenAIAPIKey)
	case "tei":
		fill(&cfg.Models.Embedding.APIKey, HFAPIToken)
	}
}
