// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "evidence-engine/0.1"). Per prd004-literature R5.2.
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// LiteratureConfig holds settings for the literature collaborators.
// Per prd004-literature R1-R5.
type LiteratureConfig struct {
	HTTPConfig `yaml:",inline"`

	// Backend selects the search source: "pubmed" (default) or "openalex".
	Backend string `json:"backend" yaml:"backend"`

	// PubMedAPIKey raises the NCBI rate limit when set.
	PubMedAPIKey string `json:"pubmed_api_key,omitempty" yaml:"pubmed_api_key,omitempty"`

	// OpenAlexEmail is sent as mailto for polite pool access.
	OpenAlexEmail string `json:"openalex_email,omitempty" yaml:"openalex_email,omitempty"`

	// SemanticScholarAPIKey is an optional key for metadata enrichment.
	SemanticScholarAPIKey string `json:"semantic_scholar_api_key,omitempty" yaml:"semantic_scholar_api_key,omitempty"`

	// RequestSpacing is the minimum delay between calls to one rate-limited
	// endpoint (default 1s). Per prd001-evidence R5.2.
	RequestSpacing time.Duration `json:"request_spacing" yaml:"request_spacing"`

	// MaxRetries bounds 429 retries (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// EmbeddingConfig selects and configures an embedding model variant.
type EmbeddingConfig struct {
	// Variant is the registry name: "openai", "tei", or "hashing".
	Variant string `json:"variant" yaml:"variant"`

	// Model is the provider model name (e.g. "text-embedding-3-small").
	Model string `json:"model" yaml:"model"`

	// Endpoint is the base URL for HTTP-served variants.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// APIKey authenticates against the provider.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Dimensions is the vector length for variants that accept it.
	Dimensions int `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
}

// EntailmentConfig selects and configures an entailment model variant.
type EntailmentConfig struct {
	// Variant is the registry name: "hf".
	Variant string `json:"variant" yaml:"variant"`

	// Model is the model name (e.g. "tasksource/deberta-base-long-nli").
	Model string `json:"model" yaml:"model"`

	// Endpoint is the inference endpoint base URL.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// APIKey authenticates against the inference endpoint.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// PairOrder is "premise-first" or "query-separator". Per prd002-relevance R2.2.
	PairOrder string `json:"pair_order" yaml:"pair_order"`
}

// ModelConfig groups the two model configurations.
type ModelConfig struct {
	HTTPConfig `yaml:",inline"`

	// RequestSpacing is the minimum delay between calls to one model
	// endpoint (default 0, unthrottled).
	RequestSpacing time.Duration `json:"request_spacing" yaml:"request_spacing"`

	Embedding  EmbeddingConfig  `json:"embedding" yaml:"embedding"`
	Entailment EntailmentConfig `json:"entailment" yaml:"entailment"`
}

// PipelineConfig holds settings for the evidence pipeline. Per prd001-evidence R4.
type PipelineConfig struct {
	// MaxResults is the default result count (default 20).
	MaxResults int `json:"max_results" yaml:"max_results"`

	// OverFetchFactor multiplies MaxResults for the literature search (default 1.5).
	OverFetchFactor float64 `json:"over_fetch_factor" yaml:"over_fetch_factor"`

	// MinOverFetch is the minimum number of extra candidates requested (default 10).
	MinOverFetch int `json:"min_over_fetch" yaml:"min_over_fetch"`

	// Workers bounds concurrent per-document scoring (default 4).
	Workers int `json:"workers" yaml:"workers"`

	// FurtherReads is the result count of the further-reads path (default 5).
	FurtherReads int `json:"further_reads" yaml:"further_reads"`

	// MappingThreshold is the minimum vocabulary-mapping confidence (default 0.7).
	MappingThreshold float64 `json:"mapping_threshold" yaml:"mapping_threshold"`

	// VocabularyFile is a YAML file of canonical terms and synonyms.
	VocabularyFile string `json:"vocabulary_file,omitempty" yaml:"vocabulary_file,omitempty"`

	// KeywordExtractor is "chunk" (default) or "llm".
	KeywordExtractor string `json:"keyword_extractor" yaml:"keyword_extractor"`

	// PublicationTypes is the default publication-type filter.
	PublicationTypes []string `json:"publication_types" yaml:"publication_types"`
}

// IndexConfig holds settings for the hybrid search backend. Per prd003-hybrid-search R1.
type IndexConfig struct {
	// Backend is "memory" (default) or "milvus".
	Backend string `json:"backend" yaml:"backend"`

	// CorpusFile is a YAML list of documents loaded into the memory index.
	CorpusFile string `json:"corpus_file,omitempty" yaml:"corpus_file,omitempty"`

	MilvusAddress  string `json:"milvus_address,omitempty" yaml:"milvus_address,omitempty"`
	MilvusDatabase string `json:"milvus_database,omitempty" yaml:"milvus_database,omitempty"`
	MilvusToken    string `json:"milvus_token,omitempty" yaml:"milvus_token,omitempty"`
	Collection     string `json:"collection" yaml:"collection"`

	// Alpha blends lexical (0) and vector (1) scoring (default 0.5).
	Alpha float64 `json:"alpha" yaml:"alpha"`

	// TopK is the default result count (default 5).
	TopK int `json:"top_k" yaml:"top_k"`

	// Enrich fetches citation/reference counts from Semantic Scholar before post-filtering.
	Enrich bool `json:"enrich" yaml:"enrich"`
}

// CacheConfig holds settings for the Redis relevance cache.
type CacheConfig struct {
	// Enabled turns on caching of relevance and entailment results.
	Enabled bool `json:"enabled" yaml:"enabled"`

	RedisAddress  string `json:"redis_address" yaml:"redis_address"`
	RedisPassword string `json:"redis_password,omitempty" yaml:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db"`

	// TTL is the entry lifetime (default 24h).
	TTL time.Duration `json:"ttl" yaml:"ttl"`
}

// HistoryConfig holds settings for the search-history store.
type HistoryConfig struct {
	// Dir is the directory holding history.db (default "history").
	Dir string `json:"dir" yaml:"dir"`

	// UserID scopes entries when the CLI runs on behalf of one researcher.
	UserID string `json:"user_id" yaml:"user_id"`
}

// AIConfig holds shared settings for stages that call a chat-completion API.
type AIConfig struct {
	// Model is the chat model identifier (e.g. "gpt-4o").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BaseURL overrides the API base URL for compatible providers.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// SummaryConfig holds settings for chat-completion summarization.
type SummaryConfig struct {
	AIConfig `yaml:",inline"`

	Temperature float32 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
}

// Config groups all stage configurations.
type Config struct {
	Literature LiteratureConfig `json:"literature" yaml:"literature"`
	Models     ModelConfig      `json:"models" yaml:"models"`
	Pipeline   PipelineConfig   `json:"pipeline" yaml:"pipeline"`
	Index      IndexConfig      `json:"index" yaml:"index"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	History    HistoryConfig    `json:"history" yaml:"history"`
	Summary    SummaryConfig    `json:"summary" yaml:"summary"`
}

// DefaultConfig returns the configuration used when no file or flag overrides a value.
func DefaultConfig() Config {
	http := HTTPConfig{Timeout: 30 * time.Second, UserAgent: "evidence-engine/0.1"}
	return Config{
		Literature: LiteratureConfig{
			HTTPConfig:     http,
			Backend:        "pubmed",
			RequestSpacing: time.Second,
			MaxRetries:     5,
		},
		Models: ModelConfig{
			HTTPConfig: http,
			Embedding: EmbeddingConfig{
				Variant: "openai",
				Model:   "text-embedding-3-small",
			},
			Entailment: EntailmentConfig{
				Variant:   "hf",
				Model:     "tasksource/deberta-base-long-nli",
				Endpoint:  "https://api-inference.huggingface.co/models",
				PairOrder: "premise-first",
			},
		},
		Pipeline: PipelineConfig{
			MaxResults:       20,
			OverFetchFactor:  1.5,
			MinOverFetch:     10,
			Workers:          4,
			FurtherReads:     5,
			MappingThreshold: 0.7,
			KeywordExtractor: "chunk",
			PublicationTypes: []string{"journal article", "review"},
		},
		Index: IndexConfig{
			Backend:    "memory",
			Collection: "documents",
			Alpha:      0.5,
			TopK:       5,
		},
		Cache: CacheConfig{
			RedisAddress: "localhost:6379",
			TTL:          24 * time.Hour,
		},
		History: HistoryConfig{Dir: "history", UserID: "local"},
		Summary: SummaryConfig{
			AIConfig:    AIConfig{Model: "gpt-4o", MaxRetries: 3},
			Temperature: 0.5,
			MaxTokens:   800,
		},
	}
}
