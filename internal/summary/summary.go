// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package summary turns a result set into prose with a chat-completion
// model: an overall answer grouped by theme, and one line per document.
// Implements: prd006-summary (R1-R3).
package summary

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/pdiddy/evidence-engine/internal/errs"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// ChatClient is the chat-completion surface of *openai.Client.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// NewClient returns a go-openai client for cfg.
func NewClient(cfg types.SummaryConfig, httpClient *http.Client) *openai.Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if httpClient != nil {
		oc.HTTPClient = httpClient
	}
	return openai.NewClientWithConfig(oc)
}

// Summarizer calls a chat model over a set of documents.
type Summarizer struct {
	Client      ChatClient
	Model       string
	Temperature float32
	MaxTokens   int
	MaxRetries  int
}

// New returns a Summarizer configured from cfg.
func New(cfg types.SummaryConfig, client ChatClient) *Summarizer {
	return &Summarizer{
		Client:      client,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		MaxRetries:  cfg.MaxRetries,
	}
}

// Summary is the parsed overview.
type Summary struct {
	// Answer is the one-sentence answer to the query.
	Answer string `json:"answer" yaml:"answer"`

	Categories []Category `json:"categories" yaml:"categories"`

	// Raw is the unparsed model output.
	Raw string `json:"raw" yaml:"raw"`
}

// Category is one ### group of findings.
type Category struct {
	Heading string   `json:"heading" yaml:"heading"`
	Points  []string `json:"points" yaml:"points"`
}

// Summarize answers query from docs and groups the findings by theme.
func (s *Summarizer) Summarize(ctx context.Context, query string, docs []types.CandidateDocument) (Summary, error) {
	raw, err := s.complete(ctx, "summary.overview", overviewSystemPrompt, query, docs)
	if err != nil {
		return Summary{}, err
	}
	return ParseSummary(raw), nil
}

// DocumentSummaries returns one sentence per document relating it to
// query, in the order the model numbered them.
func (s *Summarizer) DocumentSummaries(ctx context.Context, query string, docs []types.CandidateDocument) ([]string, error) {
	raw, err := s.complete(ctx, "summary.documents", perDocumentSystemPrompt, query, docs)
	if err != nil {
		return nil, err
	}
	return ParseDocumentSummaries(raw), nil
}

// backoffBase controls the base duration for exponential backoff. Tests
// override this to avoid real sleeps.
var backoffBase = time.Second

func (s *Summarizer) complete(ctx context.Context, op, system, query string, docs []types.CandidateDocument) (string, error) {
	if len(docs) == 0 {
		return "", errs.Ef(errs.NoDocumentsFound, op, "no documents to summarize")
	}
	user, err := userPrompt(query, docs)
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	req := openai.ChatCompletionRequest{
		Model:       s.Model,
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= s.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
		resp, err := s.Client.CreateChatCompletion(ctx, req)
		if err == nil && len(resp.Choices) == 0 {
			err = fmt.Errorf("empty completion")
		}
		if err == nil {
			return resp.Choices[0].Message.Content, nil
		}
		lastErr = err
	}
	return "", errs.E(errs.ExternalService, op, fmt.Errorf("after %d retries: %w", s.MaxRetries, lastErr))
}

// ParseSummary splits model output into the answer (text before the
// first ### heading) and its categories. Bullets lose their "- " marker.
func ParseSummary(raw string) Summary {
	out := Summary{Raw: raw}
	var answer []string
	var cur *Category
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#"):
			out.Categories = append(out.Categories, Category{Heading: strings.TrimSpace(strings.TrimLeft(line, "#"))})
			cur = &out.Categories[len(out.Categories)-1]
		case cur == nil:
			answer = append(answer, line)
		default:
			point := strings.TrimSpace(strings.TrimLeft(line, "-*•"))
			if point != "" {
				cur.Points = append(cur.Points, point)
			}
		}
	}
	out.Answer = strings.Join(answer, " ")
	return out
}

// ParseDocumentSummaries keeps the text after the first colon of every
// line starting with "Document".
func ParseDocumentSummaries(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Document") {
			continue
		}
		_, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if rest = strings.TrimSpace(rest); rest != "" {
			out = append(out, rest)
		}
	}
	return out
}
