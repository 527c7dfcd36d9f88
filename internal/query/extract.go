// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package query

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/pdiddy/evidence-engine/internal/errs"
	"github.com/pdiddy/evidence-engine/internal/logging"
)

// EntityExtractor pulls domain entities out of a hypothesis.
type EntityExtractor interface {
	Entities(ctx context.Context, query string) ([]string, error)
}

// stopwords delimit entity chunks.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "do": true, "does": true, "did": true,
	"have": true, "has": true, "had": true, "be": true, "been": true,
	"being": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "can": true, "shall": true, "not": true,
	"no": true, "and": true, "or": true, "but": true, "if": true,
	"then": true, "than": true, "so": true, "as": true, "at": true,
	"by": true, "for": true, "from": true, "in": true, "into": true,
	"of": true, "on": true, "to": true, "with": true, "about": true,
	"up": true, "out": true, "it": true, "its": true, "this": true,
	"that": true, "what": true, "which": true, "who": true, "how": true,
	"when": true, "where": true, "why": true, "there": true, "their": true,
	"any": true, "some": true, "more": true, "less": true, "very": true,
	"affect": true, "affects": true, "cause": true, "causes": true,
	"increase": true, "increases": true, "reduce": true, "reduces": true,
	"lead": true, "leads": true, "good": true, "bad": true, "effect": true,
	"effects": true, "impact": true, "between": true, "linked": true,
	"associated": true, "related": true,
}

// tokenize returns lowercase letter/digit runs, keeping in-word hyphens.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}

// ChunkExtractor splits a hypothesis into maximal runs of non-stopword
// tokens: "Is prolonged sitting linked to heart disease?" yields
// ["prolonged sitting", "heart disease"].
type ChunkExtractor struct{}

// Entities never fails.
func (ChunkExtractor) Entities(_ context.Context, query string) ([]string, error) {
	var (
		out   []string
		chunk []string
		seen  = map[string]bool{}
	)
	flush := func() {
		if len(chunk) == 0 {
			return
		}
		e := strings.Join(chunk, " ")
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
		chunk = chunk[:0]
	}
	for _, field := range strings.Fields(query) {
		tok := strings.Trim(strings.ToLower(field), ".,;:!?\"'()[]")
		if tok == "" || stopwords[tok] {
			flush()
			continue
		}
		chunk = append(chunk, tok)
		if strings.ContainsAny(field, ",;:!?)") {
			flush()
		}
	}
	flush()
	return out, nil
}

// ChatClient is the chat-completion surface of *openai.Client.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

const entityPrompt = `You are a biomedical entity extractor. Extract the medical entities from the user's research hypothesis: diseases, conditions, exposures, behaviours, interventions, populations, and outcomes.

Return one entity per line, most important first, with no numbering, bullets, or extra text. Use the wording of the hypothesis where possible.`

// LLMExtractor asks a chat model for entities. When the call fails and
// Fallback is set, the fallback's entities are used instead.
type LLMExtractor struct {
	Client   ChatClient
	Model    string
	Fallback EntityExtractor
	Logger   *log.Logger
}

// Entities calls the chat model and parses one entity per line.
func (x *LLMExtractor) Entities(ctx context.Context, query string) ([]string, error) {
	resp, err := x.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       x.Model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: entityPrompt},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
	})
	if err == nil && len(resp.Choices) == 0 {
		err = fmt.Errorf("empty completion")
	}
	if err != nil {
		if x.Fallback != nil && ctx.Err() == nil {
			logging.OrDiscard(x.Logger).Warn("entity extraction failed, using fallback", "err", err)
			return x.Fallback.Entities(ctx, query)
		}
		return nil, errs.E(errs.ExternalService, "query.entities", err)
	}
	return parseEntityLines(resp.Choices[0].Message.Content), nil
}

func parseEntityLines(content string) []string {
	var out []string
	seen := map[string]bool{}
	for _, line := range strings.Split(content, "\n") {
		e := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•0123456789."))
		e = strings.Trim(e, `"'`)
		if e == "" || seen[strings.ToLower(e)] {
			continue
		}
		seen[strings.ToLower(e)] = true
		out = append(out, e)
	}
	return out
}
