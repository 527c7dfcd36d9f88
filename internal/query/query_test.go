// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package query

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/evidence-engine/internal/errs"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

func TestDefaultVocabulary(t *testing.T) {
	v := DefaultVocabulary()
	require.NotEmpty(t, v.Terms)
	for _, term := range v.Terms {
		assert.NotEmpty(t, term.Canonical)
	}
}

func TestParseVocabulary(t *testing.T) {
	v, err := ParseVocabulary([]byte("terms:\n  - canonical: Asthma\n    synonyms: [wheezing]\n"))
	require.NoError(t, err)
	require.Len(t, v.Terms, 1)
	assert.Equal(t, []string{"wheezing"}, v.Terms[0].Synonyms)

	_, err = ParseVocabulary([]byte("terms:\n  - synonyms: [orphan]\n"))
	assert.ErrorContains(t, err, "no canonical name")

	_, err = ParseVocabulary([]byte("terms: [unclosed"))
	assert.Error(t, err)
}

func TestLoadVocabulary(t *testing.T) {
	v, err := LoadVocabulary("")
	require.NoError(t, err)
	assert.Equal(t, DefaultVocabulary(), v)

	path := filepath.Join(t.TempDir(), "vocab.yaml")
	require.NoError(t, os.WriteFile(path, []byte("terms:\n  - canonical: asthma\n"), 0o644))
	v, err = LoadVocabulary(path)
	require.NoError(t, err)
	assert.Equal(t, "asthma", v.Terms[0].Canonical)

	_, err = LoadVocabulary(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLinker(t *testing.T) {
	l := NewLinker(DefaultVocabulary(), 0.7)

	tests := []struct {
		entity string
		want   []string
	}{
		{"sitting", []string{"sedentary behavior"}},
		{"Heart Disease", []string{"cardiovascular diseases"}},
		{"health risks", []string{"risk factors"}},
		{"type 2 diabetes", []string{"diabetes mellitus, type 2"}},
		{"quantum chromodynamics", nil},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.entity, func(t *testing.T) {
			var got []string
			for _, m := range l.Link(tt.entity) {
				got = append(got, m.Term)
				assert.GreaterOrEqual(t, m.Confidence, 0.7)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLinker_ThresholdAndOrdering(t *testing.T) {
	v := &Vocabulary{Terms: []Term{
		{Canonical: "sleep", Synonyms: []string{"sleep duration"}},
		{Canonical: "sleep apnea"},
	}}

	strict := NewLinker(v, 0.9)
	assert.Equal(t, []Mapping{{Term: "sleep", Confidence: 1}}, strict.Link("sleep"))

	loose := NewLinker(v, 0.5)
	got := loose.Link("sleep")
	require.Len(t, got, 2)
	assert.Equal(t, "sleep", got[0].Term)
	assert.Equal(t, "sleep apnea", got[1].Term)
	assert.InDelta(t, 2.0/3.0, got[1].Confidence, 1e-9)
}

func TestChunkExtractor(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"sitting and health risks", []string{"sitting", "health risks"}},
		{"Is prolonged sitting linked to heart disease?", []string{"prolonged sitting", "heart disease"}},
		{"coffee, sleep; and memory", []string{"coffee", "sleep", "memory"}},
		{"the and of", nil},
		{"sitting or sitting", []string{"sitting"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := ChunkExtractor{}.Entities(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type fakeChat struct {
	content string
	err     error
	req     openai.ChatCompletionRequest
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{
		{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: f.content}},
	}}, nil
}

func TestLLMExtractor(t *testing.T) {
	chat := &fakeChat{content: "- prolonged sitting\n- Heart disease\n\n2. heart disease\n"}
	x := &LLMExtractor{Client: chat, Model: "gpt-4o"}

	got, err := x.Entities(context.Background(), "Does sitting cause heart disease?")
	require.NoError(t, err)
	assert.Equal(t, []string{"prolonged sitting", "Heart disease"}, got)
	assert.Equal(t, "gpt-4o", chat.req.Model)
	require.Len(t, chat.req.Messages, 2)
	assert.Equal(t, "Does sitting cause heart disease?", chat.req.Messages[1].Content)
}

func TestLLMExtractor_Failure(t *testing.T) {
	chat := &fakeChat{err: errors.New("503")}

	_, err := (&LLMExtractor{Client: chat, Model: "m"}).Entities(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ExternalService))

	got, err := (&LLMExtractor{Client: chat, Model: "m", Fallback: ChunkExtractor{}}).Entities(context.Background(), "sitting and health risks")
	require.NoError(t, err)
	assert.Equal(t, []string{"sitting", "health risks"}, got)
}

func TestExpand(t *testing.T) {
	x := &Expander{Extractor: ChunkExtractor{}, Linker: NewLinker(DefaultVocabulary(), 0.7)}
	ctx := context.Background()

	tests := []struct {
		name    string
		query   string
		filters types.FilterSpec
		want    string
	}{
		{
			name:  "canonical terms and literal fallback",
			query: "sitting and quantum effects",
			want:  `"sedentary behavior" AND quantum`,
		},
		{
			name:    "publication types are OR-joined, years AND-joined",
			query:   "sitting and health risks",
			filters: types.FilterSpec{PublicationTypes: []string{"Journal Article", "Review"}, MinYear: 2010, MaxYear: 2020},
			want:    `"sedentary behavior" AND "risk factors" AND ("Journal Article"[Publication Type] OR "Review"[Publication Type]) AND 2010:2020[Date - Publication]`,
		},
		{
			name:    "one-sided year bound",
			query:   "coffee",
			filters: types.FilterSpec{MinYear: 2015},
			want:    `coffee AND 2015:3000[Date - Publication]`,
		},
		{
			name:  "no entities keeps literal query",
			query: "what is it",
			want:  "what is it",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := x.Expand(ctx, tt.query, tt.filters)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpand_MultipleMappingsOrJoined(t *testing.T) {
	v := &Vocabulary{Terms: []Term{
		{Canonical: "coffee", Synonyms: []string{"coffee drinking"}},
		{Canonical: "caffeine", Synonyms: []string{"coffee drinking"}},
	}}
	x := &Expander{Extractor: ChunkExtractor{}, Linker: NewLinker(v, 0.7)}
	got, err := x.Expand(context.Background(), "coffee drinking", types.FilterSpec{})
	require.NoError(t, err)
	assert.Equal(t, "(caffeine OR coffee)", got)
}

func TestExpand_ExtractorError(t *testing.T) {
	x := &Expander{Extractor: &LLMExtractor{Client: &fakeChat{err: errors.New("down")}, Model: "m"}}
	_, err := x.Expand(context.Background(), "q", types.FilterSpec{})
	assert.True(t, errs.Is(err, errs.ExternalService))
}

func TestClauses(t *testing.T) {
	assert.Empty(t, PublicationTypeClause(nil))
	assert.Empty(t, PublicationTypeClause([]string{" "}))
	assert.Equal(t, `("Review"[Publication Type])`, PublicationTypeClause([]string{"Review"}))
	assert.Empty(t, DateClause(0, 0))
	assert.Equal(t, "1800:1999[Date - Publication]", DateClause(0, 1999))
}
