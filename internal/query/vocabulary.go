// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package query expands a free-text hypothesis into a structured
// literature-search expression. Implements: prd005-query (R1-R4).
//
// Entities are pulled from the hypothesis, linked to canonical vocabulary
// terms (MeSH headings in the built-in vocabulary) when the link is
// confident, and combined with publication-type and year filters.
package query

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"
)

//go:embed vocabulary.yaml
var defaultVocabularyYAML []byte

// Term is one canonical vocabulary entry.
type Term struct {
	Canonical string   `yaml:"canonical"`
	Synonyms  []string `yaml:"synonyms,omitempty"`

	// Tree is the MeSH tree number, informational only.
	Tree string `yaml:"tree,omitempty"`
}

// Vocabulary is a controlled list of canonical terms.
type Vocabulary struct {
	Terms []Term `yaml:"terms"`
}

// ParseVocabulary decodes a YAML vocabulary and checks that every term has
// a canonical name.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parsing vocabulary: %w", err)
	}
	for i, t := range v.Terms {
		if strings.TrimSpace(t.Canonical) == "" {
			return nil, fmt.Errorf("vocabulary term %d has no canonical name", i)
		}
	}
	return &v, nil
}

// LoadVocabulary reads a YAML vocabulary file. An empty path returns the
// built-in vocabulary.
func LoadVocabulary(path string) (*Vocabulary, error) {
	if path == "" {
		return DefaultVocabulary(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vocabulary %s: %w", path, err)
	}
	return ParseVocabulary(data)
}

// DefaultVocabulary returns the built-in MeSH subset.
func DefaultVocabulary() *Vocabulary {
	v, err := ParseVocabulary(defaultVocabularyYAML)
	if err != nil {
		panic(err)
	}
	return v
}
