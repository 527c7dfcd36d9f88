// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"math"
	"strings"
	"unicode"
)

// BM25 parameters: term-frequency saturation and length normalization.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// bm25 scores a fixed document set against keyword queries.
type bm25 struct {
	avgLen  float64
	docFreq map[string]int
	tf      []map[string]int
	lengths []int
}

func newBM25(texts []string) *bm25 {
	s := &bm25{
		docFreq: make(map[string]int),
		tf:      make([]map[string]int, len(texts)),
		lengths: make([]int, len(texts)),
	}
	total := 0
	for i, text := range texts {
		terms := tokenize(text)
		s.lengths[i] = len(terms)
		total += len(terms)
		freq := make(map[string]int, len(terms))
		for _, t := range terms {
			freq[t]++
		}
		s.tf[i] = freq
		for t := range freq {
			s.docFreq[t]++
		}
	}
	if len(texts) > 0 {
		s.avgLen = float64(total) / float64(len(texts))
	}
	return s
}

// scores returns one BM25 score per document, in construction order.
func (s *bm25) scores(query string) []float64 {
	n := float64(len(s.tf))
	out := make([]float64, len(s.tf))
	terms := tokenize(query)
	for i, freq := range s.tf {
		docLen := float64(s.lengths[i])
		var score float64
		for _, t := range terms {
			tf, ok := freq[t]
			if !ok {
				continue
			}
			df := float64(s.docFreq[t])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			norm := 1 - bm25B
			if s.avgLen > 0 {
				norm += bm25B * docLen / s.avgLen
			}
			score += idf * (float64(tf) * (bm25K1 + 1)) / (float64(tf) + bm25K1*norm)
		}
		out[i] = score
	}
	return out
}

// tokenize lowercases text and splits on anything that is not a letter
// or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
