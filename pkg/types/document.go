// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the evidence-engine pipeline.
// Implements: prd001-evidence (CandidateDocument, ScoredDocument, R3.1-R3.5);
//
//	prd002-relevance (RelevantSection, Agreeableness);
//	prd003-hybrid-search (DocumentFilter, Hit).
package types

import "time"

// CandidateDocument is a bibliographic record fetched from a literature
// source. It lives for one pipeline invocation. Per prd001-evidence R3.1.
type CandidateDocument struct {
	// ID is the external bibliographic identifier (a PMID for PubMed).
	ID string `json:"id" yaml:"id"`

	// Title is the article title.
	Title string `json:"title" yaml:"title"`

	// Abstract is the full abstract text. Labelled sections are joined as
	// "LABEL: text".
	Abstract string `json:"abstract" yaml:"abstract"`

	// Year is the publication year, zero when unknown.
	Year int `json:"year" yaml:"year"`

	// PublicationDate is the most precise publication date available.
	PublicationDate time.Time `json:"publication_date,omitzero" yaml:"publication_date,omitempty"`

	// Journal is the full journal name.
	Journal string `json:"journal,omitempty" yaml:"journal,omitempty"`

	// Authors lists author display names in source order.
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`

	// CitationCount is the number of works citing this one, when known.
	CitationCount int `json:"citation_count" yaml:"citation_count"`

	// ReferenceCount is the number of works this one cites, when known.
	ReferenceCount int `json:"reference_count" yaml:"reference_count"`

	// EmbeddingModel identifies the model that produced the stored vector
	// (hybrid index path only).
	EmbeddingModel string `json:"embedding_model,omitempty" yaml:"embedding_model,omitempty"`

	// Source names the collaborator that produced the record ("pubmed", "openalex", "index").
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}

// HasAbstract reports whether the document carries any abstract text.
func (d CandidateDocument) HasAbstract() bool {
	for _, r := range d.Abstract {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return true
		}
	}
	return false
}

// RelevantSection is the abstract sentence that best matches a query.
// The sentence is the first maximum over all split sentences. Per prd002-relevance R1.
type RelevantSection struct {
	// EmbeddingModel is the identifier of the model that scored the sentences.
	EmbeddingModel string `json:"embedding_model" yaml:"embedding_model"`

	// Sentence is the winning sentence.
	Sentence string `json:"most_relevant_sentence" yaml:"most_relevant_sentence"`

	// Score is the unpruned similarity of Sentence to the query, in [0,1].
	Score float64 `json:"similarity_score" yaml:"similarity_score"`
}

// Agreeableness holds the entailment distribution for a query and its
// relevant sentence. Agree+Disagree+Neutral is within 1±0.01. Per prd002-relevance R2.
type Agreeableness struct {
	// EntailmentModel is the identifier of the model that produced the distribution.
	EntailmentModel string `json:"entailment_model" yaml:"entailment_model"`

	Agree    float64 `json:"agree" yaml:"agree"`
	Disagree float64 `json:"disagree" yaml:"disagree"`
	Neutral  float64 `json:"neutral" yaml:"neutral"`
}

// ScoredDocument is the unit returned to callers of the pipeline.
// Per prd001-evidence R3.4.
type ScoredDocument struct {
	CandidateDocument `yaml:",inline"`

	// OverallSimilarity is the pruned query/abstract similarity used for
	// ranking. Zero on paths without a global similarity (further reads).
	OverallSimilarity float64 `json:"overall_similarity" yaml:"overall_similarity"`

	// Relevant is the best-matching abstract sentence. Nil on paths that
	// skip sentence scoring.
	Relevant *RelevantSection `json:"relevant_section,omitempty" yaml:"relevant_section,omitempty"`

	// Agreeableness is the entailment distribution for Relevant.
	Agreeableness *Agreeableness `json:"agreeableness,omitempty" yaml:"agreeableness,omitempty"`

	// CitationTotal is the citation count from the citation collaborator.
	CitationTotal int `json:"citation_total" yaml:"citation_total"`
}

// Hit is one ranked result of the hybrid search path.
type Hit struct {
	// Score is the fused lexical/vector score.
	Score float64 `json:"score" yaml:"score"`

	// Document is the matching record.
	Document CandidateDocument `json:"document" yaml:"document"`
}
