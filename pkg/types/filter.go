// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
)

// DocumentFilter holds optional bounds for the hybrid search path.
// Date bounds are pre-filters pushed to the index; citation, reference,
// and journal bounds are post-filters applied in process because the
// index does not carry them. A nil bound is inactive. Per prd003-hybrid-search R2.
type DocumentFilter struct {
	MinCitations  *int `json:"min_citations,omitempty" yaml:"min_citations,omitempty"`
	MaxCitations  *int `json:"max_citations,omitempty" yaml:"max_citations,omitempty"`
	MinReferences *int `json:"min_references,omitempty" yaml:"min_references,omitempty"`
	MaxReferences *int `json:"max_references,omitempty" yaml:"max_references,omitempty"`

	// Journals is an allow-list of journal names. Empty means any journal.
	Journals []string `json:"journals,omitempty" yaml:"journals,omitempty"`

	// PublishedAfter and PublishedBefore are inclusive publication-year bounds.
	PublishedAfter  *int `json:"published_after,omitempty" yaml:"published_after,omitempty"`
	PublishedBefore *int `json:"published_before,omitempty" yaml:"published_before,omitempty"`
}

// Validate reports malformed bounds: negative counts, inverted ranges,
// implausible years, or blank journal names.
func (f DocumentFilter) Validate() error {
	for _, b := range []struct {
		name string
		v    *int
	}{
		{"min_citations", f.MinCitations},
		{"max_citations", f.MaxCitations},
		{"min_references", f.MinReferences},
		{"max_references", f.MaxReferences},
	} {
		if b.v != nil && *b.v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", b.name, *b.v)
		}
	}
	if f.MinCitations != nil && f.MaxCitations != nil && *f.MinCitations > *f.MaxCitations {
		return fmt.Errorf("min_citations %d exceeds max_citations %d", *f.MinCitations, *f.MaxCitations)
	}
	if f.MinReferences != nil && f.MaxReferences != nil && *f.MinReferences > *f.MaxReferences {
		return fmt.Errorf("min_references %d exceeds max_references %d", *f.MinReferences, *f.MaxReferences)
	}
	for _, y := range []*int{f.PublishedAfter, f.PublishedBefore} {
		if y != nil && (*y < 1000 || *y > 9999) {
			return fmt.Errorf("publication year %d is not a four-digit year", *y)
		}
	}
	if f.PublishedAfter != nil && f.PublishedBefore != nil && *f.PublishedAfter > *f.PublishedBefore {
		return fmt.Errorf("published_after %d is later than published_before %d", *f.PublishedAfter, *f.PublishedBefore)
	}
	for _, j := range f.Journals {
		if strings.TrimSpace(j) == "" {
			return fmt.Errorf("journal names must not be blank")
		}
	}
	return nil
}

// HasPostFilters reports whether any in-process bound is active.
func (f DocumentFilter) HasPostFilters() bool {
	return f.MinCitations != nil || f.MaxCitations != nil ||
		f.MinReferences != nil || f.MaxReferences != nil || len(f.Journals) > 0
}

// MatchesPre reports whether a document satisfies the pre-filter bounds.
// Documents without a known year pass the date bounds.
func (f DocumentFilter) MatchesPre(d CandidateDocument) bool {
	if d.Year == 0 {
		return true
	}
	if f.PublishedAfter != nil && d.Year < *f.PublishedAfter {
		return false
	}
	if f.PublishedBefore != nil && d.Year > *f.PublishedBefore {
		return false
	}
	return true
}

// MatchesPost reports whether a document satisfies every active post-filter bound.
func (f DocumentFilter) MatchesPost(d CandidateDocument) bool {
	if f.MinCitations != nil && d.CitationCount < *f.MinCitations {
		return false
	}
	if f.MaxCitations != nil && d.CitationCount > *f.MaxCitations {
		return false
	}
	if f.MinReferences != nil && d.ReferenceCount < *f.MinReferences {
		return false
	}
	if f.MaxReferences != nil && d.ReferenceCount > *f.MaxReferences {
		return false
	}
	if len(f.Journals) > 0 {
		found := false
		for _, j := range f.Journals {
			if strings.EqualFold(strings.TrimSpace(j), strings.TrimSpace(d.Journal)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// FilterSpec holds the pipeline's search filters. Per prd001-evidence R4.1.
type FilterSpec struct {
	// PublicationTypes restricts PubMed publication types (e.g. "journal article", "review").
	PublicationTypes []string `json:"publication_types,omitempty" yaml:"publication_types,omitempty"`

	// MinYear and MaxYear bound the publication year; zero is unbounded.
	MinYear int `json:"min_year,omitempty" yaml:"min_year,omitempty"`
	MaxYear int `json:"max_year,omitempty" yaml:"max_year,omitempty"`

	// MaxResults is the number of scored documents to return.
	MaxResults int `json:"max_results" yaml:"max_results"`

	// MinCitations and MaxCitations bound the citation total after enrichment.
	MinCitations *int `json:"min_citations,omitempty" yaml:"min_citations,omitempty"`
	MaxCitations *int `json:"max_citations,omitempty" yaml:"max_citations,omitempty"`
}

// Validate reports malformed pipeline filters.
func (s FilterSpec) Validate() error {
	if s.MaxResults < 0 {
		return fmt.Errorf("max_results must be non-negative, got %d", s.MaxResults)
	}
	if s.MinYear < 0 || s.MaxYear < 0 {
		return fmt.Errorf("year bounds must be non-negative")
	}
	if s.MinYear > 0 && s.MaxYear > 0 && s.MinYear > s.MaxYear {
		return fmt.Errorf("min_year %d is later than max_year %d", s.MinYear, s.MaxYear)
	}
	if s.MinCitations != nil && *s.MinCitations < 0 {
		return fmt.Errorf("min_citations must be non-negative, got %d", *s.MinCitations)
	}
	if s.MaxCitations != nil && *s.MaxCitations < 0 {
		return fmt.Errorf("max_citations must be non-negative, got %d", *s.MaxCitations)
	}
	if s.MinCitations != nil && s.MaxCitations != nil && *s.MinCitations > *s.MaxCitations {
		return fmt.Errorf("min_citations %d exceeds max_citations %d", *s.MinCitations, *s.MaxCitations)
	}
	return nil
}

// CitationsInRange reports whether total satisfies the citation bounds.
func (s FilterSpec) CitationsInRange(total int) bool {
	if s.MinCitations != nil && total < *s.MinCitations {
		return false
	}
	if s.MaxCitations != nil && total > *s.MaxCitations {
		return false
	}
	return true
}
