// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Open-ended year bounds for PubMed date ranges.
const (
	minPubYear = 1800
	maxPubYear = 3000
)

// Expander turns a hypothesis and filters into a search expression.
type Expander struct {
	Extractor EntityExtractor
	Linker    *Linker
}

// Expand builds the expression. Each entity becomes its confident
// canonical terms OR-joined in parentheses, or its literal text when no
// mapping clears the threshold. Entities, the publication-type group, and
// the date range are AND-joined. A hypothesis with no entities falls back
// to its literal text.
func (x *Expander) Expand(ctx context.Context, q string, f types.FilterSpec) (string, error) {
	entities, err := x.Extractor.Entities(ctx, q)
	if err != nil {
		return "", err
	}

	var parts []string
	for _, e := range entities {
		var terms []string
		if x.Linker != nil {
			for _, m := range x.Linker.Link(e) {
				terms = append(terms, quoteTerm(m.Term))
			}
		}
		switch len(terms) {
		case 0:
			parts = append(parts, e)
		case 1:
			parts = append(parts, terms[0])
		default:
			parts = append(parts, "("+strings.Join(terms, " OR ")+")")
		}
	}
	if len(parts) == 0 {
		if t := strings.TrimSpace(q); t != "" {
			parts = append(parts, t)
		}
	}

	if pt := PublicationTypeClause(f.PublicationTypes); pt != "" {
		parts = append(parts, pt)
	}
	if dr := DateClause(f.MinYear, f.MaxYear); dr != "" {
		parts = append(parts, dr)
	}
	return strings.Join(parts, " AND "), nil
}

// PublicationTypeClause OR-joins publication types into one group. A
// record carries one primary type, so AND-joining would never match.
func PublicationTypeClause(pubTypes []string) string {
	var pts []string
	for _, pt := range pubTypes {
		if pt = strings.TrimSpace(pt); pt != "" {
			pts = append(pts, fmt.Sprintf("%q[Publication Type]", pt))
		}
	}
	if len(pts) == 0 {
		return ""
	}
	return "(" + strings.Join(pts, " OR ") + ")"
}

// DateClause renders an inclusive publication-year range. One-sided
// bounds are closed with minPubYear or maxPubYear.
func DateClause(minYear, maxYear int) string {
	if minYear <= 0 && maxYear <= 0 {
		return ""
	}
	if minYear <= 0 {
		minYear = minPubYear
	}
	if maxYear <= 0 {
		maxYear = maxPubYear
	}
	return fmt.Sprintf("%d:%d[Date - Publication]", minYear, maxYear)
}

// quoteTerm quotes multi-word terms so they search as phrases.
func quoteTerm(t string) string {
	if strings.ContainsAny(t, " ,") {
		return `"` + t + `"`
	}
	return t
}
