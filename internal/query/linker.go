// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package query

import (
	"sort"
	"strings"
)

// Mapping is a candidate canonical term for an entity.
type Mapping struct {
	Term       string
	Confidence float64
}

type linkName struct {
	canonical string
	tokens    map[string]bool
}

// Linker maps free-text entities onto vocabulary terms.
type Linker struct {
	names     []linkName
	threshold float64
}

// NewLinker indexes every canonical name and synonym of v. Mappings below
// threshold are discarded.
func NewLinker(v *Vocabulary, threshold float64) *Linker {
	l := &Linker{threshold: threshold}
	if v == nil {
		return l
	}
	for _, t := range v.Terms {
		canonical := strings.ToLower(strings.TrimSpace(t.Canonical))
		for _, name := range append([]string{t.Canonical}, t.Synonyms...) {
			toks := tokenSet(name)
			if len(toks) == 0 {
				continue
			}
			l.names = append(l.names, linkName{canonical: canonical, tokens: toks})
		}
	}
	return l
}

// Link returns the canonical terms whose best name matches entity with
// confidence at or above the threshold, highest first. Confidence is the
// Dice coefficient of the lowercase token sets.
func (l *Linker) Link(entity string) []Mapping {
	et := tokenSet(entity)
	if len(et) == 0 {
		return nil
	}
	best := map[string]float64{}
	for _, n := range l.names {
		c := dice(et, n.tokens)
		if c >= l.threshold && c > best[n.canonical] {
			best[n.canonical] = c
		}
	}
	out := make([]Mapping, 0, len(best))
	for term, c := range best {
		out = append(out, Mapping{Term: term, Confidence: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Term < out[j].Term
	})
	return out
}

func dice(a, b map[string]bool) float64 {
	shared := 0
	for t := range a {
		if b[t] {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(a)+len(b))
}

func tokenSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, t := range tokenize(s) {
		out[t] = true
	}
	return out
}
