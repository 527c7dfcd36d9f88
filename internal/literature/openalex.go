// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package literature

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/evidence-engine/internal/errs"
	"github.com/pdiddy/evidence-engine/internal/httputil"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// openAlexWorksBase is the OpenAlex Works endpoint. Declared as a var so
// tests can substitute an httptest server.
var openAlexWorksBase = "https://api.openalex.org/works"

// OpenAlex caps per_page at 200 and an OR filter at 100 values.
const (
	openAlexMaxPerPage = 200
	openAlexFilterIDs  = 100
)

// OpenAlex is a Source and CitationCounter over the OpenAlex API. Search
// expressions written for PubMed are translated: field-tagged clauses
// become OpenAlex filters and the rest is passed as boolean search text.
type OpenAlex struct {
	Client *httputil.Client

	// Email is sent as mailto parameter for polite pool access.
	Email string
}

// Name returns the source identifier.
func (o *OpenAlex) Name() string { return "openalex" }

func (o *OpenAlex) works(ctx context.Context, v url.Values, op string) ([]openAlexWork, error) {
	if o.Email != "" {
		v.Set("mailto", o.Email)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openAlexWorksBase+"?"+v.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	body, err := o.Client.Fetch(ctx, req, op)
	if err != nil {
		return nil, err
	}
	var oar struct {
		Results []openAlexWork `json:"results"`
	}
	if err := json.Unmarshal(body, &oar); err != nil {
		return nil, errs.E(errs.ExternalService, op, fmt.Errorf("parsing OpenAlex response: %w", err))
	}
	return oar.Results, nil
}

// Search returns short OpenAlex work ids (e.g. "W2741809807") in
// relevance order.
func (o *OpenAlex) Search(ctx context.Context, term string, retmax int) ([]string, error) {
	if retmax <= 0 {
		retmax = 20
	}
	if retmax > openAlexMaxPerPage {
		retmax = openAlexMaxPerPage
	}
	text, filters := translatePubMedTerm(term)
	v := url.Values{
		"search":   {text},
		"per_page": {strconv.Itoa(retmax)},
		"select":   {"id"},
	}
	if len(filters) > 0 {
		v.Set("filter", strings.Join(filters, ","))
	}
	results, err := o.works(ctx, v, "openalex.search")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(results))
	for _, w := range results {
		ids = append(ids, shortOpenAlexID(w.ID))
	}
	return ids, nil
}

// FetchMetadata fetches works by id, keeping the order of ids.
func (o *OpenAlex) FetchMetadata(ctx context.Context, ids []string) ([]types.CandidateDocument, error) {
	byID := make(map[string]types.CandidateDocument, len(ids))
	for _, batch := range chunk(ids, openAlexFilterIDs) {
		results, err := o.works(ctx, url.Values{
			"filter":   {"openalex:" + strings.Join(batch, "|")},
			"per_page": {strconv.Itoa(len(batch))},
		}, "openalex.fetch")
		if err != nil {
			return nil, err
		}
		for _, w := range results {
			d := w.document()
			byID[d.ID] = d
		}
	}
	out := make([]types.CandidateDocument, 0, len(byID))
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// CitationCounts returns cited_by_count per work id.
func (o *OpenAlex) CitationCounts(ctx context.Context, ids []string) (map[string]int, error) {
	out := make(map[string]int, len(ids))
	for _, batch := range chunk(ids, openAlexFilterIDs) {
		results, err := o.works(ctx, url.Values{
			"filter":   {"openalex:" + strings.Join(batch, "|")},
			"per_page": {strconv.Itoa(len(batch))},
			"select":   {"id,cited_by_count"},
		}, "openalex.citations")
		if err != nil {
			return nil, err
		}
		for _, w := range results {
			out[shortOpenAlexID(w.ID)] = w.CitedByCount
		}
	}
	return out, nil
}

var (
	pubTypeClause = regexp.MustCompile(`"([^"]+)"\[Publication Type\]`)
	dateClause    = regexp.MustCompile(`(\d{4}):(\d{4})\[Date - Publication\]`)
	orphanOps     = regexp.MustCompile(`\(\s*(OR\s*)*\)|^\s*(AND|OR)\s+|\s+(AND|OR)\s*$`)
)

// openAlexTypes maps PubMed publication types onto OpenAlex work types.
var openAlexTypes = map[string]string{
	"journal article": "article",
	"review":          "review",
	"letter":          "letter",
	"editorial":       "editorial",
	"preprint":        "preprint",
}

// translatePubMedTerm moves publication-type and date clauses into
// OpenAlex filters and returns the remaining boolean search text.
func translatePubMedTerm(term string) (string, []string) {
	var filters []string

	var typesWanted []string
	for _, m := range pubTypeClause.FindAllStringSubmatch(term, -1) {
		if t, ok := openAlexTypes[strings.ToLower(m[1])]; ok {
			typesWanted = append(typesWanted, t)
		}
	}
	if len(typesWanted) > 0 {
		filters = append(filters, "type:"+strings.Join(typesWanted, "|"))
	}
	if m := dateClause.FindStringSubmatch(term); m != nil {
		filters = append(filters, "from_publication_date:"+m[1]+"-01-01", "to_publication_date:"+m[2]+"-12-31")
	}

	text := pubTypeClause.ReplaceAllString(term, "")
	text = dateClause.ReplaceAllString(text, "")
	for {
		next := strings.Join(strings.Fields(orphanOps.ReplaceAllString(text, "")), " ")
		next = strings.ReplaceAll(next, "AND AND", "AND")
		if next == text {
			break
		}
		text = next
	}
	return text, filters
}

func shortOpenAlexID(id string) string {
	return strings.TrimPrefix(id, "https://openalex.org/")
}

// reconstructAbstract converts OpenAlex's abstract_inverted_index back to
// plain text. The inverted index maps each word to a list of positions
// where that word appears.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}
	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})
	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

type openAlexWork struct {
	ID                    string           `json:"id"`
	Title                 string           `json:"title"`
	PublicationDate       string           `json:"publication_date"`
	PublicationYear       int              `json:"publication_year"`
	CitedByCount          int              `json:"cited_by_count"`
	ReferencedWorksCount  int              `json:"referenced_works_count"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
	Authorships           []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
	} `json:"authorships"`
	PrimaryLocation struct {
		Source struct {
			DisplayName string `json:"display_name"`
		} `json:"source"`
	} `json:"primary_location"`
}

func (w openAlexWork) document() types.CandidateDocument {
	d := types.CandidateDocument{
		ID:             shortOpenAlexID(w.ID),
		Title:          w.Title,
		Abstract:       reconstructAbstract(w.AbstractInvertedIndex),
		Year:           w.PublicationYear,
		Journal:        w.PrimaryLocation.Source.DisplayName,
		CitationCount:  w.CitedByCount,
		ReferenceCount: w.ReferencedWorksCount,
		Source:         "openalex",
	}
	if t, err := time.Parse("2006-01-02", w.PublicationDate); err == nil {
		d.PublicationDate = t
		if d.Year == 0 {
			d.Year = t.Year()
		}
	}
	for _, a := range w.Authorships {
		if a.Author.DisplayName != "" {
			d.Authors = append(d.Authors, a.Author.DisplayName)
		}
	}
	return d
}
