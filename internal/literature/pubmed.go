// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package literature

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/evidence-engine/internal/errs"
	"github.com/pdiddy/evidence-engine/internal/httputil"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// NCBI E-utilities endpoints. Declared as vars so tests can substitute an
// httptest server.
var (
	pubmedSearchBase  = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi"
	pubmedFetchBase   = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/efetch.fcgi"
	pubmedSummaryBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esummary.fcgi"
)

// efetchBatch bounds ids per efetch GET so URLs stay short.
const efetchBatch = 200

// PubMed searches and fetches PubMed records through E-utilities.
type PubMed struct {
	Client *httputil.Client
	APIKey string
}

// Name returns the source identifier.
func (p *PubMed) Name() string { return "pubmed" }

func (p *PubMed) params(v url.Values) url.Values {
	v.Set("db", "pubmed")
	if p.APIKey != "" {
		v.Set("api_key", p.APIKey)
	}
	return v
}

func (p *PubMed) get(ctx context.Context, base string, v url.Values, op string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+v.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	return p.Client.Fetch(ctx, req, op)
}

// Search runs esearch sorted by relevance and returns PMIDs.
func (p *PubMed) Search(ctx context.Context, term string, retmax int) ([]string, error) {
	const op = "pubmed.search"
	if retmax <= 0 {
		retmax = 20
	}
	body, err := p.get(ctx, pubmedSearchBase, p.params(url.Values{
		"term":    {term},
		"retmax":  {strconv.Itoa(retmax)},
		"sort":    {"relevance"},
		"retmode": {"json"},
	}), op)
	if err != nil {
		return nil, err
	}

	var sr struct {
		Result struct {
			IDList []string `json:"idlist"`
			Error  string   `json:"ERROR"`
		} `json:"esearchresult"`
	}
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, errs.E(errs.ExternalService, op, fmt.Errorf("parsing esearch response: %w", err))
	}
	if sr.Result.Error != "" {
		return nil, errs.Ef(errs.ExternalService, op, "esearch: %s", sr.Result.Error)
	}
	return sr.Result.IDList, nil
}

// FetchMetadata runs efetch in batches and parses the article XML.
// Records keep the order of ids.
func (p *PubMed) FetchMetadata(ctx context.Context, ids []string) ([]types.CandidateDocument, error) {
	const op = "pubmed.fetch"
	byID := make(map[string]types.CandidateDocument, len(ids))
	for _, batch := range chunk(ids, efetchBatch) {
		body, err := p.get(ctx, pubmedFetchBase, p.params(url.Values{
			"id":      {strings.Join(batch, ",")},
			"retmode": {"xml"},
		}), op)
		if err != nil {
			return nil, err
		}
		docs, err := parsePubMedXML(body)
		if err != nil {
			return nil, errs.E(errs.ExternalService, op, err)
		}
		for _, d := range docs {
			byID[d.ID] = d
		}
	}

	out := make([]types.CandidateDocument, 0, len(byID))
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			out = append(out, d)
			delete(byID, id)
		}
	}
	return out, nil
}

// xmlText collects all character data under an element, dropping inline
// markup such as <i> or <sup>.
type xmlText string

func (t *xmlText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var b strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch tt := tok.(type) {
		case xml.CharData:
			b.Write(tt)
		case xml.EndElement:
			if tt.Name == start.Name {
				*t = xmlText(strings.Join(strings.Fields(b.String()), " "))
				return nil
			}
		}
	}
}

// abstractSection is one AbstractText element, optionally labelled
// (BACKGROUND, METHODS, ...).
type abstractSection struct {
	Label string
	Text  string
}

func (s *abstractSection) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, a := range start.Attr {
		if a.Name.Local == "Label" {
			s.Label = a.Value
		}
	}
	var t xmlText
	if err := t.UnmarshalXML(d, start); err != nil {
		return err
	}
	s.Text = string(t)
	return nil
}

type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	PMID    string `xml:"MedlineCitation>PMID"`
	Article struct {
		Title   xmlText `xml:"ArticleTitle"`
		Journal struct {
			Title   string `xml:"Title"`
			PubDate struct {
				Year        string `xml:"Year"`
				Month       string `xml:"Month"`
				Day         string `xml:"Day"`
				MedlineDate string `xml:"MedlineDate"`
			} `xml:"JournalIssue>PubDate"`
		} `xml:"Journal"`
		Abstract []abstractSection `xml:"Abstract>AbstractText"`
		Authors []struct {
			LastName       string `xml:"LastName"`
			ForeName       string `xml:"ForeName"`
			CollectiveName string `xml:"CollectiveName"`
		} `xml:"AuthorList>Author"`
	} `xml:"MedlineCitation>Article"`
}

func parsePubMedXML(body []byte) ([]types.CandidateDocument, error) {
	var set pubmedArticleSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("parsing efetch XML: %w", err)
	}
	docs := make([]types.CandidateDocument, 0, len(set.Articles))
	for _, a := range set.Articles {
		if a.PMID == "" {
			continue
		}
		var sections []string
		for _, s := range a.Article.Abstract {
			text := s.Text
			if s.Label != "" {
				text = s.Label + ": " + text
			}
			if strings.TrimSpace(text) != "" {
				sections = append(sections, text)
			}
		}
		d := types.CandidateDocument{
			ID:       strings.TrimSpace(a.PMID),
			Title:    string(a.Article.Title),
			Abstract: strings.Join(sections, " "),
			Journal:  a.Article.Journal.Title,
			Source:   "pubmed",
		}
		pd := a.Article.Journal.PubDate
		d.PublicationDate, d.Year = parsePubDate(pd.Year, pd.Month, pd.Day, pd.MedlineDate)
		for _, au := range a.Article.Authors {
			switch {
			case au.CollectiveName != "":
				d.Authors = append(d.Authors, au.CollectiveName)
			case au.LastName != "":
				d.Authors = append(d.Authors, strings.TrimSpace(au.ForeName+" "+au.LastName))
			}
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// parsePubDate reads a PubDate. Month may be numeric or an abbreviation;
// MedlineDate ("2019 Jan-Feb") is used when Year is absent.
func parsePubDate(year, month, day, medline string) (time.Time, int) {
	if year == "" && len(medline) >= 4 {
		year = medline[:4]
	}
	y, err := strconv.Atoi(year)
	if err != nil || y <= 0 {
		return time.Time{}, 0
	}
	m := time.January
	if month != "" {
		if n, err := strconv.Atoi(month); err == nil && n >= 1 && n <= 12 {
			m = time.Month(n)
		} else if t, err := time.Parse("Jan", month); err == nil {
			m = t.Month()
		}
	}
	dd := 1
	if n, err := strconv.Atoi(day); err == nil && n >= 1 && n <= 31 {
		dd = n
	}
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC), y
}
