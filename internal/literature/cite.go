// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package literature

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/evidence-engine/internal/errs"
)

// CitationData is the bibliographic record behind a formatted citation.
type CitationData struct {
	PMID    string   `json:"pmid" yaml:"pmid"`
	Authors []string `json:"authors" yaml:"authors"`
	Title   string   `json:"title" yaml:"title"`
	Journal string   `json:"journal" yaml:"journal"`
	Year    string   `json:"year" yaml:"year"`
	Volume  string   `json:"volume,omitempty" yaml:"volume,omitempty"`
	Issue   string   `json:"issue,omitempty" yaml:"issue,omitempty"`
	Pages   string   `json:"pages,omitempty" yaml:"pages,omitempty"`
	DOI     string   `json:"doi,omitempty" yaml:"doi,omitempty"`
}

// Summary fetches esummary data for one PMID. A PMID PubMed does not
// return fails with errs.NotFound.
func (p *PubMed) Summary(ctx context.Context, pmid string) (CitationData, error) {
	const op = "pubmed.summary"
	body, err := p.get(ctx, pubmedSummaryBase, p.params(url.Values{
		"id":      {pmid},
		"retmode": {"json"},
	}), op)
	if err != nil {
		return CitationData{}, err
	}

	var resp struct {
		Result map[string]json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return CitationData{}, errs.E(errs.ExternalService, op, fmt.Errorf("parsing esummary response: %w", err))
	}
	raw, ok := resp.Result[pmid]
	if !ok {
		return CitationData{}, errs.Ef(errs.NotFound, op, "no citation data for PMID %s", pmid)
	}
	var article struct {
		Error           string `json:"error"`
		Title           string `json:"title"`
		FullJournalName string `json:"fulljournalname"`
		PubDate         string `json:"pubdate"`
		Volume          string `json:"volume"`
		Issue           string `json:"issue"`
		Pages           string `json:"pages"`
		ElocationID     string `json:"elocationid"`
		Authors         []struct {
			Name string `json:"name"`
		} `json:"authors"`
		ArticleIDs []struct {
			IDType string `json:"idtype"`
			Value  string `json:"value"`
		} `json:"articleids"`
	}
	if err := json.Unmarshal(raw, &article); err != nil {
		return CitationData{}, errs.E(errs.ExternalService, op, fmt.Errorf("parsing esummary record: %w", err))
	}
	if article.Error != "" {
		return CitationData{}, errs.Ef(errs.NotFound, op, "PMID %s: %s", pmid, article.Error)
	}

	d := CitationData{
		PMID:    pmid,
		Title:   strings.TrimSuffix(article.Title, "."),
		Journal: article.FullJournalName,
		Volume:  article.Volume,
		Issue:   article.Issue,
		Pages:   article.Pages,
	}
	if f := strings.Fields(article.PubDate); len(f) > 0 {
		d.Year = f[0]
	}
	for _, a := range article.Authors {
		d.Authors = append(d.Authors, a.Name)
	}
	for _, id := range article.ArticleIDs {
		if id.IDType == "doi" {
			d.DOI = id.Value
		}
	}
	return d, nil
}

// Citation styles accepted by FormatCitation.
var CitationStyles = []string{"bibtex", "mla", "apa", "csl"}

// FormatCitation renders d in style: "bibtex", "mla", "apa", or "csl"
// (CSL-YAML, consumable by Pandoc and reference managers).
func FormatCitation(style string, d CitationData) (string, error) {
	switch strings.ToLower(style) {
	case "bibtex":
		return formatBibTeX(d), nil
	case "mla":
		return formatMLA(d), nil
	case "apa":
		return formatAPA(d), nil
	case "csl":
		return formatCSL(d)
	default:
		return "", fmt.Errorf("unknown citation style %q (want one of %s)", style, strings.Join(CitationStyles, ", "))
	}
}

func formatBibTeX(d CitationData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "@article{pmid%s,\n", d.PMID)
	field := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, "  %s = {%s},\n", k, v)
		}
	}
	field("author", strings.Join(d.Authors, " and "))
	field("title", d.Title)
	field("journal", d.Journal)
	field("year", d.Year)
	field("volume", d.Volume)
	field("number", d.Issue)
	field("pages", d.Pages)
	field("doi", d.DOI)
	field("pmid", d.PMID)
	b.WriteString("}")
	return b.String()
}

func formatMLA(d CitationData) string {
	var author string
	switch len(d.Authors) {
	case 0:
		author = "No author"
	case 1:
		author = d.Authors[0]
	default:
		author = d.Authors[0] + ", et al"
	}
	head := author + `. "` + d.Title + `."`
	var parts []string
	if d.Journal != "" {
		parts = append(parts, d.Journal)
	}
	if d.Volume != "" {
		parts = append(parts, "vol. "+d.Volume)
	}
	if d.Issue != "" {
		parts = append(parts, "no. "+d.Issue)
	}
	if d.Year != "" {
		parts = append(parts, d.Year)
	}
	if d.Pages != "" {
		parts = append(parts, "pp. "+d.Pages)
	}
	// The title's closing `."` already ends a bare citation.
	if len(parts) == 0 {
		return head
	}
	return head + " " + strings.Join(parts, ", ") + "."
}

func formatAPA(d CitationData) string {
	var author string
	switch n := len(d.Authors); n {
	case 0:
		author = "No author"
	case 1:
		author = d.Authors[0]
	case 2:
		author = d.Authors[0] + " & " + d.Authors[1]
	default:
		author = strings.Join(d.Authors[:n-1], ", ") + ", & " + d.Authors[n-1]
	}
	s := author
	if d.Year != "" {
		s += " (" + d.Year + ")"
	}
	s += ". " + d.Title + "."
	if d.Journal != "" {
		s += " " + d.Journal
		if d.Volume != "" {
			s += ", " + d.Volume
			if d.Issue != "" {
				s += "(" + d.Issue + ")"
			}
		}
		if d.Pages != "" {
			s += ", " + d.Pages
		}
		s += "."
	}
	if d.DOI != "" {
		s += " https://doi.org/" + d.DOI
	}
	return s
}

// CSLItem is a bibliographic entry in CSL (Citation Style Language) YAML.
type CSLItem struct {
	ID             string    `yaml:"id"`
	Type           string    `yaml:"type"`
	Title          string    `yaml:"title"`
	Author         []CSLName `yaml:"author,omitempty"`
	ContainerTitle string    `yaml:"container-title,omitempty"`
	Volume         string    `yaml:"volume,omitempty"`
	Issue          string    `yaml:"issue,omitempty"`
	Page           string    `yaml:"page,omitempty"`
	Issued         *CSLDate  `yaml:"issued,omitempty"`
	DOI            string    `yaml:"DOI,omitempty"`
	PMID           string    `yaml:"PMID,omitempty"`
}

// CSLName represents a person's name in CSL format.
type CSLName struct {
	Family  string `yaml:"family,omitempty"`
	Given   string `yaml:"given,omitempty"`
	Literal string `yaml:"literal,omitempty"`
}

// CSLDate represents a date in CSL format using date-parts.
type CSLDate struct {
	DateParts [][]int `yaml:"date-parts"`
}

func formatCSL(d CitationData) (string, error) {
	item := CSLItem{
		ID:             "pmid" + d.PMID,
		Type:           "article-journal",
		Title:          d.Title,
		ContainerTitle: d.Journal,
		Volume:         d.Volume,
		Issue:          d.Issue,
		Page:           d.Pages,
		DOI:            d.DOI,
		PMID:           d.PMID,
	}
	for _, a := range d.Authors {
		item.Author = append(item.Author, parseAuthorName(a))
	}
	var year int
	if _, err := fmt.Sscanf(d.Year, "%d", &year); err == nil && year > 0 {
		item.Issued = &CSLDate{DateParts: [][]int{{year}}}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode([]CSLItem{item}); err != nil {
		return "", fmt.Errorf("encoding CSL: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encoding CSL: %w", err)
	}
	return buf.String(), nil
}

// parseAuthorName splits a PubMed esummary author ("Smith JA") into CSL
// family and given parts. Single-token names use the literal field.
func parseAuthorName(name string) CSLName {
	name = strings.TrimSpace(name)
	idx := strings.LastIndex(name, " ")
	if idx < 0 {
		return CSLName{Literal: name}
	}
	return CSLName{Family: name[:idx], Given: name[idx+1:]}
}
