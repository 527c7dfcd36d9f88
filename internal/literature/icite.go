// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package literature

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/evidence-engine/internal/errs"
	"github.com/pdiddy/evidence-engine/internal/httputil"
)

// iciteBase is the NIH iCite publications endpoint.
var iciteBase = "https://icite.od.nih.gov/api/pubs"

const iciteBatch = 1000

// ICite returns citation totals for PMIDs from NIH iCite.
type ICite struct {
	Client *httputil.Client
}

// CitationCounts fetches citation_count for every PMID.
func (c *ICite) CitationCounts(ctx context.Context, pmids []string) (map[string]int, error) {
	const op = "icite.citations"
	out := make(map[string]int, len(pmids))
	for _, batch := range chunk(pmids, iciteBatch) {
		v := url.Values{
			"pmids": {strings.Join(batch, ",")},
			"fl":    {"pmid,citation_count"},
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, iciteBase+"?"+v.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		body, err := c.Client.Fetch(ctx, req, op)
		if err != nil {
			return nil, err
		}
		var resp struct {
			Data []struct {
				PMID          json.Number `json:"pmid"`
				CitationCount int         `json:"citation_count"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, errs.E(errs.ExternalService, op, fmt.Errorf("parsing iCite response: %w", err))
		}
		for _, d := range resp.Data {
			if _, err := strconv.Atoi(d.PMID.String()); err == nil {
				out[d.PMID.String()] = d.CitationCount
			}
		}
	}
	return out, nil
}
