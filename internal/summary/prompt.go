// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package summary

import (
	"strings"
	"text/template"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// overviewSystemPrompt asks for a one-sentence answer followed by
// categories under ### headings with numbered document references.
const overviewSystemPrompt = `You summarize biomedical literature for a researcher testing a hypothesis.

Format:
[Answer to the question based on the documents in one sentence]
[Grouping of documents into clear categories, each under a "### " heading; one bullet per finding with a bold label, a one-sentence summary, and references to the documents it draws on (e.g. [1], [4])]

Example output:
Sitting for prolonged periods is generally considered detrimental to health, particularly when combined with low levels of physical activity.

### Health Risks of Sitting
- **Sitting and Mortality**: Prolonged sitting is associated with increased all-cause and cardiovascular mortality, especially among the least active ([1], [4]).
- **Chronic Diseases**: Excessive sitting is linked to type 2 diabetes and cardiovascular disease ([4], [7]).

### Recommendations and Interventions
- **Intervention Efficacy**: Workplace interventions reduce sitting time ([6]).

Cite only the documents provided. Do not invent references.`

// perDocumentSystemPrompt asks for one line per document.
const perDocumentSystemPrompt = `Your task is to provide a one-sentence summary for each document specifically addressing how it relates to the given query.
Format each summary as: "Document [X]: [One sentence summary relating to query]"

Example:
Query: What are the health effects of coffee?
Document 1: This study demonstrates coffee's positive impact on alertness and cognitive function.
Document 2: Research indicates coffee consumption may reduce risk of liver disease.`

// userPromptTmpl lists the documents, numbered from 1, under the query.
var userPromptTmpl = template.Must(template.New("documents").Funcs(template.FuncMap{
	"inc":  func(i int) int { return i + 1 },
	"trim": strings.TrimSpace,
}).Parse(`Query: {{.Query}}

Documents:
{{range $i, $d := .Documents}}Document {{inc $i}}:
{{if $d.Title}}{{trim $d.Title}}
{{end}}{{trim $d.Abstract}}

{{end}}`))

func userPrompt(query string, docs []types.CandidateDocument) (string, error) {
	var b strings.Builder
	err := userPromptTmpl.Execute(&b, struct {
		Query     string
		Documents []types.CandidateDocument
	}{query, docs})
	return b.String(), err
}
