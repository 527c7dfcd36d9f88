// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"github.com/bytedance/sonic"
)

// ResultRecord is the wire form of a ScoredDocument. Key names are stable.
// Per prd001-evidence R6.1.
type ResultRecord struct {
	Title             string  `json:"title" yaml:"title"`
	Abstract          string  `json:"abstract" yaml:"abstract"`
	Year              int     `json:"year" yaml:"year"`
	OverallSimilarity float64 `json:"overallSimilarity" yaml:"overallSimilarity"`
	RelevantSentence  string  `json:"relevantSentence" yaml:"relevantSentence"`
	RelevanceScore    float64 `json:"relevanceScore" yaml:"relevanceScore"`
	Agree             float64 `json:"agree" yaml:"agree"`
	Disagree          float64 `json:"disagree" yaml:"disagree"`
	Neutral           float64 `json:"neutral" yaml:"neutral"`
	CitationTotal     int     `json:"citationTotal" yaml:"citationTotal"`
}

// Record flattens d into its wire form.
func (d ScoredDocument) Record() ResultRecord {
	r := ResultRecord{
		Title:             d.Title,
		Abstract:          d.Abstract,
		Year:              d.Year,
		OverallSimilarity: d.OverallSimilarity,
		CitationTotal:     d.CitationTotal,
	}
	if d.Relevant != nil {
		r.RelevantSentence = d.Relevant.Sentence
		r.RelevanceScore = d.Relevant.Score
	}
	if d.Agreeableness != nil {
		r.Agree = d.Agreeableness.Agree
		r.Disagree = d.Agreeableness.Disagree
		r.Neutral = d.Agreeableness.Neutral
	}
	return r
}

// ResultSet is the serialized output of one run: records keyed by document
// identifier plus the ranked identifier order, since a JSON object does not
// carry order.
type ResultSet struct {
	Order     []string                `json:"order" yaml:"order"`
	Documents map[string]ResultRecord `json:"documents" yaml:"documents"`
}

// NewResultSet builds a ResultSet preserving the order of docs.
func NewResultSet(docs []ScoredDocument) ResultSet {
	rs := ResultSet{
		Order:     make([]string, 0, len(docs)),
		Documents: make(map[string]ResultRecord, len(docs)),
	}
	for _, d := range docs {
		rs.Order = append(rs.Order, d.ID)
		rs.Documents[d.ID] = d.Record()
	}
	return rs
}

// EncodeResults renders docs as indented JSON with sorted map keys.
func EncodeResults(docs []ScoredDocument) ([]byte, error) {
	return sonic.ConfigStd.MarshalIndent(NewResultSet(docs), "", "  ")
}

// DecodeResults parses the output of EncodeResults.
func DecodeResults(data []byte) (ResultSet, error) {
	var rs ResultSet
	err := sonic.ConfigStd.Unmarshal(data, &rs)
	return rs, err
}
