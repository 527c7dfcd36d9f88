// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pdiddy/evidence-engine/internal/errs"
	"github.com/pdiddy/evidence-engine/internal/httputil"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// hfLabelOrder is the index order of LABEL_n outputs for NLI heads that do
// not publish label names.
var hfLabelOrder = []string{"contradiction", "entailment", "neutral"}

// HFEntailment calls a Hugging Face style text-classification endpoint
// (POST <endpoint>/<model>) serving an NLI model.
type HFEntailment struct {
	client   *httputil.Client
	endpoint string
	model    string
	apiKey   string
	order    PairOrder
}

func newHFEntailment(cfg types.EntailmentConfig, client *httputil.Client) (EntailmentModel, error) {
	if cfg.Endpoint == "" || cfg.Model == "" {
		return nil, fmt.Errorf("hf entailment: endpoint and model are required")
	}
	order, err := ParsePairOrder(cfg.PairOrder)
	if err != nil {
		return nil, fmt.Errorf("hf entailment: %w", err)
	}
	if client == nil {
		client = NewClient(types.ModelConfig{})
	}
	return &HFEntailment{
		client:   client,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		order:    order,
	}, nil
}

// Identifier returns "hf/<model>".
func (m *HFEntailment) Identifier() string { return "hf/" + m.model }

// Order returns the configured pair order.
func (m *HFEntailment) Order() PairOrder { return m.order }

type hfLabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Predict classifies the pair and maps label scores onto a Prediction.
// The result is not validated here; PredictPair does that.
func (m *HFEntailment) Predict(ctx context.Context, premise, hypothesis string) (Prediction, error) {
	const op = "hf.predict"

	text, pair := FormatPair(m.order, premise, hypothesis)
	var inputs any = text
	if pair != "" {
		inputs = map[string]string{"text": text, "text_pair": pair}
	}
	payload, err := json.Marshal(map[string]any{
		"inputs":     inputs,
		"parameters": map[string]any{"top_k": nil},
	})
	if err != nil {
		return Prediction{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint+"/"+m.model, bytes.NewReader(payload))
	if err != nil {
		return Prediction{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	body, err := m.client.Fetch(ctx, req, op)
	if err != nil {
		return Prediction{}, err
	}
	scores, err := parseHFScores(body)
	if err != nil {
		return Prediction{}, errs.E(errs.ExternalService, op, err)
	}
	return predictionFromLabels(scores)
}

// parseHFScores accepts both the flat and the per-input nested response shapes.
func parseHFScores(body []byte) ([]hfLabelScore, error) {
	var nested [][]hfLabelScore
	if err := json.Unmarshal(body, &nested); err == nil && len(nested) > 0 {
		return nested[0], nil
	}
	var flat []hfLabelScore
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return flat, nil
}

func predictionFromLabels(scores []hfLabelScore) (Prediction, error) {
	var p Prediction
	seen := 0
	for _, s := range scores {
		label := strings.ToLower(s.Label)
		var n int
		if _, err := fmt.Sscanf(label, "label_%d", &n); err == nil && n >= 0 && n < len(hfLabelOrder) {
			label = hfLabelOrder[n]
		}
		switch {
		case strings.HasPrefix(label, "entail"):
			p.Entailment = s.Score
		case strings.HasPrefix(label, "contradict"):
			p.Contradiction = s.Score
		case strings.HasPrefix(label, "neutral"):
			p.Neutral = s.Score
		default:
			continue
		}
		seen++
	}
	if seen != 3 {
		return Prediction{}, errs.Ef(errs.InvalidProbability, "hf.predict", "expected 3 NLI labels, got %d", seen)
	}
	return p, nil
}
