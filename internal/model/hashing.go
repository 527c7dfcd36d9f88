// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package model

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/pdiddy/evidence-engine/internal/httputil"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

const defaultHashingDims = 256

// HashingEmbedding is a deterministic offline bag-of-words embedding:
// each lowercase token hashes to a signed bucket and the vector is
// L2-normalized. It needs no network and serves local corpora and tests.
type HashingEmbedding struct {
	dims int
}

// NewHashingEmbedding returns a hashing embedding of dims dimensions.
func NewHashingEmbedding(dims int) *HashingEmbedding {
	if dims <= 0 {
		dims = defaultHashingDims
	}
	return &HashingEmbedding{dims: dims}
}

func newHashingEmbedding(cfg types.EmbeddingConfig, _ *httputil.Client) (EmbeddingModel, error) {
	return NewHashingEmbedding(cfg.Dimensions), nil
}

// Identifier returns "hashing/<dims>".
func (e *HashingEmbedding) Identifier() string { return fmt.Sprintf("hashing/%d", e.dims) }

// Embed never fails.
func (e *HashingEmbedding) Embed(_ context.Context, text string) ([]float64, error) {
	v := make([]float64, e.dims)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dims))
		if sum>>63 == 1 {
			v[idx]--
		} else {
			v[idx]++
		}
	}
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range v {
			v[i] /= norm
		}
	}
	return v, nil
}
