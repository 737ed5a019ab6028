// Package hash provides a deterministic last-resort embedding provider.
// It produces feature-hashed bag-of-words vectors with no model behind
// them: retrieval quality is degraded, so it must only ever sit at the
// end of the provider chain. Vectors are tagged with ModelID so
// downstream code can find and re-embed them with a real model later.
package hash

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/tessera-labs/verso/internal/core/ports/driven"
	"github.com/tessera-labs/verso/internal/index/lexical"
)

// Ensure Embedder implements the interface.
var _ driven.EmbeddingProvider = (*Embedder)(nil)

// ModelID tags every vector produced by this embedder.
const ModelID = "hash-v1"

// DefaultDimensions is the default vector size.
const DefaultDimensions = 256

// Embedder maps text to a fixed-length vector by hashing tokens into
// buckets with a sign bit, then L2-normalising. The same text always
// produces the same vector.
type Embedder struct {
	dimensions int
}

// New creates a hash embedder. dimensions <= 0 selects the default.
func New(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Embedder{dimensions: dimensions}
}

// EmbedBatch generates one vector per text, in input order.
func (e *Embedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = e.embed(text)
	}
	return vectors, nil
}

func (e *Embedder) embed(text string) []float32 {
	v := make([]float32, e.dimensions)
	for _, token := range lexical.Tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()

		bucket := int(sum % uint64(e.dimensions))
		// One hash bit decides the sign, so colliding tokens cancel
		// rather than pile up.
		if sum&(1<<63) != 0 {
			v[bucket]--
		} else {
			v[bucket]++
		}
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range v {
			v[i] *= scale
		}
	}
	return v
}

// Dimensions returns the vector size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// ModelID returns the degraded-tier model identifier.
func (e *Embedder) ModelID() string {
	return ModelID
}

// Degraded always reports true: this tier is never promoted to primary.
func (e *Embedder) Degraded() bool {
	return true
}
