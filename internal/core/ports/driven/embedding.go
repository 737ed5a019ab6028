package driven

import "context"

// EmbeddingProvider generates vector embeddings from text.
//
// Implementations may include:
//   - OpenAI (text-embedding-3-small, text-embedding-3-large)
//   - Ollama (nomic-embed-text, all-minilm)
//   - A deterministic hash embedder as the degraded last-resort tier
type EmbeddingProvider interface {
	// EmbedBatch generates one embedding per input text, in input order:
	// result[i] always corresponds to texts[i]. Implementations must not
	// reorder, drop, or pad the output.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g. 384, 768, 1536).
	Dimensions() int

	// ModelID returns the identifier stored on chunks embedded by this
	// provider. Stored chunks whose model ID differs from the active
	// provider's are stale.
	ModelID() string

	// Degraded reports whether this provider is a reduced-quality
	// fallback (the hash embedder). Degraded vectors are candidates for
	// later re-embedding and must never be mistaken for real embeddings.
	Degraded() bool
}
