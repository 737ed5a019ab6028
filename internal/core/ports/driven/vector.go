package driven

import "context"

// VectorStore is an optional native similarity-search backend.
// Both operations carry the owner so the backend filters before scoring
// and never touches cross-tenant vectors. Absence or repeated failure of
// the backend degrades to brute-force local similarity; see
// internal/index/vector.
type VectorStore interface {
	// Upsert replaces all vectors for the given document. Safe to call
	// repeatedly with the same inputs.
	Upsert(ctx context.Context, ownerID, documentID string, vectors []ChunkVector) error

	// Delete removes all vectors for the given document.
	Delete(ctx context.Context, ownerID, documentID string) error

	// Search returns the k nearest chunks for the owner, best first.
	// documentID, when non-empty, restricts the search to one document.
	Search(ctx context.Context, ownerID string, query []float32, k int, documentID string) ([]VectorHit, error)
}

// ChunkVector pairs a chunk ID with its embedding for upsert.
type ChunkVector struct {
	// ChunkID identifies the chunk.
	ChunkID string

	// Embedding is the chunk's vector.
	Embedding []float32
}

// VectorHit is a similarity search result.
type VectorHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Similarity is the cosine similarity score (0-1).
	Similarity float64
}
