package domain

import (
	"fmt"
	"time"
)

// DocumentStatus tracks a document through the ingestion pipeline.
type DocumentStatus string

const (
	// StatusUploading means the raw text has been received but not processed.
	StatusUploading DocumentStatus = "uploading"
	// StatusProcessing means chunking/embedding/indexing is in progress.
	StatusProcessing DocumentStatus = "processing"
	// StatusReady means the document is fully indexed and searchable.
	StatusReady DocumentStatus = "ready"
	// StatusError means ingestion failed; the document is not searchable.
	StatusError DocumentStatus = "error"
)

// Document represents an ingested document owned by a single user.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// OwnerID identifies the owning user. Every retrieval path filters
	// on it before scoring; chunks never cross owners.
	OwnerID string

	// Name is the human-readable document name, used in citations.
	Name string

	// RawText is the full extracted text before chunking.
	RawText string

	// Status is the current ingestion state.
	Status DocumentStatus

	// ChunkCount is the number of chunks produced by the last ingestion.
	ChunkCount int

	// CreatedAt is when the document was first stored.
	CreatedAt time.Time

	// UpdatedAt is when the document was last (re)indexed.
	UpdatedAt time.Time
}

// Chunk is the unit of retrieval: a bounded slice of a document's text.
// Identity is the composite (OwnerID, DocumentID, Index); re-indexing a
// document replaces its full chunk set, never individual chunks.
type Chunk struct {
	// ID is derived from DocumentID and Index so re-indexing the same
	// text yields the same IDs.
	ID string

	// OwnerID mirrors the parent document's owner.
	OwnerID string

	// DocumentID links to the parent document.
	DocumentID string

	// Index is the ordinal position within the document, monotonic.
	Index int

	// Text is the chunk content.
	Text string

	// Embedding is the vector representation, one per chunk.
	Embedding []float32

	// EmbeddingModelID identifies the model that produced Embedding.
	// A mismatch with the active embedder marks the chunk stale.
	EmbeddingModelID string

	// Metadata carries positional information for citations.
	Metadata ChunkMetadata
}

// ChunkMetadata holds positional details surfaced in citations.
type ChunkMetadata struct {
	// Page is the 1-based page number, 0 when unknown.
	Page int

	// CharOffset is the byte offset of the chunk within the raw text.
	CharOffset int
}

// ChunkID builds the deterministic chunk identifier for a document position.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s#%d", documentID, index)
}
