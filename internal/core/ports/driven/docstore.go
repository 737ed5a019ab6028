package driven

import (
	"context"

	"github.com/tessera-labs/verso/internal/core/domain"
)

// DocumentStore persists documents and chunks.
// Backed by SQLite for durable storage, or an in-memory map for tests.
type DocumentStore interface {
	// SaveDocument stores or updates a document.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// ListDocuments returns all documents for an owner.
	ListDocuments(ctx context.Context, ownerID string) ([]domain.Document, error)

	// DeleteDocument removes a document and cascades to its chunks.
	DeleteDocument(ctx context.Context, id string) error

	// ReplaceChunks atomically swaps the full chunk set for a document:
	// existing chunks are deleted and the new set inserted as one
	// logical unit. Chunks are never partially updated.
	ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error

	// GetChunks retrieves all chunks for a document, ordered by index.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// GetChunk retrieves a specific chunk by ID.
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)

	// ListChunksByOwner retrieves every chunk belonging to an owner.
	ListChunksByOwner(ctx context.Context, ownerID string) ([]domain.Chunk, error)

	// FreeTextSearch shortlists the owner's documents whose text matches
	// the query terms, most relevant first, at most limit results. Used
	// by the lexical-prefilter retrieval tier.
	FreeTextSearch(ctx context.Context, ownerID, query string, limit int) ([]domain.Document, error)
}
