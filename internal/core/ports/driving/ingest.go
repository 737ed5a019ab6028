package driving

import (
	"context"

	"github.com/tessera-labs/verso/internal/core/domain"
)

// IngestService drives the ingestion pipeline: chunk, embed, and index a
// document's text into both the vector and lexical indexes.
type IngestService interface {
	// Ingest stores and indexes a new document, returning it in its
	// final state. Individual chunk failures are recorded without
	// aborting the rest of the document.
	Ingest(ctx context.Context, ownerID, name, rawText string) (*domain.Document, error)

	// Reindex re-runs chunking and embedding for an existing document,
	// replacing its full chunk set atomically.
	Reindex(ctx context.Context, documentID string) (*domain.Document, error)

	// Delete removes a document, its chunks, and its index entries.
	Delete(ctx context.Context, documentID string) error
}
