package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tessera-labs/verso/internal/core/domain"
	"github.com/tessera-labs/verso/internal/core/ports/driven"
	"github.com/tessera-labs/verso/internal/core/ports/driving"
	"github.com/tessera-labs/verso/internal/index/lexical"
	"github.com/tessera-labs/verso/internal/index/vector"
	"github.com/tessera-labs/verso/internal/logger"
	"github.com/tessera-labs/verso/internal/postprocessors/chunker"
)

// Ingestor implements driving.IngestService: it chunks raw text, embeds
// the chunks, and indexes them into both the vector and lexical indexes.
type Ingestor struct {
	store    driven.DocumentStore
	embedder driven.EmbeddingProvider
	vectors  *vector.Index
	lexicon  *lexical.Index
	splitter *chunker.Processor
	now      func() time.Time
	newID    func() string
}

var _ driving.IngestService = (*Ingestor)(nil)

// IngestorOption configures the ingestor.
type IngestorOption func(*Ingestor)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) IngestorOption {
	return func(in *Ingestor) {
		if now != nil {
			in.now = now
		}
	}
}

// WithIDGenerator replaces the document ID source, for tests.
func WithIDGenerator(newID func() string) IngestorOption {
	return func(in *Ingestor) {
		if newID != nil {
			in.newID = newID
		}
	}
}

// NewIngestor wires the ingestion pipeline. All collaborators are
// required.
func NewIngestor(
	store driven.DocumentStore,
	embedder driven.EmbeddingProvider,
	vectors *vector.Index,
	lexicon *lexical.Index,
	splitter *chunker.Processor,
	opts ...IngestorOption,
) (*Ingestor, error) {
	if store == nil || embedder == nil || vectors == nil || lexicon == nil || splitter == nil {
		return nil, fmt.Errorf("ingestor: all collaborators are required")
	}

	in := &Ingestor{
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		lexicon:  lexicon,
		splitter: splitter,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in, nil
}

// Ingest stores a new document and runs it through the pipeline. The
// document moves uploading -> processing -> ready; any pipeline failure
// leaves it in the error state rather than half-indexed.
func (in *Ingestor) Ingest(ctx context.Context, ownerID, name, rawText string) (*domain.Document, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("empty owner id: %w", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("empty document name: %w", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(rawText) == "" {
		return nil, fmt.Errorf("empty document text: %w", domain.ErrInvalidInput)
	}

	now := in.now()
	doc := &domain.Document{
		ID:        in.newID(),
		OwnerID:   ownerID,
		Name:      name,
		RawText:   rawText,
		Status:    domain.StatusUploading,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := in.store.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}

	if err := in.index(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Reindex re-runs the pipeline for an existing document. Chunk IDs are
// derived from the document ID and position, so re-indexing unchanged
// text is idempotent.
func (in *Ingestor) Reindex(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := in.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", documentID, err)
	}
	if err := in.index(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ReindexStale re-embeds every document of the owner whose stored
// vectors disagree with the active embedding model's dimensions. It
// returns the IDs of the documents it re-indexed.
func (in *Ingestor) ReindexStale(ctx context.Context, ownerID string) ([]string, error) {
	stale := in.vectors.StaleDocuments(ownerID, in.embedder.Dimensions())
	for _, documentID := range stale {
		logger.Info("re-embedding %s: stored dimensions do not match model %s", documentID, in.embedder.ModelID())
		if _, err := in.Reindex(ctx, documentID); err != nil {
			return nil, fmt.Errorf("re-embed %s: %w", documentID, err)
		}
	}
	return stale, nil
}

// Warm rebuilds the in-process indexes for one owner from persisted
// chunks. The store is the source of truth; the indexes are rebuilt on
// process start.
func (in *Ingestor) Warm(ctx context.Context, ownerID string) error {
	docs, err := in.store.ListDocuments(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("list documents for %s: %w", ownerID, err)
	}

	for _, doc := range docs {
		if doc.Status != domain.StatusReady {
			continue
		}
		chunks, err := in.store.GetChunks(ctx, doc.ID)
		if err != nil {
			return fmt.Errorf("load chunks for %s: %w", doc.ID, err)
		}
		in.lexicon.IndexChunks(ownerID, doc.ID, chunks)

		vectors := make([]driven.ChunkVector, 0, len(chunks))
		for _, chunk := range chunks {
			if len(chunk.Embedding) == 0 {
				continue
			}
			vectors = append(vectors, driven.ChunkVector{ChunkID: chunk.ID, Embedding: chunk.Embedding})
		}
		if err := in.vectors.Upsert(ctx, ownerID, doc.ID, vectors); err != nil {
			return fmt.Errorf("index vectors for %s: %w", doc.ID, err)
		}
	}
	logger.Debug("warmed indexes for %s (%d documents)", ownerID, len(docs))
	return nil
}

// Delete removes a document from storage and both indexes.
func (in *Ingestor) Delete(ctx context.Context, documentID string) error {
	doc, err := in.store.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document %s: %w", documentID, err)
	}
	if err := in.store.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	in.lexicon.RemoveDocument(doc.OwnerID, documentID)
	if err := in.vectors.Delete(ctx, doc.OwnerID, documentID); err != nil {
		return fmt.Errorf("delete vectors for %s: %w", documentID, err)
	}
	return nil
}

// index runs chunk -> embed -> store -> index for one document, updating
// its status along the way. doc is mutated in place.
func (in *Ingestor) index(ctx context.Context, doc *domain.Document) error {
	doc.Status = domain.StatusProcessing
	doc.UpdatedAt = in.now()
	if err := in.store.SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("save document: %w", err)
	}

	chunks := in.splitter.Chunks(doc)
	if len(chunks) == 0 {
		in.markError(ctx, doc)
		return fmt.Errorf("document %s produced no chunks: %w", doc.ID, domain.ErrInvalidInput)
	}

	embedded, err := in.embedChunks(ctx, chunks)
	if err != nil {
		in.markError(ctx, doc)
		return fmt.Errorf("embed document %s: %w", doc.ID, err)
	}

	if err := in.store.ReplaceChunks(ctx, doc.ID, embedded); err != nil {
		in.markError(ctx, doc)
		return fmt.Errorf("replace chunks for %s: %w", doc.ID, err)
	}

	vectors := make([]driven.ChunkVector, len(embedded))
	for i, chunk := range embedded {
		vectors[i] = driven.ChunkVector{ChunkID: chunk.ID, Embedding: chunk.Embedding}
	}
	if err := in.vectors.Upsert(ctx, doc.OwnerID, doc.ID, vectors); err != nil {
		in.markError(ctx, doc)
		return fmt.Errorf("index vectors for %s: %w", doc.ID, err)
	}
	in.lexicon.IndexChunks(doc.OwnerID, doc.ID, embedded)

	doc.Status = domain.StatusReady
	doc.ChunkCount = len(embedded)
	doc.UpdatedAt = in.now()
	if err := in.store.SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	logger.Info("indexed %s (%d chunks, model %s)", doc.ID, len(embedded), in.embedder.ModelID())
	return nil
}

// embedChunks embeds the whole chunk set in one pass; if the batch as a
// whole fails, it retries chunk by chunk so a single poison chunk cannot
// sink the document. Chunks that still fail are skipped and logged.
func (in *Ingestor) embedChunks(ctx context.Context, chunks []domain.Chunk) ([]domain.Chunk, error) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	modelID := in.embedder.ModelID()
	embeddings, err := in.embedder.EmbedBatch(ctx, texts)
	if err == nil {
		for i := range chunks {
			chunks[i].Embedding = embeddings[i]
			chunks[i].EmbeddingModelID = modelID
		}
		return chunks, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	logger.Warn("batch embedding failed, retrying chunk by chunk: %v", err)

	kept := chunks[:0]
	for i, chunk := range chunks {
		single, singleErr := in.embedder.EmbedBatch(ctx, []string{chunk.Text})
		if singleErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("skipping chunk %s: %v", chunk.ID, singleErr)
			continue
		}
		chunks[i].Embedding = single[0]
		chunks[i].EmbeddingModelID = in.embedder.ModelID()
		kept = append(kept, chunks[i])
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("every chunk failed to embed: %w", err)
	}
	return kept, nil
}

// markError records the error state; a failure to record it is only
// logged since the original error is the one worth surfacing.
func (in *Ingestor) markError(ctx context.Context, doc *domain.Document) {
	doc.Status = domain.StatusError
	doc.UpdatedAt = in.now()
	if err := in.store.SaveDocument(ctx, doc); err != nil {
		logger.Warn("could not record error state for %s: %v", doc.ID, err)
	}
}
