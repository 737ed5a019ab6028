package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/tessera-labs/verso/internal/core/domain"
	"github.com/tessera-labs/verso/internal/core/ports/driven"
	"github.com/tessera-labs/verso/internal/index/lexical"
)

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

// SaveDocument stores or updates a document.
func (s *documentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("document id is required: %w", domain.ErrInvalidInput)
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO documents (id, owner_id, name, raw_text, status, chunk_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			name = excluded.name,
			raw_text = excluded.raw_text,
			status = excluded.status,
			chunk_count = excluded.chunk_count,
			updated_at = excluded.updated_at
	`, doc.ID, doc.OwnerID, doc.Name, doc.RawText, string(doc.Status),
		doc.ChunkCount, doc.CreatedAt, doc.UpdatedAt)

	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, raw_text, status, chunk_count, created_at, updated_at
		FROM documents WHERE id = ?
	`, id)
	return scanDocument(row.Scan)
}

// ListDocuments returns all documents for an owner, oldest first.
func (s *documentStore) ListDocuments(ctx context.Context, ownerID string) ([]domain.Document, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, owner_id, name, raw_text, status, chunk_count, created_at, updated_at
		FROM documents WHERE owner_id = ?
		ORDER BY created_at ASC, id ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

// DeleteDocument removes a document; its chunks go with it via the
// foreign key cascade.
func (s *documentStore) DeleteDocument(ctx context.Context, id string) error {
	result, err := s.store.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ReplaceChunks swaps the document's full chunk set in one transaction.
func (s *documentStore) ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, owner_id, document_id, chunk_index, text, embedding, embedding_model_id, page, char_offset)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		_, err := stmt.ExecContext(ctx, chunk.ID, chunk.OwnerID, chunk.DocumentID,
			chunk.Index, chunk.Text, float32SliceToBytes(chunk.Embedding),
			chunk.EmbeddingModelID, chunk.Metadata.Page, chunk.Metadata.CharOffset)
		if err != nil {
			return fmt.Errorf("inserting chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing chunks: %w", err)
	}
	return nil
}

// GetChunks retrieves all chunks for a document, ordered by index.
func (s *documentStore) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, owner_id, document_id, chunk_index, text, embedding, embedding_model_id, page, char_offset
		FROM chunks WHERE document_id = ?
		ORDER BY chunk_index ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	return collectChunks(rows)
}

// GetChunk retrieves a specific chunk by ID.
func (s *documentStore) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, owner_id, document_id, chunk_index, text, embedding, embedding_model_id, page, char_offset
		FROM chunks WHERE id = ?
	`, id)

	chunk, err := scanChunk(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chunk %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return chunk, nil
}

// ListChunksByOwner retrieves every chunk belonging to an owner.
func (s *documentStore) ListChunksByOwner(ctx context.Context, ownerID string) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, owner_id, document_id, chunk_index, text, embedding, embedding_model_id, page, char_offset
		FROM chunks WHERE owner_id = ?
		ORDER BY id ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	return collectChunks(rows)
}

// FreeTextSearch ranks the owner's documents by how many distinct query
// terms their raw text contains, using LIKE matches.
func (s *documentStore) FreeTextSearch(ctx context.Context, ownerID, query string, limit int) ([]domain.Document, error) {
	terms := lexical.Tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	cases := make([]string, len(terms))
	args := make([]any, 0, len(terms)+2)
	for i, term := range terms {
		cases[i] = `(CASE WHEN lower(raw_text) LIKE ? ESCAPE '\' THEN 1 ELSE 0 END)`
		args = append(args, "%"+escapeLike(term)+"%")
	}
	args = append(args, ownerID, limit)

	// The query is assembled from fixed fragments; all user input is
	// bound as parameters.
	q := fmt.Sprintf(`
		SELECT id, owner_id, name, raw_text, status, chunk_count, created_at, updated_at
		FROM (
			SELECT *, (%s) AS score
			FROM documents WHERE owner_id = ?
		)
		WHERE score > 0
		ORDER BY score DESC, id ASC
		LIMIT ?
	`, strings.Join(cases, " + "))

	rows, err := s.store.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("free-text search: %w", err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

// escapeLike neutralises LIKE wildcards in a search term.
func escapeLike(term string) string {
	term = strings.ReplaceAll(term, `%`, `\%`)
	return strings.ReplaceAll(term, `_`, `\_`)
}

// scanDocument scans one document row via the given scan function.
func scanDocument(scan func(...any) error) (*domain.Document, error) {
	var doc domain.Document
	var status string
	if err := scan(&doc.ID, &doc.OwnerID, &doc.Name, &doc.RawText, &status,
		&doc.ChunkCount, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

func collectDocuments(rows *sql.Rows) ([]domain.Document, error) {
	var docs []domain.Document //nolint:prealloc // size unknown from query
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// scanChunk scans one chunk row via the given scan function.
func scanChunk(scan func(...any) error) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var embedding []byte
	if err := scan(&chunk.ID, &chunk.OwnerID, &chunk.DocumentID, &chunk.Index,
		&chunk.Text, &embedding, &chunk.EmbeddingModelID,
		&chunk.Metadata.Page, &chunk.Metadata.CharOffset); err != nil {
		return nil, err
	}
	chunk.Embedding = bytesToFloat32Slice(embedding)
	return &chunk, nil
}

func collectChunks(rows *sql.Rows) ([]domain.Chunk, error) {
	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		chunk, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, *chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}
