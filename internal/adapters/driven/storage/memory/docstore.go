// Package memory provides an in-memory DocumentStore. State lives for
// the process lifetime only; used for tests and ephemeral sessions.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tessera-labs/verso/internal/core/domain"
	"github.com/tessera-labs/verso/internal/core/ports/driven"
	"github.com/tessera-labs/verso/internal/index/lexical"
)

// Store holds documents and chunks in maps guarded by a single RWMutex.
type Store struct {
	mu        sync.RWMutex
	documents map[string]*domain.Document
	chunks    map[string]map[string]domain.Chunk // documentID -> chunkID -> chunk
}

var _ driven.DocumentStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		documents: make(map[string]*domain.Document),
		chunks:    make(map[string]map[string]domain.Chunk),
	}
}

func (s *Store) SaveDocument(_ context.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("document id is required: %w", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *doc
	s.documents[doc.ID] = &copied
	return nil
}

func (s *Store) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	copied := *doc
	return &copied, nil
}

func (s *Store) ListDocuments(_ context.Context, ownerID string) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]domain.Document, 0)
	for _, doc := range s.documents {
		if doc.OwnerID == ownerID {
			docs = append(docs, *doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

func (s *Store) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	delete(s.documents, id)
	delete(s.chunks, id)
	return nil
}

func (s *Store) ReplaceChunks(_ context.Context, documentID string, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[string]domain.Chunk, len(chunks))
	for _, chunk := range chunks {
		set[chunk.ID] = chunk
	}
	s.chunks[documentID] = set
	return nil
}

func (s *Store) GetChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := make([]domain.Chunk, 0, len(s.chunks[documentID]))
	for _, chunk := range s.chunks[documentID] {
		chunks = append(chunks, chunk)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return chunks, nil
}

func (s *Store) GetChunk(_ context.Context, id string) (*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, set := range s.chunks {
		if chunk, ok := set[id]; ok {
			return &chunk, nil
		}
	}
	return nil, fmt.Errorf("chunk %s: %w", id, domain.ErrNotFound)
}

func (s *Store) ListChunksByOwner(_ context.Context, ownerID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := make([]domain.Chunk, 0)
	for _, set := range s.chunks {
		for _, chunk := range set {
			if chunk.OwnerID == ownerID {
				chunks = append(chunks, chunk)
			}
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ID < chunks[j].ID })
	return chunks, nil
}

// FreeTextSearch ranks the owner's documents by how many distinct query
// terms their raw text contains.
func (s *Store) FreeTextSearch(_ context.Context, ownerID, query string, limit int) ([]domain.Document, error) {
	terms := lexical.Tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		doc     domain.Document
		matches int
	}
	candidates := make([]scored, 0)
	for _, doc := range s.documents {
		if doc.OwnerID != ownerID {
			continue
		}
		text := strings.ToLower(doc.RawText)
		matches := 0
		for _, term := range terms {
			if strings.Contains(text, term) {
				matches++
			}
		}
		if matches > 0 {
			candidates = append(candidates, scored{doc: *doc, matches: matches})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].matches != candidates[j].matches {
			return candidates[i].matches > candidates[j].matches
		}
		return candidates[i].doc.ID < candidates[j].doc.ID
	})

	docs := make([]domain.Document, 0, len(candidates))
	for _, c := range candidates {
		docs = append(docs, c.doc)
	}
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}
