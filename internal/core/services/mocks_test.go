package services

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

// memStore is an in-memory driven.DocumentStore for tests.
type memStore struct {
	mu        sync.RWMutex
	documents map[string]*domain.Document
	chunks    map[string]map[string]domain.Chunk // documentID -> chunkID -> chunk

	saveErr     error
	getChunkErr error
}

var _ driven.DocumentStore = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		documents: make(map[string]*domain.Document),
		chunks:    make(map[string]map[string]domain.Chunk),
	}
}

func (s *memStore) SaveDocument(_ context.Context, doc *domain.Document) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *doc
	s.documents[doc.ID] = &copied
	return nil
}

func (s *memStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	copied := *doc
	return &copied, nil
}

func (s *memStore) ListDocuments(_ context.Context, ownerID string) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var docs []domain.Document
	for _, doc := range s.documents {
		if doc.OwnerID == ownerID {
			docs = append(docs, *doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *memStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	delete(s.documents, id)
	delete(s.chunks, id)
	return nil
}

func (s *memStore) ReplaceChunks(_ context.Context, documentID string, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[string]domain.Chunk, len(chunks))
	for _, chunk := range chunks {
		set[chunk.ID] = chunk
	}
	s.chunks[documentID] = set
	return nil
}

func (s *memStore) GetChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Chunk
	for _, chunk := range s.chunks[documentID] {
		out = append(out, chunk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *memStore) GetChunk(_ context.Context, id string) (*domain.Chunk, error) {
	if s.getChunkErr != nil {
		return nil, s.getChunkErr
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, set := range s.chunks {
		if chunk, ok := set[id]; ok {
			return &chunk, nil
		}
	}
	return nil, fmt.Errorf("chunk %s: %w", id, domain.ErrNotFound)
}

func (s *memStore) ListChunksByOwner(_ context.Context, ownerID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Chunk
	for _, set := range s.chunks {
		for _, chunk := range set {
			if chunk.OwnerID == ownerID {
				out = append(out, chunk)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) FreeTextSearch(_ context.Context, ownerID, query string, limit int) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	terms := lexical.Tokenize(query)
	type scored struct {
		doc   domain.Document
		score int
	}
	var matches []scored
	for _, doc := range s.documents {
		if doc.OwnerID != ownerID {
			continue
		}
		text := strings.ToLower(doc.RawText)
		score := 0
		for _, term := range terms {
			if strings.Contains(text, term) {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{doc: *doc, score: score})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].doc.ID < matches[j].doc.ID
	})
	docs := make([]domain.Document, 0, len(matches))
	for _, m := range matches {
		docs = append(docs, m.doc)
	}
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// stubEmbedder is a controllable driven.EmbeddingProvider. Texts embed
// to the vector registered for them, or unitFallback when unregistered.
type stubEmbedder struct {
	mu         sync.Mutex
	vectors    map[string][]float32
	dims       int
	modelID    string
	degraded   bool
	err        error
	errRemain  int // number of calls err applies to; <0 means always
	batchCalls int
}

var _ driven.EmbeddingProvider = (*stubEmbedder)(nil)

func newStubEmbedder(dims int) *stubEmbedder {
	return &stubEmbedder{
		vectors: make(map[string][]float32),
		dims:    dims,
		modelID: "stub-v1",
	}
}

func (e *stubEmbedder) register(text string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[text] = vec
}

func (e *stubEmbedder) failWith(err error, calls int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
	e.errRemain = calls
}

func (e *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batchCalls++
	if e.err != nil && e.errRemain != 0 {
		if e.errRemain > 0 {
			e.errRemain--
		}
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if vec, ok := e.vectors[text]; ok {
			out[i] = vec
			continue
		}
		vec := make([]float32, e.dims)
		vec[0] = 1
		out[i] = vec
	}
	return out, nil
}

func (e *stubEmbedder) Dimensions() int { return e.dims }
func (e *stubEmbedder) ModelID() string { return e.modelID }
func (e *stubEmbedder) Degraded() bool  { return e.degraded }

// stubLLM is a scriptable driven.LLMProvider recording every call.
type stubLLM struct {
	mu        sync.Mutex
	responses map[string]string // modelID -> answer
	errs      map[string]error  // modelID -> error
	calls     []llmCall
}

type llmCall struct {
	messages []driven.ChatMessage
	modelID  string
}

var _ driven.LLMProvider = (*stubLLM)(nil)

func newStubLLM() *stubLLM {
	return &stubLLM{
		responses: make(map[string]string),
		errs:      make(map[string]error),
	}
}

func (l *stubLLM) Complete(_ context.Context, messages []driven.ChatMessage, modelID string, _ driven.CompleteOptions) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, llmCall{messages: messages, modelID: modelID})
	if err, ok := l.errs[modelID]; ok && err != nil {
		return "", err
	}
	if resp, ok := l.responses[modelID]; ok {
		return resp, nil
	}
	return "stub answer", nil
}
