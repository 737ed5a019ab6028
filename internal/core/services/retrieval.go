package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tessera-labs/verso/internal/core/domain"
	"github.com/tessera-labs/verso/internal/core/ports/driven"
	"github.com/tessera-labs/verso/internal/index/lexical"
	"github.com/tessera-labs/verso/internal/index/vector"
	"github.com/tessera-labs/verso/internal/logger"
	"github.com/tessera-labs/verso/internal/postprocessors/chunker"
)

const (
	// DefaultTopK is the number of candidates returned when the caller
	// does not specify one.
	DefaultTopK = 4

	// fetchFactor over-fetches each ranked list before fusion so chunks
	// ranked well in only one list still make the fused top-k.
	fetchFactor = 3

	// prefilterDocLimit bounds the free-text document shortlist in the
	// recompute tier.
	prefilterDocLimit = 5
)

// RetrievalService orchestrates hybrid retrieval across fallback tiers:
// native vector search fused with BM25, brute-force local similarity,
// lexical document prefilter with on-the-fly recompute, and finally an
// explicit empty result. An empty result is a valid outcome, not an
// error.
type RetrievalService struct {
	store    driven.DocumentStore
	embedder driven.EmbeddingProvider
	vectors  *vector.Index
	lexicon  *lexical.Index
	splitter *chunker.Processor

	fusion        FusionConfig
	minSimilarity float64
}

// RetrievalOption configures the service.
type RetrievalOption func(*RetrievalService)

// WithFusion overrides the reciprocal-rank-fusion configuration.
func WithFusion(cfg FusionConfig) RetrievalOption {
	return func(s *RetrievalService) {
		s.fusion = cfg
	}
}

// WithMinSimilarity sets the cosine similarity below which a purely
// semantic result is considered too weak and retrieval escalates to the
// recompute tier. Zero disables the threshold.
func WithMinSimilarity(min float64) RetrievalOption {
	return func(s *RetrievalService) {
		s.minSimilarity = min
	}
}

// NewRetrievalService wires the orchestrator. All collaborators are
// required.
func NewRetrievalService(
	store driven.DocumentStore,
	embedder driven.EmbeddingProvider,
	vectors *vector.Index,
	lexicon *lexical.Index,
	splitter *chunker.Processor,
	opts ...RetrievalOption,
) (*RetrievalService, error) {
	if store == nil || embedder == nil || vectors == nil || lexicon == nil || splitter == nil {
		return nil, fmt.Errorf("retrieval service: all collaborators are required")
	}

	s := &RetrievalService{
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		lexicon:  lexicon,
		splitter: splitter,
		fusion:   FusionConfig{K: DefaultRRFK},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Retrieve runs the tier ladder for one query. The owner filter applies
// before any scoring in every tier. The returned tier records which
// ladder rung actually served the candidates.
func (s *RetrievalService) Retrieve(ctx context.Context, ownerID, query string, opts domain.RetrievalOptions) (*domain.RetrievalResult, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("empty owner id: %w", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query: %w", domain.ErrInvalidInput)
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	fetchK := topK * fetchFactor

	queryVec, embedErr := s.embedQuery(ctx, query)
	if embedErr != nil {
		if errors.Is(embedErr, context.Canceled) || errors.Is(embedErr, context.DeadlineExceeded) {
			return nil, embedErr
		}
		// Even the degraded hash tier is gone. Serve lexical-only.
		logger.Warn("query embedding unavailable, serving lexical-only retrieval: %v", embedErr)
		return s.lexicalOnly(ctx, ownerID, query, topK, fetchK, opts.DocumentID)
	}

	var (
		wg      sync.WaitGroup
		semHits []driven.VectorHit
		semErr  error
		lexHits []lexical.Hit
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		semHits, semErr = s.vectors.Search(ctx, ownerID, queryVec, fetchK, opts.DocumentID)
	}()
	go func() {
		defer wg.Done()
		lexHits = s.filterLexical(s.lexicon.Query(ownerID, query, fetchK), opts.DocumentID, fetchK)
	}()
	wg.Wait()

	if semErr != nil {
		return nil, fmt.Errorf("vector search: %w", semErr)
	}

	candidates, err := s.hydrate(ctx, Fuse(semHits, lexHits, s.fusion))
	if err != nil {
		return nil, err
	}
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	if s.acceptable(candidates) {
		tier := domain.TierLocalSimilarity
		if s.vectors.UsingNative() {
			tier = domain.TierNativeVector
		}
		return &domain.RetrievalResult{Candidates: candidates, Tier: tier}, nil
	}

	// The native backend answered but the fused pool is empty or too
	// weak. Retry the semantic leg over the local mirror before giving
	// up on stored vectors: the mirror scores every owned vector, not
	// just the backend's shortlist.
	if s.vectors.UsingNative() {
		logger.Debug("native tier result below threshold, retrying with local similarity")
		localHits, localErr := s.vectors.SearchLocal(ctx, ownerID, queryVec, fetchK, opts.DocumentID)
		if localErr != nil {
			return nil, fmt.Errorf("local similarity search: %w", localErr)
		}
		candidates, err = s.hydrate(ctx, Fuse(localHits, lexHits, s.fusion))
		if err != nil {
			return nil, err
		}
		if len(candidates) > topK {
			candidates = candidates[:topK]
		}
		if s.acceptable(candidates) {
			return &domain.RetrievalResult{Candidates: candidates, Tier: domain.TierLocalSimilarity}, nil
		}
	}

	return s.prefilterRecompute(ctx, ownerID, query, queryVec, topK, opts.DocumentID)
}

// embedQuery returns the query embedding.
func (s *RetrievalService) embedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := s.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected 1 query embedding, got %d", len(vecs))
	}
	return vecs[0], nil
}

// filterLexical restricts BM25 hits to one document when requested.
// Chunk IDs are "<documentID>#<index>", so the parent is recoverable
// without a store round-trip.
func (s *RetrievalService) filterLexical(hits []lexical.Hit, documentID string, limit int) []lexical.Hit {
	if documentID == "" {
		return hits
	}
	prefix := documentID + "#"
	filtered := hits[:0:0]
	for _, h := range hits {
		if strings.HasPrefix(h.ChunkID, prefix) {
			filtered = append(filtered, h)
		}
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered
}

// acceptable reports whether a fused candidate list is good enough to
// stop the tier ladder. With no threshold configured any non-empty list
// is accepted. A list whose best candidate is semantic-only and below
// the threshold escalates.
func (s *RetrievalService) acceptable(candidates []domain.Candidate) bool {
	if len(candidates) == 0 {
		return false
	}
	if s.minSimilarity <= 0 {
		return true
	}
	top := candidates[0]
	return top.LexicalRank > 0 || top.SemanticScore >= s.minSimilarity
}

// hydrate fills candidate text and lineage from the document store.
// Candidates whose chunks vanished between indexing and lookup are
// dropped rather than failing the whole retrieval.
func (s *RetrievalService) hydrate(ctx context.Context, candidates []domain.Candidate) ([]domain.Candidate, error) {
	out := candidates[:0]
	for _, c := range candidates {
		chunk, err := s.store.GetChunk(ctx, c.ChunkID)
		if errors.Is(err, domain.ErrNotFound) {
			logger.Debug("dropping stale candidate %s: chunk no longer stored", c.ChunkID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("hydrate candidate %s: %w", c.ChunkID, err)
		}
		c.OwnerID = chunk.OwnerID
		c.DocumentID = chunk.DocumentID
		c.Text = chunk.Text
		c.Metadata = chunk.Metadata
		out = append(out, c)
	}
	return out, nil
}

// lexicalOnly serves BM25 results without any semantic list. Used when
// the embedding chain is fully unavailable.
func (s *RetrievalService) lexicalOnly(ctx context.Context, ownerID, query string, topK, fetchK int, documentID string) (*domain.RetrievalResult, error) {
	lexHits := s.filterLexical(s.lexicon.Query(ownerID, query, fetchK), documentID, fetchK)
	candidates, err := s.hydrate(ctx, Fuse(nil, lexHits, s.fusion))
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return &domain.RetrievalResult{Tier: domain.TierEmpty}, nil
	}
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return &domain.RetrievalResult{Candidates: candidates, Tier: domain.TierLexicalPrefilter}, nil
}

// prefilterRecompute is the last substantive tier: shortlist documents
// by free-text match, re-split their raw text, embed the pieces with the
// current model, and rank by cosine similarity against the query. All
// scoring happens over fresh embeddings, so stale or mismatched stored
// vectors cannot poison the result.
func (s *RetrievalService) prefilterRecompute(ctx context.Context, ownerID, query string, queryVec []float32, topK int, documentID string) (*domain.RetrievalResult, error) {
	docs, err := s.store.FreeTextSearch(ctx, ownerID, query, prefilterDocLimit)
	if err != nil {
		return nil, fmt.Errorf("free-text prefilter: %w", err)
	}

	pieces := make(map[string]domain.Chunk)
	var texts []string
	var ids []string

	for _, doc := range docs {
		if documentID != "" && doc.ID != documentID {
			continue
		}
		for i, p := range s.splitter.Split(doc.RawText) {
			id := domain.ChunkID(doc.ID, i)
			pieces[id] = domain.Chunk{
				ID:         id,
				OwnerID:    ownerID,
				DocumentID: doc.ID,
				Index:      i,
				Text:       p.Text,
				Metadata:   domain.ChunkMetadata{CharOffset: p.Offset},
			}
			texts = append(texts, p.Text)
			ids = append(ids, id)
		}
	}
	if len(texts) == 0 {
		return &domain.RetrievalResult{Tier: domain.TierEmpty}, nil
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		logger.Warn("recompute tier embedding failed: %v", err)
		return &domain.RetrievalResult{Tier: domain.TierEmpty}, nil
	}

	hits := make([]driven.VectorHit, 0, len(ids))
	for i, id := range ids {
		if len(embeddings[i]) != len(queryVec) {
			continue
		}
		hits = append(hits, driven.VectorHit{
			ChunkID:    id,
			Similarity: vector.Cosine(queryVec, embeddings[i]),
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}

	candidates := Fuse(hits, nil, s.fusion)
	for i := range candidates {
		p := pieces[candidates[i].ChunkID]
		candidates[i].OwnerID = p.OwnerID
		candidates[i].DocumentID = p.DocumentID
		candidates[i].Text = p.Text
		candidates[i].Metadata = p.Metadata
	}

	if len(candidates) == 0 {
		return &domain.RetrievalResult{Tier: domain.TierEmpty}, nil
	}
	return &domain.RetrievalResult{Candidates: candidates, Tier: domain.TierLexicalPrefilter}, nil
}
