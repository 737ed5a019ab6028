package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-labs/verso/internal/core/domain"
	"github.com/tessera-labs/verso/internal/core/ports/driven"
	"github.com/tessera-labs/verso/internal/index/lexical"
	"github.com/tessera-labs/verso/internal/index/vector"
	"github.com/tessera-labs/verso/internal/postprocessors/chunker"
)

// nativeStub is a scriptable driven.VectorStore.
type nativeStub struct {
	hits      []driven.VectorHit
	searchErr error
}

func (n *nativeStub) Upsert(context.Context, string, string, []driven.ChunkVector) error {
	return nil
}

func (n *nativeStub) Delete(context.Context, string, string) error { return nil }

func (n *nativeStub) Search(context.Context, string, []float32, int, string) ([]driven.VectorHit, error) {
	if n.searchErr != nil {
		return nil, n.searchErr
	}
	return n.hits, nil
}

type retrievalFixture struct {
	store    *memStore
	embedder *stubEmbedder
	vectors  *vector.Index
	lexicon  *lexical.Index
	svc      *RetrievalService
}

func newRetrievalFixture(t *testing.T, native driven.VectorStore, opts ...RetrievalOption) *retrievalFixture {
	t.Helper()
	f := &retrievalFixture{
		store:    newMemStore(),
		embedder: newStubEmbedder(3),
		vectors:  vector.New(native),
		lexicon:  lexical.New(),
	}
	svc, err := NewRetrievalService(f.store, f.embedder, f.vectors, f.lexicon, chunker.New(), opts...)
	require.NoError(t, err)
	f.svc = svc
	return f
}

// seedDocument stores and indexes one document whose chunks carry the
// given texts and embeddings.
func (f *retrievalFixture) seedDocument(t *testing.T, ownerID, docID, name string, texts []string, embeds [][]float32) {
	t.Helper()
	require.Equal(t, len(texts), len(embeds))

	doc := &domain.Document{
		ID:        docID,
		OwnerID:   ownerID,
		Name:      name,
		RawText:   strings.Join(texts, "\n\n"),
		Status:    domain.StatusReady,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, f.store.SaveDocument(context.Background(), doc))

	chunks := make([]domain.Chunk, len(texts))
	vectors := make([]driven.ChunkVector, len(texts))
	for i, text := range texts {
		id := domain.ChunkID(docID, i)
		chunks[i] = domain.Chunk{
			ID:               id,
			OwnerID:          ownerID,
			DocumentID:       docID,
			Index:            i,
			Text:             text,
			Embedding:        embeds[i],
			EmbeddingModelID: f.embedder.ModelID(),
		}
		vectors[i] = driven.ChunkVector{ChunkID: id, Embedding: embeds[i]}
	}
	require.NoError(t, f.store.ReplaceChunks(context.Background(), docID, chunks))
	require.NoError(t, f.vectors.Upsert(context.Background(), ownerID, docID, vectors))
	f.lexicon.IndexChunks(ownerID, docID, chunks)
}

func TestRetrieve_Validation(t *testing.T) {
	f := newRetrievalFixture(t, nil)

	_, err := f.svc.Retrieve(context.Background(), "", "q", domain.RetrievalOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.Retrieve(context.Background(), "alice", "  ", domain.RetrievalOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRetrieve_LocalSimilarityTier(t *testing.T) {
	f := newRetrievalFixture(t, nil)
	f.embedder.register("capital of france", []float32{1, 0, 0})
	f.seedDocument(t, "alice", "doc1", "geo.txt",
		[]string{"paris is the capital of france", "bananas are yellow", "the sky is blue"},
		[][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}})

	result, err := f.svc.Retrieve(context.Background(), "alice", "capital of france", domain.RetrievalOptions{TopK: 2})
	require.NoError(t, err)

	assert.Equal(t, domain.TierLocalSimilarity, result.Tier)
	require.NotEmpty(t, result.Candidates)
	top := result.Candidates[0]
	assert.Equal(t, "doc1#0", top.ChunkID)
	assert.Equal(t, "paris is the capital of france", top.Text)
	assert.Equal(t, "doc1", top.DocumentID)
	assert.Equal(t, "alice", top.OwnerID)
	assert.Contains(t, top.Sources, domain.RankSourceSemantic)
	assert.Contains(t, top.Sources, domain.RankSourceLexical)
}

func TestRetrieve_NativeVectorTier(t *testing.T) {
	native := &nativeStub{hits: []driven.VectorHit{{ChunkID: "doc1#0", Similarity: 0.95}}}
	f := newRetrievalFixture(t, native)
	f.seedDocument(t, "alice", "doc1", "geo.txt",
		[]string{"paris is the capital of france"},
		[][]float32{{1, 0, 0}})

	result, err := f.svc.Retrieve(context.Background(), "alice", "capital", domain.RetrievalOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.TierNativeVector, result.Tier)
	require.NotEmpty(t, result.Candidates)
	assert.Equal(t, "doc1#0", result.Candidates[0].ChunkID)
}

func TestRetrieve_NativeFailureFallsBackToLocal(t *testing.T) {
	native := &nativeStub{searchErr: errors.New("backend down")}
	f := newRetrievalFixture(t, native)
	f.embedder.register("capital", []float32{1, 0, 0})
	f.seedDocument(t, "alice", "doc1", "geo.txt",
		[]string{"the capital city"},
		[][]float32{{1, 0, 0}})

	result, err := f.svc.Retrieve(context.Background(), "alice", "capital", domain.RetrievalOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.TierLocalSimilarity, result.Tier)
	require.NotEmpty(t, result.Candidates)
	assert.Equal(t, "doc1#0", result.Candidates[0].ChunkID)
	assert.False(t, f.vectors.UsingNative())
}

func TestRetrieve_WeakNativeResultRetriesLocalSimilarity(t *testing.T) {
	// The backend answers, but only with a shortlist far below the
	// threshold. The local mirror holds a vector that matches the query
	// exactly, so the ladder must retry locally before escalating.
	native := &nativeStub{hits: []driven.VectorHit{{ChunkID: "doc1#1", Similarity: 0.05}}}
	f := newRetrievalFixture(t, native, WithMinSimilarity(0.5))
	f.embedder.register("capital of france", []float32{1, 0, 0})
	f.seedDocument(t, "alice", "doc1", "geo.txt",
		[]string{"bananas are yellow", "the sky is blue"},
		[][]float32{{1, 0, 0}, {0, 1, 0}})

	result, err := f.svc.Retrieve(context.Background(), "alice", "capital of france", domain.RetrievalOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.TierLocalSimilarity, result.Tier)
	require.NotEmpty(t, result.Candidates)
	top := result.Candidates[0]
	assert.Equal(t, "doc1#0", top.ChunkID)
	assert.GreaterOrEqual(t, top.SemanticScore, 0.5)
	// A weak answer is not a backend failure: the breaker stays open.
	assert.True(t, f.vectors.UsingNative())
}

func TestRetrieve_OwnerIsolation(t *testing.T) {
	f := newRetrievalFixture(t, nil)
	f.seedDocument(t, "alice", "doc1", "geo.txt",
		[]string{"paris is the capital of france"},
		[][]float32{{1, 0, 0}})

	result, err := f.svc.Retrieve(context.Background(), "bob", "capital of france", domain.RetrievalOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.TierEmpty, result.Tier)
	assert.Empty(t, result.Candidates)
}

func TestRetrieve_EmptyCorpusIsNotAnError(t *testing.T) {
	f := newRetrievalFixture(t, nil)

	result, err := f.svc.Retrieve(context.Background(), "alice", "anything", domain.RetrievalOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.TierEmpty, result.Tier)
	assert.Empty(t, result.Candidates)
}

func TestRetrieve_PrefilterRecomputeTier(t *testing.T) {
	f := newRetrievalFixture(t, nil)
	// A document that exists in the store but was never indexed, so the
	// first tiers have nothing to serve.
	doc := &domain.Document{
		ID:      "doc1",
		OwnerID: "alice",
		Name:    "geo.txt",
		RawText: "paris is the capital of france",
		Status:  domain.StatusReady,
	}
	require.NoError(t, f.store.SaveDocument(context.Background(), doc))

	result, err := f.svc.Retrieve(context.Background(), "alice", "capital of france", domain.RetrievalOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.TierLexicalPrefilter, result.Tier)
	require.NotEmpty(t, result.Candidates)
	top := result.Candidates[0]
	assert.Equal(t, "doc1#0", top.ChunkID)
	assert.Equal(t, "paris is the capital of france", top.Text)
	assert.Equal(t, "doc1", top.DocumentID)
}

func TestRetrieve_StaleIndexEntriesAreDropped(t *testing.T) {
	f := newRetrievalFixture(t, nil)
	f.seedDocument(t, "alice", "doc1", "geo.txt",
		[]string{"paris is the capital of france"},
		[][]float32{{1, 0, 0}})
	// Simulate the store racing ahead of the indexes.
	require.NoError(t, f.store.DeleteDocument(context.Background(), "doc1"))

	result, err := f.svc.Retrieve(context.Background(), "alice", "capital of france", domain.RetrievalOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.TierEmpty, result.Tier)
	assert.Empty(t, result.Candidates)
}

func TestRetrieve_DocumentFilter(t *testing.T) {
	f := newRetrievalFixture(t, nil)
	f.embedder.register("capital", []float32{1, 0, 0})
	f.seedDocument(t, "alice", "doc1", "one.txt",
		[]string{"the capital of france"},
		[][]float32{{1, 0, 0}})
	f.seedDocument(t, "alice", "doc2", "two.txt",
		[]string{"the capital of spain"},
		[][]float32{{1, 0, 0}})

	result, err := f.svc.Retrieve(context.Background(), "alice", "capital", domain.RetrievalOptions{DocumentID: "doc2"})
	require.NoError(t, err)

	require.NotEmpty(t, result.Candidates)
	for _, c := range result.Candidates {
		assert.Equal(t, "doc2", c.DocumentID)
	}
}

func TestRetrieve_EmbedderDownServesLexicalOnly(t *testing.T) {
	f := newRetrievalFixture(t, nil)
	f.seedDocument(t, "alice", "doc1", "geo.txt",
		[]string{"paris is the capital of france"},
		[][]float32{{1, 0, 0}})
	f.embedder.failWith(domain.ErrEmbeddingUnavailable, -1)

	result, err := f.svc.Retrieve(context.Background(), "alice", "capital of france", domain.RetrievalOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.TierLexicalPrefilter, result.Tier)
	require.NotEmpty(t, result.Candidates)
	assert.Equal(t, "doc1#0", result.Candidates[0].ChunkID)
	assert.Equal(t, []domain.RankSource{domain.RankSourceLexical}, result.Candidates[0].Sources)
}

func TestRetrieve_WeakSemanticOnlyResultEscalates(t *testing.T) {
	f := newRetrievalFixture(t, nil, WithMinSimilarity(0.9))
	f.embedder.register("unrelated question", []float32{1, 0, 0})
	// Stored vector is nearly orthogonal and the text shares no terms
	// with the query, so the fused list is semantic-only and weak.
	f.seedDocument(t, "alice", "doc1", "geo.txt",
		[]string{"bananas are yellow"},
		[][]float32{{0.1, 1, 0}})

	result, err := f.svc.Retrieve(context.Background(), "alice", "unrelated question", domain.RetrievalOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.TierEmpty, result.Tier)
	assert.Empty(t, result.Candidates)
}

func TestRetrieve_TopKBoundsResult(t *testing.T) {
	f := newRetrievalFixture(t, nil)
	f.embedder.register("capital", []float32{1, 0, 0})
	texts := []string{"capital one", "capital two", "capital three", "capital four", "capital five"}
	embeds := make([][]float32, len(texts))
	for i := range embeds {
		embeds[i] = []float32{1, float32(i) * 0.01, 0}
	}
	f.seedDocument(t, "alice", "doc1", "many.txt", texts, embeds)

	result, err := f.svc.Retrieve(context.Background(), "alice", "capital", domain.RetrievalOptions{TopK: 2})
	require.NoError(t, err)
	assert.Len(t, result.Candidates, 2)
}
