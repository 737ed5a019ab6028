package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-labs/verso/internal/adapters/driven/embedding/hash"
	"github.com/tessera-labs/verso/internal/core/domain"
	"github.com/tessera-labs/verso/internal/core/ports/driven"
	"github.com/tessera-labs/verso/internal/core/ports/driving"
	"github.com/tessera-labs/verso/internal/embedding"
	"github.com/tessera-labs/verso/internal/index/lexical"
	"github.com/tessera-labs/verso/internal/index/vector"
	"github.com/tessera-labs/verso/internal/postprocessors/chunker"
)

// Full pipeline over the degraded hash embedder: ingest two small
// documents, then answer a question about one of them.
func TestPipeline_IngestThenAsk(t *testing.T) {
	store := newMemStore()
	vectors := vector.New(nil)
	lexicon := lexical.New()
	splitter := chunker.New()

	embedder, err := embedding.New([]driven.EmbeddingProvider{hash.New(64)})
	require.NoError(t, err)

	ingestor, err := NewIngestor(store, embedder, vectors, lexicon, splitter)
	require.NoError(t, err)

	retrieval, err := NewRetrievalService(store, embedder, vectors, lexicon, splitter)
	require.NoError(t, err)

	llm := newStubLLM()
	llm.responses["test-model"] = "The capital of France is Paris [1]."
	gen, err := NewAnswerGenerator(llm, []string{"test-model"})
	require.NoError(t, err)

	asker, err := NewAsker(retrieval, NewContextAssembler(0), gen, store,
		WithStaleReindexer(ingestor))
	require.NoError(t, err)

	ctx := context.Background()
	parisDoc, err := ingestor.Ingest(ctx, "alice", "capitals.txt", "Paris is the capital of France.")
	require.NoError(t, err)
	_, err = ingestor.Ingest(ctx, "alice", "landmarks.txt", "The Eiffel Tower is in Paris.")
	require.NoError(t, err)

	t.Run("retrieval ranks the capital chunk first", func(t *testing.T) {
		result, err := retrieval.Retrieve(ctx, "alice", "What is the capital of France?", domain.RetrievalOptions{TopK: 1})
		require.NoError(t, err)

		require.Len(t, result.Candidates, 1)
		top := result.Candidates[0]
		assert.Equal(t, parisDoc.ID+"#0", top.ChunkID)
		assert.Greater(t, top.SemanticScore, 0.0)

		// Appearing in both rankings beats what either list alone
		// would have scored.
		k := float64(DefaultRRFK)
		if top.LexicalRank > 0 {
			assert.Greater(t, top.FusedScore, 1.0/(k+float64(top.LexicalRank)))
		}
		assert.Greater(t, top.FusedScore, 0.0)
	})

	t.Run("ask produces a cited grounded answer", func(t *testing.T) {
		answer, err := asker.Ask(ctx, driving.AskRequest{
			OwnerID: "alice",
			Query:   "What is the capital of France?",
			TopK:    1,
		})
		require.NoError(t, err)

		assert.True(t, answer.Grounded)
		assert.Equal(t, "The capital of France is Paris [1].", answer.AnswerText)
		require.Len(t, answer.Sources, 1)
		assert.Equal(t, parisDoc.ID+"#0", answer.Sources[0].ChunkID)
		assert.Equal(t, "capitals.txt", answer.Sources[0].DocumentName)
	})

	t.Run("other owners see nothing", func(t *testing.T) {
		result, err := retrieval.Retrieve(ctx, "mallory", "What is the capital of France?", domain.RetrievalOptions{TopK: 1})
		require.NoError(t, err)
		assert.Empty(t, result.Candidates)
	})
}
