package domain

// RankSource labels which ranked list a candidate appeared in.
type RankSource string

const (
	// RankSourceSemantic marks a candidate from the vector ranking.
	RankSourceSemantic RankSource = "semantic"
	// RankSourceLexical marks a candidate from the BM25 ranking.
	RankSourceLexical RankSource = "lexical"
)

// Candidate is an ephemeral retrieval result. It exists only within a
// single retrieval call and is never persisted.
type Candidate struct {
	// ChunkID identifies the underlying chunk.
	ChunkID string

	// OwnerID mirrors the chunk's owner.
	OwnerID string

	// DocumentID links to the parent document.
	DocumentID string

	// Text is the chunk content.
	Text string

	// Metadata carries the chunk's positional metadata.
	Metadata ChunkMetadata

	// SemanticRank is the 1-based rank in the vector list, 0 if absent.
	SemanticRank int

	// LexicalRank is the 1-based rank in the BM25 list, 0 if absent.
	LexicalRank int

	// SemanticScore is the cosine similarity, 0 if absent.
	SemanticScore float64

	// LexicalScore is the BM25 score, 0 if absent.
	LexicalScore float64

	// FusedScore is the reciprocal-rank-fusion score.
	FusedScore float64

	// Sources lists which rankings the candidate appeared in.
	Sources []RankSource

	// DominantType is the ranking that gave the candidate its better
	// rank. Labelling only, never used for scoring.
	DominantType RankSource
}

// RetrievalTier identifies which fallback tier served a query.
type RetrievalTier string

const (
	// TierNativeVector is the primary tier: native backend + BM25, fused.
	TierNativeVector RetrievalTier = "native_vector"
	// TierLocalSimilarity is brute-force cosine over local vectors.
	TierLocalSimilarity RetrievalTier = "local_similarity"
	// TierLexicalPrefilter shortlists documents by free-text search and
	// recomputes similarity over their freshly chunked text.
	TierLexicalPrefilter RetrievalTier = "lexical_prefilter_recompute"
	// TierEmpty means every tier was exhausted without candidates.
	TierEmpty RetrievalTier = "empty"
)

// RetrievalOptions configures a retrieval call.
type RetrievalOptions struct {
	// TopK is the number of fused candidates to return.
	TopK int

	// DocumentID optionally restricts retrieval to one document.
	DocumentID string
}

// RetrievalResult is the outcome of one orchestrated retrieval.
type RetrievalResult struct {
	// Candidates is the fused top-k, best first. May be empty.
	Candidates []Candidate

	// Tier is the fallback tier that produced the candidates.
	Tier RetrievalTier
}
