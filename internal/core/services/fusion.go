package services

import (
	"sort"

	"github.com/tessera-labs/verso/internal/core/domain"
	"github.com/tessera-labs/verso/internal/core/ports/driven"
	"github.com/tessera-labs/verso/internal/index/lexical"
)

// DefaultRRFK is the default reciprocal-rank-fusion constant. Larger
// values flatten the influence of top ranks.
const DefaultRRFK = 60

// FusionConfig tunes reciprocal rank fusion.
type FusionConfig struct {
	// K is the RRF constant; 0 selects DefaultRRFK.
	K int

	// Normalize scales fused scores into [0,1] by dividing by the
	// maximum achievable score (rank 1 in both lists), clamped to 1.
	Normalize bool
}

// Fuse merges the semantic and lexical rankings with reciprocal rank
// fusion: score(c) = sum over lists of 1/(K + rank). A chunk absent
// from one list simply receives no contribution from it. The output
// order is fully deterministic: ties are broken by better semantic
// rank, then better lexical rank, then chunk ID.
func Fuse(semantic []driven.VectorHit, lexicalHits []lexical.Hit, cfg FusionConfig) []domain.Candidate {
	k := cfg.K
	if k <= 0 {
		k = DefaultRRFK
	}

	byID := make(map[string]*domain.Candidate)

	for i, hit := range semantic {
		rank := i + 1
		byID[hit.ChunkID] = &domain.Candidate{
			ChunkID:       hit.ChunkID,
			SemanticRank:  rank,
			SemanticScore: hit.Similarity,
			FusedScore:    1.0 / float64(k+rank),
			Sources:       []domain.RankSource{domain.RankSourceSemantic},
		}
	}

	for i, hit := range lexicalHits {
		rank := i + 1
		c := byID[hit.ChunkID]
		if c == nil {
			c = &domain.Candidate{ChunkID: hit.ChunkID}
			byID[hit.ChunkID] = c
		}
		c.LexicalRank = rank
		c.LexicalScore = hit.Score
		c.FusedScore += 1.0 / float64(k+rank)
		c.Sources = append(c.Sources, domain.RankSourceLexical)
	}

	candidates := make([]domain.Candidate, 0, len(byID))
	for _, c := range byID {
		c.DominantType = dominantType(c)
		candidates = append(candidates, *c)
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		if ar, br := rankOrWorst(a.SemanticRank), rankOrWorst(b.SemanticRank); ar != br {
			return ar < br
		}
		if ar, br := rankOrWorst(a.LexicalRank), rankOrWorst(b.LexicalRank); ar != br {
			return ar < br
		}
		return a.ChunkID < b.ChunkID
	})

	if cfg.Normalize {
		max := 2.0 / float64(k)
		for i := range candidates {
			candidates[i].FusedScore /= max
			if candidates[i].FusedScore > 1 {
				candidates[i].FusedScore = 1
			}
		}
	}

	return candidates
}

// dominantType labels the list that gave the candidate its better rank.
// Used for display only, never for scoring. Semantic wins exact ties.
func dominantType(c *domain.Candidate) domain.RankSource {
	sr := rankOrWorst(c.SemanticRank)
	lr := rankOrWorst(c.LexicalRank)
	if sr <= lr {
		return domain.RankSourceSemantic
	}
	return domain.RankSourceLexical
}

// rankOrWorst maps "absent" (0) to the worst possible rank so absent
// entries never win a comparison.
func rankOrWorst(rank int) int {
	if rank <= 0 {
		return int(^uint(0) >> 1)
	}
	return rank
}
