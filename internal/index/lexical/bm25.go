// Package lexical provides an in-memory BM25 index over chunk text.
// The index is partitioned by owner: every query scores only the
// owner's own corpus.
package lexical

import (
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tessera-labs/verso/internal/core/domain"
)

// Default BM25 constants.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// Hit is a BM25 search result.
type Hit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Score is the BM25 relevance score, always > 0.
	Score float64
}

// entry holds the indexed form of one chunk.
type entry struct {
	documentID string
	terms      map[string]int
	length     int
}

// corpus is one owner's slice of the index.
type corpus struct {
	// chunks maps chunk ID to its indexed form.
	chunks map[string]*entry

	// byDocument maps document ID to its chunk IDs, for replacement.
	byDocument map[string][]string

	// df maps term to the number of chunks containing it.
	df map[string]int

	// totalLength is the sum of chunk token counts, for avgdl.
	totalLength int
}

// Index is a thread-safe BM25 index, updated incrementally as document
// chunk sets are replaced or removed. It never serves a ranking against
// deleted chunks: mutations adjust document frequencies immediately.
type Index struct {
	mu     sync.RWMutex
	k1     float64
	b      float64
	owners map[string]*corpus
}

// Option configures the index.
type Option func(*Index)

// WithK1 sets the BM25 term-frequency saturation constant.
func WithK1(k1 float64) Option {
	return func(idx *Index) {
		if k1 > 0 {
			idx.k1 = k1
		}
	}
}

// WithB sets the BM25 length-normalisation constant.
func WithB(b float64) Option {
	return func(idx *Index) {
		if b >= 0 && b <= 1 {
			idx.b = b
		}
	}
}

// New creates an empty BM25 index.
func New(opts ...Option) *Index {
	idx := &Index{
		k1:     DefaultK1,
		b:      DefaultB,
		owners: make(map[string]*corpus),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexChunks replaces the indexed chunk set for a document.
// Calling it twice with the same chunks is a no-op in effect.
func (idx *Index) IndexChunks(ownerID, documentID string, chunks []domain.Chunk) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	c := idx.owners[ownerID]
	if c == nil {
		c = &corpus{
			chunks:     make(map[string]*entry),
			byDocument: make(map[string][]string),
			df:         make(map[string]int),
		}
		idx.owners[ownerID] = c
	}

	c.removeDocument(documentID)

	ids := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		terms := termFrequencies(Tokenize(chunk.Text))
		length := 0
		for _, tf := range terms {
			length += tf
		}
		c.chunks[chunk.ID] = &entry{
			documentID: documentID,
			terms:      terms,
			length:     length,
		}
		for term := range terms {
			c.df[term]++
		}
		c.totalLength += length
		ids = append(ids, chunk.ID)
	}
	c.byDocument[documentID] = ids
}

// RemoveDocument drops a document's chunks from the index.
func (idx *Index) RemoveDocument(ownerID, documentID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if c := idx.owners[ownerID]; c != nil {
		c.removeDocument(documentID)
	}
}

// removeDocument must be called with the write lock held.
func (c *corpus) removeDocument(documentID string) {
	for _, chunkID := range c.byDocument[documentID] {
		e := c.chunks[chunkID]
		if e == nil {
			continue
		}
		for term := range e.terms {
			c.df[term]--
			if c.df[term] <= 0 {
				delete(c.df, term)
			}
		}
		c.totalLength -= e.length
		delete(c.chunks, chunkID)
	}
	delete(c.byDocument, documentID)
}

// Query ranks the owner's chunks against the query using BM25.
// Chunks scoring exactly zero are excluded. Ties are broken by chunk ID
// so identical inputs always produce an identical ranking.
func (idx *Index) Query(ownerID, query string, limit int) []Hit {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	c := idx.owners[ownerID]
	if c == nil || len(c.chunks) == 0 {
		return nil
	}

	queryTerms := Tokenize(query)
	if len(queryTerms) == 0 {
		return nil
	}

	n := float64(len(c.chunks))
	avgdl := float64(c.totalLength) / n

	hits := make([]Hit, 0)
	for chunkID, e := range c.chunks {
		score := 0.0
		for _, term := range queryTerms {
			tf, ok := e.terms[term]
			if !ok {
				continue
			}
			df := float64(c.df[term])
			idf := math.Log((n - df + 0.5) / (df + 0.5))
			norm := 1 - idx.b + idx.b*float64(e.length)/avgdl
			score += idf * (float64(tf) * (idx.k1 + 1)) / (float64(tf) + idx.k1*norm)
		}
		if score != 0 {
			hits = append(hits, Hit{ChunkID: chunkID, Score: score})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// Tokenize lowercases text and splits it on non-alphanumeric runes.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// termFrequencies counts occurrences per term.
func termFrequencies(tokens []string) map[string]int {
	terms := make(map[string]int, len(tokens))
	for _, token := range tokens {
		terms[token]++
	}
	return terms
}
