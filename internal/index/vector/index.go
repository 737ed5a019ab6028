// Package vector provides chunk vector storage and similarity search.
// When a native similarity-search backend is configured it is preferred,
// with owner and document filters pushed down before scoring. On the
// first backend error the index trips a circuit breaker (logged once)
// and serves brute-force cosine similarity over its local mirror for
// the remainder of the process.
package vector

import (
	"context"
	"sort"
	"sync"

	"github.com/tessera-labs/verso/internal/core/ports/driven"
	"github.com/tessera-labs/verso/internal/logger"
)

// Index stores chunk embeddings per owner and serves similarity search.
// A local mirror of every vector is always maintained so the index can
// degrade to brute-force search without data loss.
type Index struct {
	native driven.VectorStore

	mu sync.RWMutex
	// owners maps ownerID -> documentID -> vectors.
	owners map[string]map[string][]driven.ChunkVector
	// nativeDown is set once the backend has failed; never reset.
	nativeDown bool
	logOnce    sync.Once
}

// New creates a vector index. native may be nil, in which case all
// searches are brute-force from the start.
func New(native driven.VectorStore) *Index {
	return &Index{
		native: native,
		owners: make(map[string]map[string][]driven.ChunkVector),
	}
}

// UsingNative reports whether searches currently go to the native
// backend.
func (idx *Index) UsingNative() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.native != nil && !idx.nativeDown
}

// markNativeDown trips the circuit breaker. Logged once; subsequent
// calls are silent no-ops.
func (idx *Index) markNativeDown(err error) {
	idx.mu.Lock()
	idx.nativeDown = true
	idx.mu.Unlock()
	idx.logOnce.Do(func() {
		logger.Warn("vector backend unavailable, serving brute-force similarity for the rest of the process: %v", err)
	})
}

// Upsert replaces all vectors for the given document, locally and in
// the native backend when available. Idempotent: repeated calls with
// the same vectors leave the same state.
func (idx *Index) Upsert(ctx context.Context, ownerID, documentID string, vectors []driven.ChunkVector) error {
	idx.mu.Lock()
	docs := idx.owners[ownerID]
	if docs == nil {
		docs = make(map[string][]driven.ChunkVector)
		idx.owners[ownerID] = docs
	}
	stored := make([]driven.ChunkVector, len(vectors))
	copy(stored, vectors)
	docs[documentID] = stored
	idx.mu.Unlock()

	if idx.UsingNative() {
		if err := idx.native.Upsert(ctx, ownerID, documentID, vectors); err != nil {
			idx.markNativeDown(err)
		}
	}
	return nil
}

// Delete removes all vectors for the given document.
func (idx *Index) Delete(ctx context.Context, ownerID, documentID string) error {
	idx.mu.Lock()
	if docs := idx.owners[ownerID]; docs != nil {
		delete(docs, documentID)
	}
	idx.mu.Unlock()

	if idx.UsingNative() {
		if err := idx.native.Delete(ctx, ownerID, documentID); err != nil {
			idx.markNativeDown(err)
		}
	}
	return nil
}

// Search returns the k most similar chunks for the owner, best first.
// documentID, when non-empty, restricts the search to one document.
// The owner filter is applied before any scoring, in both paths.
func (idx *Index) Search(ctx context.Context, ownerID string, query []float32, k int, documentID string) ([]driven.VectorHit, error) {
	if idx.UsingNative() {
		hits, err := idx.native.Search(ctx, ownerID, query, k, documentID)
		if err == nil {
			return hits, nil
		}
		idx.markNativeDown(err)
	}
	return idx.SearchLocal(ctx, ownerID, query, k, documentID)
}

// SearchLocal performs brute-force cosine similarity over the owner's
// locally stored vectors, bypassing the native backend. Vectors whose
// dimension disagrees with the query are skipped; the caller detects
// stale embeddings through the chunk's model ID and re-indexes.
func (idx *Index) SearchLocal(_ context.Context, ownerID string, query []float32, k int, documentID string) ([]driven.VectorHit, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	docs := idx.owners[ownerID]
	if len(docs) == 0 {
		return nil, nil
	}

	hits := make([]driven.VectorHit, 0)
	for docID, vectors := range docs {
		if documentID != "" && docID != documentID {
			continue
		}
		for _, v := range vectors {
			if len(v.Embedding) != len(query) {
				continue
			}
			hits = append(hits, driven.VectorHit{
				ChunkID:    v.ChunkID,
				Similarity: Cosine(query, v.Embedding),
			})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// StaleDocuments returns the IDs of the owner's documents whose stored
// vectors disagree with the given dimension.
func (idx *Index) StaleDocuments(ownerID string, dimensions int) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var stale []string
	for docID, vectors := range idx.owners[ownerID] {
		for _, v := range vectors {
			if len(v.Embedding) != dimensions {
				stale = append(stale, docID)
				break
			}
		}
	}
	sort.Strings(stale)
	return stale
}
