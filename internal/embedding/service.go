// Package embedding provides the resilient embedder used by ingestion
// and retrieval: it batches inputs, retries transient provider errors
// with backoff, and falls through an ordered provider chain ending in a
// degraded deterministic hash embedder.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tessera-labs/verso/internal/core/domain"
	"github.com/tessera-labs/verso/internal/core/ports/driven"
	"github.com/tessera-labs/verso/internal/logger"
	"github.com/tessera-labs/verso/internal/retry"
)

// Ensure Service implements the interface.
var _ driven.EmbeddingProvider = (*Service)(nil)

// Default configuration values.
const (
	// DefaultBatchSize bounds the number of texts per provider call.
	DefaultBatchSize = 64

	// DefaultMaxInFlight bounds concurrent provider calls within one
	// EmbedBatch. Provider rate limits make unbounded fan-out
	// counterproductive.
	DefaultMaxInFlight = 4
)

// Service embeds text through an ordered chain of providers. The first
// healthy provider is the active one; a provider that fails with a
// non-transient error is marked down for the remainder of the process
// (logged once) and the chain advances.
type Service struct {
	providers []driven.EmbeddingProvider
	policy    retry.Policy
	batchSize int
	inFlight  int

	mu   sync.Mutex
	down []bool
	logs []sync.Once
}

// Option configures the service.
type Option func(*Service)

// WithBatchSize sets the maximum number of texts per provider call.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithMaxInFlight sets the maximum number of concurrent provider calls.
func WithMaxInFlight(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.inFlight = n
		}
	}
}

// WithRetryPolicy overrides the backoff policy for transient errors.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// New creates a resilient embedding service over an ordered provider
// chain, primary first. At least one provider is required; the last one
// should be infallible (the hash embedder) when degraded operation is
// preferred over hard failure.
func New(providers []driven.EmbeddingProvider, opts ...Option) (*Service, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("embedding: at least one provider is required")
	}

	s := &Service{
		providers: providers,
		policy:    retry.DefaultPolicy(),
		batchSize: DefaultBatchSize,
		inFlight:  DefaultMaxInFlight,
		down:      make([]bool, len(providers)),
		logs:      make([]sync.Once, len(providers)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// active returns the index of the first provider not marked down.
func (s *Service) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.providers {
		if !s.down[i] {
			return i
		}
	}
	return -1
}

// markDown takes a provider out of the chain for the process lifetime.
func (s *Service) markDown(i int, err error) {
	s.mu.Lock()
	s.down[i] = true
	s.mu.Unlock()
	s.logs[i].Do(func() {
		logger.Warn("embedding provider %s unavailable, falling back: %v",
			s.providers[i].ModelID(), err)
	})
}

// EmbedBatch generates one embedding per text, in input order. Inputs
// are split into bounded batches dispatched with bounded concurrency;
// result[i] always corresponds to texts[i].
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var lastErr error
	for {
		i := s.active()
		if i < 0 {
			if lastErr != nil {
				return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, lastErr)
			}
			return nil, domain.ErrEmbeddingUnavailable
		}

		vectors, err := s.embedWith(ctx, s.providers[i], texts)
		if err == nil {
			return vectors, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if errors.Is(err, domain.ErrRateLimited) {
			// Backoff already exhausted inside embedWith; surface it
			// rather than hammering the next provider mid-quota.
			return nil, err
		}

		// Non-transient: advance the chain and re-embed everything with
		// the next provider so one call never mixes models.
		s.markDown(i, err)
		lastErr = err
	}
}

// embedWith runs the full input through a single provider in batches.
func (s *Service) embedWith(ctx context.Context, provider driven.EmbeddingProvider, texts []string) ([][]float32, error) {
	type batch struct {
		start int
		texts []string
	}

	batches := make([]batch, 0, len(texts)/s.batchSize+1)
	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, batch{start: start, texts: texts[start:end]})
	}

	results := make([][]float32, len(texts))
	sem := make(chan struct{}, s.inFlight)
	errs := make([]error, len(batches))

	var wg sync.WaitGroup
	for bi, b := range batches {
		wg.Add(1)
		go func(bi int, b batch) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			errs[bi] = s.policy.Do(ctx, "embed", func(ctx context.Context) error {
				vectors, err := provider.EmbedBatch(ctx, b.texts)
				if err != nil {
					return err
				}
				if len(vectors) != len(b.texts) {
					return fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(b.texts))
				}
				want := provider.Dimensions()
				for i, v := range vectors {
					if len(v) != want {
						return fmt.Errorf("provider returned a %d-dim vector, want %d: %w",
							len(v), want, domain.ErrDimensionMismatch)
					}
					results[b.start+i] = v
				}
				return nil
			})
		}(bi, b)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Dimensions returns the active provider's embedding size.
func (s *Service) Dimensions() int {
	if i := s.active(); i >= 0 {
		return s.providers[i].Dimensions()
	}
	return 0
}

// ModelID returns the active provider's model identifier. Chunks tagged
// with a different model ID are stale and re-embedded before scoring.
func (s *Service) ModelID() string {
	if i := s.active(); i >= 0 {
		return s.providers[i].ModelID()
	}
	return ""
}

// Degraded reports whether the active provider is a reduced-quality
// fallback tier.
func (s *Service) Degraded() bool {
	if i := s.active(); i >= 0 {
		return s.providers[i].Degraded()
	}
	return false
}
