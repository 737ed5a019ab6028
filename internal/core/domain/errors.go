package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	// Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimited indicates a provider rate limit or quota was hit.
	// Transient: retried with bounded backoff before surfacing.
	ErrRateLimited = errors.New("rate limited")

	// ErrProviderUnavailable indicates a provider, model, or backend is
	// missing or inaccessible. Triggers the configured fallback chain
	// rather than a retry against the same target.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrDimensionMismatch indicates an embedding whose dimension
	// disagrees with the model's declared size. A provider emitting
	// mismatched vectors is taken out of the fallback chain; stored
	// vectors with the wrong dimension are re-indexed before scoring.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmbeddingUnavailable indicates no embedding provider in the
	// fallback chain could produce vectors.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrGenerationFailed indicates every model in the fallback list
	// failed. Surfaced generically; diagnostic detail stays in logs.
	ErrGenerationFailed = errors.New("answer generation failed")
)
