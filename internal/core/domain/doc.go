// Package domain contains the core business entities for document
// ingestion, hybrid retrieval, and grounded answer generation.
// It has no dependencies on adapters or infrastructure.
package domain
