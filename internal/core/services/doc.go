// Package services implements the core use cases: document ingestion,
// tiered hybrid retrieval, context assembly, and grounded answer
// generation. Services depend only on domain types and ports.
package services
