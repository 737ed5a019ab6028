// Package driven provides interfaces for infrastructure adapters
// (secondary/outbound ports): embedding and language-model providers,
// vector and document stores, and configuration.
package driven
