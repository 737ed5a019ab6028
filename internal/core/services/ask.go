package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tessera-labs/verso/internal/core/domain"
	"github.com/tessera-labs/verso/internal/core/ports/driven"
	"github.com/tessera-labs/verso/internal/core/ports/driving"
	"github.com/tessera-labs/verso/internal/logger"
)

// StaleReindexer re-embeds documents whose stored vectors no longer
// match the active embedding model. Satisfied by *Ingestor.
type StaleReindexer interface {
	ReindexStale(ctx context.Context, ownerID string) ([]string, error)
}

// Asker implements driving.AskService: retrieve, assemble, generate.
type Asker struct {
	retrieval *RetrievalService
	assembler *ContextAssembler
	generator *AnswerGenerator
	store     driven.DocumentStore
	reindexer StaleReindexer
}

var _ driving.AskService = (*Asker)(nil)

// AskerOption configures the asker.
type AskerOption func(*Asker)

// WithStaleReindexer enables synchronous re-embedding of
// dimension-mismatched documents before retrieval.
func WithStaleReindexer(r StaleReindexer) AskerOption {
	return func(a *Asker) {
		a.reindexer = r
	}
}

// NewAsker wires the question-answering pipeline.
func NewAsker(
	retrieval *RetrievalService,
	assembler *ContextAssembler,
	generator *AnswerGenerator,
	store driven.DocumentStore,
	opts ...AskerOption,
) (*Asker, error) {
	if retrieval == nil || assembler == nil || generator == nil || store == nil {
		return nil, fmt.Errorf("asker: all collaborators are required")
	}

	a := &Asker{
		retrieval: retrieval,
		assembler: assembler,
		generator: generator,
		store:     store,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Ask answers one question from the owner's documents. Empty retrieval
// is not an error: the answer is generated in disclosed no-context mode.
func (a *Asker) Ask(ctx context.Context, req driving.AskRequest) (*domain.RagAnswer, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, fmt.Errorf("empty owner id: %w", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("empty query: %w", domain.ErrInvalidInput)
	}

	if a.reindexer != nil {
		reindexed, err := a.reindexer.ReindexStale(ctx, req.OwnerID)
		if err != nil {
			logger.Warn("stale re-embedding failed, continuing with current index: %v", err)
		} else if len(reindexed) > 0 {
			logger.Info("re-embedded %d document(s) before retrieval", len(reindexed))
		}
	}

	result, err := a.retrieval.Retrieve(ctx, req.OwnerID, req.Query, domain.RetrievalOptions{
		TopK:       req.TopK,
		DocumentID: req.DocumentID,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	logger.Debug("retrieval served %d candidate(s) from tier %s", len(result.Candidates), result.Tier)

	names, err := a.documentNames(ctx, result.Candidates)
	if err != nil {
		return nil, err
	}

	contextBlock, sources := a.assembler.Assemble(result.Candidates, names)
	return a.generator.Generate(ctx, req.Query, contextBlock, sources, req.History)
}

// documentNames resolves the display name for every document cited by
// the candidates. Missing documents fall back to their ID downstream.
func (a *Asker) documentNames(ctx context.Context, candidates []domain.Candidate) (map[string]string, error) {
	names := make(map[string]string)
	for _, c := range candidates {
		if _, ok := names[c.DocumentID]; ok {
			continue
		}
		doc, err := a.store.GetDocument(ctx, c.DocumentID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve document %s: %w", c.DocumentID, err)
		}
		names[c.DocumentID] = doc.Name
	}
	return names, nil
}
