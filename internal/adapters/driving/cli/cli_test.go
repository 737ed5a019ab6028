package cli

import (
	"bytes"
	"context"
	"fmt"

	"github.com/tessera-labs/verso/internal/core/domain"
	"github.com/tessera-labs/verso/internal/core/ports/driving"
)

// mockIngestService implements driving.IngestService.
type mockIngestService struct {
	ingested  []string
	deleted   []string
	reindexed []string
	err       error
}

func (m *mockIngestService) Ingest(_ context.Context, ownerID, name, _ string) (*domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.ingested = append(m.ingested, name)
	return &domain.Document{
		ID:         "doc-1",
		OwnerID:    ownerID,
		Name:       name,
		Status:     domain.StatusReady,
		ChunkCount: 3,
	}, nil
}

func (m *mockIngestService) Reindex(_ context.Context, documentID string) (*domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.reindexed = append(m.reindexed, documentID)
	return &domain.Document{ID: documentID, Name: "geo.txt", Status: domain.StatusReady, ChunkCount: 3}, nil
}

func (m *mockIngestService) Delete(_ context.Context, documentID string) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, documentID)
	return nil
}

// mockAskService implements driving.AskService.
type mockAskService struct {
	lastRequest driving.AskRequest
	answer      *domain.RagAnswer
	err         error
}

func (m *mockAskService) Ask(_ context.Context, req driving.AskRequest) (*domain.RagAnswer, error) {
	m.lastRequest = req
	if m.err != nil {
		return nil, m.err
	}
	if m.answer != nil {
		return m.answer, nil
	}
	return &domain.RagAnswer{
		Query:      req.Query,
		AnswerText: "Paris is the capital of France [1].",
		Sources: []domain.Source{
			{ChunkID: "doc-1#0", DocumentName: "geo.txt", Preview: "Paris is the capital..."},
		},
		Grounded: true,
	}, nil
}

// mockDocumentLister implements just enough of driven.DocumentStore for
// the list command.
type mockDocumentLister struct {
	docs []domain.Document
	err  error
}

func (m *mockDocumentLister) SaveDocument(context.Context, *domain.Document) error { return nil }
func (m *mockDocumentLister) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
}
func (m *mockDocumentLister) ListDocuments(context.Context, string) ([]domain.Document, error) {
	return m.docs, m.err
}
func (m *mockDocumentLister) DeleteDocument(context.Context, string) error          { return nil }
func (m *mockDocumentLister) ReplaceChunks(context.Context, string, []domain.Chunk) error {
	return nil
}
func (m *mockDocumentLister) GetChunks(context.Context, string) ([]domain.Chunk, error) {
	return nil, nil
}
func (m *mockDocumentLister) GetChunk(_ context.Context, id string) (*domain.Chunk, error) {
	return nil, fmt.Errorf("chunk %s: %w", id, domain.ErrNotFound)
}
func (m *mockDocumentLister) ListChunksByOwner(context.Context, string) ([]domain.Chunk, error) {
	return nil, nil
}
func (m *mockDocumentLister) FreeTextSearch(context.Context, string, string, int) ([]domain.Document, error) {
	return nil, nil
}

// setupTestServices wires mocks into the package-level service slots and
// returns the mocks plus a cleanup restoring the previous wiring.
func setupTestServices() (*mockIngestService, *mockAskService, *mockDocumentLister, func()) {
	oldIngest, oldAsk, oldStore := ingestService, askService, documentStore

	ingest := &mockIngestService{}
	ask := &mockAskService{}
	store := &mockDocumentLister{}
	SetServices(ingest, ask, store)

	cleanup := func() {
		ingestService, askService, documentStore = oldIngest, oldAsk, oldStore
		rootCmd.SetArgs(nil)
	}
	return ingest, ask, store, cleanup
}

// execute runs the root command with args, capturing output.
func execute(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}
