package driving

import (
	"context"

	"github.com/tessera-labs/verso/internal/core/domain"
)

// AskService answers a natural-language question from the owner's
// ingested documents, returning a cited answer.
type AskService interface {
	// Ask retrieves relevant chunks and generates a grounded answer.
	// An empty retrieval result is not an error: the answer is generated
	// in disclosed no-context mode.
	Ask(ctx context.Context, req AskRequest) (*domain.RagAnswer, error)
}

// AskRequest carries one question and its generation parameters.
type AskRequest struct {
	// OwnerID identifies the asking user; retrieval never leaves it.
	OwnerID string

	// Query is the natural-language question.
	Query string

	// TopK is the number of sources to retrieve (default 4).
	TopK int

	// DocumentID optionally scopes retrieval to one document.
	DocumentID string

	// History is prior conversation turns; only a bounded trailing
	// slice is forwarded to the model.
	History []domain.ChatTurn
}
