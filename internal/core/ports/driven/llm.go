package driven

import "context"

// LLMProvider produces chat completions for answer generation.
//
// Implementations may include:
//   - OpenAI (gpt-4o, gpt-4o-mini)
//   - Anthropic (Claude)
//
// A single provider may serve several model IDs; Complete reports
// ErrProviderUnavailable for a model it cannot serve so the caller can
// walk its fallback list.
type LLMProvider interface {
	// Complete generates a response to the conversation using the given
	// model. Returns domain.ErrRateLimited on quota/rate errors and
	// domain.ErrProviderUnavailable when the model is unknown or
	// inaccessible.
	Complete(ctx context.Context, messages []ChatMessage, modelID string, opts CompleteOptions) (string, error)
}

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// CompleteOptions configures generation behaviour.
type CompleteOptions struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic).
	Temperature float64
}
