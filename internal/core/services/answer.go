package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tessera-labs/verso/internal/core/domain"
	"github.com/tessera-labs/verso/internal/core/ports/driven"
	"github.com/tessera-labs/verso/internal/logger"
	"github.com/tessera-labs/verso/internal/retry"
)

// Default answer generation values.
const (
	// DefaultAnswerTimeout is the hard wall-clock limit for one answer.
	DefaultAnswerTimeout = 30 * time.Second

	// DefaultMaxHistoryTurns bounds the conversation history forwarded
	// to the model.
	DefaultMaxHistoryTurns = 8

	// DefaultMaxTokens bounds the generated answer length.
	DefaultMaxTokens = 1024
)

// timeoutAnswer is the degraded user-visible message returned when the
// wall-clock budget expires.
const timeoutAnswer = "The answer took too long to generate. Please try again."

// groundedSystemPrompt instructs the model to answer strictly from the
// numbered sources, citing them as [n].
const groundedSystemPrompt = `You are a helpful assistant that answers questions using only the provided sources.
Each source is numbered. Cite sources inline using their number, like [1] or [2].
If the sources do not contain the answer, say so plainly. Do not invent information.

Sources:
%s`

// noContextSystemPrompt is used when retrieval produced no candidates.
// The model must disclose that no supporting material was found.
const noContextSystemPrompt = `You are a helpful assistant. No supporting context was found in the user's documents for this question.
Begin your reply by stating that you found no supporting material in their documents, then answer from general knowledge if you can, clearly marked as such. Do not fabricate citations.`

// AnswerGenerator produces cited answers by calling a language-model
// provider with retry, model fallback, and a hard timeout.
type AnswerGenerator struct {
	llm     driven.LLMProvider
	models  []string
	policy  retry.Policy
	timeout time.Duration
	history int
}

// AnswerOption configures the generator.
type AnswerOption func(*AnswerGenerator)

// WithTimeout sets the wall-clock budget per answer.
func WithTimeout(d time.Duration) AnswerOption {
	return func(g *AnswerGenerator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithMaxHistoryTurns bounds the forwarded conversation history.
func WithMaxHistoryTurns(n int) AnswerOption {
	return func(g *AnswerGenerator) {
		if n >= 0 {
			g.history = n
		}
	}
}

// WithAnswerRetryPolicy overrides the rate-limit backoff policy.
func WithAnswerRetryPolicy(p retry.Policy) AnswerOption {
	return func(g *AnswerGenerator) {
		g.policy = p
	}
}

// NewAnswerGenerator creates a generator over an ordered model fallback
// list, primary first.
func NewAnswerGenerator(llm driven.LLMProvider, models []string, opts ...AnswerOption) (*AnswerGenerator, error) {
	if llm == nil {
		return nil, fmt.Errorf("answer generator: LLM provider is required")
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("answer generator: at least one model id is required")
	}

	g := &AnswerGenerator{
		llm:     llm,
		models:  models,
		policy:  retry.DefaultPolicy(),
		timeout: DefaultAnswerTimeout,
		history: DefaultMaxHistoryTurns,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Generate answers the query from the assembled context. An empty
// context is answered in disclosed no-context mode, never as if it were
// grounded. On wall-clock expiry a degraded user-visible answer is
// returned instead of an error.
func (g *AnswerGenerator) Generate(
	ctx context.Context,
	query, contextBlock string,
	sources []domain.Source,
	history []domain.ChatTurn,
) (*domain.RagAnswer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query: %w", domain.ErrInvalidInput)
	}

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	grounded := strings.TrimSpace(contextBlock) != ""
	messages := g.buildMessages(query, contextBlock, grounded, history)

	var lastErr error
	for _, model := range g.models {
		var text string
		err := g.policy.Do(ctx, "generate", func(ctx context.Context) error {
			var completeErr error
			text, completeErr = g.llm.Complete(ctx, messages, model, driven.CompleteOptions{
				MaxTokens: DefaultMaxTokens,
			})
			return completeErr
		})
		if err == nil {
			if !grounded {
				sources = nil
			}
			return &domain.RagAnswer{
				Query:      query,
				AnswerText: text,
				Sources:    sources,
				Grounded:   grounded,
			}, nil
		}

		if errors.Is(err, context.DeadlineExceeded) {
			// A caller whose own context expired gets the error; the
			// degraded answer is reserved for our wall-clock budget.
			if parent.Err() != nil {
				return nil, parent.Err()
			}
			logger.Warn("answer generation timed out after %s", g.timeout)
			return &domain.RagAnswer{
				Query:      query,
				AnswerText: timeoutAnswer,
				Grounded:   false,
			}, nil
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}

		// Unavailable model: walk the fallback list. Anything else has
		// already been through the backoff policy; trying the next
		// model is still the best remaining move.
		logger.Warn("model %s failed: %v", model, err)
		lastErr = err
	}

	logger.Warn("all %d model(s) exhausted: %v", len(g.models), lastErr)
	return nil, fmt.Errorf("%w (%d models tried)", domain.ErrGenerationFailed, len(g.models))
}

// buildMessages assembles the prompt: system instruction, bounded
// trailing history, then the current question.
func (g *AnswerGenerator) buildMessages(query, contextBlock string, grounded bool, history []domain.ChatTurn) []driven.ChatMessage {
	system := noContextSystemPrompt
	if grounded {
		system = fmt.Sprintf(groundedSystemPrompt, contextBlock)
	}

	if len(history) > g.history {
		history = history[len(history)-g.history:]
	}

	messages := make([]driven.ChatMessage, 0, len(history)+2)
	messages = append(messages, driven.ChatMessage{Role: "system", Content: system})
	for _, turn := range history {
		messages = append(messages, driven.ChatMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, driven.ChatMessage{Role: "user", Content: query})
	return messages
}
