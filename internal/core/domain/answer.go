package domain

// ChatTurn is a single prior exchange supplied by the caller.
type ChatTurn struct {
	// Role is "user" or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// Source is a citation attached to a generated answer.
type Source struct {
	// ChunkID identifies the cited chunk.
	ChunkID string

	// DocumentName is the name of the originating document.
	DocumentName string

	// Preview is a short excerpt of the cited text.
	Preview string
}

// RagAnswer is the product of one question: the generated text plus the
// sources actually placed in the model's context.
type RagAnswer struct {
	// Query is the original question.
	Query string

	// AnswerText is the generated answer with [n] citations.
	AnswerText string

	// Sources lists the cited chunks in citation order.
	Sources []Source

	// Grounded is false when no supporting context was found and the
	// answer was generated in disclosed no-context mode.
	Grounded bool
}
