// Package chunker provides a boundary-aware text chunking processor.
package chunker

import (
	"strings"

	"github.com/tessera-labs/verso/internal/core/domain"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// separators are tried in priority order when looking for a natural
// boundary: paragraph break, line break, sentence punctuation, space.
// A raw character split is the implicit last resort.
var separators = []string{"\n\n", "\n", ". ", "! ", "? ", " "}

// Processor splits document text into overlapping chunks, preferring to
// end each chunk on a natural boundary. Splitting is deterministic: the
// same (text, chunkSize, overlap) always yields the same chunk list,
// which keeps chunk indexes stable across re-indexing.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Piece is one chunk of text with its position in the source.
type Piece struct {
	// Text is the chunk content.
	Text string

	// Offset is the chunk's character offset within the source text.
	Offset int
}

// Split divides text into overlapping pieces. Empty or whitespace-only
// text yields no pieces; text at or under the chunk size yields one.
func (p *Processor) Split(text string) []Piece {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	total := len(runes)

	if total <= p.chunkSize {
		return []Piece{{Text: text, Offset: 0}}
	}

	step := p.chunkSize - p.overlap
	pieces := make([]Piece, 0, total/step+1)

	start := 0
	for start < total {
		end := start + p.chunkSize
		if end >= total {
			end = total
		} else {
			end = p.snapToBoundary(runes, start, end)
		}

		pieces = append(pieces, Piece{
			Text:   string(runes[start:end]),
			Offset: start,
		})

		if end == total {
			break
		}

		next := end - p.overlap
		if next <= start {
			// Guarantee forward progress on pathological inputs.
			next = start + 1
		}
		start = next
	}

	return pieces
}

// snapToBoundary moves the tentative chunk end backwards to the best
// natural boundary inside the window. Separators are tried in priority
// order; only the trailing half of the window is considered so chunks
// never collapse below half the configured size. Falls back to the raw
// character position when no separator is present.
func (p *Processor) snapToBoundary(runes []rune, start, end int) int {
	window := string(runes[start:end])
	floor := p.chunkSize / 2

	for _, sep := range separators {
		idx := strings.LastIndex(window, sep)
		if idx < 0 {
			continue
		}
		// Cut after the separator so it stays with the leading chunk.
		cut := len([]rune(window[:idx])) + len([]rune(sep))
		if cut <= floor {
			continue
		}
		return start + cut
	}

	return end
}

// Chunks splits a document's raw text into domain chunks with
// deterministic IDs and monotonic indexes.
func (p *Processor) Chunks(doc *domain.Document) []domain.Chunk {
	pieces := p.Split(doc.RawText)
	if len(pieces) == 0 {
		return nil
	}

	chunks := make([]domain.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = domain.Chunk{
			ID:         domain.ChunkID(doc.ID, i),
			OwnerID:    doc.OwnerID,
			DocumentID: doc.ID,
			Index:      i,
			Text:       piece.Text,
			Metadata: domain.ChunkMetadata{
				CharOffset: piece.Offset,
			},
		}
	}

	return chunks
}
