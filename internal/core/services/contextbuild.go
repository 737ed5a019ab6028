package services

import (
	"fmt"
	"strings"

	"github.com/tessera-labs/verso/internal/core/domain"
	"github.com/tessera-labs/verso/internal/logger"
)

// Default context assembly values.
const (
	// DefaultContextBudget caps the assembled context in characters.
	DefaultContextBudget = 6000

	// previewLength bounds the source preview text.
	previewLength = 160
)

// ContextAssembler renders retrieval candidates into a citation-tagged
// context block for the answer prompt.
type ContextAssembler struct {
	budget int
}

// NewContextAssembler creates an assembler with the given character
// budget; budget <= 0 selects the default.
func NewContextAssembler(budget int) *ContextAssembler {
	if budget <= 0 {
		budget = DefaultContextBudget
	}
	return &ContextAssembler{budget: budget}
}

// Assemble renders the candidates as numbered source blocks and returns
// the block text alongside the sources it actually contains. documentNames
// maps document ID to display name. When the budget forces truncation,
// whole trailing blocks are dropped so every citation number always
// refers to a fully shown source.
func (a *ContextAssembler) Assemble(candidates []domain.Candidate, documentNames map[string]string) (string, []domain.Source) {
	if len(candidates) == 0 {
		return "", nil
	}

	var sb strings.Builder
	sources := make([]domain.Source, 0, len(candidates))

	for i, c := range candidates {
		name := documentNames[c.DocumentID]
		if name == "" {
			name = c.DocumentID
		}

		block := renderBlock(i+1, name, c)
		if sb.Len() > 0 && sb.Len()+len("\n\n")+len(block) > a.budget {
			logger.Debug("context budget reached, dropping %d trailing source(s)", len(candidates)-i)
			break
		}
		if sb.Len() == 0 && len(block) > a.budget {
			logger.Warn("first source block exceeds context budget (%d > %d), keeping it whole", len(block), a.budget)
		}

		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(block)

		sources = append(sources, domain.Source{
			ChunkID:      c.ChunkID,
			DocumentName: name,
			Preview:      preview(c.Text),
		})
	}

	return sb.String(), sources
}

// renderBlock formats one numbered source block.
func renderBlock(n int, name string, c domain.Candidate) string {
	var meta string
	switch {
	case c.Metadata.Page > 0:
		meta = fmt.Sprintf(", page %d", c.Metadata.Page)
	case c.SemanticRank > 0 || c.LexicalRank > 0:
		meta = fmt.Sprintf(", chunk %s", chunkOrdinal(c.ChunkID))
	}
	return fmt.Sprintf("[%d] %s%s:\n%s", n, name, meta, strings.TrimSpace(c.Text))
}

// chunkOrdinal extracts the index suffix from a deterministic chunk ID.
func chunkOrdinal(chunkID string) string {
	if i := strings.LastIndex(chunkID, "#"); i >= 0 {
		return chunkID[i+1:]
	}
	return chunkID
}

// preview returns a short excerpt for source listings.
func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength]) + "..."
}
