// Package chunker splits raw document text into overlapping fixed-size
// segments, preferring paragraph and sentence boundaries near each cut.
package chunker

import (
	"fmt"
	"strings"

	"github.com/smartbookqa/bookqa/internal/domain"
)

// defaultLookback bounds how far back from the target cut point a
// boundary is searched for.
const defaultLookback = 120

// separators in preference order: paragraph break, line break, sentence end.
var separators = []string{"\n\n", "\n", ". "}

// Chunker slides a fixed-size window across text with a configurable
// overlap. Deterministic: identical inputs produce identical chunks.
type Chunker struct {
	size     int
	overlap  int
	lookback int
}

// New creates a Chunker. size and overlap are measured in runes and must
// satisfy 0 < overlap < size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d: %w", size, domain.ErrValidation)
	}
	if overlap <= 0 || overlap >= size {
		return nil, fmt.Errorf("overlap must satisfy 0 < overlap < size, got overlap=%d size=%d: %w",
			overlap, size, domain.ErrValidation)
	}
	return &Chunker{size: size, overlap: overlap, lookback: defaultLookback}, nil
}

// Split cuts text into chunks of at most c.size runes, each starting
// c.overlap runes before the previous chunk's end. Empty text yields no
// chunks; text shorter than the window yields exactly one chunk.
func (c *Chunker) Split(documentID, text string) ([]domain.Chunk, error) {
	if documentID == "" {
		return nil, fmt.Errorf("document id is required: %w", domain.ErrValidation)
	}

	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil, nil
	}

	var chunks []domain.Chunk
	start := 0
	for {
		end := start + c.size
		if end >= n {
			end = n
		} else {
			end = c.adjustCut(runes, start, end)
		}

		chunks = append(chunks, domain.Chunk{
			ID:          ChunkID(documentID, start),
			DocumentID:  documentID,
			Text:        string(runes[start:end]),
			StartOffset: start,
			EndOffset:   end,
		})

		if end == n {
			return chunks, nil
		}
		// The next window starts exactly overlap runes before this cut,
		// which keeps the round-trip reconstruction property.
		start = end - c.overlap
	}
}

// adjustCut moves the cut at end back to the nearest preferred boundary
// within the look-back window. The cut never moves at or before
// start+overlap, so every step makes progress.
func (c *Chunker) adjustCut(runes []rune, start, end int) int {
	floor := start + c.overlap + 1
	window := end - floor
	if window > c.lookback {
		window = c.lookback
	}
	if window <= 0 {
		return end
	}

	region := string(runes[end-window : end])
	for _, sep := range separators {
		if i := strings.LastIndex(region, sep); i >= 0 {
			// Cut after the separator so it stays with the leading chunk.
			cut := end - window + len([]rune(region[:i])) + len([]rune(sep))
			if cut >= floor && cut < end {
				return cut
			}
		}
	}
	return end
}

// ChunkID derives a stable chunk identifier from the owning document and
// the chunk's start offset.
func ChunkID(documentID string, startOffset int) string {
	return fmt.Sprintf("%s:%08d", documentID, startOffset)
}
