// Package retrieve embeds a question and finds the most relevant
// chunks in the vector index.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smartbookqa/bookqa/internal/domain"
)

// Service retrieves relevant chunks for a question.
type Service struct {
	embed    Embedder
	index    Index
	topK     int
	minScore float64
}

// New creates a retrieval service. topK and minScore are the defaults
// applied when a request does not override them.
func New(embed Embedder, index Index, topK int, minScore float64) *Service {
	return &Service{embed: embed, index: index, topK: topK, minScore: minScore}
}

// Options override the configured retrieval defaults per request.
type Options struct {
	TopK     int
	MinScore *float64
	Filter   map[string]string
}

// Retrieve embeds the question once and returns up to top-k chunks
// above the score floor, best first. An empty index yields an empty
// result, not an error.
func (s *Service) Retrieve(
	ctx context.Context, question string, opts Options,
) ([]domain.RetrievalResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question must not be empty: %w", domain.ErrValidation)
	}

	topK := s.topK
	if opts.TopK > 0 {
		topK = opts.TopK
	}
	// An explicit floor applies even at 0: cosine scores can be
	// negative, so "at least 0" is a real constraint. Only the unset
	// default of 0 means no floor.
	minScore := s.minScore
	enforceFloor := s.minScore > 0
	if opts.MinScore != nil {
		minScore = *opts.MinScore
		enforceFloor = true
	}

	embRes, err := s.embed.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	results, err := s.index.Query(ctx, embRes.Embedding, topK, opts.Filter)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("query index: %w: %w", domain.ErrTimeout, err)
		}
		return nil, fmt.Errorf("query index: %w", err)
	}

	if enforceFloor {
		kept := results[:0]
		for _, r := range results {
			if r.Score >= minScore {
				kept = append(kept, r)
			}
		}
		results = kept
	}
	return results, nil
}
