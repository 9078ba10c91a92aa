// Package generation turns retrieved passages into grounded answers,
// tagging each answer with the sources it was built from.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/smartbookqa/bookqa/internal/domain"
)

// NoContextAnswer is returned when retrieval produced nothing to ground
// an answer on.
const NoContextAnswer = "No relevant documents found in the knowledge base. Please add some documents first."

// Service generates answers with provenance.
type Service struct {
	gen              Generator
	maxAnswerTokens  int
	maxContextTokens int
	log              *zap.Logger
}

// New creates a generation service over the given generator strategy.
func New(gen Generator, maxAnswerTokens, maxContextTokens int, log *zap.Logger) *Service {
	return &Service{
		gen:              gen,
		maxAnswerTokens:  maxAnswerTokens,
		maxContextTokens: maxContextTokens,
		log:              log,
	}
}

// Answer produces an answer for the question from the given passages.
// With no passages it returns the canned no-knowledge-base reply,
// ungrounded, without calling the generator at all.
func (s *Service) Answer(
	ctx context.Context, question string, passages []domain.RetrievalResult,
) (domain.Answer, error) {
	if len(passages) == 0 {
		return domain.Answer{
			Text:     NoContextAnswer,
			Grounded: false,
			Strategy: s.gen.Name(),
		}, nil
	}

	prompt, included := buildPrompt(question, passages, s.maxAnswerTokens, s.maxContextTokens)
	if len(included) < len(passages) {
		s.log.Debug("dropped passages over context budget",
			zap.Int("retrieved", len(passages)),
			zap.Int("included", len(included)))
	}

	text, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		if errors.Is(err, domain.ErrTimeout) {
			return domain.Answer{}, fmt.Errorf("generate answer: %w", err)
		}
		return domain.Answer{}, fmt.Errorf("generate answer: %w: %w", domain.ErrGeneration, err)
	}

	text = strings.TrimSpace(text)
	if text == RefusalAnswer {
		return domain.Answer{
			Text:     text,
			Grounded: false,
			Strategy: s.gen.Name(),
		}, nil
	}

	return domain.Answer{
		Text:     text,
		Grounded: true,
		Passages: included,
		Sources:  sourceNames(included),
		Strategy: s.gen.Name(),
	}, nil
}

// Strategy reports the resolved generator strategy name.
func (s *Service) Strategy() string { return s.gen.Name() }

// sourceNames deduplicates source names preserving rank order.
func sourceNames(passages []domain.RetrievalResult) []string {
	seen := make(map[string]struct{}, len(passages))
	var names []string
	for _, p := range passages {
		if _, dup := seen[p.Metadata.SourceName]; dup {
			continue
		}
		seen[p.Metadata.SourceName] = struct{}{}
		names = append(names, p.Metadata.SourceName)
	}
	return names
}
