package generation

import (
	"context"

	"github.com/smartbookqa/bookqa/internal/domain"
)

// Generator produces an answer from an assembled prompt.
type Generator interface {
	domain.Generator

	// Name reports the strategy label ("openai", "ollama", "extractive").
	Name() string
}

// HealthChecker is implemented by generators that can verify their
// backend before being selected.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
