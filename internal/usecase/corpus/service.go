// Package corpus exposes whole-index operations: statistics and the
// destructive full reset.
package corpus

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/smartbookqa/bookqa/internal/domain"
)

// Index is the whole-index contract.
type Index interface {
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (domain.IndexStats, error)
}

// Service manages the corpus as a whole.
type Service struct {
	index Index
	log   *zap.Logger
}

// New creates a corpus service.
func New(index Index, log *zap.Logger) *Service {
	return &Service{index: index, log: log}
}

// Clear drops every entry, document record, and the pinned
// dimensionality, returning the index to its pristine state. The next
// ingestion is free to pin a new dimensionality.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.index.Clear(ctx); err != nil {
		return fmt.Errorf("clear corpus: %w", wrapTimeout(err))
	}
	s.log.Info("corpus cleared")
	return nil
}

// Stats reports entry, document, and dimensionality counts.
func (s *Service) Stats(ctx context.Context) (domain.IndexStats, error) {
	stats, err := s.index.Stats(ctx)
	if err != nil {
		return domain.IndexStats{}, fmt.Errorf("corpus stats: %w", wrapTimeout(err))
	}
	return stats, nil
}

// wrapTimeout surfaces a store deadline as the timeout sentinel so the
// transport maps it to 504 instead of a generic internal error.
func wrapTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	return err
}
