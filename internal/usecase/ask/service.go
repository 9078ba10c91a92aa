// Package ask orchestrates the question flow end to end: retrieve
// relevant chunks, then generate a grounded answer from them.
package ask

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/smartbookqa/bookqa/internal/domain"
	"github.com/smartbookqa/bookqa/internal/metrics"
	"github.com/smartbookqa/bookqa/internal/usecase/retrieve"
)

// Response is the full answer payload. Passages holds exactly the
// retrieval results that went into the prompt; anything retrieved but
// dropped over the context budget is absent (use /search for the raw
// retrieval view).
type Response struct {
	Answer   domain.Answer            `json:"answer"`
	Passages []domain.RetrievalResult `json:"passages"`
}

// Service answers questions against the indexed corpus.
type Service struct {
	retriever Retriever
	answerer  Answerer
	log       *zap.Logger
}

// New creates an ask service.
func New(retriever Retriever, answerer Answerer, log *zap.Logger) *Service {
	return &Service{retriever: retriever, answerer: answerer, log: log}
}

// Ask retrieves context for the question and generates an answer. A
// transient generation failure is retried once before giving up.
func (s *Service) Ask(
	ctx context.Context, question string, opts retrieve.Options,
) (Response, error) {
	passages, err := s.retriever.Retrieve(ctx, question, opts)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", domain.ErrQuery, err)
	}

	answer, err := s.answerer.Answer(ctx, question, passages)
	if err != nil && errors.Is(err, domain.ErrGeneration) && ctx.Err() == nil {
		s.log.Warn("generation failed, retrying once", zap.Error(err))
		answer, err = s.answerer.Answer(ctx, question, passages)
	}
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", domain.ErrQuery, err)
	}

	metrics.QueriesTotal.WithLabelValues(strconv.FormatBool(answer.Grounded)).Inc()
	s.log.Info("question answered",
		zap.Int("retrieved", len(passages)),
		zap.Int("used", len(answer.Passages)),
		zap.Bool("grounded", answer.Grounded),
		zap.String("strategy", answer.Strategy))

	return Response{Answer: answer, Passages: answer.Passages}, nil
}
