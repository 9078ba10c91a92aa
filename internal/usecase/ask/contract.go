package ask

import (
	"context"

	"github.com/smartbookqa/bookqa/internal/domain"
	"github.com/smartbookqa/bookqa/internal/usecase/retrieve"
)

// Retriever finds the relevant chunks for a question.
type Retriever interface {
	Retrieve(
		ctx context.Context, question string, opts retrieve.Options,
	) ([]domain.RetrievalResult, error)
}

// Answerer produces a grounded answer from retrieved passages.
type Answerer interface {
	Answer(
		ctx context.Context, question string, passages []domain.RetrievalResult,
	) (domain.Answer, error)
}
