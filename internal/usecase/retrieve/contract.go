package retrieve

import (
	"context"

	"github.com/smartbookqa/bookqa/internal/domain"
)

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Index is the vector index read contract.
type Index interface {
	Query(
		ctx context.Context, vector []float32, k int, filter map[string]string,
	) ([]domain.RetrievalResult, error)
}
