package ingest

import (
	"context"

	"github.com/smartbookqa/bookqa/internal/domain"
)

// Splitter cuts document text into overlapping chunks.
type Splitter interface {
	Split(documentID, text string) ([]domain.Chunk, error)
}

// Embedder vectorizes chunk texts in batches.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// Index is the vector index write contract.
type Index interface {
	Upsert(ctx context.Context, entries []domain.IndexEntry) error
	DeleteDocument(ctx context.Context, documentID string) (int, error)
}
