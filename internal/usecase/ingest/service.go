// Package ingest runs the document ingestion flow: chunk, embed in
// batches, and upsert into the vector index, with rollback on hard
// failure so a document is never left half-indexed by an error.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smartbookqa/bookqa/internal/domain"
	"github.com/smartbookqa/bookqa/internal/metrics"
)

// Result reports what a completed ingestion produced.
type Result struct {
	DocumentID string `json:"document_id"`
	SourceName string `json:"source_name"`
	ChunkCount int    `json:"chunk_count"`
}

// Service ingests documents into the index.
type Service struct {
	split     Splitter
	embed     Embedder
	index     Index
	batchSize int
	log       *zap.Logger
}

// New creates an ingestion service. batchSize bounds how many chunks are
// embedded and upserted per round trip.
func New(split Splitter, embed Embedder, index Index, batchSize int, log *zap.Logger) *Service {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Service{split: split, embed: embed, index: index, batchSize: batchSize, log: log}
}

// Ingest chunks, embeds, and indexes a document. A missing document ID
// gets a generated UUID. On embedding or index failure the document's
// already-committed chunks are rolled back and the error is reported as
// an ingestion failure; a plain cancellation between batches keeps the
// committed work in place.
func (s *Service) Ingest(ctx context.Context, doc domain.Document) (Result, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return Result{}, fmt.Errorf("document text must not be empty: %w", domain.ErrValidation)
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.SourceName == "" {
		doc.SourceName = doc.ID
	}

	chunks, err := s.split.Split(doc.ID, doc.Text)
	if err != nil {
		return Result{}, fmt.Errorf("chunk document: %w", err)
	}

	committed := 0
	for start := 0; start < len(chunks); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return Result{}, s.abort(ctx, doc.ID, committed, err)
		}

		end := start + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		embRes, err := s.embed.EmbedBatch(ctx, texts)
		if err != nil {
			return Result{}, s.abort(ctx, doc.ID, committed, fmt.Errorf("embed batch: %w", err))
		}

		entries := make([]domain.IndexEntry, len(batch))
		for i, c := range batch {
			entries[i] = domain.IndexEntry{
				ChunkID: c.ID,
				Vector:  embRes.Embeddings[i],
				Text:    c.Text,
				Metadata: domain.Metadata{
					DocumentID:  c.DocumentID,
					SourceName:  doc.SourceName,
					StartOffset: c.StartOffset,
					EndOffset:   c.EndOffset,
				},
			}
		}

		if err := s.index.Upsert(ctx, entries); err != nil {
			return Result{}, s.abort(ctx, doc.ID, committed, fmt.Errorf("upsert batch: %w", err))
		}
		committed += len(batch)
	}

	metrics.IngestedChunksTotal.Add(float64(committed))
	s.log.Info("document ingested",
		zap.String("document_id", doc.ID),
		zap.String("source_name", doc.SourceName),
		zap.Int("chunks", committed))

	return Result{DocumentID: doc.ID, SourceName: doc.SourceName, ChunkCount: committed}, nil
}

// Delete removes a document's chunks from the index. Unknown documents
// report domain.ErrDocumentNotFound.
func (s *Service) Delete(ctx context.Context, documentID string) (int, error) {
	if documentID == "" {
		return 0, fmt.Errorf("document id is required: %w", domain.ErrValidation)
	}
	n, err := s.index.DeleteDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("delete document: %w: %w", domain.ErrTimeout, err)
		}
		return 0, fmt.Errorf("delete document: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("document %s: %w", documentID, domain.ErrDocumentNotFound)
	}
	s.log.Info("document deleted",
		zap.String("document_id", documentID), zap.Int("chunks", n))
	return n, nil
}

// abort classifies a mid-ingestion failure. A plain cancellation keeps
// whatever already committed; anything else rolls the document back so
// no partial index state survives a hard failure.
func (s *Service) abort(ctx context.Context, documentID string, committed int, cause error) error {
	if errors.Is(cause, context.Canceled) && !errors.Is(cause, context.DeadlineExceeded) {
		s.log.Warn("ingestion canceled, keeping committed chunks",
			zap.String("document_id", documentID), zap.Int("committed", committed))
		return fmt.Errorf("ingestion canceled: %w", cause)
	}

	// The rollback must not inherit the (possibly expired) request
	// context or a timed-out ingestion could never clean up after itself.
	rbCtx := context.WithoutCancel(ctx)
	if _, rbErr := s.index.DeleteDocument(rbCtx, documentID); rbErr != nil {
		s.log.Error("ingestion rollback failed",
			zap.String("document_id", documentID), zap.Error(rbErr))
	} else {
		metrics.IngestRollbacksTotal.Inc()
		s.log.Warn("ingestion rolled back",
			zap.String("document_id", documentID), zap.Int("committed", committed))
	}

	if errors.Is(cause, domain.ErrTimeout) || errors.Is(cause, context.DeadlineExceeded) {
		return fmt.Errorf("ingest document %s: %w: %w", documentID, domain.ErrTimeout, cause)
	}
	return fmt.Errorf("ingest document %s: %w: %w", documentID, domain.ErrIngest, cause)
}
