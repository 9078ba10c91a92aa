// Package embedding resolves and drives the embedding strategy: a remote
// high-quality model when reachable, an offline hashing vectorizer
// otherwise. The choice is made once and never changes mid-session, so
// every vector written to one index shares a single dimensionality.
package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/smartbookqa/bookqa/internal/domain"
)

// Strategy is one embedding backend.
type Strategy interface {
	domain.Embedder
	domain.BatchEmbedder
	Name() string
	Dimensions() int
}

// Provider embeds texts through the strategy selected at construction.
// The selection is sticky for the provider's lifetime: a remote failure
// during a call surfaces as an error instead of a silent downgrade,
// because switching strategies mid-session would mix dimensionalities
// within one index.
type Provider struct {
	strategy  Strategy
	batchSize int
	logger    *zap.Logger
}

// NewProvider resolves the strategy once. remote may be nil (no
// credential configured); a remote that fails its health check is
// discarded in favor of local.
func NewProvider(ctx context.Context, remote, local Strategy, batchSize int, logger *zap.Logger) *Provider {
	strategy := local

	if remote != nil {
		if hc, ok := remote.(domain.HealthChecker); ok {
			if err := hc.HealthCheck(ctx); err != nil {
				logger.Warn("remote embedding strategy unavailable, falling back to local",
					zap.String("remote", remote.Name()),
					zap.Error(err),
				)
			} else {
				strategy = remote
			}
		} else {
			strategy = remote
		}
	}

	logger.Info("embedding strategy selected",
		zap.String("strategy", strategy.Name()),
		zap.Int("dimensions", strategy.Dimensions()),
	)

	if batchSize <= 0 {
		batchSize = 64
	}

	return &Provider{strategy: strategy, batchSize: batchSize, logger: logger}
}

// Strategy returns the name of the active strategy.
func (p *Provider) Strategy() string { return p.strategy.Name() }

// Dimensions returns the dimensionality of every vector this provider produces.
func (p *Provider) Dimensions() int { return p.strategy.Dimensions() }

// Embed vectorizes a single text (the query path).
func (p *Provider) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := p.strategy.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed via %s: %w", p.strategy.Name(), err)
	}
	return res, nil
}

// EmbedBatch vectorizes an arbitrarily large input, slicing it into
// upstream-sized request batches. Output order and count always match
// the input.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}

	for start := 0; start < len(texts); start += p.batchSize {
		end := start + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		res, err := p.strategy.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf(
				"embed batch [%d:%d] via %s: %w", start, end, p.strategy.Name(), err)
		}
		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}

	if len(out.Embeddings) != len(texts) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf(
			"embedded %d of %d texts: %w", len(out.Embeddings), len(texts), domain.ErrProvider)
	}
	return out, nil
}
