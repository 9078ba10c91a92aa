package embedding

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/smartbookqa/bookqa/internal/domain"
	"github.com/smartbookqa/bookqa/internal/metrics"
)

// LocalStrategyName identifies the offline fallback strategy.
const LocalStrategyName = "local"

// LocalEmbedder is the offline fallback strategy: a feature-hashing
// bag-of-words vectorizer. Unlike a TF-IDF model it needs no corpus
// preparation, so its dimensionality is fixed up front and identical
// text always produces an identical vector.
type LocalEmbedder struct {
	dimensions   int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewLocalEmbedder creates a hashing vectorizer with the given fixed
// dimensionality.
func NewLocalEmbedder(dimensions int) *LocalEmbedder {
	return &LocalEmbedder{
		dimensions:   dimensions,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		stopwords:    defaultStopwords(),
	}
}

// Name implements the strategy identity used by the provider.
func (e *LocalEmbedder) Name() string { return LocalStrategyName }

// Dimensions returns the vector dimensionality this strategy produces.
func (e *LocalEmbedder) Dimensions() int { return e.dimensions }

// Embed implements domain.Embedder. Each token is hashed into a bucket;
// one hash bit decides the sign so colliding tokens partially cancel
// instead of always accumulating. The result is L2-normalized.
func (e *LocalEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	vec := make([]float32, e.dimensions)

	for _, tok := range e.tokenize(text) {
		h := xxhash.Sum64String(tok)
		bucket := int(h % uint64(e.dimensions))
		sign := float32(1)
		if h&(1<<63) != 0 {
			sign = -1
		}
		vec[bucket] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(LocalStrategyName, "hashing", "success").Inc()
	return domain.EmbeddingResult{Embedding: vec}, nil
}

// EmbedBatch implements domain.BatchEmbedder.
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	return domain.EmbedBatchFallback(ctx, e, texts)
}

func (e *LocalEmbedder) tokenize(text string) []string {
	raw := e.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of",
		"in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been",
		"being", "it", "this", "that", "these", "those", "from", "up", "down", "over",
		"under", "again", "further", "than", "so", "such", "into", "about", "between",
		"through", "during", "before", "after", "above", "below", "out", "off", "own",
		"same", "too", "very", "can", "will", "just", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
