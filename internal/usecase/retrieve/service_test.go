package retrieve

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/smartbookqa/bookqa/internal/domain"
)

// --- Mocks ---

type mockEmbedder struct {
	vec []float32
	err error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec}, nil
}

type mockIndex struct {
	results []domain.RetrievalResult
	err     error
	gotK    int
	gotVec  []float32
	gotFilt map[string]string
}

func (m *mockIndex) Query(
	_ context.Context, vector []float32, k int, filter map[string]string,
) ([]domain.RetrievalResult, error) {
	m.gotVec = vector
	m.gotK = k
	m.gotFilt = filter
	return m.results, m.err
}

func result(id string, score float64) domain.RetrievalResult {
	return domain.RetrievalResult{ChunkID: id, Score: score}
}

// --- Tests ---

func TestRetrieveEmptyQuestion(t *testing.T) {
	svc := New(&mockEmbedder{}, &mockIndex{}, 4, 0)

	_, err := svc.Retrieve(context.Background(), "  \n ", Options{})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestRetrieveUsesDefaults(t *testing.T) {
	index := &mockIndex{results: []domain.RetrievalResult{result("c1", 0.9)}}
	svc := New(&mockEmbedder{vec: []float32{1, 0}}, index, 4, 0)

	results, err := svc.Retrieve(context.Background(), "where is the library?", Options{})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if index.gotK != 4 {
		t.Errorf("k = %d, want configured default 4", index.gotK)
	}
	if len(results) != 1 {
		t.Errorf("got %d results", len(results))
	}
}

func TestRetrieveOverrides(t *testing.T) {
	index := &mockIndex{}
	svc := New(&mockEmbedder{vec: []float32{1, 0}}, index, 4, 0)

	filter := map[string]string{"source_name": "a.txt"}
	_, err := svc.Retrieve(context.Background(), "question", Options{TopK: 9, Filter: filter})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if index.gotK != 9 {
		t.Errorf("k = %d, want override 9", index.gotK)
	}
	if index.gotFilt["source_name"] != "a.txt" {
		t.Errorf("filter not forwarded: %v", index.gotFilt)
	}
}

func TestRetrieveMinScoreFilter(t *testing.T) {
	index := &mockIndex{results: []domain.RetrievalResult{
		result("c1", 0.9),
		result("c2", 0.5),
		result("c3", 0.1),
	}}
	svc := New(&mockEmbedder{vec: []float32{1, 0}}, index, 4, 0.4)

	results, err := svc.Retrieve(context.Background(), "question", Options{})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 above min score", len(results))
	}
	if results[0].ChunkID != "c1" || results[1].ChunkID != "c2" {
		t.Errorf("results = %v", results)
	}
}

func TestRetrieveMinScoreOverride(t *testing.T) {
	index := &mockIndex{results: []domain.RetrievalResult{
		result("c1", 0.9),
		result("c2", 0.5),
	}}
	override := 0.8
	svc := New(&mockEmbedder{vec: []float32{1, 0}}, index, 4, 0)

	results, err := svc.Retrieve(context.Background(), "question", Options{MinScore: &override})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 1 || results[0].ChunkID != "c1" {
		t.Errorf("results = %v, want only c1", results)
	}
}

func TestRetrieveExplicitZeroMinScore(t *testing.T) {
	// Cosine scores can be negative; an explicit floor of 0 is a real
	// constraint, not "unset".
	index := &mockIndex{results: []domain.RetrievalResult{
		result("c1", 0.7),
		result("c2", -0.4),
	}}
	zero := 0.0
	svc := New(&mockEmbedder{vec: []float32{1, 0}}, index, 4, 0)

	results, err := svc.Retrieve(context.Background(), "question", Options{MinScore: &zero})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 1 || results[0].ChunkID != "c1" {
		t.Errorf("results = %v, want the negative score dropped", results)
	}
}

func TestRetrieveUnsetMinScoreKeepsNegatives(t *testing.T) {
	index := &mockIndex{results: []domain.RetrievalResult{
		result("c1", 0.7),
		result("c2", -0.4),
	}}
	svc := New(&mockEmbedder{vec: []float32{1, 0}}, index, 4, 0)

	results, err := svc.Retrieve(context.Background(), "question", Options{})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want 2 with no floor configured", len(results))
	}
}

func TestRetrieveEmptyIndex(t *testing.T) {
	svc := New(&mockEmbedder{vec: []float32{1, 0}}, &mockIndex{}, 4, 0)

	results, err := svc.Retrieve(context.Background(), "question", Options{})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestRetrieveEmbedError(t *testing.T) {
	embedErr := errors.New("provider down")
	svc := New(&mockEmbedder{err: embedErr}, &mockIndex{}, 4, 0)

	_, err := svc.Retrieve(context.Background(), "question", Options{})
	if !errors.Is(err, embedErr) {
		t.Errorf("error = %v, want wrapped embed error", err)
	}
}

func TestRetrieveStoreDeadlineMapsToTimeout(t *testing.T) {
	index := &mockIndex{err: fmt.Errorf("scan entries: %w", context.DeadlineExceeded)}
	svc := New(&mockEmbedder{vec: []float32{1, 0}}, index, 4, 0)

	_, err := svc.Retrieve(context.Background(), "question", Options{})
	if !errors.Is(err, domain.ErrTimeout) {
		t.Errorf("error = %v, want ErrTimeout", err)
	}
}
