package index

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/smartbookqa/bookqa/internal/db"
	"github.com/smartbookqa/bookqa/internal/domain"
)

// --- Mocks ---

// memStore is an in-memory db.Store for repository tests.
type memStore struct {
	mu     sync.Mutex
	kv     map[string][]byte
	hashes map[string]map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		kv:     make(map[string][]byte),
		hashes: make(map[string]map[string]string),
	}
}

func (m *memStore) HSet(_ context.Context, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.hashes[key]
	if h == nil {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (m *memStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	for _, it := range items {
		if err := m.HSet(ctx, it.Key, it.Fields); err != nil {
			return err
		}
	}
	return nil
}

func (m *memStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.hashes[key]))
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	out := make([]map[string]string, len(keys))
	for i, k := range keys {
		h, err := m.HGetAll(ctx, k)
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}

func (m *memStore) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hashes, key)
	delete(m.kv, key)
	return nil
}

func (m *memStore) DelMulti(ctx context.Context, keys []string) error {
	for _, k := range keys {
		if err := m.Del(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (m *memStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, inHash := m.hashes[key]
	_, inKV := m.kv[key]
	return inHash || inKV, nil
}

func (m *memStore) Scan(_ context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.hashes {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	for k := range m.kv {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.kv[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = value
	return nil
}

func (m *memStore) IncrBy(_ context.Context, key string, val int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, _ := strconv.ParseInt(string(m.kv[key]), 10, 64)
	cur += val
	m.kv[key] = []byte(strconv.FormatInt(cur, 10))
	return cur, nil
}

// --- Helpers ---

func entry(chunkID, docID, source string, vec []float32) domain.IndexEntry {
	return domain.IndexEntry{
		ChunkID: chunkID,
		Vector:  vec,
		Text:    "text of " + chunkID,
		Metadata: domain.Metadata{
			DocumentID: docID,
			SourceName: source,
		},
	}
}

func mustUpsert(t *testing.T, r *Repo, entries ...domain.IndexEntry) {
	t.Helper()
	if err := r.Upsert(context.Background(), entries); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
}

// --- Tests ---

func TestUpsertPinsDimensions(t *testing.T) {
	r := New(newMemStore(), "test:", 0)
	ctx := context.Background()

	mustUpsert(t, r, entry("d1:0", "d1", "a.txt", []float32{1, 0, 0}))

	err := r.Upsert(ctx, []domain.IndexEntry{entry("d2:0", "d2", "b.txt", []float32{1, 0})})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("error = %v, want ErrDimensionMismatch", err)
	}

	stats, err := r.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Dimensions != 3 {
		t.Errorf("dimensions = %d, want 3", stats.Dimensions)
	}
}

func TestUpsertMixedDimensionsInBatch(t *testing.T) {
	r := New(newMemStore(), "test:", 0)

	err := r.Upsert(context.Background(), []domain.IndexEntry{
		entry("d1:0", "d1", "a.txt", []float32{1, 0, 0}),
		entry("d1:1", "d1", "a.txt", []float32{1, 0}),
	})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("error = %v, want ErrDimensionMismatch", err)
	}
}

func TestUpsertReplacesByChunkID(t *testing.T) {
	r := New(newMemStore(), "test:", 0)
	ctx := context.Background()

	mustUpsert(t, r, entry("d1:0", "d1", "a.txt", []float32{1, 0}))

	replacement := entry("d1:0", "d1", "a.txt", []float32{0, 1})
	replacement.Text = "updated text"
	mustUpsert(t, r, replacement)

	stats, _ := r.Stats(ctx)
	if stats.EntryCount != 1 {
		t.Fatalf("entry count = %d, want 1 after replace", stats.EntryCount)
	}

	results, err := r.Query(ctx, []float32{0, 1}, 1, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if results[0].Text != "updated text" {
		t.Errorf("text = %q, want replacement", results[0].Text)
	}
}

func TestQueryEmptyIndex(t *testing.T) {
	r := New(newMemStore(), "test:", 0)

	results, err := r.Query(context.Background(), []float32{1, 0}, 5, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestQueryValidatesK(t *testing.T) {
	r := New(newMemStore(), "test:", 0)

	if _, err := r.Query(context.Background(), []float32{1, 0}, 0, nil); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestQueryDimensionMismatch(t *testing.T) {
	r := New(newMemStore(), "test:", 0)
	ctx := context.Background()

	mustUpsert(t, r, entry("d1:0", "d1", "a.txt", []float32{1, 0, 0}))

	_, err := r.Query(ctx, []float32{1, 0}, 1, nil)
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("error = %v, want ErrDimensionMismatch", err)
	}
}

func TestQueryRanksByCosine(t *testing.T) {
	r := New(newMemStore(), "test:", 0)
	ctx := context.Background()

	mustUpsert(t, r,
		entry("d1:0", "d1", "a.txt", []float32{1, 0}),
		entry("d1:1", "d1", "a.txt", []float32{0.9, 0.1}),
		entry("d1:2", "d1", "a.txt", []float32{0, 1}),
	)

	results, err := r.Query(ctx, []float32{1, 0}, 2, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ChunkID != "d1:0" || results[1].ChunkID != "d1:1" {
		t.Errorf("order = %s, %s; want d1:0, d1:1", results[0].ChunkID, results[1].ChunkID)
	}
	if results[0].Score < results[1].Score {
		t.Error("scores not descending")
	}
}

func TestQueryTieBreaksByInsertionOrder(t *testing.T) {
	r := New(newMemStore(), "test:", 0)
	ctx := context.Background()

	// Identical vectors, inserted in a known order. Ties must resolve to
	// the earliest insertion regardless of key sort order.
	mustUpsert(t, r, entry("d1:z", "d1", "a.txt", []float32{1, 0}))
	mustUpsert(t, r, entry("d1:a", "d1", "a.txt", []float32{1, 0}))

	results, err := r.Query(ctx, []float32{1, 0}, 2, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if results[0].ChunkID != "d1:z" {
		t.Errorf("first result = %s, want d1:z (inserted first)", results[0].ChunkID)
	}
}

func TestQueryFewerThanK(t *testing.T) {
	r := New(newMemStore(), "test:", 0)

	mustUpsert(t, r, entry("d1:0", "d1", "a.txt", []float32{1, 0}))

	results, err := r.Query(context.Background(), []float32{1, 0}, 10, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1", len(results))
	}
}

func TestQueryMetadataFilter(t *testing.T) {
	r := New(newMemStore(), "test:", 0)
	ctx := context.Background()

	mustUpsert(t, r,
		entry("d1:0", "d1", "a.txt", []float32{1, 0}),
		entry("d2:0", "d2", "b.txt", []float32{1, 0}),
	)

	results, err := r.Query(ctx, []float32{1, 0}, 10, map[string]string{"document_id": "d2"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 || results[0].ChunkID != "d2:0" {
		t.Errorf("filter returned %d results, want only d2:0", len(results))
	}

	results, err = r.Query(ctx, []float32{1, 0}, 10, map[string]string{"source_name": "missing.txt"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results for non-matching filter, want 0", len(results))
	}
}

func TestDeleteDocument(t *testing.T) {
	r := New(newMemStore(), "test:", 0)
	ctx := context.Background()

	mustUpsert(t, r,
		entry("d1:0", "d1", "a.txt", []float32{1, 0}),
		entry("d1:1", "d1", "a.txt", []float32{0, 1}),
		entry("d2:0", "d2", "b.txt", []float32{1, 1}),
	)

	n, err := r.DeleteDocument(ctx, "d1")
	if err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if n != 2 {
		t.Errorf("removed %d chunks, want 2", n)
	}

	stats, _ := r.Stats(ctx)
	if stats.EntryCount != 1 || stats.DocumentCount != 1 {
		t.Errorf("stats = %+v, want 1 entry / 1 document", stats)
	}
}

func TestDeleteDocumentIdempotent(t *testing.T) {
	r := New(newMemStore(), "test:", 0)

	n, err := r.DeleteDocument(context.Background(), "never-ingested")
	if err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if n != 0 {
		t.Errorf("removed %d chunks, want 0", n)
	}
}

func TestClearResetsDimensionPin(t *testing.T) {
	r := New(newMemStore(), "test:", 0)
	ctx := context.Background()

	mustUpsert(t, r, entry("d1:0", "d1", "a.txt", []float32{1, 0, 0}))

	if err := r.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	stats, _ := r.Stats(ctx)
	if stats.EntryCount != 0 || stats.Dimensions != 0 {
		t.Errorf("stats after clear = %+v, want empty", stats)
	}

	// A different dimensionality is allowed after a full reset.
	mustUpsert(t, r, entry("d9:0", "d9", "c.txt", []float32{1, 0}))
}

func TestStats(t *testing.T) {
	r := New(newMemStore(), "test:", 0)
	ctx := context.Background()

	mustUpsert(t, r,
		entry("d1:0", "d1", "a.txt", []float32{1, 0}),
		entry("d1:1", "d1", "a.txt", []float32{0, 1}),
		entry("d2:0", "d2", "b.txt", []float32{1, 1}),
	)

	stats, err := r.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.EntryCount != 3 {
		t.Errorf("entries = %d, want 3", stats.EntryCount)
	}
	if stats.DocumentCount != 2 {
		t.Errorf("documents = %d, want 2", stats.DocumentCount)
	}
	if stats.Dimensions != 2 {
		t.Errorf("dimensions = %d, want 2", stats.Dimensions)
	}
}
