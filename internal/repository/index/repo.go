// Package index implements the persistent vector index on top of the
// db.Store facade. Entries are stored as hashes keyed by chunk ID, with
// per-document membership lists and a pinned dimensionality record, so
// the same layout works on both the sqlite and redis drivers.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/smartbookqa/bookqa/internal/db"
	"github.com/smartbookqa/bookqa/internal/domain"
)

// store is the consumer interface for the index repository.
type store interface {
	db.HashStore
	db.KVStore
}

// Repo is the durable vector index. All mutations are write-through:
// they are on disk (or acknowledged by the server) before the call
// returns. Upsert and DeleteDocument serialize writers through a mutex;
// readers never block.
type Repo struct {
	store     store
	prefix    string
	opTimeout time.Duration

	mu sync.Mutex // guards dimension pinning and membership updates
}

// New creates an index repository with the given key prefix. opTimeout,
// when positive, bounds each index operation against a slow or stalled
// store; expiry surfaces as context.DeadlineExceeded from the driver.
func New(s store, keyPrefix string, opTimeout time.Duration) *Repo {
	return &Repo{store: s, prefix: keyPrefix, opTimeout: opTimeout}
}

func (r *Repo) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.opTimeout)
}

func (r *Repo) entryKey(chunkID string) string { return r.prefix + "entry:" + chunkID }
func (r *Repo) docKey(documentID string) string {
	return r.prefix + "doc:" + documentID
}
func (r *Repo) dimKey() string { return r.prefix + "meta:dim" }
func (r *Repo) seqKey() string { return r.prefix + "meta:seq" }

// Upsert inserts or replaces entries by chunk ID. The first insert pins
// the index dimensionality; later entries with a different vector length
// are rejected with domain.ErrDimensionMismatch. Document membership is
// written before the entry hashes so a failed ingestion can always be
// rolled back via DeleteDocument.
func (r *Repo) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	dim := len(entries[0].Vector)
	for _, e := range entries {
		if e.ChunkID == "" {
			return fmt.Errorf("entry has empty chunk id: %w", domain.ErrValidation)
		}
		if len(e.Vector) != dim {
			return fmt.Errorf("entry %s has %d dimensions, batch has %d: %w",
				e.ChunkID, len(e.Vector), dim, domain.ErrDimensionMismatch)
		}
	}

	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.pinDimension(ctx, dim); err != nil {
		return err
	}

	if err := r.updateMembership(ctx, entries); err != nil {
		return err
	}

	baseSeq, err := r.store.IncrBy(ctx, r.seqKey(), int64(len(entries)))
	if err != nil {
		return fmt.Errorf("allocate sequence numbers: %w", err)
	}

	items := make([]db.HashSetItem, len(entries))
	for i, e := range entries {
		seq := baseSeq - int64(len(entries)) + int64(i) + 1
		items[i] = db.HashSetItem{
			Key: r.entryKey(e.ChunkID),
			Fields: map[string]string{
				"text":         e.Text,
				"document_id":  e.Metadata.DocumentID,
				"source_name":  e.Metadata.SourceName,
				"start_offset": strconv.Itoa(e.Metadata.StartOffset),
				"end_offset":   strconv.Itoa(e.Metadata.EndOffset),
				"vector":       string(encodeVector(e.Vector)),
				"seq":          strconv.FormatInt(seq, 10),
			},
		}
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("write entries: %w", err)
	}
	return nil
}

// pinDimension records the index dimensionality on first insert and
// rejects mismatches afterwards. Caller holds r.mu.
func (r *Repo) pinDimension(ctx context.Context, dim int) error {
	pinned, err := r.pinnedDimension(ctx)
	if err != nil {
		return err
	}
	if pinned == 0 {
		if err := r.store.Set(ctx, r.dimKey(), []byte(strconv.Itoa(dim))); err != nil {
			return fmt.Errorf("pin dimensions: %w", err)
		}
		return nil
	}
	if pinned != dim {
		return fmt.Errorf("index is pinned to %d dimensions, got %d: %w",
			pinned, dim, domain.ErrDimensionMismatch)
	}
	return nil
}

func (r *Repo) pinnedDimension(ctx context.Context) (int, error) {
	raw, err := r.store.Get(ctx, r.dimKey())
	if err == db.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read pinned dimensions: %w", err)
	}
	dim, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("corrupt dimension record %q: %w", raw, err)
	}
	return dim, nil
}

// updateMembership merges the new chunk IDs into each owning document's
// membership list. Caller holds r.mu.
func (r *Repo) updateMembership(ctx context.Context, entries []domain.IndexEntry) error {
	byDoc := make(map[string][]string)
	var docs []string
	for _, e := range entries {
		if _, seen := byDoc[e.Metadata.DocumentID]; !seen {
			docs = append(docs, e.Metadata.DocumentID)
		}
		byDoc[e.Metadata.DocumentID] = append(byDoc[e.Metadata.DocumentID], e.ChunkID)
	}

	for _, docID := range docs {
		existing, err := r.readMembership(ctx, docID)
		if err != nil {
			return err
		}

		seen := make(map[string]struct{}, len(existing))
		for _, id := range existing {
			seen[id] = struct{}{}
		}
		merged := existing
		for _, id := range byDoc[docID] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			merged = append(merged, id)
		}

		data, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("encode membership for %s: %w", docID, err)
		}
		if err := r.store.Set(ctx, r.docKey(docID), data); err != nil {
			return fmt.Errorf("write membership for %s: %w", docID, err)
		}
	}
	return nil
}

func (r *Repo) readMembership(ctx context.Context, documentID string) ([]string, error) {
	raw, err := r.store.Get(ctx, r.docKey(documentID))
	if err == db.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read membership for %s: %w", documentID, err)
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("corrupt membership for %s: %w", documentID, err)
	}
	return ids, nil
}

// Query returns the k nearest entries by cosine similarity, sorted by
// descending score with ties broken by insertion order (earlier wins).
// filter, when non-empty, keeps only entries whose metadata matches
// every given field exactly. Fewer than k entries returns all of them.
func (r *Repo) Query(
	ctx context.Context, vector []float32, k int, filter map[string]string,
) ([]domain.RetrievalResult, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be >= 1, got %d: %w", k, domain.ErrValidation)
	}

	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	pinned, err := r.pinnedDimension(ctx)
	if err != nil {
		return nil, err
	}
	if pinned == 0 {
		// Nothing has ever been inserted.
		return nil, nil
	}
	if len(vector) != pinned {
		return nil, fmt.Errorf("query vector has %d dimensions, index is pinned to %d: %w",
			len(vector), pinned, domain.ErrDimensionMismatch)
	}

	keys, err := r.store.Scan(ctx, r.prefix+"entry:*")
	if err != nil {
		return nil, fmt.Errorf("scan entries: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}

	type scored struct {
		result domain.RetrievalResult
		seq    int64
	}
	var candidates []scored

	for i, fields := range hashes {
		if len(fields) == 0 {
			continue // deleted between scan and load
		}
		entry, seq, err := decodeEntry(keys[i][len(r.prefix)+len("entry:"):], fields)
		if err != nil {
			return nil, fmt.Errorf("decode entry %s: %w", keys[i], err)
		}
		if !matchesFilter(entry.Metadata, filter) {
			continue
		}
		candidates = append(candidates, scored{
			result: domain.RetrievalResult{
				ChunkID:  entry.ChunkID,
				Text:     entry.Text,
				Metadata: entry.Metadata,
				Score:    cosineSimilarity(vector, entry.Vector),
			},
			seq: seq,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].result.Score != candidates[j].result.Score {
			return candidates[i].result.Score > candidates[j].result.Score
		}
		return candidates[i].seq < candidates[j].seq
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	results := make([]domain.RetrievalResult, len(candidates))
	for i, c := range candidates {
		results[i] = c.result
	}
	return results, nil
}

// DeleteDocument removes all chunks belonging to a document. Idempotent:
// an unknown document returns 0, not an error.
func (r *Repo) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	ids, err := r.readMembership(ctx, documentID)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.entryKey(id)
	}
	if err := r.store.DelMulti(ctx, keys); err != nil {
		return 0, fmt.Errorf("delete entries for %s: %w", documentID, err)
	}
	if err := r.store.Del(ctx, r.docKey(documentID)); err != nil {
		return 0, fmt.Errorf("delete membership for %s: %w", documentID, err)
	}
	return len(ids), nil
}

// Clear drops every key under the index prefix, including the pinned
// dimensionality and the embedding cache.
func (r *Repo) Clear(ctx context.Context) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	keys, err := r.store.Scan(ctx, r.prefix+"*")
	if err != nil {
		return fmt.Errorf("scan index keys: %w", err)
	}
	if err := r.store.DelMulti(ctx, keys); err != nil {
		return fmt.Errorf("delete index keys: %w", err)
	}
	return nil
}

// Stats reports the current index contents.
func (r *Repo) Stats(ctx context.Context) (domain.IndexStats, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	entries, err := r.store.Scan(ctx, r.prefix+"entry:*")
	if err != nil {
		return domain.IndexStats{}, fmt.Errorf("scan entries: %w", err)
	}
	docs, err := r.store.Scan(ctx, r.prefix+"doc:*")
	if err != nil {
		return domain.IndexStats{}, fmt.Errorf("scan documents: %w", err)
	}
	dim, err := r.pinnedDimension(ctx)
	if err != nil {
		return domain.IndexStats{}, err
	}
	return domain.IndexStats{
		EntryCount:    len(entries),
		DocumentCount: len(docs),
		Dimensions:    dim,
	}, nil
}

func matchesFilter(md domain.Metadata, filter map[string]string) bool {
	for field, want := range filter {
		switch field {
		case "document_id":
			if md.DocumentID != want {
				return false
			}
		case "source_name":
			if md.SourceName != want {
				return false
			}
		default:
			return false
		}
	}
	return true
}
