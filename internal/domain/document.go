package domain

// Document is a raw text document supplied by the ingestion layer.
// Immutable after creation; destroyed only on explicit corpus clear.
type Document struct {
	ID         string
	SourceName string
	Text       string
}

// Chunk is a bounded, overlapping substring of a document, the unit of
// retrieval. Offsets are rune offsets into the original document text.
type Chunk struct {
	ID          string
	DocumentID  string
	Text        string
	StartOffset int
	EndOffset   int
}

// Metadata carries chunk provenance through the index.
type Metadata struct {
	DocumentID  string `json:"document_id"`
	SourceName  string `json:"source_name"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
}

// IndexEntry is a stored (vector, text, metadata) tuple, owned by the index.
type IndexEntry struct {
	ChunkID  string
	Vector   []float32
	Text     string
	Metadata Metadata
}

// RetrievalResult is a single nearest-neighbor hit. Ephemeral, per query.
type RetrievalResult struct {
	ChunkID  string   `json:"chunk_id"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
	Score    float64  `json:"score"`
}

// IndexStats describes the current index contents.
type IndexStats struct {
	EntryCount    int `json:"entry_count"`
	DocumentCount int `json:"document_count"`
	Dimensions    int `json:"dimensions"`
}
