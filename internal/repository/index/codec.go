package index

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/smartbookqa/bookqa/internal/domain"
)

// encodeVector packs a vector as little-endian float32s.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("vector payload is %d bytes, not a multiple of 4", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return vec, nil
}

// decodeEntry rebuilds an index entry from its stored hash fields.
func decodeEntry(chunkID string, fields map[string]string) (domain.IndexEntry, int64, error) {
	vec, err := decodeVector([]byte(fields["vector"]))
	if err != nil {
		return domain.IndexEntry{}, 0, err
	}
	start, err := strconv.Atoi(fields["start_offset"])
	if err != nil {
		return domain.IndexEntry{}, 0, fmt.Errorf("bad start_offset %q", fields["start_offset"])
	}
	end, err := strconv.Atoi(fields["end_offset"])
	if err != nil {
		return domain.IndexEntry{}, 0, fmt.Errorf("bad end_offset %q", fields["end_offset"])
	}
	seq, err := strconv.ParseInt(fields["seq"], 10, 64)
	if err != nil {
		return domain.IndexEntry{}, 0, fmt.Errorf("bad seq %q", fields["seq"])
	}
	return domain.IndexEntry{
		ChunkID: chunkID,
		Vector:  vec,
		Text:    fields["text"],
		Metadata: domain.Metadata{
			DocumentID:  fields["document_id"],
			SourceName:  fields["source_name"],
			StartOffset: start,
			EndOffset:   end,
		},
	}, seq, nil
}

// cosineSimilarity computes cos(a, b) in float64. A zero vector on
// either side yields 0.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
