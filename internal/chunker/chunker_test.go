package chunker

import (
	"errors"
	"strings"
	"testing"

	"github.com/smartbookqa/bookqa/internal/domain"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -1, 10},
		{"zero overlap", 100, 0},
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.size, tt.overlap)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("New(%d, %d) error = %v, want ErrValidation", tt.size, tt.overlap, err)
			}
		})
	}
}

func TestSplitEmptyText(t *testing.T) {
	c := mustNew(t, 1000, 200)
	chunks, err := c.Split("doc-1", "")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("got %d chunks, want 0", len(chunks))
	}
}

func TestSplitShortText(t *testing.T) {
	c := mustNew(t, 1000, 200)
	chunks, err := c.Split("doc-1", "short text")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Text != "short text" {
		t.Errorf("chunk text = %q", chunks[0].Text)
	}
	if chunks[0].StartOffset != 0 || chunks[0].EndOffset != 10 {
		t.Errorf("offsets = [%d, %d), want [0, 10)", chunks[0].StartOffset, chunks[0].EndOffset)
	}
}

func TestSplitMissingDocumentID(t *testing.T) {
	c := mustNew(t, 1000, 200)
	if _, err := c.Split("", "text"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestSplitChunkCount(t *testing.T) {
	// 3000 uniform runes with size=1000, overlap=200: windows advance by
	// 800, so starts are 0, 800, 1600, 2400 — four chunks.
	c := mustNew(t, 1000, 200)
	text := strings.Repeat("a", 3000)

	chunks, err := c.Split("doc-1", text)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4", len(chunks))
	}
	for i, ch := range chunks {
		if i == 0 {
			continue
		}
		overlap := chunks[i-1].EndOffset - ch.StartOffset
		if overlap != 200 {
			t.Errorf("chunk %d overlap = %d, want 200", i, overlap)
		}
	}
}

func TestSplitRoundTrip(t *testing.T) {
	// Dropping the leading overlap of every chunk but the first must
	// reconstruct the original text exactly.
	c := mustNew(t, 100, 20)
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 30)

	chunks, err := c.Split("doc-1", text)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("want multiple chunks, got %d", len(chunks))
	}

	var b strings.Builder
	for i, ch := range chunks {
		runes := []rune(ch.Text)
		if i == 0 {
			b.WriteString(ch.Text)
			continue
		}
		skip := chunks[i-1].EndOffset - ch.StartOffset
		b.WriteString(string(runes[skip:]))
	}
	if b.String() != text {
		t.Error("reconstructed text differs from original")
	}
}

func TestSplitPrefersParagraphBoundary(t *testing.T) {
	// A paragraph break sits just before the window edge; the cut should
	// land right after it rather than mid-sentence.
	para := strings.Repeat("x", 90) + "\n\n"
	text := para + strings.Repeat("y", 200)

	c := mustNew(t, 100, 20)
	chunks, err := c.Split("doc-1", text)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if chunks[0].EndOffset != 92 {
		t.Errorf("first cut at %d, want 92 (after paragraph break)", chunks[0].EndOffset)
	}
	if !strings.HasSuffix(chunks[0].Text, "\n\n") {
		t.Error("first chunk should end with the paragraph break")
	}
}

func TestSplitDeterministic(t *testing.T) {
	c := mustNew(t, 100, 20)
	text := strings.Repeat("some sentence here. ", 50)

	a, err := c.Split("doc-1", text)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	b, err := c.Split("doc-1", text)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestSplitUnicodeOffsets(t *testing.T) {
	// Offsets count runes, not bytes.
	c := mustNew(t, 10, 3)
	text := strings.Repeat("é", 25)

	chunks, err := c.Split("doc-1", text)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	for i, ch := range chunks {
		if got := len([]rune(ch.Text)); got != ch.EndOffset-ch.StartOffset {
			t.Errorf("chunk %d: %d runes but offsets span %d", i, got, ch.EndOffset-ch.StartOffset)
		}
	}
	last := chunks[len(chunks)-1]
	if last.EndOffset != 25 {
		t.Errorf("last chunk ends at %d, want 25", last.EndOffset)
	}
}

func TestChunkID(t *testing.T) {
	if got := ChunkID("doc-1", 800); got != "doc-1:00000800" {
		t.Errorf("ChunkID = %q", got)
	}
}

func mustNew(t *testing.T, size, overlap int) *Chunker {
	t.Helper()
	c, err := New(size, overlap)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}
