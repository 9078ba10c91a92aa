package generation

import (
	"strings"
	"testing"

	"github.com/smartbookqa/bookqa/internal/domain"
)

func TestBuildPromptMarkers(t *testing.T) {
	passages := []domain.RetrievalResult{
		passage("a.txt", "alpha content"),
		passage("b.txt", "beta content"),
	}

	prompt, included := buildPrompt("the question", passages, 256, 3000)

	if len(included) != 2 {
		t.Fatalf("included %d passages, want 2", len(included))
	}
	if !strings.Contains(prompt.User, "[Source 1] (a.txt)\nalpha content") {
		t.Error("first source block malformed")
	}
	if !strings.Contains(prompt.User, "[Source 2] (b.txt)\nbeta content") {
		t.Error("second source block malformed")
	}
	if !strings.HasSuffix(prompt.User, "Question: the question") {
		t.Error("question must close the prompt")
	}
	if !strings.Contains(prompt.System, RefusalAnswer) {
		t.Error("system prompt must quote the refusal line")
	}
	if prompt.MaxTokens != 256 {
		t.Errorf("max tokens = %d", prompt.MaxTokens)
	}
}

func TestBuildPromptDropsFromTail(t *testing.T) {
	// Budget of 50 tokens = 200 characters; the 150-char passages fit one
	// at a time, so only the top-ranked one survives.
	passages := []domain.RetrievalResult{
		passage("first.txt", strings.Repeat("a", 150)),
		passage("second.txt", strings.Repeat("b", 150)),
		passage("third.txt", strings.Repeat("c", 150)),
	}

	_, included := buildPrompt("q", passages, 256, 50)

	if len(included) != 1 {
		t.Fatalf("included %d passages, want 1", len(included))
	}
	if included[0].Metadata.SourceName != "first.txt" {
		t.Errorf("kept %q, want the top-ranked passage", included[0].Metadata.SourceName)
	}
}

func TestBuildPromptCountsSeparators(t *testing.T) {
	// Each block carries a 19-char "[Source N] (x.txt)\n" header. With a
	// 100-char budget the two blocks alone sum to 99, but the "\n\n"
	// joiner between them pushes the total to 101, so the second block
	// must be dropped.
	passages := []domain.RetrievalResult{
		passage("a.txt", strings.Repeat("a", 31)),
		passage("b.txt", strings.Repeat("b", 30)),
	}

	_, included := buildPrompt("q", passages, 256, 25)

	if len(included) != 1 {
		t.Fatalf("included %d passages, want 1", len(included))
	}
	if included[0].Metadata.SourceName != "a.txt" {
		t.Errorf("kept %q, want the top-ranked passage", included[0].Metadata.SourceName)
	}
}

func TestBuildPromptAlwaysKeepsFirst(t *testing.T) {
	// Even a passage far over budget is included when it is the best one.
	passages := []domain.RetrievalResult{
		passage("huge.txt", strings.Repeat("x", 100_000)),
	}

	_, included := buildPrompt("q", passages, 256, 50)

	if len(included) != 1 {
		t.Fatalf("included %d passages, want 1", len(included))
	}
}
