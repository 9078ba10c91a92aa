package domain

import "context"

// Generator is the text generation contract. Implementations produce a
// completion for an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// Prompt is an assembled generation request.
type Prompt struct {
	System    string
	User      string
	MaxTokens int
	// Passages holds the raw context passages in prompt order, for
	// strategies that work on the passages directly rather than the
	// rendered prompt text.
	Passages []RetrievalResult
	Question string
}

// Answer is a generated response with provenance. Passages holds the
// retrieval results that were actually placed in the prompt, in prompt
// order; results dropped over the context budget never appear here.
// Sources lists their distinct source names, same order.
type Answer struct {
	Text     string            `json:"text"`
	Grounded bool              `json:"grounded"`
	Passages []RetrievalResult `json:"passages"`
	Sources  []string          `json:"sources"`
	Strategy string            `json:"strategy"`
}
