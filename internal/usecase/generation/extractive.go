package generation

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/smartbookqa/bookqa/internal/domain"
)

// ExtractiveStrategyName labels the last-resort generator.
const ExtractiveStrategyName = "extractive"

var sentenceSplit = regexp.MustCompile(`(?m)[^.!?\n]+[.!?]?`)

// Extractive is the last-resort generator: it never calls out anywhere
// and instead returns the passage sentences that best overlap the
// question's terms. Quality is crude but the pipeline stays answerable
// with no model backend at all.
type Extractive struct {
	maxSentences int
}

// NewExtractive creates the extractive fallback generator.
func NewExtractive() *Extractive {
	return &Extractive{maxSentences: 3}
}

// Name reports the strategy label.
func (e *Extractive) Name() string { return ExtractiveStrategyName }

// Generate picks the highest-overlap sentences from the prompt's
// passages, returned in their original order.
func (e *Extractive) Generate(_ context.Context, prompt domain.Prompt) (string, error) {
	questionTerms := termSet(prompt.Question)

	type scored struct {
		text  string
		order int
		score int
	}
	var sentences []scored
	order := 0
	for _, p := range prompt.Passages {
		for _, raw := range sentenceSplit.FindAllString(p.Text, -1) {
			sentence := strings.TrimSpace(raw)
			if sentence == "" {
				continue
			}
			score := 0
			for term := range termSet(sentence) {
				if _, ok := questionTerms[term]; ok {
					score++
				}
			}
			sentences = append(sentences, scored{text: sentence, order: order, score: score})
			order++
		}
	}

	sort.SliceStable(sentences, func(i, j int) bool {
		return sentences[i].score > sentences[j].score
	})
	if len(sentences) > e.maxSentences {
		sentences = sentences[:e.maxSentences]
	}
	sort.Slice(sentences, func(i, j int) bool {
		return sentences[i].order < sentences[j].order
	})

	best := 0
	for _, s := range sentences {
		best += s.score
	}
	if len(sentences) == 0 || best == 0 {
		return RefusalAnswer, nil
	}

	parts := make([]string, len(sentences))
	for i, s := range sentences {
		parts[i] = s.text
	}
	return strings.Join(parts, " "), nil
}

func termSet(text string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, f := range strings.Fields(strings.ToLower(text)) {
		f = strings.Trim(f, ".,!?;:\"'()[]")
		if len(f) < 3 {
			continue
		}
		terms[f] = struct{}{}
	}
	return terms
}
