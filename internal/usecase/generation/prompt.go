package generation

import (
	"fmt"
	"strings"

	"github.com/smartbookqa/bookqa/internal/domain"
)

const systemPrompt = `You are a helpful assistant that answers questions using only the provided context. If the context does not contain enough information to answer, reply exactly: "` + RefusalAnswer + `"`

// RefusalAnswer is the verbatim reply the model is instructed to give
// when the retrieved context cannot answer the question.
const RefusalAnswer = "I don't have enough information to answer this question based on the provided context."

// charsPerToken is the rough budget conversion used for prompt sizing.
const charsPerToken = 4

// passageSeparator joins context blocks; it counts against the budget.
const passageSeparator = "\n\n"

// buildPrompt assembles the grounded prompt. Passages are taken in rank
// order and dropped from the tail once the character budget is spent;
// the top-ranked passage is always included. The returned slice holds
// the passages that actually made it into the prompt.
func buildPrompt(
	question string, passages []domain.RetrievalResult, maxAnswerTokens, maxContextTokens int,
) (domain.Prompt, []domain.RetrievalResult) {
	budget := maxContextTokens * charsPerToken

	var blocks []string
	var included []domain.RetrievalResult
	used := 0
	for i, p := range passages {
		block := fmt.Sprintf("[Source %d] (%s)\n%s", i+1, p.Metadata.SourceName, p.Text)
		cost := len(block)
		if i > 0 {
			cost += len(passageSeparator)
		}
		if i > 0 && used+cost > budget {
			break
		}
		blocks = append(blocks, block)
		included = append(included, p)
		used += cost
	}

	user := fmt.Sprintf("Context:\n\n%s\n\nQuestion: %s",
		strings.Join(blocks, passageSeparator), question)

	return domain.Prompt{
		System:    systemPrompt,
		User:      user,
		MaxTokens: maxAnswerTokens,
		Passages:  included,
		Question:  question,
	}, included
}
