package rag

import (
	"fmt"
	"strings"

	"github.com/matsen/lungrag/internal/llm"
	"github.com/matsen/lungrag/internal/vectorindex"
)

// DefaultMaxContextChars bounds the retrieved text placed in the prompt.
const DefaultMaxContextChars = 6000

const systemPrompt = `You are a medical literature assistant for lung diseases.
Answer the question using only the context passages below.
If the context does not contain the answer, say that you do not know.
Cite the passages you used with their [source p.N] labels.`

// BuildPrompt renders the chat messages for a question. Retrieved passages
// are included in rank order, each labelled with its citation, until
// maxChars runes of passage text have been used; the passage that crosses
// the limit is cut at the limit.
func BuildPrompt(question string, results []vectorindex.Result, maxChars int) []llm.Message {
	if maxChars <= 0 {
		maxChars = DefaultMaxContextChars
	}

	var b strings.Builder
	b.WriteString("Context:\n")
	remaining := maxChars
	for _, r := range results {
		if remaining <= 0 {
			break
		}
		text := []rune(strings.TrimSpace(r.Text))
		if len(text) > remaining {
			text = text[:remaining]
		}
		remaining -= len(text)
		fmt.Fprintf(&b, "\n[%s]\n%s\n", r.Citation(), string(text))
	}
	fmt.Fprintf(&b, "\nQuestion: %s\nAnswer:", strings.TrimSpace(question))

	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: b.String()},
	}
}
