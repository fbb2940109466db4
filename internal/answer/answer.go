// Package answer turns a question and its retrieved chunks into an answer.
package answer

import (
	"context"
	"fmt"
	"strings"
)

// NoContentAnswer is returned when retrieval produced no chunks.
const NoContentAnswer = "No relevant content found in the document."

// Generator produces an answer for query from the retrieved chunks,
// nearest first.
type Generator interface {
	Name() string
	Generate(ctx context.Context, query string, chunks []string) (string, error)
}

// BuildPrompt renders the question-answering prompt sent to chat models.
func BuildPrompt(query string, chunks []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an AI assistant. Return only the answer related to the user's query: '%s' from the provided context.\n", query)
	b.WriteString("Ignore any unrelated content such as test cases, thank you notes, or page numbers.\n\n")
	b.WriteString("Context:\n")
	b.WriteString(strings.Join(chunks, "\n"))
	fmt.Fprintf(&b, "\n\nQuestion: %s\nAnswer:\n", query)
	return b.String()
}
