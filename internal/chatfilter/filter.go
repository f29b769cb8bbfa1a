// Package chatfilter enriches chat completion requests with answers from
// the workbook index before they reach the chat model.
package chatfilter

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloo-solutions/sheetrag/internal/domain"
)

// Answerer answers a question from the index
type Answerer interface {
	Answer(ctx context.Context, question string) (*domain.Answer, error)
}

// Filter splices retrieved workbook context into chat conversations
type Filter struct {
	answerer   Answerer
	maxSources int
}

// New creates a Filter. maxSources caps how many sources are listed; zero
// lists them all.
func New(answerer Answerer, maxSources int) *Filter {
	return &Filter{answerer: answerer, maxSources: maxSources}
}

// Inlet inserts a system message with the workbook answer right before the
// last user message of body. The body is returned unchanged, with
// injected false, when there is no user message, the index is not ready, or
// answering fails.
func (f *Filter) Inlet(ctx context.Context, body map[string]any) (map[string]any, bool) {
	messages, ok := body["messages"].([]any)
	if !ok {
		return body, false
	}

	idx, question := lastUserMessage(messages)
	if idx < 0 || question == "" {
		return body, false
	}

	answer, err := f.answerer.Answer(ctx, question)
	if err != nil {
		log.Printf("chatfilter: passing message through, answer failed: %v", err)
		return body, false
	}
	if answer.Status != domain.AnswerStatusOK {
		log.Printf("chatfilter: passing message through, index not ready")
		return body, false
	}

	system := map[string]any{
		"role":    "system",
		"content": f.render(answer),
	}

	out := make([]any, 0, len(messages)+1)
	out = append(out, messages[:idx]...)
	out = append(out, system)
	out = append(out, messages[idx:]...)

	result := make(map[string]any, len(body))
	for k, v := range body {
		result[k] = v
	}
	result["messages"] = out
	return result, true
}

func (f *Filter) render(answer *domain.Answer) string {
	var b strings.Builder
	b.WriteString("Information retrieved from the workbook for the next question.\n\n")
	b.WriteString("Answer: ")
	b.WriteString(strings.TrimSpace(answer.Answer))
	b.WriteString("\n")

	sources := answer.Sources
	if f.maxSources > 0 && len(sources) > f.maxSources {
		sources = sources[:f.maxSources]
	}
	if len(sources) == 0 {
		return b.String()
	}

	b.WriteString("\nSources:\n")
	for _, s := range sources {
		label := fmt.Sprintf("Sheet '%s'", s.Metadata.Sheet)
		if row := s.Metadata.RowLabel(); row != "" {
			label += ", row " + row
		}
		fmt.Fprintf(&b, "- %s: %s\n", label, oneLine(s.Content))
	}
	return b.String()
}

// lastUserMessage returns the index and text of the last user message, or
// -1 when there is none.
func lastUserMessage(messages []any) (int, string) {
	for i := len(messages) - 1; i >= 0; i-- {
		m, ok := messages[i].(map[string]any)
		if !ok || m["role"] != "user" {
			continue
		}
		return i, strings.TrimSpace(messageText(m["content"]))
	}
	return -1, ""
}

// messageText flattens string content and multi-part content alike.
func messageText(content any) string {
	switch c := content.(type) {
	case string:
		return c
	case []any:
		var parts []string
		for _, p := range c {
			part, ok := p.(map[string]any)
			if !ok || part["type"] != "text" {
				continue
			}
			if text, ok := part["text"].(string); ok {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
