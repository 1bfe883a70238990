package extract

import (
	"fmt"
	"strings"

	"github.com/castorp/soulforge/internal/ollama"
	"github.com/castorp/soulforge/internal/template"
)

const systemPromptTemplate = `You are an answer extraction engine for a guided interview. The user was asked one question; analyze their answer and the recent conversation. Your output must be ONLY a single valid JSON object that conforms to the provided schema. Do not include any other text, prose, or markdown.

Rules:
- "value" is the substance of the answer, distilled for the target field. Preserve the user's wording; do not embellish.
- "confidence" reflects how directly the answer addresses the question: 1.0 for a clear direct answer, below 0.5 for vague or off-topic ones.
- Set "needs_follow_up" to true only when the answer is too thin to be useful on its own.
- "follow_up_reason" is one short conversational sentence naming what is missing; leave it empty otherwise.`

// BuildPrompt constructs the Ollama chat messages for answer extraction.
func BuildPrompt(q *template.Question, answer string, history []ollama.Message) []ollama.Message {
	var sb strings.Builder
	sb.WriteString(systemPromptTemplate)
	fmt.Fprintf(&sb, "\n\n[Question]\n%s", q.Prompt)
	fmt.Fprintf(&sb, "\n\n[Target field]\n%s (expected type: %s)", q.ExtractionField, expectedType(q))

	messages := []ollama.Message{
		{Role: "system", Content: sb.String()},
	}

	messages = append(messages, history...)

	messages = append(messages, ollama.Message{
		Role:    "user",
		Content: answer,
	})

	return messages
}

func expectedType(q *template.Question) string {
	if q.ExpectedType == "" {
		return template.TypeString
	}
	return q.ExpectedType
}
