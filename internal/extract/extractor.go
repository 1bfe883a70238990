package extract

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/castorp/soulforge/internal/interview"
	"github.com/castorp/soulforge/internal/ollama"
	"github.com/castorp/soulforge/internal/template"
)

const extractionTimeout = 10 * time.Second

// degradedConfidence is assigned when extraction falls back to the raw
// answer. Low enough to sit under the follow-up ceiling, so the next
// scripted follow-up still fires where budget remains.
const degradedConfidence = 0.3

// OllamaChatter is the interface for chat completion via Ollama.
type OllamaChatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message, jsonSchema *ollama.Schema) (string, error)
}

// extraction mirrors the structured JSON the model is asked to produce.
type extraction struct {
	Value          any     `json:"value"`
	Confidence     float64 `json:"confidence"`
	NeedsFollowUp  bool    `json:"needs_follow_up"`
	FollowUpReason string  `json:"follow_up_reason"`
}

// Extractor turns a free-form answer into the structured field the current
// question targets, using a fast local LLM.
type Extractor struct {
	client OllamaChatter
	model  string
	logger *slog.Logger
}

// NewExtractor creates an Extractor using the given Ollama client and model name.
func NewExtractor(client OllamaChatter, model string) *Extractor {
	return &Extractor{client: client, model: model, logger: slog.Default()}
}

// Extract analyses the answer against the current question. On any failure
// (timeout, malformed JSON, Ollama error) it degrades to the raw answer at
// low confidence with a follow-up request; a broken extractor must never
// lose what the user said or stall the interview.
func (e *Extractor) Extract(ctx context.Context, q *template.Question, answer string, history []ollama.Message) interview.ExtractionResult {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return interview.ExtractionResult{
			Field:          q.ExtractionField,
			Confidence:     0,
			NeedsFollowUp:  true,
			FollowUpReason: "the answer was empty",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, extractionTimeout)
	defer cancel()

	messages := BuildPrompt(q, answer, history)
	raw, err := e.client.Chat(ctx, e.model, messages, extractionSchema(q))
	if err != nil {
		e.logger.Warn("answer extraction chat failed", "question_id", q.ID, "error", err)
		return degraded(q, answer)
	}

	var result extraction
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		e.logger.Warn("failed to unmarshal extraction from LLM response",
			"question_id", q.ID, "error", err, "response", raw)
		return degraded(q, answer)
	}
	if interview.IsEmptyValue(result.Value) {
		return degraded(q, answer)
	}
	if result.Confidence < 0 {
		result.Confidence = 0
	} else if result.Confidence > 1 {
		result.Confidence = 1
	}

	return interview.ExtractionResult{
		Field:          q.ExtractionField,
		Value:          coerceValue(q, result.Value),
		Confidence:     result.Confidence,
		NeedsFollowUp:  result.NeedsFollowUp,
		FollowUpReason: result.FollowUpReason,
	}
}

func degraded(q *template.Question, answer string) interview.ExtractionResult {
	return interview.ExtractionResult{
		Field:          q.ExtractionField,
		Value:          answer,
		Confidence:     degradedConfidence,
		NeedsFollowUp:  true,
		FollowUpReason: "I want to make sure I captured that right; could you restate the key part?",
	}
}

// coerceValue normalizes the model's value to the question's expected type
// where the mismatch is mechanical (a list rendered as one string, a
// single-item list for a string field).
func coerceValue(q *template.Question, v any) any {
	switch q.ExpectedType {
	case template.TypeList:
		if s, ok := v.(string); ok {
			parts := strings.Split(s, ",")
			out := make([]any, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			return out
		}
	case template.TypeString:
		if list, ok := v.([]any); ok && len(list) == 1 {
			if s, ok := list[0].(string); ok {
				return s
			}
		}
	}
	return v
}

// extractionSchema returns the Ollama JSON schema for structured extraction output.
func extractionSchema(q *template.Question) *ollama.Schema {
	valueType := "string"
	switch q.ExpectedType {
	case template.TypeList:
		valueType = "array"
	case template.TypeBool:
		valueType = "boolean"
	case template.TypeNumber:
		valueType = "number"
	}
	return &ollama.Schema{
		Type: "object",
		Properties: map[string]ollama.SchemaProperty{
			"value":            {Type: valueType, Description: "The extracted answer for the field " + q.ExtractionField},
			"confidence":       {Type: "number", Description: "How certain the extraction is, 0.0 to 1.0"},
			"needs_follow_up":  {Type: "boolean", Description: "Whether the answer is too vague or incomplete to use"},
			"follow_up_reason": {Type: "string", Description: "Short conversational note on what is missing, empty if nothing"},
		},
		Required: []string{"value", "confidence", "needs_follow_up"},
	}
}
