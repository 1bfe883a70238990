package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/castorp/soulforge/internal/interview"
	"github.com/castorp/soulforge/internal/ollama"
	"github.com/castorp/soulforge/internal/storage"
	"github.com/castorp/soulforge/internal/template"
)

const maxRequestBodySize = 1 << 20 // 1MB

// historyWindow is how many recent transcript messages are handed to the
// extractor for context.
const historyWindow = 10

// AnswerExtractor turns a raw answer into a structured extraction result.
type AnswerExtractor interface {
	Extract(ctx context.Context, q *template.Question, answer string, history []ollama.Message) interview.ExtractionResult
}

type AppDeps struct {
	Store     *storage.Store
	Runner    *interview.Runner
	Templates *template.Catalog
	Extractor AnswerExtractor
	Token     string

	// DefaultTemplate overrides the catalog's default for sessions started
	// without an explicit template id. Optional.
	DefaultTemplate string
}

// NewAppHandler builds the management API. Everything except /health sits
// behind bearer auth.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/interviews", handleStartInterview(deps))
		r.Get("/interviews", handleListInterviews(deps))
		r.Get("/interviews/{id}", handleGetContext(deps))
		r.Delete("/interviews/{id}", handleCancelInterview(deps))

		r.Get("/interviews/{id}/progress", handleGetProgress(deps))
		r.Get("/interviews/{id}/question", handleGetQuestion(deps))
		r.Post("/interviews/{id}/answers", handleSubmitAnswer(deps))
		r.Post("/interviews/{id}/advance", handleForceAdvance(deps))
		r.Post("/interviews/{id}/skip", handleSkipPhase(deps))
		r.Post("/interviews/{id}/pause", handlePauseInterview(deps))
		r.Post("/interviews/{id}/resume", handleResumeInterview(deps))
		r.Get("/interviews/{id}/candidates", handleListCandidates(deps))
		r.Post("/interviews/{id}/consent", handleConsentDecision(deps))
		r.Post("/interviews/{id}/discard", handleDiscardInterview(deps))
		r.Get("/interviews/{id}/audit", handleListAuditEvents(deps))
		r.Get("/interviews/{id}/messages", handleListMessages(deps))

		r.Get("/artifacts/{id}", handleGetArtifact(deps))

		r.Get("/templates", handleListTemplates(deps))
		r.Get("/templates/{id}", handleGetTemplate(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type startInterviewRequest struct {
	TemplateID string `json:"template_id"`
}

func handleStartInterview(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req startInterviewRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
				return
			}
		}

		if req.TemplateID == "" {
			req.TemplateID = deps.DefaultTemplate
		}

		rec, state, err := deps.Runner.Start(req.TemplateID)
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, template.ErrStoreNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "template not found")
			return
		}
		if errors.Is(err, template.ErrNotActive) {
			httpError(w, http.StatusConflict, "invalid_request_error", "template is not active")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to start interview: %v", err)
			return
		}

		t, err := deps.Templates.Get(rec.TemplateID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load template: %v", err)
			return
		}
		view, _ := interview.BuildQuestionView(&t, state)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"session_id":  rec.ID,
			"template_id": rec.TemplateID,
			"status":      state.Lifecycle.Status,
			"checkpoint":  state.Lifecycle.Checkpoint,
			"question":    view,
		})
	}
}

func handleListInterviews(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		sessions, err := deps.Store.ListSessions(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list interviews: %v", err)
			return
		}
		if sessions == nil {
			sessions = []storage.Session{}
		}

		type item struct {
			SessionID      string    `json:"session_id"`
			TemplateID     string    `json:"template_id"`
			Status         string    `json:"status"`
			ContentDNAID   string    `json:"content_dna_id,omitempty"`
			CreatedAt      time.Time `json:"created_at"`
			LastActivityAt time.Time `json:"last_activity_at"`
		}
		items := make([]item, 0, len(sessions))
		for _, s := range sessions {
			items = append(items, item{
				SessionID:      s.ID,
				TemplateID:     s.TemplateID,
				Status:         s.Status,
				ContentDNAID:   s.ContentDNAID,
				CreatedAt:      s.CreatedAt,
				LastActivityAt: s.LastActivityAt,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(items)
	}
}

func handleGetContext(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		rec, state, t, err := deps.Runner.Load(id)
		if handleLoadError(w, err) {
			return
		}

		view := interview.BuildContextView(rec.ID, &t, state)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(view)
	}
}

func handleCancelInterview(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := deps.Runner.Cancel(id); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to cancel interview: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "cancelled"})
	}
}

func handleGetProgress(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		rec, state, t, err := deps.Runner.Load(id)
		if handleLoadError(w, err) {
			return
		}

		p := interview.BuildProgress(rec.ID, &t, state)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(p)
	}
}

func handleGetQuestion(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		_, state, t, err := deps.Runner.Load(id)
		if handleLoadError(w, err) {
			return
		}

		view, ok := interview.BuildQuestionView(&t, state)
		if !ok {
			httpError(w, http.StatusConflict, "invalid_request_error", "interview has no current question")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(view)
	}
}

type submitAnswerRequest struct {
	Answer string `json:"answer"`
	Force  bool   `json:"force"`
}

func handleSubmitAnswer(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req submitAnswerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Answer == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "answer is required")
			return
		}

		_, state, t, err := deps.Runner.Load(id)
		if handleLoadError(w, err) {
			return
		}
		view, ok := interview.BuildQuestionView(&t, state)
		if !ok {
			httpError(w, http.StatusConflict, "invalid_request_error", "interview has no current question")
			return
		}
		phase := t.FindPhase(view.PhaseID)
		var question *template.Question
		if phase != nil {
			for i := range phase.Questions {
				if phase.Questions[i].ID == view.QuestionID {
					question = &phase.Questions[i]
					break
				}
			}
		}
		if question == nil {
			httpError(w, http.StatusInternalServerError, "api_error", "template position out of sync")
			return
		}

		history := recentHistory(deps.Store, id)
		result := deps.Extractor.Extract(r.Context(), question, req.Answer, history)

		saveTranscript(deps.Store, id, "user", req.Answer)

		res, newState, err := deps.Runner.Advance(id, []interview.ExtractionResult{result}, req.Force)
		if handleTransitionError(w, err) {
			return
		}
		if res.FollowUpPrompt != "" {
			saveTranscript(deps.Store, id, "assistant", res.FollowUpPrompt)
		}

		nextView, _ := interview.BuildQuestionView(&t, newState)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"result":     res,
			"status":     newState.Lifecycle.Status,
			"checkpoint": newState.Lifecycle.Checkpoint,
			"question":   nextView,
		})
	}
}

func handleForceAdvance(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		res, state, err := deps.Runner.Advance(id, nil, true)
		if handleTransitionError(w, err) {
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"result":     res,
			"status":     state.Lifecycle.Status,
			"checkpoint": state.Lifecycle.Checkpoint,
		})
	}
}

type skipPhaseRequest struct {
	Reason string `json:"reason"`
}

func handleSkipPhase(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req skipPhaseRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
				return
			}
		}

		res, state, err := deps.Runner.SkipPhase(id, req.Reason)
		if handleTransitionError(w, err) {
			return
		}
		if res.Reason == interview.ReasonPhaseRequired {
			httpError(w, http.StatusConflict, "invalid_request_error", "phase %s is required and cannot be skipped", res.PhaseID)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"result":     res,
			"status":     state.Lifecycle.Status,
			"checkpoint": state.Lifecycle.Checkpoint,
		})
	}
}

func handlePauseInterview(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		state, err := deps.Runner.Pause(id)
		if handleTransitionError(w, err) {
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":     state.Lifecycle.Status,
			"checkpoint": state.Lifecycle.Checkpoint,
		})
	}
}

func handleResumeInterview(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		state, err := deps.Runner.Resume(id)
		if handleTransitionError(w, err) {
			return
		}

		_, _, t, err := deps.Runner.Load(id)
		if handleLoadError(w, err) {
			return
		}
		view, _ := interview.BuildQuestionView(&t, state)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":     state.Lifecycle.Status,
			"checkpoint": state.Lifecycle.Checkpoint,
			"question":   view,
		})
	}
}

func handleListCandidates(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		candidates, state, err := deps.Runner.ReviewCandidates(id)
		if handleTransitionError(w, err) {
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": candidates,
			"status":     state.Lifecycle.Status,
			"checkpoint": state.Lifecycle.Checkpoint,
			"consent":    state.Consent,
		})
	}
}

type consentRequest struct {
	Decision string `json:"decision"` // "accept" or "decline"
	Actor    string `json:"actor"`
}

func handleConsentDecision(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req consentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Actor == "" {
			req.Actor = "user"
		}

		switch req.Decision {
		case "accept":
			artifactID, state, err := deps.Runner.AcceptConsent(id, req.Actor)
			if handleTransitionError(w, err) {
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"status":         state.Lifecycle.Status,
				"checkpoint":     state.Lifecycle.Checkpoint,
				"content_dna_id": artifactID,
			})
		case "decline":
			state, err := deps.Runner.Discard(id, req.Actor)
			if handleTransitionError(w, err) {
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"status":     state.Lifecycle.Status,
				"checkpoint": state.Lifecycle.Checkpoint,
			})
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "decision must be %q or %q", "accept", "decline")
		}
	}
}

func handleDiscardInterview(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		state, err := deps.Runner.Discard(id, "user")
		if handleTransitionError(w, err) {
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":     state.Lifecycle.Status,
			"checkpoint": state.Lifecycle.Checkpoint,
		})
	}
}

func handleListAuditEvents(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		events, err := deps.Store.ListAuditEvents(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list audit events: %v", err)
			return
		}
		if events == nil {
			events = []storage.AuditEvent{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(events)
	}
}

func handleListMessages(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		limit := parseIntParam(r, "limit", 50, 500)

		messages, err := deps.Store.ListMessages(id, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list messages: %v", err)
			return
		}
		if messages == nil {
			messages = []storage.Message{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(messages)
	}
}

func handleGetArtifact(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		dna, err := deps.Runner.LoadContentDNA(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "artifact not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load artifact: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(dna)
	}
}

func handleListTemplates(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		templates, err := deps.Templates.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list templates: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(templates)
	}
}

func handleGetTemplate(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		t, err := deps.Templates.Get(id)
		if errors.Is(err, template.ErrStoreNotFound) || errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "template not found")
			return
		}
		if errors.Is(err, template.ErrNotActive) {
			httpError(w, http.StatusConflict, "invalid_request_error", "template is not active")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get template: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(t)
	}
}

// recentHistory loads the tail of the transcript as extraction context.
// Best effort; a transcript failure never blocks an answer.
func recentHistory(store *storage.Store, sessionID string) []ollama.Message {
	messages, err := store.ListMessages(sessionID, historyWindow)
	if err != nil {
		return nil
	}
	out := make([]ollama.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, ollama.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func saveTranscript(store *storage.Store, sessionID, role, content string) {
	_ = store.SaveMessage(storage.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
}

// handleLoadError writes the response for read-path failures and reports
// whether it did.
func handleLoadError(w http.ResponseWriter, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, template.ErrStoreNotFound):
		httpError(w, http.StatusNotFound, "not_found", "interview not found")
		return true
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "failed to load interview: %v", err)
		return true
	}
}

// handleTransitionError maps runner rejections onto HTTP statuses and
// reports whether it wrote a response.
func handleTransitionError(w http.ResponseWriter, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "interview not found")
		return true
	case errors.Is(err, interview.ErrAlreadyComplete),
		errors.Is(err, interview.ErrNotComplete),
		errors.Is(err, interview.ErrDiscarded),
		errors.Is(err, interview.ErrSaved),
		errors.Is(err, interview.ErrPaused):
		httpError(w, http.StatusConflict, "invalid_request_error", "%v", err)
		return true
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
		return true
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
