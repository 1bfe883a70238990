package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/castorp/soulforge/internal/interview"
	"github.com/castorp/soulforge/internal/storage"
	"github.com/castorp/soulforge/internal/template"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store     *storage.Store
	Runner    *interview.Runner
	Templates *template.Catalog
	Extractor AnswerExtractor // optional; if nil, interview_answer returns an error

	// DefaultTemplate overrides the catalog's default for sessions started
	// without an explicit template id. Optional.
	DefaultTemplate string
}

// NewMCPServer creates an MCP server with all soulforge tools and resources
// registered. This is the chat-collaborator surface: an agent drives the
// whole interview through these tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"soulforge",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("soulforge runs guided interviews that distill a creator's Content DNA, with consent-gated persistence."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("interview_start",
			mcp.WithDescription("Start a new guided interview session. Returns the session id and the first question."),
			mcp.WithString("template_id", mcp.Description("Interview template id (default template when omitted)")),
		),
		mcpInterviewStart(deps),
	)

	s.AddTool(
		mcp.NewTool("interview_answer",
			mcp.WithDescription("Submit the user's answer to the current question. Returns the advance outcome and the next question or follow-up prompt."),
			mcp.WithString("session_id", mcp.Description("Interview session id"), mcp.Required()),
			mcp.WithString("answer", mcp.Description("The user's answer, verbatim"), mcp.Required()),
			mcp.WithBoolean("force", mcp.Description("Skip any pending follow-up and move on")),
		),
		mcpInterviewAnswer(deps),
	)

	s.AddTool(
		mcp.NewTool("interview_status",
			mcp.WithDescription("Get progress, lifecycle, and per-phase standing for a session."),
			mcp.WithString("session_id", mcp.Description("Interview session id"), mcp.Required()),
		),
		mcpInterviewStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("interview_skip_phase",
			mcp.WithDescription("Skip the current phase if it is optional. Required phases cannot be skipped."),
			mcp.WithString("session_id", mcp.Description("Interview session id"), mcp.Required()),
			mcp.WithString("reason", mcp.Description("Why the phase is being skipped")),
		),
		mcpInterviewSkipPhase(deps),
	)

	s.AddTool(
		mcp.NewTool("interview_pause",
			mcp.WithDescription("Pause the session. Nothing is saved; the session can be resumed later."),
			mcp.WithString("session_id", mcp.Description("Interview session id"), mcp.Required()),
		),
		mcpInterviewPause(deps),
	)

	s.AddTool(
		mcp.NewTool("interview_resume",
			mcp.WithDescription("Resume a paused session at its last position."),
			mcp.WithString("session_id", mcp.Description("Interview session id"), mcp.Required()),
		),
		mcpInterviewResume(deps),
	)

	s.AddTool(
		mcp.NewTool("interview_candidates",
			mcp.WithDescription("List the memory candidates that would be persisted with consent. Show these to the user before asking for a save decision."),
			mcp.WithString("session_id", mcp.Description("Interview session id"), mcp.Required()),
		),
		mcpInterviewCandidates(deps),
	)

	s.AddTool(
		mcp.NewTool("interview_consent",
			mcp.WithDescription("Record the user's save decision. Accept persists the Content DNA artifact; decline discards the session without a trace."),
			mcp.WithString("session_id", mcp.Description("Interview session id"), mcp.Required()),
			mcp.WithString("decision", mcp.Description("Either \"accept\" or \"decline\""), mcp.Required()),
		),
		mcpInterviewConsent(deps),
	)

	s.AddTool(
		mcp.NewTool("interview_discard",
			mcp.WithDescription("Discard the session and unwind any persisted artifact."),
			mcp.WithString("session_id", mcp.Description("Interview session id"), mcp.Required()),
		),
		mcpInterviewDiscard(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"interview://sessions",
			"Interview Sessions",
			mcp.WithResourceDescription("Recent interview sessions with lifecycle status"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSessions(deps),
	)

	return s
}

func mcpInterviewStart(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		templateID := req.GetString("template_id", "")
		if templateID == "" {
			templateID = deps.DefaultTemplate
		}

		rec, state, err := deps.Runner.Start(templateID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to start interview: %v", err)), nil
		}

		t, err := deps.Templates.Get(rec.TemplateID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load template: %v", err)), nil
		}
		view, _ := interview.BuildQuestionView(&t, state)

		return mcpJSON(map[string]any{
			"session_id":  rec.ID,
			"template_id": rec.TemplateID,
			"status":      state.Lifecycle.Status,
			"question":    view,
		})
	}
}

func mcpInterviewAnswer(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Extractor == nil {
			return mcpError("answer extraction not available: no local model configured"), nil
		}

		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		answer, err := req.RequireString("answer")
		if err != nil {
			return mcpError("answer is required"), nil
		}
		force := req.GetBool("force", false)

		_, state, t, err := deps.Runner.Load(sessionID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load interview: %v", err)), nil
		}
		view, ok := interview.BuildQuestionView(&t, state)
		if !ok {
			return mcpError("interview has no current question"), nil
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
			return mcpError("template position out of sync"), nil
		}

		history := recentHistory(deps.Store, sessionID)
		result := deps.Extractor.Extract(ctx, question, answer, history)

		saveTranscript(deps.Store, sessionID, "user", answer)

		res, newState, err := deps.Runner.Advance(sessionID, []interview.ExtractionResult{result}, force)
		if err != nil {
			return mcpError(fmt.Sprintf("advance failed: %v", err)), nil
		}
		if res.FollowUpPrompt != "" {
			saveTranscript(deps.Store, sessionID, "assistant", res.FollowUpPrompt)
		}

		nextView, _ := interview.BuildQuestionView(&t, newState)
		return mcpJSON(map[string]any{
			"result":     res,
			"status":     newState.Lifecycle.Status,
			"checkpoint": newState.Lifecycle.Checkpoint,
			"question":   nextView,
		})
	}
}

func mcpInterviewStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}

		rec, state, t, err := deps.Runner.Load(sessionID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load interview: %v", err)), nil
		}

		return mcpJSON(map[string]any{
			"progress": interview.BuildProgress(rec.ID, &t, state),
			"context":  interview.BuildContextView(rec.ID, &t, state),
		})
	}
}

func mcpInterviewSkipPhase(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		reason := req.GetString("reason", "")

		res, state, err := deps.Runner.SkipPhase(sessionID, reason)
		if err != nil {
			return mcpError(fmt.Sprintf("skip failed: %v", err)), nil
		}
		if res.Reason == interview.ReasonPhaseRequired {
			return mcpError(fmt.Sprintf("phase %s is required and cannot be skipped", res.PhaseID)), nil
		}

		return mcpJSON(map[string]any{
			"result": res,
			"status": state.Lifecycle.Status,
		})
	}
}

func mcpInterviewPause(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}

		state, err := deps.Runner.Pause(sessionID)
		if err != nil {
			return mcpError(fmt.Sprintf("pause failed: %v", err)), nil
		}

		return mcpJSON(map[string]any{
			"status":     state.Lifecycle.Status,
			"checkpoint": state.Lifecycle.Checkpoint,
		})
	}
}

func mcpInterviewResume(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}

		state, err := deps.Runner.Resume(sessionID)
		if err != nil {
			return mcpError(fmt.Sprintf("resume failed: %v", err)), nil
		}

		_, _, t, err := deps.Runner.Load(sessionID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load interview: %v", err)), nil
		}
		view, _ := interview.BuildQuestionView(&t, state)

		return mcpJSON(map[string]any{
			"status":   state.Lifecycle.Status,
			"question": view,
		})
	}
}

func mcpInterviewCandidates(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}

		candidates, state, err := deps.Runner.ReviewCandidates(sessionID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to build candidates: %v", err)), nil
		}

		return mcpJSON(map[string]any{
			"candidates": candidates,
			"status":     state.Lifecycle.Status,
			"checkpoint": state.Lifecycle.Checkpoint,
		})
	}
}

func mcpInterviewConsent(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		decision, err := req.RequireString("decision")
		if err != nil {
			return mcpError("decision is required"), nil
		}

		switch decision {
		case "accept":
			artifactID, state, err := deps.Runner.AcceptConsent(sessionID, "mcp")
			if err != nil {
				return mcpError(fmt.Sprintf("accept failed: %v", err)), nil
			}
			return mcpJSON(map[string]any{
				"status":         state.Lifecycle.Status,
				"content_dna_id": artifactID,
			})
		case "decline":
			state, err := deps.Runner.Discard(sessionID, "mcp")
			if err != nil {
				return mcpError(fmt.Sprintf("decline failed: %v", err)), nil
			}
			return mcpJSON(map[string]any{
				"status": state.Lifecycle.Status,
			})
		default:
			return mcpError(`decision must be "accept" or "decline"`), nil
		}
	}
}

func mcpInterviewDiscard(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}

		state, err := deps.Runner.Discard(sessionID, "mcp")
		if err != nil {
			return mcpError(fmt.Sprintf("discard failed: %v", err)), nil
		}

		return mcpJSON(map[string]any{
			"status": state.Lifecycle.Status,
		})
	}
}

func mcpResourceSessions(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		sessions, err := deps.Store.ListSessions(10)
		if err != nil {
			return nil, fmt.Errorf("failed to list sessions: %w", err)
		}

		type sessionSummary struct {
			ID           string `json:"id"`
			TemplateID   string `json:"template_id"`
			Status       string `json:"status"`
			ContentDNAID string `json:"content_dna_id,omitempty"`
			CreatedAt    string `json:"created_at"`
			LastActivity string `json:"last_activity_at"`
		}

		summaries := make([]sessionSummary, len(sessions))
		for i, s := range sessions {
			summaries[i] = sessionSummary{
				ID:           s.ID,
				TemplateID:   s.TemplateID,
				Status:       s.Status,
				ContentDNAID: s.ContentDNAID,
				CreatedAt:    s.CreatedAt.Format(time.RFC3339),
				LastActivity: s.LastActivityAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sessions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
