package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/castorp/soulforge/internal/config"
)

// --- interview ---

var interviewCmd = &cobra.Command{
	Use:   "interview",
	Short: "Run and manage guided interviews",
}

type questionView struct {
	PhaseID    string `json:"phase_id"`
	PhaseName  string `json:"phase_name"`
	QuestionID string `json:"question_id"`
	Prompt     string `json:"prompt"`
	Pacing     struct {
		Label       string `json:"label"`
		FocusPrompt string `json:"focus_prompt"`
	} `json:"pacing"`
}

type advanceEnvelope struct {
	Result struct {
		Advanced       bool     `json:"advanced"`
		Reason         string   `json:"reason"`
		AdvanceType    string   `json:"advance_type"`
		FollowUpPrompt string   `json:"follow_up_prompt"`
		IsComplete     bool     `json:"is_complete"`
		MissingReasons []string `json:"missing_reasons"`
	} `json:"result"`
	Status   string        `json:"status"`
	Question *questionView `json:"question"`
}

var interviewStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new interview session",
	RunE: func(cmd *cobra.Command, args []string) error {
		templateID, _ := cmd.Flags().GetString("template")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{}
		if templateID != "" {
			body["template_id"] = templateID
		}
		resp, err := client.post(cmd.Context(), "/interviews", body)
		if err != nil {
			return err
		}

		var result struct {
			SessionID  string        `json:"session_id"`
			TemplateID string        `json:"template_id"`
			Question   *questionView `json:"question"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Started interview %s (template %s)", result.SessionID, result.TemplateID)
		printQuestion(result.Question)
		return nil
	},
}

var interviewAnswerCmd = &cobra.Command{
	Use:   "answer <session-id> [answer...]",
	Short: "Answer the current question (reads stdin when no answer argument)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := args[0]
		force, _ := cmd.Flags().GetBool("force")

		answer := strings.Join(args[1:], " ")
		if answer == "" {
			scanner := bufio.NewScanner(os.Stdin)
			scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
			var lines []string
			for scanner.Scan() {
				lines = append(lines, scanner.Text())
			}
			answer = strings.TrimSpace(strings.Join(lines, "\n"))
		}
		if answer == "" {
			return fmt.Errorf("answer is required (as arguments or on stdin)")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/interviews/"+sessionID+"/answers", map[string]any{
			"answer": answer,
			"force":  force,
		})
		if err != nil {
			return err
		}

		var result advanceEnvelope
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printAdvance(result)
		return nil
	},
}

var interviewSkipCmd = &cobra.Command{
	Use:   "skip <session-id>",
	Short: "Skip the current phase (optional phases only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/interviews/"+args[0]+"/skip", map[string]any{
			"reason": reason,
		})
		if err != nil {
			return err
		}

		var result advanceEnvelope
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printAdvance(result)
		return nil
	},
}

var interviewPauseCmd = &cobra.Command{
	Use:   "pause <session-id>",
	Short: "Pause an interview without saving anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/interviews/"+args[0]+"/pause", nil)
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Interview paused; resume any time with: soulforge interview resume %s", args[0])
		return nil
	},
}

var interviewResumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Resume a paused interview",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/interviews/"+args[0]+"/resume", nil)
		if err != nil {
			return err
		}

		var result struct {
			Question *questionView `json:"question"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Interview resumed")
		printQuestion(result.Question)
		return nil
	},
}

var interviewStatusCmd = &cobra.Command{
	Use:   "progress <session-id>",
	Short: "Show interview progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/interviews/"+args[0]+"/progress")
		if err != nil {
			return err
		}

		var p struct {
			Status                    string   `json:"status"`
			Checkpoint                string   `json:"checkpoint"`
			PercentComplete           int      `json:"percent_complete"`
			PhaseName                 string   `json:"phase_name"`
			CompletedPhases           []string `json:"completed_phases"`
			SkippedPhases             []string `json:"skipped_phases"`
			EstimatedMinutesRemaining int      `json:"estimated_minutes_remaining"`
			IsComplete                bool     `json:"is_complete"`
		}
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}

		printStatus("Status", "%s (%s)", p.Status, p.Checkpoint)
		printStatus("Progress", "%d%%", p.PercentComplete)
		if p.PhaseName != "" {
			printStatus("Current phase", "%s", p.PhaseName)
		}
		if len(p.CompletedPhases) > 0 {
			printStatus("Completed", "%s", strings.Join(p.CompletedPhases, ", "))
		}
		if len(p.SkippedPhases) > 0 {
			printStatus("Skipped", "%s", strings.Join(p.SkippedPhases, ", "))
		}
		if !p.IsComplete {
			printStatus("Time remaining", "~%d min", p.EstimatedMinutesRemaining)
		}
		return nil
	},
}

var interviewCandidatesCmd = &cobra.Command{
	Use:   "candidates <session-id>",
	Short: "Review what would be saved with consent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/interviews/"+args[0]+"/candidates")
		if err != nil {
			return err
		}

		var result struct {
			Candidates []struct {
				Label   string `json:"label"`
				Preview string `json:"preview"`
				Source  struct {
					PhaseName string `json:"phase_name"`
				} `json:"source"`
			} `json:"candidates"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Candidates) == 0 {
			fmt.Println("Nothing captured yet.")
			return nil
		}
		for _, c := range result.Candidates {
			fmt.Printf("\n%s (%s)\n", colorize(colorBold, c.Label), c.Source.PhaseName)
			fmt.Printf("  %s\n", c.Preview)
		}
		fmt.Println()
		printStep("Save with: soulforge interview consent %s --decision accept", args[0])
		return nil
	},
}

var interviewConsentCmd = &cobra.Command{
	Use:   "consent <session-id>",
	Short: "Record the save decision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		decision, _ := cmd.Flags().GetString("decision")
		if decision != "accept" && decision != "decline" {
			return fmt.Errorf("--decision must be accept or decline")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/interviews/"+args[0]+"/consent", map[string]any{
			"decision": decision,
			"actor":    "cli",
		})
		if err != nil {
			return err
		}

		var result struct {
			Status       string `json:"status"`
			ContentDNAID string `json:"content_dna_id"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if decision == "accept" {
			printSuccess("Content DNA saved: %s", result.ContentDNAID)
		} else {
			printSuccess("Interview discarded; nothing was saved")
		}
		return nil
	},
}

var interviewDiscardCmd = &cobra.Command{
	Use:   "discard <session-id>",
	Short: "Discard the interview and unwind anything saved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/interviews/"+args[0]+"/discard", nil)
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Interview discarded")
		return nil
	},
}

func init() {
	interviewStartCmd.Flags().String("template", "", "interview template id")
	interviewAnswerCmd.Flags().Bool("force", false, "skip any pending follow-up and move on")
	interviewSkipCmd.Flags().String("reason", "", "why the phase is being skipped")
	interviewConsentCmd.Flags().String("decision", "", "accept or decline")

	interviewCmd.AddCommand(interviewStartCmd)
	interviewCmd.AddCommand(interviewAnswerCmd)
	interviewCmd.AddCommand(interviewSkipCmd)
	interviewCmd.AddCommand(interviewPauseCmd)
	interviewCmd.AddCommand(interviewResumeCmd)
	interviewCmd.AddCommand(interviewStatusCmd)
	interviewCmd.AddCommand(interviewCandidatesCmd)
	interviewCmd.AddCommand(interviewConsentCmd)
	interviewCmd.AddCommand(interviewDiscardCmd)
}

func printQuestion(q *questionView) {
	if q == nil {
		return
	}
	fmt.Printf("\n%s\n", colorize(colorBold, q.PhaseName))
	if q.Pacing.Label != "" {
		fmt.Printf("%s\n", colorize(colorCyan, q.Pacing.Label))
	}
	fmt.Printf("\n%s\n", q.Prompt)
}

func printAdvance(result advanceEnvelope) {
	switch {
	case result.Result.FollowUpPrompt != "":
		fmt.Printf("\n%s\n", result.Result.FollowUpPrompt)
	case result.Result.IsComplete:
		printSuccess("Interview complete")
		printStep("Review what would be saved: soulforge interview candidates <session-id>")
	case result.Result.Reason == "completion_not_ready":
		printWarning("Not ready to finish:")
		for _, r := range result.Result.MissingReasons {
			fmt.Printf("  - %s\n", r)
		}
	default:
		printQuestion(result.Question)
	}
}

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage interview sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/interviews?limit=%d", limit))
		if err != nil {
			return err
		}

		var sessions []struct {
			SessionID      string `json:"session_id"`
			TemplateID     string `json:"template_id"`
			Status         string `json:"status"`
			LastActivityAt string `json:"last_activity_at"`
		}
		if err := decodeJSON(resp, &sessions); err != nil {
			return err
		}

		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}
		for _, s := range sessions {
			fmt.Printf("%s  %-18s %-12s %s\n",
				colorize(colorCyan, s.SessionID[:8]),
				s.Status,
				s.TemplateID,
				s.LastActivityAt,
			)
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show the full context of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/interviews/"+args[0])
		if err != nil {
			return err
		}

		var view any
		if err := decodeJSON(resp, &view); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	},
}

var sessionsAuditCmd = &cobra.Command{
	Use:   "audit <session-id>",
	Short: "Show the trust event trail for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/interviews/"+args[0]+"/audit")
		if err != nil {
			return err
		}

		var events []struct {
			ID         string `json:"id"`
			Name       string `json:"name"`
			Validation string `json:"validation"`
			OccurredAt string `json:"occurred_at"`
		}
		if err := decodeJSON(resp, &events); err != nil {
			return err
		}

		if len(events) == 0 {
			fmt.Println("No trust events recorded.")
			return nil
		}
		for _, e := range events {
			marker := colorize(colorGreen, "✓")
			if e.Validation != "passed" {
				marker = colorize(colorRed, "✗")
			}
			fmt.Printf("%s %s  %-28s %s\n", marker, colorize(colorCyan, e.ID[:8]), e.Name, e.OccurredAt)
		}
		return nil
	},
}

var sessionsCancelCmd = &cobra.Command{
	Use:   "cancel <session-id>",
	Short: "Hard-delete a session and all of its records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This deletes the session, its transcript, and its trust trail. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/interviews/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Session cancelled")
		return nil
	},
}

func init() {
	sessionsListCmd.Flags().Int("limit", 20, "maximum number of sessions to list")
	sessionsCancelCmd.Flags().Bool("confirm", false, "confirm deletion")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsAuditCmd)
	sessionsCmd.AddCommand(sessionsCancelCmd)
}

// --- templates ---

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List available interview templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/templates")
		if err != nil {
			return err
		}

		var templates []struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			Status string `json:"status"`
		}
		if err := decodeJSON(resp, &templates); err != nil {
			return err
		}

		for _, t := range templates {
			fmt.Printf("%s  %-10s %s\n", colorize(colorBold, t.ID), t.Status, t.Name)
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
