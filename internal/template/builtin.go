package template

// Builtins returns the templates compiled into the binary. A fresh install
// has exactly one active template, the stock onboarding interview; store
// templates with the same id take precedence.
func Builtins() []Template {
	return []Template{onboardingV1()}
}

// OnboardingTemplateID is the id of the stock onboarding interview.
const OnboardingTemplateID = "onboarding.v1"

func onboardingV1() Template {
	return Template{
		ID:          OnboardingTemplateID,
		Name:        "Creator Onboarding",
		Description: "Guided interview that captures a creator's identity, voice, boundaries, and collaboration style into a Content DNA profile.",
		Status:      StatusActive,
		Phases: []Phase{
			{
				ID:               "welcome",
				Name:             "Welcome & Identity",
				Required:         true,
				EstimatedMinutes: 4,
				Questions: []Question{
					{
						ID:              "q_origin",
						Prompt:          "Tell me about yourself and what you make. What's the story behind your work?",
						ExpectedType:    "string",
						ExtractionField: "origin_story",
						Required:        true,
						FollowUps:       []string{"What moment made you start?"},
					},
					{
						ID:              "q_mission",
						Prompt:          "If your work had a mission statement, what would it be?",
						ExpectedType:    "string",
						ExtractionField: "mission",
					},
				},
			},
			{
				ID:               "voice",
				Name:             "Voice & Tone",
				Required:         true,
				EstimatedMinutes: 3,
				Questions: []Question{
					{
						ID:              "q_tone",
						Prompt:          "How would you describe your tone? Casual, precise, playful, contrarian?",
						ExpectedType:    "string",
						ExtractionField: "tone",
						Required:        true,
					},
					{
						ID:              "q_phrases",
						Prompt:          "Are there phrases or words you always use, or refuse to use?",
						ExpectedType:    "list",
						ExtractionField: "signature_phrases",
					},
				},
			},
			{
				ID:               "guardrails",
				Name:             "Boundaries & Guardrails",
				Required:         true,
				EstimatedMinutes: 4,
				Questions: []Question{
					{
						ID:              "q_boundaries",
						Prompt:          "What topics or framings are completely off-limits for content published as you?",
						ExpectedType:    "list",
						ExtractionField: "hard_boundaries",
						Required:        true,
						FollowUps:       []string{"Any gray areas where you'd want a human check first?"},
					},
					{
						ID:              "q_review",
						Prompt:          "How often should drafts be escalated for your review rather than auto-published?",
						ExpectedType:    "string",
						ExtractionField: "review_cadence",
					},
				},
			},
			{
				ID:               "audience",
				Name:             "Audience Empathy",
				Required:         false,
				EstimatedMinutes: 3,
				Questions: []Question{
					{
						ID:              "q_audience",
						Prompt:          "Who are you making this for? Describe the person you picture when you create.",
						ExpectedType:    "string",
						ExtractionField: "audience_empathy",
					},
					{
						ID:              "q_promise",
						Prompt:          "What should your audience be able to count on from you, every single time?",
						ExpectedType:    "string",
						ExtractionField: "audience_promise",
					},
				},
			},
			{
				ID:               "collaboration",
				Name:             "Team & Handoff",
				Required:         false,
				EstimatedMinutes: 3,
				// Solo creators have nothing to hand off.
				Skip: &SkipCondition{Field: "has_team", Operator: "empty"},
				Questions: []Question{
					{
						ID:              "q_handoff",
						Prompt:          "When you hand work to your team, what context do they always need from you?",
						ExpectedType:    "string",
						ExtractionField: "handoff_notes",
					},
					{
						ID:              "q_roles",
						Prompt:          "Who owns what? Walk me through roles and approvals on your team.",
						ExpectedType:    "string",
						ExtractionField: "team_roles",
					},
				},
			},
			{
				ID:               "confirm",
				Name:             "Confirm & Wrap Up",
				Required:         true,
				EstimatedMinutes: 2,
				Questions: []Question{
					{
						ID:              "q_confirm",
						Prompt:          "Anything important we haven't covered that future collaborators should know?",
						ExpectedType:    "string",
						ExtractionField: "final_notes",
					},
				},
			},
		},
		Completion: CompletionCriteria{
			MinPhasesCompleted: 4,
			RequiredPhaseIDs:   []string{"welcome", "voice", "guardrails", "confirm"},
		},
	}
}
