package artifact

import "strings"

// Facet classifies what a candidate says about the creator. A candidate may
// match zero, one, or several facets.
type Facet string

const (
	FacetIdentity   Facet = "identity"
	FacetGuardrails Facet = "guardrails"
	FacetHandoff    Facet = "handoff"
	FacetDrift      Facet = "drift"
)

// FacetConfig is the versioned keyword configuration driving facet
// classification. The matching is heuristic substring search and will
// misclassify near-miss strings (a phase name containing "review" trips the
// drift facet's "review cadence" family), so the lists are configuration,
// not logic: bump Version when they change.
type FacetConfig struct {
	Version  string             `json:"version"`
	Keywords map[Facet][]string `json:"keywords"`
}

// DefaultFacetConfig returns the stock keyword sets, version facets.v1.
func DefaultFacetConfig() FacetConfig {
	return FacetConfig{
		Version: "facets.v1",
		Keywords: map[Facet][]string{
			FacetIdentity: {
				"identity", "origin", "story", "mission", "about",
				"voice", "tone", "style", "persona", "phrase",
			},
			FacetGuardrails: {
				"boundar", "guardrail", "off-limits", "avoid",
				"never", "restriction", "safety", "taboo",
			},
			FacetHandoff: {
				"handoff", "team", "role", "collaborat",
				"delegat", "approval", "escalat",
			},
			FacetDrift: {
				"drift", "cadence", "review", "consistency",
				"promise", "count on",
			},
		},
	}
}

// Classify returns the facets whose keyword sets match the candidate's field
// id, label, prompt, or phase metadata (case-insensitive substring match),
// in a fixed facet order for determinism.
func Classify(c MemoryCandidate, cfg FacetConfig) []Facet {
	haystack := strings.ToLower(strings.Join([]string{
		c.Field, c.Label, c.Source.Prompt, c.Source.PhaseID, c.Source.PhaseName,
	}, " "))

	var out []Facet
	for _, facet := range []Facet{FacetIdentity, FacetGuardrails, FacetHandoff, FacetDrift} {
		for _, kw := range cfg.Keywords[facet] {
			if strings.Contains(haystack, kw) {
				out = append(out, facet)
				break
			}
		}
	}
	return out
}
