package artifact

// Card names one of the four trust cards in the bundle.
type Card string

const (
	CardSoul         Card = "soul"
	CardGuardrails   Card = "guardrails"
	CardTeamCharter  Card = "team_charter"
	CardMemoryLedger Card = "memory_ledger"
)

// cardFacets maps each card to the facet feeding it.
var cardFacets = map[Card]Facet{
	CardSoul:         FacetIdentity,
	CardGuardrails:   FacetGuardrails,
	CardTeamCharter:  FacetHandoff,
	CardMemoryLedger: FacetDrift,
}

// cardOrder fixes iteration order for deterministic output.
var cardOrder = []Card{CardSoul, CardGuardrails, CardTeamCharter, CardMemoryLedger}

// maxEntriesPerCard caps each card's entry list.
const maxEntriesPerCard = 6

// FallbackMessage is the fixed warning used when neither the facet match nor
// the candidate pool yields an entry. No card ever renders empty: absence of
// signal must still produce an actionable artifact.
const FallbackMessage = "No interview signal captured for this card yet. Revisit this area in a follow-up session before relying on it."

// Entry is one source-attributed line on a trust card.
type Entry struct {
	Field    string      `json:"field,omitempty"`
	Label    string      `json:"label"`
	Preview  string      `json:"preview"`
	Source   Attribution `json:"source,omitempty"`
	Fallback bool        `json:"fallback,omitempty"`
}

// Bundle is the four-card trust summary embedded write-once in the persisted
// artifact.
type Bundle struct {
	FacetVersion string           `json:"facet_version"`
	Cards        map[Card][]Entry `json:"cards"`
}

// BuildTrustBundle classifies the candidates into the four cards. Each card
// is deduplicated by (phase, question, field), capped, and, when the facet
// matched nothing, backfilled from the full candidate pool and finally from
// a synthetic fallback entry.
func BuildTrustBundle(candidates []MemoryCandidate, cfg FacetConfig) Bundle {
	byFacet := make(map[Facet][]MemoryCandidate)
	for _, c := range candidates {
		for _, f := range Classify(c, cfg) {
			byFacet[f] = append(byFacet[f], c)
		}
	}

	bundle := Bundle{
		FacetVersion: cfg.Version,
		Cards:        make(map[Card][]Entry, len(cardOrder)),
	}
	for _, card := range cardOrder {
		entries := dedupEntries(byFacet[cardFacets[card]])
		if len(entries) == 0 {
			entries = dedupEntries(candidates)
		}
		if len(entries) > maxEntriesPerCard {
			entries = entries[:maxEntriesPerCard]
		}
		if len(entries) == 0 {
			entries = []Entry{{
				Label:    "No signal",
				Preview:  FallbackMessage,
				Fallback: true,
			}}
		}
		bundle.Cards[card] = entries
	}
	return bundle
}

type entryKey struct {
	phaseID    string
	questionID string
	field      string
}

func dedupEntries(candidates []MemoryCandidate) []Entry {
	seen := make(map[entryKey]bool, len(candidates))
	var out []Entry
	for _, c := range candidates {
		k := entryKey{c.Source.PhaseID, c.Source.QuestionID, c.Field}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, Entry{
			Field:   c.Field,
			Label:   c.Label,
			Preview: c.Preview,
			Source:  c.Source,
		})
	}
	return out
}
