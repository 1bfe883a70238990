package artifact

// CoreMemoryType classifies an onboarding anchor memory.
type CoreMemoryType string

const (
	CoreIdentity CoreMemoryType = "identity"
	CoreBoundary CoreMemoryType = "boundary"
	CoreEmpathy  CoreMemoryType = "empathy"
)

// CoreMemory is an immutable anchor memory distilled from one extracted
// field. These are optional enrichments: a missing or blank field is
// silently omitted, no fallback.
type CoreMemory struct {
	Type            CoreMemoryType `json:"type"`
	Title           string         `json:"title"`
	Content         string         `json:"content"`
	Immutable       bool           `json:"immutable"`
	ImmutableReason string         `json:"immutable_reason"`
}

// ImmutableReason is stamped on every distilled core memory.
const ImmutableReason = "Onboarding anchor; write-once. Start a new interview session to revise."

// coreAnchor maps an extraction field to the memory it distills into. The
// table is iterated, not hand-coded per field, so adding an anchor is a
// one-line change.
type coreAnchor struct {
	Field string
	Type  CoreMemoryType
	Title string
}

var coreAnchors = []coreAnchor{
	{Field: "origin_story", Type: CoreIdentity, Title: "Origin Story"},
	{Field: "hard_boundaries", Type: CoreBoundary, Title: "Hard Boundaries"},
	{Field: "audience_empathy", Type: CoreEmpathy, Title: "Audience Empathy"},
}

// DistillCoreMemories extracts the anchor fields into immutable core
// memories, in anchor-table order.
func DistillCoreMemories(data map[string]any) []CoreMemory {
	var out []CoreMemory
	for _, a := range coreAnchors {
		v, ok := data[a.Field]
		if !ok || isEmpty(v) {
			continue
		}
		out = append(out, CoreMemory{
			Type:            a.Type,
			Title:           a.Title,
			Content:         previewValue(v),
			Immutable:       true,
			ImmutableReason: ImmutableReason,
		})
	}
	return out
}
