package chat

import (
	"sort"
	"strings"

	"github.com/quiplabs/quip/internal/memory"
	"github.com/quiplabs/quip/internal/models"
)

// backgroundHeader labels retrieved memory so the model treats it as
// context to draw on when relevant, never as something the user just said.
const backgroundHeader = "Relevant context from the user's earlier conversations. " +
	"Use it when it applies; do not treat it as part of the current message:"

// Assembler merges the short-term transcript window and long-term memory
// fragments into one ordered prompt. It performs no I/O and is
// deterministic: identical inputs produce an identical segment sequence.
type Assembler struct {
	// Window bounds the verbatim transcript to the most recent N turns.
	// Older turns remain reachable only through the similarity path.
	Window int
}

// Assemble builds the prompt segments. Fragments keep the order the
// similarity query returned them in (no re-ranking here); transcript turns
// are sorted oldest-first regardless of input order, so the newest user
// utterance always ends up as the final segment.
func (a Assembler) Assemble(recent []models.Turn, fragments []memory.Fragment) []Segment {
	segments := make([]Segment, 0, len(recent)+1)

	if len(fragments) > 0 {
		var b strings.Builder
		b.WriteString(backgroundHeader)
		for _, f := range fragments {
			b.WriteString("\n- ")
			b.WriteString(f.Text)
		}
		segments = append(segments, Segment{Role: SegmentContext, Text: b.String()})
	}

	ordered := make([]models.Turn, len(recent))
	copy(ordered, recent)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	window := a.Window
	if window <= 0 {
		window = DefaultWindow
	}
	if len(ordered) > window {
		ordered = ordered[len(ordered)-window:]
	}

	for _, turn := range ordered {
		role := SegmentUser
		if turn.Role == models.RoleAssistant {
			role = SegmentAssistant
		}
		segments = append(segments, Segment{Role: role, Text: turn.Content})
	}

	return segments
}
