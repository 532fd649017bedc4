// Package chat implements the turn-orchestration pipeline: per-conversation
// admission control, two-tier context assembly (verbatim recent transcript
// plus similarity-retrieved memory), the generation call, and the
// durability rules for the writes that follow it.
package chat

// SegmentRole tags one prompt segment with its origin.
type SegmentRole string

const (
	// SegmentContext is the synthetic leading segment carrying retrieved
	// long-term memory. It is background material, never user speech.
	SegmentContext SegmentRole = "context"

	// SegmentUser is a verbatim user turn.
	SegmentUser SegmentRole = "user"

	// SegmentAssistant is a verbatim assistant turn.
	SegmentAssistant SegmentRole = "assistant"
)

// Segment is one ordered, role-tagged piece of the assembled prompt.
type Segment struct {
	Role SegmentRole
	Text string
}
