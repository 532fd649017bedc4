package chat

import (
	"context"
	"fmt"

	"github.com/quiplabs/quip/internal/models"
)

// TranscriptStore is the append-only per-conversation transcript.
// AppendTurn must be atomic per call: a turn is either fully written or
// not written at all.
type TranscriptStore interface {
	AppendTurn(ctx context.Context, conversationID string, role models.Role, content string, principalID *string) (models.Turn, error)

	// RecentTurns returns up to limit turns, newest first.
	RecentTurns(ctx context.Context, conversationID string, limit int) ([]models.Turn, error)
}

// Embedder maps text to a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces one reply from an ordered list of role-tagged
// segments.
type Generator interface {
	Generate(ctx context.Context, segments []Segment) (string, error)
}

// CapabilityKind classifies failures of upstream AI capabilities
// (embedding, generation). Adapters classify once, at the call boundary;
// the orchestrator branches on the kind and never inspects provider
// error strings.
type CapabilityKind int

const (
	// CapabilityUnknown is an unclassified provider failure.
	CapabilityUnknown CapabilityKind = iota

	// CapabilityQuota means the provider rate-limited the call.
	CapabilityQuota

	// CapabilityAuth means the credential was rejected.
	CapabilityAuth

	// CapabilityTransient means a network or 5xx failure.
	CapabilityTransient
)

func (k CapabilityKind) String() string {
	switch k {
	case CapabilityQuota:
		return "quota"
	case CapabilityAuth:
		return "auth"
	case CapabilityTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// CapabilityError is the typed failure returned by capability adapters.
type CapabilityError struct {
	Kind CapabilityKind
	Op   string
	Err  error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}
