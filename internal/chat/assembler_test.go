package chat

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiplabs/quip/internal/memory"
	"github.com/quiplabs/quip/internal/models"
)

func turnAt(role models.Role, content string, offset time.Duration) models.Turn {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return models.Turn{
		ID:             content,
		ConversationID: "conv-1",
		Role:           role,
		Content:        content,
		CreatedAt:      base.Add(offset),
	}
}

func TestAssembleOrdersTranscriptChronologically(t *testing.T) {
	asm := Assembler{Window: 10}

	// Newest first, as the store returns them.
	recent := []models.Turn{
		turnAt(models.RoleUser, "third", 3*time.Minute),
		turnAt(models.RoleAssistant, "second", 2*time.Minute),
		turnAt(models.RoleUser, "first", time.Minute),
	}

	segments := asm.Assemble(recent, nil)
	require.Len(t, segments, 3)
	assert.Equal(t, "first", segments[0].Text)
	assert.Equal(t, "second", segments[1].Text)
	assert.Equal(t, "third", segments[2].Text)
	assert.Equal(t, SegmentUser, segments[0].Role)
	assert.Equal(t, SegmentAssistant, segments[1].Role)

	// The newest user utterance is always the final segment.
	assert.Equal(t, SegmentUser, segments[len(segments)-1].Role)
}

func TestAssembleIsDeterministic(t *testing.T) {
	asm := Assembler{Window: 5}
	recent := []models.Turn{
		turnAt(models.RoleUser, "b", 2*time.Minute),
		turnAt(models.RoleUser, "a", time.Minute),
	}
	fragments := []memory.Fragment{
		{Text: "likes semicolons", Score: 0.9},
		{Text: "works in go", Score: 0.8},
	}

	first := asm.Assemble(recent, fragments)
	second := asm.Assemble(recent, fragments)
	assert.Equal(t, first, second, "identical inputs must produce an identical sequence")
}

func TestAssembleOmitsContextWhenNoFragments(t *testing.T) {
	asm := Assembler{Window: 5}
	recent := []models.Turn{turnAt(models.RoleUser, "hello", 0)}

	for _, fragments := range [][]memory.Fragment{nil, {}} {
		segments := asm.Assemble(recent, fragments)
		require.Len(t, segments, 1)
		assert.NotEqual(t, SegmentContext, segments[0].Role,
			"no context segment may appear without fragments, not even an empty one")
	}
}

func TestAssembleContextSegmentComesFirst(t *testing.T) {
	asm := Assembler{Window: 5}
	recent := []models.Turn{turnAt(models.RoleUser, "what was that about?", 0)}
	fragments := []memory.Fragment{
		{Text: "the user loves semicolons", Score: 0.91},
		{Text: "the user writes go", Score: 0.74},
	}

	segments := asm.Assemble(recent, fragments)
	require.Len(t, segments, 2)
	assert.Equal(t, SegmentContext, segments[0].Role)

	// Fragments keep retrieval order inside the single context segment.
	semicolons := strings.Index(segments[0].Text, "semicolons")
	gopher := strings.Index(segments[0].Text, "writes go")
	require.GreaterOrEqual(t, semicolons, 0)
	require.GreaterOrEqual(t, gopher, 0)
	assert.Less(t, semicolons, gopher)
}

func TestAssembleBoundsTranscriptToWindow(t *testing.T) {
	asm := Assembler{Window: 3}

	var recent []models.Turn
	for i := 0; i < 10; i++ {
		recent = append(recent, turnAt(models.RoleUser, string(rune('a'+i)), time.Duration(i)*time.Minute))
	}

	segments := asm.Assemble(recent, nil)
	require.Len(t, segments, 3)
	assert.Equal(t, "h", segments[0].Text)
	assert.Equal(t, "j", segments[2].Text, "the most recent turns survive the trim")
}
