package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiplabs/quip/internal/memory"
	"github.com/quiplabs/quip/internal/models"
)

type fakeTranscripts struct {
	mu sync.Mutex

	turns []models.Turn

	appendErr map[models.Role]error
	recentErr error
}

func (f *fakeTranscripts) AppendTurn(ctx context.Context, conversationID string, role models.Role, content string, principalID *string) (models.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.appendErr[role]; err != nil {
		return models.Turn{}, err
	}

	turn := models.Turn{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		PrincipalID:    principalID,
		CreatedAt:      time.Now().Add(time.Duration(len(f.turns)) * time.Millisecond),
	}
	f.turns = append(f.turns, turn)
	return turn, nil
}

func (f *fakeTranscripts) RecentTurns(ctx context.Context, conversationID string, limit int) ([]models.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.recentErr != nil {
		return nil, f.recentErr
	}

	var out []models.Turn
	for i := len(f.turns) - 1; i >= 0 && len(out) < limit; i-- {
		if f.turns[i].ConversationID == conversationID {
			out = append(out, f.turns[i])
		}
	}
	return out, nil
}

func (f *fakeTranscripts) contents(role models.Role) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, turn := range f.turns {
		if turn.Role == role {
			out = append(out, turn.Content)
		}
	}
	return out
}

type fakeMemory struct {
	mu sync.Mutex

	records   []memory.Record
	fragments []memory.Fragment

	upsertErr error
	queryErr  error

	queries atomic.Int32
}

func (f *fakeMemory) Upsert(ctx context.Context, rec memory.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeMemory) Query(ctx context.Context, vector []float32, topK int, filter memory.Filter) ([]memory.Fragment, error) {
	f.queries.Add(1)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.fragments, nil
}

func (f *fakeMemory) recordCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type fakeEmbedder struct {
	err   error
	calls atomic.Int32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeGenerator struct {
	mu       sync.Mutex
	prompts  [][]Segment
	reply    string
	err      error
	started  chan struct{} // closed on first call, if set
	proceed  chan struct{} // blocks generation until closed, if set
	startOne sync.Once
}

func (f *fakeGenerator) Generate(ctx context.Context, segments []Segment) (string, error) {
	if f.started != nil {
		f.startOne.Do(func() { close(f.started) })
	}
	if f.proceed != nil {
		<-f.proceed
	}

	f.mu.Lock()
	f.prompts = append(f.prompts, segments)
	f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}
	if f.reply != "" {
		return f.reply, nil
	}
	return "re: " + segments[len(segments)-1].Text, nil
}

func (f *fakeGenerator) lastPrompt() []Segment {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return nil
	}
	return f.prompts[len(f.prompts)-1]
}

type pipeline struct {
	orch        *Orchestrator
	transcripts *fakeTranscripts
	memories    *fakeMemory
	embedder    *fakeEmbedder
	generator   *fakeGenerator
}

func newPipeline(opts Options) *pipeline {
	p := &pipeline{
		transcripts: &fakeTranscripts{},
		memories:    &fakeMemory{},
		embedder:    &fakeEmbedder{},
		generator:   &fakeGenerator{},
	}
	p.orch = NewOrchestrator(NewGate(), p.transcripts, p.memories, p.embedder, p.generator, opts, nil)
	return p
}

func TestProcessTurnValidation(t *testing.T) {
	p := newPipeline(Options{LongTermMemory: true})

	tests := []struct {
		name           string
		conversationID string
		text           string
	}{
		{"empty text", "conv-1", ""},
		{"whitespace only", "conv-1", "   \n\t "},
		{"missing conversation", "", "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.orch.ProcessTurn(context.Background(), tt.conversationID, "alice", tt.text)
			turnErr, ok := AsError(err)
			require.True(t, ok)
			assert.Equal(t, KindValidation, turnErr.Kind)
			assert.False(t, turnErr.Kind.Retryable())
		})
	}

	assert.Empty(t, p.transcripts.turns, "validation failures must happen before any write")
	assert.Zero(t, p.embedder.calls.Load())
}

func TestProcessTurnFirstMessage(t *testing.T) {
	p := newPipeline(Options{LongTermMemory: true})

	reply, err := p.orch.ProcessTurn(context.Background(), "conv-1", "alice", "why is my code broken")
	require.NoError(t, err)

	assert.Equal(t, "re: why is my code broken", reply.Text)
	assert.False(t, reply.ContextUsed, "an empty memory store contributes nothing")
	assert.True(t, reply.Persisted)
	require.NotNil(t, reply.AssistantTurn)
	assert.Equal(t, models.RoleAssistant, reply.AssistantTurn.Role)

	assert.Equal(t, []string{"why is my code broken"}, p.transcripts.contents(models.RoleUser))
	assert.Equal(t, []string{"re: why is my code broken"}, p.transcripts.contents(models.RoleAssistant))

	// Both the user turn and the reply get memory records.
	assert.Equal(t, 2, p.memories.recordCount())
}

func TestProcessTurnUsesRetrievedContext(t *testing.T) {
	p := newPipeline(Options{LongTermMemory: true})
	p.memories.fragments = []memory.Fragment{
		{Text: "the user loves semicolons", Score: 0.93},
	}

	reply, err := p.orch.ProcessTurn(context.Background(), "conv-2", "alice", "what do I love?")
	require.NoError(t, err)
	assert.True(t, reply.ContextUsed)

	prompt := p.generator.lastPrompt()
	require.NotEmpty(t, prompt)
	assert.Equal(t, SegmentContext, prompt[0].Role)
	assert.Contains(t, prompt[0].Text, "the user loves semicolons")
	assert.Equal(t, "what do I love?", prompt[len(prompt)-1].Text)
}

func TestProcessTurnRejectsConcurrentTurn(t *testing.T) {
	p := newPipeline(Options{RetryAfter: 2 * time.Second})
	p.generator.started = make(chan struct{})
	p.generator.proceed = make(chan struct{})

	firstDone := make(chan error, 1)
	go func() {
		_, err := p.orch.ProcessTurn(context.Background(), "conv-1", "alice", "a")
		firstDone <- err
	}()

	// Wait until the first turn is mid-generation, then race a second one.
	<-p.generator.started
	_, err := p.orch.ProcessTurn(context.Background(), "conv-1", "alice", "b")
	turnErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindAdmissionRejected, turnErr.Kind)
	assert.Equal(t, 2*time.Second, turnErr.RetryAfter)
	assert.True(t, turnErr.Kind.Retryable())

	close(p.generator.proceed)
	require.NoError(t, <-firstDone)

	// The mark is gone once the first turn finishes.
	_, err = p.orch.ProcessTurn(context.Background(), "conv-1", "alice", "again")
	require.NoError(t, err)
}

func TestProcessTurnQuotaFailureKeepsUserTurn(t *testing.T) {
	p := newPipeline(Options{LongTermMemory: true, RetryAfter: 2 * time.Second})
	p.generator.err = &CapabilityError{
		Kind: CapabilityQuota,
		Op:   "generate",
		Err:  fmt.Errorf("429 resource exhausted"),
	}

	_, err := p.orch.ProcessTurn(context.Background(), "conv-1", "alice", "hello")
	turnErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindQuotaExceeded, turnErr.Kind)
	assert.Equal(t, 2*time.Second, turnErr.RetryAfter)

	// No rollback: the user turn stays in the transcript.
	assert.Equal(t, []string{"hello"}, p.transcripts.contents(models.RoleUser))
	assert.Empty(t, p.transcripts.contents(models.RoleAssistant))
}

func TestProcessTurnMapsCapabilityKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"auth", &CapabilityError{Kind: CapabilityAuth, Op: "generate", Err: errors.New("401")}, KindAuthFailed},
		{"transient", &CapabilityError{Kind: CapabilityTransient, Op: "generate", Err: errors.New("503")}, KindTransient},
		{"unknown defaults to transient", &CapabilityError{Kind: CapabilityUnknown, Op: "generate", Err: errors.New("???")}, KindTransient},
		{"untyped defaults to transient", errors.New("plain failure"), KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(Options{})
			p.generator.err = tt.err

			_, err := p.orch.ProcessTurn(context.Background(), "conv-1", "alice", "hi")
			turnErr, ok := AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.want, turnErr.Kind)
		})
	}
}

func TestProcessTurnSurvivesFailingMemoryStore(t *testing.T) {
	p := newPipeline(Options{LongTermMemory: true})
	p.memories.queryErr = errors.New("vector store down")
	p.memories.upsertErr = errors.New("vector store down")

	reply, err := p.orch.ProcessTurn(context.Background(), "conv-1", "alice", "hello")
	require.NoError(t, err, "memory writes and reads are best-effort")
	assert.False(t, reply.ContextUsed)
	assert.True(t, reply.Persisted)
}

func TestProcessTurnSurvivesFailingEmbedder(t *testing.T) {
	p := newPipeline(Options{LongTermMemory: true})
	p.embedder.err = errors.New("embedder down")

	reply, err := p.orch.ProcessTurn(context.Background(), "conv-1", "alice", "hello")
	require.NoError(t, err)
	assert.False(t, reply.ContextUsed)
	assert.Zero(t, p.memories.queries.Load(), "no query without a query vector")
	assert.Zero(t, p.memories.recordCount())
}

func TestProcessTurnLongTermMemoryDisabled(t *testing.T) {
	p := newPipeline(Options{LongTermMemory: false})
	p.memories.fragments = []memory.Fragment{{Text: "stale", Score: 0.9}}

	reply, err := p.orch.ProcessTurn(context.Background(), "conv-1", "alice", "hello")
	require.NoError(t, err)

	assert.False(t, reply.ContextUsed)
	assert.Zero(t, p.embedder.calls.Load(), "the flag must bypass embedding entirely")
	assert.Zero(t, p.memories.queries.Load())
	assert.Zero(t, p.memories.recordCount())
}

func TestProcessTurnUserAppendFailureIsFatal(t *testing.T) {
	p := newPipeline(Options{})
	p.transcripts.appendErr = map[models.Role]error{models.RoleUser: errors.New("db down")}

	_, err := p.orch.ProcessTurn(context.Background(), "conv-1", "alice", "hello")
	turnErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindStoreUnavailable, turnErr.Kind)
	assert.True(t, turnErr.Kind.Retryable())
}

func TestProcessTurnWindowReadFailureIsFatal(t *testing.T) {
	p := newPipeline(Options{})
	p.transcripts.recentErr = errors.New("db down")

	_, err := p.orch.ProcessTurn(context.Background(), "conv-1", "alice", "hello")
	turnErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindStoreUnavailable, turnErr.Kind)
}

func TestProcessTurnAssistantAppendFailureDegrades(t *testing.T) {
	p := newPipeline(Options{LongTermMemory: true})
	p.transcripts.appendErr = map[models.Role]error{models.RoleAssistant: errors.New("db down")}

	reply, err := p.orch.ProcessTurn(context.Background(), "conv-1", "alice", "hello")
	require.NoError(t, err, "a generated reply is returned even when it cannot be recorded")

	assert.False(t, reply.Persisted)
	assert.Nil(t, reply.AssistantTurn)
	assert.NotEmpty(t, reply.Text)

	// Only the user turn got a memory record: without a durable assistant
	// turn there is nothing to back-reference.
	assert.Equal(t, 1, p.memories.recordCount())
}
