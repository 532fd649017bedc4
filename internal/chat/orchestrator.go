package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quiplabs/quip/internal/memory"
	"github.com/quiplabs/quip/internal/models"
)

// Defaults for Options fields left zero.
const (
	DefaultWindow     = 20
	DefaultTopK       = 3
	DefaultRetryAfter = 2 * time.Second
)

// Options configures the orchestrator. Resolved once at construction; the
// long-term memory path is a flag, not a code edit, so both branches stay
// compiled and tested.
type Options struct {
	// LongTermMemory toggles the embed/retrieve/upsert path.
	LongTermMemory bool

	// Window is the verbatim transcript bound (most recent N turns).
	Window int

	// TopK is the similarity query fan-in.
	TopK int

	// RetryAfter is the delay hint attached to admission-rejected and
	// quota failures.
	RetryAfter time.Duration
}

func (o Options) withDefaults() Options {
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.RetryAfter <= 0 {
		o.RetryAfter = DefaultRetryAfter
	}
	return o
}

// Reply is the success payload of one processed turn.
type Reply struct {
	Text     string
	UserTurn models.Turn

	// AssistantTurn is nil when Persisted is false.
	AssistantTurn *models.Turn

	// ContextUsed reports whether retrieved long-term memory contributed
	// to the prompt.
	ContextUsed bool

	// Persisted is false when the reply was generated but the assistant
	// turn could not be durably recorded (degraded success).
	Persisted bool
}

// Orchestrator owns the end-to-end turn lifecycle. It serializes turns per
// conversation through the admission gate, fans out to the transcript and
// memory stores, assembles the prompt, calls the generator, and applies
// the durability rules for the writes that follow a successful generation.
type Orchestrator struct {
	gate        *Gate
	transcripts TranscriptStore
	memories    memory.Store
	embedder    Embedder
	generator   Generator
	opts        Options
	logger      *slog.Logger
}

// NewOrchestrator wires the pipeline. The gate is injected so callers (and
// tests) control admission scope explicitly.
func NewOrchestrator(
	gate *Gate,
	transcripts TranscriptStore,
	memories memory.Store,
	embedder Embedder,
	generator Generator,
	opts Options,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		gate:        gate,
		transcripts: transcripts,
		memories:    memories,
		embedder:    embedder,
		generator:   generator,
		opts:        opts.withDefaults(),
		logger:      logger,
	}
}

// ProcessTurn runs one user utterance through the pipeline and returns the
// assistant reply. Failures are *Error values with a stable Kind; see the
// taxonomy in errors.go. The gate mark is released on every exit path.
func (o *Orchestrator) ProcessTurn(ctx context.Context, conversationID, principalID, text string) (*Reply, error) {
	text = strings.TrimSpace(text)
	if conversationID == "" {
		return nil, &Error{Kind: KindValidation, Message: "conversation id is required"}
	}
	if text == "" {
		return nil, &Error{Kind: KindValidation, Message: "message text is empty"}
	}

	// Admission check happens before any I/O.
	if !o.gate.TryAcquire(conversationID) {
		return nil, &Error{
			Kind:       KindAdmissionRejected,
			Message:    "a turn for this conversation is already being processed",
			RetryAfter: o.opts.RetryAfter,
		}
	}
	defer o.gate.Release(conversationID)

	// Persist the user turn and embed its text concurrently. The append
	// is required; the embedding is best-effort, since the transcript
	// window alone is enough to generate a reply.
	var (
		userTurn  models.Turn
		appendErr error
		queryVec  []float32
		embedErr  error
	)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		userTurn, appendErr = o.transcripts.AppendTurn(ctx, conversationID, models.RoleUser, text, &principalID)
	}()
	go func() {
		defer wg.Done()
		if !o.opts.LongTermMemory {
			return
		}
		queryVec, embedErr = o.embedder.Embed(ctx, text)
	}()
	wg.Wait()

	if appendErr != nil {
		return nil, o.storeFailure("record user message", appendErr)
	}
	if embedErr != nil {
		o.logger.Warn("embedding failed, proceeding without long-term memory",
			"conversation", conversationID, "error", embedErr)
		queryVec = nil
	}

	// Fan out: similarity query and transcript window read, plus the
	// best-effort write of the user turn's memory record. All branches
	// are joined before the prompt is assembled.
	var (
		fragments []memory.Fragment
		queryErr  error
		recent    []models.Turn
		recentErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		if queryVec == nil {
			return
		}
		fragments, queryErr = o.memories.Query(ctx, queryVec, o.opts.TopK, memory.Filter{PrincipalID: principalID})
	}()
	go func() {
		defer wg.Done()
		recent, recentErr = o.transcripts.RecentTurns(ctx, conversationID, o.opts.Window)
	}()
	if queryVec != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := o.memories.Upsert(ctx, memoryRecord(userTurn, queryVec, principalID)); err != nil {
				o.logger.Warn("user memory record not stored", "turn", userTurn.ID, "error", err)
			}
		}()
	}
	wg.Wait()

	if recentErr != nil {
		return nil, o.storeFailure("read transcript window", recentErr)
	}
	if queryErr != nil {
		o.logger.Warn("similarity query failed, proceeding without long-term memory",
			"conversation", conversationID, "error", queryErr)
		fragments = nil
	}

	asm := Assembler{Window: o.opts.Window}
	segments := asm.Assemble(recent, fragments)

	// The single most expensive and failure-prone step. No retries here;
	// retry policy belongs to the caller.
	replyText, err := o.generator.Generate(ctx, segments)
	if err != nil {
		return nil, o.capabilityFailure("generate reply", err)
	}

	// Persist the assistant turn and embed the reply concurrently. The
	// reply already exists from the caller's point of view: the memory
	// write is logged and swallowed on failure, and a failed transcript
	// append downgrades the result to an unpersisted success.
	var (
		assistantTurn models.Turn
		assistantErr  error
		replyVec      []float32
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		assistantTurn, assistantErr = o.transcripts.AppendTurn(ctx, conversationID, models.RoleAssistant, replyText, nil)
	}()
	go func() {
		defer wg.Done()
		if !o.opts.LongTermMemory {
			return
		}
		var embedErr error
		replyVec, embedErr = o.embedder.Embed(ctx, replyText)
		if embedErr != nil {
			o.logger.Warn("assistant reply not embedded", "conversation", conversationID, "error", embedErr)
			replyVec = nil
		}
	}()
	wg.Wait()

	reply := &Reply{
		Text:        replyText,
		UserTurn:    userTurn,
		ContextUsed: len(fragments) > 0,
		Persisted:   true,
	}

	if assistantErr != nil {
		o.logger.Error("assistant turn not durably recorded",
			"conversation", conversationID, "error", assistantErr)
		reply.Persisted = false
	} else {
		reply.AssistantTurn = &assistantTurn
	}

	// The back-reference needs the assistant turn ID, so this upsert runs
	// after the join. Best-effort like every memory write.
	if replyVec != nil && assistantErr == nil {
		if err := o.memories.Upsert(ctx, memoryRecord(assistantTurn, replyVec, principalID)); err != nil {
			o.logger.Warn("assistant memory record not stored", "turn", assistantTurn.ID, "error", err)
		}
	}

	return reply, nil
}

// memoryRecord builds the memory record for one embedded turn.
func memoryRecord(turn models.Turn, vec []float32, principalID string) memory.Record {
	return memory.Record{
		ID:             uuid.NewString(),
		Vector:         vec,
		Text:           turn.Content,
		ConversationID: turn.ConversationID,
		PrincipalID:    principalID,
		Role:           turn.Role,
		TurnID:         turn.ID,
		CreatedAt:      turn.CreatedAt,
	}
}

// storeFailure wraps a required-step store error.
func (o *Orchestrator) storeFailure(op string, err error) *Error {
	return &Error{
		Kind:    KindStoreUnavailable,
		Message: op + ": store unavailable",
		Err:     err,
	}
}

// capabilityFailure maps a typed capability error onto the turn taxonomy.
// Unclassified upstream failures are treated as transient: the caller may
// retry and the admission gate keeps retries from stacking.
func (o *Orchestrator) capabilityFailure(op string, err error) *Error {
	kind := KindTransient
	var retryAfter time.Duration

	var capErr *CapabilityError
	if errors.As(err, &capErr) {
		switch capErr.Kind {
		case CapabilityQuota:
			kind = KindQuotaExceeded
			retryAfter = o.opts.RetryAfter
		case CapabilityAuth:
			kind = KindAuthFailed
		}
	}

	return &Error{
		Kind:       kind,
		Message:    op + " failed",
		RetryAfter: retryAfter,
		Err:        err,
	}
}
