package chat

import "sync"

// Gate is the per-conversation admission gate. It guards against duplicate
// expensive upstream calls from impatient retries or the same logical send
// arriving twice (e.g. via two transports): while a turn is in flight for
// a conversation, further turns for it are rejected, not queued.
//
// The gate is process-local and injectable so tests can instantiate
// independent gates and assert release behavior.
type Gate struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewGate creates an empty admission gate.
func NewGate() *Gate {
	return &Gate{inflight: make(map[string]struct{})}
}

// TryAcquire marks the conversation as in flight. Returns false without
// blocking if a mark already exists.
func (g *Gate) TryAcquire(conversationID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.inflight[conversationID]; ok {
		return false
	}
	g.inflight[conversationID] = struct{}{}
	return true
}

// Release clears the conversation's mark. Releasing an absent mark is a
// no-op, so Release is safe to call from every exit path, including ones
// where acquisition never happened.
func (g *Gate) Release(conversationID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.inflight, conversationID)
}
