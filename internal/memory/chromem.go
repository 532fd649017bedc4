package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
)

const collectionName = "quip_memory"

// ChromemStore implements Store on chromem-go, a pure Go embedded vector
// database. With an empty path the index lives in memory only; with a
// path it is persisted to disk.
type ChromemStore struct {
	db  *chromem.DB
	col *chromem.Collection
}

// Compile-time check that ChromemStore implements Store.
var _ Store = (*ChromemStore)(nil)

// NewChromemStore creates a chromem-backed memory store.
func NewChromemStore(path string) (*ChromemStore, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open persistent db: %w", err)
		}
	}

	// Embeddings are always supplied by the caller, so no embedding func.
	col, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &ChromemStore{db: db, col: col}, nil
}

// Upsert stores or replaces a record by ID.
func (s *ChromemStore) Upsert(ctx context.Context, rec Record) error {
	doc := chromem.Document{
		ID:        rec.ID,
		Content:   rec.Text,
		Embedding: rec.Vector,
		Metadata: map[string]string{
			"conversation": rec.ConversationID,
			"principal":    rec.PrincipalID,
			"role":         string(rec.Role),
			"turn":         rec.TurnID,
			"created":      rec.CreatedAt.Format(time.RFC3339),
		},
	}

	if err := s.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Query returns up to topK fragments most similar to the vector.
func (s *ChromemStore) Query(ctx context.Context, vector []float32, topK int, f Filter) ([]Fragment, error) {
	where := map[string]string{}
	if f.PrincipalID != "" {
		where["principal"] = f.PrincipalID
	}

	// chromem rejects nResults larger than the (filtered) document count,
	// which it does not expose. Clamp to the collection size, then walk
	// the limit down when the filter shrinks the candidate set further.
	if count := s.col.Count(); topK > count {
		topK = count
	}
	if topK == 0 {
		return nil, nil
	}

	var results []chromem.Result
	for limit := topK; limit >= 1; limit-- {
		var err error
		results, err = s.col.QueryEmbedding(ctx, vector, limit, where, nil)
		if err == nil {
			break
		}
		if isTooFewDocsError(err) {
			if limit == 1 {
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	fragments := make([]Fragment, 0, len(results))
	for _, res := range results {
		fragments = append(fragments, Fragment{
			Text:  res.Content,
			Score: res.Similarity,
		})
	}
	return fragments, nil
}

// isTooFewDocsError reports whether the query failed only because fewer
// documents matched than were requested.
func isTooFewDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
