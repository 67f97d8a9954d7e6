package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/carelyhq/carely/internal/store"
)

// ErrIndexUnavailable marks a semantic search that could not run, either
// because the embedding backend or the storage backend was unreachable.
var ErrIndexUnavailable = errors.New("index unavailable")

// Embedder turns texts into vectors. Satisfied by llm.Client.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Hit is one nearest-neighbor result from the semantic index.
type Hit struct {
	Text      string
	Score     float64
	Timestamp string
}

// Index is the semantic store over past turns and daily summaries. Writes go
// through Add, reads through Search.
type Index struct {
	store    *store.Store
	embedder Embedder
}

func NewIndex(s *store.Store, e Embedder) *Index {
	return &Index{store: s, embedder: e}
}

// Add embeds text and persists it as a long-term item. Kind labels the
// origin ("turn" or "summary").
func (ix *Index) Add(ctx context.Context, userID, kind, text string) error {
	vectors, err := ix.embedder.Embed(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("index add: %w", err)
	}
	blob, err := EncodeVector(vectors[0])
	if err != nil {
		return fmt.Errorf("index add: %w", err)
	}
	return ix.store.AddLongTermItem(store.LongTermItem{
		UserID:    userID,
		Kind:      kind,
		Text:      text,
		Embedding: blob,
	})
}

// Search returns the top-limit items for the query by descending cosine
// similarity. Ties break toward the newer item.
func (ix *Index) Search(ctx context.Context, userID, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		return nil, nil
	}

	vectors, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("index search: %w", errors.Join(ErrIndexUnavailable, err))
	}
	queryVec := vectors[0]

	items, err := ix.store.LongTermItems(userID, 0)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", errors.Join(ErrIndexUnavailable, err))
	}

	hits := make([]Hit, 0, len(items))
	for _, item := range items {
		vec, err := DecodeVector(item.Embedding)
		if err != nil {
			continue
		}
		score, err := CosineSimilarity(queryVec, vec)
		if err != nil {
			continue
		}
		hits = append(hits, Hit{Text: item.Text, Score: score, Timestamp: item.CreatedAt})
	}

	// items arrive newest first, so a stable sort keeps the recency tie-break
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
