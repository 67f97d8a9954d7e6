package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/carelyhq/carely/internal/store"
)

// fakeEmbedder maps known texts to fixed vectors.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, ok := f.vectors[text]
		if !ok {
			vec = []float32{0.01, 0.01}
		}
		out[i] = vec
	}
	return out, nil
}

func newIndexFixture(t *testing.T, e Embedder) (*Index, *store.Store) {
	t.Helper()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "carely.db"))
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return NewIndex(s, e), s
}

func TestIndexSearchRanking(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"my garden":        {1, 0},
		"roses in bloom":   {0.9, 0.1},
		"doctor visit":     {0, 1},
		"lunch with Anna":  {0.5, 0.5},
		"how is my garden": {1, 0},
	}}
	ix, _ := newIndexFixture(t, emb)
	ctx := context.Background()

	for _, text := range []string{"my garden", "roses in bloom", "doctor visit", "lunch with Anna"} {
		if err := ix.Add(ctx, "u1", "turn", text); err != nil {
			t.Fatalf("Add(%q) error: %v", text, err)
		}
	}

	hits, err := ix.Search(ctx, "u1", "how is my garden", 2)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("len=%d, want 2", len(hits))
	}
	if hits[0].Text != "my garden" {
		t.Fatalf("top hit %q, want %q", hits[0].Text, "my garden")
	}
	if hits[0].Score < hits[1].Score {
		t.Fatalf("hits not in descending score order: %v", hits)
	}
}

func TestIndexSearchRecencyTieBreak(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"first note":  {1, 0},
		"second note": {1, 0},
		"query":       {1, 0},
	}}
	ix, _ := newIndexFixture(t, emb)
	ctx := context.Background()

	if err := ix.Add(ctx, "u1", "turn", "first note"); err != nil {
		t.Fatal(err)
	}
	if err := ix.Add(ctx, "u1", "turn", "second note"); err != nil {
		t.Fatal(err)
	}

	hits, err := ix.Search(ctx, "u1", "query", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Text != "second note" {
		t.Fatalf("expected newer item to win tie, got %v", hits)
	}
}

func TestIndexSearchUnavailable(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("connection refused")}
	ix, _ := newIndexFixture(t, emb)

	_, err := ix.Search(context.Background(), "u1", "anything", 3)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrIndexUnavailable) {
		t.Fatalf("error %v does not match ErrIndexUnavailable", err)
	}
}

func TestIndexSearchScopedToUser(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"private fact": {1, 0},
		"query":        {1, 0},
	}}
	ix, _ := newIndexFixture(t, emb)
	ctx := context.Background()

	if err := ix.Add(ctx, "u1", "turn", "private fact"); err != nil {
		t.Fatal(err)
	}

	hits, err := ix.Search(ctx, "u2", "query", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no cross-user hits, got %v", hits)
	}
}
