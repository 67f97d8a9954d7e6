package memory

import (
	"context"
	"errors"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/carelyhq/carely/internal/config"
)

// Assembler merges the four memory layers into one bounded ContextBundle.
type Assembler struct {
	structured Layer
	shortTerm  Layer
	longTerm   Layer
	episodic   Layer

	budget         int
	shortTermLimit int
	longTermLimit  int
	episodicLimit  int
}

func NewAssembler(structured, shortTerm, longTerm, episodic Layer, cfg *config.Config) *Assembler {
	return &Assembler{
		structured:     structured,
		shortTerm:      shortTerm,
		longTerm:       longTerm,
		episodic:       episodic,
		budget:         cfg.Memory.ContextBudget,
		shortTermLimit: cfg.Memory.ShortTermLimit,
		longTermLimit:  cfg.Memory.LongTermLimit,
		episodicLimit:  cfg.Memory.EpisodicLimit,
	}
}

// Assemble calls all four layers concurrently, waits for every one, and
// merges the results in fixed order: structured, then episodic, then
// long-term, then short-term. The prompt consumer treats later items as
// higher-salience context. A layer that fails contributes an empty slice;
// partial context beats no reply.
func (a *Assembler) Assemble(ctx context.Context, userID, currentText string) (*ContextBundle, error) {
	var structured, shortTerm, longTerm, episodic []Item

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		structured = a.fetch(gctx, a.structured, "structured", userID, currentText, 0)
		return nil
	})
	g.Go(func() error {
		shortTerm = a.fetch(gctx, a.shortTerm, "short-term", userID, currentText, a.shortTermLimit)
		return nil
	})
	g.Go(func() error {
		longTerm = a.fetch(gctx, a.longTerm, "long-term", userID, currentText, a.longTermLimit)
		return nil
	})
	g.Go(func() error {
		episodic = a.fetch(gctx, a.episodic, "episodic", userID, currentText, a.episodicLimit)
		return nil
	})
	_ = g.Wait()

	// Enforce the budget by dropping from the lowest-priority end: oldest
	// short-term first, then weakest long-term, then oldest episodic.
	// Structured facts are never dropped, so when they alone exceed the
	// budget the bundle is returned over budget with only structured items.
	size := itemsSize(structured) + itemsSize(episodic) + itemsSize(longTerm) + itemsSize(shortTerm)
	for size > a.budget && len(shortTerm) > 0 {
		size -= len(shortTerm[0].Text)
		shortTerm = shortTerm[1:]
	}
	for size > a.budget && len(longTerm) > 0 {
		size -= len(longTerm[len(longTerm)-1].Text)
		longTerm = longTerm[:len(longTerm)-1]
	}
	for size > a.budget && len(episodic) > 0 {
		size -= len(episodic[len(episodic)-1].Text)
		episodic = episodic[:len(episodic)-1]
	}
	if size > a.budget {
		log.Printf("[memory] structured facts for %s exceed context budget (%d > %d)", userID, size, a.budget)
	}

	items := make([]Item, 0, len(structured)+len(episodic)+len(longTerm)+len(shortTerm))
	items = append(items, structured...)
	items = append(items, episodic...)
	items = append(items, longTerm...)
	items = append(items, shortTerm...)

	return &ContextBundle{Items: items, Budget: a.budget, Size: size}, nil
}

func (a *Assembler) fetch(ctx context.Context, layer Layer, name, userID, currentText string, limit int) []Item {
	items, err := layer.Fetch(ctx, userID, currentText, limit)
	if err != nil {
		if errors.Is(err, ErrIndexUnavailable) {
			log.Printf("[memory] %s layer degraded: %v", name, err)
		} else {
			log.Printf("[memory] %s layer failed: %v", name, err)
		}
		return nil
	}
	return items
}

func itemsSize(items []Item) int {
	total := 0
	for _, item := range items {
		total += len(item.Text)
	}
	return total
}
