package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/carelyhq/carely/internal/store"
)

// Layer is one independent read path into a user's memory. Fetch is
// side-effect-free and restartable; limit bounds the number of items.
type Layer interface {
	Fetch(ctx context.Context, userID, currentText string, limit int) ([]Item, error)
}

// StructuredLayer returns the user's profile, medication, and schedule facts
// verbatim. Small, unranked, always included in the bundle.
type StructuredLayer struct {
	Store *store.Store
}

func (l *StructuredLayer) Fetch(ctx context.Context, userID, currentText string, limit int) ([]Item, error) {
	profile, err := l.Store.GetProfile(userID)
	if err != nil {
		return nil, fmt.Errorf("structured fetch: %w", err)
	}

	var items []Item
	if profile != nil {
		var b strings.Builder
		fmt.Fprintf(&b, "The user's name is %s.", profile.Name)
		if profile.Notes != "" {
			fmt.Fprintf(&b, " %s", profile.Notes)
		}
		if profile.EmergencyContact != "" {
			fmt.Fprintf(&b, " Emergency contact: %s.", profile.EmergencyContact)
		}
		items = append(items, Item{Source: SourceStructured, Text: b.String(), Timestamp: profile.CreatedAt})
	}

	meds, err := l.Store.Medications(userID)
	if err != nil {
		return nil, fmt.Errorf("structured fetch: %w", err)
	}
	for _, m := range meds {
		text := fmt.Sprintf("Medication: %s %s, %s", m.Name, m.Dosage, m.Frequency)
		if m.Times != "" {
			text += " at " + m.Times
		}
		if m.Instructions != "" {
			text += ". " + m.Instructions
		}
		items = append(items, Item{Source: SourceStructured, Text: text})
	}

	entries, err := l.Store.UpcomingSchedule(userID, 7)
	if err != nil {
		return nil, fmt.Errorf("structured fetch: %w", err)
	}
	for _, e := range entries {
		text := fmt.Sprintf("Upcoming %s on %s: %s", e.Kind, e.EventDate, e.Title)
		if e.Description != "" {
			text += ". " + e.Description
		}
		items = append(items, Item{Source: SourceStructured, Text: text, Timestamp: e.CreatedAt})
	}

	return items, nil
}

// ShortTermLayer returns the most recent turns in chronological order, oldest
// first. The ordering matters for prompt coherence.
type ShortTermLayer struct {
	Store *store.Store
}

func (l *ShortTermLayer) Fetch(ctx context.Context, userID, currentText string, limit int) ([]Item, error) {
	turns, err := l.Store.RecentTurns(userID, limit)
	if err != nil {
		return nil, fmt.Errorf("short-term fetch: %w", err)
	}

	items := make([]Item, 0, len(turns))
	for _, t := range turns {
		speaker := "User"
		if t.Role == store.RoleCompanion {
			speaker = "Carely"
		}
		items = append(items, Item{
			Source:    SourceShortTerm,
			Text:      speaker + ": " + t.Text,
			Timestamp: t.CreatedAt,
		})
	}
	return items, nil
}

// LongTermLayer performs semantic nearest-neighbor search over indexed past
// turns and summaries, returning top-limit by descending relevance.
type LongTermLayer struct {
	Index *Index
}

func (l *LongTermLayer) Fetch(ctx context.Context, userID, currentText string, limit int) ([]Item, error) {
	if strings.TrimSpace(currentText) == "" {
		return nil, nil
	}
	hits, err := l.Index.Search(ctx, userID, currentText, limit)
	if err != nil {
		return nil, fmt.Errorf("long-term fetch: %w", err)
	}

	items := make([]Item, 0, len(hits))
	for _, h := range hits {
		items = append(items, Item{
			Source:    SourceLongTerm,
			Text:      h.Text,
			Relevance: h.Score,
			Timestamp: h.Timestamp,
		})
	}
	return items, nil
}

// EpisodicLayer returns the most recent daily summaries, newest first.
type EpisodicLayer struct {
	Store *store.Store
}

func (l *EpisodicLayer) Fetch(ctx context.Context, userID, currentText string, limit int) ([]Item, error) {
	summaries, err := l.Store.EpisodicSummaries(userID, limit)
	if err != nil {
		return nil, fmt.Errorf("episodic fetch: %w", err)
	}

	items := make([]Item, 0, len(summaries))
	for _, s := range summaries {
		items = append(items, Item{
			Source:    SourceEpisodic,
			Text:      fmt.Sprintf("On %s: %s", s.Date, s.Text),
			Timestamp: s.CreatedAt,
		})
	}
	return items, nil
}
