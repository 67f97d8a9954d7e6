package memory

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/carelyhq/carely/internal/store"
)

func newLayerStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "carely.db"))
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStructuredLayer(t *testing.T) {
	s := newLayerStore(t)
	if err := s.UpsertProfile(store.Profile{
		UserID: "u1", Name: "Margaret", Notes: "Loves her garden.", EmergencyContact: "Anna (daughter)", Active: true,
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddMedication(store.Medication{
		UserID: "u1", Name: "Lisinopril", Dosage: "10mg", Frequency: "daily", Times: "08:00", Active: true,
	}); err != nil {
		t.Fatal(err)
	}

	layer := &StructuredLayer{Store: s}
	items, err := layer.Fetch(context.Background(), "u1", "anything", 0)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len=%d, want 2 (profile + medication)", len(items))
	}
	if !strings.Contains(items[0].Text, "Margaret") || !strings.Contains(items[0].Text, "Anna") {
		t.Fatalf("profile item: %q", items[0].Text)
	}
	if !strings.Contains(items[1].Text, "Lisinopril 10mg") {
		t.Fatalf("medication item: %q", items[1].Text)
	}
	for _, item := range items {
		if item.Source != SourceStructured {
			t.Fatalf("source=%s", item.Source)
		}
	}
}

func TestShortTermLayerChronological(t *testing.T) {
	s := newLayerStore(t)
	for i, turn := range []store.Turn{
		{UserID: "u1", Role: store.RoleUser, Text: "hello"},
		{UserID: "u1", Role: store.RoleCompanion, Text: "hello Margaret"},
		{UserID: "u1", Role: store.RoleUser, Text: "how are you"},
	} {
		turn := turn
		if err := s.AppendTurn(&turn); err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}

	layer := &ShortTermLayer{Store: s}
	items, err := layer.Fetch(context.Background(), "u1", "", 2)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len=%d, want 2", len(items))
	}
	// oldest of the window first, speakers labeled
	if items[0].Text != "Carely: hello Margaret" || items[1].Text != "User: how are you" {
		t.Fatalf("unexpected items: %q, %q", items[0].Text, items[1].Text)
	}
}

func TestEpisodicLayerNewestFirst(t *testing.T) {
	s := newLayerStore(t)
	if err := s.WriteEpisodicSummary("u1", "2026-08-28", "a quiet day"); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteEpisodicSummary("u1", "2026-08-29", "a busy day"); err != nil {
		t.Fatal(err)
	}

	layer := &EpisodicLayer{Store: s}
	items, err := layer.Fetch(context.Background(), "u1", "", 5)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len=%d, want 2", len(items))
	}
	if !strings.HasPrefix(items[0].Text, "On 2026-08-29:") {
		t.Fatalf("newest summary not first: %q", items[0].Text)
	}
}

func TestLongTermLayerEmptyQuery(t *testing.T) {
	layer := &LongTermLayer{Index: NewIndex(newLayerStore(t), &fakeEmbedder{})}
	items, err := layer.Fetch(context.Background(), "u1", "   ", 3)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if items != nil {
		t.Fatalf("expected no items for an empty query, got %v", items)
	}
}
