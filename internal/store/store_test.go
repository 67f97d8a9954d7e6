package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "carely.db"))
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestProfileRoundTrip(t *testing.T) {
	s := newTestStore(t)

	p := Profile{UserID: "u1", Name: "Margaret", Notes: "likes gardening", ChatID: "chat-1", Active: true}
	if err := s.UpsertProfile(p); err != nil {
		t.Fatalf("UpsertProfile error: %v", err)
	}

	got, err := s.GetProfile("u1")
	if err != nil {
		t.Fatalf("GetProfile error: %v", err)
	}
	if got == nil || got.Name != "Margaret" || !got.Active {
		t.Fatalf("unexpected profile: %+v", got)
	}

	// upsert replaces, never duplicates
	p.Notes = "likes gardening and crosswords"
	if err := s.UpsertProfile(p); err != nil {
		t.Fatalf("UpsertProfile update error: %v", err)
	}
	got, err = s.GetProfile("u1")
	if err != nil {
		t.Fatalf("GetProfile error: %v", err)
	}
	if got.Notes != "likes gardening and crosswords" {
		t.Fatalf("notes=%q", got.Notes)
	}

	missing, err := s.GetProfile("nobody")
	if err != nil {
		t.Fatalf("GetProfile missing error: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil profile, got %+v", missing)
	}
}

func TestUserIDForChat(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpsertProfile(Profile{UserID: "u1", Name: "M", ChatID: "chat-9", Active: true}); err != nil {
		t.Fatal(err)
	}

	id, err := s.UserIDForChat("chat-9")
	if err != nil {
		t.Fatalf("UserIDForChat error: %v", err)
	}
	if id != "u1" {
		t.Fatalf("id=%q", id)
	}

	id, err = s.UserIDForChat("unknown")
	if err != nil {
		t.Fatalf("UserIDForChat unknown error: %v", err)
	}
	if id != "" {
		t.Fatalf("expected empty id, got %q", id)
	}
}

func TestAppendAndRecentTurns(t *testing.T) {
	s := newTestStore(t)

	for i, text := range []string{"first", "second", "third", "fourth"} {
		turn := &Turn{UserID: "u1", Role: RoleUser, Text: text, Sentiment: "neutral"}
		if i%2 == 1 {
			turn.Role = RoleCompanion
		}
		if err := s.AppendTurn(turn); err != nil {
			t.Fatalf("AppendTurn error: %v", err)
		}
		if turn.ID == 0 {
			t.Fatal("expected turn ID assigned")
		}
		if turn.CreatedAt == "" {
			t.Fatal("expected turn timestamp assigned")
		}
	}

	turns, err := s.RecentTurns("u1", 3)
	if err != nil {
		t.Fatalf("RecentTurns error: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("len=%d, want 3", len(turns))
	}
	// chronological: oldest of the window first
	if turns[0].Text != "second" || turns[2].Text != "fourth" {
		t.Fatalf("unexpected order: %q ... %q", turns[0].Text, turns[2].Text)
	}
}

func TestAppendTurnValidation(t *testing.T) {
	s := newTestStore(t)

	if err := s.AppendTurn(&Turn{UserID: "", Role: RoleUser, Text: "x"}); err == nil {
		t.Fatal("expected error for empty user id")
	}
	if err := s.AppendTurn(&Turn{UserID: "u1", Role: "bot", Text: "x"}); err == nil {
		t.Fatal("expected error for invalid role")
	}
}

func TestTurnsForDate(t *testing.T) {
	s := newTestStore(t)

	today := time.Now().UTC().Format("2006-01-02")
	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format(time.RFC3339)

	if err := s.AppendTurn(&Turn{UserID: "u1", Role: RoleUser, Text: "today msg"}); err != nil {
		t.Fatal(err)
	}
	old := &Turn{UserID: "u1", Role: RoleUser, Text: "old msg", CreatedAt: yesterday}
	if err := s.AppendTurn(old); err != nil {
		t.Fatal(err)
	}

	turns, err := s.TurnsForDate("u1", today)
	if err != nil {
		t.Fatalf("TurnsForDate error: %v", err)
	}
	if len(turns) != 1 || turns[0].Text != "today msg" {
		t.Fatalf("unexpected turns: %+v", turns)
	}

	if _, err := s.TurnsForDate("u1", "not-a-date"); err == nil {
		t.Fatal("expected error for invalid date")
	}
}

func TestEpisodicSummaryUpsert(t *testing.T) {
	s := newTestStore(t)

	if err := s.WriteEpisodicSummary("u1", "2026-08-29", "first version"); err != nil {
		t.Fatalf("WriteEpisodicSummary error: %v", err)
	}
	if err := s.WriteEpisodicSummary("u1", "2026-08-29", "second version"); err != nil {
		t.Fatalf("WriteEpisodicSummary rewrite error: %v", err)
	}
	if err := s.WriteEpisodicSummary("u1", "2026-08-28", "older day"); err != nil {
		t.Fatal(err)
	}

	summaries, err := s.EpisodicSummaries("u1", 10)
	if err != nil {
		t.Fatalf("EpisodicSummaries error: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("len=%d, want 2 (idempotent overwrite)", len(summaries))
	}
	if summaries[0].Date != "2026-08-29" || summaries[0].Text != "second version" {
		t.Fatalf("unexpected newest summary: %+v", summaries[0])
	}
}

func TestLongTermItems(t *testing.T) {
	s := newTestStore(t)

	for _, text := range []string{"a", "b", "c"} {
		if err := s.AddLongTermItem(LongTermItem{UserID: "u1", Text: text, Embedding: []byte{1, 2, 3}}); err != nil {
			t.Fatalf("AddLongTermItem error: %v", err)
		}
	}

	items, err := s.LongTermItems("u1", 2)
	if err != nil {
		t.Fatalf("LongTermItems error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len=%d, want 2", len(items))
	}
	if items[0].Text != "c" {
		t.Fatalf("expected newest first, got %q", items[0].Text)
	}
}

func TestCaregiversAndAlerts(t *testing.T) {
	s := newTestStore(t)

	if err := s.AddCaregiver(Caregiver{UserID: "u1", Name: "Anna", ChatID: "cg-1", Relationship: "daughter"}); err != nil {
		t.Fatalf("AddCaregiver error: %v", err)
	}
	cgs, err := s.CaregiversFor("u1")
	if err != nil {
		t.Fatalf("CaregiversFor error: %v", err)
	}
	if len(cgs) != 1 || cgs[0].Name != "Anna" {
		t.Fatalf("unexpected caregivers: %+v", cgs)
	}

	id, err := s.CreateAlert(CaregiverAlert{UserID: "u1", SessionID: "s1", AlertType: "emergency", Title: "Alert", Severity: "high"})
	if err != nil {
		t.Fatalf("CreateAlert error: %v", err)
	}

	open, err := s.UnresolvedAlerts("u1")
	if err != nil {
		t.Fatalf("UnresolvedAlerts error: %v", err)
	}
	if len(open) != 1 || open[0].ID != id {
		t.Fatalf("unexpected alerts: %+v", open)
	}

	if err := s.ResolveAlert(id); err != nil {
		t.Fatalf("ResolveAlert error: %v", err)
	}
	open, err = s.UnresolvedAlerts("u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 0 {
		t.Fatalf("expected no open alerts, got %d", len(open))
	}
}

func TestTrend(t *testing.T) {
	s := newTestStore(t)

	seed := []Turn{
		{UserID: "u1", Role: RoleUser, Text: "sad", Sentiment: "negative", SentimentScore: -0.4},
		{UserID: "u1", Role: RoleUser, Text: "scared", Sentiment: "distressed", SentimentScore: -0.8},
		{UserID: "u1", Role: RoleCompanion, Text: "reply", Sentiment: "", SentimentScore: 0},
	}
	for i := range seed {
		if err := s.AppendTurn(&seed[i]); err != nil {
			t.Fatal(err)
		}
	}

	trend, err := s.Trend("u1", 7)
	if err != nil {
		t.Fatalf("Trend error: %v", err)
	}
	if trend.TurnCount != 2 {
		t.Fatalf("turnCount=%d, want 2 (companion turns excluded)", trend.TurnCount)
	}
	if trend.Distressed != 1 {
		t.Fatalf("distressed=%d, want 1", trend.Distressed)
	}
	if trend.AvgScore >= 0 {
		t.Fatalf("avgScore=%v, want negative", trend.AvgScore)
	}
}

func TestUnavailableSentinel(t *testing.T) {
	s := newTestStore(t)
	_ = s.Close()

	_, err := s.RecentTurns("u1", 5)
	if err == nil {
		t.Fatal("expected error on closed store")
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error %v does not match ErrUnavailable", err)
	}
}
