package sched

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/carelyhq/carely/internal/bus"
	"github.com/carelyhq/carely/internal/config"
	"github.com/carelyhq/carely/internal/store"
	"github.com/carelyhq/carely/internal/summary"
)

type cannedGenerator struct{ reply string }

func (g *cannedGenerator) Generate(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	return g.reply, nil
}

func newServiceFixture(t *testing.T) (*Service, *store.Store, *bus.MessageBus) {
	t.Helper()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "carely.db"))
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	cfg := config.DefaultConfig()
	b := bus.NewMessageBus(config.DefaultBufSize)
	sm := summary.NewSummarizer(s, &cannedGenerator{reply: "a calm day"}, nil, cfg)
	return NewService(s, sm, b, cfg), s, b
}

func TestRunDailySummaries(t *testing.T) {
	svc, s, _ := newServiceFixture(t)

	for _, p := range []store.Profile{
		{UserID: "u1", Name: "Margaret", ChatID: "c1", Active: true},
		{UserID: "u2", Name: "Harold", ChatID: "c2", Active: true},
		{UserID: "u3", Name: "Gone", ChatID: "c3", Active: false},
	} {
		if err := s.UpsertProfile(p); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.AppendTurn(&store.Turn{UserID: "u1", Role: store.RoleUser, Text: "hello", Sentiment: "neutral"}); err != nil {
		t.Fatal(err)
	}

	svc.RunDailySummaries(context.Background())

	rows, err := s.EpisodicSummaries("u1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Text != "a calm day" {
		t.Fatalf("unexpected summaries for u1: %+v", rows)
	}

	// u2 had no turns today, so no row
	rows, err = s.EpisodicSummaries("u2", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("unexpected summaries for u2: %+v", rows)
	}
}

func TestRunCheckin(t *testing.T) {
	svc, s, b := newServiceFixture(t)

	if err := s.UpsertProfile(store.Profile{UserID: "u1", Name: "Margaret", ChatID: "c1", Active: true}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertProfile(store.Profile{UserID: "u2", Name: "NoChat", Active: true}); err != nil {
		t.Fatal(err)
	}

	svc.RunCheckin("morning")

	select {
	case msg := <-b.Outbound:
		if msg.ChatID != "c1" || msg.Content == "" {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no check-in dispatched")
	}

	select {
	case msg := <-b.Outbound:
		t.Fatalf("unexpected second message: %+v", msg)
	default:
	}
}

func TestStopConcurrentCalls(t *testing.T) {
	svc, _, _ := newServiceFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	// the context watcher and the shutdown path may both call Stop
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Stop()
		}()
	}
	cancel()
	wg.Wait()
}

func TestStartRejectsBadCron(t *testing.T) {
	svc, _, _ := newServiceFixture(t)
	svc.cfg.Scheduler.SummaryCron = "not a cron expr"

	if err := svc.Start(context.Background()); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}
