package sched

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/carelyhq/carely/internal/agent"
	"github.com/carelyhq/carely/internal/bus"
	"github.com/carelyhq/carely/internal/channel"
	"github.com/carelyhq/carely/internal/config"
	"github.com/carelyhq/carely/internal/store"
	"github.com/carelyhq/carely/internal/summary"
)

// Service runs the recurring jobs outside the request path: the nightly
// episodic summary for every active user, and the scripted check-ins.
type Service struct {
	store      *store.Store
	summarizer *summary.Summarizer
	bus        *bus.MessageBus
	cfg        *config.Config

	// mu guards cron and cancel; Stop may be called from both the shutdown
	// path and the context watcher.
	mu     sync.Mutex
	cron   *rcron.Cron
	cancel context.CancelFunc
}

func NewService(s *store.Store, sm *summary.Summarizer, b *bus.MessageBus, cfg *config.Config) *Service {
	return &Service{store: s, summarizer: sm, bus: b, cfg: cfg}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.cron = rcron.New(rcron.WithSeconds())

	if _, err := s.cron.AddFunc(s.cfg.Scheduler.SummaryCron, func() {
		s.RunDailySummaries(runCtx)
	}); err != nil {
		return fmt.Errorf("register summary job: %w", err)
	}

	if s.cfg.Scheduler.CheckinsOn {
		if _, err := s.cron.AddFunc(s.cfg.Scheduler.MorningCheckin, func() {
			s.RunCheckin("morning")
		}); err != nil {
			return fmt.Errorf("register morning check-in: %w", err)
		}
		if _, err := s.cron.AddFunc(s.cfg.Scheduler.EveningCheckin, func() {
			s.RunCheckin("evening")
		}); err != nil {
			return fmt.Errorf("register evening check-in: %w", err)
		}
	}

	s.cron.Start()
	log.Printf("[sched] started (summaries at %q, check-ins enabled=%v)",
		s.cfg.Scheduler.SummaryCron, s.cfg.Scheduler.CheckinsOn)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop is idempotent; the second and later calls are no-ops.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.cron == nil {
		return
	}
	stopCtx := s.cron.Stop()
	s.cron = nil
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		log.Printf("[sched] stop timeout waiting for running jobs")
	}
	log.Printf("[sched] stopped")
}

// RunDailySummaries summarizes today's turns for every active user. A failure
// for one user never blocks the others.
func (s *Service) RunDailySummaries(ctx context.Context) {
	users, err := s.store.ActiveUsers()
	if err != nil {
		log.Printf("[sched] list active users failed: %v", err)
		return
	}

	date := time.Now().UTC().Format("2006-01-02")
	for _, user := range users {
		out, err := s.summarizer.Summarize(ctx, user.UserID, date)
		if err != nil {
			log.Printf("[sched] summarize %s/%s failed: %v", user.UserID, date, err)
			continue
		}
		if out != nil {
			log.Printf("[sched] wrote daily summary for %s", user.UserID)
		}
	}
}

// RunCheckin pushes the scripted check-in opener to every active user with a
// bound chat.
func (s *Service) RunCheckin(period string) {
	users, err := s.store.ActiveUsers()
	if err != nil {
		log.Printf("[sched] list active users failed: %v", err)
		return
	}

	prompt := agent.CheckinPrompt(period, time.Now().UTC().YearDay())
	sent := 0
	for _, user := range users {
		if user.ChatID == "" {
			continue
		}
		s.bus.Outbound <- bus.OutboundMessage{
			Channel: channel.TelegramChannelName,
			ChatID:  user.ChatID,
			Content: prompt,
		}
		sent++
	}
	log.Printf("[sched] %s check-in dispatched to %d user(s)", period, sent)
}
