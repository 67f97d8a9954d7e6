package summary

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/carelyhq/carely/internal/config"
	"github.com/carelyhq/carely/internal/store"
)

const summaryPrompt = `Summarize this day of conversation between an elderly person and their companion in 2-3 warm, factual sentences.
Mention the person's overall mood, anything notable they shared, and any health concerns.
Write in third person, past tense. No preamble.

Conversation on %s:
%s`

// Generator is the completion surface the summarizer uses. Satisfied by
// llm.Client.
type Generator interface {
	Generate(ctx context.Context, system, prompt string, maxTokens int) (string, error)
}

// Indexer feeds summaries into the semantic index. May be nil.
type Indexer interface {
	Add(ctx context.Context, userID, kind, text string) error
}

// Summarizer condenses one day of turns into a single EpisodicSummary.
type Summarizer struct {
	store     *store.Store
	generator Generator
	index     Indexer
	maxTokens int
}

func NewSummarizer(s *store.Store, g Generator, ix Indexer, cfg *config.Config) *Summarizer {
	return &Summarizer{
		store:     s,
		generator: g,
		index:     ix,
		maxTokens: cfg.Agent.MaxTokens,
	}
}

// Summarize writes the summary for one (user, date). Re-running for a date
// that already has a summary overwrites it; there is never more than one row
// per day. A generation failure falls back to a deterministic digest so the
// day is never lost.
func (s *Summarizer) Summarize(ctx context.Context, userID, date string) (*store.EpisodicSummary, error) {
	turns, err := s.store.TurnsForDate(userID, date)
	if err != nil {
		return nil, fmt.Errorf("summarize %s/%s: %w", userID, date, err)
	}
	if len(turns) == 0 {
		return nil, nil
	}

	text, err := s.generator.Generate(ctx, "", fmt.Sprintf(summaryPrompt, date, transcript(turns)), s.maxTokens)
	if err != nil {
		log.Printf("[summary] generation for %s/%s failed, using fallback: %v", userID, date, err)
		text = fallbackDigest(turns)
	}

	if err := s.store.WriteEpisodicSummary(userID, date, text); err != nil {
		return nil, fmt.Errorf("summarize %s/%s: %w", userID, date, err)
	}

	if s.index != nil {
		if err := s.index.Add(ctx, userID, "summary", text); err != nil {
			log.Printf("[summary] index summary for %s/%s failed: %v", userID, date, err)
		}
	}

	return &store.EpisodicSummary{UserID: userID, Date: date, Text: text}, nil
}

func transcript(turns []store.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		speaker := "User"
		if t.Role == store.RoleCompanion {
			speaker = "Carely"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, t.Text)
	}
	return b.String()
}

// fallbackDigest builds a deterministic summary from the turns alone:
// message count, dominant mood, what the day opened and closed with, and any
// emergency mentions.
func fallbackDigest(turns []store.Turn) string {
	userTurns := 0
	moodCounts := map[string]int{}
	var emergencies []string
	var first, last string

	for _, t := range turns {
		if t.Role != store.RoleUser {
			continue
		}
		userTurns++
		if first == "" {
			first = t.Text
		}
		last = t.Text
		if t.Sentiment != "" {
			moodCounts[t.Sentiment]++
		}
		if t.IsEmergency && t.Tags != "" {
			emergencies = append(emergencies, t.Tags)
		}
	}

	mood := "neutral"
	best := 0
	for _, label := range []string{"distressed", "negative", "neutral", "positive"} {
		if moodCounts[label] > best {
			mood, best = label, moodCounts[label]
		}
	}

	text := fmt.Sprintf("They exchanged %d messages over the day. Overall mood was %s.", userTurns, mood)
	if first != "" && first != last {
		text += fmt.Sprintf(" The day started with %q and ended with %q.", clip(first, 60), clip(last, 60))
	} else if first != "" {
		text += fmt.Sprintf(" They said %q.", clip(first, 60))
	}
	if len(emergencies) > 0 {
		text += fmt.Sprintf(" A health emergency was reported (%s).", strings.Join(emergencies, "; "))
	}
	return text
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if idx := strings.LastIndex(s[:max], " "); idx > 0 {
		return s[:idx] + "..."
	}
	return s[:max] + "..."
}
