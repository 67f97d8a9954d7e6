package agent

import (
	"context"
	"errors"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/carelyhq/carely/internal/alert"
	"github.com/carelyhq/carely/internal/classify"
	"github.com/carelyhq/carely/internal/config"
	"github.com/carelyhq/carely/internal/memory"
	"github.com/carelyhq/carely/internal/store"
)

// ErrInvalidInput marks an empty or oversized message.
var ErrInvalidInput = errors.New("invalid input")

// Generator is the bounded completion surface. Satisfied by llm.Client.
type Generator interface {
	Generate(ctx context.Context, system, prompt string, maxTokens int) (string, error)
}

// Indexer feeds new turns into the semantic index. Satisfied by
// memory.Index; may be nil when embeddings are not configured.
type Indexer interface {
	Add(ctx context.Context, userID, kind, text string) error
}

// Agent orchestrates one chat turn: classify, branch on emergency, assemble
// context, generate, persist.
type Agent struct {
	store     *store.Store
	assembler *memory.Assembler
	generator Generator
	machine   *alert.Machine
	index     Indexer

	maxReplyChars   int
	maxMessageChars int
	maxTokens       int
}

func New(s *store.Store, a *memory.Assembler, g Generator, m *alert.Machine, ix Indexer, cfg *config.Config) *Agent {
	return &Agent{
		store:           s,
		assembler:       a,
		generator:       g,
		machine:         m,
		index:           ix,
		maxReplyChars:   cfg.Agent.MaxReplyChars,
		maxMessageChars: cfg.Agent.MaxMessageChars,
		maxTokens:       cfg.Agent.MaxTokens,
	}
}

// Respond handles one user message and returns the companion's reply.
// Side effects per call: the user turn is always appended; a reply turn is
// appended only when one is produced; at most one generation call.
func (a *Agent) Respond(ctx context.Context, userID, chatSession, text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrInvalidInput
	}
	if len(trimmed) > a.maxMessageChars {
		return "", ErrInvalidInput
	}

	sentiment := classify.ClassifySentiment(trimmed)
	score := classify.SentimentScore(trimmed)
	verdict := classify.DetectEmergency(trimmed)

	userTurn := &store.Turn{
		UserID:         userID,
		Role:           store.RoleUser,
		Text:           trimmed,
		Sentiment:      string(sentiment),
		SentimentScore: score,
		Severity:       string(verdict.Severity),
		IsEmergency:    verdict.IsEmergency,
		Tags:           strings.Join(verdict.MatchedTags, ","),
	}
	if err := a.store.AppendTurn(userTurn); err != nil {
		log.Printf("[agent] append user turn for %s failed: %v", userID, err)
	}

	if verdict.IsEmergency {
		a.machine.Trigger(userID, chatSession, trimmed, verdict)
		return a.persistReply(userID, emergencyReply), nil
	}

	bundle, err := a.assembler.Assemble(ctx, userID, trimmed)
	if err != nil {
		log.Printf("[agent] assemble context for %s failed: %v", userID, err)
		bundle = &memory.ContextBundle{}
	}

	reply, err := a.generator.Generate(ctx, personaPrompt, buildPrompt(bundle, trimmed, a.maxReplyChars), a.maxTokens)
	if err != nil {
		log.Printf("[agent] generation for %s failed: %v", userID, err)
		return FallbackReply, nil
	}
	reply = truncateReply(reply, a.maxReplyChars)

	a.indexTurn(ctx, userID, trimmed)
	return a.persistReply(userID, reply), nil
}

// HandleEmergencyChoice interprets the user's answer to the emergency
// question. It reports handled=false when no alert session is open or the
// text matches neither choice, in which case the message should go through
// Respond as usual.
func (a *Agent) HandleEmergencyChoice(ctx context.Context, userID, chatSession, text string) (string, bool) {
	if _, ok := a.machine.OpenSession(userID, chatSession); !ok {
		return "", false
	}

	// the answer is still a user turn and carries its classification like
	// any other
	trimmed := strings.TrimSpace(text)
	verdict := classify.DetectEmergency(trimmed)
	if err := a.store.AppendTurn(&store.Turn{
		UserID:         userID,
		Role:           store.RoleUser,
		Text:           trimmed,
		Sentiment:      string(classify.ClassifySentiment(trimmed)),
		SentimentScore: classify.SentimentScore(trimmed),
		Severity:       string(verdict.Severity),
		IsEmergency:    verdict.IsEmergency,
		Tags:           strings.Join(verdict.MatchedTags, ","),
	}); err != nil {
		log.Printf("[agent] append choice turn for %s failed: %v", userID, err)
	}

	switch parseChoice(text) {
	case choiceContact:
		if _, err := a.machine.ContactCaregiver(ctx, userID, chatSession); err != nil {
			log.Printf("[agent] contact caregiver for %s failed: %v", userID, err)
			return FallbackReply, true
		}
		return a.persistReply(userID, caregiverContactedReply), true
	case choiceFeelOK:
		if _, err := a.machine.FeelOK(userID, chatSession); err != nil {
			log.Printf("[agent] self-resolve for %s failed: %v", userID, err)
			return FallbackReply, true
		}
		return a.persistReply(userID, selfResolvedReply), true
	default:
		// session stays open; repeat the question
		return emergencyReply, true
	}
}

const (
	choiceNone = iota
	choiceContact
	choiceFeelOK
)

func parseChoice(text string) int {
	norm := strings.ToLower(strings.TrimSpace(text))
	norm = strings.Trim(norm, ".!?\"'")
	switch {
	case strings.Contains(norm, "contact") || strings.Contains(norm, "caregiver") || norm == "yes":
		return choiceContact
	case strings.Contains(norm, "feel ok") || strings.Contains(norm, "feel okay") ||
		strings.Contains(norm, "i'm ok") || strings.Contains(norm, "im ok") ||
		strings.Contains(norm, "i am ok") || norm == "ok" || norm == "okay" || norm == "no":
		return choiceFeelOK
	default:
		return choiceNone
	}
}

func (a *Agent) persistReply(userID, reply string) string {
	if err := a.store.AppendTurn(&store.Turn{
		UserID: userID,
		Role:   store.RoleCompanion,
		Text:   reply,
	}); err != nil {
		log.Printf("[agent] append reply turn for %s failed: %v", userID, err)
	}
	return reply
}

func (a *Agent) indexTurn(ctx context.Context, userID, text string) {
	if a.index == nil {
		return
	}
	if err := a.index.Add(ctx, userID, "turn", text); err != nil {
		log.Printf("[agent] index turn for %s failed: %v", userID, err)
	}
}

// truncateReply hard-caps the reply length at a rune boundary, preferring the
// last sentence end or word break inside the cap.
func truncateReply(reply string, max int) string {
	if max <= 0 || len(reply) <= max {
		return reply
	}

	cut := max
	for cut > 0 && !utf8.RuneStart(reply[cut]) {
		cut--
	}
	head := reply[:cut]

	if idx := strings.LastIndexAny(head, ".!?"); idx > max/2 {
		return head[:idx+1]
	}
	if idx := strings.LastIndex(head, " "); idx > max/2 {
		return head[:idx]
	}
	return head
}
