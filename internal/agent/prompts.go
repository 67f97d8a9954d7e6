package agent

import (
	"fmt"
	"strings"

	"github.com/carelyhq/carely/internal/memory"
)

const personaPrompt = `You are Carely, a warm and patient companion for an elderly person.
Speak simply and kindly, one thought at a time. Avoid jargon and long lists.
Use the provided context about the person naturally, without reciting it back.
Never give medical diagnoses; suggest talking to a doctor for health concerns.
Keep every reply short, at most a few sentences.`

const emergencyReply = `That sounds serious and I want to make sure you are safe.
Would you like me to contact your caregiver right now?
Reply "contact caregiver" and I will reach out to them, or "I feel OK" if you are alright.`

const caregiverContactedReply = `I've contacted your caregiver and let them know. They will check on you soon.
If this is a medical emergency, please call your local emergency number right away.`

const selfResolvedReply = `I'm glad you're feeling OK. I'll stay right here with you.
Please tell me straight away if anything changes.`

// FallbackReply is returned when the generation backend is unavailable.
const FallbackReply = "I'm having trouble right now, please try again."

// checkinPrompts are scripted conversation openers for scheduled check-ins.
// They are deterministic on purpose; no model call is involved.
var checkinPrompts = map[string][]string{
	"morning": {
		"Good morning! How did you sleep last night?",
		"Good morning! How are you feeling today?",
	},
	"afternoon": {
		"Good afternoon! Have you had lunch yet?",
		"Good afternoon! How has your day been so far?",
	},
	"evening": {
		"Good evening! How was your day today?",
		"Good evening! Did anything nice happen today?",
	},
}

// CheckinPrompt returns the scripted opener for a period (morning, afternoon,
// evening). The day index rotates through the variants so consecutive days
// differ, deterministically.
func CheckinPrompt(period string, dayOfYear int) string {
	prompts, ok := checkinPrompts[period]
	if !ok {
		return "Hello! How are you doing right now?"
	}
	return prompts[dayOfYear%len(prompts)]
}

// buildPrompt lays out the context bundle and the current message for the
// model. Later sections carry the most recent, highest-salience context.
func buildPrompt(bundle *memory.ContextBundle, text string, maxReplyChars int) string {
	var b strings.Builder

	writeSection(&b, bundle, memory.SourceStructured, "About this person:")
	writeSection(&b, bundle, memory.SourceEpisodic, "Recent days:")
	writeSection(&b, bundle, memory.SourceLongTerm, "Possibly relevant past moments:")
	writeSection(&b, bundle, memory.SourceShortTerm, "Conversation so far:")

	fmt.Fprintf(&b, "The person just said: %q\n", text)
	fmt.Fprintf(&b, "Reply as Carely in at most %d characters.\n", maxReplyChars)
	return b.String()
}

func writeSection(b *strings.Builder, bundle *memory.ContextBundle, source memory.Source, header string) {
	wrote := false
	for _, item := range bundle.Items {
		if item.Source != source {
			continue
		}
		if !wrote {
			b.WriteString(header + "\n")
			wrote = true
		}
		b.WriteString("- " + item.Text + "\n")
	}
	if wrote {
		b.WriteString("\n")
	}
}
