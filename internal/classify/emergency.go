package classify

// Severity grades an emergency verdict.
type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

var severityRank = map[Severity]int{
	SeverityNone:   0,
	SeverityLow:    1,
	SeverityMedium: 2,
	SeverityHigh:   3,
}

// Rank orders severities so callers can compare them without knowing the
// label set.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Verdict is the classifier's judgment of one message. It is derived and
// stateless; callers recompute it per message and never cache it.
type Verdict struct {
	IsEmergency bool
	Severity    Severity
	MatchedTags []string
}

// Symptom phrase sets, graded by how urgently a matched message needs a
// caregiver. Tags are the canonical phrase text.
var (
	highSeverityPhrases = []string{
		"chest pain", "chest pressure", "chest tightness",
		"can't breathe", "cannot breathe", "difficulty breathing",
		"trouble breathing", "heart attack", "stroke",
		"fainted", "passed out", "unconscious",
		"severe bleeding", "bleeding a lot",
		"slurred speech", "can't speak", "can't see",
		"severe headache", "allergic reaction",
		"severe abdominal pain", "severe stomach pain",
	}

	mediumSeverityPhrases = []string{
		"dizzy", "dizziness", "lightheaded",
		"fell down", "fell over", "had a fall", "i fell",
		"heart racing", "heart is racing", "palpitations",
		"irregular heartbeat", "fast heartbeat",
		"very confused", "numbness", "sudden weakness",
		"short of breath", "shortness of breath",
		"vision problems", "blurry vision",
	}

	lowSeverityPhrases = []string{
		"feeling unwell", "not feeling well", "feeling sick",
		"headache", "sore", "aching", "nauseous", "a bit weak",
		"didn't sleep", "couldn't sleep",
	}
)

// DetectEmergency scans text against the symptom phrase sets. The verdict
// severity is the highest severity among all matches; MatchedTags carries
// every match, not just the top one. Low-severity matches are informational
// and do not mark the message as an emergency.
func DetectEmergency(text string) Verdict {
	norm := normalizeText(text)
	if norm == "" {
		return Verdict{Severity: SeverityNone}
	}

	verdict := Verdict{Severity: SeverityNone}
	scan := func(phrases []string, severity Severity) {
		for _, p := range phrases {
			if !phraseIn(norm, p) {
				continue
			}
			verdict.MatchedTags = append(verdict.MatchedTags, p)
			if severity.Rank() > verdict.Severity.Rank() {
				verdict.Severity = severity
			}
		}
	}

	scan(highSeverityPhrases, SeverityHigh)
	scan(mediumSeverityPhrases, SeverityMedium)
	scan(lowSeverityPhrases, SeverityLow)

	verdict.IsEmergency = verdict.Severity.Rank() >= SeverityMedium.Rank()
	return verdict
}
