package classify

import "strings"

// Sentiment is the label assigned to one user message.
type Sentiment string

const (
	SentimentPositive   Sentiment = "positive"
	SentimentNeutral    Sentiment = "neutral"
	SentimentNegative   Sentiment = "negative"
	SentimentDistressed Sentiment = "distressed"
)

// Lexicons are fixed. Matching is case-insensitive on whole words, so
// "painting" does not match "pain". Distressed entries win over anything
// else; between positive and negative the longest matched phrase wins.
var (
	distressedPhrases = []string{
		"can't breathe", "cannot breathe", "chest pain", "help me",
		"i'm scared", "i am scared", "so scared", "terrified", "frightened",
		"panic", "emergency", "in danger", "want to die", "give up",
	}

	negativePhrases = []string{
		"feeling down", "feeling low", "bad", "terrible", "awful", "hate",
		"horrible", "pain", "hurt", "hurts", "sad", "worried", "anxious",
		"confused", "lost", "dizzy", "sick", "tired", "lonely", "alone",
		"depressed", "upset", "miss", "crying", "unwell",
	}

	positivePhrases = []string{
		"feeling great", "feeling better", "good", "great", "happy",
		"wonderful", "excellent", "love", "enjoy", "enjoyed", "better",
		"fine", "well", "nice", "pleasant", "comfortable", "peaceful",
		"grateful", "thankful", "lovely",
	}

	concernWords = []string{
		"pain", "hurt", "dizzy", "fall", "fell", "emergency", "help",
		"confused", "forgot", "lost", "scared", "unable", "difficult",
		"lonely",
	}
)

// ClassifySentiment maps text to exactly one sentiment label. It is total:
// every input, including empty text, yields a label.
func ClassifySentiment(text string) Sentiment {
	norm := normalizeText(text)
	if norm == "" {
		return SentimentNeutral
	}

	if longestMatch(norm, distressedPhrases) > 0 {
		return SentimentDistressed
	}

	neg := longestMatch(norm, negativePhrases)
	pos := longestMatch(norm, positivePhrases)

	switch {
	case neg == 0 && pos == 0:
		return SentimentNeutral
	case neg >= pos:
		// ties resolve to negative
		return SentimentNegative
	default:
		return SentimentPositive
	}
}

// SentimentScore reduces text to a score in [-1, 1]. Concern words weigh
// heavier than plain negative ones, mirroring how the companion flags
// wellbeing trends for caregivers.
func SentimentScore(text string) float64 {
	norm := normalizeText(text)
	words := strings.Fields(norm)
	if len(words) == 0 {
		return 0
	}

	var pos, neg, concern float64
	for _, p := range positivePhrases {
		if phraseIn(norm, p) {
			pos++
		}
	}
	for _, p := range negativePhrases {
		if phraseIn(norm, p) {
			neg++
		}
	}
	for _, w := range concernWords {
		if phraseIn(norm, w) {
			concern++
		}
	}

	score := (pos - neg - concern*1.5) / float64(len(words))
	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}
	return score
}

// longestMatch returns the length of the longest phrase from the lexicon
// found in the normalized text, or 0 when nothing matches.
func longestMatch(norm string, phrases []string) int {
	best := 0
	for _, p := range phrases {
		if phraseIn(norm, p) && len(p) > best {
			best = len(p)
		}
	}
	return best
}

func phraseIn(norm, phrase string) bool {
	return strings.Contains(" "+norm+" ", " "+phrase+" ")
}

// normalizeText lowercases and strips punctuation to single spaces,
// preserving apostrophes so contractions like "can't" survive.
func normalizeText(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '\'':
			sb.WriteRune(r)
		case r == '’': // curly apostrophe
			sb.WriteRune('\'')
		default:
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
