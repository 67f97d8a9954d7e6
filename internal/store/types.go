package store

// Turn roles.
const (
	RoleUser      = "user"
	RoleCompanion = "companion"
)

// Profile is one elder user's structured record.
type Profile struct {
	UserID           string
	Name             string
	Notes            string
	EmergencyContact string
	ChatID           string
	Active           bool
	CreatedAt        string
}

// Medication is one scheduled medication for a user.
type Medication struct {
	ID           int64
	UserID       string
	Name         string
	Dosage       string
	Frequency    string
	Times        string
	Instructions string
	Active       bool
}

// ScheduleEntry is a personal event or recurring appointment the companion
// should remember (birthdays, doctor visits, meal times).
type ScheduleEntry struct {
	ID          int64
	UserID      string
	Kind        string
	Title       string
	Description string
	EventDate   string
	CreatedAt   string
}

// Turn is one message in the append-only conversation log. Immutable once
// written; ordering per user follows the insert order.
type Turn struct {
	ID             int64
	UserID         string
	Role           string
	Text           string
	Sentiment      string
	SentimentScore float64
	Severity       string
	IsEmergency    bool
	Tags           string
	CreatedAt      string
}

// EpisodicSummary is one day's condensed memory entry, one per (user, date).
type EpisodicSummary struct {
	UserID    string
	Date      string
	Text      string
	CreatedAt string
}

// LongTermItem is one entry in the semantic index: a past turn or daily
// summary together with its embedding blob.
type LongTermItem struct {
	ID        int64
	UserID    string
	Kind      string
	Text      string
	Embedding []byte
	CreatedAt string
}

// Caregiver is one notification target assigned to a user.
type Caregiver struct {
	ID           int64
	UserID       string
	Name         string
	ChatID       string
	Relationship string
}

// CaregiverAlert is one persisted alert row produced by the alert flow.
type CaregiverAlert struct {
	ID          int64
	UserID      string
	SessionID   string
	AlertType   string
	Title       string
	Description string
	Severity    string
	Resolved    bool
	CreatedAt   string
	ResolvedAt  string
}

// SentimentTrend is an aggregate over recent user turns.
type SentimentTrend struct {
	AvgScore   float64
	TurnCount  int
	Distressed int
}
