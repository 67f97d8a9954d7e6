package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrUnavailable marks storage-layer failures. Callers check it with
// errors.Is and decide whether to degrade or fail the turn.
var ErrUnavailable = errors.New("storage unavailable")

// Store is the SQLite-backed storage collaborator. Writes are serialized
// through the mutex so per-user turn order matches insert order.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			emergency_contact TEXT NOT NULL DEFAULT '',
			chat_id TEXT NOT NULL DEFAULT '',
			active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_chat ON profiles(chat_id)`,
		`CREATE TABLE IF NOT EXISTS medications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			dosage TEXT NOT NULL DEFAULT '',
			frequency TEXT NOT NULL DEFAULT '',
			times TEXT NOT NULL DEFAULT '',
			instructions TEXT NOT NULL DEFAULT '',
			active INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_medications_user ON medications(user_id, active)`,
		`CREATE TABLE IF NOT EXISTS schedule_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'event',
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			event_date TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_schedule_user ON schedule_entries(user_id, event_date)`,
		`CREATE TABLE IF NOT EXISTS turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			sentiment TEXT NOT NULL DEFAULT '',
			sentiment_score REAL NOT NULL DEFAULT 0,
			severity TEXT NOT NULL DEFAULT 'none',
			is_emergency INTEGER NOT NULL DEFAULT 0,
			tags TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_user ON turns(user_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_created ON turns(user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS episodic_summaries (
			user_id TEXT NOT NULL,
			date TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (user_id, date)
		)`,
		`CREATE TABLE IF NOT EXISTS long_term_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'turn',
			text TEXT NOT NULL,
			embedding BLOB,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_longterm_user ON long_term_items(user_id, id)`,
		`CREATE TABLE IF NOT EXISTS caregivers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			chat_id TEXT NOT NULL DEFAULT '',
			relationship TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_caregivers_user ON caregivers(user_id)`,
		`CREATE TABLE IF NOT EXISTS caregiver_alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			alert_type TEXT NOT NULL DEFAULT 'emergency',
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL DEFAULT 'medium',
			resolved INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			resolved_at TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_user ON caregiver_alerts(user_id, resolved)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrUnavailable, err))
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// UpsertProfile creates or replaces a user profile.
func (s *Store) UpsertProfile(p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID := strings.TrimSpace(p.UserID)
	if userID == "" {
		return fmt.Errorf("upsert profile: empty user id")
	}
	_, err := s.db.Exec(`
		INSERT INTO profiles (user_id, name, notes, emergency_contact, chat_id, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			name = excluded.name,
			notes = excluded.notes,
			emergency_contact = excluded.emergency_contact,
			chat_id = excluded.chat_id,
			active = excluded.active
	`, userID, strings.TrimSpace(p.Name), p.Notes, p.EmergencyContact, p.ChatID, boolToInt(p.Active), nowUTC())
	if err != nil {
		return unavailable("upsert profile", err)
	}
	return nil
}

// GetProfile returns nil when the user is unknown.
func (s *Store) GetProfile(userID string) (*Profile, error) {
	row := s.db.QueryRow(`
		SELECT user_id, name, notes, emergency_contact, chat_id, active, created_at
		FROM profiles WHERE user_id = ?
	`, userID)

	var p Profile
	var active int
	err := row.Scan(&p.UserID, &p.Name, &p.Notes, &p.EmergencyContact, &p.ChatID, &active, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get profile", err)
	}
	p.Active = active == 1
	return &p, nil
}

// ActiveUsers lists users the scheduler should run daily jobs for.
func (s *Store) ActiveUsers() ([]Profile, error) {
	rows, err := s.db.Query(`
		SELECT user_id, name, notes, emergency_contact, chat_id, active, created_at
		FROM profiles WHERE active = 1 ORDER BY user_id
	`)
	if err != nil {
		return nil, unavailable("active users", err)
	}
	defer rows.Close()

	result := make([]Profile, 0)
	for rows.Next() {
		var p Profile
		var active int
		if err := rows.Scan(&p.UserID, &p.Name, &p.Notes, &p.EmergencyContact, &p.ChatID, &active, &p.CreatedAt); err != nil {
			return nil, unavailable("scan profile", err)
		}
		p.Active = active == 1
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate profiles", err)
	}
	return result, nil
}

// UserIDForChat maps a transport chat id back to a user, "" when unbound.
func (s *Store) UserIDForChat(chatID string) (string, error) {
	row := s.db.QueryRow(`SELECT user_id FROM profiles WHERE chat_id = ? LIMIT 1`, chatID)
	var userID string
	err := row.Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", unavailable("user for chat", err)
	}
	return userID, nil
}

func (s *Store) AddMedication(m Medication) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO medications (user_id, name, dosage, frequency, times, instructions, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.UserID, strings.TrimSpace(m.Name), m.Dosage, m.Frequency, m.Times, m.Instructions, boolToInt(true))
	if err != nil {
		return unavailable("add medication", err)
	}
	return nil
}

func (s *Store) Medications(userID string) ([]Medication, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, name, dosage, frequency, times, instructions, active
		FROM medications
		WHERE user_id = ? AND active = 1
		ORDER BY id ASC
	`, userID)
	if err != nil {
		return nil, unavailable("medications", err)
	}
	defer rows.Close()

	result := make([]Medication, 0)
	for rows.Next() {
		var m Medication
		var active int
		if err := rows.Scan(&m.ID, &m.UserID, &m.Name, &m.Dosage, &m.Frequency, &m.Times, &m.Instructions, &active); err != nil {
			return nil, unavailable("scan medication", err)
		}
		m.Active = active == 1
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate medications", err)
	}
	return result, nil
}

func (s *Store) AddScheduleEntry(e ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind := strings.TrimSpace(e.Kind)
	if kind == "" {
		kind = "event"
	}
	_, err := s.db.Exec(`
		INSERT INTO schedule_entries (user_id, kind, title, description, event_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.UserID, kind, strings.TrimSpace(e.Title), e.Description, e.EventDate, nowUTC())
	if err != nil {
		return unavailable("add schedule entry", err)
	}
	return nil
}

// UpcomingSchedule returns entries dated between today and today+days,
// soonest first. Entries with no date are excluded.
func (s *Store) UpcomingSchedule(userID string, days int) ([]ScheduleEntry, error) {
	if days <= 0 {
		days = 30
	}
	today := time.Now().UTC().Format("2006-01-02")
	until := time.Now().UTC().AddDate(0, 0, days).Format("2006-01-02")

	rows, err := s.db.Query(`
		SELECT id, user_id, kind, title, description, event_date, created_at
		FROM schedule_entries
		WHERE user_id = ? AND event_date != '' AND event_date >= ? AND event_date <= ?
		ORDER BY event_date ASC
	`, userID, today, until)
	if err != nil {
		return nil, unavailable("upcoming schedule", err)
	}
	defer rows.Close()

	result := make([]ScheduleEntry, 0)
	for rows.Next() {
		var e ScheduleEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Kind, &e.Title, &e.Description, &e.EventDate, &e.CreatedAt); err != nil {
			return nil, unavailable("scan schedule entry", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate schedule", err)
	}
	return result, nil
}

// AppendTurn writes one turn to the append-only log and fills in its ID and
// timestamp.
func (s *Store) AppendTurn(t *Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(t.UserID) == "" {
		return fmt.Errorf("append turn: empty user id")
	}
	if t.Role != RoleUser && t.Role != RoleCompanion {
		return fmt.Errorf("append turn: invalid role %q", t.Role)
	}
	if t.CreatedAt == "" {
		t.CreatedAt = nowUTC()
	}
	if t.Severity == "" {
		t.Severity = "none"
	}

	res, err := s.db.Exec(`
		INSERT INTO turns (user_id, role, text, sentiment, sentiment_score, severity, is_emergency, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.UserID, t.Role, t.Text, t.Sentiment, t.SentimentScore, t.Severity, boolToInt(t.IsEmergency), t.Tags, t.CreatedAt)
	if err != nil {
		return unavailable("append turn", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return unavailable("append turn id", err)
	}
	t.ID = id
	return nil
}

// RecentTurns returns the most recent limit turns in chronological order
// (oldest first).
func (s *Store) RecentTurns(userID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT id, user_id, role, text, sentiment, sentiment_score, severity, is_emergency, tags, created_at
		FROM turns
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, unavailable("recent turns", err)
	}
	defer rows.Close()

	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}
	// query is newest-first; flip to chronological
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// TurnsForDate returns all turns created on the given UTC date (YYYY-MM-DD),
// chronological.
func (s *Store) TurnsForDate(userID, date string) ([]Turn, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("turns for date: invalid date %q: %w", date, err)
	}
	start := day.UTC().Format(time.RFC3339)
	end := day.UTC().AddDate(0, 0, 1).Format(time.RFC3339)

	rows, err := s.db.Query(`
		SELECT id, user_id, role, text, sentiment, sentiment_score, severity, is_emergency, tags, created_at
		FROM turns
		WHERE user_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY id ASC
	`, userID, start, end)
	if err != nil {
		return nil, unavailable("turns for date", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

// WriteEpisodicSummary performs an atomic replace: re-running for a date
// that already has a summary overwrites it, never duplicates.
func (s *Store) WriteEpisodicSummary(userID, date, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO episodic_summaries (user_id, date, text, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET
			text = excluded.text,
			created_at = excluded.created_at
	`, userID, date, text, nowUTC())
	if err != nil {
		return unavailable("write episodic summary", err)
	}
	return nil
}

// EpisodicSummaries returns up to limit summaries, newest date first.
func (s *Store) EpisodicSummaries(userID string, limit int) ([]EpisodicSummary, error) {
	if limit <= 0 {
		limit = 7
	}
	rows, err := s.db.Query(`
		SELECT user_id, date, text, created_at
		FROM episodic_summaries
		WHERE user_id = ?
		ORDER BY date DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, unavailable("episodic summaries", err)
	}
	defer rows.Close()

	result := make([]EpisodicSummary, 0)
	for rows.Next() {
		var e EpisodicSummary
		if err := rows.Scan(&e.UserID, &e.Date, &e.Text, &e.CreatedAt); err != nil {
			return nil, unavailable("scan episodic summary", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate episodic summaries", err)
	}
	return result, nil
}

// AddLongTermItem stores one indexed text with its embedding blob.
func (s *Store) AddLongTermItem(item LongTermItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind := strings.TrimSpace(item.Kind)
	if kind == "" {
		kind = "turn"
	}
	createdAt := item.CreatedAt
	if createdAt == "" {
		createdAt = nowUTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO long_term_items (user_id, kind, text, embedding, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, item.UserID, kind, item.Text, item.Embedding, createdAt)
	if err != nil {
		return unavailable("add long term item", err)
	}
	return nil
}

// LongTermItems returns up to limit indexed items, newest first.
func (s *Store) LongTermItems(userID string, limit int) ([]LongTermItem, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.Query(`
		SELECT id, user_id, kind, text, embedding, created_at
		FROM long_term_items
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, unavailable("long term items", err)
	}
	defer rows.Close()

	result := make([]LongTermItem, 0)
	for rows.Next() {
		var item LongTermItem
		if err := rows.Scan(&item.ID, &item.UserID, &item.Kind, &item.Text, &item.Embedding, &item.CreatedAt); err != nil {
			return nil, unavailable("scan long term item", err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate long term items", err)
	}
	return result, nil
}

func (s *Store) AddCaregiver(c Caregiver) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO caregivers (user_id, name, chat_id, relationship)
		VALUES (?, ?, ?, ?)
	`, c.UserID, strings.TrimSpace(c.Name), c.ChatID, c.Relationship)
	if err != nil {
		return unavailable("add caregiver", err)
	}
	return nil
}

func (s *Store) CaregiversFor(userID string) ([]Caregiver, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, name, chat_id, relationship
		FROM caregivers
		WHERE user_id = ?
		ORDER BY id ASC
	`, userID)
	if err != nil {
		return nil, unavailable("caregivers", err)
	}
	defer rows.Close()

	result := make([]Caregiver, 0)
	for rows.Next() {
		var c Caregiver
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.ChatID, &c.Relationship); err != nil {
			return nil, unavailable("scan caregiver", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate caregivers", err)
	}
	return result, nil
}

func (s *Store) CreateAlert(a CaregiverAlert) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	severity := strings.TrimSpace(a.Severity)
	if severity == "" {
		severity = "medium"
	}
	res, err := s.db.Exec(`
		INSERT INTO caregiver_alerts (user_id, session_id, alert_type, title, description, severity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.UserID, a.SessionID, a.AlertType, a.Title, a.Description, severity, nowUTC())
	if err != nil {
		return 0, unavailable("create alert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, unavailable("create alert id", err)
	}
	return id, nil
}

func (s *Store) UnresolvedAlerts(userID string) ([]CaregiverAlert, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, session_id, alert_type, title, description, severity, resolved, created_at, resolved_at
		FROM caregiver_alerts
		WHERE user_id = ? AND resolved = 0
		ORDER BY id DESC
	`, userID)
	if err != nil {
		return nil, unavailable("unresolved alerts", err)
	}
	defer rows.Close()

	result := make([]CaregiverAlert, 0)
	for rows.Next() {
		var a CaregiverAlert
		var resolved int
		if err := rows.Scan(&a.ID, &a.UserID, &a.SessionID, &a.AlertType, &a.Title, &a.Description, &a.Severity, &resolved, &a.CreatedAt, &a.ResolvedAt); err != nil {
			return nil, unavailable("scan alert", err)
		}
		a.Resolved = resolved == 1
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate alerts", err)
	}
	return result, nil
}

func (s *Store) ResolveAlert(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE caregiver_alerts SET resolved = 1, resolved_at = ? WHERE id = ?
	`, nowUTC(), id)
	if err != nil {
		return unavailable("resolve alert", err)
	}
	return nil
}

// Trend aggregates sentiment over the user's turns from the past days.
func (s *Store) Trend(userID string, days int) (SentimentTrend, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)

	row := s.db.QueryRow(`
		SELECT COALESCE(AVG(sentiment_score), 0), COUNT(*),
		       COALESCE(SUM(CASE WHEN sentiment = 'distressed' THEN 1 ELSE 0 END), 0)
		FROM turns
		WHERE user_id = ? AND role = ? AND created_at >= ?
	`, userID, RoleUser, since)

	var t SentimentTrend
	if err := row.Scan(&t.AvgScore, &t.TurnCount, &t.Distressed); err != nil {
		return SentimentTrend{}, unavailable("sentiment trend", err)
	}
	return t, nil
}

func scanTurns(rows *sql.Rows) ([]Turn, error) {
	result := make([]Turn, 0)
	for rows.Next() {
		var t Turn
		var emergency int
		if err := rows.Scan(
			&t.ID,
			&t.UserID,
			&t.Role,
			&t.Text,
			&t.Sentiment,
			&t.SentimentScore,
			&t.Severity,
			&emergency,
			&t.Tags,
			&t.CreatedAt,
		); err != nil {
			return nil, unavailable("scan turn", err)
		}
		t.IsEmergency = emergency == 1
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate turns", err)
	}
	return result, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
