package alert

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carelyhq/carely/internal/classify"
	"github.com/carelyhq/carely/internal/notify"
	"github.com/carelyhq/carely/internal/store"
)

// State of one alert session.
type State string

const (
	StateIdle         State = "IDLE"
	StateTriggered    State = "TRIGGERED"
	StateNotified     State = "NOTIFIED"
	StateSelfResolved State = "SELF_RESOLVED"
	StateClosed       State = "CLOSED"
)

// Session is one emergency episode for a (user, chat session) pair. At most
// one session per pair is open at a time.
type Session struct {
	ID         string
	UserID     string
	SessionKey string
	State      State
	Resolution State // NOTIFIED or SELF_RESOLVED once closed
	Severity   classify.Severity
	Tags       []string
	Trigger    string
	CreatedAt  time.Time
}

// Machine owns the open-session set and drives the state transitions
// IDLE, TRIGGERED, {NOTIFIED, SELF_RESOLVED}, CLOSED.
type Machine struct {
	mu       sync.Mutex
	open     map[string]*Session
	store    *store.Store
	notifier notify.Notifier
}

func NewMachine(s *store.Store, n notify.Notifier) *Machine {
	return &Machine{
		open:     make(map[string]*Session),
		store:    s,
		notifier: n,
	}
}

func sessionKey(userID, chatSession string) string {
	return userID + "|" + chatSession
}

// Trigger opens a new session for an emergency verdict. The check-and-set is
// atomic: a second emergency while a session is already open is a no-op and
// returns the open session with opened=false. Verdicts below medium severity
// never open a session.
func (m *Machine) Trigger(userID, chatSession, text string, v classify.Verdict) (session *Session, opened bool) {
	if !v.IsEmergency {
		return nil, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := sessionKey(userID, chatSession)
	if existing, ok := m.open[key]; ok {
		return existing, false
	}

	session = &Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		SessionKey: chatSession,
		State:      StateTriggered,
		Severity:   v.Severity,
		Tags:       v.MatchedTags,
		Trigger:    text,
		CreatedAt:  time.Now().UTC(),
	}
	m.open[key] = session
	log.Printf("[alert] session %s triggered for user %s (severity=%s tags=%v)", session.ID, userID, v.Severity, v.MatchedTags)
	return session, true
}

// OpenSession returns the open session for the pair, if any.
func (m *Machine) OpenSession(userID, chatSession string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.open[sessionKey(userID, chatSession)]
	return session, ok
}

// ContactCaregiver moves TRIGGERED to NOTIFIED and closes the session. It
// dispatches one best-effort notification per assigned caregiver and writes
// one CaregiverAlert row. Storage or delivery faults never abort the
// transition; a detected emergency is never silently dropped.
func (m *Machine) ContactCaregiver(ctx context.Context, userID, chatSession string) (*Session, error) {
	session, err := m.resolve(userID, chatSession, StateNotified)
	if err != nil {
		return nil, err
	}

	message := fmt.Sprintf("Carely alert: %s reported %q. Severity: %s. Please check on them.",
		displayName(m.store, userID), session.Trigger, session.Severity)

	caregivers, err := m.store.CaregiversFor(userID)
	if err != nil {
		log.Printf("[alert] session %s: load caregivers failed: %v", session.ID, err)
	}
	notified := 0
	for _, cg := range caregivers {
		if err := m.notifier.Notify(ctx, cg, message); err != nil {
			log.Printf("[alert] session %s: notify caregiver %s failed: %v", session.ID, cg.Name, err)
			continue
		}
		notified++
	}
	if len(caregivers) == 0 {
		log.Printf("[alert] session %s: no caregivers assigned to user %s", session.ID, userID)
	}

	if _, err := m.store.CreateAlert(store.CaregiverAlert{
		UserID:      userID,
		SessionID:   session.ID,
		AlertType:   "emergency",
		Title:       "Emergency reported",
		Description: session.Trigger + " (" + strings.Join(session.Tags, ", ") + ")",
		Severity:    string(session.Severity),
	}); err != nil {
		log.Printf("[alert] session %s: persist alert failed: %v", session.ID, err)
	}

	m.close(session)
	log.Printf("[alert] session %s notified %d caregiver(s)", session.ID, notified)
	return session, nil
}

// FeelOK moves TRIGGERED to SELF_RESOLVED and closes the session. No
// notification is sent.
func (m *Machine) FeelOK(userID, chatSession string) (*Session, error) {
	session, err := m.resolve(userID, chatSession, StateSelfResolved)
	if err != nil {
		return nil, err
	}

	m.close(session)
	log.Printf("[alert] session %s self-resolved", session.ID)
	return session, nil
}

// resolve atomically transitions the open session from TRIGGERED to the
// chosen resolution state, so two near-simultaneous choices cannot both win.
func (m *Machine) resolve(userID, chatSession string, to State) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.open[sessionKey(userID, chatSession)]
	if !ok {
		return nil, fmt.Errorf("no open alert session for user %s", userID)
	}
	if session.State != StateTriggered {
		return nil, fmt.Errorf("alert session %s in state %s, want %s", session.ID, session.State, StateTriggered)
	}
	session.State = to
	return session, nil
}

// close removes the session from the open set. Further emergencies for the
// same pair may open a new session.
func (m *Machine) close(session *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session.Resolution = session.State
	session.State = StateClosed
	delete(m.open, sessionKey(session.UserID, session.SessionKey))
}

func displayName(s *store.Store, userID string) string {
	profile, err := s.GetProfile(userID)
	if err != nil || profile == nil || profile.Name == "" {
		return userID
	}
	return profile.Name
}
