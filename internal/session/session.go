// Package session holds the per-user conversation state of the bot. A user
// has at most one session; its Step says which input the bot expects next.
package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

type Step string

const (
	StepNone            Step = ""
	StepAwaitingName    Step = "awaiting_name"
	StepAwaitingSurname Step = "awaiting_surname"
	StepAwaitingAnswer  Step = "awaiting_answer"

	StepAdminTestID    Step = "admin_awaiting_test_id"
	StepAdminAnswerKey Step = "admin_awaiting_answer_key"
	StepAdminDeadline  Step = "admin_awaiting_deadline"
	StepAdminCheckTime Step = "admin_awaiting_check_time"
)

// Admin reports whether s belongs to the authoring flow.
func (s Step) Admin() bool {
	switch s {
	case StepAdminTestID, StepAdminAnswerKey, StepAdminDeadline, StepAdminCheckTime:
		return true
	}
	return false
}

// Draft is a test being authored.
type Draft struct {
	TestID    string    `json:"test_id,omitempty"`
	AnswerKey string    `json:"answer_key,omitempty"`
	Deadline  time.Time `json:"deadline,omitempty"`
}

type Session struct {
	UserID string `json:"user_id"`
	Step   Step   `json:"step"`

	PendingName string `json:"pending_name,omitempty"` // StepAwaitingSurname
	TestID      string `json:"test_id,omitempty"`      // StepAwaitingAnswer
	Draft       *Draft `json:"draft,omitempty"`        // admin steps

	UpdatedAt time.Time `json:"updated_at"`
}

var ErrNotFound = errors.New("session not found")

type Store interface {
	// Get returns ErrNotFound when the user has no session.
	Get(ctx context.Context, userID string) (Session, error)
	Put(ctx context.Context, s Session) error
	Delete(ctx context.Context, userID string) error
}

// Load returns the user's session, or an empty one when none exists.
func Load(ctx context.Context, st Store, userID string) (Session, error) {
	s, err := st.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Session{UserID: userID}, nil
	}
	return s, err
}

type memoryStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	byID map[string]Session
}

// NewMemoryStore keeps sessions in process. A zero ttl never expires.
func NewMemoryStore(ttl time.Duration) Store {
	return &memoryStore{ttl: ttl, now: time.Now, byID: map[string]Session{}}
}

func (m *memoryStore) Get(_ context.Context, userID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[userID]
	if !ok {
		return Session{}, ErrNotFound
	}
	if m.ttl > 0 && m.now().Sub(s.UpdatedAt) > m.ttl {
		delete(m.byID, userID)
		return Session{}, ErrNotFound
	}
	return cloneSession(s), nil
}

func (m *memoryStore) Put(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.UpdatedAt = m.now()
	m.byID[s.UserID] = cloneSession(s)
	return nil
}

func (m *memoryStore) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, userID)
	return nil
}

func cloneSession(s Session) Session {
	if s.Draft != nil {
		d := *s.Draft
		s.Draft = &d
	}
	return s
}
