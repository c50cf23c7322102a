package usecase

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"dealdesk/internal/domain"
)

// Session represents an active conversation. At most one pending write
// action exists per session; it persists until confirmed, cancelled, or
// replaced by a newer proposal.
type Session struct {
	mu        sync.RWMutex
	ID        string           `json:"id"`
	Msgs      []domain.Message `json:"messages"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`

	pending *domain.PendingAction

	// turn serializes whole agent turns on this session, so concurrent
	// requests for the same conversation cannot interleave.
	turn sync.Mutex
}

// NewSession creates a new empty session with a generated ULID.
func NewSession() *Session {
	now := time.Now()
	return &Session{
		ID:        generateULID(now),
		Msgs:      make([]domain.Message, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func generateULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// AddMessage appends a message and updates the timestamp (thread-safe).
func (s *Session) AddMessage(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.Msgs = append(s.Msgs, msg)
	s.UpdatedAt = time.Now()
}

// Messages returns a copy of the message history (thread-safe).
func (s *Session) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]domain.Message, len(s.Msgs))
	copy(cp, s.Msgs)
	return cp
}

// Truncate keeps only the last N messages.
func (s *Session) Truncate(maxMessages int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Msgs) <= maxMessages {
		return
	}
	s.Msgs = s.Msgs[len(s.Msgs)-maxMessages:]
}

// SetPending stores the pending write action, replacing any previous one.
func (s *Session) SetPending(action *domain.PendingAction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = action
}

// Pending returns the current pending write action, or nil.
func (s *Session) Pending() *domain.PendingAction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending
}

// ClearPending removes the pending write action.
func (s *Session) ClearPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

// TakePending atomically removes and returns the pending write action, or
// nil if there is none. Only one caller can ever obtain a given action.
func (s *Session) TakePending() *domain.PendingAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.pending
	s.pending = nil
	return pending
}

// SessionManager keeps sessions in memory, keyed by ID.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager creates an empty session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*Session)}
}

// Get returns the session with the given ID.
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.NewDomainError("SessionManager.Get", domain.ErrSessionNotFound, id)
	}
	return s, nil
}

// GetOrCreate returns the session with the given ID, creating it if needed.
// An empty ID always creates a fresh session.
func (m *SessionManager) GetOrCreate(id string) *Session {
	if id != "" {
		m.mu.RLock()
		s, ok := m.sessions[id]
		m.mu.RUnlock()
		if ok {
			return s
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if id != "" {
		if s, ok := m.sessions[id]; ok {
			return s
		}
	}
	s := NewSession()
	m.sessions[s.ID] = s
	return s
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
