package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moolen/magma/internal/errors"
	"github.com/moolen/magma/internal/logging"
)

// SessionConfig bounds the session lifecycle.
type SessionConfig struct {
	// Timeout is the idle time after which a session is evicted.
	Timeout time.Duration
	// CleanupInterval is how often expired sessions are swept.
	CleanupInterval time.Duration
	// MaxSessions caps concurrently tracked sessions.
	MaxSessions int
}

// DefaultSessionConfig returns the default session bounds.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Timeout:         30 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		MaxSessions:     1000,
	}
}

// Session is one client's protocol state.
type Session struct {
	ID string

	mu              sync.Mutex
	initialized     bool
	protocolVersion string
	createdAt       time.Time
	lastActivity    time.Time
}

// MarkInitialized records a successful initialize handshake.
func (s *Session) MarkInitialized(protocolVersion string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
	if protocolVersion != "" {
		s.protocolVersion = protocolVersion
	}
}

// Initialized reports whether initialize has completed.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = now
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

// SessionManager tracks sessions and evicts them after the idle
// timeout. OnCount, when set, observes every change of the active
// session count (used to feed the metrics gauge).
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	config   SessionConfig
	logger   *logging.Logger
	stop     chan struct{}
	stopOnce sync.Once

	OnCount func(int)
}

// NewSessionManager creates a manager; zero config fields fall back to
// defaults.
func NewSessionManager(config SessionConfig) *SessionManager {
	defaults := DefaultSessionConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	if config.MaxSessions <= 0 {
		config.MaxSessions = defaults.MaxSessions
	}
	return &SessionManager{
		sessions: make(map[string]*Session),
		config:   config,
		logger:   logging.GetLogger("mcp.sessions"),
		stop:     make(chan struct{}),
	}
}

// Config returns the effective session bounds.
func (m *SessionManager) Config() SessionConfig {
	return m.config
}

// Create registers a new session, failing when the cap is reached.
func (m *SessionManager) Create() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= m.config.MaxSessions {
		return nil, errors.NewValidation("SessionManager.Create", "session limit of %d reached", m.config.MaxSessions)
	}

	now := time.Now()
	session := &Session{
		ID:           uuid.NewString(),
		createdAt:    now,
		lastActivity: now,
	}
	m.sessions[session.ID] = session
	m.notifyCount(len(m.sessions))
	return session, nil
}

// Get returns the session with the given id, touching its activity
// timestamp.
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	session, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		session.touch(time.Now())
	}
	return session, ok
}

// Remove drops a session.
func (m *SessionManager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; ok {
		delete(m.sessions, id)
		m.notifyCount(len(m.sessions))
	}
}

// Count returns the number of active sessions.
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Start runs the cleanup loop until the context ends or Stop is called.
func (m *SessionManager) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.config.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				if evicted := m.Sweep(time.Now()); evicted > 0 {
					m.logger.Debug("Evicted %d idle sessions", evicted)
				}
			}
		}
	}()
}

// Stop terminates the cleanup loop.
func (m *SessionManager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Sweep evicts sessions idle longer than the timeout and returns how
// many were removed.
func (m *SessionManager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, session := range m.sessions {
		if session.idleSince(now) > m.config.Timeout {
			delete(m.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		m.notifyCount(len(m.sessions))
	}
	return evicted
}

func (m *SessionManager) notifyCount(n int) {
	if m.OnCount != nil {
		m.OnCount(n)
	}
}
