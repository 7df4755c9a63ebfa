// Package session tracks connected clients. Connection bookkeeping is
// independent of game state: a disconnect removes the client record but
// never touches the event log.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Session is one connected client.
type Session struct {
	mu           sync.RWMutex
	id           string
	host         string
	userID       string
	gameID       string
	lastActivity time.Time
	disconnect   func()
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Host returns the remote address the client connected from.
func (s *Session) Host() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.host
}

// SetUserID associates the session with a participant id.
func (s *Session) SetUserID(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
}

// UserID returns the associated participant id.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// SetGameID records which game session the client is attached to.
func (s *Session) SetGameID(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gameID = gameID
}

// GameID returns the attached game session id, empty if none.
func (s *Session) GameID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gameID
}

// UpdateActivity refreshes the lease.
func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// LastActivity returns the last lease refresh time.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// OnDisconnect registers the callback invoked when the manager removes the
// session.
func (s *Session) OnDisconnect(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnect = fn
}

func (s *Session) fireDisconnect() {
	s.mu.RLock()
	fn := s.disconnect
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Manager owns the registry of connected clients.
type Manager struct {
	logger      *zap.Logger
	leasePeriod time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager with the given lease period.
func NewManager(leasePeriod time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		logger:      logger,
		leasePeriod: leasePeriod,
		sessions:    make(map[string]*Session),
	}
}

// CreateSession registers a new client connection.
func (m *Manager) CreateSession(id, host string) *Session {
	sess := &Session{
		id:           id,
		host:         host,
		lastActivity: time.Now(),
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	m.logger.Debug("session created",
		zap.String("session_id", id),
		zap.String("host", host),
	)
	return sess
}

// RemoveSession deletes a session and fires its disconnect callback.
func (m *Manager) RemoveSession(id string) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		sess.fireDisconnect()
		m.logger.Debug("session removed", zap.String("session_id", id))
	}
}

// Count returns the number of connected clients.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll removes every session, for shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.fireDisconnect()
	}
	m.logger.Info("all sessions closed", zap.Int("count", len(sessions)))
}

// CleanupExpiredSessions sweeps for clients whose lease lapsed. Runs until
// the context is cancelled.
func (m *Manager) CleanupExpiredSessions(ctx context.Context) {
	ticker := time.NewTicker(m.leasePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.removeExpired()
		}
	}
}

func (m *Manager) removeExpired() {
	cutoff := time.Now().Add(-m.leasePeriod)

	m.mu.Lock()
	var expired []*Session
	for id, sess := range m.sessions {
		if sess.LastActivity().Before(cutoff) {
			delete(m.sessions, id)
			expired = append(expired, sess)
		}
	}
	m.mu.Unlock()

	for _, sess := range expired {
		sess.fireDisconnect()
		m.logger.Info("expired session removed",
			zap.String("session_id", sess.ID()),
		)
	}
}
