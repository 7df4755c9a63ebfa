// Package broadcast routes ordered events from the authority to every
// subscribed client of a session and services catch-up on (re)join.
package broadcast

import (
	"context"
	"sync"

	"github.com/openxword/crossword-server/internal/authority"
	"github.com/openxword/crossword-server/internal/game"
	"go.uber.org/zap"
)

// Manager tracks per-session subscriber sets. It implements
// authority.Publisher; Publish runs inside the authority's per-session
// critical section and therefore never blocks on subscribers.
type Manager struct {
	logger    *zap.Logger
	authority *authority.Authority
	buffer    int

	mu       sync.RWMutex
	sessions map[string]map[string]*Subscription
}

// NewManager creates a broadcast manager. buffer is the per-subscription
// channel capacity before a slow client is dropped.
func NewManager(auth *authority.Authority, buffer int, logger *zap.Logger) *Manager {
	m := &Manager{
		logger:    logger,
		authority: auth,
		buffer:    buffer,
		sessions:  make(map[string]map[string]*Subscription),
	}
	auth.SetPublisher(m)
	return m
}

// Subscribe registers a client and returns the replayed history after
// afterSeq together with the live subscription. Registration and replay run
// under the session's ordering lock, so the first live event always carries
// the sequence following the last replayed one. A previous subscription for
// the same client is replaced.
func (m *Manager) Subscribe(ctx context.Context, sessionID, clientID string, afterSeq uint64) ([]game.Event, *Subscription, error) {
	sub := newSubscription(sessionID, clientID, afterSeq, m.buffer)

	var history []game.Event
	err := m.authority.Synchronize(ctx, sessionID, func(ctx context.Context) error {
		replayErr := m.authority.Replay(ctx, sessionID, afterSeq, func(evt game.Event) error {
			history = append(history, evt)
			sub.advanceCursor(evt.Seq)
			return nil
		})
		if replayErr != nil {
			return replayErr
		}
		m.register(sub)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	m.logger.Debug("client subscribed",
		zap.String("session_id", sessionID),
		zap.String("client_id", clientID),
		zap.Int("replayed", len(history)),
	)
	return history, sub, nil
}

// Publish fans the event out to every subscriber of the session, including
// the originator: clients apply the authoritative ordered event rather than
// trusting optimistic local state. Slow subscribers are dropped, not waited
// on.
func (m *Manager) Publish(sessionID string, evt game.Event) {
	m.mu.RLock()
	subs := make([]*Subscription, 0, len(m.sessions[sessionID]))
	for _, sub := range m.sessions[sessionID] {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		sub.deliver(evt)
		if sub.Lost() {
			m.remove(sub.SessionID, sub.ClientID, sub)
			m.logger.Warn("dropped slow subscriber",
				zap.String("session_id", sub.SessionID),
				zap.String("client_id", sub.ClientID),
				zap.Uint64("seq", evt.Seq),
			)
		}
	}
}

// Unsubscribe removes a client's subscription and closes its channel. The
// event log and other subscribers are unaffected.
func (m *Manager) Unsubscribe(sessionID, clientID string) {
	m.mu.Lock()
	sub := m.sessions[sessionID][clientID]
	if sub != nil {
		delete(m.sessions[sessionID], clientID)
		if len(m.sessions[sessionID]) == 0 {
			delete(m.sessions, sessionID)
		}
	}
	m.mu.Unlock()

	if sub != nil {
		sub.close()
	}
}

// SubscriberCount reports how many clients are attached to a session.
func (m *Manager) SubscriberCount(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions[sessionID])
}

// Close drops the subscribers of every session, for server shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	sessionIDs := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		sessionIDs = append(sessionIDs, id)
	}
	m.mu.Unlock()

	for _, id := range sessionIDs {
		m.CloseSession(id)
	}
}

// CloseSession drops every subscriber of a session, for session teardown.
func (m *Manager) CloseSession(sessionID string) {
	m.mu.Lock()
	subs := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

func (m *Manager) register(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sub.SessionID]
	if !ok {
		session = make(map[string]*Subscription)
		m.sessions[sub.SessionID] = session
	}
	if previous, ok := session[sub.ClientID]; ok {
		previous.close()
	}
	session[sub.ClientID] = sub
}

// remove deletes the subscription only if it is still the registered one for
// the client, so a concurrent resubscribe is not clobbered.
func (m *Manager) remove(sessionID, clientID string, sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.sessions[sessionID][clientID]; ok && current == sub {
		delete(m.sessions[sessionID], clientID)
		if len(m.sessions[sessionID]) == 0 {
			delete(m.sessions, sessionID)
		}
	}
}
