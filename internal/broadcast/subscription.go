package broadcast

import (
	"sync"

	"github.com/openxword/crossword-server/internal/game"
)

// Subscription delivers a session's ordered events to one client. Events
// arrive on C strictly in sequence order with no gaps or duplicates,
// starting immediately after the subscriber's replay cursor.
type Subscription struct {
	SessionID string
	ClientID  string

	ch     chan game.Event
	mu     sync.Mutex
	last   uint64
	closed bool
	lost   bool
}

func newSubscription(sessionID, clientID string, afterSeq uint64, buffer int) *Subscription {
	return &Subscription{
		SessionID: sessionID,
		ClientID:  clientID,
		ch:        make(chan game.Event, buffer),
		last:      afterSeq,
	}
}

// C is the live event channel. It is closed when the subscription ends,
// either by Unsubscribe or because the subscriber fell too far behind.
func (s *Subscription) C() <-chan game.Event {
	return s.ch
}

// Lost reports whether the subscription was dropped for falling behind. A
// lost client must resubscribe with its last applied sequence.
func (s *Subscription) Lost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lost
}

// deliver enqueues one event, skipping anything at or before the replay
// cursor. Delivery never blocks: a full buffer marks the subscription lost
// and closes it so slow clients cannot stall the session.
func (s *Subscription) deliver(evt game.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || evt.Seq <= s.last {
		return
	}
	select {
	case s.ch <- evt:
		s.last = evt.Seq
	default:
		s.lost = true
		s.closed = true
		close(s.ch)
	}
}

// advanceCursor records a sequence delivered via replay rather than the live
// channel.
func (s *Subscription) advanceCursor(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq > s.last {
		s.last = seq
	}
}

// close ends the subscription. Idempotent.
func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
