// Package authority implements the single-writer ordering authority for game
// sessions. All mutation of a session's state and log goes through Propose,
// which serializes per session; different sessions proceed concurrently.
package authority

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openxword/crossword-server/internal/game"
	"github.com/openxword/crossword-server/internal/repository"
	"go.uber.org/zap"
)

const replayPageSize = 200

var (
	// ErrMustCreateFirst indicates a proposal for a session whose log is
	// still empty and whose first event is not create.
	ErrMustCreateFirst = errors.New("first event of a session must be create")
	// ErrAlreadyCreated indicates a create proposal for a session that
	// already has history.
	ErrAlreadyCreated = errors.New("session already created")
	// ErrSessionNotFound indicates a session with no persisted history.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNilParams indicates a proposal without decoded parameters.
	ErrNilParams = errors.New("event params are required")
)

// Publisher receives every newly ordered event for distribution. Publish is
// called inside the session's ordering critical section, immediately after
// the append commits; it must not block.
type Publisher interface {
	Publish(sessionID string, evt game.Event)
}

// Proposed is a client-submitted event before ordering. Params must already
// be decoded and shape-checked at the transport boundary.
type Proposed struct {
	Type   game.Type
	UserID string
	Params game.Params
}

// sessionState is the in-memory fold of one session's log.
type sessionState struct {
	mu    sync.Mutex
	seq   uint64
	state *game.State
}

// Authority assigns canonical order to events and owns the in-memory state
// of every active session.
type Authority struct {
	logger    *zap.Logger
	store     repository.EventStore
	publisher Publisher
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionState
}

// New creates an ordering authority over the given event store.
func New(store repository.EventStore, logger *zap.Logger) *Authority {
	return &Authority{
		logger:   logger,
		store:    store,
		now:      time.Now,
		sessions: make(map[string]*sessionState),
	}
}

// SetPublisher wires the broadcaster; call before serving traffic.
func (a *Authority) SetPublisher(p Publisher) {
	a.publisher = p
}

// Propose assigns the next sequence number and authoritative timestamp to
// the event, applies the reducer, persists the result, and publishes it.
// Storage failures are returned and leave the in-memory state unchanged.
func (a *Authority) Propose(ctx context.Context, sessionID string, proposed Proposed) (game.Event, error) {
	if proposed.Params == nil {
		return game.Event{}, ErrNilParams
	}

	sess, err := a.session(ctx, sessionID)
	if err != nil {
		return game.Event{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.seq == 0 && proposed.Type != game.TypeCreate {
		return game.Event{}, ErrMustCreateFirst
	}
	if sess.seq > 0 && proposed.Type == game.TypeCreate {
		return game.Event{}, ErrAlreadyCreated
	}

	evt := game.Event{
		Type:      proposed.Type,
		Seq:       sess.seq + 1,
		Timestamp: a.now().UTC(),
		UserID:    proposed.UserID,
		Params:    proposed.Params,
	}

	record, err := eventToRecord(sessionID, evt)
	if err != nil {
		return game.Event{}, err
	}
	if err := a.store.Append(ctx, record); err != nil {
		return game.Event{}, fmt.Errorf("append event: %w", err)
	}

	sess.seq = evt.Seq
	sess.state = game.Apply(sess.state, evt)

	a.logger.Debug("event ordered",
		zap.String("session_id", sessionID),
		zap.String("type", string(evt.Type)),
		zap.Uint64("seq", evt.Seq),
	)

	if a.publisher != nil {
		a.publisher.Publish(sessionID, evt)
	}
	return evt, nil
}

// CurrentState returns the session's in-memory state, rebuilding it from the
// log when the session is cold. The returned state must be treated as
// read-only; reducers never mutate published versions.
func (a *Authority) CurrentState(ctx context.Context, sessionID string) (*game.State, error) {
	sess, err := a.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.seq == 0 {
		return nil, ErrSessionNotFound
	}
	return sess.state, nil
}

// Replay streams the persisted events with seq > afterSeq, in order, into
// fn. The scan pages through storage and stops on the first fn error. A
// sequence gap in the log is reported as an error.
func (a *Authority) Replay(ctx context.Context, sessionID string, afterSeq uint64, fn func(game.Event) error) error {
	lastSeq := afterSeq
	for {
		records, err := a.store.ListEvents(ctx, sessionID, lastSeq, replayPageSize)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		for _, record := range records {
			if record.Seq != lastSeq+1 {
				return fmt.Errorf("event sequence gap in session %s: expected %d got %d",
					sessionID, lastSeq+1, record.Seq)
			}
			evt, err := recordToEvent(record)
			if err != nil {
				return err
			}
			if err := fn(evt); err != nil {
				return err
			}
			lastSeq = record.Seq
		}
	}
}

// Events collects a replay into a slice.
func (a *Authority) Events(ctx context.Context, sessionID string, afterSeq uint64) ([]game.Event, error) {
	var events []game.Event
	err := a.Replay(ctx, sessionID, afterSeq, func(evt game.Event) error {
		events = append(events, evt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Synchronize runs fn under the session's ordering lock so no Propose for
// the session can interleave with it. The broadcast manager uses this to
// make subscribe-with-replay atomic.
func (a *Authority) Synchronize(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	sess, err := a.session(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return fn(ctx)
}

// GameInfo derives puzzle metadata from the session's first create event
// without folding the whole log.
func (a *Authority) GameInfo(ctx context.Context, sessionID string) (game.Info, error) {
	record, err := a.store.FirstEventOfType(ctx, sessionID, string(game.TypeCreate))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return game.Info{}, ErrSessionNotFound
		}
		return game.Info{}, err
	}
	params, err := game.DecodeParams(game.TypeCreate, record.Payload)
	if err != nil {
		return game.Info{}, err
	}
	create, ok := params.(game.CreateParams)
	if !ok {
		return game.Info{}, fmt.Errorf("unexpected params for create event")
	}
	return create.Info, nil
}

// session returns the in-memory session, recovering a cold one by replaying
// its full log into the empty initial state.
func (a *Authority) session(ctx context.Context, sessionID string) (*sessionState, error) {
	a.mu.Lock()
	sess, ok := a.sessions[sessionID]
	if !ok {
		sess = &sessionState{state: game.InitialState()}
		a.sessions[sessionID] = sess
	}
	a.mu.Unlock()
	if ok {
		return sess, nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	err := a.Replay(ctx, sessionID, 0, func(evt game.Event) error {
		sess.state = game.Apply(sess.state, evt)
		sess.seq = evt.Seq
		return nil
	})
	if err == nil {
		// The replay must land exactly on the persisted tail.
		var maxSeq uint64
		maxSeq, err = a.store.MaxSeq(ctx, sessionID)
		if err == nil && maxSeq != sess.seq {
			err = fmt.Errorf("session %s replay stopped at %d but log tail is %d",
				sessionID, sess.seq, maxSeq)
		}
	}
	if err != nil {
		a.mu.Lock()
		delete(a.sessions, sessionID)
		a.mu.Unlock()
		return nil, err
	}
	if sess.seq > 0 {
		a.logger.Info("session recovered from event log",
			zap.String("session_id", sessionID),
			zap.Uint64("seq", sess.seq),
		)
	}
	return sess, nil
}

func eventToRecord(sessionID string, evt game.Event) (repository.EventRecord, error) {
	payload, err := game.EncodeParams(evt.Params)
	if err != nil {
		return repository.EventRecord{}, err
	}
	return repository.EventRecord{
		SessionID: sessionID,
		Seq:       evt.Seq,
		UserID:    evt.UserID,
		EventType: string(evt.Type),
		Payload:   payload,
		CreatedAt: evt.Timestamp,
	}, nil
}

func recordToEvent(record repository.EventRecord) (game.Event, error) {
	params, err := game.DecodeParams(game.Type(record.EventType), record.Payload)
	if err != nil {
		return game.Event{}, fmt.Errorf("decode persisted event %d: %w", record.Seq, err)
	}
	return game.Event{
		Type:      game.Type(record.EventType),
		Seq:       record.Seq,
		Timestamp: record.CreatedAt,
		UserID:    record.UserID,
		Params:    params,
	}, nil
}
