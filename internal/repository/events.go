package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateSeq indicates an append reused an already-persisted sequence
// number, which means two writers raced on the same session.
var ErrDuplicateSeq = errors.New("duplicate event sequence")

// EventRecord is one row of a session's append-only event log. Seq starts at
// 1 and is assigned by the ordering authority before the append.
type EventRecord struct {
	SessionID string
	Seq       uint64
	UserID    string
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

// EventStore is the persistence contract for the event log. Appenders are
// single-writer per session; readers may run concurrently with appends and
// always observe a consistent prefix.
type EventStore interface {
	Append(ctx context.Context, record EventRecord) error
	// ListEvents returns up to limit events with seq > afterSeq, in order.
	ListEvents(ctx context.Context, sessionID string, afterSeq uint64, limit int) ([]EventRecord, error)
	// ListEventsByType returns all events of the given types, in order.
	ListEventsByType(ctx context.Context, sessionID string, types ...string) ([]EventRecord, error)
	// FirstEventOfType returns the earliest event of the given type, or
	// ErrNotFound.
	FirstEventOfType(ctx context.Context, sessionID, eventType string) (EventRecord, error)
	// MaxSeq returns the highest persisted sequence for the session, zero if
	// the log is empty.
	MaxSeq(ctx context.Context, sessionID string) (uint64, error)
}

// EventRepository persists the event log in Postgres.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates an event log repository backed by the pool.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append inserts one event row.
func (r *EventRepository) Append(ctx context.Context, record EventRecord) error {
	const query = `
		INSERT INTO game_events (session_id, seq, user_id, event_type, payload, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)`

	_, err := r.db.Pool().Exec(ctx, query,
		record.SessionID, record.Seq, record.UserID,
		record.EventType, record.Payload, record.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 = unique_violation: a second writer raced on this seq.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateSeq
		}
		return fmt.Errorf("failed to append event %d for session %s: %w",
			record.Seq, record.SessionID, err)
	}
	return nil
}

// ListEvents pages through the log in sequence order.
func (r *EventRepository) ListEvents(ctx context.Context, sessionID string, afterSeq uint64, limit int) ([]EventRecord, error) {
	const query = `
		SELECT session_id, seq, COALESCE(user_id, ''), event_type, payload, created_at
		FROM game_events
		WHERE session_id = $1 AND seq > $2
		ORDER BY seq
		LIMIT $3`

	rows, err := r.db.Pool().Query(ctx, query, sessionID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListEventsByType returns the full ordered history filtered to the given
// event types, for consumers like the statistics collaborator.
func (r *EventRepository) ListEventsByType(ctx context.Context, sessionID string, types ...string) ([]EventRecord, error) {
	const query = `
		SELECT session_id, seq, COALESCE(user_id, ''), event_type, payload, created_at
		FROM game_events
		WHERE session_id = $1 AND event_type = ANY($2)
		ORDER BY seq`

	rows, err := r.db.Pool().Query(ctx, query, sessionID, types)
	if err != nil {
		return nil, fmt.Errorf("failed to list events by type for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// FirstEventOfType returns the earliest matching event.
func (r *EventRepository) FirstEventOfType(ctx context.Context, sessionID, eventType string) (EventRecord, error) {
	const query = `
		SELECT session_id, seq, COALESCE(user_id, ''), event_type, payload, created_at
		FROM game_events
		WHERE session_id = $1 AND event_type = $2
		ORDER BY seq
		LIMIT 1`

	var record EventRecord
	err := r.db.Pool().QueryRow(ctx, query, sessionID, eventType).Scan(
		&record.SessionID, &record.Seq, &record.UserID,
		&record.EventType, &record.Payload, &record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EventRecord{}, ErrNotFound
		}
		return EventRecord{}, fmt.Errorf("failed to load first %s event for session %s: %w",
			eventType, sessionID, err)
	}
	return record, nil
}

// MaxSeq returns the tail position of the session's log.
func (r *EventRepository) MaxSeq(ctx context.Context, sessionID string) (uint64, error) {
	const query = `SELECT COALESCE(MAX(seq), 0) FROM game_events WHERE session_id = $1`

	var seq uint64
	if err := r.db.Pool().QueryRow(ctx, query, sessionID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to load max seq for session %s: %w", sessionID, err)
	}
	return seq, nil
}

func scanRecords(rows pgx.Rows) ([]EventRecord, error) {
	var records []EventRecord
	for rows.Next() {
		var record EventRecord
		if err := rows.Scan(
			&record.SessionID, &record.Seq, &record.UserID,
			&record.EventType, &record.Payload, &record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event rows: %w", err)
	}
	return records, nil
}
