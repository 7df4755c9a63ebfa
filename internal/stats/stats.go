// Package stats derives aggregate statistics for a session from the
// persisted event log. It is a pure consumer: it filters the log by event
// type and reconstructs what it needs from payloads, never touching live
// game state.
package stats

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/openxword/crossword-server/internal/game"
	"github.com/openxword/crossword-server/internal/repository"
)

// Summary aggregates one session's history.
type Summary struct {
	// SolveTime is the elapsed time from game start to the last recorded
	// event, excluding paused intervals.
	SolveTime time.Duration
	// Checked is the distinct set of explicitly checked coordinates.
	Checked []game.Position
	// Revealed is the distinct set of revealed coordinates.
	Revealed []game.Position
	// SymbolicChecks counts check events that used a symbolic scope
	// ("all", "word") rather than explicit coordinates.
	SymbolicChecks int
	// Events is the total number of check/reveal events considered.
	Events int
}

// Collector computes summaries from an event store.
type Collector struct {
	store repository.EventStore
}

// NewCollector creates a collector over the given store.
func NewCollector(store repository.EventStore) *Collector {
	return &Collector{store: store}
}

// Summarize folds the session's check/reveal/clock history into a Summary.
func (c *Collector) Summarize(ctx context.Context, sessionID string) (Summary, error) {
	records, err := c.store.ListEventsByType(ctx, sessionID,
		string(game.TypeCreate),
		string(game.TypeStartGame),
		string(game.TypeUpdateClock),
		string(game.TypeCheck),
		string(game.TypeReveal),
	)
	if err != nil {
		return Summary{}, fmt.Errorf("list events for summary: %w", err)
	}
	if len(records) == 0 {
		return Summary{}, repository.ErrNotFound
	}

	var (
		summary  Summary
		checked  = make(map[game.Position]bool)
		revealed = make(map[game.Position]bool)
		start    time.Time
		paused   time.Duration
		pausedAt time.Time
		running  bool
		last     time.Time
	)

	for _, record := range records {
		last = record.CreatedAt

		params, err := game.DecodeParams(game.Type(record.EventType), record.Payload)
		if err != nil {
			return Summary{}, err
		}

		switch p := params.(type) {
		case game.CreateParams:
			start = record.CreatedAt
		case game.StartGameParams:
			start = record.CreatedAt
			running = true
		case game.UpdateClockParams:
			switch p.Action {
			case game.ClockActionPause:
				if running {
					running = false
					pausedAt = record.CreatedAt
				}
			case game.ClockActionStart:
				if !running {
					if !pausedAt.IsZero() {
						paused += record.CreatedAt.Sub(pausedAt)
					} else {
						start = record.CreatedAt
					}
					running = true
				}
			case game.ClockActionReset:
				start = record.CreatedAt
				paused = 0
				pausedAt = time.Time{}
			}
		case game.CheckParams:
			summary.Events++
			if p.Scope.IsExplicit() {
				for _, pos := range p.Scope.Cells {
					checked[pos] = true
				}
			} else {
				summary.SymbolicChecks++
			}
		case game.RevealParams:
			summary.Events++
			for _, pos := range p.Scope.Cells {
				revealed[pos] = true
			}
		}
	}

	if !running && !pausedAt.IsZero() && last.After(pausedAt) {
		// Session ended while paused; clamp the tail to the pause point.
		last = pausedAt
	}
	if !start.IsZero() && last.After(start) {
		summary.SolveTime = last.Sub(start) - paused
		if summary.SolveTime < 0 {
			summary.SolveTime = 0
		}
	}

	summary.Checked = sortedPositions(checked)
	summary.Revealed = sortedPositions(revealed)
	return summary, nil
}

// sortedPositions flattens a coordinate set in row-major order so summaries
// are deterministic.
func sortedPositions(set map[game.Position]bool) []game.Position {
	positions := make([]game.Position, 0, len(set))
	for pos := range set {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].Row != positions[j].Row {
			return positions[i].Row < positions[j].Row
		}
		return positions[i].Col < positions[j].Col
	})
	return positions
}
