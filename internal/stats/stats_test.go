package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openxword/crossword-server/internal/game"
	"github.com/openxword/crossword-server/internal/repository"
)

var base = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type logBuilder struct {
	t     *testing.T
	store *repository.MemoryEventStore
	seq   uint64
}

func newLog(t *testing.T) *logBuilder {
	return &logBuilder{t: t, store: repository.NewMemoryEventStore()}
}

func (b *logBuilder) append(at time.Duration, eventType game.Type, params game.Params) {
	b.t.Helper()
	payload, err := game.EncodeParams(params)
	require.NoError(b.t, err)
	b.seq++
	require.NoError(b.t, b.store.Append(context.Background(), repository.EventRecord{
		SessionID: "s1",
		Seq:       b.seq,
		EventType: string(eventType),
		Payload:   payload,
		CreatedAt: base.Add(at),
	}))
}

func TestSummarizeEmptySession(t *testing.T) {
	collector := NewCollector(repository.NewMemoryEventStore())
	_, err := collector.Summarize(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSummarizeSolveTimeExcludesPauses(t *testing.T) {
	log := newLog(t)
	log.append(0, game.TypeCreate, game.CreateParams{Solution: [][]string{{"A"}}})
	log.append(time.Minute, game.TypeStartGame, game.StartGameParams{})
	log.append(3*time.Minute, game.TypeUpdateClock, game.UpdateClockParams{Action: game.ClockActionPause})
	log.append(5*time.Minute, game.TypeUpdateClock, game.UpdateClockParams{Action: game.ClockActionStart})
	log.append(8*time.Minute, game.TypeCheck, game.CheckParams{ID: "u1", Scope: game.Scope{Cells: []game.Position{{Row: 0, Col: 0}}}})

	summary, err := NewCollector(log.store).Summarize(context.Background(), "s1")
	require.NoError(t, err)

	// 7 minutes on the wall from startGame, minus the 2 minute pause.
	assert.Equal(t, 5*time.Minute, summary.SolveTime)
}

func TestSummarizeClampsTrailingPause(t *testing.T) {
	log := newLog(t)
	log.append(0, game.TypeCreate, game.CreateParams{Solution: [][]string{{"A"}}})
	log.append(0, game.TypeStartGame, game.StartGameParams{})
	log.append(2*time.Minute, game.TypeUpdateClock, game.UpdateClockParams{Action: game.ClockActionPause})
	log.append(10*time.Minute, game.TypeCheck, game.CheckParams{ID: "u1", Scope: game.Scope{Name: game.ScopeAll}})

	summary, err := NewCollector(log.store).Summarize(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, summary.SolveTime)
}

func TestSummarizeDistinctCoordinates(t *testing.T) {
	log := newLog(t)
	log.append(0, game.TypeCreate, game.CreateParams{Solution: [][]string{{"A", "B"}}})
	log.append(time.Second, game.TypeCheck, game.CheckParams{ID: "u1", Scope: game.Scope{Cells: []game.Position{{Row: 0, Col: 1}, {Row: 0, Col: 0}}}})
	log.append(2*time.Second, game.TypeCheck, game.CheckParams{ID: "u2", Scope: game.Scope{Cells: []game.Position{{Row: 0, Col: 0}}}})
	log.append(3*time.Second, game.TypeCheck, game.CheckParams{ID: "u1", Scope: game.Scope{Name: game.ScopeWord}})
	log.append(4*time.Second, game.TypeReveal, game.RevealParams{ID: "u1", Scope: game.Scope{Cells: []game.Position{{Row: 0, Col: 1}}}})

	summary, err := NewCollector(log.store).Summarize(context.Background(), "s1")
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Events)
	assert.Equal(t, 1, summary.SymbolicChecks)
	assert.Equal(t, []game.Position{{Row: 0, Col: 0}, {Row: 0, Col: 1}}, summary.Checked)
	assert.Equal(t, []game.Position{{Row: 0, Col: 1}}, summary.Revealed)
}
