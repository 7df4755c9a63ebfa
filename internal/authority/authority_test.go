package authority

import (
	"context"
	"sync"
	"testing"

	"github.com/openxword/crossword-server/internal/game"
	"github.com/openxword/crossword-server/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestAuthority(t *testing.T) (*Authority, *repository.MemoryEventStore) {
	t.Helper()
	store := repository.NewMemoryEventStore()
	return New(store, zaptest.NewLogger(t)), store
}

func createProposal() Proposed {
	return Proposed{
		Type: game.TypeCreate,
		Params: game.CreateParams{
			Info:     game.Info{Title: "Mini", Author: "setter", Description: "2x2"},
			Solution: [][]string{{"C", "A"}, {"T", "S"}},
			Across:   []string{"Feline, briefly", "Hisses"},
			Down:     []string{"Kitty", "Direction"},
		},
	}
}

func joinProposals(userID, teamID string) []Proposed {
	return []Proposed{
		{Type: game.TypeUpdateDisplayName, UserID: userID,
			Params: game.UpdateDisplayNameParams{ID: userID, DisplayName: "Alice"}},
		{Type: game.TypeUpdateTeamID, UserID: userID,
			Params: game.UpdateTeamIDParams{ID: userID, TeamID: teamID}},
	}
}

func TestProposeAssignsSequentialOrder(t *testing.T) {
	auth, _ := newTestAuthority(t)
	ctx := context.Background()

	evt, err := auth.Propose(ctx, "s1", createProposal())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), evt.Seq)
	assert.False(t, evt.Timestamp.IsZero())

	for i, p := range joinProposals("u1", "t1") {
		evt, err = auth.Propose(ctx, "s1", p)
		require.NoError(t, err)
		assert.Equal(t, uint64(i+2), evt.Seq)
	}

	state, err := auth.CurrentState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "t1", state.Users["u1"].TeamID)
}

func TestFirstEventMustBeCreate(t *testing.T) {
	auth, _ := newTestAuthority(t)
	ctx := context.Background()

	_, err := auth.Propose(ctx, "s1", Proposed{
		Type:   game.TypeUpdateDisplayName,
		Params: game.UpdateDisplayNameParams{ID: "u1", DisplayName: "Alice"},
	})
	assert.ErrorIs(t, err, ErrMustCreateFirst)

	_, err = auth.Propose(ctx, "s1", createProposal())
	require.NoError(t, err)

	_, err = auth.Propose(ctx, "s1", createProposal())
	assert.ErrorIs(t, err, ErrAlreadyCreated)
}

func TestProposeRequiresParams(t *testing.T) {
	auth, _ := newTestAuthority(t)

	_, err := auth.Propose(context.Background(), "s1", Proposed{Type: game.TypeCreate})
	assert.ErrorIs(t, err, ErrNilParams)
}

func TestReplayReturnsOrderedHistory(t *testing.T) {
	auth, _ := newTestAuthority(t)
	ctx := context.Background()

	_, err := auth.Propose(ctx, "s1", createProposal())
	require.NoError(t, err)
	for _, p := range joinProposals("u1", "t1") {
		_, err = auth.Propose(ctx, "s1", p)
		require.NoError(t, err)
	}

	events, err := auth.Events(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, game.TypeCreate, events[0].Type)
	for i, evt := range events {
		assert.Equal(t, uint64(i+1), evt.Seq)
	}

	// Partial replay resumes after the cursor.
	tail, err := auth.Events(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, uint64(3), tail[0].Seq)

	// Replaying the log reproduces the authority's state.
	folded := game.Fold(events)
	state, err := auth.CurrentState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, state, folded)
}

func TestColdSessionRecoversFromLog(t *testing.T) {
	store := repository.NewMemoryEventStore()
	ctx := context.Background()

	first := New(store, zaptest.NewLogger(t))
	_, err := first.Propose(ctx, "s1", createProposal())
	require.NoError(t, err)
	for _, p := range joinProposals("u1", "t1") {
		_, err = first.Propose(ctx, "s1", p)
		require.NoError(t, err)
	}

	// A fresh authority over the same store rebuilds state by replay.
	second := New(store, zaptest.NewLogger(t))
	state, err := second.CurrentState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "t1", state.Users["u1"].TeamID)

	evt, err := second.Propose(ctx, "s1", Proposed{
		Type:   game.TypeReveal,
		UserID: "u1",
		Params: game.RevealParams{ID: "u1", Scope: game.Scope{Cells: []game.Position{{Row: 0, Col: 0}}}},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), evt.Seq)
}

func TestCurrentStateUnknownSession(t *testing.T) {
	auth, _ := newTestAuthority(t)

	_, err := auth.CurrentState(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGameInfoFromFirstCreateEvent(t *testing.T) {
	auth, _ := newTestAuthority(t)
	ctx := context.Background()

	_, err := auth.GameInfo(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = auth.Propose(ctx, "s1", createProposal())
	require.NoError(t, err)

	info, err := auth.GameInfo(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Mini", info.Title)
	assert.Equal(t, "setter", info.Author)
	assert.Equal(t, "2x2", info.Description)
}

func TestConcurrentProposalsSerialize(t *testing.T) {
	auth, _ := newTestAuthority(t)
	ctx := context.Background()

	_, err := auth.Propose(ctx, "s1", createProposal())
	require.NoError(t, err)

	const workers = 8
	const perWorker = 20
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := auth.Propose(ctx, "s1", Proposed{
					Type:   game.TypeUpdateDisplayName,
					Params: game.UpdateDisplayNameParams{ID: "u1", DisplayName: "Alice"},
				})
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	events, err := auth.Events(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, events, 1+workers*perWorker)
	for i, evt := range events {
		assert.Equal(t, uint64(i+1), evt.Seq)
	}
}
