package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/openxword/crossword-server/internal/authority"
	"github.com/openxword/crossword-server/internal/game"
	"github.com/openxword/crossword-server/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestManager(t *testing.T, buffer int) (*Manager, *authority.Authority) {
	t.Helper()
	auth := authority.New(repository.NewMemoryEventStore(), zaptest.NewLogger(t))
	return NewManager(auth, buffer, zaptest.NewLogger(t)), auth
}

func propose(t *testing.T, auth *authority.Authority, sessionID string, p authority.Proposed) game.Event {
	t.Helper()
	evt, err := auth.Propose(context.Background(), sessionID, p)
	require.NoError(t, err)
	return evt
}

func createSession(t *testing.T, auth *authority.Authority, sessionID string) {
	t.Helper()
	propose(t, auth, sessionID, authority.Proposed{
		Type: game.TypeCreate,
		Params: game.CreateParams{
			Solution: [][]string{{"C", "A"}, {"T", "S"}},
			Across:   []string{"Feline, briefly", "Hisses"},
			Down:     []string{"Kitty", "Direction"},
		},
	})
}

func rename(userID, name string) authority.Proposed {
	return authority.Proposed{
		Type:   game.TypeUpdateDisplayName,
		UserID: userID,
		Params: game.UpdateDisplayNameParams{ID: userID, DisplayName: name},
	}
}

func receive(t *testing.T, sub *Subscription) game.Event {
	t.Helper()
	select {
	case evt, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return game.Event{}
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	m, auth := newTestManager(t, 16)
	ctx := context.Background()
	createSession(t, auth, "s1")

	_, subA, err := m.Subscribe(ctx, "s1", "clientA", 0)
	require.NoError(t, err)
	_, subB, err := m.Subscribe(ctx, "s1", "clientB", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, m.SubscriberCount("s1"))

	evt := propose(t, auth, "s1", rename("u1", "Alice"))

	// Both subscribers see the event, the originator included.
	assert.Equal(t, evt.Seq, receive(t, subA).Seq)
	assert.Equal(t, evt.Seq, receive(t, subB).Seq)
}

func TestSubscribeReplaysHistoryFirst(t *testing.T) {
	m, auth := newTestManager(t, 16)
	ctx := context.Background()
	createSession(t, auth, "s1")
	propose(t, auth, "s1", rename("u1", "Alice"))
	propose(t, auth, "s1", rename("u1", "Bob"))

	history, sub, err := m.Subscribe(ctx, "s1", "late", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, evt := range history {
		assert.Equal(t, uint64(i+1), evt.Seq)
	}

	// The first live event continues exactly where the replay stopped.
	propose(t, auth, "s1", rename("u1", "Carol"))
	live := receive(t, sub)
	assert.Equal(t, history[len(history)-1].Seq+1, live.Seq)
}

func TestSubscribeWithCursorSkipsApplied(t *testing.T) {
	m, auth := newTestManager(t, 16)
	ctx := context.Background()
	createSession(t, auth, "s1")
	propose(t, auth, "s1", rename("u1", "Alice"))
	propose(t, auth, "s1", rename("u1", "Bob"))

	history, sub, err := m.Subscribe(ctx, "s1", "rejoiner", 2)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, uint64(3), history[0].Seq)

	propose(t, auth, "s1", rename("u1", "Carol"))
	assert.Equal(t, uint64(4), receive(t, sub).Seq)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	m, auth := newTestManager(t, 16)
	ctx := context.Background()
	createSession(t, auth, "s1")

	_, sub, err := m.Subscribe(ctx, "s1", "clientA", 0)
	require.NoError(t, err)

	m.Unsubscribe("s1", "clientA")
	assert.Equal(t, 0, m.SubscriberCount("s1"))

	propose(t, auth, "s1", rename("u1", "Alice"))

	_, ok := <-sub.C()
	assert.False(t, ok, "channel closed after unsubscribe")

	// Other clients and the log are unaffected.
	events, err := auth.Events(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestSlowSubscriberIsDroppedNotWaitedOn(t *testing.T) {
	m, auth := newTestManager(t, 1)
	ctx := context.Background()
	createSession(t, auth, "s1")

	_, slow, err := m.Subscribe(ctx, "s1", "slow", 0)
	require.NoError(t, err)
	_, fast, err := m.Subscribe(ctx, "s1", "fast", 0)
	require.NoError(t, err)

	// Drain fast after every publish; leave slow's channel alone so its
	// 1-slot buffer overflows on the second publish.
	propose(t, auth, "s1", rename("u1", "Alice"))
	assert.Equal(t, uint64(2), receive(t, fast).Seq)
	propose(t, auth, "s1", rename("u1", "Bob"))
	assert.Equal(t, uint64(3), receive(t, fast).Seq)
	propose(t, auth, "s1", rename("u1", "Carol"))
	assert.Equal(t, uint64(4), receive(t, fast).Seq)

	// The slow subscriber was dropped without stalling fast's delivery.
	assert.True(t, slow.Lost())
	assert.False(t, fast.Lost())
	assert.Equal(t, 1, m.SubscriberCount("s1"))
}

func TestCloseDropsEverySubscriber(t *testing.T) {
	m, auth := newTestManager(t, 16)
	ctx := context.Background()
	createSession(t, auth, "s1")
	createSession(t, auth, "s2")

	_, subA, err := m.Subscribe(ctx, "s1", "clientA", 0)
	require.NoError(t, err)
	_, subB, err := m.Subscribe(ctx, "s2", "clientB", 0)
	require.NoError(t, err)

	m.Close()

	_, ok := <-subA.C()
	assert.False(t, ok)
	_, ok = <-subB.C()
	assert.False(t, ok)
	assert.Zero(t, m.SubscriberCount("s1"))
	assert.Zero(t, m.SubscriberCount("s2"))
}

func TestResubscribeReplacesSubscription(t *testing.T) {
	m, auth := newTestManager(t, 16)
	ctx := context.Background()
	createSession(t, auth, "s1")

	_, first, err := m.Subscribe(ctx, "s1", "clientA", 0)
	require.NoError(t, err)
	_, second, err := m.Subscribe(ctx, "s1", "clientA", 1)
	require.NoError(t, err)

	_, ok := <-first.C()
	assert.False(t, ok, "old subscription closed on resubscribe")
	assert.Equal(t, 1, m.SubscriberCount("s1"))

	evt := propose(t, auth, "s1", rename("u1", "Alice"))
	assert.Equal(t, evt.Seq, receive(t, second).Seq)
}
