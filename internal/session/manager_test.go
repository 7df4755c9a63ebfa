package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestCreateAndAccessors(t *testing.T) {
	mgr := NewManager(time.Minute, zaptest.NewLogger(t))

	sess := mgr.CreateSession("c1", "10.0.0.1:52000")
	sess.SetUserID("u1")
	sess.SetGameID("g1")

	assert.Equal(t, "c1", sess.ID())
	assert.Equal(t, "10.0.0.1:52000", sess.Host())
	assert.Equal(t, "u1", sess.UserID())
	assert.Equal(t, "g1", sess.GameID())
	assert.Equal(t, 1, mgr.Count())
}

func TestRemoveFiresDisconnect(t *testing.T) {
	mgr := NewManager(time.Minute, zaptest.NewLogger(t))

	sess := mgr.CreateSession("c1", "10.0.0.1:52000")
	fired := 0
	sess.OnDisconnect(func() { fired++ })

	mgr.RemoveSession("c1")
	assert.Equal(t, 1, fired)
	assert.Zero(t, mgr.Count())

	// Removing again is a no-op.
	mgr.RemoveSession("c1")
	assert.Equal(t, 1, fired)
}

func TestCloseAll(t *testing.T) {
	mgr := NewManager(time.Minute, zaptest.NewLogger(t))

	fired := 0
	for _, id := range []string{"c1", "c2", "c3"} {
		mgr.CreateSession(id, "10.0.0.1:52000").OnDisconnect(func() { fired++ })
	}

	mgr.CloseAll()
	assert.Equal(t, 3, fired)
	assert.Zero(t, mgr.Count())
}

func TestExpiredLeaseIsSwept(t *testing.T) {
	mgr := NewManager(50*time.Millisecond, zaptest.NewLogger(t))

	stale := mgr.CreateSession("stale", "10.0.0.1:52000")
	staleFired := false
	stale.OnDisconnect(func() { staleFired = true })

	time.Sleep(80 * time.Millisecond)

	fresh := mgr.CreateSession("fresh", "10.0.0.2:52000")
	fresh.UpdateActivity()
	freshFired := false
	fresh.OnDisconnect(func() { freshFired = true })

	mgr.removeExpired()

	assert.True(t, staleFired)
	assert.False(t, freshFired)
	assert.Equal(t, 1, mgr.Count())
}
