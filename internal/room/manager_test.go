package room

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moltyfromclaw/molt-tv/internal/domain"
)

func newTestManager(t *testing.T) (*Manager, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.UnixMilli(testBase))
	m := NewManager(&memLog{}, allowAll, clock)
	t.Cleanup(func() { m.Stop("test over") })
	return m, clock
}

func TestManagerResolveIsLazyAndStable(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Resolve("")
	assert.ErrorIs(t, err, domain.ErrMissingRoomID)
	assert.Equal(t, 0, m.Rooms())

	r1, err := m.Resolve("stream-1")
	require.NoError(t, err)
	r2, err := m.Resolve("stream-1")
	require.NoError(t, err)
	assert.Same(t, r1, r2)
	assert.Equal(t, 1, m.Rooms())
}

func TestManagerEvictionParksAndRehydrates(t *testing.T) {
	m, clock := newTestManager(t)

	r, err := m.Resolve("stream-1")
	require.NoError(t, err)

	alice := &fakeConn{}
	require.NoError(t, r.Join(alice, "10.0.0.1"))
	identify(t, r, alice, "Alice")

	// Not yet idle long enough.
	clock.Advance(time.Minute)
	assert.Equal(t, 0, m.EvictIdle(10*time.Minute))

	clock.Advance(10 * time.Minute)
	assert.Equal(t, 1, m.EvictIdle(10*time.Minute))
	assert.Equal(t, 0, m.Rooms())

	closed, _ := alice.isClosed()
	require.False(t, closed, "parked connections stay open")

	// The next resolve adopts the parked connection silently.
	replacement, err := m.Resolve("stream-1")
	require.NoError(t, err)
	st, err := replacement.Status()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Sessions)

	// No handshake rerun: the restored session chats right away.
	say(t, replacement, alice, "still me")
	msgs := alice.messages(t)
	last := msgs[len(msgs)-1]
	assert.Equal(t, domain.KindChat, last.Kind)
	assert.Equal(t, "Alice", last.Name)
}

func TestManagerStopClosesParkedConnections(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(testBase))
	m := NewManager(&memLog{}, allowAll, clock)

	r, err := m.Resolve("stream-1")
	require.NoError(t, err)
	alice := &fakeConn{}
	require.NoError(t, r.Join(alice, "10.0.0.1"))
	identify(t, r, alice, "Alice")

	clock.Advance(time.Hour)
	require.Equal(t, 1, m.EvictIdle(10*time.Minute))

	m.Stop("Server shutting down")
	closed, code := alice.isClosed()
	assert.True(t, closed)
	assert.Equal(t, websocket.CloseGoingAway, code)
}
