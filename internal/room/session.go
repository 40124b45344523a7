package room

// LimiterClient gates posting for one session. The first call after a
// quiet period succeeds immediately; later calls report throttling until
// the background cooldown clears.
type LimiterClient interface {
	CheckLimit() bool
}

// ClientFactory builds the limiter client for a session. reportError is
// invoked when the limiter stays unreachable; the room tears the session
// down in response.
type ClientFactory func(identity string, reportError func(error)) LimiterClient

// session is the state of one live connection, owned exclusively by the
// room actor. It is never shared outside the actor goroutine.
type session struct {
	conn            Conn
	name            string
	limiterIdentity string
	limiter         LimiterClient
	// pending buffers serialized messages that arrive before the session
	// identifies. It is drained exactly once, in order, at handshake time.
	pending [][]byte
	closing bool
}

func (s *session) identified() bool {
	return s.name != ""
}
