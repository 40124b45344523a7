package room

// Attachment is the metadata stamped onto a connection as the session
// progresses: the limiter identity at accept time, the display name once
// the handshake completes. It is what allows a rebuilt room to recover
// its sessions without re-running the handshake.
type Attachment struct {
	Name            string
	LimiterIdentity string
}

// Conn is the room-facing side of one live connection. Implementations
// must be safe for use from the room actor plus one reader goroutine.
type Conn interface {
	// TrySend queues a message for delivery without blocking. A false
	// return means the connection can no longer accept writes and the
	// session should be treated as gone.
	TrySend(payload []byte) bool
	// Shutdown closes the connection with a websocket close code and reason.
	Shutdown(code int, reason string)
	Attachment() Attachment
	Stamp(att Attachment)
}
