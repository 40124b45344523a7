package room

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/moltyfromclaw/molt-tv/internal/metrics"
)

const (
	writeDeadline  = 5 * time.Second
	pingInterval   = 30 * time.Second
	pongDeadline   = 60 * time.Second
	sendBufferSize = 16
)

// WSConn adapts a gorilla websocket connection to the Conn interface.
// All writes go through a single writer goroutine fed by a buffered
// channel, so the room actor never blocks on a slow client; a full
// buffer counts as a failed send.
type WSConn struct {
	ws       *websocket.Conn
	clock    clockwork.Clock
	sendCh   chan []byte
	done     chan struct{}
	dead     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu         sync.Mutex
	attachment Attachment
}

func NewWSConn(ws *websocket.Conn, clock clockwork.Clock) *WSConn {
	c := &WSConn{
		ws:     ws,
		clock:  clock,
		sendCh: make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		dead:   make(chan struct{}),
	}
	c.configurePongHandler()
	c.wg.Add(1)
	go c.run()
	return c
}

// ReadMessage blocks until the next inbound frame or a read error.
func (c *WSConn) ReadMessage() ([]byte, error) {
	_, payload, err := c.ws.ReadMessage()
	return payload, err
}

func (c *WSConn) TrySend(payload []byte) bool {
	select {
	case <-c.dead:
		return false
	default:
	}
	select {
	case c.sendCh <- payload:
		return true
	default:
		return false
	}
}

// Shutdown stops the writer, sends a close frame, and closes the socket.
// Safe to call multiple times.
func (c *WSConn) Shutdown(code int, reason string) {
	c.stopOnce.Do(func() {
		// The writer goroutine must exit before the close frame is
		// written, otherwise two goroutines write to the socket.
		close(c.done)
		c.wg.Wait()

		msg := websocket.FormatCloseMessage(code, reason)
		c.updateWriteDeadline()
		_ = c.ws.WriteMessage(websocket.CloseMessage, msg)
		_ = c.ws.Close()
	})
}

func (c *WSConn) Attachment() Attachment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attachment
}

func (c *WSConn) Stamp(att Attachment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attachment = att
}

func (c *WSConn) run() {
	defer c.wg.Done()
	defer close(c.dead)

	ticker := c.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload := <-c.sendCh:
			c.updateWriteDeadline()
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.Chan():
			c.updateWriteDeadline()
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				metrics.WebSocketPingFailures.Inc()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *WSConn) configurePongHandler() {
	c.updateReadDeadline()
	c.ws.SetPongHandler(func(string) error {
		c.updateReadDeadline()
		return nil
	})
}

func (c *WSConn) updateWriteDeadline() {
	_ = c.ws.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
}

func (c *WSConn) updateReadDeadline() {
	_ = c.ws.SetReadDeadline(c.clock.Now().Add(pongDeadline))
}
