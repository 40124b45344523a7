package room

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/moltyfromclaw/molt-tv/internal/domain"
	"github.com/moltyfromclaw/molt-tv/internal/metrics"
)

// Manager resolves room ids to live actors, creating them lazily. Idle
// actors are evicted to bound memory; their still-open connections are
// parked and adopted back the next time the room is resolved, so a
// viewer never notices the actor was rebuilt.
type Manager struct {
	clock    clockwork.Clock
	log      domain.MessageLog
	limiters ClientFactory

	mu     sync.Mutex
	rooms  map[string]*Room
	parked map[string][]Conn
}

func NewManager(log domain.MessageLog, limiters ClientFactory, clock clockwork.Clock) *Manager {
	return &Manager{
		clock:    clock,
		log:      log,
		limiters: limiters,
		rooms:    make(map[string]*Room),
		parked:   make(map[string][]Conn),
	}
}

// Resolve returns the live actor for roomID, building it (and adopting
// any parked connections) if needed.
func (m *Manager) Resolve(roomID string) (*Room, error) {
	if roomID == "" {
		return nil, domain.ErrMissingRoomID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.rooms[roomID]; ok {
		return r, nil
	}

	r := NewRoom(roomID, m.log, m.limiters, m.clock)
	m.rooms[roomID] = r

	if conns := m.parked[roomID]; len(conns) > 0 {
		delete(m.parked, roomID)
		if err := r.Rehydrate(conns); err != nil {
			slog.Error("failed to rehydrate room", "room_id", roomID, "error", err)
		}
	}

	return r, nil
}

// EvictIdle detaches rooms with no activity for at least maxIdle,
// parking their open connections for later rehydration. Rooms that still
// hold sessions are only evicted if genuinely quiet; empty rooms are
// dropped outright.
func (m *Manager) EvictIdle(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	evicted := 0
	for id, r := range m.rooms {
		st, err := r.Status()
		if err != nil {
			// Actor already gone; forget it.
			delete(m.rooms, id)
			continue
		}
		if now.Sub(st.LastActivity) < maxIdle {
			continue
		}

		conns, err := r.Detach()
		if err != nil {
			slog.Error("failed to detach idle room", "room_id", id, "error", err)
			continue
		}
		delete(m.rooms, id)
		if len(conns) > 0 {
			m.parked[id] = conns
		}
		metrics.RoomsEvictedTotal.Inc()
		evicted++
		slog.Info("evicted idle room", "room_id", id, "parked_connections", len(conns))
	}
	return evicted
}

// Rooms reports how many actors are currently live.
func (m *Manager) Rooms() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// Stop shuts down every actor and closes all connections.
func (m *Manager) Stop(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, r := range m.rooms {
		r.Stop(reason)
		delete(m.rooms, id)
	}
	for id, conns := range m.parked {
		for _, conn := range conns {
			conn.Shutdown(websocket.CloseGoingAway, reason)
		}
		delete(m.parked, id)
	}
}
