package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/moltyfromclaw/molt-tv/internal/domain"
	"github.com/moltyfromclaw/molt-tv/internal/metrics"
)

const (
	commandBuffer      = 256
	commandTimeout     = 5 * time.Second
	storageTimeout     = 2 * time.Second
	maxSessionsPerRoom = 1000
	// defaultBacklogLimit applies when a backlog query carries no limit.
	defaultBacklogLimit = 50
)

// --- Commands ---

type roomCmd interface{ isRoomCmd() }

type baseCmd struct{}

func (baseCmd) isRoomCmd() {}

type joinCmd struct {
	baseCmd
	conn     Conn
	identity string
	errCh    chan error
}

type frameCmd struct {
	baseCmd
	conn    Conn
	payload []byte
	errCh   chan error
}

type leaveCmd struct {
	baseCmd
	conn Conn
}

type injectCmd struct {
	baseCmd
	payload []byte
}

type storeCmd struct {
	baseCmd
	payload []byte
	errCh   chan error
}

type backlogCmd struct {
	baseCmd
	query   BacklogQuery
	replyCh chan backlogReply
}

type backlogReply struct {
	messages []domain.ChatMessage
	err      error
}

type rehydrateCmd struct {
	baseCmd
	conns  []Conn
	doneCh chan struct{}
}

type statusCmd struct {
	baseCmd
	replyCh chan Status
}

type detachCmd struct {
	baseCmd
	replyCh chan []Conn
}

type stopCmd struct {
	baseCmd
	reason string
}

// BacklogQuery selects a slice of the persisted room history. Since and
// Before are exclusive unix-millisecond bounds; at most one is honored,
// Since winning. Without either, the most recent Limit entries are
// returned.
type BacklogQuery struct {
	Since  *int64
	Before *int64
	Limit  int
}

// Status is a snapshot of a room's liveness, used for idle eviction.
type Status struct {
	Sessions     int
	LastActivity time.Time
}

// Room is the single serialized owner of one stream's chat state: the
// live session set, the per-session pending queues, the timestamp
// watermark, and the append-only message log. All operations funnel
// through one goroutine, so none of that state needs locking.
type Room struct {
	id       string
	cmdCh    chan roomCmd
	done     chan struct{}
	clock    clockwork.Clock
	log      domain.MessageLog
	limiters ClientFactory

	// Owned by the actor goroutine.
	sessions      map[Conn]*session
	lastTimestamp int64
	lastActivity  time.Time
}

// NewRoom constructs a room and starts its actor goroutine.
func NewRoom(id string, log domain.MessageLog, limiters ClientFactory, clock clockwork.Clock) *Room {
	r := &Room{
		id:           id,
		cmdCh:        make(chan roomCmd, commandBuffer),
		done:         make(chan struct{}),
		clock:        clock,
		log:          log,
		limiters:     limiters,
		sessions:     make(map[Conn]*session),
		lastActivity: clock.Now(),
	}
	go r.run()
	return r
}

// ID returns the room's identity string.
func (r *Room) ID() string { return r.id }

// Join registers a fresh, unidentified session for conn. The session's
// limiter is resolved for identity (the caller's IP, typically), presence
// notices for everyone already here and the most recent history are
// queued, and nothing is sent on the wire yet.
func (r *Room) Join(conn Conn, identity string) error {
	errCh := make(chan error, 1)
	if err := r.post(joinCmd{conn: conn, identity: identity, errCh: errCh}); err != nil {
		return err
	}
	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()
	select {
	case err := <-errCh:
		return err
	case <-r.done:
		return domain.ErrRoomStopped
	case <-timer.Chan():
		return fmt.Errorf("join timed out after %v", commandTimeout)
	}
}

// HandleFrame feeds one inbound frame into the room. It returns
// domain.ErrSessionUnknown when conn holds no session here, which tells
// the read pump the connection has already been reaped.
func (r *Room) HandleFrame(conn Conn, payload []byte) error {
	errCh := make(chan error, 1)
	if err := r.post(frameCmd{conn: conn, payload: payload, errCh: errCh}); err != nil {
		return err
	}
	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()
	select {
	case err := <-errCh:
		return err
	case <-r.done:
		return domain.ErrRoomStopped
	case <-timer.Chan():
		return fmt.Errorf("frame timed out after %v", commandTimeout)
	}
}

// Leave removes conn's session. Idempotent; announces the departure once
// if the session had identified.
func (r *Room) Leave(conn Conn) error {
	return r.post(leaveCmd{conn: conn})
}

// Inject broadcasts an externally built message (system, paid_prompt,
// agent_response) to the room without going through a session.
func (r *Room) Inject(payload []byte) error {
	return r.post(injectCmd{payload: payload})
}

// Store appends an externally built message to the room log without
// broadcasting it. The entry is keyed by its own timestamp field.
func (r *Room) Store(payload []byte) error {
	errCh := make(chan error, 1)
	if err := r.post(storeCmd{payload: payload, errCh: errCh}); err != nil {
		return err
	}
	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()
	select {
	case err := <-errCh:
		return err
	case <-r.done:
		return domain.ErrRoomStopped
	case <-timer.Chan():
		return fmt.Errorf("store timed out after %v", commandTimeout)
	}
}

// Backlog returns persisted chat and paid_prompt entries in ascending
// timestamp order. System and agent_response entries never appear on
// this read path.
func (r *Room) Backlog(q BacklogQuery) ([]domain.ChatMessage, error) {
	replyCh := make(chan backlogReply, 1)
	if err := r.post(backlogCmd{query: q, replyCh: replyCh}); err != nil {
		return nil, err
	}
	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()
	select {
	case reply := <-replyCh:
		return reply.messages, reply.err
	case <-r.done:
		return nil, domain.ErrRoomStopped
	case <-timer.Chan():
		return nil, fmt.Errorf("backlog query timed out after %v", commandTimeout)
	}
}

// Rehydrate rebuilds sessions from connections that survived an actor
// restart, using the metadata stamped on each connection. The handshake
// is not re-run and no ready frame is re-sent.
func (r *Room) Rehydrate(conns []Conn) error {
	doneCh := make(chan struct{})
	if err := r.post(rehydrateCmd{conns: conns, doneCh: doneCh}); err != nil {
		return err
	}
	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()
	select {
	case <-doneCh:
		return nil
	case <-r.done:
		return domain.ErrRoomStopped
	case <-timer.Chan():
		return fmt.Errorf("rehydrate timed out after %v", commandTimeout)
	}
}

// Status reports the session count and last activity time.
func (r *Room) Status() (Status, error) {
	replyCh := make(chan Status, 1)
	if err := r.post(statusCmd{replyCh: replyCh}); err != nil {
		return Status{}, err
	}
	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()
	select {
	case st := <-replyCh:
		return st, nil
	case <-r.done:
		return Status{}, domain.ErrRoomStopped
	case <-timer.Chan():
		return Status{}, fmt.Errorf("status query timed out after %v", commandTimeout)
	}
}

// Detach stops the actor and hands back its open connections, leaving
// them connected so a later Rehydrate can adopt them.
func (r *Room) Detach() ([]Conn, error) {
	replyCh := make(chan []Conn, 1)
	if err := r.post(detachCmd{replyCh: replyCh}); err != nil {
		return nil, err
	}
	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()
	select {
	case conns := <-replyCh:
		return conns, nil
	case <-r.done:
		// The actor closes done right after replying, so the reply may
		// already be buffered.
		select {
		case conns := <-replyCh:
			return conns, nil
		default:
			return nil, domain.ErrRoomStopped
		}
	case <-timer.Chan():
		return nil, fmt.Errorf("detach timed out after %v", commandTimeout)
	}
}

// Stop shuts the actor down and closes every connection with reason.
func (r *Room) Stop(reason string) {
	_ = r.post(stopCmd{reason: reason})
}

func (r *Room) post(cmd roomCmd) error {
	// The command channel is buffered, so a send can succeed even after
	// the actor has exited; check done first.
	select {
	case <-r.done:
		return domain.ErrRoomStopped
	default:
	}
	select {
	case r.cmdCh <- cmd:
		return nil
	case <-r.done:
		return domain.ErrRoomStopped
	}
}

// --- Actor loop ---

func (r *Room) run() {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("room actor panic recovered", "room_id", r.id, "panic", rec)
			r.closeAll("internal error")
		}
	}()
	defer close(r.done)

	for cmd := range r.cmdCh {
		switch c := cmd.(type) {
		case joinCmd:
			r.handleJoin(c)
		case frameCmd:
			r.handleFrame(c)
		case leaveCmd:
			r.handleLeave(c.conn)
		case injectCmd:
			r.touch()
			r.deliver(c.payload)
		case storeCmd:
			c.errCh <- r.handleStore(c.payload)
		case backlogCmd:
			msgs, err := r.handleBacklog(c.query)
			c.replyCh <- backlogReply{messages: msgs, err: err}
		case statusCmd:
			c.replyCh <- Status{Sessions: r.liveSessions(), LastActivity: r.lastActivity}
		case rehydrateCmd:
			r.handleRehydrate(c.conns)
			close(c.doneCh)
		case detachCmd:
			c.replyCh <- r.handleDetach()
			return
		case stopCmd:
			r.closeAll(c.reason)
			return
		}
	}
}

func (r *Room) touch() {
	r.lastActivity = r.clock.Now()
}

func (r *Room) handleJoin(c joinCmd) {
	r.touch()

	if len(r.sessions) >= maxSessionsPerRoom {
		c.errCh <- fmt.Errorf("room %s is full (%d sessions)", r.id, maxSessionsPerRoom)
		return
	}

	sess := &session{
		conn:            c.conn,
		limiterIdentity: c.identity,
		limiter:         r.limiters(c.identity, r.sessionErrorReporter(c.conn)),
	}
	c.conn.Stamp(Attachment{LimiterIdentity: c.identity})
	r.sessions[c.conn] = sess
	r.updateSessionsGauge()

	// Tell the newcomer who is already here, ahead of the history replay.
	for _, other := range r.sessions {
		if other == sess || !other.identified() {
			continue
		}
		sess.pending = append(sess.pending, r.encodeSystem(other.name+" is here"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	backlog, err := r.log.ListRecent(ctx, r.id, domain.BacklogReplayLimit)
	cancel()
	if err != nil {
		slog.Error("failed to load room history", "room_id", r.id, "error", err)
		metrics.RoomStorageFailuresTotal.Inc()
	} else {
		sess.pending = append(sess.pending, backlog...)
	}

	c.errCh <- nil
}

func (r *Room) handleFrame(c frameCmd) {
	sess, ok := r.sessions[c.conn]
	if !ok {
		c.errCh <- domain.ErrSessionUnknown
		return
	}
	r.touch()
	c.errCh <- nil

	if sess.closing {
		c.conn.Shutdown(websocket.CloseInternalServerErr, "websocket broken")
		delete(r.sessions, c.conn)
		return
	}

	if !sess.limiter.CheckLimit() {
		metrics.RoomRateLimitedFramesTotal.Inc()
		r.sendError(sess, "Rate limited, please slow down.")
		return
	}

	var frame domain.InboundFrame
	if err := json.Unmarshal(c.payload, &frame); err != nil {
		r.sendError(sess, "malformed frame: "+err.Error())
		return
	}

	if !sess.identified() {
		r.completeHandshake(sess, frame.Name)
		return
	}

	r.acceptChat(sess, frame.Message)
}

// completeHandshake consumes the first frame entirely: it fixes the
// session's name, drains the pending queue, announces the join to every
// identified session (the newcomer included), and acknowledges with a
// ready frame. The frame does not also count as a chat message.
func (r *Room) completeHandshake(sess *session, name string) {
	if name == "" {
		name = "anonymous"
	}
	sess.name = domain.Truncate(name, domain.MaxNameLength)

	att := sess.conn.Attachment()
	att.Name = sess.name
	sess.conn.Stamp(att)

	for i, payload := range sess.pending {
		if !sess.conn.TrySend(payload) {
			// The join was never announced, so there is no departure to
			// announce either.
			slog.Warn("session lost during pending flush",
				"room_id", r.id, "name", sess.name, "flushed", i, "queued", len(sess.pending))
			sess.pending = nil
			sess.closing = true
			delete(r.sessions, sess.conn)
			r.updateSessionsGauge()
			return
		}
	}
	sess.pending = nil

	r.deliver(r.encodeSystem(sess.name + " joined"))

	ready, _ := json.Marshal(domain.ReadyFrame{Ready: true})
	sess.conn.TrySend(ready)
}

func (r *Room) acceptChat(sess *session, body string) {
	// The watermark breaks timestamp ties so ordering stays strict even
	// when two frames land in the same millisecond or the clock skews.
	ts := r.clock.Now().UnixMilli()
	if ts <= r.lastTimestamp {
		ts = r.lastTimestamp + 1
	}
	r.lastTimestamp = ts

	msg := domain.ChatMessage{
		Kind:      domain.KindChat,
		Name:      sess.name,
		Body:      domain.Truncate(body, domain.MaxBodyLength),
		Timestamp: ts,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		r.sendError(sess, "failed to encode message: "+err.Error())
		return
	}

	// Broadcast before persisting: a storage outage degrades durability,
	// never delivery.
	r.deliver(payload)
	metrics.RoomMessagesTotal.WithLabelValues(string(domain.KindChat)).Inc()

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	if err := r.log.Append(ctx, r.id, ts, payload); err != nil {
		slog.Error("failed to persist chat message", "room_id", r.id, "timestamp", ts, "error", err)
		metrics.RoomStorageFailuresTotal.Inc()
	}
}

// deliver broadcasts payload, then announces any sessions lost during the
// sweep, repeating until no new departures are produced. Each session can
// be marked closing at most once, so this terminates.
func (r *Room) deliver(payload []byte) {
	metrics.RoomBroadcastsTotal.Inc()
	queue := [][]byte{payload}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		for _, quitter := range r.sweep(next) {
			if quitter.name != "" {
				queue = append(queue, r.encodeSystem(quitter.name+" left"))
			}
		}
	}
}

// sweep sends one message to every identified session and queues it for
// unidentified ones. Sessions that can no longer be written to are marked
// closing and returned so the caller can announce them afterwards, rather
// than mutating the set mid-iteration. A closing session stays in the map
// until its reader calls Leave, so a late frame still gets the 1011 close.
func (r *Room) sweep(payload []byte) []*session {
	var quitters []*session
	for _, sess := range r.sessions {
		if sess.closing {
			continue
		}
		if !sess.identified() {
			sess.pending = append(sess.pending, payload)
			continue
		}
		if !sess.conn.TrySend(payload) {
			sess.closing = true
			quitters = append(quitters, sess)
		}
	}
	if len(quitters) > 0 {
		r.updateSessionsGauge()
	}
	return quitters
}

func (r *Room) handleLeave(conn Conn) {
	sess, ok := r.sessions[conn]
	if !ok {
		return
	}
	r.touch()
	r.dropSession(sess)
}

// dropSession removes a session and announces its departure exactly once.
// Sessions already marked closing had their notice queued by the sweep
// that lost them.
func (r *Room) dropSession(sess *session) {
	announced := sess.closing
	sess.closing = true
	delete(r.sessions, sess.conn)
	r.updateSessionsGauge()
	if !announced && sess.name != "" {
		r.deliver(r.encodeSystem(sess.name + " left"))
	}
}

func (r *Room) handleStore(payload []byte) error {
	var entry struct {
		Timestamp int64 `json:"timestamp"`
	}
	if err := json.Unmarshal(payload, &entry); err != nil {
		return fmt.Errorf("unparseable message: %w", err)
	}
	ts := entry.Timestamp
	if ts == 0 {
		ts = r.clock.Now().UnixMilli()
	}

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	if err := r.log.Append(ctx, r.id, ts, payload); err != nil {
		metrics.RoomStorageFailuresTotal.Inc()
		return fmt.Errorf("failed to store message: %w", err)
	}
	return nil
}

func (r *Room) handleBacklog(q BacklogQuery) ([]domain.ChatMessage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultBacklogLimit
	}
	if limit > domain.BacklogReplayLimit {
		limit = domain.BacklogReplayLimit
	}

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	var (
		raw [][]byte
		err error
	)
	switch {
	case q.Since != nil:
		raw, err = r.log.ListSince(ctx, r.id, *q.Since, limit)
	case q.Before != nil:
		raw, err = r.log.ListBefore(ctx, r.id, *q.Before, limit)
	default:
		raw, err = r.log.ListRecent(ctx, r.id, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read room history: %w", err)
	}

	messages := make([]domain.ChatMessage, 0, len(raw))
	for _, payload := range raw {
		var msg domain.ChatMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			// Skip malformed entries rather than failing the page.
			continue
		}
		if msg.Kind != domain.KindChat && msg.Kind != domain.KindPaidPrompt {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (r *Room) handleRehydrate(conns []Conn) {
	for _, conn := range conns {
		att := conn.Attachment()
		if att.LimiterIdentity == "" {
			continue
		}
		r.sessions[conn] = &session{
			conn:            conn,
			name:            att.Name,
			limiterIdentity: att.LimiterIdentity,
			limiter:         r.limiters(att.LimiterIdentity, r.sessionErrorReporter(conn)),
		}
	}
	r.updateSessionsGauge()
	slog.Info("room rehydrated", "room_id", r.id, "sessions", len(r.sessions))
}

func (r *Room) handleDetach() []Conn {
	conns := make([]Conn, 0, len(r.sessions))
	for conn, sess := range r.sessions {
		if sess.closing {
			continue
		}
		conns = append(conns, conn)
	}
	r.sessions = make(map[Conn]*session)
	metrics.RoomActiveSessions.DeleteLabelValues(r.id)
	return conns
}

func (r *Room) closeAll(reason string) {
	for conn := range r.sessions {
		conn.Shutdown(websocket.CloseGoingAway, reason)
	}
	r.sessions = make(map[Conn]*session)
	metrics.RoomActiveSessions.DeleteLabelValues(r.id)
}

// sessionErrorReporter builds the fatal-error callback handed to a
// session's limiter client. A stalled or unreachable limiter tears the
// whole session down with an error code.
func (r *Room) sessionErrorReporter(conn Conn) func(error) {
	return func(err error) {
		slog.Error("rate limiter unreachable, dropping session", "room_id", r.id, "error", err)
		conn.Shutdown(websocket.CloseInternalServerErr, "rate limiter unreachable")
		_ = r.Leave(conn)
	}
}

func (r *Room) sendError(sess *session, detail string) {
	payload, _ := json.Marshal(domain.ChatMessage{
		Kind:      domain.KindSystem,
		Error:     detail,
		Timestamp: r.clock.Now().UnixMilli(),
	})
	sess.conn.TrySend(payload)
}

func (r *Room) encodeSystem(body string) []byte {
	payload, _ := json.Marshal(domain.ChatMessage{
		Kind:      domain.KindSystem,
		Body:      body,
		Timestamp: r.clock.Now().UnixMilli(),
	})
	return payload
}

// liveSessions counts sessions that can still be written to.
func (r *Room) liveSessions() int {
	n := 0
	for _, sess := range r.sessions {
		if !sess.closing {
			n++
		}
	}
	return n
}

func (r *Room) updateSessionsGauge() {
	metrics.RoomActiveSessions.WithLabelValues(r.id).Set(float64(r.liveSessions()))
}
