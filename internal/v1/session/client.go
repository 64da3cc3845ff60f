// Package session implements the realtime half of the broker: one Session
// per WebSocket connection, with an inbound frame loop, a bounded outbound
// queue drained by a write pump, and a server-driven heartbeat. Sessions
// subscribe to streams through the hub and receive event.* frames in
// publish order.
//
// Each session runs two goroutines, mirroring the classic readPump and
// writePump split:
//   - readPump parses hello/ack/pong frames and routes them
//   - writePump drains the outbound queue and owns the heartbeat ticker
//
// The outbound queue is a 256-frame buffered channel. A publisher never
// blocks on it: when the buffer is full the session is closed as a slow
// consumer and the client is expected to reconnect and backfill over HTTP.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"k8s.io/utils/set"

	"github.com/openrooms/orc-server/internal/v1/core"
	"github.com/openrooms/orc-server/internal/v1/hub"
	"github.com/openrooms/orc-server/internal/v1/logging"
	"github.com/openrooms/orc-server/internal/v1/metrics"
	"github.com/openrooms/orc-server/internal/v1/store"
	"github.com/openrooms/orc-server/internal/v1/stream"
	"github.com/openrooms/orc-server/internal/v1/types"
)

// sendBufferSize bounds the outbound queue per session.
const sendBufferSize = 256

// maxMissedPings closes the session once this many heartbeat ticks pass
// without a pong.
const maxMissedPings = 2

// writeWait bounds a single frame write on the socket.
const writeWait = 10 * time.Second

// wsConnection is the subset of *websocket.Conn the session needs; tests
// substitute a mock.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

// Session is one authenticated realtime connection.
type Session struct {
	id   types.SessionIdType
	user store.User
	conn wsConnection
	core *core.Core

	send chan []byte
	done chan struct{}

	mu          sync.Mutex
	attached    bool
	closed      bool
	closeOnce   sync.Once
	missedPings atomic.Int32

	// heartbeat is overridable in tests; defaults to core.HeartbeatInterval.
	heartbeat time.Duration
}

// newSession wires a session around an accepted connection.
func newSession(conn wsConnection, user store.User, c *core.Core) *Session {
	return &Session{
		id:        types.SessionIdType(types.NewID()),
		user:      user,
		conn:      conn,
		core:      c,
		send:      make(chan []byte, sendBufferSize),
		done:      make(chan struct{}),
		heartbeat: core.HeartbeatInterval,
	}
}

// SessionID implements hub.Subscriber.
func (s *Session) SessionID() types.SessionIdType { return s.id }

// UserID implements hub.Subscriber.
func (s *Session) UserID() types.UserIdType { return s.user.ID }

// Send queues an event frame without blocking. A full buffer means the
// client cannot keep up; the session is closed and false is returned so
// the hub drops it.
func (s *Session) Send(ev stream.Event) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		logging.Error(context.Background(), "failed to marshal event", zap.Error(err))
		return true
	}
	return s.enqueue(data)
}

// enqueue pushes a serialized frame onto the outbound queue.
func (s *Session) enqueue(data []byte) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	select {
	case s.send <- data:
		return true
	default:
		metrics.SlowConsumerDisconnects.Inc()
		logging.Warn(context.Background(), "closing slow consumer",
			zap.String("session_id", string(s.id)), zap.String("user_id", string(s.user.ID)))
		s.teardown()
		return false
	}
}

// sendJSON marshals and queues any server frame.
func (s *Session) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error(context.Background(), "failed to marshal frame", zap.Error(err))
		return
	}
	s.enqueue(data)
}

// sendReady emits the ready frame; it is sent on open and again after a
// hello so both handshake flows converge.
func (s *Session) sendReady() {
	s.sendJSON(readyFrame{
		Type:         frameReady,
		SessionID:    s.id,
		HeartbeatMS:  s.heartbeat.Milliseconds(),
		ServerTime:   types.FormatTime(time.Now()),
		Capabilities: s.core.Capabilities().Capabilities,
	})
}

// run starts both pumps. It returns immediately.
func (s *Session) run() {
	metrics.IncConnection()
	go s.writePump()
	go s.readPump()
	s.sendReady()
}

// teardown closes the session exactly once: hub detach, presence update,
// socket close, pump shutdown.
func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		wasAttached := s.attached
		s.mu.Unlock()

		s.core.Hub.Detach(s)
		if wasAttached && s.core.Hub.UserSessionCount(s.user.ID) == 0 {
			s.core.PublishPresence(s.user.ID, "offline")
		}
		close(s.done)
		_ = s.conn.Close()
		metrics.DecConnection()
		logging.Debug(context.Background(), "session closed",
			zap.String("session_id", string(s.id)), zap.String("user_id", string(s.user.ID)))
	})
}

// readPump parses inbound frames until the socket dies. A panic while
// handling a frame takes down this session only, never the server.
func (s *Session) readPump() {
	defer s.teardown()
	defer func() {
		if r := recover(); r != nil {
			logging.Error(context.Background(), "panic in session frame handler",
				zap.Any("panic", r), zap.String("session_id", string(s.id)))
		}
	}()

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.sendJSON(newErrorFrame(jsonParseError(err)))
			continue
		}
		s.route(frame)
	}
}

// route dispatches one client frame.
func (s *Session) route(frame clientFrame) {
	switch frame.Type {
	case frameHello:
		s.handleHello(frame)
	case frameAck:
		s.handleAck(frame)
	case framePong:
		s.missedPings.Store(0)
	default:
		s.sendJSON(newErrorFrame(unknownFrameError(frame.Type)))
	}
}

// handleHello resolves the requested subscriptions and attaches to the
// hub. Unknown or invisible rooms are skipped silently; the hello also
// carries optional starting cursors.
func (s *Session) handleHello(frame clientFrame) {
	rooms := set.New[types.RoomIdType]()
	dms := false
	if frame.Subscriptions != nil {
		for _, key := range frame.Subscriptions.Rooms {
			r, err := s.core.GetRoom(s.user.ID, key)
			if err != nil {
				continue
			}
			rooms.Insert(r.ID)
		}
		dms = frame.Subscriptions.DMs
	}

	s.mu.Lock()
	first := !s.attached
	s.attached = true
	s.mu.Unlock()

	s.core.Hub.Attach(s, hub.Subscriptions{Rooms: rooms, DMs: dms})
	if first && s.core.Hub.UserSessionCount(s.user.ID) == 1 {
		s.core.PublishPresence(s.user.ID, "online")
	}

	if len(frame.Cursors) > 0 {
		s.core.AckCursors(s.user.ID, frame.Cursors)
	}

	// Spec-canonical flow: the hello is answered with a fresh ready.
	s.sendReady()
}

// handleAck advances read cursors and confirms what actually moved.
func (s *Session) handleAck(frame clientFrame) {
	if len(frame.Cursors) == 0 {
		s.sendJSON(newErrorFrame(emptyAckError()))
		return
	}
	applied := s.core.AckCursors(s.user.ID, frame.Cursors)
	s.sendJSON(ackConfirmFrame{Type: frameAck, Cursors: applied})
}

// writePump drains the outbound queue and drives the heartbeat.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.heartbeat)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.teardown()
				return
			}
		case <-ticker.C:
			// The counter bumps on every tick and resets on pong; hitting
			// the limit means two cycles went unanswered.
			if s.missedPings.Add(1) >= maxMissedPings {
				metrics.HeartbeatDisconnects.Inc()
				logging.Warn(context.Background(), "closing unresponsive session",
					zap.String("session_id", string(s.id)))
				s.teardown()
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			data, _ := json.Marshal(pingFrame{Type: framePing, TS: time.Now().UnixMilli()})
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.teardown()
				return
			}
		}
	}
}
