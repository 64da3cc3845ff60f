// Package hub indexes live realtime sessions by room and by DM user and
// fans events out to them. The indexes sit behind a single mutex; fan-out
// iterates a snapshot so a slow send never holds the lock. A failed send
// tears the failing session out of every index without affecting delivery
// to the others.
package hub

import (
	"context"
	"sync"

	"k8s.io/utils/set"

	"github.com/openrooms/orc-server/internal/v1/logging"
	"github.com/openrooms/orc-server/internal/v1/metrics"
	"github.com/openrooms/orc-server/internal/v1/stream"
	"github.com/openrooms/orc-server/internal/v1/types"
)

// Subscriber is one realtime session as seen by the hub.
type Subscriber interface {
	SessionID() types.SessionIdType
	UserID() types.UserIdType
	// Send queues a serialized event without blocking. It returns false
	// when the session can no longer accept frames; the hub responds by
	// detaching it.
	Send(ev stream.Event) bool
}

// Subscriptions is what a session asks to receive.
type Subscriptions struct {
	Rooms set.Set[types.RoomIdType]
	DMs   bool
}

// Hub routes events to subscribed sessions.
type Hub struct {
	mu       sync.Mutex
	byRoom   map[types.RoomIdType]map[types.SessionIdType]Subscriber
	byDMUser map[types.UserIdType]map[types.SessionIdType]Subscriber
	sessions map[types.SessionIdType]Subscriber
	roomsOf  map[types.SessionIdType]set.Set[types.RoomIdType]
	dmsOf    map[types.SessionIdType]bool
}

// New returns an empty hub.
func New() *Hub {
	return &Hub{
		byRoom:   make(map[types.RoomIdType]map[types.SessionIdType]Subscriber),
		byDMUser: make(map[types.UserIdType]map[types.SessionIdType]Subscriber),
		sessions: make(map[types.SessionIdType]Subscriber),
		roomsOf:  make(map[types.SessionIdType]set.Set[types.RoomIdType]),
		dmsOf:    make(map[types.SessionIdType]bool),
	}
}

// Attach registers or updates a session's subscriptions atomically.
// Rooms absent from the new set are dropped; re-entering is idempotent.
func (h *Hub) Attach(sub Subscriber, subs Subscriptions) {
	sid := sub.SessionID()
	if subs.Rooms == nil {
		subs.Rooms = set.New[types.RoomIdType]()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.sessions[sid] = sub

	previous := h.roomsOf[sid]
	for roomID := range previous {
		if !subs.Rooms.Has(roomID) {
			h.removeFromRoomLocked(roomID, sid)
		}
	}
	for roomID := range subs.Rooms {
		members, ok := h.byRoom[roomID]
		if !ok {
			members = make(map[types.SessionIdType]Subscriber)
			h.byRoom[roomID] = members
		}
		members[sid] = sub
		metrics.RoomSubscriptions.WithLabelValues(string(roomID)).Set(float64(len(members)))
	}
	h.roomsOf[sid] = subs.Rooms.Clone()

	uid := sub.UserID()
	if subs.DMs {
		peers, ok := h.byDMUser[uid]
		if !ok {
			peers = make(map[types.SessionIdType]Subscriber)
			h.byDMUser[uid] = peers
		}
		peers[sid] = sub
	} else if h.dmsOf[sid] {
		h.removeFromDMLocked(uid, sid)
	}
	h.dmsOf[sid] = subs.DMs
}

// Detach removes the session from every index. Detaching an unknown
// session is a no-op.
func (h *Hub) Detach(sub Subscriber) {
	sid := sub.SessionID()

	h.mu.Lock()
	defer h.mu.Unlock()

	for roomID := range h.roomsOf[sid] {
		h.removeFromRoomLocked(roomID, sid)
	}
	if h.dmsOf[sid] {
		h.removeFromDMLocked(sub.UserID(), sid)
	}
	delete(h.roomsOf, sid)
	delete(h.dmsOf, sid)
	delete(h.sessions, sid)
}

func (h *Hub) removeFromRoomLocked(roomID types.RoomIdType, sid types.SessionIdType) {
	members, ok := h.byRoom[roomID]
	if !ok {
		return
	}
	delete(members, sid)
	metrics.RoomSubscriptions.WithLabelValues(string(roomID)).Set(float64(len(members)))
	if len(members) == 0 {
		delete(h.byRoom, roomID)
		metrics.RoomSubscriptions.DeleteLabelValues(string(roomID))
	}
}

func (h *Hub) removeFromDMLocked(uid types.UserIdType, sid types.SessionIdType) {
	peers, ok := h.byDMUser[uid]
	if !ok {
		return
	}
	delete(peers, sid)
	if len(peers) == 0 {
		delete(h.byDMUser, uid)
	}
}

// Publish fans an event out to every session in its scope. Room events go
// to the room's subscribers; DM events go to both endpoints' DM-enrolled
// sessions. Failed sends detach the failing session only.
func (h *Hub) Publish(ev stream.Event) {
	var targets []Subscriber

	h.mu.Lock()
	if ev.Scope.IsDM() {
		seen := set.New[types.SessionIdType]()
		for _, uid := range []types.UserIdType{ev.Scope.DMA, ev.Scope.DMB} {
			for sid, sub := range h.byDMUser[uid] {
				if !seen.Has(sid) {
					seen.Insert(sid)
					targets = append(targets, sub)
				}
			}
		}
	} else {
		for _, sub := range h.byRoom[ev.Scope.RoomID] {
			targets = append(targets, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range targets {
		if sub.Send(ev) {
			metrics.FanoutFrames.WithLabelValues(ev.Type).Inc()
			continue
		}
		logging.Warn(context.Background(), "dropping dead session from hub")
		h.Detach(sub)
	}
}

// SessionCount returns the number of attached sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// RoomSessionCount returns the number of sessions subscribed to a room.
func (h *Hub) RoomSessionCount(roomID types.RoomIdType) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.byRoom[roomID])
}

// DMSessionCount returns the number of sessions enrolled for a user's DMs.
func (h *Hub) DMSessionCount(uid types.UserIdType) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.byDMUser[uid])
}

// UserSessionCount returns how many attached sessions belong to a user.
func (h *Hub) UserSessionCount(uid types.UserIdType) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, sub := range h.sessions {
		if sub.UserID() == uid {
			n++
		}
	}
	return n
}
