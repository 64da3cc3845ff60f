package core

import (
	"strings"

	"github.com/openrooms/orc-server/internal/v1/apierr"
	"github.com/openrooms/orc-server/internal/v1/stream"
	"github.com/openrooms/orc-server/internal/v1/types"
)

// PostRequest is the body of a message post.
type PostRequest struct {
	Text        string              `json:"text"`
	ContentType string              `json:"content_type"`
	ParentID    types.MessageIdType `json:"parent_id"`
	Attachments []stream.Attachment `json:"attachments"`
}

// PostToRoom appends a message to a room stream and fans it out.
func (c *Core) PostToRoom(caller types.UserIdType, key string, req PostRequest) (stream.Message, error) {
	defer timeOp("post")()
	r, err := c.visibleRoom(key, caller)
	if err != nil {
		return stream.Message{}, err
	}
	if _, member := c.roomRole(r.ID, caller); !member {
		return stream.Message{}, apierr.Forbidden("join the room before posting")
	}
	if c.Store.IsMuted(r.ID, caller) {
		return stream.Message{}, apierr.Forbidden("you are muted in this room")
	}

	ev, err := c.Streams.Post(stream.RoomScope(r.ID), caller, req.Text, req.ContentType, req.ParentID, req.Attachments, c.Hub.Publish)
	if err != nil {
		return stream.Message{}, err
	}
	return *ev.Message, nil
}

// PostToDM appends a message to the caller's DM stream with peer.
func (c *Core) PostToDM(caller, peer types.UserIdType, req PostRequest) (stream.Message, error) {
	defer timeOp("post_dm")()
	if _, err := c.Store.GetUser(peer); err != nil {
		return stream.Message{}, err
	}

	ev, err := c.Streams.Post(stream.DMScope(caller, peer), caller, req.Text, req.ContentType, req.ParentID, req.Attachments, c.Hub.Publish)
	if err != nil {
		return stream.Message{}, err
	}
	return *ev.Message, nil
}

// EditMessage updates a message's text or attachments. Author only.
func (c *Core) EditMessage(caller types.UserIdType, id types.MessageIdType, text *string, attachments []stream.Attachment) (stream.Message, error) {
	defer timeOp("edit")()
	ev, err := c.Streams.Edit(id, caller, text, attachments, c.Hub.Publish)
	if err != nil {
		return stream.Message{}, err
	}
	return *ev.Message, nil
}

// DeleteMessage tombstones a message. The author may always delete; in a
// room stream, moderators and better may purge.
func (c *Core) DeleteMessage(caller types.UserIdType, id types.MessageIdType, reason string) error {
	defer timeOp("delete")()
	scope, ok := c.Streams.ScopeOf(id)
	if !ok {
		return apierr.NotFound("message %s does not exist", id)
	}
	allowModerate := false
	if !scope.IsDM() {
		if role, member := c.roomRole(scope.RoomID, caller); member {
			allowModerate = role.AtLeast(types.RoleTypeModerator)
		}
	}
	_, err := c.Streams.Tombstone(id, caller, allowModerate, reason, c.Hub.Publish)
	return err
}

// React adds or removes a reaction. The caller must be able to see the
// message: a member of the room, or one end of the DM pair.
func (c *Core) React(caller types.UserIdType, id types.MessageIdType, emoji string, add bool) (stream.Message, error) {
	defer timeOp("react")()
	scope, ok := c.Streams.ScopeOf(id)
	if !ok {
		return stream.Message{}, apierr.NotFound("message %s does not exist", id)
	}
	if scope.IsDM() {
		if caller != scope.DMA && caller != scope.DMB {
			return stream.Message{}, apierr.NotFound("message %s does not exist", id)
		}
	} else if _, member := c.roomRole(scope.RoomID, caller); !member {
		return stream.Message{}, apierr.Forbidden("not a member of this room")
	}

	if _, err := c.Streams.React(id, caller, emoji, add, c.Hub.Publish); err != nil {
		return stream.Message{}, err
	}
	return c.Streams.GetMessage(id, caller)
}

// GetMessage returns one message if the caller may see it.
func (c *Core) GetMessage(caller types.UserIdType, id types.MessageIdType) (stream.Message, error) {
	scope, ok := c.Streams.ScopeOf(id)
	if !ok {
		return stream.Message{}, apierr.NotFound("message %s does not exist", id)
	}
	if scope.IsDM() && caller != scope.DMA && caller != scope.DMB {
		return stream.Message{}, apierr.NotFound("message %s does not exist", id)
	}
	return c.Streams.GetMessage(id, caller)
}

// roomReadScope authorizes a read on a room stream.
func (c *Core) roomReadScope(caller types.UserIdType, key string) (stream.Scope, error) {
	r, err := c.visibleRoom(key, caller)
	if err != nil {
		return stream.Scope{}, err
	}
	return stream.RoomScope(r.ID), nil
}

// RoomMessages is the forward read over a room stream.
func (c *Core) RoomMessages(caller types.UserIdType, key string, fromSeq uint64, limit int) ([]stream.Message, uint64, error) {
	scope, err := c.roomReadScope(caller, key)
	if err != nil {
		return nil, 0, err
	}
	return c.Streams.ForwardRead(scope, fromSeq, limit, caller)
}

// RoomBackfill is the reverse read over a room stream.
func (c *Core) RoomBackfill(caller types.UserIdType, key string, beforeSeq uint64, limit int) ([]stream.Message, uint64, error) {
	scope, err := c.roomReadScope(caller, key)
	if err != nil {
		return nil, 0, err
	}
	return c.Streams.BackfillRead(scope, beforeSeq, limit, caller)
}

// AckRoom advances the caller's cursor in a room stream.
func (c *Core) AckRoom(caller types.UserIdType, key string, seq uint64) error {
	scope, err := c.roomReadScope(caller, key)
	if err != nil {
		return err
	}
	c.Streams.SetCursor(scope, caller, seq)
	return nil
}

// RoomCursor reads the caller's cursor in a room stream.
func (c *Core) RoomCursor(caller types.UserIdType, key string) (uint64, error) {
	scope, err := c.roomReadScope(caller, key)
	if err != nil {
		return 0, err
	}
	return c.Streams.GetCursor(scope, caller), nil
}

// DMMessages is the forward read over a DM stream.
func (c *Core) DMMessages(caller, peer types.UserIdType, fromSeq uint64, limit int) ([]stream.Message, uint64, error) {
	return c.Streams.ForwardRead(stream.DMScope(caller, peer), fromSeq, limit, caller)
}

// DMBackfill is the reverse read over a DM stream.
func (c *Core) DMBackfill(caller, peer types.UserIdType, beforeSeq uint64, limit int) ([]stream.Message, uint64, error) {
	return c.Streams.BackfillRead(stream.DMScope(caller, peer), beforeSeq, limit, caller)
}

// AckDM advances the caller's cursor in a DM stream.
func (c *Core) AckDM(caller, peer types.UserIdType, seq uint64) {
	c.Streams.SetCursor(stream.DMScope(caller, peer), caller, seq)
}

// DMCursor reads the caller's cursor in a DM stream.
func (c *Core) DMCursor(caller, peer types.UserIdType) uint64 {
	return c.Streams.GetCursor(stream.DMScope(caller, peer), caller)
}

// AckCursors applies a WS ack frame's cursor map. Keys are
// "room:<name-or-id>" or "dm:<user_id>". It returns the accepted cursors
// under normalized keys ("room:<name>"), per the protocol's outbound form.
func (c *Core) AckCursors(caller types.UserIdType, cursors map[string]uint64) map[string]uint64 {
	applied := make(map[string]uint64, len(cursors))
	for key, seq := range cursors {
		switch {
		case strings.HasPrefix(key, "room:"):
			r, err := c.Store.ResolveRoom(strings.TrimPrefix(key, "room:"))
			if err != nil {
				continue
			}
			if _, member := c.roomRole(r.ID, caller); !member {
				continue
			}
			c.Streams.SetCursor(stream.RoomScope(r.ID), caller, seq)
			applied["room:"+r.Name] = c.Streams.GetCursor(stream.RoomScope(r.ID), caller)
		case strings.HasPrefix(key, "dm:"):
			peer := types.UserIdType(strings.TrimPrefix(key, "dm:"))
			if _, err := c.Store.GetUser(peer); err != nil {
				continue
			}
			c.AckDM(caller, peer, seq)
			applied["dm:"+string(peer)] = c.DMCursor(caller, peer)
		}
	}
	return applied
}

// Typing publishes a typing indicator; it never mutates stream state.
func (c *Core) Typing(caller types.UserIdType, key string, state string) error {
	if state != "start" && state != "stop" {
		return apierr.BadRequest("state must be start or stop")
	}
	r, err := c.visibleRoom(key, caller)
	if err != nil {
		return err
	}
	if _, member := c.roomRole(r.ID, caller); !member {
		return apierr.Forbidden("not a member of this room")
	}
	c.Hub.Publish(stream.Event{
		Type:   stream.EventTyping,
		RoomID: r.ID,
		UserID: caller,
		State:  state,
		Scope:  stream.RoomScope(r.ID),
	})
	return nil
}

// TypingDM publishes a typing indicator on a DM stream.
func (c *Core) TypingDM(caller, peer types.UserIdType, state string) error {
	if state != "start" && state != "stop" {
		return apierr.BadRequest("state must be start or stop")
	}
	if _, err := c.Store.GetUser(peer); err != nil {
		return err
	}
	c.Hub.Publish(stream.Event{
		Type:     stream.EventTyping,
		DMPeerID: peer,
		UserID:   caller,
		State:    state,
		Scope:    stream.DMScope(caller, peer),
	})
	return nil
}

// PublishPresence announces a user's state to every room they belong to.
// The realtime layer calls this on first attach and last detach.
func (c *Core) PublishPresence(userID types.UserIdType, state string) {
	for _, roomID := range c.Store.MemberRooms(userID) {
		c.Hub.Publish(stream.Event{
			Type:   stream.EventPresence,
			RoomID: roomID,
			UserID: userID,
			State:  state,
			Scope:  stream.RoomScope(roomID),
		})
	}
}
