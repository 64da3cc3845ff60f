package core

import (
	"github.com/openrooms/orc-server/internal/v1/apierr"
	"github.com/openrooms/orc-server/internal/v1/config"
	"github.com/openrooms/orc-server/internal/v1/store"
	"github.com/openrooms/orc-server/internal/v1/stream"
	"github.com/openrooms/orc-server/internal/v1/types"
)

// roomRole returns the caller's role in a room.
func (c *Core) roomRole(roomID types.RoomIdType, caller types.UserIdType) (types.RoleType, bool) {
	return c.Store.MemberRole(roomID, caller)
}

// requireRole authorizes the caller at or above the given rank.
func (c *Core) requireRole(roomID types.RoomIdType, caller types.UserIdType, min types.RoleType) error {
	role, ok := c.roomRole(roomID, caller)
	if !ok {
		return apierr.Forbidden("not a member of this room")
	}
	if !role.AtLeast(min) {
		return apierr.Forbidden("requires %s or better", min)
	}
	return nil
}

// visibleRoom resolves a room key and enforces private-room visibility.
func (c *Core) visibleRoom(key string, caller types.UserIdType) (store.Room, error) {
	r, err := c.Store.ResolveRoom(key)
	if err != nil {
		return store.Room{}, err
	}
	if r.Visibility == types.VisibilityPrivate {
		if _, member := c.roomRole(r.ID, caller); !member {
			return store.Room{}, apierr.NotFound("room %q does not exist", key)
		}
	}
	return r, nil
}

// CreateRoom creates a room owned by the caller.
func (c *Core) CreateRoom(caller types.UserIdType, name string, visibility types.VisibilityType, topic string) (store.Room, error) {
	defer timeOp("create_room")()
	return c.Store.CreateRoom(caller, name, visibility, topic)
}

// GetRoom resolves a room by name or ID, hiding private rooms from
// non-members.
func (c *Core) GetRoom(caller types.UserIdType, key string) (store.Room, error) {
	return c.visibleRoom(key, caller)
}

// RoomPatch carries the mutable room fields.
type RoomPatch struct {
	Name       *string               `json:"name"`
	Topic      *string               `json:"topic"`
	Visibility *types.VisibilityType `json:"visibility"`
}

// UpdateRoom renames or reconfigures a room. Admin or better.
func (c *Core) UpdateRoom(caller types.UserIdType, key string, patch RoomPatch) (store.Room, error) {
	r, err := c.visibleRoom(key, caller)
	if err != nil {
		return store.Room{}, err
	}
	if err := c.requireRole(r.ID, caller, types.RoleTypeAdmin); err != nil {
		return store.Room{}, err
	}
	if patch.Name != nil && *patch.Name != r.Name {
		if r, err = c.Store.RenameRoom(r.ID, *patch.Name); err != nil {
			return store.Room{}, err
		}
	}
	if patch.Topic != nil || patch.Visibility != nil {
		if r, err = c.Store.UpdateRoom(r.ID, patch.Topic, patch.Visibility); err != nil {
			return store.Room{}, err
		}
	}
	return r, nil
}

// JoinRoom adds the caller as a member. Joining again is a no-op.
func (c *Core) JoinRoom(caller types.UserIdType, key string) error {
	defer timeOp("join_room")()
	r, err := c.Store.ResolveRoom(key)
	if err != nil {
		return err
	}
	if c.Store.IsBanned(r.ID, caller) {
		return apierr.Forbidden("banned from this room")
	}
	if r.Visibility == types.VisibilityPrivate {
		if _, member := c.roomRole(r.ID, caller); !member {
			return apierr.Forbidden("this room is invite-only")
		}
		return nil
	}
	return c.Store.AddMember(r.ID, caller, types.RoleTypeMember)
}

// LeaveRoom removes the caller. What happens when the owner leaves is a
// deployment decision: forbid until transfer, or promote a successor.
func (c *Core) LeaveRoom(caller types.UserIdType, key string) error {
	r, err := c.visibleRoom(key, caller)
	if err != nil {
		return err
	}
	role, ok := c.roomRole(r.ID, caller)
	if !ok {
		return nil
	}
	if role == types.RoleTypeOwner {
		switch c.cfg.OwnerLeave {
		case config.OwnerLeavePromote:
			successor, found := c.pickSuccessor(r.ID, caller)
			if !found {
				return apierr.Conflict("the owner cannot leave an otherwise empty room")
			}
			if err := c.Store.SetRole(r.ID, successor, types.RoleTypeOwner); err != nil {
				return err
			}
		default:
			return apierr.Conflict("transfer ownership before leaving")
		}
	}
	return c.Store.RemoveMember(r.ID, caller)
}

// pickSuccessor finds the longest-standing admin, falling back to the
// longest-standing member of any role.
func (c *Core) pickSuccessor(roomID types.RoomIdType, leaving types.UserIdType) (types.UserIdType, bool) {
	members, err := c.Store.Members(roomID)
	if err != nil {
		return "", false
	}
	var fallback types.UserIdType
	for _, m := range members {
		if m.UserID == leaving {
			continue
		}
		if m.Role == types.RoleTypeAdmin {
			return m.UserID, true
		}
		if fallback == "" {
			fallback = m.UserID
		}
	}
	return fallback, fallback != ""
}

// InviteToRoom adds another user as a member. Any member may invite.
func (c *Core) InviteToRoom(caller types.UserIdType, key string, invitee types.UserIdType) error {
	r, err := c.visibleRoom(key, caller)
	if err != nil {
		return err
	}
	if err := c.requireRole(r.ID, caller, types.RoleTypeMember); err != nil {
		return err
	}
	if c.Store.IsBanned(r.ID, invitee) {
		return apierr.Forbidden("that user is banned from this room")
	}
	return c.Store.AddMember(r.ID, invitee, types.RoleTypeMember)
}

// KickFromRoom removes another member. Moderator or better, and only
// members the caller outranks.
func (c *Core) KickFromRoom(caller types.UserIdType, key string, target types.UserIdType) error {
	r, err := c.visibleRoom(key, caller)
	if err != nil {
		return err
	}
	if err := c.requireRole(r.ID, caller, types.RoleTypeModerator); err != nil {
		return err
	}
	callerRole, _ := c.roomRole(r.ID, caller)
	if targetRole, ok := c.roomRole(r.ID, target); ok && targetRole.AtLeast(callerRole) && caller != target {
		return apierr.Forbidden("cannot kick a member of equal or higher rank")
	}
	return c.Store.RemoveMember(r.ID, target)
}

// SetBan bans or unbans a user. Admin or better; a ban also kicks.
func (c *Core) SetBan(caller types.UserIdType, key string, target types.UserIdType, banned bool) error {
	r, err := c.visibleRoom(key, caller)
	if err != nil {
		return err
	}
	if err := c.requireRole(r.ID, caller, types.RoleTypeAdmin); err != nil {
		return err
	}
	if targetRole, ok := c.roomRole(r.ID, target); ok && targetRole == types.RoleTypeOwner {
		return apierr.Forbidden("the owner cannot be banned")
	}
	return c.Store.SetBanned(r.ID, target, banned)
}

// SetMute mutes or unmutes a user. Moderator or better.
func (c *Core) SetMute(caller types.UserIdType, key string, target types.UserIdType, muted bool) error {
	r, err := c.visibleRoom(key, caller)
	if err != nil {
		return err
	}
	if err := c.requireRole(r.ID, caller, types.RoleTypeModerator); err != nil {
		return err
	}
	if targetRole, ok := c.roomRole(r.ID, target); ok && targetRole.AtLeast(types.RoleTypeModerator) {
		return apierr.Forbidden("cannot mute a moderator or better")
	}
	return c.Store.SetMuted(r.ID, target, muted)
}

// SetRole changes a member's role. Admin or better; only the owner may
// assign the owner role (which transfers ownership).
func (c *Core) SetRole(caller types.UserIdType, key string, target types.UserIdType, role types.RoleType) error {
	r, err := c.visibleRoom(key, caller)
	if err != nil {
		return err
	}
	if err := c.requireRole(r.ID, caller, types.RoleTypeAdmin); err != nil {
		return err
	}
	if role == types.RoleTypeOwner && caller != r.OwnerID {
		return apierr.Forbidden("only the owner may assign ownership")
	}
	return c.Store.SetRole(r.ID, target, role)
}

// RoomMembers lists a room's members, join order first.
func (c *Core) RoomMembers(caller types.UserIdType, key string) ([]store.Member, error) {
	r, err := c.visibleRoom(key, caller)
	if err != nil {
		return nil, err
	}
	return c.Store.Members(r.ID)
}

// PinMessage pins a room message and fans out event.pin.add. Moderator or
// better; the message must live in this room's stream.
func (c *Core) PinMessage(caller types.UserIdType, key string, messageID types.MessageIdType) error {
	r, err := c.visibleRoom(key, caller)
	if err != nil {
		return err
	}
	if err := c.requireRole(r.ID, caller, types.RoleTypeModerator); err != nil {
		return err
	}
	scope, ok := c.Streams.ScopeOf(messageID)
	if !ok || scope.RoomID != r.ID {
		return apierr.NotFound("message %s is not in this room", messageID)
	}
	if err := c.Store.PinMessage(r.ID, messageID); err != nil {
		return err
	}
	c.Hub.Publish(stream.Event{
		Type:      stream.EventPinAdd,
		RoomID:    r.ID,
		MessageID: messageID,
		Scope:     stream.RoomScope(r.ID),
	})
	return nil
}

// UnpinMessage removes a pin and fans out event.pin.remove.
func (c *Core) UnpinMessage(caller types.UserIdType, key string, messageID types.MessageIdType) error {
	r, err := c.visibleRoom(key, caller)
	if err != nil {
		return err
	}
	if err := c.requireRole(r.ID, caller, types.RoleTypeModerator); err != nil {
		return err
	}
	if err := c.Store.UnpinMessage(r.ID, messageID); err != nil {
		return err
	}
	c.Hub.Publish(stream.Event{
		Type:      stream.EventPinRemove,
		RoomID:    r.ID,
		MessageID: messageID,
		Scope:     stream.RoomScope(r.ID),
	})
	return nil
}
