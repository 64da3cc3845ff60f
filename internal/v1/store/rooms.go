package store

import (
	"strings"

	"github.com/openrooms/orc-server/internal/v1/apierr"
	"github.com/openrooms/orc-server/internal/v1/types"
)

func validateRoomName(name string) error {
	if n := len(name); n < 1 || n > 80 {
		return apierr.BadRequest("room name must be 1..80 characters")
	}
	if strings.ContainsAny(name, "/\x00") {
		return apierr.BadRequest("room name contains forbidden characters")
	}
	return nil
}

// snapshot copies the room with its derived member count.
func (rs *roomState) snapshot() Room {
	r := rs.room
	r.MemberCount = len(rs.members)
	r.PinnedMessageIDs = append([]types.MessageIdType(nil), rs.room.PinnedMessageIDs...)
	return r
}

// CreateRoom registers a room and its owner membership. Fails with conflict
// if the case-folded name is already taken.
func (s *Store) CreateRoom(owner types.UserIdType, name string, visibility types.VisibilityType, topic string) (Room, error) {
	if err := validateRoomName(name); err != nil {
		return Room{}, err
	}
	if !visibility.Valid() {
		return Room{}, apierr.BadRequest("visibility must be public or private")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usersByID[owner]; !ok {
		return Room{}, apierr.NotFound("user %s does not exist", owner)
	}
	low := strings.ToLower(name)
	if _, taken := s.roomsByNameLow[low]; taken {
		return Room{}, apierr.Conflict("room name %q already exists", name)
	}

	now := s.clock.Now()
	rs := &roomState{
		room: Room{
			ID:         types.RoomIdType(types.NewID()),
			Name:       name,
			Topic:      topic,
			Visibility: visibility,
			OwnerID:    owner,
			CreatedAt:  types.FormatTime(now),
		},
		members: map[types.UserIdType]*Member{
			owner: {UserID: owner, Role: types.RoleTypeOwner, JoinedAt: now},
		},
		banned: make(map[types.UserIdType]bool),
		muted:  make(map[types.UserIdType]bool),
	}
	s.roomsByID[rs.room.ID] = rs
	s.roomsByNameLow[low] = rs.room.ID
	return rs.snapshot(), nil
}

// GetRoom returns a snapshot of the room.
func (s *Store) GetRoom(id types.RoomIdType) (Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.roomsByID[id]
	if !ok {
		return Room{}, apierr.NotFound("room %s does not exist", id)
	}
	return rs.snapshot(), nil
}

// GetRoomByName resolves a room by case-insensitive name.
func (s *Store) GetRoomByName(name string) (Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.roomsByNameLow[strings.ToLower(name)]
	if !ok {
		return Room{}, apierr.NotFound("room %q does not exist", name)
	}
	return s.roomsByID[id].snapshot(), nil
}

// ResolveRoom accepts either a room name or a room ID. Names win; IDs are
// only consulted for keys within the Base32 alphabet.
func (s *Store) ResolveRoom(key string) (Room, error) {
	if r, err := s.GetRoomByName(key); err == nil {
		return r, nil
	}
	if types.IsID(key) {
		if r, err := s.GetRoom(types.RoomIdType(key)); err == nil {
			return r, nil
		}
	}
	return Room{}, apierr.NotFound("room %q does not exist", key)
}

// RenameRoom moves the name index entry atomically, rechecking uniqueness.
func (s *Store) RenameRoom(id types.RoomIdType, newName string) (Room, error) {
	if err := validateRoomName(newName); err != nil {
		return Room{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.roomsByID[id]
	if !ok {
		return Room{}, apierr.NotFound("room %s does not exist", id)
	}
	newLow := strings.ToLower(newName)
	oldLow := strings.ToLower(rs.room.Name)
	if existing, taken := s.roomsByNameLow[newLow]; taken && existing != id {
		return Room{}, apierr.Conflict("room name %q already exists", newName)
	}
	delete(s.roomsByNameLow, oldLow)
	s.roomsByNameLow[newLow] = id
	rs.room.Name = newName
	return rs.snapshot(), nil
}

// UpdateRoom sets topic and/or visibility. Nil fields are left as is.
func (s *Store) UpdateRoom(id types.RoomIdType, topic *string, visibility *types.VisibilityType) (Room, error) {
	if visibility != nil && !visibility.Valid() {
		return Room{}, apierr.BadRequest("visibility must be public or private")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.roomsByID[id]
	if !ok {
		return Room{}, apierr.NotFound("room %s does not exist", id)
	}
	if topic != nil {
		rs.room.Topic = *topic
	}
	if visibility != nil {
		rs.room.Visibility = *visibility
	}
	return rs.snapshot(), nil
}

// SearchRooms returns up to limit public rooms whose name or topic contains
// q, case-insensitively.
func (s *Store) SearchRooms(q string, limit int) []Room {
	q = strings.ToLower(q)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Room, 0)
	for _, rs := range s.roomsByID {
		if limit > 0 && len(out) >= limit {
			break
		}
		if rs.room.Visibility != types.VisibilityPublic {
			continue
		}
		if q == "" ||
			strings.Contains(strings.ToLower(rs.room.Name), q) ||
			strings.Contains(strings.ToLower(rs.room.Topic), q) {
			out = append(out, rs.snapshot())
		}
	}
	return out
}

// RoomCount returns the number of rooms.
func (s *Store) RoomCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.roomsByID)
}

// --- Membership ---

// AddMember adds a user to a room. Re-adding is a no-op that preserves the
// existing role.
func (s *Store) AddMember(roomID types.RoomIdType, userID types.UserIdType, role types.RoleType) error {
	if !role.Valid() {
		return apierr.BadRequest("unknown role %q", role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.roomsByID[roomID]
	if !ok {
		return apierr.NotFound("room %s does not exist", roomID)
	}
	if _, ok := s.usersByID[userID]; !ok {
		return apierr.NotFound("user %s does not exist", userID)
	}
	if _, already := rs.members[userID]; already {
		return nil
	}
	rs.members[userID] = &Member{UserID: userID, Role: role, JoinedAt: s.clock.Now()}
	return nil
}

// RemoveMember drops a user from a room; removing a non-member is a no-op.
func (s *Store) RemoveMember(roomID types.RoomIdType, userID types.UserIdType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.roomsByID[roomID]
	if !ok {
		return apierr.NotFound("room %s does not exist", roomID)
	}
	delete(rs.members, userID)
	return nil
}

// SetRole changes a member's role. Assigning owner transfers ownership: the
// previous owner is demoted to admin so exactly one owner remains.
func (s *Store) SetRole(roomID types.RoomIdType, userID types.UserIdType, role types.RoleType) error {
	if !role.Valid() {
		return apierr.BadRequest("unknown role %q", role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.roomsByID[roomID]
	if !ok {
		return apierr.NotFound("room %s does not exist", roomID)
	}
	m, ok := rs.members[userID]
	if !ok {
		return apierr.NotFound("user %s is not a member of the room", userID)
	}
	if role == types.RoleTypeOwner {
		if prev, ok := rs.members[rs.room.OwnerID]; ok && rs.room.OwnerID != userID {
			prev.Role = types.RoleTypeAdmin
		}
		rs.room.OwnerID = userID
	} else if userID == rs.room.OwnerID {
		return apierr.Conflict("the owner role must be transferred, not dropped")
	}
	m.Role = role
	return nil
}

// MemberRole returns the user's role in the room.
func (s *Store) MemberRole(roomID types.RoomIdType, userID types.UserIdType) (types.RoleType, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.roomsByID[roomID]
	if !ok {
		return "", false
	}
	m, ok := rs.members[userID]
	if !ok {
		return "", false
	}
	return m.Role, true
}

// Members returns the room's members ordered by join time.
func (s *Store) Members(roomID types.RoomIdType) ([]Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.roomsByID[roomID]
	if !ok {
		return nil, apierr.NotFound("room %s does not exist", roomID)
	}
	out := make([]Member, 0, len(rs.members))
	for _, m := range rs.members {
		out = append(out, *m)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].JoinedAt.Before(out[j-1].JoinedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

// MemberRooms returns the IDs of every room the user belongs to.
func (s *Store) MemberRooms(userID types.UserIdType) []types.RoomIdType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.RoomIdType
	for id, rs := range s.roomsByID {
		if _, ok := rs.members[userID]; ok {
			out = append(out, id)
		}
	}
	return out
}

// --- Moderation ---

// SetBanned adds or removes a user from the room's ban set.
func (s *Store) SetBanned(roomID types.RoomIdType, userID types.UserIdType, banned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.roomsByID[roomID]
	if !ok {
		return apierr.NotFound("room %s does not exist", roomID)
	}
	if banned {
		rs.banned[userID] = true
		delete(rs.members, userID)
	} else {
		delete(rs.banned, userID)
	}
	return nil
}

// IsBanned reports whether the user is banned from the room.
func (s *Store) IsBanned(roomID types.RoomIdType, userID types.UserIdType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.roomsByID[roomID]
	return ok && rs.banned[userID]
}

// SetMuted adds or removes a user from the room's mute set.
func (s *Store) SetMuted(roomID types.RoomIdType, userID types.UserIdType, muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.roomsByID[roomID]
	if !ok {
		return apierr.NotFound("room %s does not exist", roomID)
	}
	if muted {
		rs.muted[userID] = true
	} else {
		delete(rs.muted, userID)
	}
	return nil
}

// IsMuted reports whether the user is muted in the room.
func (s *Store) IsMuted(roomID types.RoomIdType, userID types.UserIdType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.roomsByID[roomID]
	return ok && rs.muted[userID]
}

// --- Pins ---

// PinMessage appends a message to the room's pin list; pinning an already
// pinned message is a no-op.
func (s *Store) PinMessage(roomID types.RoomIdType, messageID types.MessageIdType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.roomsByID[roomID]
	if !ok {
		return apierr.NotFound("room %s does not exist", roomID)
	}
	for _, id := range rs.room.PinnedMessageIDs {
		if id == messageID {
			return nil
		}
	}
	rs.room.PinnedMessageIDs = append(rs.room.PinnedMessageIDs, messageID)
	return nil
}

// UnpinMessage removes a message from the room's pin list.
func (s *Store) UnpinMessage(roomID types.RoomIdType, messageID types.MessageIdType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.roomsByID[roomID]
	if !ok {
		return apierr.NotFound("room %s does not exist", roomID)
	}
	pins := rs.room.PinnedMessageIDs
	for i, id := range pins {
		if id == messageID {
			rs.room.PinnedMessageIDs = append(pins[:i:i], pins[i+1:]...)
			return nil
		}
	}
	return nil
}
