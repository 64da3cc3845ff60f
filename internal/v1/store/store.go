// Package store implements the authoritative entity mappings of the broker:
// users, rooms with case-insensitive unique names, memberships and roles,
// moderation sets, and content-addressed uploads. All state is in memory;
// every reader receives a copy that is safe to serialize without holding
// any lock.
package store

import (
	"strings"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/openrooms/orc-server/internal/v1/apierr"
	"github.com/openrooms/orc-server/internal/v1/types"
)

// User is a chat account. UserID is immutable; everything else is mutable
// by the owning user.
type User struct {
	ID          types.UserIdType      `json:"user_id"`
	DisplayName types.DisplayNameType `json:"display_name"`
	PhotoCID    types.CidType         `json:"photo_cid,omitempty"`
	Bio         string                `json:"bio,omitempty"`
	StatusText  string                `json:"status_text,omitempty"`
	StatusEmoji string                `json:"status_emoji,omitempty"`
}

// UserPatch carries the mutable profile fields; nil means "leave as is".
type UserPatch struct {
	DisplayName *string `json:"display_name"`
	PhotoCID    *string `json:"photo_cid"`
	Bio         *string `json:"bio"`
	StatusText  *string `json:"status_text"`
	StatusEmoji *string `json:"status_emoji"`
}

// Room is a named message container. Name is globally unique ignoring
// case; the stored casing is preserved.
type Room struct {
	ID               types.RoomIdType      `json:"room_id"`
	Name             string                `json:"name"`
	Topic            string                `json:"topic"`
	Visibility       types.VisibilityType  `json:"visibility"`
	OwnerID          types.UserIdType      `json:"owner_id"`
	CreatedAt        string                `json:"created_at"`
	MemberCount      int                   `json:"member_count"`
	PinnedMessageIDs []types.MessageIdType `json:"pinned_message_ids"`
}

// Member is one user's membership in a room.
type Member struct {
	UserID   types.UserIdType `json:"user_id"`
	Role     types.RoleType   `json:"role"`
	JoinedAt time.Time        `json:"-"`
}

type roomState struct {
	room    Room
	members map[types.UserIdType]*Member
	banned  map[types.UserIdType]bool
	muted   map[types.UserIdType]bool
}

// Store holds every entity index behind one read-write lock; reads vastly
// dominate writes.
type Store struct {
	mu             sync.RWMutex
	usersByID      map[types.UserIdType]*User
	usersByNameLow map[string]types.UserIdType
	roomsByID      map[types.RoomIdType]*roomState
	roomsByNameLow map[string]types.RoomIdType
	uploadsByCID   map[types.CidType]*Upload
	blobsByCID     map[types.CidType][]byte
	maxUploadBytes int64
	clock          clock.PassiveClock
}

// New returns an empty store with the given upload size limit.
func New(maxUploadBytes int64) *Store {
	return NewWithClock(maxUploadBytes, clock.RealClock{})
}

// NewWithClock returns a store with an injected clock for tests.
func NewWithClock(maxUploadBytes int64, c clock.PassiveClock) *Store {
	return &Store{
		usersByID:      make(map[types.UserIdType]*User),
		usersByNameLow: make(map[string]types.UserIdType),
		roomsByID:      make(map[types.RoomIdType]*roomState),
		roomsByNameLow: make(map[string]types.RoomIdType),
		uploadsByCID:   make(map[types.CidType]*Upload),
		blobsByCID:     make(map[types.CidType][]byte),
		maxUploadBytes: maxUploadBytes,
		clock:          c,
	}
}

// --- Users ---

func validateDisplayName(name string) error {
	if n := len(name); n < 1 || n > 128 {
		return apierr.BadRequest("display_name must be 1..128 characters")
	}
	return nil
}

// EnsureGuest looks up a user by name or creates one. Guest logins with the
// same username resolve to the same account.
func (s *Store) EnsureGuest(username string) (User, error) {
	if username == "" {
		username = "guest-" + types.NewID()[:8]
	}
	if err := validateDisplayName(username); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.usersByNameLow[strings.ToLower(username)]; ok {
		return *s.usersByID[id], nil
	}
	u := &User{
		ID:          types.UserIdType(types.NewID()),
		DisplayName: types.DisplayNameType(username),
	}
	s.usersByID[u.ID] = u
	s.usersByNameLow[strings.ToLower(username)] = u.ID
	return *u, nil
}

// GetUser returns a snapshot of the user.
func (s *Store) GetUser(id types.UserIdType) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.usersByID[id]
	if !ok {
		return User{}, apierr.NotFound("user %s does not exist", id)
	}
	return *u, nil
}

// UpdateUser applies a profile patch. Validation failures mutate nothing.
func (s *Store) UpdateUser(id types.UserIdType, patch UserPatch) (User, error) {
	if patch.DisplayName != nil {
		if err := validateDisplayName(*patch.DisplayName); err != nil {
			return User{}, err
		}
	}
	if patch.Bio != nil && len(*patch.Bio) > 1024 {
		return User{}, apierr.BadRequest("bio must be at most 1024 characters")
	}
	if patch.StatusText != nil && len(*patch.StatusText) > 80 {
		return User{}, apierr.BadRequest("status_text must be at most 80 characters")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.usersByID[id]
	if !ok {
		return User{}, apierr.NotFound("user %s does not exist", id)
	}
	if patch.DisplayName != nil {
		delete(s.usersByNameLow, strings.ToLower(string(u.DisplayName)))
		u.DisplayName = types.DisplayNameType(*patch.DisplayName)
		s.usersByNameLow[strings.ToLower(*patch.DisplayName)] = u.ID
	}
	if patch.PhotoCID != nil {
		u.PhotoCID = types.CidType(*patch.PhotoCID)
	}
	if patch.Bio != nil {
		u.Bio = *patch.Bio
	}
	if patch.StatusText != nil {
		u.StatusText = *patch.StatusText
	}
	if patch.StatusEmoji != nil {
		u.StatusEmoji = *patch.StatusEmoji
	}
	return *u, nil
}

// SearchUsers returns up to limit users whose display name contains q,
// case-insensitively. Empty q matches everyone.
func (s *Store) SearchUsers(q string, limit int) []User {
	q = strings.ToLower(q)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0)
	for _, u := range s.usersByID {
		if limit > 0 && len(out) >= limit {
			break
		}
		if q == "" || strings.Contains(strings.ToLower(string(u.DisplayName)), q) {
			out = append(out, *u)
		}
	}
	return out
}
