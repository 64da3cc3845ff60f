package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrooms/orc-server/internal/v1/apierr"
	"github.com/openrooms/orc-server/internal/v1/types"
)

func newTestStore() *Store {
	return New(1 << 20)
}

func mustUser(t *testing.T, s *Store, name string) User {
	t.Helper()
	u, err := s.EnsureGuest(name)
	require.NoError(t, err)
	return u
}

func TestEnsureGuest_CreateAndLookup(t *testing.T) {
	s := newTestStore()

	u1 := mustUser(t, s, "alice")
	u2 := mustUser(t, s, "Alice")

	assert.Equal(t, u1.ID, u2.ID, "guest login is case-insensitive on username")
	assert.Equal(t, types.DisplayNameType("alice"), u2.DisplayName)
}

func TestEnsureGuest_GeneratedName(t *testing.T) {
	s := newTestStore()

	u, err := s.EnsureGuest("")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(u.DisplayName), "guest-"))
}

func TestEnsureGuest_NameTooLong(t *testing.T) {
	s := newTestStore()

	_, err := s.EnsureGuest(strings.Repeat("x", 129))
	assert.ErrorIs(t, err, apierr.BadRequest(""))
}

func TestUpdateUser_Validation(t *testing.T) {
	s := newTestStore()
	u := mustUser(t, s, "alice")

	longBio := strings.Repeat("b", 1025)
	_, err := s.UpdateUser(u.ID, UserPatch{Bio: &longBio})
	assert.ErrorIs(t, err, apierr.BadRequest(""))

	// Validation failures must not mutate.
	got, err := s.GetUser(u.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Bio)

	bio := "hello"
	status := "around"
	got, err = s.UpdateUser(u.ID, UserPatch{Bio: &bio, StatusText: &status})
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Bio)
	assert.Equal(t, "around", got.StatusText)
}

func TestCreateRoom_NameConflict(t *testing.T) {
	s := newTestStore()
	owner := mustUser(t, s, "alice")

	r, err := s.CreateRoom(owner.ID, "General", types.VisibilityPublic, "the lobby")
	require.NoError(t, err)
	assert.Equal(t, 1, r.MemberCount)
	assert.Equal(t, owner.ID, r.OwnerID)

	_, err = s.CreateRoom(owner.ID, "general", types.VisibilityPublic, "")
	assert.ErrorIs(t, err, apierr.Conflict(""))

	// Stored casing is preserved.
	got, err := s.GetRoomByName("GENERAL")
	require.NoError(t, err)
	assert.Equal(t, "General", got.Name)
}

func TestRenameRoom(t *testing.T) {
	s := newTestStore()
	owner := mustUser(t, s, "alice")
	r1, _ := s.CreateRoom(owner.ID, "one", types.VisibilityPublic, "")
	_, err := s.CreateRoom(owner.ID, "two", types.VisibilityPublic, "")
	require.NoError(t, err)

	_, err = s.RenameRoom(r1.ID, "TWO")
	assert.ErrorIs(t, err, apierr.Conflict(""))

	renamed, err := s.RenameRoom(r1.ID, "three")
	require.NoError(t, err)
	assert.Equal(t, "three", renamed.Name)

	// Old name is free again.
	_, err = s.GetRoomByName("one")
	assert.ErrorIs(t, err, apierr.NotFound(""))
	got, err := s.GetRoomByName("three")
	require.NoError(t, err)
	assert.Equal(t, r1.ID, got.ID)

	// Renaming to itself with different casing is allowed.
	_, err = s.RenameRoom(r1.ID, "Three")
	assert.NoError(t, err)
}

func TestResolveRoom_NameAndID(t *testing.T) {
	s := newTestStore()
	owner := mustUser(t, s, "alice")
	r, _ := s.CreateRoom(owner.ID, "General", types.VisibilityPublic, "")

	byName, err := s.ResolveRoom("general")
	require.NoError(t, err)
	assert.Equal(t, r.ID, byName.ID)

	byID, err := s.ResolveRoom(string(r.ID))
	require.NoError(t, err)
	assert.Equal(t, r.ID, byID.ID)

	_, err = s.ResolveRoom("missing")
	assert.ErrorIs(t, err, apierr.NotFound(""))
}

func TestMembership_IdempotentAndCounted(t *testing.T) {
	s := newTestStore()
	owner := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	r, _ := s.CreateRoom(owner.ID, "general", types.VisibilityPublic, "")

	require.NoError(t, s.AddMember(r.ID, bob.ID, types.RoleTypeMember))
	require.NoError(t, s.SetRole(r.ID, bob.ID, types.RoleTypeModerator))

	// Re-adding preserves the existing role.
	require.NoError(t, s.AddMember(r.ID, bob.ID, types.RoleTypeGuest))
	role, ok := s.MemberRole(r.ID, bob.ID)
	require.True(t, ok)
	assert.Equal(t, types.RoleTypeModerator, role)

	got, _ := s.GetRoom(r.ID)
	assert.Equal(t, 2, got.MemberCount)

	require.NoError(t, s.RemoveMember(r.ID, bob.ID))
	require.NoError(t, s.RemoveMember(r.ID, bob.ID)) // idempotent
	got, _ = s.GetRoom(r.ID)
	assert.Equal(t, 1, got.MemberCount)
}

func TestSetRole_OwnershipTransfer(t *testing.T) {
	s := newTestStore()
	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	r, _ := s.CreateRoom(alice.ID, "general", types.VisibilityPublic, "")
	require.NoError(t, s.AddMember(r.ID, bob.ID, types.RoleTypeMember))

	require.NoError(t, s.SetRole(r.ID, bob.ID, types.RoleTypeOwner))

	got, _ := s.GetRoom(r.ID)
	assert.Equal(t, bob.ID, got.OwnerID)
	role, _ := s.MemberRole(r.ID, alice.ID)
	assert.Equal(t, types.RoleTypeAdmin, role, "previous owner is demoted to admin")

	// The owner cannot simply be demoted; ownership must move first.
	err := s.SetRole(r.ID, bob.ID, types.RoleTypeMember)
	assert.ErrorIs(t, err, apierr.Conflict(""))
}

func TestMembersOrderedByJoin(t *testing.T) {
	s := newTestStore()
	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	carol := mustUser(t, s, "carol")
	r, _ := s.CreateRoom(alice.ID, "general", types.VisibilityPublic, "")
	require.NoError(t, s.AddMember(r.ID, bob.ID, types.RoleTypeMember))
	require.NoError(t, s.AddMember(r.ID, carol.ID, types.RoleTypeMember))

	members, err := s.Members(r.ID)
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, alice.ID, members[0].UserID)
}

func TestBansAndMutes(t *testing.T) {
	s := newTestStore()
	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	r, _ := s.CreateRoom(alice.ID, "general", types.VisibilityPublic, "")
	require.NoError(t, s.AddMember(r.ID, bob.ID, types.RoleTypeMember))

	require.NoError(t, s.SetBanned(r.ID, bob.ID, true))
	assert.True(t, s.IsBanned(r.ID, bob.ID))
	_, stillMember := s.MemberRole(r.ID, bob.ID)
	assert.False(t, stillMember, "banning removes membership")

	require.NoError(t, s.SetBanned(r.ID, bob.ID, false))
	assert.False(t, s.IsBanned(r.ID, bob.ID))

	require.NoError(t, s.SetMuted(r.ID, bob.ID, true))
	assert.True(t, s.IsMuted(r.ID, bob.ID))
	require.NoError(t, s.SetMuted(r.ID, bob.ID, false))
	assert.False(t, s.IsMuted(r.ID, bob.ID))
}

func TestPins(t *testing.T) {
	s := newTestStore()
	alice := mustUser(t, s, "alice")
	r, _ := s.CreateRoom(alice.ID, "general", types.VisibilityPublic, "")

	require.NoError(t, s.PinMessage(r.ID, "m1"))
	require.NoError(t, s.PinMessage(r.ID, "m2"))
	require.NoError(t, s.PinMessage(r.ID, "m1")) // idempotent

	got, _ := s.GetRoom(r.ID)
	assert.Equal(t, []types.MessageIdType{"m1", "m2"}, got.PinnedMessageIDs)

	require.NoError(t, s.UnpinMessage(r.ID, "m1"))
	got, _ = s.GetRoom(r.ID)
	assert.Equal(t, []types.MessageIdType{"m2"}, got.PinnedMessageIDs)

	require.NoError(t, s.UnpinMessage(r.ID, "gone")) // no-op
}

func TestSearchRooms_PublicOnly(t *testing.T) {
	s := newTestStore()
	alice := mustUser(t, s, "alice")
	_, err := s.CreateRoom(alice.ID, "go-help", types.VisibilityPublic, "golang questions")
	require.NoError(t, err)
	_, err = s.CreateRoom(alice.ID, "staff", types.VisibilityPrivate, "private")
	require.NoError(t, err)

	found := s.SearchRooms("", 10)
	require.Len(t, found, 1)
	assert.Equal(t, "go-help", found[0].Name)

	found = s.SearchRooms("golang", 10)
	assert.Len(t, found, 1)

	found = s.SearchRooms("zzz", 10)
	assert.Empty(t, found)
}
