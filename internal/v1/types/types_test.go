package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoleRanks(t *testing.T) {
	assert.True(t, RoleTypeOwner.AtLeast(RoleTypeAdmin))
	assert.True(t, RoleTypeAdmin.AtLeast(RoleTypeModerator))
	assert.True(t, RoleTypeModerator.AtLeast(RoleTypeMember))
	assert.True(t, RoleTypeMember.AtLeast(RoleTypeGuest))
	assert.False(t, RoleTypeGuest.AtLeast(RoleTypeMember))
	assert.True(t, RoleTypeMember.AtLeast(RoleTypeMember))
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleTypeModerator.Valid())
	assert.False(t, RoleType("superuser").Valid())
	assert.Equal(t, 0, RoleType("superuser").Rank())
}

func TestDMStreamKeyCanonical(t *testing.T) {
	a := UserIdType("aaaa")
	b := UserIdType("bbbb")

	assert.Equal(t, DMStreamKey(a, b), DMStreamKey(b, a))
	assert.Equal(t, StreamKeyType("dm:aaaa:bbbb"), DMStreamKey(b, a))
}

func TestRoomStreamKey(t *testing.T) {
	assert.Equal(t, StreamKeyType("room:r1"), RoomStreamKey(RoomIdType("r1")))
}

func TestNewID(t *testing.T) {
	id := NewID()

	assert.Equal(t, 26, len(id))
	assert.True(t, IsID(id), "generated IDs must stay within the Base32 alphabet")

	// 128 random bits should never collide in a handful of draws.
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		next := NewID()
		assert.False(t, seen[next])
		seen[next] = true
	}
}

func TestCID(t *testing.T) {
	cid := CID([]byte("hello"))

	// SHA-256 is 32 bytes -> 52 Base32 characters unpadded.
	assert.Equal(t, 52, len(cid))
	assert.Equal(t, cid, CID([]byte("hello")))
	assert.NotEqual(t, cid, CID([]byte("hello!")))
}

func TestIsID(t *testing.T) {
	assert.True(t, IsID("abc234"))
	assert.False(t, IsID(""))
	assert.False(t, IsID("General"))
	assert.False(t, IsID("has space"))
	assert.False(t, IsID("zero0"))
	assert.False(t, IsID("one1"))
}

func TestFormatTime(t *testing.T) {
	ts := time.Date(2024, 3, 5, 12, 30, 45, 123_456_789, time.UTC)
	assert.Equal(t, "2024-03-05T12:30:45.123Z", FormatTime(ts))
}
