package stream

import (
	"github.com/openrooms/orc-server/internal/v1/types"
)

// Event type names carried on the wire.
const (
	EventMessageCreate  = "event.message.create"
	EventMessageEdit    = "event.message.edit"
	EventMessageDelete  = "event.message.delete"
	EventReactionAdd    = "event.reaction.add"
	EventReactionRemove = "event.reaction.remove"
	EventPinAdd         = "event.pin.add"
	EventPinRemove      = "event.pin.remove"
	EventTyping         = "event.typing"
	EventPresence       = "event.presence"
)

// Scope identifies which sessions an event fans out to: a room, or the two
// endpoints of a DM pair.
type Scope struct {
	RoomID types.RoomIdType
	DMA    types.UserIdType
	DMB    types.UserIdType
}

// IsDM reports whether the scope targets a DM pair.
func (s Scope) IsDM() bool { return s.RoomID == "" }

// Key returns the stream key for the scope.
func (s Scope) Key() types.StreamKeyType {
	if s.IsDM() {
		return types.DMStreamKey(s.DMA, s.DMB)
	}
	return types.RoomStreamKey(s.RoomID)
}

// RoomScope returns the fan-out scope for a room stream.
func RoomScope(roomID types.RoomIdType) Scope {
	return Scope{RoomID: roomID}
}

// DMScope returns the fan-out scope for a DM pair.
func DMScope(a, b types.UserIdType) Scope {
	if b < a {
		a, b = b, a
	}
	return Scope{DMA: a, DMB: b}
}

// Event is one server-to-client frame of the event.* family. Which fields
// are populated depends on Type; unused fields stay empty and are omitted
// from the JSON encoding.
type Event struct {
	Type      string                `json:"type"`
	Message   *Message              `json:"message,omitempty"`
	MessageID types.MessageIdType   `json:"message_id,omitempty"`
	RoomID    types.RoomIdType      `json:"room_id,omitempty"`
	DMPeerID  types.UserIdType      `json:"dm_peer_id,omitempty"`
	TS        string                `json:"ts,omitempty"`
	Emoji     string                `json:"emoji,omitempty"`
	Counts    []ReactionCount       `json:"counts,omitempty"`
	UserID    types.UserIdType      `json:"user_id,omitempty"`
	State     string                `json:"state,omitempty"`

	// Scope routes the event inside the hub; it never reaches the wire.
	Scope Scope `json:"-"`
}

// Attachment references an uploaded blob from a message.
type Attachment struct {
	CID   types.CidType `json:"cid"`
	MIME  string        `json:"mime,omitempty"`
	Bytes int64         `json:"bytes,omitempty"`
	Name  string        `json:"name,omitempty"`
}

// ReactionCount is one emoji's aggregate on a message.
type ReactionCount struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
	Me    bool   `json:"me,omitempty"`
}

// Message is the external representation of a stored message. Tombstoned
// messages keep their sequence position but carry no text or attachments.
type Message struct {
	ID               types.MessageIdType `json:"message_id"`
	RoomID           types.RoomIdType    `json:"room_id,omitempty"`
	DMPeerID         types.UserIdType    `json:"dm_peer_id,omitempty"`
	AuthorID         types.UserIdType    `json:"author_id"`
	Seq              uint64              `json:"seq"`
	TS               string              `json:"ts"`
	ParentID         types.MessageIdType `json:"parent_id,omitempty"`
	ContentType      string              `json:"content_type"`
	Text             string              `json:"text"`
	Attachments      []Attachment        `json:"attachments,omitempty"`
	Reactions        []ReactionCount     `json:"reactions,omitempty"`
	Tombstone        bool                `json:"tombstone"`
	EditedAt         string              `json:"edited_at,omitempty"`
	ModerationReason string              `json:"moderation_reason,omitempty"`
}
