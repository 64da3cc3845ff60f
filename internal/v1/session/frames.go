package session

import (
	"github.com/openrooms/orc-server/internal/v1/apierr"
	"github.com/openrooms/orc-server/internal/v1/types"
)

// Client-to-server frame types.
const (
	frameHello = "hello"
	frameAck   = "ack"
	framePong  = "pong"
)

// Server-to-client frame types (events carry their own event.* types).
const (
	frameReady = "ready"
	framePing  = "ping"
	frameError = "error"
)

// clientFrame is the union of everything a client may send. Type selects
// which fields are meaningful.
type clientFrame struct {
	Type          string                `json:"type"`
	Subscriptions *subscriptionRequest  `json:"subscriptions,omitempty"`
	Cursors       map[string]uint64     `json:"cursors,omitempty"`
	Want          []string              `json:"want,omitempty"`
	TS            int64                 `json:"ts,omitempty"`
}

// subscriptionRequest names the streams a session wants fanned out to it.
// Rooms may be identified by name or by room ID.
type subscriptionRequest struct {
	Rooms []string `json:"rooms"`
	DMs   bool     `json:"dms"`
}

// readyFrame is sent on open and re-emitted after hello.
type readyFrame struct {
	Type         string              `json:"type"`
	SessionID    types.SessionIdType `json:"session_id"`
	HeartbeatMS  int64               `json:"heartbeat_ms"`
	ServerTime   string              `json:"server_time"`
	Capabilities []string            `json:"capabilities"`
}

// pingFrame carries the server heartbeat.
type pingFrame struct {
	Type string `json:"type"`
	TS   int64  `json:"ts"`
}

// ackConfirmFrame echoes the cursors a session's ack actually advanced,
// keyed by the normalized outbound form ("room:<name>" / "dm:<user_id>").
type ackConfirmFrame struct {
	Type    string            `json:"type"`
	Cursors map[string]uint64 `json:"cursors"`
}

// errorFrame reports a recoverable per-frame failure to the client.
type errorFrame struct {
	Type  string      `json:"type"`
	Error apierr.Body `json:"error"`
}

func newErrorFrame(err error) errorFrame {
	return errorFrame{Type: frameError, Error: apierr.ToEnvelope(err).Error}
}

func jsonParseError(err error) error {
	return apierr.Wrap(apierr.KindBadRequest, err, "malformed frame")
}

func unknownFrameError(t string) error {
	return apierr.BadRequest("unknown frame type %q", t)
}

func emptyAckError() error {
	return apierr.BadRequest("ack requires a cursors map")
}
