package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrooms/orc-server/internal/v1/core"
	"github.com/openrooms/orc-server/internal/v1/stream"
	"github.com/openrooms/orc-server/internal/v1/types"
)

func startSession(t *testing.T, c *core.Core, name string) (*Session, *mockConn) {
	t.Helper()
	conn := newMockConn()
	sess := newSession(conn, testUser(t, c, name), c)
	sess.run()
	t.Cleanup(sess.teardown)
	return sess, conn
}

func TestReadySentOnOpen(t *testing.T) {
	c := testCore(t)
	sess, conn := startSession(t, c, "alice")

	waitFor(t, func() bool { return len(conn.framesOfType("ready")) >= 1 }, "initial ready frame")

	ready := conn.framesOfType("ready")[0]
	assert.Equal(t, string(sess.id), ready["session_id"])
	assert.Equal(t, float64(30_000), ready["heartbeat_ms"])
	assert.NotEmpty(t, ready["server_time"])
	assert.NotEmpty(t, ready["capabilities"])
}

func TestHelloAttachesAndReemitsReady(t *testing.T) {
	c := testCore(t)
	alice := testUser(t, c, "alice")
	_, err := c.CreateRoom(alice.ID, "general", types.VisibilityPublic, "")
	require.NoError(t, err)

	sess, conn := startSession(t, c, "bob")
	require.NoError(t, c.JoinRoom(sess.user.ID, "general"))

	conn.inject(t, map[string]any{
		"type":          "hello",
		"subscriptions": map[string]any{"rooms": []string{"general"}, "dms": true},
	})

	waitFor(t, func() bool { return len(conn.framesOfType("ready")) >= 2 }, "ready after hello")

	r, _ := c.Store.GetRoomByName("general")
	assert.Equal(t, 1, c.Hub.RoomSessionCount(r.ID))
	assert.Equal(t, 1, c.Hub.DMSessionCount(sess.user.ID))
}

func TestHelloSkipsInvisibleRooms(t *testing.T) {
	c := testCore(t)
	alice := testUser(t, c, "alice")
	_, err := c.CreateRoom(alice.ID, "staff", types.VisibilityPrivate, "")
	require.NoError(t, err)

	_, conn := startSession(t, c, "mallory")
	conn.inject(t, map[string]any{
		"type":          "hello",
		"subscriptions": map[string]any{"rooms": []string{"staff", "nosuchroom"}},
	})

	waitFor(t, func() bool { return len(conn.framesOfType("ready")) >= 2 }, "ready after hello")
	r, _ := c.Store.GetRoomByName("staff")
	assert.Equal(t, 0, c.Hub.RoomSessionCount(r.ID))
}

func TestEventFanoutToSubscribedSession(t *testing.T) {
	c := testCore(t)
	alice := testUser(t, c, "alice")
	_, err := c.CreateRoom(alice.ID, "general", types.VisibilityPublic, "")
	require.NoError(t, err)

	sess, conn := startSession(t, c, "bob")
	require.NoError(t, c.JoinRoom(sess.user.ID, "general"))
	conn.inject(t, map[string]any{
		"type":          "hello",
		"subscriptions": map[string]any{"rooms": []string{"general"}},
	})
	waitFor(t, func() bool { return len(conn.framesOfType("ready")) >= 2 }, "attach")

	msg, err := c.PostToRoom(alice.ID, "general", core.PostRequest{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), msg.Seq)

	waitFor(t, func() bool { return len(conn.framesOfType(stream.EventMessageCreate)) == 1 }, "message event")

	evs := conn.framesOfType(stream.EventMessageCreate)
	require.Len(t, evs, 1, "at-most-once delivery per session")
	payload := evs[0]["message"].(map[string]any)
	assert.Equal(t, "hi", payload["text"])
	assert.Equal(t, float64(1), payload["seq"])
}

func TestAckAdvancesCursors(t *testing.T) {
	c := testCore(t)
	alice := testUser(t, c, "alice")
	_, err := c.CreateRoom(alice.ID, "general", types.VisibilityPublic, "")
	require.NoError(t, err)

	sess, conn := startSession(t, c, "bob")
	require.NoError(t, c.JoinRoom(sess.user.ID, "general"))

	conn.inject(t, map[string]any{
		"type":    "ack",
		"cursors": map[string]uint64{"room:general": 4},
	})

	waitFor(t, func() bool { return len(conn.framesOfType("ack")) == 1 }, "ack confirmation")

	cur, err := c.RoomCursor(sess.user.ID, "general")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), cur)

	confirm := conn.framesOfType("ack")[0]["cursors"].(map[string]any)
	assert.Equal(t, float64(4), confirm["room:general"])
}

func TestEmptyAckIsRejected(t *testing.T) {
	c := testCore(t)
	_, conn := startSession(t, c, "alice")

	conn.inject(t, map[string]any{"type": "ack"})
	waitFor(t, func() bool { return len(conn.framesOfType("error")) == 1 }, "error frame")
}

func TestMalformedFrameProducesError(t *testing.T) {
	c := testCore(t)
	_, conn := startSession(t, c, "alice")

	conn.inbound <- []byte("{not json")
	waitFor(t, func() bool { return len(conn.framesOfType("error")) == 1 }, "error frame")
}

func TestUnknownFrameTypeProducesError(t *testing.T) {
	c := testCore(t)
	_, conn := startSession(t, c, "alice")

	conn.inject(t, map[string]any{"type": "dance"})
	waitFor(t, func() bool { return len(conn.framesOfType("error")) == 1 }, "error frame")
}

func TestHeartbeatDisconnectsSilentClient(t *testing.T) {
	c := testCore(t)
	alice := testUser(t, c, "alice")
	_, err := c.CreateRoom(alice.ID, "general", types.VisibilityPublic, "")
	require.NoError(t, err)
	r, _ := c.Store.GetRoomByName("general")

	conn := newMockConn()
	sess := newSession(conn, testUser(t, c, "bob"), c)
	sess.heartbeat = 20 * time.Millisecond
	require.NoError(t, c.JoinRoom(sess.user.ID, "general"))
	sess.run()
	t.Cleanup(sess.teardown)

	conn.inject(t, map[string]any{
		"type":          "hello",
		"subscriptions": map[string]any{"rooms": []string{"general"}, "dms": true},
	})
	waitFor(t, func() bool { return c.Hub.RoomSessionCount(r.ID) == 1 }, "attach")

	// No pongs: the session must be torn down and removed from the hub.
	waitFor(t, func() bool { return c.Hub.RoomSessionCount(r.ID) == 0 }, "heartbeat teardown")
	assert.Equal(t, 0, c.Hub.DMSessionCount(sess.user.ID))
	assert.Equal(t, 0, c.Hub.SessionCount())
}

func TestPongKeepsSessionAlive(t *testing.T) {
	c := testCore(t)
	conn := newMockConn()
	sess := newSession(conn, testUser(t, c, "alice"), c)
	sess.heartbeat = 20 * time.Millisecond
	sess.run()
	defer sess.teardown()

	// Answer every ping for a while; the session must stay up well past
	// two heartbeat cycles.
	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		if len(conn.framesOfType("ping")) > 0 {
			conn.inject(t, map[string]any{"type": "pong", "ts": time.Now().UnixMilli()})
		}
		time.Sleep(5 * time.Millisecond)
	}

	sess.mu.Lock()
	closed := sess.closed
	sess.mu.Unlock()
	assert.False(t, closed, "a ponging client must not be disconnected")
	assert.NotEmpty(t, conn.framesOfType("ping"))
}

func TestSlowConsumerIsClosed(t *testing.T) {
	c := testCore(t)
	conn := newMockConn()
	sess := newSession(conn, testUser(t, c, "alice"), c)
	// Do not run the pumps: nothing drains the queue.
	defer sess.teardown()

	ok := true
	for i := 0; i < sendBufferSize+1; i++ {
		ok = sess.Send(stream.Event{Type: stream.EventTyping})
		if !ok {
			break
		}
	}
	assert.False(t, ok, "overflowing the buffer must fail the send")

	sess.mu.Lock()
	closed := sess.closed
	sess.mu.Unlock()
	assert.True(t, closed, "a slow consumer is torn down")

	assert.False(t, sess.Send(stream.Event{Type: stream.EventTyping}), "sends after close must fail")
}

func TestPresenceOnFirstAttachAndLastDetach(t *testing.T) {
	c := testCore(t)
	alice := testUser(t, c, "alice")
	_, err := c.CreateRoom(alice.ID, "general", types.VisibilityPublic, "")
	require.NoError(t, err)

	// A watcher session subscribed to the room observes presence events.
	watcher, watcherConn := startSession(t, c, "watcher")
	require.NoError(t, c.JoinRoom(watcher.user.ID, "general"))
	watcherConn.inject(t, map[string]any{
		"type":          "hello",
		"subscriptions": map[string]any{"rooms": []string{"general"}},
	})
	waitFor(t, func() bool { return len(watcherConn.framesOfType("ready")) >= 2 }, "watcher attach")

	// Bob joins the room and attaches: watcher sees "online".
	bobSess, bobConn := startSession(t, c, "bob")
	require.NoError(t, c.JoinRoom(bobSess.user.ID, "general"))
	bobConn.inject(t, map[string]any{
		"type":          "hello",
		"subscriptions": map[string]any{"rooms": []string{"general"}},
	})
	// The watcher's own attach also produced a presence event, so filter
	// down to bob's.
	bobPresence := func() []map[string]any {
		var out []map[string]any
		for _, ev := range watcherConn.framesOfType(stream.EventPresence) {
			if ev["user_id"] == string(bobSess.user.ID) {
				out = append(out, ev)
			}
		}
		return out
	}

	waitFor(t, func() bool { return len(bobPresence()) >= 1 }, "online presence")
	assert.Equal(t, "online", bobPresence()[0]["state"])

	// Bob disconnects: watcher sees "offline".
	bobSess.teardown()
	waitFor(t, func() bool { return len(bobPresence()) >= 2 }, "offline presence")
	assert.Equal(t, "offline", bobPresence()[1]["state"])
}
