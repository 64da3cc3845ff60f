package session

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/openrooms/orc-server/internal/v1/config"
	"github.com/openrooms/orc-server/internal/v1/core"
	"github.com/openrooms/orc-server/internal/v1/store"
)

// mockConn is an in-memory wsConnection for session tests.
type mockConn struct {
	mu      sync.Mutex
	writes  [][]byte
	inbound chan []byte
	closeCh chan struct{}
	once    sync.Once
}

func newMockConn() *mockConn {
	return &mockConn{
		inbound: make(chan []byte, 16),
		closeCh: make(chan struct{}),
	}
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-m.inbound:
		return websocket.TextMessage, data, nil
	case <-m.closeCh:
		return 0, nil, errors.New("connection closed")
	}
}

func (m *mockConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-m.closeCh:
		return errors.New("connection closed")
	default:
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, append([]byte(nil), data...))
	return nil
}

func (m *mockConn) Close() error {
	m.once.Do(func() { close(m.closeCh) })
	return nil
}

func (m *mockConn) SetWriteDeadline(t time.Time) error { return nil }

// inject delivers a client frame to the read pump.
func (m *mockConn) inject(t *testing.T, frame any) {
	t.Helper()
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	m.inbound <- data
}

// framesOfType decodes recorded writes and filters by frame type.
func (m *mockConn) framesOfType(frameType string) []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []map[string]any
	for _, w := range m.writes {
		var decoded map[string]any
		if json.Unmarshal(w, &decoded) == nil && decoded["type"] == frameType {
			out = append(out, decoded)
		}
	}
	return out
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func testCore(t *testing.T) *core.Core {
	t.Helper()
	return core.New(&config.Config{
		Port:                   "8080",
		MaxMessageBytes:        4000,
		MaxUploadBytes:         1 << 20,
		MaxReactionsPerMessage: 20,
		OwnerLeave:             config.OwnerLeaveForbid,
	})
}

func testUser(t *testing.T, c *core.Core, name string) store.User {
	t.Helper()
	_, u, err := c.GuestLogin(name)
	require.NoError(t, err)
	return u
}
