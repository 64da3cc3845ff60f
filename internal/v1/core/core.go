// Package core is the thin orchestration layer consumed by the HTTP
// handlers and the realtime session. Every operation follows the same
// template: authorize, validate, mutate, publish. Publication happens only
// after the mutation has committed, and within one stream it always
// follows sequence order (the engine invokes the hub under the stream
// lock).
package core

import (
	"time"

	"github.com/openrooms/orc-server/internal/v1/apierr"
	"github.com/openrooms/orc-server/internal/v1/auth"
	"github.com/openrooms/orc-server/internal/v1/config"
	"github.com/openrooms/orc-server/internal/v1/hub"
	"github.com/openrooms/orc-server/internal/v1/metrics"
	"github.com/openrooms/orc-server/internal/v1/store"
	"github.com/openrooms/orc-server/internal/v1/stream"
	"github.com/openrooms/orc-server/internal/v1/types"
)

// HeartbeatInterval is the server ping period for realtime sessions.
const HeartbeatInterval = 30 * time.Second

// Core wires the identity store, entity store, stream engine and hub
// together. One Core is created at process start and passed explicitly to
// the transports.
type Core struct {
	Auth    *auth.Store
	Store   *store.Store
	Streams *stream.Engine
	Hub     *hub.Hub

	cfg *config.Config
}

// New assembles a Core from validated configuration.
func New(cfg *config.Config) *Core {
	return &Core{
		Auth:  auth.NewStore(),
		Store: store.New(cfg.MaxUploadBytes),
		Streams: stream.NewEngine(stream.Limits{
			MaxMessageBytes:        cfg.MaxMessageBytes,
			MaxReactionsPerMessage: cfg.MaxReactionsPerMessage,
		}),
		Hub: hub.New(),
		cfg: cfg,
	}
}

// Config exposes the configuration the core was built with.
func (c *Core) Config() *config.Config { return c.cfg }

// timeOp records the duration of one orchestrated operation.
func timeOp(name string) func() {
	start := time.Now()
	return func() {
		metrics.OperationDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
}

// --- Identity ---

// GuestLogin creates or looks up a guest user and issues a fresh token.
func (c *Core) GuestLogin(username string) (string, store.User, error) {
	u, err := c.Store.EnsureGuest(username)
	if err != nil {
		return "", store.User{}, err
	}
	return c.Auth.IssueToken(u.ID), u, nil
}

// ResolveToken maps a bearer token to its user.
func (c *Core) ResolveToken(token string) (store.User, error) {
	uid, ok := c.Auth.Resolve(token)
	if !ok {
		return store.User{}, apierr.Unauthorized("invalid or expired token")
	}
	return c.Store.GetUser(uid)
}

// MintTicket issues a single-use RTM ticket for WebSocket auth.
func (c *Core) MintTicket(userID types.UserIdType) (string, int64) {
	return c.Auth.MintTicket(userID)
}

// ConsumeTicket redeems an RTM ticket; a ticket only ever redeems once.
func (c *Core) ConsumeTicket(ticket string) (store.User, error) {
	uid, ok := c.Auth.ConsumeTicket(ticket)
	if !ok {
		return store.User{}, apierr.Unauthorized("invalid, used or expired ticket")
	}
	return c.Store.GetUser(uid)
}

// --- Capability discovery ---

// Capabilities describes the fixed feature surface of this server.
type Capabilities struct {
	Server       string   `json:"server"`
	Protocol     string   `json:"protocol"`
	Capabilities []string `json:"capabilities"`
	Limits       Limits   `json:"limits"`
}

// Limits is the numeric half of the capability response.
type Limits struct {
	MaxMessageBytes        int   `json:"max_message_bytes"`
	MaxUploadBytes         int64 `json:"max_upload_bytes"`
	MaxReactionsPerMessage int   `json:"max_reactions_per_message"`
	HeartbeatMS            int64 `json:"heartbeat_ms"`
	TicketTTLMS            int64 `json:"ticket_ttl_ms"`
}

// Capabilities returns the discovery document served at /meta/capabilities.
func (c *Core) Capabilities() Capabilities {
	return Capabilities{
		Server:   "orc-server",
		Protocol: "orc/1",
		Capabilities: []string{
			"rooms", "dms", "reactions", "threads", "pins", "uploads",
			"typing", "presence", "cursors", "backfill",
		},
		Limits: Limits{
			MaxMessageBytes:        c.cfg.MaxMessageBytes,
			MaxUploadBytes:         c.cfg.MaxUploadBytes,
			MaxReactionsPerMessage: c.cfg.MaxReactionsPerMessage,
			HeartbeatMS:            HeartbeatInterval.Milliseconds(),
			TicketTTLMS:            auth.TicketTTL.Milliseconds(),
		},
	}
}

// --- Profiles and directory ---

// UpdateProfile patches the caller's own profile.
func (c *Core) UpdateProfile(caller types.UserIdType, patch store.UserPatch) (store.User, error) {
	return c.Store.UpdateUser(caller, patch)
}

// DirectoryUsers is the public user search.
func (c *Core) DirectoryUsers(q string, limit int) []store.User {
	return c.Store.SearchUsers(q, limit)
}

// DirectoryRooms is the public room search; private rooms never appear.
func (c *Core) DirectoryRooms(q string, limit int) []store.Room {
	return c.Store.SearchRooms(q, limit)
}

// --- Uploads ---

// Upload stores a content-addressed blob.
func (c *Core) Upload(data []byte, mimeHint string) (store.Upload, error) {
	defer timeOp("upload")()
	return c.Store.PutBlob(data, mimeHint)
}

// GetMedia fetches a stored blob.
func (c *Core) GetMedia(cid types.CidType) (string, []byte, error) {
	return c.Store.GetBlob(cid)
}

// StatMedia fetches blob metadata for HEAD requests.
func (c *Core) StatMedia(cid types.CidType) (store.Upload, error) {
	return c.Store.StatBlob(cid)
}
