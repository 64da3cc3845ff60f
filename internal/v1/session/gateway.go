package session

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/openrooms/orc-server/internal/v1/apierr"
	"github.com/openrooms/orc-server/internal/v1/auth"
	"github.com/openrooms/orc-server/internal/v1/core"
	"github.com/openrooms/orc-server/internal/v1/logging"
	"github.com/openrooms/orc-server/internal/v1/store"
)

// Gateway authenticates WebSocket upgrades and hands accepted connections
// to a Session. Three credentials are accepted, checked in order:
//
//  1. ?ticket=... (single-use RTM ticket, preferred)
//  2. Sec-WebSocket-Protocol: ticket.<ticket> or bearer.<token>
//  3. Authorization: Bearer <token> (non-browser clients)
//
// The Origin header, when present, must match the configured allowlist.
type Gateway struct {
	core           *core.Core
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewGateway builds the upgrade handler.
func NewGateway(c *core.Core, allowedOrigins []string) *Gateway {
	g := &Gateway{core: c, allowedOrigins: allowedOrigins}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return auth.ValidateOrigin(r, allowedOrigins) == nil
		},
	}
	return g
}

// ServeWs is the gin handler for GET /rtm.
func (g *Gateway) ServeWs(c *gin.Context) {
	if err := auth.ValidateOrigin(c.Request, g.allowedOrigins); err != nil {
		c.JSON(http.StatusForbidden, apierr.ToEnvelope(apierr.Forbidden("origin not allowed")))
		return
	}

	user, subprotocol, err := g.authenticate(c.Request)
	if err != nil {
		c.JSON(apierr.HTTPStatus(err), apierr.ToEnvelope(err))
		return
	}

	var responseHeader http.Header
	if subprotocol != "" {
		responseHeader = http.Header{"Sec-WebSocket-Protocol": {subprotocol}}
	}
	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, responseHeader)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		return
	}

	logging.Debug(c.Request.Context(), "websocket session opened",
		zap.String("user_id", string(user.ID)))
	sess := newSession(conn, user, g.core)
	sess.run()
}

// authenticate resolves the upgrade credentials to a user. The returned
// subprotocol, when non-empty, must be echoed in the upgrade response.
func (g *Gateway) authenticate(r *http.Request) (store.User, string, error) {
	if ticket := r.URL.Query().Get("ticket"); ticket != "" {
		u, err := g.core.ConsumeTicket(ticket)
		return u, "", err
	}

	for _, proto := range splitProtocols(r.Header.Get("Sec-WebSocket-Protocol")) {
		if ticket, ok := strings.CutPrefix(proto, "ticket."); ok {
			u, err := g.core.ConsumeTicket(ticket)
			return u, proto, err
		}
		if token, ok := strings.CutPrefix(proto, "bearer."); ok {
			u, err := g.core.ResolveToken(token)
			return u, proto, err
		}
	}

	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		u, err := g.core.ResolveToken(strings.TrimPrefix(header, "Bearer "))
		return u, "", err
	}

	return store.User{}, "", apierr.Unauthorized("no ticket or token provided")
}

// splitProtocols parses a comma-separated Sec-WebSocket-Protocol header.
func splitProtocols(header string) []string {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
