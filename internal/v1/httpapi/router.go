// Package httpapi exposes the broker over HTTP. Handlers stay thin: parse
// and authenticate, call one core operation, render the result or the
// error envelope. Fan-out ordering is the core's concern, not this
// package's.
package httpapi

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openrooms/orc-server/internal/v1/apierr"
	"github.com/openrooms/orc-server/internal/v1/core"
	"github.com/openrooms/orc-server/internal/v1/middleware"
	"github.com/openrooms/orc-server/internal/v1/session"
)

// Server bundles the dependencies the HTTP layer needs.
type Server struct {
	core    *core.Core
	gateway *session.Gateway
}

// NewServer builds the HTTP layer on top of a core.
func NewServer(c *core.Core) *Server {
	return &Server{
		core:    c,
		gateway: session.NewGateway(c, c.Config().AllowedOrigins),
	}
}

// Router assembles the gin engine with all routes and shared middleware.
// Extra middleware (rate limiting, tracing) is appended by the caller.
func (s *Server) Router(extra ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	for _, m := range extra {
		router.Use(m)
	}

	// Public surface
	router.GET("/meta/capabilities", s.handleCapabilities)
	router.POST("/auth/guest", s.handleGuestLogin)
	router.GET("/directory/users", s.handleDirectoryUsers)
	router.GET("/directory/rooms", s.handleDirectoryRooms)
	router.GET("/media/:cid", s.handleGetMedia)
	router.HEAD("/media/:cid", s.handleStatMedia)
	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Realtime upgrade authenticates itself (ticket or token).
	router.GET("/rtm", s.gateway.ServeWs)

	// Authenticated surface
	authed := router.Group("/", s.requireAuth())
	{
		authed.POST("/auth/logout", s.handleLogout)
		authed.POST("/rtm/ticket", s.handleMintTicket)
		authed.GET("/users/me", s.handleGetMe)
		authed.PATCH("/users/me", s.handlePatchMe)
		authed.GET("/users/me/sessions", s.handleListSessions)

		authed.POST("/rooms", s.handleCreateRoom)
		authed.GET("/rooms/:name", s.handleGetRoom)
		authed.PATCH("/rooms/:name", s.handlePatchRoom)
		authed.GET("/rooms/:name/members", s.handleRoomMembers)
		authed.POST("/rooms/:name/join", s.handleJoinRoom)
		authed.POST("/rooms/:name/leave", s.handleLeaveRoom)
		authed.POST("/rooms/:name/invite", s.handleInvite)
		authed.POST("/rooms/:name/kick", s.handleKick)
		authed.POST("/rooms/:name/bans", s.handleBan)
		authed.POST("/rooms/:name/mutes", s.handleMute)
		authed.POST("/rooms/:name/roles", s.handleSetRole)
		authed.POST("/rooms/:name/pins", s.handlePin)
		authed.DELETE("/rooms/:name/pins/:messageId", s.handleUnpin)
		authed.GET("/rooms/:name/messages", s.handleRoomMessages)
		authed.POST("/rooms/:name/messages", s.handleRoomPost)
		authed.GET("/rooms/:name/messages/backfill", s.handleRoomBackfill)
		authed.POST("/rooms/:name/ack", s.handleRoomAck)
		authed.GET("/rooms/:name/cursor", s.handleRoomCursor)
		authed.POST("/rooms/:name/typing", s.handleRoomTyping)

		authed.GET("/messages/:id", s.handleGetMessage)
		authed.PATCH("/messages/:id", s.handleEditMessage)
		authed.DELETE("/messages/:id", s.handleDeleteMessage)
		authed.POST("/messages/:id/reactions", s.handleAddReaction)
		authed.DELETE("/messages/:id/reactions", s.handleRemoveReaction)

		authed.GET("/dms/:userId/messages", s.handleDMMessages)
		authed.POST("/dms/:userId/messages", s.handleDMPost)
		authed.GET("/dms/:userId/messages/backfill", s.handleDMBackfill)
		authed.POST("/dms/:userId/ack", s.handleDMAck)
		authed.GET("/dms/:userId/cursor", s.handleDMCursor)
		authed.POST("/dms/:userId/typing", s.handleDMTyping)

		authed.POST("/uploads", s.handleUpload)
	}

	return router
}

// renderError writes the taxonomy envelope for any error.
func renderError(c *gin.Context, err error) {
	c.JSON(apierr.HTTPStatus(err), apierr.ToEnvelope(err))
}

// handleHealth reports liveness plus coarse component stats.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"rooms":    s.core.Store.RoomCount(),
		"sessions": s.core.Hub.SessionCount(),
	})
}
