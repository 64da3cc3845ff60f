package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/openrooms/orc-server/internal/v1/apierr"
	"github.com/openrooms/orc-server/internal/v1/store"
)

func (s *Server) handleCapabilities(c *gin.Context) {
	c.JSON(http.StatusOK, s.core.Capabilities())
}

type guestLoginRequest struct {
	Username string `json:"username"`
}

func (s *Server) handleGuestLogin(c *gin.Context) {
	var req guestLoginRequest
	// An empty body is fine; a present but malformed one is not.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			renderError(c, apierr.Wrap(apierr.KindBadRequest, err, "malformed body"))
			return
		}
	}
	token, user, err := s.core.GuestLogin(req.Username)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token, "user": user})
}

func (s *Server) handleLogout(c *gin.Context) {
	header := c.GetHeader("Authorization")
	s.core.Auth.Revoke(strings.TrimPrefix(header, "Bearer "))
	c.Status(http.StatusNoContent)
}

func (s *Server) handleMintTicket(c *gin.Context) {
	ticket, ttl := s.core.MintTicket(currentUser(c).ID)
	c.JSON(http.StatusOK, gin.H{"ticket": ticket, "expires_in_ms": ttl})
}

func (s *Server) handleGetMe(c *gin.Context) {
	// Re-read for a fresh snapshot; the context copy may be stale.
	user, err := s.core.Store.GetUser(currentUser(c).ID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (s *Server) handlePatchMe(c *gin.Context) {
	var patch store.UserPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		renderError(c, apierr.Wrap(apierr.KindBadRequest, err, "malformed body"))
		return
	}
	user, err := s.core.UpdateProfile(currentUser(c).ID, patch)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (s *Server) handleListSessions(c *gin.Context) {
	sessions := s.core.Auth.ListSessions(currentUser(c).ID)
	out := make([]gin.H, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, gin.H{"issued_at": sess.IssuedAt})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func queryLimit(c *gin.Context) int {
	limit, _ := strconv.Atoi(c.Query("limit"))
	return limit
}

func (s *Server) handleDirectoryUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": s.core.DirectoryUsers(c.Query("q"), queryLimit(c))})
}

func (s *Server) handleDirectoryRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": s.core.DirectoryRooms(c.Query("q"), queryLimit(c))})
}
