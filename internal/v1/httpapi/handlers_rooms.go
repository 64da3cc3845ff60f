package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openrooms/orc-server/internal/v1/apierr"
	"github.com/openrooms/orc-server/internal/v1/core"
	"github.com/openrooms/orc-server/internal/v1/types"
)

type createRoomRequest struct {
	Name       string               `json:"name" binding:"required"`
	Visibility types.VisibilityType `json:"visibility"`
	Topic      string               `json:"topic"`
}

func (s *Server) handleCreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apierr.Wrap(apierr.KindBadRequest, err, "malformed body"))
		return
	}
	if req.Visibility == "" {
		req.Visibility = types.VisibilityPublic
	}
	room, err := s.core.CreateRoom(currentUser(c).ID, req.Name, req.Visibility, req.Topic)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"room": room})
}

func (s *Server) handleGetRoom(c *gin.Context) {
	room, err := s.core.GetRoom(currentUser(c).ID, c.Param("name"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room})
}

func (s *Server) handlePatchRoom(c *gin.Context) {
	var patch core.RoomPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		renderError(c, apierr.Wrap(apierr.KindBadRequest, err, "malformed body"))
		return
	}
	room, err := s.core.UpdateRoom(currentUser(c).ID, c.Param("name"), patch)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room})
}

func (s *Server) handleRoomMembers(c *gin.Context) {
	members, err := s.core.RoomMembers(currentUser(c).ID, c.Param("name"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (s *Server) handleJoinRoom(c *gin.Context) {
	if err := s.core.JoinRoom(currentUser(c).ID, c.Param("name")); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleLeaveRoom(c *gin.Context) {
	if err := s.core.LeaveRoom(currentUser(c).ID, c.Param("name")); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type targetUserRequest struct {
	UserID types.UserIdType `json:"user_id" binding:"required"`
}

func (s *Server) handleInvite(c *gin.Context) {
	var req targetUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apierr.Wrap(apierr.KindBadRequest, err, "malformed body"))
		return
	}
	if err := s.core.InviteToRoom(currentUser(c).ID, c.Param("name"), req.UserID); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleKick(c *gin.Context) {
	var req targetUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apierr.Wrap(apierr.KindBadRequest, err, "malformed body"))
		return
	}
	if err := s.core.KickFromRoom(currentUser(c).ID, c.Param("name"), req.UserID); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type moderationRequest struct {
	UserID types.UserIdType `json:"user_id" binding:"required"`
	Undo   bool             `json:"undo"`
}

func (s *Server) handleBan(c *gin.Context) {
	var req moderationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apierr.Wrap(apierr.KindBadRequest, err, "malformed body"))
		return
	}
	if err := s.core.SetBan(currentUser(c).ID, c.Param("name"), req.UserID, !req.Undo); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleMute(c *gin.Context) {
	var req moderationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apierr.Wrap(apierr.KindBadRequest, err, "malformed body"))
		return
	}
	if err := s.core.SetMute(currentUser(c).ID, c.Param("name"), req.UserID, !req.Undo); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type setRoleRequest struct {
	UserID types.UserIdType `json:"user_id" binding:"required"`
	Role   types.RoleType   `json:"role" binding:"required"`
}

func (s *Server) handleSetRole(c *gin.Context) {
	var req setRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apierr.Wrap(apierr.KindBadRequest, err, "malformed body"))
		return
	}
	if err := s.core.SetRole(currentUser(c).ID, c.Param("name"), req.UserID, req.Role); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type pinRequest struct {
	MessageID types.MessageIdType `json:"message_id" binding:"required"`
}

func (s *Server) handlePin(c *gin.Context) {
	var req pinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apierr.Wrap(apierr.KindBadRequest, err, "malformed body"))
		return
	}
	if err := s.core.PinMessage(currentUser(c).ID, c.Param("name"), req.MessageID); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUnpin(c *gin.Context) {
	messageID := types.MessageIdType(c.Param("messageId"))
	if err := s.core.UnpinMessage(currentUser(c).ID, c.Param("name"), messageID); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type typingRequest struct {
	State string `json:"state" binding:"required"`
}

func (s *Server) handleRoomTyping(c *gin.Context) {
	var req typingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apierr.Wrap(apierr.KindBadRequest, err, "malformed body"))
		return
	}
	if err := s.core.Typing(currentUser(c).ID, c.Param("name"), req.State); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
