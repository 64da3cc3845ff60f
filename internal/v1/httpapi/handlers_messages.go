package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/openrooms/orc-server/internal/v1/apierr"
	"github.com/openrooms/orc-server/internal/v1/core"
	"github.com/openrooms/orc-server/internal/v1/stream"
	"github.com/openrooms/orc-server/internal/v1/types"
)

func querySeq(c *gin.Context, name string) uint64 {
	seq, _ := strconv.ParseUint(c.Query(name), 10, 64)
	return seq
}

func (s *Server) handleRoomMessages(c *gin.Context) {
	msgs, next, err := s.core.RoomMessages(currentUser(c).ID, c.Param("name"), querySeq(c, "from_seq"), queryLimit(c))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "next_seq": next})
}

func (s *Server) handleRoomBackfill(c *gin.Context) {
	msgs, prev, err := s.core.RoomBackfill(currentUser(c).ID, c.Param("name"), querySeq(c, "before_seq"), queryLimit(c))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "prev_seq": prev})
}

func (s *Server) handleRoomPost(c *gin.Context) {
	var req core.PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apierr.Wrap(apierr.KindBadRequest, err, "malformed body"))
		return
	}
	msg, err := s.core.PostToRoom(currentUser(c).ID, c.Param("name"), req)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

type ackRequest struct {
	Seq uint64 `json:"seq"`
}

func (s *Server) handleRoomAck(c *gin.Context) {
	var req ackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apierr.Wrap(apierr.KindBadRequest, err, "malformed body"))
		return
	}
	if err := s.core.AckRoom(currentUser(c).ID, c.Param("name"), req.Seq); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleRoomCursor(c *gin.Context) {
	seq, err := s.core.RoomCursor(currentUser(c).ID, c.Param("name"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"seq": seq})
}

func (s *Server) handleGetMessage(c *gin.Context) {
	msg, err := s.core.GetMessage(currentUser(c).ID, types.MessageIdType(c.Param("id")))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

type editMessageRequest struct {
	Text        *string             `json:"text"`
	Attachments []stream.Attachment `json:"attachments"`
}

func (s *Server) handleEditMessage(c *gin.Context) {
	var req editMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apierr.Wrap(apierr.KindBadRequest, err, "malformed body"))
		return
	}
	msg, err := s.core.EditMessage(currentUser(c).ID, types.MessageIdType(c.Param("id")), req.Text, req.Attachments)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

type deleteMessageRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleDeleteMessage(c *gin.Context) {
	var req deleteMessageRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			renderError(c, apierr.Wrap(apierr.KindBadRequest, err, "malformed body"))
			return
		}
	}
	id := types.MessageIdType(c.Param("id"))
	if err := s.core.DeleteMessage(currentUser(c).ID, id, req.Reason); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_id": id, "tombstone": true})
}

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

// reactionEmoji reads the emoji from the body, falling back to the query
// string so DELETE works without a body.
func reactionEmoji(c *gin.Context) (string, error) {
	var req reactionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			return "", apierr.Wrap(apierr.KindBadRequest, err, "malformed body")
		}
	}
	if req.Emoji == "" {
		req.Emoji = c.Query("emoji")
	}
	if req.Emoji == "" {
		return "", apierr.BadRequest("emoji is required")
	}
	return req.Emoji, nil
}

func (s *Server) handleAddReaction(c *gin.Context) {
	emoji, err := reactionEmoji(c)
	if err != nil {
		renderError(c, err)
		return
	}
	msg, err := s.core.React(currentUser(c).ID, types.MessageIdType(c.Param("id")), emoji, true)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "reactions": msg.Reactions})
}

func (s *Server) handleRemoveReaction(c *gin.Context) {
	emoji, err := reactionEmoji(c)
	if err != nil {
		renderError(c, err)
		return
	}
	msg, err := s.core.React(currentUser(c).ID, types.MessageIdType(c.Param("id")), emoji, false)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "reactions": msg.Reactions})
}

// --- DM analogs ---

func dmPeer(c *gin.Context) types.UserIdType {
	return types.UserIdType(c.Param("userId"))
}

func (s *Server) handleDMMessages(c *gin.Context) {
	msgs, next, err := s.core.DMMessages(currentUser(c).ID, dmPeer(c), querySeq(c, "from_seq"), queryLimit(c))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "next_seq": next})
}

func (s *Server) handleDMBackfill(c *gin.Context) {
	msgs, prev, err := s.core.DMBackfill(currentUser(c).ID, dmPeer(c), querySeq(c, "before_seq"), queryLimit(c))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "prev_seq": prev})
}

func (s *Server) handleDMPost(c *gin.Context) {
	var req core.PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apierr.Wrap(apierr.KindBadRequest, err, "malformed body"))
		return
	}
	msg, err := s.core.PostToDM(currentUser(c).ID, dmPeer(c), req)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (s *Server) handleDMAck(c *gin.Context) {
	var req ackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apierr.Wrap(apierr.KindBadRequest, err, "malformed body"))
		return
	}
	s.core.AckDM(currentUser(c).ID, dmPeer(c), req.Seq)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDMCursor(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"seq": s.core.DMCursor(currentUser(c).ID, dmPeer(c))})
}

func (s *Server) handleDMTyping(c *gin.Context) {
	var req typingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apierr.Wrap(apierr.KindBadRequest, err, "malformed body"))
		return
	}
	if err := s.core.TypingDM(currentUser(c).ID, dmPeer(c), req.State); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
