package handler

import (
	"marketchat/backend/internal/config"
	"marketchat/backend/internal/models"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// GetPresence returns this instance's presence snapshot.
func (h *Handler) GetPresence(c *gin.Context) {
	users, version := h.Hub.Presence.Snapshot()
	c.JSON(http.StatusOK, models.PresencePayload{OnlineUserIDs: users, Version: version})
}

// GetConversation returns the caller's history with :peer_id, oldest first.
func (h *Handler) GetConversation(c *gin.Context) {
	userID := c.GetString(userIDKey)
	peerID := strings.TrimSpace(c.Param("peer_id"))
	if peerID == "" || peerID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid peer_id"})
		return
	}

	limit := config.DefaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, config.MaxHistoryLimit)
	}

	msgs, err := h.Hub.Storage().ListConversation(c.Request.Context(), userID, peerID, limit)
	if err != nil {
		h.log.Error("history.load.fail", "user_id", userID, "peer_id", peerID, "err", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporary failure, please retry"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// ListComments returns a product's comments, oldest first. Anonymous viewers may read.
func (h *Handler) ListComments(c *gin.Context) {
	productID := c.Param("product_id")
	comments, err := h.Hub.Storage().ListComments(c.Request.Context(), productID)
	if err != nil {
		h.log.Error("comments.load.fail", "product_id", productID, "err", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporary failure, please retry"})
		return
	}
	if comments == nil {
		comments = []models.Comment{}
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

type postCommentRequest struct {
	Content  string  `json:"content"`
	ParentID *string `json:"parent_id"`
}

// PostComment is the REST twin of the post-comment event.
func (h *Handler) PostComment(c *gin.Context) {
	var req postCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	comment, err := h.Hub.PostComment(c.Request.Context(), c.GetString(userIDKey), models.PostCommentPayload{
		ProductID: c.Param("product_id"),
		Content:   req.Content,
		ParentID:  req.ParentID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// DeleteComment is the REST twin of the delete-comment event.
func (h *Handler) DeleteComment(c *gin.Context) {
	if err := h.Hub.DeleteComment(c.Request.Context(), c.GetString(userIDKey), c.Param("comment_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
