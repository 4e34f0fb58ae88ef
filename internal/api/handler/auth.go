package handler

import (
	"marketchat/backend/internal/auth"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const userIDKey = "user_id"

// tokenFrom reads the token from the query string or the Authorization
// header. Browsers can not set headers on websocket upgrades.
func tokenFrom(c *gin.Context) string {
	if t := strings.TrimSpace(c.Query("token")); t != "" {
		return t
	}
	return auth.BearerToken(c.GetHeader("Authorization"))
}

// resolve returns the caller's identity, "" for anonymous callers. A token
// that is present but invalid is an error.
func (h *Handler) resolve(c *gin.Context) (string, bool) {
	token := tokenFrom(c)
	if token == "" {
		return "", true
	}
	userID, err := h.Auth.Resolve(token)
	if err != nil {
		h.log.Info("auth.reject", "path", c.FullPath(), "err", err)
		return "", false
	}
	return userID, true
}

// identify is the /api middleware storing the caller's identity.
func (h *Handler) identify(c *gin.Context) {
	userID, ok := h.resolve(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
		return
	}
	c.Set(userIDKey, userID)
	c.Next()
}

func requireUser(c *gin.Context) {
	if c.GetString(userIDKey) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
		return
	}
	c.Next()
}

type devTokenRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// IssueDevToken signs a token for any user id. Only mounted when
// DEV_TOKEN_ISSUE is on.
func (h *Handler) IssueDevToken(c *gin.Context) {
	var req devTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.Contains(req.UserID, ":") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id must not contain ':'"})
		return
	}

	token, err := h.Issuer.Issue(req.UserID)
	if err != nil {
		h.log.Error("auth.issue.fail", "user_id", req.UserID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user_id": req.UserID})
}
