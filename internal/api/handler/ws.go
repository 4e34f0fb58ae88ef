package handler

import (
	"marketchat/backend/internal/chathub"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ServeWebSocket upgrades the request and hands the connection to the hub.
// Without a token the connection is an anonymous read-only viewer; an
// invalid token is refused before the upgrade.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	userID, ok := h.resolve(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Info("ws.upgrade.fail", "err", err)
		return
	}

	client := chathub.NewWebSocketClient(h.Hub, conn, userID, h.opts.SendQueueSize, int64(h.opts.MaxFrameBytes), h.log)
	client.Run()
}
