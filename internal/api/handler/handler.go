// Package handler exposes the realtime hub over HTTP: the websocket
// endpoint plus a small REST surface for history, comments and presence.
package handler

import (
	"errors"
	"log/slog"
	"marketchat/backend/internal/auth"
	"marketchat/backend/internal/chathub"
	"marketchat/backend/internal/config"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options tune a Handler.
type Options struct {
	AllowedOrigins []string
	SendQueueSize  int
	MaxFrameBytes  int
	// DevTokenIssue enables POST /api/dev/token. Never in production.
	DevTokenIssue bool
	// Gatherer backs GET /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Log      *slog.Logger
}

// TokenIssuer signs tokens for the dev token endpoint.
type TokenIssuer interface {
	Issue(userID string) (string, error)
}

// Handler містить посилання на ChatHub
type Handler struct {
	Hub    *chathub.ManagerService
	Auth   auth.Verifier
	Issuer TokenIssuer

	upgrader websocket.Upgrader
	opts     Options
	log      *slog.Logger
}

func NewHandler(hub *chathub.ManagerService, verifier auth.Verifier, issuer TokenIssuer, opts Options) *Handler {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = config.DefaultSendQueue
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = config.MaxFrameBytes
	}
	h := &Handler{
		Hub:    hub,
		Auth:   verifier,
		Issuer: issuer,
		opts:   opts,
		log:    opts.Log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return h
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.Health)
	if h.opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.opts.Gatherer, promhttp.HandlerOpts{})))
	}
	r.GET("/ws", h.ServeWebSocket)

	api := r.Group("/api", h.identify)
	api.GET("/presence", h.GetPresence)
	api.GET("/products/:product_id/comments", h.ListComments)

	authed := api.Group("", requireUser)
	authed.GET("/conversations/:peer_id/messages", h.GetConversation)
	authed.POST("/products/:product_id/comments", h.PostComment)
	authed.DELETE("/comments/:comment_id", h.DeleteComment)

	if h.opts.DevTokenIssue && h.Issuer != nil {
		api.POST("/dev/token", h.IssueDevToken)
	}
}

// Health reports liveness and the local connection count.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"connections":  h.Hub.Rooms.ConnectionCount(),
		"online_users": h.Hub.Presence.OnlineCount(),
	})
}

// writeError maps the hub's error taxonomy to an HTTP response.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch chathub.ErrorCode(err) {
	case chathub.CodeValidation:
		status = http.StatusBadRequest
	case chathub.CodeUnauthorized:
		status = http.StatusForbidden
	case chathub.CodeNotFound:
		status = http.StatusNotFound
	case chathub.CodeTransientIO:
		status = http.StatusServiceUnavailable
	}
	if errors.Is(err, chathub.ErrTransientIO) {
		c.JSON(status, gin.H{"error": "temporary failure, please retry", "code": chathub.CodeTransientIO})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": chathub.ErrorCode(err)})
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		// Дозволяє з'єднання з будь-якого домену. У продакшені налаштувати ALLOWED_ORIGINS!
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
