package chathub

import (
	"context"
	"encoding/json"
	"log/slog"
	"marketchat/backend/internal/config"
	"marketchat/backend/internal/models"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketClient implements Client over a gorilla websocket connection.
// Every event is written as its own text frame.
type WebSocketClient struct {
	ConnID string
	UserID string
	Conn   *websocket.Conn
	Hub    *ManagerService

	send      chan models.Event
	done      chan struct{}
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	maxFrame  int64
	log       *slog.Logger
}

// NewWebSocketClient wraps an upgraded connection. userID is "" for
// anonymous read-only viewers.
func NewWebSocketClient(hub *ManagerService, conn *websocket.Conn, userID string, queueSize int, maxFrame int64, log *slog.Logger) *WebSocketClient {
	if queueSize < config.MinSendQueue {
		queueSize = config.MinSendQueue
	}
	if maxFrame <= 0 {
		maxFrame = config.MaxFrameBytes
	}
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	connID := NewConnID(time.Now())
	return &WebSocketClient{
		ConnID:   connID,
		UserID:   userID,
		Conn:     conn,
		Hub:      hub,
		send:     make(chan models.Event, queueSize),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		maxFrame: maxFrame,
		log:      log.With("conn_id", connID, "user_id", userID),
	}
}

func (c *WebSocketClient) GetConnID() string     { return c.ConnID }
func (c *WebSocketClient) GetUserID() string     { return c.UserID }
func (c *WebSocketClient) Done() <-chan struct{} { return c.done }

// Send enqueues ev. A connection whose queue is full is a slow consumer and
// gets closed rather than holding up the sender.
func (c *WebSocketClient) Send(ev models.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		c.log.Warn("ws.slow_consumer", "type", ev.Type, "queued", len(c.send))
		c.Close()
		return false
	}
}

// Run registers the connection with the hub and starts the pumps.
func (c *WebSocketClient) Run() {
	c.Hub.Connect(c)
	go c.writePump()
	go c.readPump()
}

// Close signals both pumps to stop. The send channel is never closed, so a
// concurrent Send can not panic.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
	})
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Disconnect(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.maxFrame)
	c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("ws.read.fail", "err", err)
			}
			return
		}

		var ev models.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.log.Info("ws.frame.malformed", "err", err)
			c.Hub.reply(c, models.EventError, "", errorPayload(validationf("malformed frame")))
			continue
		}
		c.Hub.HandleEvent(c.ctx, c, ev)
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case ev := <-c.send:
			data, err := json.Marshal(ev)
			if err != nil {
				c.log.Error("ws.encode.fail", "type", ev.Type, "err", err)
				continue
			}
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Info("ws.write.fail", "err", err)
				c.Close()
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
