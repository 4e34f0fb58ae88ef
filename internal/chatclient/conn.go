package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"marketchat/backend/internal/config"
	"marketchat/backend/internal/models"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Options tune a Conn.
type Options struct {
	// UserID is the identity the token resolves to; it lets the Outbox
	// recognise broadcasts of its own sends.
	UserID     string
	AckTimeout time.Duration
	// EventBuffer sizes the Events channel.
	EventBuffer int
	Log         *slog.Logger
	Now         func() time.Time
}

// Conn is a websocket connection to the realtime hub with optimistic send
// semantics on top.
type Conn struct {
	ws         *websocket.Conn
	outbox     *Outbox
	correlator *Correlator
	ackTimeout time.Duration
	log        *slog.Logger

	threadsMu sync.Mutex
	threads   map[string]*Thread

	writeMu sync.Mutex
	events  chan models.Event
	done    chan struct{}
}

// Dial connects to rawURL (the hub's /ws endpoint). An empty token opens an
// anonymous read-only connection.
func Dial(ctx context.Context, rawURL, token string, opts Options) (*Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("chatclient: parse url: %w", err)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("chatclient: dial: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("chatclient: dial: %w", err)
	}
	return newConn(ws, opts), nil
}

func newConn(ws *websocket.Conn, opts Options) *Conn {
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = config.DefaultAckTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	c := &Conn{
		ws:         ws,
		outbox:     NewOutbox(opts.UserID, opts.Now),
		correlator: NewCorrelator(),
		threads:    make(map[string]*Thread),
		ackTimeout: opts.AckTimeout,
		log:        opts.Log,
		events:     make(chan models.Event, opts.EventBuffer),
		done:       make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Outbox exposes the conversation view.
func (c *Conn) Outbox() *Outbox { return c.outbox }

// Thread returns the comment view of productID, fed by the comment events
// of that product's room once it is joined.
func (c *Conn) Thread(productID string) *Thread {
	c.threadsMu.Lock()
	defer c.threadsMu.Unlock()
	t := c.threads[productID]
	if t == nil {
		t = NewThread(productID)
		c.threads[productID] = t
	}
	return t
}

// Events yields every inbound event except acks. It is closed when the
// connection ends.
func (c *Conn) Events() <-chan models.Event { return c.events }

// Done is closed once the read loop has exited.
func (c *Conn) Done() <-chan struct{} { return c.done }

// SendMessage sends content to receiverID optimistically and waits for the
// server's ack. The returned entry is sent or failed; a failed entry can be
// retried with Retry.
func (c *Conn) SendMessage(ctx context.Context, receiverID, content string) (Entry, error) {
	entry, payload := c.outbox.Compose(receiverID, content)
	return c.send(ctx, entry, payload)
}

// Retry re-sends a failed entry under a fresh correlation id. Use
// Outbox().Edit first to change its content.
func (c *Conn) Retry(ctx context.Context, localID string) (Entry, error) {
	entry, payload, err := c.outbox.Retry(localID)
	if err != nil {
		return Entry{}, err
	}
	return c.send(ctx, entry, payload)
}

func (c *Conn) send(ctx context.Context, entry Entry, payload models.SendMessagePayload) (Entry, error) {
	wait := c.correlator.Register(entry.CorrelationID, c.ackTimeout)

	ev, err := models.NewEvent(models.EventSendMessage, payload)
	if err == nil {
		ev.CorrelationID = entry.CorrelationID
		err = c.Send(ev)
	}
	if err != nil {
		c.correlator.Cancel(entry.CorrelationID, err)
		c.outbox.Fail(entry.CorrelationID, err.Error())
		return c.current(entry), err
	}

	select {
	case res := <-wait:
		if res.Err != nil {
			c.outbox.Fail(entry.CorrelationID, res.Err.Error())
			return c.current(entry), res.Err
		}
		// The read loop already fed the ack to the outbox.
		final := c.current(entry)
		if res.Ack.Error != nil {
			return final, fmt.Errorf("chatclient: send rejected: %s: %s", res.Ack.Error.Code, res.Ack.Error.Message)
		}
		return final, nil
	case <-ctx.Done():
		c.correlator.Cancel(entry.CorrelationID, ctx.Err())
		c.outbox.Fail(entry.CorrelationID, ctx.Err().Error())
		return c.current(entry), ctx.Err()
	}
}

func (c *Conn) current(entry Entry) Entry {
	if e, ok := c.outbox.Get(entry.CorrelationID); ok {
		return e
	}
	return entry
}

// JoinRoom subscribes to a room.
func (c *Conn) JoinRoom(roomKey string) error {
	return c.emit(models.EventJoinRoom, models.RoomPayload{RoomKey: roomKey})
}

// LeaveRoom unsubscribes from a room.
func (c *Conn) LeaveRoom(roomKey string) error {
	return c.emit(models.EventLeaveRoom, models.RoomPayload{RoomKey: roomKey})
}

// MarkRead tells the sender that messageID was read.
func (c *Conn) MarkRead(messageID string) error {
	return c.emit(models.EventMarkRead, models.MarkReadPayload{MessageID: messageID})
}

// ToggleReaction flips the caller's emoji on a message or comment.
func (c *Conn) ToggleReaction(targetKind, targetID, emoji string) error {
	return c.emit(models.EventToggleReaction, models.ToggleReactionPayload{TargetKind: targetKind, TargetID: targetID, Emoji: emoji})
}

// PostComment comments on a product, or replies when parentID is set.
func (c *Conn) PostComment(productID, content, parentID string) error {
	p := models.PostCommentPayload{ProductID: productID, Content: content}
	if parentID != "" {
		p.ParentID = &parentID
	}
	return c.emit(models.EventPostComment, p)
}

// DeleteComment deletes one of the caller's comments.
func (c *Conn) DeleteComment(commentID string) error {
	return c.emit(models.EventDeleteComment, models.DeleteCommentPayload{CommentID: commentID})
}

func (c *Conn) emit(eventType string, payload any) error {
	ev, err := models.NewEvent(eventType, payload)
	if err != nil {
		return err
	}
	return c.Send(ev)
}

// Send writes one event frame.
func (c *Conn) Send(ev models.Event) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(config.WriteWait))
	return c.ws.WriteJSON(ev)
}

// Close ends the connection. Pending sends fail locally.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	c.ws.SetWriteDeadline(time.Now().Add(config.WriteWait))
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	err := c.ws.Close()
	<-c.done
	return err
}

func (c *Conn) readLoop() {
	defer func() {
		n := c.outbox.FailPending("connection closed")
		c.correlator.FailAll(ErrClosed)
		close(c.done)
		close(c.events)
		c.log.Debug("chatclient.closed", "failed_pending", n)
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("chatclient.read.fail", "err", err)
			}
			return
		}
		var ev models.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.log.Warn("chatclient.frame.malformed", "err", err)
			continue
		}

		switch ev.Type {
		case models.EventMessageAck:
			var ack models.MessageAckPayload
			if err := ev.Decode(&ack); err != nil {
				c.log.Warn("chatclient.ack.malformed", "err", err)
				continue
			}
			if ack.CorrelationID == "" {
				ack.CorrelationID = ev.CorrelationID
			}
			c.outbox.HandleAck(ack)
			c.correlator.Resolve(ack.CorrelationID, ack)
			continue
		case models.EventMessageReceived:
			var p models.MessagePayload
			if err := ev.Decode(&p); err != nil {
				c.log.Warn("chatclient.message.malformed", "err", err)
				continue
			}
			if !c.outbox.HandleReceived(p.Message) {
				continue
			}
		case models.EventCommentCreated:
			var p models.CommentPayload
			if err := ev.Decode(&p); err != nil {
				c.log.Warn("chatclient.comment.malformed", "err", err)
				continue
			}
			if !c.Thread(p.Comment.ProductID).ApplyCreated(p.Comment) {
				continue
			}
		case models.EventCommentDeleted:
			var p models.CommentDeletedPayload
			if err := ev.Decode(&p); err != nil {
				c.log.Warn("chatclient.comment.malformed", "err", err)
				continue
			}
			c.Thread(p.ProductID).ApplyDeleted(p)
		}

		select {
		case c.events <- ev:
		default:
			c.log.Warn("chatclient.events.full", "type", ev.Type)
		}
	}
}
