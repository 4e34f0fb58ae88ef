package chathub

import (
	"context"
	"log/slog"
	"marketchat/backend/internal/config"
	"marketchat/backend/internal/models"
	"marketchat/backend/internal/objectstore"
	"marketchat/backend/internal/storage"
	"strings"
	"time"
)

// Deps are the collaborators of a ManagerService. Storage is required; the
// rest are optional.
type Deps struct {
	Storage     storage.Storage
	ObjectStore objectstore.ObjectStore
	Relay       Relay
	Notifier    OfflineNotifier
	Metrics     *Metrics
	Log         *slog.Logger
	Now         func() time.Time

	// InstanceID tags relayed events so an instance ignores its own.
	InstanceID         string
	StorageTimeout     time.Duration
	MaxAttachmentBytes int
}

// ManagerService is the realtime hub. It owns the presence registry and the
// room router for one process and routes every client event through the
// delivery, reaction, receipt and comment flows.
type ManagerService struct {
	Presence *PresenceRegistry
	Rooms    *RoomRouter

	storage  storage.Storage
	objects  objectstore.ObjectStore
	relay    Relay
	notifier OfflineNotifier
	metrics  *Metrics
	log      *slog.Logger
	now      func() time.Time

	instanceID         string
	storageTimeout     time.Duration
	maxAttachmentBytes int

	// sendLocks serializes one sender's sends within a conversation.
	sendLocks *keyedMutex
	// reactionLocks serializes toggles per reaction target.
	reactionLocks *keyedMutex
}

// NewManagerService wires a hub from its dependencies.
func NewManagerService(d Deps) *ManagerService {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = NewMetrics(nil)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.StorageTimeout <= 0 {
		d.StorageTimeout = config.DefaultStorageCall
	}
	if d.MaxAttachmentBytes <= 0 {
		d.MaxAttachmentBytes = config.MaxAttachmentBytes
	}
	if d.InstanceID == "" {
		d.InstanceID = NewConnID(d.Now())
	}

	presence := NewPresenceRegistry()
	return &ManagerService{
		Presence:           presence,
		Rooms:              NewRoomRouter(d.Log, presence, d.Metrics),
		storage:            d.Storage,
		objects:            d.ObjectStore,
		relay:              d.Relay,
		notifier:           d.Notifier,
		metrics:            d.Metrics,
		log:                d.Log,
		now:                d.Now,
		instanceID:         d.InstanceID,
		storageTimeout:     d.StorageTimeout,
		maxAttachmentBytes: d.MaxAttachmentBytes,
		sendLocks:          newKeyedMutex(),
		reactionLocks:      newKeyedMutex(),
	}
}

// Storage exposes the storage collaborator for read-only endpoints.
func (m *ManagerService) Storage() storage.Storage { return m.storage }

// Connect attaches a new connection, registers its identity and seeds its
// presence view. When the user just came online every connection is told.
func (m *ManagerService) Connect(c Client) {
	m.Rooms.Attach(c)
	m.metrics.Connections.Inc()

	becameOnline := m.Presence.Register(c.GetUserID(), c)
	m.log.Info("ws.connect", "conn_id", c.GetConnID(), "user_id", c.GetUserID(), "became_online", becameOnline)

	if becameOnline {
		m.metrics.OnlineUsers.Set(float64(m.Presence.OnlineCount()))
		m.broadcastPresence()
		return
	}
	m.sendPresence(c)
}

// Disconnect releases every membership of c atomically and announces the
// user going offline when this was their last connection.
func (m *ManagerService) Disconnect(c Client) {
	rooms, wentOffline := m.Rooms.LeaveAll(c)
	c.Close()
	if rooms == nil && !wentOffline {
		return
	}
	if rooms != nil {
		m.metrics.Connections.Dec()
	}
	m.log.Info("ws.disconnect", "conn_id", c.GetConnID(), "user_id", c.GetUserID(), "rooms", len(rooms), "went_offline", wentOffline)

	if wentOffline {
		m.metrics.OnlineUsers.Set(float64(m.Presence.OnlineCount()))
		m.broadcastPresence()
	}
}

// Run listens on the cross-instance relay until ctx is done. Without a relay
// it just waits for ctx.
func (m *ManagerService) Run(ctx context.Context) error {
	if m.relay == nil {
		<-ctx.Done()
		return nil
	}
	m.log.Info("relay.listen.start", "instance_id", m.instanceID)
	return m.relay.Subscribe(ctx, m.deliverRelayed)
}

// Shutdown closes every attached connection.
func (m *ManagerService) Shutdown() {
	for _, c := range m.Rooms.Clients() {
		c.Close()
	}
}

// JoinRoom subscribes c to roomKey. DM rooms admit only their participants;
// product rooms admit anyone, anonymous viewers included.
func (m *ManagerService) JoinRoom(c Client, roomKey string) error {
	ref, err := ParseRoomKey(strings.TrimSpace(roomKey))
	if err != nil {
		return validationf("%v", err)
	}
	if !ref.Allows(c.GetUserID()) {
		return unauthorizedf("not a participant of %s", ref.Key())
	}
	m.Rooms.Join(ref.Key(), c)
	m.reply(c, models.EventRoomJoined, "", models.RoomPayload{RoomKey: ref.Key()})
	return nil
}

// LeaveRoom unsubscribes c from roomKey. Leaving a room one is not in is fine.
func (m *ManagerService) LeaveRoom(c Client, roomKey string) error {
	ref, err := ParseRoomKey(strings.TrimSpace(roomKey))
	if err != nil {
		return validationf("%v", err)
	}
	m.Rooms.Leave(ref.Key(), c)
	m.reply(c, models.EventRoomLeft, "", models.RoomPayload{RoomKey: ref.Key()})
	return nil
}

// HandleEvent processes one inbound client event. Failures are reported to
// the initiating connection only.
func (m *ManagerService) HandleEvent(ctx context.Context, c Client, ev models.Event) {
	var err error
	switch ev.Type {
	case models.EventJoinRoom:
		var p models.RoomPayload
		if err = decode(ev, &p); err == nil {
			err = m.JoinRoom(c, p.RoomKey)
		}
	case models.EventLeaveRoom:
		var p models.RoomPayload
		if err = decode(ev, &p); err == nil {
			err = m.LeaveRoom(c, p.RoomKey)
		}
	case models.EventSendMessage:
		var p models.SendMessagePayload
		if err = decode(ev, &p); err != nil {
			m.ack(c, ev.CorrelationID, nil, err)
			m.recordFailure(ev.Type, err)
			return
		}
		// Acknowledged inside SendMessage, success or not.
		_, err = m.SendMessage(ctx, c, ev.CorrelationID, p)
		m.recordFailure(ev.Type, err)
		return
	case models.EventToggleReaction:
		var p models.ToggleReactionPayload
		if err = decode(ev, &p); err == nil {
			_, err = m.ToggleReaction(ctx, c.GetUserID(), p)
		}
	case models.EventMarkRead:
		var p models.MarkReadPayload
		if err = decode(ev, &p); err == nil {
			err = m.MarkRead(ctx, c.GetUserID(), p.MessageID)
		}
	case models.EventPostComment:
		var p models.PostCommentPayload
		if err = decode(ev, &p); err == nil {
			_, err = m.PostComment(ctx, c.GetUserID(), p)
		}
	case models.EventDeleteComment:
		var p models.DeleteCommentPayload
		if err = decode(ev, &p); err == nil {
			err = m.DeleteComment(ctx, c.GetUserID(), p.CommentID)
		}
	default:
		err = validationf("unknown event type %q", ev.Type)
	}

	if err != nil {
		m.recordFailure(ev.Type, err)
		m.log.Info("event.reject", "conn_id", c.GetConnID(), "type", ev.Type, "code", ErrorCode(err), "err", err)
		m.reply(c, models.EventError, ev.CorrelationID, errorPayload(err))
	}
}

func decode(ev models.Event, dst any) error {
	if err := ev.Decode(dst); err != nil {
		return validationf("malformed %s payload: %v", ev.Type, err)
	}
	return nil
}

func (m *ManagerService) recordFailure(op string, err error) {
	if err == nil {
		return
	}
	m.metrics.OperationFailures.WithLabelValues(op, ErrorCode(err)).Inc()
}

// reply sends a connection-scoped event to c.
func (m *ManagerService) reply(c Client, eventType, correlationID string, payload any) {
	ev, err := models.NewEvent(eventType, payload)
	if err != nil {
		m.log.Error("event.encode.fail", "type", eventType, "err", err)
		return
	}
	ev.CorrelationID = correlationID
	m.Rooms.SendTo([]Client{c}, ev)
}

// storageCtx bounds one collaborator call.
func (m *ManagerService) storageCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.storageTimeout)
}
