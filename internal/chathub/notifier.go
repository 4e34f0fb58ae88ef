package chathub

import (
	"context"
	"marketchat/backend/internal/models"
	"time"
)

// OfflineNotifier is told about direct messages whose receiver has no live
// connection on this instance.
type OfflineNotifier interface {
	NotifyOffline(ctx context.Context, msg models.Message) error
}

const offlineNotifyTimeout = 15 * time.Second

func (m *ManagerService) presenceEvent() (models.Event, bool) {
	users, version := m.Presence.Snapshot()
	ev, err := models.NewEvent(models.EventPresenceChanged, models.PresencePayload{
		OnlineUserIDs: users,
		Version:       version,
	})
	if err != nil {
		m.log.Error("presence.encode.fail", "err", err)
		return models.Event{}, false
	}
	return ev, true
}

// broadcastPresence tells every connection on this instance who is online.
func (m *ManagerService) broadcastPresence() {
	if ev, ok := m.presenceEvent(); ok {
		m.Rooms.BroadcastAll(ev)
	}
}

// sendPresence seeds one connection's presence view.
func (m *ManagerService) sendPresence(c Client) {
	if ev, ok := m.presenceEvent(); ok {
		m.Rooms.SendTo([]Client{c}, ev)
	}
}

// publishRoom fans ev out to a room locally and through the relay.
func (m *ManagerService) publishRoom(ctx context.Context, room string, ev models.Event, except ...string) {
	n := m.Rooms.Broadcast(room, ev, except...)
	m.log.Debug("room.broadcast", "room", room, "type", ev.Type, "delivered", n)
	m.relayPublish(ctx, RelayEnvelope{Scope: ScopeRoom, Keys: []string{room}, Event: ev})
}

// publishUsers delivers ev to every connection of the given users, locally
// and through the relay. A connection listed in except is skipped; each
// connection receives the event at most once even if it appears under
// several users.
func (m *ManagerService) publishUsers(ctx context.Context, users []string, ev models.Event, except ...string) {
	var targets []Client
	for _, u := range users {
		targets = append(targets, m.Presence.Connections(u)...)
	}
	m.Rooms.SendTo(targets, ev, except...)
	m.relayPublish(ctx, RelayEnvelope{Scope: ScopeUsers, Keys: users, Event: ev})
}

// relayPublish runs after the change is stored, so it outlives the
// initiating connection: a closed socket must not cancel the publish.
func (m *ManagerService) relayPublish(ctx context.Context, env RelayEnvelope) {
	if m.relay == nil {
		return
	}
	env.Origin = m.instanceID
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.storageTimeout)
	defer cancel()
	if err := m.relay.Publish(pctx, env); err != nil {
		// Local fan-out already happened; remote instances miss this event
		// and their clients recover on re-fetch.
		m.log.Warn("relay.publish.fail", "scope", env.Scope, "type", env.Event.Type, "err", err)
	}
}

// deliverRelayed fans out an event published by another instance.
func (m *ManagerService) deliverRelayed(env RelayEnvelope) {
	if env.Origin == m.instanceID {
		return
	}
	switch env.Scope {
	case ScopeRoom:
		for _, room := range env.Keys {
			m.Rooms.Broadcast(room, env.Event)
		}
	case ScopeUsers:
		var targets []Client
		for _, u := range env.Keys {
			targets = append(targets, m.Presence.Connections(u)...)
		}
		m.Rooms.SendTo(targets, env.Event)
	default:
		m.log.Warn("relay.scope.unknown", "scope", env.Scope)
	}
}

// notifyOffline runs the offline notifier in the background; it never
// affects the send result.
func (m *ManagerService) notifyOffline(msg models.Message) {
	if m.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), offlineNotifyTimeout)
		defer cancel()
		if err := m.notifier.NotifyOffline(ctx, msg); err != nil {
			m.log.Warn("notify.offline.fail", "message_id", msg.ID, "receiver_id", msg.ReceiverID, "err", err)
		}
	}()
}
