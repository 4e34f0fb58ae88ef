package chathub

import (
	"log/slog"
	"marketchat/backend/internal/models"
	"sort"
	"sync"
)

// RoomRouter maps room keys to the connections subscribed to them and fans
// events out. It also tracks every attached connection so that process-wide
// events (presence) reach anonymous viewers too.
//
// Locks are only held to read or mutate the maps: recipients are copied, the
// lock is released, and only then are events handed to the connections.
type RoomRouter struct {
	log      *slog.Logger
	presence *PresenceRegistry
	metrics  *Metrics

	mu    sync.RWMutex
	rooms map[string]map[string]Client // room -> conn_id -> client
	conns map[string]*membership       // conn_id -> membership
}

type membership struct {
	client Client
	rooms  map[string]struct{}
}

// NewRoomRouter constructs a router. presence is unregistered from in LeaveAll.
func NewRoomRouter(log *slog.Logger, presence *PresenceRegistry, metrics *Metrics) *RoomRouter {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &RoomRouter{
		log:      log,
		presence: presence,
		metrics:  metrics,
		rooms:    make(map[string]map[string]Client),
		conns:    make(map[string]*membership),
	}
}

// Attach records c as a live connection. Idempotent.
func (r *RoomRouter) Attach(c Client) {
	r.mu.Lock()
	r.attachLocked(c)
	r.mu.Unlock()
}

func (r *RoomRouter) attachLocked(c Client) *membership {
	m := r.conns[c.GetConnID()]
	if m == nil {
		m = &membership{client: c, rooms: make(map[string]struct{})}
		r.conns[c.GetConnID()] = m
	}
	return m
}

// Join subscribes c to room. Joining twice has the effect of joining once.
func (r *RoomRouter) Join(room string, c Client) {
	if room == "" || c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.attachLocked(c)
	m.rooms[room] = struct{}{}

	members := r.rooms[room]
	if members == nil {
		members = make(map[string]Client)
		r.rooms[room] = members
	}
	members[c.GetConnID()] = c
}

// Leave unsubscribes c from room and reports whether it was a member.
func (r *RoomRouter) Leave(room string, c Client) bool {
	if c == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[room]
	if _, ok := members[c.GetConnID()]; !ok {
		return false
	}
	r.removeLocked(room, c.GetConnID())
	if m := r.conns[c.GetConnID()]; m != nil {
		delete(m.rooms, room)
	}
	return true
}

func (r *RoomRouter) removeLocked(room, connID string) {
	members := r.rooms[room]
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// LeaveAll detaches c from every room in one pass and unregisters it from
// the presence registry. It returns the rooms c was in, nil when c was not
// attached, and whether its user went offline.
func (r *RoomRouter) LeaveAll(c Client) (rooms []string, wentOffline bool) {
	if c == nil {
		return nil, false
	}
	r.mu.Lock()
	if m := r.conns[c.GetConnID()]; m != nil {
		rooms = make([]string, 0, len(m.rooms))
		for room := range m.rooms {
			r.removeLocked(room, c.GetConnID())
			rooms = append(rooms, room)
		}
		delete(r.conns, c.GetConnID())
	}
	r.mu.Unlock()

	sort.Strings(rooms)
	if r.presence != nil {
		wentOffline = r.presence.Unregister(c.GetUserID(), c)
	}
	return rooms, wentOffline
}

// Members returns a copy of room's current members.
func (r *RoomRouter) Members(room string) []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room]
	out := make([]Client, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// Rooms returns the sorted rooms c belongs to.
func (r *RoomRouter) Rooms(c Client) []string {
	r.mu.RLock()
	m := r.conns[c.GetConnID()]
	var out []string
	if m != nil {
		out = make([]string, 0, len(m.rooms))
		for room := range m.rooms {
			out = append(out, room)
		}
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Clients returns every attached connection.
func (r *RoomRouter) Clients() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Client, 0, len(r.conns))
	for _, m := range r.conns {
		out = append(out, m.client)
	}
	return out
}

// ConnectionCount returns the number of attached connections.
func (r *RoomRouter) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Broadcast delivers ev to every member of room except the listed
// connection ids and returns how many accepted it.
func (r *RoomRouter) Broadcast(room string, ev models.Event, except ...string) int {
	return r.SendTo(r.Members(room), ev, except...)
}

// BroadcastAll delivers ev to every attached connection.
func (r *RoomRouter) BroadcastAll(ev models.Event) int {
	return r.SendTo(r.Clients(), ev)
}

// SendTo delivers ev to each client once, skipping the listed connection ids.
// A failing recipient never aborts delivery to the others.
func (r *RoomRouter) SendTo(clients []Client, ev models.Event, except ...string) int {
	skip := make(map[string]struct{}, len(except)+len(clients))
	for _, id := range except {
		skip[id] = struct{}{}
	}

	delivered := 0
	for _, c := range clients {
		if c == nil {
			continue
		}
		if _, dup := skip[c.GetConnID()]; dup {
			continue
		}
		skip[c.GetConnID()] = struct{}{}

		if r.deliver(c, ev) {
			delivered++
			r.metrics.EventsDelivered.WithLabelValues(ev.Type).Inc()
		} else {
			r.metrics.EventsDropped.WithLabelValues(ev.Type).Inc()
		}
	}
	return delivered
}

func (r *RoomRouter) deliver(c Client, ev models.Event) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
			r.log.Error("room.deliver.panic", "conn_id", c.GetConnID(), "type", ev.Type, "panic", rec)
		}
	}()

	select {
	case <-c.Done():
		return false
	default:
	}
	return c.Send(ev)
}
