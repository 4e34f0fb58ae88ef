package chathub

import (
	"sort"
	"sync"
)

// PresenceRegistry maps a user identity to the set of its live connections.
// A user is online iff that set is non-empty. One RWMutex guards the whole
// registry: the emptiness check and the mutation always happen under the
// same write lock, so two racing connect/disconnect calls for one user can
// never both decide "became online" or both decide "became offline".
type PresenceRegistry struct {
	mu      sync.RWMutex
	byUser  map[string]map[string]Client // user -> conn_id -> client
	version uint64
}

// NewPresenceRegistry constructs an empty registry.
func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{byUser: make(map[string]map[string]Client)}
}

// Register adds c to userID's connection set and reports whether this was
// the user's first connection.
func (r *PresenceRegistry) Register(userID string, c Client) (becameOnline bool) {
	if userID == "" || c == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := r.byUser[userID]
	if conns == nil {
		conns = make(map[string]Client)
		r.byUser[userID] = conns
		becameOnline = true
		r.version++
	}
	conns[c.GetConnID()] = c
	return becameOnline
}

// Unregister removes c and reports whether userID just went offline. The
// entry is pruned as soon as its set is empty. Unknown connections are a no-op.
func (r *PresenceRegistry) Unregister(userID string, c Client) (becameOffline bool) {
	if userID == "" || c == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := r.byUser[userID]
	if conns == nil {
		return false
	}
	if _, ok := conns[c.GetConnID()]; !ok {
		return false
	}
	delete(conns, c.GetConnID())
	if len(conns) > 0 {
		return false
	}
	delete(r.byUser, userID)
	r.version++
	return true
}

// ListOnline returns the sorted online identities.
func (r *PresenceRegistry) ListOnline() []string {
	users, _ := r.Snapshot()
	return users
}

// Snapshot returns the sorted online identities together with the registry
// version. The version grows each time some user's online state flips, so a
// client can discard snapshots older than one it already applied.
func (r *PresenceRegistry) Snapshot() ([]string, uint64) {
	r.mu.RLock()
	users := make([]string, 0, len(r.byUser))
	for u := range r.byUser {
		users = append(users, u)
	}
	version := r.version
	r.mu.RUnlock()

	sort.Strings(users)
	return users, version
}

// IsOnline reports whether userID has at least one connection.
func (r *PresenceRegistry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// Connections returns a copy of userID's connections, safe to use after the
// lock is released.
func (r *PresenceRegistry) Connections(userID string) []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := r.byUser[userID]
	if len(conns) == 0 {
		return nil
	}
	out := make([]Client, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

// OnlineCount returns the number of online users.
func (r *PresenceRegistry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
