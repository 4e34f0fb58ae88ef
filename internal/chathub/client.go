package chathub

import "marketchat/backend/internal/models"

// Client is one live transport connection (a ConnectionHandle). It abstracts
// the underlying mechanism so the hub, the presence registry and the room
// router handle every connection type uniformly.
type Client interface {
	// GetConnID returns the unique id of this connection.
	GetConnID() string
	// GetUserID returns the authenticated identity, or "" for anonymous
	// read-only connections. It never changes for the connection's lifetime.
	GetUserID() string

	// Send enqueues ev for delivery without blocking. It returns false when
	// the event was not accepted (connection closing or queue full).
	Send(ev models.Event) bool
	// Done is closed once the connection starts shutting down.
	Done() <-chan struct{}

	// Run starts the client's read and write pumps.
	Run()
	// Close signals shutdown. It is idempotent.
	Close()
}
