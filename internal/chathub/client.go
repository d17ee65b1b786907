package chathub

import "mingle/backend/internal/models"

// Client is the interface for one live connection, whatever its transport.
// It abstracts the underlying communication mechanism so the hub can manage
// every connection uniformly. A user may hold several Clients at once
// (multiple tabs or devices); each is tracked separately.
type Client interface {
	// GetID returns the unique identifier of this connection.
	GetID() string

	// GetUserID returns the user this connection is bound to, or "" before
	// a successful setup.
	GetUserID() string

	// SetUserID binds the connection to a verified user identity. Called by
	// the hub once, during setup.
	SetUserID(string)

	// Send enqueues an event for delivery without blocking. It reports false
	// when the connection is closed or its outbound buffer is full, in which
	// case the hub treats the connection as dead.
	Send(models.Event) bool

	// Run starts the client's read and write pumps.
	Run()

	// Close shuts down the client's connection and outbound channel.
	Close()
}
