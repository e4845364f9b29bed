// Package transport defines the interface for mail delivery backends.
package transport

import "context"

// Dialer opens delivery sessions. A batch uses exactly one session.
type Dialer interface {
	// Dial opens a session, connecting to the backend if it needs a connection.
	Dial(ctx context.Context) (Session, error)

	// Name returns the human-readable name of this transport.
	Name() string
}

// Session delivers messages over one open connection to the backend.
type Session interface {
	// Send submits msg for delivery from one sender to one recipient.
	Send(ctx context.Context, from, to string, msg []byte) error

	// Close ends the session.
	Close() error
}
