package session

import "context"

// Store persists sessions across reconnects for clean_session=false clients.
// A Store implementation never reasons about connectivity; callers attach
// and detach sessions through Manager.
type Store interface {
	// Save stores or updates a session.
	Save(ctx context.Context, session *Session) error

	// Load retrieves a session by client ID.
	Load(ctx context.Context, clientID string) (*Session, error)

	// Delete removes a session.
	Delete(ctx context.Context, clientID string) error

	// Exists checks if a session exists.
	Exists(ctx context.Context, clientID string) (bool, error)

	// List returns all stored client IDs.
	List(ctx context.Context) ([]string, error)

	// Close closes the store.
	Close() error
}

// StoreMetrics is an optional interface a Store can implement to expose
// counts for the $SYS stats publisher.
type StoreMetrics interface {
	Count(ctx context.Context) (int64, error)
}
