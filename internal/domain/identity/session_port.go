// internal/domain/identity/session_port.go
package identity

import "context"

// SessionChangeFunc receives every auth transition. s is nil after sign-out.
type SessionChangeFunc func(event AuthEvent, s *Session)

// SessionSource is the identity half of the remote store.
//
// Not-signed-in policy:
// - GetCurrentSession returns (nil, nil) when nobody is signed in
// - errors are reserved for "could not find out" (network, backend down)
type SessionSource interface {
	GetCurrentSession(ctx context.Context) (*Session, error)

	// OnSessionChange registers fn for the rest of the source's lifetime.
	// The returned func unregisters it.
	OnSessionChange(fn SessionChangeFunc) (unsubscribe func())
}

// Readier is implemented by backends that need an explicit startup handshake
// (e.g. a client that connects lazily).
type Readier interface {
	Ready(ctx context.Context) error
}
