package port

import (
	"context"
	"errors"
)

// ErrLockTimeout is returned when a match lock could not be obtained in time
var ErrLockTimeout = errors.New("timed out waiting for match lock")

// MatchLocker serialises mutations of a single match across goroutines and,
// with a shared backend, across processes
type MatchLocker interface {
	// Acquire blocks until the lock for matchID is held or ctx is done.
	// The returned release func must be called exactly once.
	Acquire(ctx context.Context, matchID string) (release func(), err error)
}
