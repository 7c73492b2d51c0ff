package lock

import (
	"context"
	"time"

	"github.com/garyjia/invoice-matching/internal/application/port"
)

// timeoutLocker bounds how long Acquire waits
type timeoutLocker struct {
	next    port.MatchLocker
	timeout time.Duration
}

// WithTimeout wraps next so a caller waits at most timeout for a lock.
// A non-positive timeout returns next unchanged.
func WithTimeout(next port.MatchLocker, timeout time.Duration) port.MatchLocker {
	if timeout <= 0 {
		return next
	}
	return &timeoutLocker{next: next, timeout: timeout}
}

func (l *timeoutLocker) Acquire(ctx context.Context, key string) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	return l.next.Acquire(ctx, key)
}
