package lock

import (
	"context"
	"errors"
)

// ErrNotAcquired is returned when the lock could not be taken before ctx ended
var ErrNotAcquired = errors.New("lock not acquired")

// Locker serialises critical sections by name
type Locker interface {
	// Acquire blocks until the named lock is held or ctx is done. The returned
	// release func is safe to call more than once.
	Acquire(ctx context.Context, name string) (release func(), err error)
}
