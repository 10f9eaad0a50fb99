package lock

import (
	"context"
	"fmt"
	"sync"
)

// MemoryLocker is a process-local keyed mutex
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	sem     chan struct{}
	waiters int
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*entry)}
}

func (l *MemoryLocker) Acquire(ctx context.Context, name string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[name]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.locks[name] = e
	}
	e.waiters++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.forget(name, e)
		return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, name, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.forget(name, e)
		})
	}, nil
}

// forget drops the entry once nobody holds or waits for it
func (l *MemoryLocker) forget(name string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.waiters--
	if e.waiters == 0 {
		delete(l.locks, name)
	}
}
