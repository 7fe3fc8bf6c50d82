package pipeline

import (
	"context"
	"sync"

	"github.com/teranos/shelf/errors"
)

// unitLocks serializes runs per unit name. Entries are reference counted
// and dropped once nobody holds or waits for them.
type unitLocks struct {
	mu      sync.Mutex
	entries map[string]*unitLock
}

type unitLock struct {
	sem  chan struct{}
	refs int
}

func newUnitLocks() *unitLocks {
	return &unitLocks{entries: make(map[string]*unitLock)}
}

// acquire blocks until the lock for name is held or ctx is done.
// The returned func releases the lock.
func (l *unitLocks) acquire(ctx context.Context, name string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[name]
	if !ok {
		e = &unitLock{sem: make(chan struct{}, 1)}
		l.entries[name] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		return func() {
			<-e.sem
			l.drop(name, e)
		}, nil
	case <-ctx.Done():
		l.drop(name, e)
		return nil, errors.Wrapf(ctx.Err(), "waiting for unit %s", name)
	}
}

func (l *unitLocks) drop(name string, e *unitLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, name)
	}
}

func (l *unitLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
