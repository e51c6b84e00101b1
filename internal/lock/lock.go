// Package lock provides per-key mutual exclusion for read-modify-write cycles.
package lock

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrNotAcquired is returned when the lock could not be taken before the context
// ended.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker serializes work per key. The returned unlock func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type keyedEntry struct {
	sem  *semaphore.Weighted
	refs int
}

// KeyedLocker is an in-process Locker. Entries are removed once no goroutine holds
// or waits on them.
type KeyedLocker struct {
	entries map[string]*keyedEntry
	mu      sync.Mutex
}

// NewKeyedLocker creates an empty keyed locker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{entries: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free or ctx ends.
func (l *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &keyedEntry{sem: semaphore.NewWeighted(1)}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	if err := entry.sem.Acquire(ctx, 1); err != nil {
		l.release(key, entry, false)
		return nil, errors.Join(ErrNotAcquired, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, entry, true) })
	}, nil
}

func (l *KeyedLocker) release(key string, entry *keyedEntry, held bool) {
	if held {
		entry.sem.Release(1)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}

// Len returns the number of keys currently held or waited on.
func (l *KeyedLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
