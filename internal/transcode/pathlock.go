package transcode

import (
	"context"
	"path/filepath"
	"sync"
)

type pathLock struct {
	sem  chan struct{}
	refs int
}

// PathLocks hands out one mutual-exclusion lock per output path. Entries are
// created on first use and dropped when the last holder or waiter leaves.
type PathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

func NewPathLocks() *PathLocks {
	return &PathLocks{locks: make(map[string]*pathLock)}
}

// Acquire blocks until the lock for path is held or ctx is done. The returned
// release func is safe to call more than once.
func (l *PathLocks) Acquire(ctx context.Context, path string) (func(), error) {
	key := normalizePath(path)

	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &pathLock{sem: make(chan struct{}, 1)}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, lock)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lock.sem
			l.unref(key, lock)
		})
	}, nil
}

func (l *PathLocks) unref(key string, lock *pathLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, key)
	}
}

// Refs returns the number of holders and waiters for path.
func (l *PathLocks) Refs(path string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lock, ok := l.locks[normalizePath(path)]; ok {
		return lock.refs
	}
	return 0
}

// Len returns the number of live entries.
func (l *PathLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func normalizePath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
