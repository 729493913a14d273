// Package lock provides the in-process key locker used by single-instance deployments.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/jhoicas/inventory-costing/internal/domain"
)

// LocalLocker is a per-key mutex with a bounded wait. Entries are dropped once no caller
// holds or waits for the key.
type LocalLocker struct {
	mu      sync.Mutex
	keys    map[string]*keyLock
	timeout time.Duration
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker returns a locker that waits at most timeout for a key.
func NewLocalLocker(timeout time.Duration) *LocalLocker {
	return &LocalLocker{keys: make(map[string]*keyLock), timeout: timeout}
}

// Lock blocks until key is free, timeout elapses or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	kl := l.ref(key)

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()
	start := time.Now()

	select {
	case kl.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-kl.ch
				l.unref(key, kl)
			})
		}, nil
	case <-timer.C:
		l.unref(key, kl)
		return nil, &domain.ContentionError{Key: key, Waited: time.Since(start)}
	case <-ctx.Done():
		l.unref(key, kl)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) ref(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.keys[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.keys[key] = kl
	}
	kl.refs++
	return kl
}

func (l *LocalLocker) unref(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.keys, key)
	}
}

// held reports the number of keys currently tracked.
func (l *LocalLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
