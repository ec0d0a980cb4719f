package posting

import (
	"context"
	"slices"
	"sync"
)

// Locker serializes postings that touch the same balance or batch.
// Lock must acquire keys in the order given and release all of them on unlock.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

// LocalLocker is an in-process Locker with one mutex per key.
// Entries are reference counted and dropped once nobody holds or waits on them.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

// Lock takes every key in sorted order, so two callers asking for overlapping
// sets cannot deadlock. It gives up when ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = sortedUnique(keys)

	held := make([]string, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.unlock(held[i])
		}
	}

	for _, k := range keys {
		kl := l.acquireRef(k)
		select {
		case kl.ch <- struct{}{}:
			held = append(held, k)
		case <-ctx.Done():
			l.dropRef(k)
			release()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *LocalLocker) acquireRef(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (l *LocalLocker) dropRef(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if kl, ok := l.locks[key]; ok {
		kl.refs--
		if kl.refs == 0 {
			delete(l.locks, key)
		}
	}
}

func (l *LocalLocker) unlock(key string) {
	l.mu.Lock()
	kl := l.locks[key]
	l.mu.Unlock()
	if kl == nil {
		return
	}
	<-kl.ch
	l.dropRef(key)
}

// held reports how many keys currently have an entry. Used by tests.
func (l *LocalLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func sortedUnique(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}
