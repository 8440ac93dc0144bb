package indexer

import "sync/atomic"

// IndexLock is a non-blocking guard that refuses a second project run
// while one is in progress
type IndexLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire returns false when the lock is already held
func (l *IndexLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release must only be called by the holder
func (l *IndexLock) Release() {
	l.state.Store(0)
}

// Held reports whether a run is in progress
func (l *IndexLock) Held() bool {
	return l.state.Load() == 1
}
