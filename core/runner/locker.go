package runner

import (
	"context"
	"sync"
)

// MutexLocker serializes polling passes within a single process.
type MutexLocker struct {
	mu sync.Mutex
}

var _ Locker = (*MutexLocker)(nil)

func NewMutexLocker() *MutexLocker {
	return &MutexLocker{}
}

func (l *MutexLocker) TryLock(context.Context) (func(), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return l.mu.Unlock, true, nil
}
