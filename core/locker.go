package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	defaultLockTTL          = 30 * time.Second
	defaultLockRetryInitial = 50 * time.Millisecond
	defaultLockRetryMax     = time.Second
)

type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLockEntry
	nowFn func() time.Time
	seq   uint64
}

type memoryLockEntry struct {
	until time.Time
	token uint64
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks: make(map[string]memoryLockEntry),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: locker is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("core: lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.locks[key]; ok && now.Before(entry.until) {
		return nil, fmt.Errorf("%w: %s", ErrLockUnavailable, key)
	}
	l.seq++
	l.locks[key] = memoryLockEntry{until: now.Add(ttl), token: l.seq}
	return &memoryLockHandle{locker: l, key: key, token: l.seq}, nil
}

type memoryLockHandle struct {
	locker *MemoryLocker
	key    string
	token  uint64
	once   sync.Once
}

func (h *memoryLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.once.Do(func() {
		h.locker.mu.Lock()
		if entry, ok := h.locker.locks[h.key]; ok && entry.token == h.token {
			delete(h.locker.locks, h.key)
		}
		h.locker.mu.Unlock()
	})
	return nil
}

// acquireWithWait retries Acquire with exponential backoff until wait elapses.
func acquireWithWait(ctx context.Context, locker Locker, key string, ttl, wait time.Duration) (LockHandle, error) {
	if locker == nil {
		return noopLockHandle{}, nil
	}
	deadline := time.Now().Add(wait)
	delay := defaultLockRetryInitial
	for {
		handle, err := locker.Acquire(ctx, key, ttl)
		if err == nil {
			return handle, nil
		}
		if !errors.Is(err, ErrLockUnavailable) || wait <= 0 || time.Now().Add(delay).After(deadline) {
			return nil, err
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
		if delay > defaultLockRetryMax {
			delay = defaultLockRetryMax
		}
	}
}

type noopLockHandle struct{}

func (noopLockHandle) Unlock(context.Context) error { return nil }

func releaseLock(ctx context.Context, handle LockHandle) {
	if handle == nil {
		return
	}
	_ = handle.Unlock(context.WithoutCancel(ctx))
}
