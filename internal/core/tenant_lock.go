package core

import (
	"context"
	"sync"
)

// TenantLocks serializes catalog writes per tenant. Entries are reference
// counted and dropped once no holder or waiter remains.
type TenantLocks struct {
	mu    sync.Mutex
	locks map[int64]*tenantLock
}

type tenantLock struct {
	ch   chan struct{}
	refs int
}

// NewTenantLocks creates an empty lock table.
func NewTenantLocks() *TenantLocks {
	return &TenantLocks{locks: make(map[int64]*tenantLock)}
}

// Lock blocks until the tenant's lock is held or ctx is done.
// The returned function releases the lock and must be called exactly once.
func (t *TenantLocks) Lock(ctx context.Context, tenantID int64) (func(), error) {
	t.mu.Lock()
	l, ok := t.locks[tenantID]
	if !ok {
		l = &tenantLock{ch: make(chan struct{}, 1)}
		t.locks[tenantID] = l
	}
	l.refs++
	t.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			t.release(tenantID, l)
		}, nil
	case <-ctx.Done():
		t.release(tenantID, l)
		return nil, ctx.Err()
	}
}

func (t *TenantLocks) release(tenantID int64, l *tenantLock) {
	t.mu.Lock()
	defer t.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(t.locks, tenantID)
	}
}

// Len returns the number of tenants currently locked or waited on.
func (t *TenantLocks) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
