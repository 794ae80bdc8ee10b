package engine

import "sync"

// nameLocks tracks which player names are under an active interview. At most
// one session holds a given name at any time, system-wide. TryAcquire is an
// atomic test-and-insert so two concurrent Begin calls for the same name
// cannot both succeed.
type nameLocks struct {
	mu   sync.Mutex
	held map[string]SessionKey
}

func newNameLocks() *nameLocks {
	return &nameLocks{held: make(map[string]SessionKey)}
}

// TryAcquire inserts player→owner if the name is free or already owned by
// owner. Reports whether the lock is held by owner afterwards.
func (l *nameLocks) TryAcquire(player string, owner SessionKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.held[player]; ok {
		return cur == owner
	}
	l.held[player] = owner
	return true
}

// HeldBy reports whether owner currently holds the lock on player. The
// timeout path uses this as part of its stale-timer guard.
func (l *nameLocks) HeldBy(player string, owner SessionKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.held[player]
	return ok && cur == owner
}

// Release drops the lock on player if owner holds it. Reports whether a
// lock was released; releasing a lock held by someone else is a no-op.
func (l *nameLocks) Release(player string, owner SessionKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.held[player]
	if !ok || cur != owner {
		return false
	}
	delete(l.held, player)
	return true
}

// Len returns the number of names currently locked.
func (l *nameLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}
