package ledger

import "sync"

// Locks hands out one mutex per account. Entries are never evicted.
type Locks struct {
	mu    sync.Mutex
	table map[string]*sync.Mutex
}

func NewLocks() *Locks {
	return &Locks{table: map[string]*sync.Mutex{}}
}

func (l *Locks) get(userID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.table[userID]
	if !ok {
		m = &sync.Mutex{}
		l.table[userID] = m
	}
	return m
}

// Lock acquires the account mutex and returns its unlock func.
func (l *Locks) Lock(userID string) func() {
	m := l.get(userID)
	m.Lock()
	return m.Unlock
}
