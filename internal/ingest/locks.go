package ingest

import "sync"

// tableLocks hands out one mutex per table name so that concurrent
// ingestions into the same table run one after another in this process.
type tableLocks struct {
	mu    sync.Mutex
	locks map[string]*tableLock
}

type tableLock struct {
	sync.Mutex
	refs int
}

func (l *tableLocks) lock(table string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*tableLock)
	}
	tl, ok := l.locks[table]
	if !ok {
		tl = &tableLock{}
		l.locks[table] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.Lock()
	return func() {
		tl.Unlock()
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, table)
		}
		l.mu.Unlock()
	}
}
