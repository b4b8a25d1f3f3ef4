package files

import (
	"path/filepath"
	"sync"
)

// PathLocks hands out one mutex per cleaned path. Entries are reference
// counted and dropped once no goroutine holds or waits for them.
type PathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

// NewPathLocks creates an empty lock registry
func NewPathLocks() *PathLocks {
	return &PathLocks{locks: make(map[string]*pathLock)}
}

// Lock blocks until the caller holds the lock for path and returns the
// function that releases it.
func (p *PathLocks) Lock(path string) (unlock func()) {
	key := filepath.Clean(path)

	p.mu.Lock()
	l, ok := p.locks[key]
	if !ok {
		l = &pathLock{}
		p.locks[key] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			p.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(p.locks, key)
			}
			p.mu.Unlock()
		})
	}
}

// Len returns the number of paths currently locked or waited on.
func (p *PathLocks) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}
