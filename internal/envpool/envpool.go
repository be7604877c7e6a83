// Package envpool is the process-wide registry of open environments,
// one per backing file path, reference-counted so the last release
// closes the file. A Pool can be constructed and torn down on its own
// (as this package's tests do), but no façade constructor takes one:
// kv.Open always goes through the package-level DefaultPool.
package envpool

import (
	"fmt"
	"sync"

	"github.com/govetachun/graphdb/internal/storage/disk"
)

// Lease is a reference to a shared, opened environment. Exactly one
// Release call per Acquire call is expected; the underlying file stays
// open until the refcount drops to zero.
type Lease struct {
	Env  *disk.Env
	pool *Pool
	path string
}

type entry struct {
	env      *disk.Env
	refcount int
}

// Pool tracks open environments by file path.
type Pool struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewPool creates an empty, independently-lifetimed registry. Tests
// that need deterministic teardown should construct their own Pool
// instead of sharing DefaultPool.
func NewPool() *Pool {
	return &Pool{entries: map[string]*entry{}}
}

// DefaultPool is the process-wide registry used by envpool.Acquire.
var DefaultPool = NewPool()

// Acquire opens path if it isn't already open, or bumps the refcount
// of an already-open environment, through DefaultPool.
func Acquire(path string) (*Lease, error) {
	return DefaultPool.Acquire(path)
}

// Release returns a Lease acquired through Acquire (or a Pool's own
// Acquire), closing the file once the last lease is released.
func Release(l *Lease) error {
	if l == nil {
		return nil
	}
	return l.pool.Release(l)
}

// Acquire opens path if it isn't already open in this pool, or bumps
// the refcount of an already-open environment for it.
func (p *Pool) Acquire(path string) (*Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.entries[path]; ok {
		e.refcount++
		return &Lease{Env: e.env, pool: p, path: path}, nil
	}

	env := &disk.Env{Path: path}
	if err := env.Open(); err != nil {
		return nil, fmt.Errorf("envpool: %w", err)
	}
	p.entries[path] = &entry{env: env, refcount: 1}
	return &Lease{Env: env, pool: p, path: path}, nil
}

// Release decrements the refcount for l's path, closing and removing
// the environment once it reaches zero.
func (p *Pool) Release(l *Lease) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[l.path]
	if !ok {
		return nil
	}
	e.refcount--
	if e.refcount > 0 {
		return nil
	}
	delete(p.entries, l.path)
	e.env.Close()
	return nil
}

// Count returns the number of distinct open environments, for tests
// that want to assert the pool drains to empty.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
