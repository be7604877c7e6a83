// Package kv is the ordered key/value façade the graph engine is
// built on: named sub-databases, nested child transactions, and
// lexicographic cursors over a single mmap-backed disk.Env.
//
// Sub-databases are namespaced by prepending a short ASCII tag and a
// NUL separator to every key before it reaches the B-tree (spec §4.2:
// "Named sub-databases addressable by short ASCII tags"). Tags never
// contain NUL, so no tag is a prefix of another once the separator is
// included, and prefix-bounded cursor scans can't cross into a
// neighboring sub-database.
package kv

import (
	"github.com/govetachun/graphdb/internal/concurrency"
	"github.com/govetachun/graphdb/internal/envpool"
	"github.com/govetachun/graphdb/internal/storage/disk"
	"github.com/govetachun/graphdb/pkg/errors"
)

// Tag identifies a sub-database by its short ASCII name.
type Tag string

const (
	VertexSet         Tag = "VERTEX_SET"
	VertexSetL        Tag = "VERTEX_SET_L"
	AdjacencyMatrix   Tag = "ADJACENCY_MATRIX"
	AdjacencyMatrixL  Tag = "ADJACENCY_MATRIX_L"
	VertexFeature     Tag = "VERTEX_FEATURE"
	VertexFeatureHash Tag = "VERTEX_FEATURE_H"
	EdgeFeature       Tag = "EDGE_FEATURE"
	EdgeFeatureHash   Tag = "EDGE_FEATURE_H"
)

const sep = 0x00

func namespaced(tag Tag, key []byte) []byte {
	out := make([]byte, 0, len(tag)+1+len(key))
	out = append(out, tag...)
	out = append(out, sep)
	out = append(out, key...)
	return out
}

// tagOf recovers the sub-database tag a namespaced key belongs to.
func tagOf(nsKey string) Tag {
	for i := 0; i < len(nsKey); i++ {
		if nsKey[i] == sep {
			return Tag(nsKey[:i])
		}
	}
	return Tag(nsKey)
}

// Store is the KV environment a graph database lives in: one opened
// disk.Env reached through the process-wide envpool, wrapped with the
// sub-database namespacing this package owns and a per-tag
// reader-writer lock so concurrent root transactions touching
// different sub-databases never block each other.
type Store struct {
	lease *envpool.Lease
	locks *concurrency.LockManager
}

// Open acquires (or creates) the environment for path through the
// process-wide pool. Call Close to release the lease.
func Open(path string) (*Store, error) {
	lease, err := envpool.Acquire(path)
	if err != nil {
		return nil, err
	}
	return &Store{lease: lease, locks: concurrency.NewLockManager()}, nil
}

func (s *Store) tagLock(tag Tag) *concurrency.RWMutex {
	return s.locks.GetLock(string(tag))
}

// Close releases this Store's reference on the environment; the file
// is only closed once every lease on that path has been released.
func (s *Store) Close() error {
	return envpool.Release(s.lease)
}

func (s *Store) env() *disk.Env { return s.lease.Env }

// Begin starts a transaction. parent == nil starts a root transaction
// reading from (and, on commit, writing straight to) the environment;
// parent != nil starts a child that inherits the parent's visible
// writes and folds its own writes into the parent on commit.
func (s *Store) Begin(parent *Txn) (*Txn, error) {
	if parent != nil && parent.done {
		return nil, errors.ErrAborted
	}
	return &Txn{
		store:  s,
		parent: parent,
		puts:   map[string][]byte{},
		dels:   map[string]bool{},
	}, nil
}
