package kv

import (
	"sort"

	"github.com/govetachun/graphdb/internal/concurrency"
	"github.com/govetachun/graphdb/pkg/errors"
)

// Txn is a transaction handle, optionally a child of another Txn. It
// carries its own write-set (puts and tombstoned deletes) the way the
// teacher's transaction.Transaction carries a ReadSet/WriteSet pair;
// reads resolve read-your-writes by walking this Txn and its ancestors
// before falling through to the committed environment.
type Txn struct {
	store  *Store
	parent *Txn
	puts   map[string][]byte
	dels   map[string]bool
	done   bool
}

// Get resolves key in db, checking this Txn's own writes, then each
// ancestor's, then the committed environment.
func (t *Txn) Get(db Tag, key []byte) ([]byte, bool, error) {
	if t.done {
		return nil, false, errors.ErrAborted
	}
	nk := string(namespaced(db, key))
	for cur := t; cur != nil; cur = cur.parent {
		if cur.dels[nk] {
			return nil, false, nil
		}
		if v, ok := cur.puts[nk]; ok {
			return v, true, nil
		}
	}
	lock := t.store.tagLock(db)
	lock.RLock()
	v, ok := t.store.env().Get([]byte(nk))
	lock.RUnlock()
	return v, ok, nil
}

// Put stages a write visible to subsequent reads of this Txn (and any
// further children begun from it) immediately, and to the parent only
// once this Txn commits.
func (t *Txn) Put(db Tag, key, val []byte) error {
	if t.done {
		return errors.ErrAborted
	}
	nk := string(namespaced(db, key))
	delete(t.dels, nk)
	t.puts[nk] = append([]byte(nil), val...)
	return nil
}

// Del stages a delete the same way Put stages a write.
func (t *Txn) Del(db Tag, key []byte) error {
	if t.done {
		return errors.ErrAborted
	}
	nk := string(namespaced(db, key))
	delete(t.puts, nk)
	t.dels[nk] = true
	return nil
}

// Commit folds this Txn's write-set into its parent (if any) or, for a
// root transaction, applies it to the environment in one batch so the
// whole transaction lands on disk atomically or not at all.
func (t *Txn) Commit() error {
	if t.done {
		return errors.ErrAborted
	}
	t.done = true
	if t.parent != nil {
		if t.parent.done {
			return errors.ErrAborted
		}
		for k := range t.dels {
			delete(t.parent.puts, k)
			t.parent.dels[k] = true
		}
		for k, v := range t.puts {
			delete(t.parent.dels, k)
			t.parent.puts[k] = v
		}
		return nil
	}

	tagSet := map[Tag]bool{}
	for k := range t.puts {
		tagSet[tagOf(k)] = true
	}
	for k := range t.dels {
		tagSet[tagOf(k)] = true
	}
	tags := make([]string, 0, len(tagSet))
	for tag := range tagSet {
		tags = append(tags, string(tag))
	}
	sort.Strings(tags)

	locks := make([]*concurrency.RWMutex, len(tags))
	for i, tag := range tags {
		locks[i] = t.store.tagLock(Tag(tag))
		locks[i].Lock()
	}
	defer func() {
		for _, l := range locks {
			l.Unlock()
		}
	}()

	return t.store.env().ApplyBatch(t.puts, t.dels)
}

// Abort discards this Txn's write-set (and, transitively, any
// uncommitted child's, since children only ever write into this Txn's
// own maps once they commit). The parent, if any, is left untouched.
func (t *Txn) Abort() error {
	if t.done {
		return errors.ErrAborted
	}
	t.done = true
	t.puts = nil
	t.dels = nil
	return nil
}

// Cursor returns an ordered iterator over db, merging this Txn's
// pending writes (and its ancestors') with the committed environment.
func (t *Txn) Cursor(db Tag) (*Cursor, error) {
	if t.done {
		return nil, errors.ErrAborted
	}
	return newCursor(t, db), nil
}
