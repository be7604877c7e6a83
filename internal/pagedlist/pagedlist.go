// Package pagedlist is the append-only paged linked-list store spec
// §4.3 describes: a sequence of fixed-size pages a caller appends to
// and reads back by ordinal, built on the kv façade's ordered
// sub-databases rather than on real linked pointers.
//
// A sub-database such as VERTEX_SET_L holds many independent lists at
// once (one per graph's vertex set, one per adjacency row, ...), so a
// single well-known metadata key per sub-database won't do — two
// lists would fight over it. Instead every list is assigned a listID
// at creation time, handed out by one shared counter that itself lives
// at the reserved key (0, 0) of the sub-database (listID 0 is never
// issued to a real list). Pages of list id then live at key (id, tail)
// for tail = 0, 1, 2, ...; the list's own running page count lives at
// the reserved key (id, tailSentinel), a tail value no real page can
// reach. This is the resolution recorded in DESIGN.md for the open
// question of per-list vs. per-database metadata placement:
// the reference implementation's own tests only ever exercise a
// single graph per file, so they don't distinguish the two readings.
package pagedlist

import (
	"github.com/govetachun/graphdb/internal/storage/kv"
	"github.com/govetachun/graphdb/pkg/errors"
	"github.com/govetachun/graphdb/pkg/keycodec"
)

// tailSentinel marks the reserved metadata slot of a list, distinct
// from any real page ordinal.
const tailSentinel = ^uint64(0)

// counterListID is the reserved listID the global per-sub-database
// allocation counter lives under; real lists start at 1.
const counterListID = 0

// List is a handle onto one paged list living inside sub-database db,
// identified by ID. ID is what spec calls the directory's "head": a
// stable, list-unique identifier handed to callers once and reused on
// every later open.
type List struct {
	txn *kv.Txn
	db  kv.Tag
	ID  uint64
}

// Create allocates a fresh, empty list in db and returns a handle to
// it. The returned List.ID is what the caller should persist in its
// own directory entry (e.g. VERTEX_SET[graph_id]) to reopen the list
// later via Open.
func Create(txn *kv.Txn, db kv.Tag) (*List, error) {
	id, err := nextListID(txn, db)
	if err != nil {
		return nil, err
	}
	l := &List{txn: txn, db: db, ID: id}
	if err := l.putPageCount(0); err != nil {
		return nil, err
	}
	return l, nil
}

// Open wraps an existing list previously returned by Create (directly
// or via its ID recovered from a directory entry). It performs no I/O
// itself; PageCount/ReadPage do.
func Open(txn *kv.Txn, db kv.Tag, id uint64) *List {
	return &List{txn: txn, db: db, ID: id}
}

func nextListID(txn *kv.Txn, db kv.Tag) (uint64, error) {
	key := keycodec.QQ(counterListID, 0)
	v, ok, err := txn.Get(db, key)
	if err != nil {
		return 0, err
	}
	next := uint64(1)
	if ok {
		next = keycodec.UnQ(v) + 1
	}
	if err := txn.Put(db, key, keycodec.Q(next)); err != nil {
		return 0, err
	}
	return next, nil
}

func (l *List) countKey() []byte { return keycodec.QQ(l.ID, tailSentinel) }

func (l *List) putPageCount(n uint64) error {
	return l.txn.Put(l.db, l.countKey(), keycodec.Q(n))
}

// PageCount returns the number of pages appended to the list so far.
func (l *List) PageCount() (uint64, error) {
	v, ok, err := l.txn.Get(l.db, l.countKey())
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.ErrCorrupt
	}
	return keycodec.UnQ(v), nil
}

// AppendPage writes buf as the next page of the list and returns its
// tail ordinal. Pages are never removed once written; WritePage can
// overwrite one in place.
func (l *List) AppendPage(buf []byte) (uint64, error) {
	n, err := l.PageCount()
	if err != nil {
		return 0, err
	}
	if err := l.txn.Put(l.db, keycodec.QQ(l.ID, n), buf); err != nil {
		return 0, err
	}
	if err := l.putPageCount(n + 1); err != nil {
		return 0, err
	}
	return n, nil
}

// ReadPage returns the page at ordinal tail. tail must be less than
// PageCount(). Every page of a list is keyed (ID, tail), so all pages
// share the list's ID as head (heads are not assigned per page) and the
// lookup is a single direct key access, not a cursor scan.
func (l *List) ReadPage(tail uint64) ([]byte, error) {
	v, ok, err := l.txn.Get(l.db, keycodec.QQ(l.ID, tail))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.ErrCorrupt
	}
	return v, nil
}

// WritePage overwrites an already-appended page in place (used by the
// bitmap/adjacency layers to flip bits within an existing page; it
// does not grow the list).
func (l *List) WritePage(tail uint64, buf []byte) error {
	n, err := l.PageCount()
	if err != nil {
		return err
	}
	if tail >= n {
		return errors.ErrOutOfRange
	}
	return l.txn.Put(l.db, keycodec.QQ(l.ID, tail), buf)
}

// Iterate calls fn with every page from tail 0 upward, stopping at the
// first error fn returns (other than nil).
func (l *List) Iterate(fn func(tail uint64, page []byte) error) error {
	n, err := l.PageCount()
	if err != nil {
		return err
	}
	for i := uint64(0); i < n; i++ {
		page, err := l.ReadPage(i)
		if err != nil {
			return err
		}
		if err := fn(i, page); err != nil {
			return err
		}
	}
	return nil
}

// IterateReverse is Iterate from the most recently appended page back
// to the first.
func (l *List) IterateReverse(fn func(tail uint64, page []byte) error) error {
	n, err := l.PageCount()
	if err != nil {
		return err
	}
	for i := n; i > 0; i-- {
		tail := i - 1
		page, err := l.ReadPage(tail)
		if err != nil {
			return err
		}
		if err := fn(tail, page); err != nil {
			return err
		}
	}
	return nil
}
