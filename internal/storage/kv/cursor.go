package kv

import (
	"bytes"
	"sort"
)

// entry is one resolved (key, value) pair within a sub-database, with
// the tag prefix already stripped.
type entry struct {
	key []byte
	val []byte
}

// Cursor iterates a sub-database in ascending lexicographic key order,
// merging every ancestor Txn's pending writes over the committed
// environment. It materializes its view once at construction time
// (read-your-writes, not a live view of later Puts on the same Txn).
type Cursor struct {
	entries []entry
	pos     int
}

func newCursor(t *Txn, db Tag) *Cursor {
	prefix := append([]byte(db), sep)

	merged := map[string][]byte{}
	deleted := map[string]bool{}

	// Committed state first, lowest priority.
	lock := t.store.tagLock(db)
	lock.RLock()
	iter := t.store.env().Cursor(prefix)
	for iter.Valid() {
		k, v := iter.Deref()
		if !bytes.HasPrefix(k, prefix) {
			break
		}
		merged[string(k)] = append([]byte(nil), v...)
		iter.Next()
	}
	lock.RUnlock()

	// Walk ancestors from the oldest (store-adjacent) to the newest
	// (t itself) so the most recent write for any key wins.
	chain := []*Txn{}
	for cur := t; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		cur := chain[i]
		for k := range cur.dels {
			if bytes.HasPrefix([]byte(k), prefix) {
				delete(merged, k)
				deleted[k] = true
			}
		}
		for k, v := range cur.puts {
			if bytes.HasPrefix([]byte(k), prefix) {
				merged[k] = v
				delete(deleted, k)
			}
		}
	}

	entries := make([]entry, 0, len(merged))
	for k, v := range merged {
		entries = append(entries, entry{key: []byte(k[len(prefix):]), val: v})
	}
	sort.Slice(entries, func(i, j int) bool { return bytes.Compare(entries[i].key, entries[j].key) < 0 })

	return &Cursor{entries: entries}
}

// Valid reports whether Deref would return a usable pair.
func (c *Cursor) Valid() bool { return c.pos < len(c.entries) }

// Deref returns the current (key, value) pair, with the sub-database
// tag prefix already removed from the key.
func (c *Cursor) Deref() ([]byte, []byte) {
	e := c.entries[c.pos]
	return e.key, e.val
}

// Next advances to the next key in ascending order.
func (c *Cursor) Next() {
	if c.pos < len(c.entries) {
		c.pos++
	}
}

// Len returns the total number of entries the cursor will yield.
func (c *Cursor) Len() int { return len(c.entries) }
