package graph

import (
	"github.com/govetachun/graphdb/internal/bitmap"
	"github.com/govetachun/graphdb/internal/pagedlist"
	"github.com/govetachun/graphdb/internal/storage/kv"
	"github.com/govetachun/graphdb/pkg/keycodec"
)

// PageSize is the size in bytes of every bitmap page the vertex set
// and adjacency matrix append; it is the PAGE_SIZE constant of the
// schema. BitsPerPage is the vertex (or column) capacity one such
// page covers.
const (
	PageSize    = 256
	BitsPerPage = PageSize * 8
)

// vertexSet is the membership bitmap for one graph: a paged list of
// PageSize-byte pages, BitsPerPage vertex slots per page, grown one
// page at a time when a vertex is added while every bit within the
// current capacity is already set.
type vertexSet struct {
	txn     *kv.Txn
	graphID uint64
	list    *pagedlist.List // nil until the directory entry exists
}

func openVertexSet(txn *kv.Txn, graphID uint64) (*vertexSet, error) {
	vs := &vertexSet{txn: txn, graphID: graphID}
	v, ok, err := txn.Get(kv.VertexSet, keycodec.Q(graphID))
	if err != nil {
		return nil, err
	}
	if ok {
		id, _ := keycodec.UnQQ(v)
		vs.list = pagedlist.Open(txn, kv.VertexSetL, id)
	}
	return vs, nil
}

// ensure creates the backing list (and its directory entry) the first
// time a graph needs one. The directory value is (listID, 0) per the
// spec's external schema, and never changes afterward: it names the
// list, not its current size.
func (vs *vertexSet) ensure() (*pagedlist.List, error) {
	if vs.list != nil {
		return vs.list, nil
	}
	l, err := pagedlist.Create(vs.txn, kv.VertexSetL)
	if err != nil {
		return nil, err
	}
	if err := vs.txn.Put(kv.VertexSet, keycodec.Q(vs.graphID), keycodec.QQ(l.ID, 0)); err != nil {
		return nil, err
	}
	vs.list = l
	return l, nil
}

// capacity returns how many vertex ids are currently addressable
// (whether or not their membership bit is set).
func (vs *vertexSet) capacity() (uint64, error) {
	if vs.list == nil {
		return 0, nil
	}
	n, err := vs.list.PageCount()
	if err != nil {
		return 0, err
	}
	return n * BitsPerPage, nil
}

// appendPage grows capacity by one page of all-clear bits.
func (vs *vertexSet) appendPage() error {
	l, err := vs.ensure()
	if err != nil {
		return err
	}
	_, err = l.AppendPage(make([]byte, PageSize))
	return err
}

// get reports whether vertex i is present. i beyond capacity is
// simply absent, not an error: queries never need to expand storage.
func (vs *vertexSet) get(i uint64) (bool, error) {
	cap, err := vs.capacity()
	if err != nil {
		return false, err
	}
	if i >= cap {
		return false, nil
	}
	page, err := vs.list.ReadPage(i / BitsPerPage)
	if err != nil {
		return false, err
	}
	return bitmap.Get(page, int(i%BitsPerPage))
}

// setBit flips the membership bit for a vertex id already within
// capacity. Callers beyond capacity must expand first.
func (vs *vertexSet) setBit(i uint64, present bool) error {
	page, err := vs.list.ReadPage(i / BitsPerPage)
	if err != nil {
		return err
	}
	bitmap.Set(page, int(i%BitsPerPage), present)
	return vs.list.WritePage(i/BitsPerPage, page)
}

// firstClearBit returns the first clear bit at or after i, wrapping
// within current capacity, the way vertex(i, true) resolves a
// collision with an already-set bit by searching linearly. ok is false
// when every bit within capacity is already set.
func (vs *vertexSet) firstClearBit(i uint64) (uint64, bool, error) {
	cap, err := vs.capacity()
	if err != nil {
		return 0, false, err
	}
	if cap == 0 {
		return 0, false, nil
	}
	for step := uint64(0); step < cap; step++ {
		idx := (i + step) % cap
		set, err := vs.get(idx)
		if err != nil {
			return 0, false, err
		}
		if !set {
			return idx, true, nil
		}
	}
	return 0, false, nil
}

// popCount sums the set bits across every page: the number of
// vertices currently present in the graph.
func (vs *vertexSet) popCount() (int, error) {
	if vs.list == nil {
		return 0, nil
	}
	total := 0
	err := vs.list.Iterate(func(_ uint64, page []byte) error {
		total += bitmap.PopCount(page)
		return nil
	})
	return total, err
}
