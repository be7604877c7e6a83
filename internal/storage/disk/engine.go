// Package disk is the mmap-backed single-file page engine underneath
// the KV façade. One Env owns one open file and the one B-tree that
// indexes every sub-database's keys (sub-databases are namespaced by a
// tag prefix baked into the key bytes by internal/storage/kv, not by
// separate trees here — see DESIGN.md).
package disk

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/govetachun/graphdb/internal/storage/btree"
	"github.com/govetachun/graphdb/pkg/errors"
	"github.com/govetachun/graphdb/pkg/utils"
)

// dbSig is written at the front of every environment file so a reopen
// can sanity-check it isn't pointed at an unrelated file.
const dbSig = "graphdb-core-v1\x00"

// masterPageSize is the fixed layout of page 0: | sig(16B) | root(8B) | used(8B) |.
const masterPageSize = len(dbSig) + 8 + 8

// Env is one open backing file plus the B-tree indexing its keys. All
// mutation goes through ApplyBatch so a batch either lands on disk in
// full or not at all.
type Env struct {
	Path string

	fp   *os.File
	tree btree.BTree

	mmap struct {
		file   int
		total  int
		chunks [][]byte
	}

	page struct {
		flushed uint64
		nappend int
		updates map[uint64][]byte
	}
}

// Open opens or creates the backing file and loads its master page.
func (e *Env) Open() error {
	fp, err := os.OpenFile(e.Path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("disk: open %s: %w", e.Path, err)
	}
	e.fp = fp

	sz, chunk, err := mmapInit(e.fp)
	if err != nil {
		e.Close()
		return fmt.Errorf("disk: mmap init: %w", err)
	}
	e.mmap.file = sz
	e.mmap.total = len(chunk)
	e.mmap.chunks = [][]byte{chunk}
	e.page.updates = map[uint64][]byte{}

	e.tree.SetGet(e.pageGet)
	e.tree.SetNew(e.pageNew)
	e.tree.SetDel(e.pageDel)

	if err := e.masterLoad(); err != nil {
		e.Close()
		return fmt.Errorf("disk: master load: %w", err)
	}
	return nil
}

// Close unmaps every chunk and closes the file. Safe to call after a
// failed Open.
func (e *Env) Close() {
	for _, chunk := range e.mmap.chunks {
		if chunk == nil {
			continue
		}
		utils.Assert(unix.Munmap(chunk) == nil, "disk: munmap failed")
	}
	if e.fp != nil {
		_ = e.fp.Close()
	}
}

// Get reads the committed (flushed) value for key, ignoring any
// in-flight batch. Transaction overlays are kv.Txn's concern.
func (e *Env) Get(key []byte) ([]byte, bool) {
	return e.tree.Get(key)
}

// Cursor returns an iterator positioned at the first key >= seek over
// the committed tree (no in-flight batch visible).
func (e *Env) Cursor(seek []byte) *btree.BIter {
	return e.tree.SeekLE(seek)
}

// ApplyBatch inserts every entry of puts and deletes every key in dels,
// then flushes the whole batch to disk as one unit: partial failure
// during the tree mutations leaves the in-memory tree ahead of disk,
// but nothing is synced until flushPages succeeds, so a crash mid-batch
// never produces a partially-written commit on reopen.
func (e *Env) ApplyBatch(puts map[string][]byte, dels map[string]bool) error {
	for k := range dels {
		e.tree.Delete([]byte(k))
	}
	for k, v := range puts {
		if err := e.tree.Insert([]byte(k), v); err != nil {
			return errors.NewStorageError("insert failed", err)
		}
	}
	return e.flushPages()
}

// --- page callbacks for btree.BTree ---

func (e *Env) pageGet(ptr uint64) btree.BNode {
	if page, ok := e.page.updates[ptr]; ok {
		utils.Assert(page != nil, "disk: dereferenced a deallocated page")
		return btree.NewBNode(page)
	}
	return e.pageMapped(ptr)
}

func (e *Env) pageMapped(ptr uint64) btree.BNode {
	start := uint64(0)
	for _, chunk := range e.mmap.chunks {
		end := start + uint64(len(chunk))/btree.BTREE_PAGE_SIZE
		if ptr < end {
			offset := btree.BTREE_PAGE_SIZE * (ptr - start)
			return btree.NewBNode(chunk[offset : offset+btree.BTREE_PAGE_SIZE])
		}
		start = end
	}
	panic("disk: dangling page pointer")
}

func (e *Env) pageNew(node btree.BNode) uint64 {
	utils.Assert(len(node.GetData()) <= btree.BTREE_PAGE_SIZE, "disk: page too large")
	ptr := e.page.flushed + uint64(e.page.nappend)
	e.page.nappend++
	e.page.updates[ptr] = node.GetData()
	return ptr
}

func (e *Env) pageDel(ptr uint64) {
	// No space reclamation: pages are never reused across a commit.
	// The spec explicitly forgoes compaction on vertex removal; we
	// extend the same policy to the underlying page allocator rather
	// than carry a persisted free list nothing in the core exercises.
	e.page.updates[ptr] = nil
}

// --- file/mmap growth and master page persistence ---

func mmapInit(fp *os.File) (int, []byte, error) {
	fi, err := fp.Stat()
	if err != nil {
		return 0, nil, fmt.Errorf("stat: %w", err)
	}
	if fi.Size()%btree.BTREE_PAGE_SIZE != 0 {
		return 0, nil, fmt.Errorf("file size %d is not a multiple of the page size", fi.Size())
	}
	mmapSize := 64 << 20
	for mmapSize < int(fi.Size()) {
		mmapSize *= 2
	}
	chunk, err := unix.Mmap(
		int(fp.Fd()), 0, mmapSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED,
	)
	if err != nil {
		return 0, nil, fmt.Errorf("mmap: %w", err)
	}
	return int(fi.Size()), chunk, nil
}

func (e *Env) extendMmap(npages int) error {
	size := npages * btree.BTREE_PAGE_SIZE
	if size <= e.mmap.total {
		return nil
	}
	alloc := e.mmap.total
	if alloc < 64<<20 {
		alloc = 64 << 20
	}
	for e.mmap.total+alloc < size {
		alloc *= 2
	}
	chunk, err := unix.Mmap(
		int(e.fp.Fd()), int64(e.mmap.total), alloc,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED,
	)
	if err != nil {
		return fmt.Errorf("mmap: %w", err)
	}
	e.mmap.total += alloc
	e.mmap.chunks = append(e.mmap.chunks, chunk)
	return nil
}

func (e *Env) extendFile(npages int) error {
	filePages := e.mmap.file / btree.BTREE_PAGE_SIZE
	if filePages >= npages {
		return nil
	}
	for filePages < npages {
		inc := filePages / 8
		if inc < 1 {
			inc = 1
		}
		filePages += inc
	}
	fileSize := filePages * btree.BTREE_PAGE_SIZE
	if err := unix.Fallocate(int(e.fp.Fd()), 0, 0, int64(fileSize)); err != nil {
		return fmt.Errorf("fallocate: %w", err)
	}
	e.mmap.file = fileSize
	return nil
}

func (e *Env) writePages() error {
	npages := int(e.page.flushed) + e.page.nappend
	if err := e.extendFile(npages); err != nil {
		return err
	}
	if err := e.extendMmap(npages); err != nil {
		return err
	}
	for ptr, page := range e.page.updates {
		if page != nil {
			copy(e.pageMapped(ptr).GetData(), page)
		}
	}
	return nil
}

func (e *Env) flushPages() error {
	if err := e.writePages(); err != nil {
		return err
	}
	if err := e.fp.Sync(); err != nil {
		return fmt.Errorf("fsync: %w", err)
	}
	e.page.flushed += uint64(e.page.nappend)
	e.page.nappend = 0
	e.page.updates = map[uint64][]byte{}
	if err := e.masterStore(); err != nil {
		return err
	}
	return e.fp.Sync()
}

// masterLoad reads page 0: | sig | root ptr | pages used |.
func (e *Env) masterLoad() error {
	if e.mmap.file == 0 {
		e.page.flushed = 1 // page 0 reserved for the master page
		return nil
	}
	data := e.pageMapped(0).GetData()[:masterPageSize]
	if string(data[:len(dbSig)]) != dbSig {
		return errors.NewCorruptError("bad master page signature")
	}
	root := leU64(data[len(dbSig):])
	used := leU64(data[len(dbSig)+8:])
	e.tree.SetRoot(root)
	e.page.flushed = used
	return nil
}

func (e *Env) masterStore() error {
	if err := e.extendFile(1); err != nil {
		return err
	}
	if err := e.extendMmap(1); err != nil {
		return err
	}
	data := make([]byte, masterPageSize)
	copy(data, dbSig)
	putLeU64(data[len(dbSig):], e.tree.GetRoot())
	putLeU64(data[len(dbSig)+8:], e.page.flushed)
	copy(e.pageMapped(0).GetData()[:masterPageSize], data)
	return nil
}

func leU64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func putLeU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}
