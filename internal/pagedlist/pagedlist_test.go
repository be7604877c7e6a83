package pagedlist

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/govetachun/graphdb/internal/storage/kv"
)

func openTestStore(t *testing.T) *kv.Store {
	t.Helper()
	s, err := kv.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func page(b byte) []byte { return []byte{b, b, b, b} }

func TestAppendAndReadPage(t *testing.T) {
	s := openTestStore(t)
	txn, err := s.Begin(nil)
	require.NoError(t, err)

	l, err := Create(txn, kv.VertexSetL)
	require.NoError(t, err)

	tail0, err := l.AppendPage(page(0xAA))
	require.NoError(t, err)
	require.Equal(t, uint64(0), tail0)

	tail1, err := l.AppendPage(page(0xBB))
	require.NoError(t, err)
	require.Equal(t, uint64(1), tail1)

	n, err := l.PageCount()
	require.NoError(t, err)
	require.Equal(t, uint64(2), n)

	got, err := l.ReadPage(0)
	require.NoError(t, err)
	require.Equal(t, page(0xAA), got)

	got, err = l.ReadPage(1)
	require.NoError(t, err)
	require.Equal(t, page(0xBB), got)

	require.NoError(t, txn.Commit())
}

func TestReadPageBeyondCountIsCorrupt(t *testing.T) {
	s := openTestStore(t)
	txn, err := s.Begin(nil)
	require.NoError(t, err)

	l, err := Create(txn, kv.VertexSetL)
	require.NoError(t, err)
	_, err = l.AppendPage(page(1))
	require.NoError(t, err)

	_, err = l.ReadPage(5)
	require.Error(t, err)
}

func TestWritePageOverwritesInPlaceWithoutGrowing(t *testing.T) {
	s := openTestStore(t)
	txn, err := s.Begin(nil)
	require.NoError(t, err)

	l, err := Create(txn, kv.VertexSetL)
	require.NoError(t, err)
	_, err = l.AppendPage(page(1))
	require.NoError(t, err)

	require.NoError(t, l.WritePage(0, page(2)))
	n, err := l.PageCount()
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)

	got, err := l.ReadPage(0)
	require.NoError(t, err)
	require.Equal(t, page(2), got)

	require.Error(t, l.WritePage(1, page(3)))
}

func TestIterateAndIterateReverseOrder(t *testing.T) {
	s := openTestStore(t)
	txn, err := s.Begin(nil)
	require.NoError(t, err)

	l, err := Create(txn, kv.VertexSetL)
	require.NoError(t, err)
	for i := byte(0); i < 4; i++ {
		_, err := l.AppendPage(page(i))
		require.NoError(t, err)
	}

	var forward []byte
	require.NoError(t, l.Iterate(func(tail uint64, p []byte) error {
		forward = append(forward, p[0])
		return nil
	}))
	require.Equal(t, []byte{0, 1, 2, 3}, forward)

	var backward []byte
	require.NoError(t, l.IterateReverse(func(tail uint64, p []byte) error {
		backward = append(backward, p[0])
		return nil
	}))
	require.Equal(t, []byte{3, 2, 1, 0}, backward)
}

func TestDistinctListsInSameSubDatabaseDoNotCollide(t *testing.T) {
	s := openTestStore(t)
	txn, err := s.Begin(nil)
	require.NoError(t, err)

	a, err := Create(txn, kv.VertexSetL)
	require.NoError(t, err)
	b, err := Create(txn, kv.VertexSetL)
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)

	_, err = a.AppendPage(page(0x11))
	require.NoError(t, err)
	_, err = b.AppendPage(page(0x22))
	require.NoError(t, err)
	_, err = b.AppendPage(page(0x33))
	require.NoError(t, err)

	na, err := a.PageCount()
	require.NoError(t, err)
	require.Equal(t, uint64(1), na)

	nb, err := b.PageCount()
	require.NoError(t, err)
	require.Equal(t, uint64(2), nb)

	gotA, err := a.ReadPage(0)
	require.NoError(t, err)
	require.Equal(t, page(0x11), gotA)
}

func TestOpenReopensExistingListByID(t *testing.T) {
	s := openTestStore(t)
	txn, err := s.Begin(nil)
	require.NoError(t, err)

	created, err := Create(txn, kv.VertexSetL)
	require.NoError(t, err)
	_, err = created.AppendPage(page(0x7))
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	txn2, err := s.Begin(nil)
	require.NoError(t, err)
	reopened := Open(txn2, kv.VertexSetL, created.ID)
	got, err := reopened.ReadPage(0)
	require.NoError(t, err)
	require.Equal(t, page(0x7), got)
	require.NoError(t, txn2.Commit())
}
