package graph

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/govetachun/graphdb/internal/storage/kv"
	"github.com/govetachun/graphdb/pkg/errors"
	"github.com/govetachun/graphdb/pkg/keycodec"
)

func openTestStore(t *testing.T) *kv.Store {
	t.Helper()
	s, err := kv.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestMakeGraphIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	txn, err := s.Begin(nil)
	require.NoError(t, err)

	g1, err := MakeGraph(txn, 0xACE)
	require.NoError(t, err)
	order1, err := g1.Order()
	require.NoError(t, err)
	require.Equal(t, 0, order1)

	g2, err := MakeGraph(txn, 0xACE)
	require.NoError(t, err)
	order2, err := g2.Order()
	require.NoError(t, err)
	require.Equal(t, 0, order2)
}

func TestMakeGraphRejectsReservedGraphID(t *testing.T) {
	s := openTestStore(t)
	txn, err := s.Begin(nil)
	require.NoError(t, err)

	_, err = MakeGraph(txn, 0)
	require.ErrorIs(t, err, errors.ErrInvalidGraphID)
}

func TestMakeGraphMaterialisesInitialPageAndAdjacencyBlock(t *testing.T) {
	s := openTestStore(t)
	txn, err := s.Begin(nil)
	require.NoError(t, err)

	g, err := MakeGraph(txn, 0xACE)
	require.NoError(t, err)

	cap, err := g.vs.capacity()
	require.NoError(t, err)
	require.Equal(t, uint64(BitsPerPage), cap, "creation must materialise the first vertex-set page")

	v, ok, err := txn.Get(kv.VertexSet, keycodec.Q(0xACE))
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, v, 16)
	head, tail := keycodec.UnQQ(v)
	require.NotZero(t, head)
	require.Zero(t, tail)

	page, ok, err := txn.Get(kv.VertexSetL, keycodec.QQ(head, tail))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, make([]byte, PageSize), page)

	amCur, err := txn.Cursor(kv.AdjacencyMatrix)
	require.NoError(t, err)
	require.Equal(t, BitsPerPage, amCur.Len(), "adjacency directory must hold one row per addressable vertex")
}

func TestVertexSetsClearBitAndReturnsItsIndex(t *testing.T) {
	s := openTestStore(t)
	txn, err := s.Begin(nil)
	require.NoError(t, err)
	g, err := MakeGraph(txn, 1)
	require.NoError(t, err)

	idx, err := g.Vertex(5, true)
	require.NoError(t, err)
	require.Equal(t, uint64(5), idx)
	present, err := g.HasVertex(5)
	require.NoError(t, err)
	require.True(t, present)
}

func TestVertexOnAlreadySetBitSearchesForwardForAFreeOne(t *testing.T) {
	s := openTestStore(t)
	txn, err := s.Begin(nil)
	require.NoError(t, err)
	g, err := MakeGraph(txn, 1)
	require.NoError(t, err)

	first, err := g.Vertex(0, true)
	require.NoError(t, err)
	require.Equal(t, uint64(0), first)

	second, err := g.Vertex(0, true)
	require.NoError(t, err)
	require.NotEqual(t, uint64(0), second, "colliding with a set bit must allocate a different index")
	present, err := g.HasVertex(second)
	require.NoError(t, err)
	require.True(t, present)
}

func TestVertexExpandsWhenEveryBitInCapacityIsSet(t *testing.T) {
	s := openTestStore(t)
	txn, err := s.Begin(nil)
	require.NoError(t, err)
	g, err := MakeGraph(txn, 1)
	require.NoError(t, err)

	for i := uint64(0); i < BitsPerPage; i++ {
		_, err := g.Vertex(i, true)
		require.NoError(t, err)
	}
	cap, err := g.vs.capacity()
	require.NoError(t, err)
	require.Equal(t, uint64(BitsPerPage), cap)

	idx, err := g.Vertex(0, true)
	require.NoError(t, err)
	require.Equal(t, uint64(BitsPerPage), idx, "expansion must return the first bit of the newly allocated page")

	cap, err = g.vs.capacity()
	require.NoError(t, err)
	require.Equal(t, uint64(2*BitsPerPage), cap, "capacity must double")

	amCur, err := txn.Cursor(kv.AdjacencyMatrix)
	require.NoError(t, err)
	require.Equal(t, 2*BitsPerPage, amCur.Len())

	isEdge, err := g.IsEdge(0, BitsPerPage)
	require.NoError(t, err)
	require.False(t, isEdge)
	require.NoError(t, g.SetEdge(0, BitsPerPage, true))
	isEdge, err = g.IsEdge(0, BitsPerPage)
	require.NoError(t, err)
	require.True(t, isEdge, "a row created before expansion must gain a column page covering the new block")
}

func TestVertexMutationBeyondCapacityIsFatal(t *testing.T) {
	s := openTestStore(t)
	txn, err := s.Begin(nil)
	require.NoError(t, err)
	g, err := MakeGraph(txn, 1)
	require.NoError(t, err)

	cap, err := g.vs.capacity()
	require.NoError(t, err)

	require.Panics(t, func() { _, _ = g.Vertex(cap, true) })
	require.Panics(t, func() { _, _ = g.Vertex(cap, false) })
}

func TestVertexDeleteClearsIncidentEdges(t *testing.T) {
	s := openTestStore(t)
	txn, err := s.Begin(nil)
	require.NoError(t, err)
	g, err := MakeGraph(txn, 1)
	require.NoError(t, err)

	a, err := g.Vertex(0, true)
	require.NoError(t, err)
	b, err := g.Vertex(1, true)
	require.NoError(t, err)
	require.NoError(t, g.SetEdge(a, b, true))
	require.NoError(t, g.SetEdge(b, a, true))
	require.NoError(t, g.SetEdge(b, b, true))

	_, err = g.Vertex(a, false)
	require.NoError(t, err)

	present, err := g.HasVertex(a)
	require.NoError(t, err)
	require.False(t, present)

	isEdge, err := g.IsEdge(a, b)
	require.NoError(t, err)
	require.False(t, isEdge)
	isEdge, err = g.IsEdge(b, a)
	require.NoError(t, err)
	require.False(t, isEdge)
	isEdge, err = g.IsEdge(b, b)
	require.NoError(t, err)
	require.True(t, isEdge, "unrelated edges must survive")
}

func TestEdgeQueryBeyondCapacityReturnsFalseNotError(t *testing.T) {
	s := openTestStore(t)
	txn, err := s.Begin(nil)
	require.NoError(t, err)
	g, err := MakeGraph(txn, 1)
	require.NoError(t, err)

	cap, err := g.vs.capacity()
	require.NoError(t, err)

	isEdge, err := g.IsEdge(cap, 0)
	require.NoError(t, err)
	require.False(t, isEdge)
}

func TestEdgeMutationBeyondCapacityIsFatal(t *testing.T) {
	s := openTestStore(t)
	txn, err := s.Begin(nil)
	require.NoError(t, err)
	g, err := MakeGraph(txn, 1)
	require.NoError(t, err)

	cap, err := g.vs.capacity()
	require.NoError(t, err)

	require.Panics(t, func() { _ = g.SetEdge(cap, 0, true) })
}

func TestSizeCountsSelfLoopOnceWhenUndirected(t *testing.T) {
	s := openTestStore(t)
	txn, err := s.Begin(nil)
	require.NoError(t, err)
	g, err := MakeGraph(txn, 1)
	require.NoError(t, err)

	_, err = g.Vertex(0, true)
	require.NoError(t, err)
	_, err = g.Vertex(1, true)
	require.NoError(t, err)
	require.NoError(t, g.SetEdge(0, 1, true))
	require.NoError(t, g.SetEdge(1, 0, true))
	require.NoError(t, g.SetEdge(0, 0, true))

	directed, err := g.Size(Directed)
	require.NoError(t, err)
	require.Equal(t, 3, directed)

	undirected, err := g.Size(Undirected)
	require.NoError(t, err)
	require.Equal(t, 2, undirected, "{0,1} counts once and the self-loop {0,0} counts once")
}

func TestEdgesReturnsAscendingOrder(t *testing.T) {
	s := openTestStore(t)
	txn, err := s.Begin(nil)
	require.NoError(t, err)
	g, err := MakeGraph(txn, 1)
	require.NoError(t, err)

	for _, v := range []uint64{0, 1, 2} {
		_, err := g.Vertex(v, true)
		require.NoError(t, err)
	}
	require.NoError(t, g.SetEdge(2, 0, true))
	require.NoError(t, g.SetEdge(0, 2, true))
	require.NoError(t, g.SetEdge(0, 1, true))

	edges, err := g.Edges()
	require.NoError(t, err)
	require.Equal(t, []Edge{{0, 1}, {0, 2}, {2, 0}}, edges)
}

func TestVerticesRespectsStartEndStride(t *testing.T) {
	s := openTestStore(t)
	txn, err := s.Begin(nil)
	require.NoError(t, err)
	g, err := MakeGraph(txn, 1)
	require.NoError(t, err)

	for _, v := range []uint64{0, 1, 2, 3, 4, 5} {
		_, err := g.Vertex(v, true)
		require.NoError(t, err)
	}

	var all []uint64
	require.NoError(t, g.Vertices(0, 0, 1, func(i uint64) error {
		all = append(all, i)
		return nil
	}))
	require.Equal(t, []uint64{0, 1, 2, 3, 4, 5}, all)

	var bounded []uint64
	require.NoError(t, g.Vertices(1, 4, 1, func(i uint64) error {
		bounded = append(bounded, i)
		return nil
	}))
	require.Equal(t, []uint64{1, 2, 3}, bounded)

	var strided []uint64
	require.NoError(t, g.Vertices(0, 0, 2, func(i uint64) error {
		strided = append(strided, i)
		return nil
	}))
	require.Equal(t, []uint64{0, 2, 4}, strided)
}

func TestVisitEdgesRespectsStartEndStride(t *testing.T) {
	s := openTestStore(t)
	txn, err := s.Begin(nil)
	require.NoError(t, err)
	g, err := MakeGraph(txn, 1)
	require.NoError(t, err)

	for _, v := range []uint64{0, 1, 2, 3} {
		_, err := g.Vertex(v, true)
		require.NoError(t, err)
	}
	require.NoError(t, g.SetEdge(0, 1, true))
	require.NoError(t, g.SetEdge(1, 2, true))
	require.NoError(t, g.SetEdge(2, 3, true))
	require.NoError(t, g.SetEdge(3, 0, true))

	var bounded []Edge
	require.NoError(t, g.VisitEdges(1, 3, 1, func(src, dst uint64) error {
		bounded = append(bounded, Edge{Src: src, Dst: dst})
		return nil
	}))
	require.Equal(t, []Edge{{1, 2}, {2, 3}}, bounded)
}

func TestVertexFeatureForwardAndReverseIndex(t *testing.T) {
	s := openTestStore(t)
	txn, err := s.Begin(nil)
	require.NoError(t, err)
	g, err := MakeGraph(txn, 1)
	require.NoError(t, err)
	_, err = g.Vertex(0, true)
	require.NoError(t, err)

	require.NoError(t, g.SetVertexFeature(0, "color", []byte("red")))
	v, ok, err := g.VertexFeature(0, "color")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "red", string(v))

	// Overwriting must retire the old reverse-index row.
	require.NoError(t, g.SetVertexFeature(0, "color", []byte("blue")))
	v, ok, err = g.VertexFeature(0, "color")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "blue", string(v))

	cur, err := txn.Cursor(kv.VertexFeatureHash)
	require.NoError(t, err)
	require.Equal(t, 1, cur.Len(), "stale reverse-index row for \"red\" must be gone")
}

func TestVisitVertexFeatureByValue(t *testing.T) {
	s := openTestStore(t)
	txn, err := s.Begin(nil)
	require.NoError(t, err)
	g, err := MakeGraph(txn, 1)
	require.NoError(t, err)
	_, err = g.Vertex(0, true)
	require.NoError(t, err)
	_, err = g.Vertex(1, true)
	require.NoError(t, err)

	require.NoError(t, g.SetVertexFeature(0, "color", []byte("red")))
	require.NoError(t, g.SetVertexFeature(1, "color", []byte("red")))
	require.NoError(t, g.SetVertexFeature(1, "label", []byte("origin")))

	type hit struct {
		vertex uint64
		name   string
	}
	var hits []hit
	require.NoError(t, g.VisitVertexFeature([]byte("red"), func(vertexID uint64, name string) error {
		hits = append(hits, hit{vertexID, name})
		return nil
	}))
	require.ElementsMatch(t, []hit{{0, "color"}, {1, "color"}}, hits)
}

func TestVisitEdgeFeatureByValue(t *testing.T) {
	s := openTestStore(t)
	txn, err := s.Begin(nil)
	require.NoError(t, err)
	g, err := MakeGraph(txn, 1)
	require.NoError(t, err)
	_, err = g.Vertex(0, true)
	require.NoError(t, err)
	_, err = g.Vertex(1, true)
	require.NoError(t, err)
	require.NoError(t, g.SetEdge(0, 1, true))

	require.NoError(t, g.SetEdgeFeature(0, 1, "kind", []byte("friend")))

	var gotSrc, gotDst uint64
	var gotName string
	require.NoError(t, g.VisitEdgeFeature([]byte("friend"), func(src, dst uint64, name string) error {
		gotSrc, gotDst, gotName = src, dst, name
		return nil
	}))
	require.Equal(t, uint64(0), gotSrc)
	require.Equal(t, uint64(1), gotDst)
	require.Equal(t, "kind", gotName)
}

func TestDropGraphRemovesDirectoryAndFeatures(t *testing.T) {
	s := openTestStore(t)
	txn, err := s.Begin(nil)
	require.NoError(t, err)
	g, err := MakeGraph(txn, 1)
	require.NoError(t, err)
	_, err = g.Vertex(0, true)
	require.NoError(t, err)
	_, err = g.Vertex(1, true)
	require.NoError(t, err)
	require.NoError(t, g.SetEdge(0, 1, true))
	require.NoError(t, g.SetVertexFeature(0, "k", []byte("v")))
	require.NoError(t, g.SetEdgeFeature(0, 1, "k", []byte("v")))

	require.NoError(t, DropGraph(txn, 1))

	_, ok, err := txn.Get(kv.VertexSet, keycodec.Q(1))
	require.NoError(t, err)
	require.False(t, ok)

	vfCur, err := txn.Cursor(kv.VertexFeature)
	require.NoError(t, err)
	require.Equal(t, 0, vfCur.Len())
	vfhCur, err := txn.Cursor(kv.VertexFeatureHash)
	require.NoError(t, err)
	require.Equal(t, 0, vfhCur.Len())
	efCur, err := txn.Cursor(kv.EdgeFeature)
	require.NoError(t, err)
	require.Equal(t, 0, efCur.Len())
}
