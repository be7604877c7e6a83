// Package graph is the façade spec.md §4.7 describes: a vertex set, an
// adjacency matrix, and a feature store, composed per graph_id over
// the kv façade's named sub-databases.
package graph

import (
	"github.com/govetachun/graphdb/internal/storage/kv"
	"github.com/govetachun/graphdb/pkg/errors"
	"github.com/govetachun/graphdb/pkg/keycodec"
	"github.com/govetachun/graphdb/pkg/utils"
)

// SizeMode selects how Size counts edges.
type SizeMode int

const (
	// Directed counts every set adjacency bit once.
	Directed SizeMode = iota
	// Undirected counts each unordered pair once; a self-loop (i, i)
	// counts once, not twice.
	Undirected
)

// Graph is a handle onto one graph_id's vertex set, adjacency matrix,
// and feature stores, all read and written through txn.
type Graph struct {
	txn   *kv.Txn
	id    uint64
	vs    *vertexSet
	am    *adjacencyMatrix
	vFeat featureStore
	eFeat featureStore
}

// Open wraps an existing (or not-yet-created) graph_id for use within
// txn. It reads only the vertex-set directory entry; Order/vertex/edge
// operations do the rest of the I/O.
func Open(txn *kv.Txn, graphID uint64) (*Graph, error) {
	vs, err := openVertexSet(txn, graphID)
	if err != nil {
		return nil, err
	}
	return &Graph{
		txn:   txn,
		id:    graphID,
		vs:    vs,
		am:    openAdjacencyMatrix(txn, graphID),
		vFeat: vertexFeatures(txn),
		eFeat: edgeFeatures(txn),
	}, nil
}

// MakeGraph creates graph_id's directory entries if they don't exist
// yet, materialising the initial empty vertex-set page and the initial
// block of adjacency row pages, and is a no-op otherwise: make_graph_db
// is idempotent.
func MakeGraph(txn *kv.Txn, graphID uint64) (*Graph, error) {
	if graphID == 0 {
		return nil, errors.ErrInvalidGraphID
	}
	g, err := Open(txn, graphID)
	if err != nil {
		return nil, err
	}
	fresh := g.vs.list == nil
	if _, err := g.vs.ensure(); err != nil {
		return nil, err
	}
	if !fresh {
		return g, nil
	}
	if err := g.vs.appendPage(); err != nil {
		return nil, err
	}
	if err := g.am.expandForNewBlock(0); err != nil {
		return nil, err
	}
	return g, nil
}

// DropGraph removes graph_id's vertex-set and adjacency-matrix
// directory entries and every vertex/edge feature attached to it.
// Their paged-list pages are not reclaimed: the append-only disk
// engine underneath never frees pages, so the space is leaked rather
// than corrupted — acceptable for a store that never deletes pages
// even for live lists.
func DropGraph(txn *kv.Txn, graphID uint64) error {
	g, err := Open(txn, graphID)
	if err != nil {
		return err
	}
	cap, err := g.vs.capacity()
	if err != nil {
		return err
	}
	for id := uint64(0); id < cap; id++ {
		if err := txn.Del(kv.AdjacencyMatrix, g.am.rowKey(id)); err != nil {
			return err
		}
	}
	if err := txn.Del(kv.VertexSet, keycodec.Q(graphID)); err != nil {
		return err
	}
	if err := g.vFeat.DeleteGraph(graphID); err != nil {
		return err
	}
	return g.eFeat.DeleteGraph(graphID)
}

// Order returns the number of vertices currently present in the
// graph.
func (g *Graph) Order() (int, error) {
	return g.vs.popCount()
}

// HasVertex reports whether vertex i is present.
func (g *Graph) HasVertex(i uint64) (bool, error) {
	return g.vs.get(i)
}

// Vertex implements vertex(i, present)'s cases:
//   - present, bit i clear: set bit i, return i.
//   - present, bit i already set: search linearly from i for the first
//     clear bit, wrapping within current capacity; if found, set and
//     return it; otherwise expand by one vertex-set page (and a
//     matching adjacency block) and return the first bit of the new
//     page.
//   - present, i >= capacity: fatal, not recoverable.
//   - !present, i < capacity: clear bit i and every edge incident to i
//     (its row and its column in every other row).
//   - !present, i >= capacity: fatal, not recoverable.
func (g *Graph) Vertex(i uint64, present bool) (uint64, error) {
	cap, err := g.vs.capacity()
	if err != nil {
		return 0, err
	}
	utils.Assert(i < cap, "vertex: index out of range")

	if !present {
		if err := g.vs.setBit(i, false); err != nil {
			return 0, err
		}
		if err := g.am.clearRow(i); err != nil {
			return 0, err
		}
		if err := g.am.clearColumn(i, cap); err != nil {
			return 0, err
		}
		return i, nil
	}

	set, err := g.vs.get(i)
	if err != nil {
		return 0, err
	}
	if !set {
		return i, g.vs.setBit(i, true)
	}

	if idx, found, err := g.vs.firstClearBit(i); err != nil {
		return 0, err
	} else if found {
		return idx, g.vs.setBit(idx, true)
	}

	if err := g.vs.appendPage(); err != nil {
		return 0, err
	}
	if err := g.am.expandForNewBlock(cap); err != nil {
		return 0, err
	}
	return cap, g.vs.setBit(cap, true)
}

// IsEdge reports whether src -> dst is set. false, not an error, for
// either endpoint beyond current capacity.
func (g *Graph) IsEdge(src, dst uint64) (bool, error) {
	cap, err := g.vs.capacity()
	if err != nil {
		return false, err
	}
	if src >= cap || dst >= cap {
		return false, nil
	}
	return g.am.isEdge(src, dst)
}

// SetEdge sets or clears src -> dst. Either endpoint beyond current
// capacity is fatal, not recoverable (call Vertex first).
func (g *Graph) SetEdge(src, dst uint64, present bool) error {
	cap, err := g.vs.capacity()
	if err != nil {
		return err
	}
	utils.Assert(src < cap && dst < cap, "edge: index out of range")
	return g.am.setEdge(src, dst, present)
}

// Edges returns every directed edge currently set, in ascending
// (src, dst) order.
func (g *Graph) Edges() ([]Edge, error) {
	var out []Edge
	err := g.VisitEdges(0, 0, 1, func(src, dst uint64) error {
		out = append(out, Edge{Src: src, Dst: dst})
		return nil
	})
	return out, err
}

// VisitEdges calls cb, in ascending (src, dst) order, for every edge
// whose src satisfies start <= src < end (when end > 0; no upper bound
// otherwise) and (src-start) % stride == 0 (stride == 0 treated as 1).
func (g *Graph) VisitEdges(start, end, stride uint64, cb func(src, dst uint64) error) error {
	cap, err := g.vs.capacity()
	if err != nil {
		return err
	}
	edges, err := g.am.edges(g.vs.get, cap, start, end, stride)
	if err != nil {
		return err
	}
	for _, e := range edges {
		if err := cb(e.Src, e.Dst); err != nil {
			return err
		}
	}
	return nil
}

// Vertices calls cb, in ascending order, for every vertex id currently
// present whose index satisfies start <= i < end (when end > 0; no
// upper bound otherwise) and (i-start) % stride == 0 (stride == 0
// treated as 1).
func (g *Graph) Vertices(start, end, stride uint64, cb func(uint64) error) error {
	if stride == 0 {
		stride = 1
	}
	cap, err := g.vs.capacity()
	if err != nil {
		return err
	}
	limit := cap
	if end > 0 && end < limit {
		limit = end
	}
	for i := start; i < limit; i += stride {
		present, err := g.vs.get(i)
		if err != nil {
			return err
		}
		if !present {
			continue
		}
		if err := cb(i); err != nil {
			return err
		}
	}
	return nil
}

// Size counts edges per mode. Undirected counts (src, dst) and
// (dst, src) as one pair, and a self-loop once.
func (g *Graph) Size(mode SizeMode) (int, error) {
	edges, err := g.Edges()
	if err != nil {
		return 0, err
	}
	if mode == Directed {
		return len(edges), nil
	}
	seen := map[[2]uint64]bool{}
	count := 0
	for _, e := range edges {
		key := [2]uint64{e.Src, e.Dst}
		if e.Dst < e.Src {
			key = [2]uint64{e.Dst, e.Src}
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		count++
	}
	return count, nil
}

func (g *Graph) vertexEntity(i uint64) []byte { return keycodec.QQ(g.id, i) }
func (g *Graph) edgeEntity(src, dst uint64) []byte {
	return keycodec.QQQ(g.id, src, dst)
}

// SetVertexFeature attaches value to name on vertex i.
func (g *Graph) SetVertexFeature(i uint64, name string, value []byte) error {
	return g.vFeat.Set(g.vertexEntity(i), name, value)
}

// VertexFeature returns name's value on vertex i, if set.
func (g *Graph) VertexFeature(i uint64, name string) ([]byte, bool, error) {
	return g.vFeat.Get(g.vertexEntity(i), name)
}

// DeleteVertexFeature removes name from vertex i, if set.
func (g *Graph) DeleteVertexFeature(i uint64, name string) error {
	return g.vFeat.Delete(g.vertexEntity(i), name)
}

// VisitVertexFeature calls cb with the vertex id and feature name of
// every vertex feature currently holding a value exactly equal to
// value.
func (g *Graph) VisitVertexFeature(value []byte, cb func(vertexID uint64, name string) error) error {
	return g.vFeat.VisitByValue(value, func(entity []byte, name string) error {
		_, vertexID := keycodec.UnQQ(entity)
		return cb(vertexID, name)
	})
}

// SetEdgeFeature attaches value to name on edge src -> dst.
func (g *Graph) SetEdgeFeature(src, dst uint64, name string, value []byte) error {
	return g.eFeat.Set(g.edgeEntity(src, dst), name, value)
}

// EdgeFeature returns name's value on edge src -> dst, if set.
func (g *Graph) EdgeFeature(src, dst uint64, name string) ([]byte, bool, error) {
	return g.eFeat.Get(g.edgeEntity(src, dst), name)
}

// DeleteEdgeFeature removes name from edge src -> dst, if set.
func (g *Graph) DeleteEdgeFeature(src, dst uint64, name string) error {
	return g.eFeat.Delete(g.edgeEntity(src, dst), name)
}

// VisitEdgeFeature calls cb with the edge endpoints and feature name
// of every edge feature currently holding a value exactly equal to
// value.
func (g *Graph) VisitEdgeFeature(value []byte, cb func(src, dst uint64, name string) error) error {
	return g.eFeat.VisitByValue(value, func(entity []byte, name string) error {
		_, src, dst := keycodec.UnQQQ(entity)
		return cb(src, dst, name)
	})
}
