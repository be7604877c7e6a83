package graph

import (
	"github.com/govetachun/graphdb/internal/bitmap"
	"github.com/govetachun/graphdb/internal/pagedlist"
	"github.com/govetachun/graphdb/internal/storage/kv"
	"github.com/govetachun/graphdb/pkg/errors"
	"github.com/govetachun/graphdb/pkg/keycodec"
)

// adjacencyMatrix is the directed N x N edge bitmap for one graph,
// stored one row per vertex id: ADJACENCY_MATRIX[graph_id, vertex_id]
// names the (ADJACENCY_MATRIX_L) paged list of column pages for that
// vertex's outgoing edges. Every row, once created, is kept in lock
// step with the current column capacity: expanding the vertex set by
// one block appends exactly one column page to every existing row and
// creates BitsPerPage new rows (one per newly addressable vertex id),
// each pre-populated with column pages for every block that exists so
// far, including its own.
type adjacencyMatrix struct {
	txn     *kv.Txn
	graphID uint64
}

func openAdjacencyMatrix(txn *kv.Txn, graphID uint64) *adjacencyMatrix {
	return &adjacencyMatrix{txn: txn, graphID: graphID}
}

func (am *adjacencyMatrix) rowKey(vertexID uint64) []byte {
	return keycodec.QQ(am.graphID, vertexID)
}

func (am *adjacencyMatrix) rowList(vertexID uint64) (*pagedlist.List, bool, error) {
	v, ok, err := am.txn.Get(kv.AdjacencyMatrix, am.rowKey(vertexID))
	if err != nil || !ok {
		return nil, ok, err
	}
	id, _ := keycodec.UnQQ(v)
	return pagedlist.Open(am.txn, kv.AdjacencyMatrixL, id), true, nil
}

// createRow creates a fresh row for vertexID with colPages all-clear
// column pages, enough to cover every column block that exists so far
// (including vertexID's own block, making self-loops representable).
func (am *adjacencyMatrix) createRow(vertexID uint64, colPages uint64) error {
	l, err := pagedlist.Create(am.txn, kv.AdjacencyMatrixL)
	if err != nil {
		return err
	}
	if err := am.txn.Put(kv.AdjacencyMatrix, am.rowKey(vertexID), keycodec.QQ(l.ID, 0)); err != nil {
		return err
	}
	for i := uint64(0); i < colPages; i++ {
		if _, err := l.AppendPage(make([]byte, PageSize)); err != nil {
			return err
		}
	}
	return nil
}

// appendColumnPage grows an existing row by one all-clear column page.
func (am *adjacencyMatrix) appendColumnPage(vertexID uint64) error {
	l, ok, err := am.rowList(vertexID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.ErrCorrupt
	}
	_, err = l.AppendPage(make([]byte, PageSize))
	return err
}

// expandForNewBlock is called once per vertex-set page appended. It
// appends one column page to every row that existed before this
// block (vertex ids [0, oldCapacity)) and creates a row for every
// vertex id the new block makes addressable
// ([oldCapacity, oldCapacity+BitsPerPage)).
func (am *adjacencyMatrix) expandForNewBlock(oldCapacity uint64) error {
	for id := uint64(0); id < oldCapacity; id++ {
		if err := am.appendColumnPage(id); err != nil {
			return err
		}
	}
	newColPages := oldCapacity/BitsPerPage + 1
	for id := oldCapacity; id < oldCapacity+BitsPerPage; id++ {
		if err := am.createRow(id, newColPages); err != nil {
			return err
		}
	}
	return nil
}

// isEdge reports whether src -> dst is set. Both ids must already be
// within capacity; callers check that at the Graph level.
func (am *adjacencyMatrix) isEdge(src, dst uint64) (bool, error) {
	l, ok, err := am.rowList(src)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	page, err := l.ReadPage(dst / BitsPerPage)
	if err != nil {
		return false, err
	}
	return bitmap.Get(page, int(dst%BitsPerPage))
}

// setEdge flips the src -> dst bit.
func (am *adjacencyMatrix) setEdge(src, dst uint64, present bool) error {
	l, ok, err := am.rowList(src)
	if err != nil {
		return err
	}
	if !ok {
		return errors.ErrCorrupt
	}
	page, err := l.ReadPage(dst / BitsPerPage)
	if err != nil {
		return err
	}
	bitmap.Set(page, int(dst%BitsPerPage), present)
	return l.WritePage(dst/BitsPerPage, page)
}

// clearRow zeroes every column bit of vertexID's own row, if it has
// one. Used when a vertex is deleted: its outgoing edges all clear.
func (am *adjacencyMatrix) clearRow(vertexID uint64) error {
	l, ok, err := am.rowList(vertexID)
	if err != nil || !ok {
		return err
	}
	return l.Iterate(func(tail uint64, page []byte) error {
		for i := range page {
			page[i] = 0
		}
		return l.WritePage(tail, page)
	})
}

// clearColumn clears bit vertexID in every row in [0, capacity) that
// has one. Used when a vertex is deleted: its incoming edges all
// clear.
func (am *adjacencyMatrix) clearColumn(vertexID uint64, capacity uint64) error {
	for row := uint64(0); row < capacity; row++ {
		l, ok, err := am.rowList(row)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		page, err := l.ReadPage(vertexID / BitsPerPage)
		if err != nil {
			return err
		}
		bitmap.Set(page, int(vertexID%BitsPerPage), false)
		if err := l.WritePage(vertexID/BitsPerPage, page); err != nil {
			return err
		}
	}
	return nil
}

// Edge is one directed adjacency entry returned by edges().
type Edge struct {
	Src uint64
	Dst uint64
}

// edges walks every row present in the vertex set whose id satisfies
// start <= src < end (when end > 0; no upper bound otherwise) and
// (src-start) % stride == 0, and reports every set bit in that row as
// a directed edge, in ascending (src, dst) order.
func (am *adjacencyMatrix) edges(present func(uint64) (bool, error), capacity, start, end, stride uint64) ([]Edge, error) {
	if stride == 0 {
		stride = 1
	}
	limit := capacity
	if end > 0 && end < limit {
		limit = end
	}
	var out []Edge
	for src := start; src < limit; src += stride {
		ok, err := present(src)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		l, has, err := am.rowList(src)
		if err != nil {
			return nil, err
		}
		if !has {
			continue
		}
		err = l.Iterate(func(tail uint64, page []byte) error {
			base := tail * BitsPerPage
			for bit := 0; bit < BitsPerPage && base+uint64(bit) < capacity; bit++ {
				set, err := bitmap.Get(page, bit)
				if err != nil {
					return err
				}
				if set {
					out = append(out, Edge{Src: src, Dst: base + uint64(bit)})
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
