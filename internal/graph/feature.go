// Package graph's feature store: plain key/value properties attached
// to vertices and edges, plus a reverse index from raw value bytes
// back to the entities that carry them. The reverse index is keyed on
// the feature's own bytes rather than a hash of them (an Open Question
// left unresolved upstream, resolved here in favor of exact-value
// lookups with no collision handling needed).
package graph

import (
	"bytes"

	"github.com/govetachun/graphdb/internal/storage/kv"
	"github.com/govetachun/graphdb/pkg/keycodec"
)

var featureMarker = []byte{1}

// featureStore backs both the vertex and edge feature tables; fwd/rev
// select which pair of sub-databases it addresses.
type featureStore struct {
	txn *kv.Txn
	fwd kv.Tag
	rev kv.Tag
	// entityWidth is the fixed byte width of the packed entity id
	// (16 for a vertex's QQ(graph,vertex), 24 for an edge's
	// QQQ(graph,src,dst)). Needed to find the entity suffix of a
	// reverse-index key by length rather than by scanning for a 0x00
	// separator, since the entity id's own bytes can legitimately
	// contain 0x00 (e.g. a small graph id).
	entityWidth int
}

func vertexFeatures(txn *kv.Txn) featureStore {
	return featureStore{txn: txn, fwd: kv.VertexFeature, rev: kv.VertexFeatureHash, entityWidth: 16}
}

func edgeFeatures(txn *kv.Txn) featureStore {
	return featureStore{txn: txn, fwd: kv.EdgeFeature, rev: kv.EdgeFeatureHash, entityWidth: 24}
}

func fwdKey(entity []byte, name string) []byte {
	out := make([]byte, 0, len(entity)+1+len(name))
	out = append(out, entity...)
	out = append(out, 0x00)
	out = append(out, name...)
	return out
}

func revKey(value []byte, name string, entity []byte) []byte {
	out := make([]byte, 0, len(value)+1+len(name)+1+len(entity))
	out = append(out, value...)
	out = append(out, 0x00)
	out = append(out, name...)
	out = append(out, 0x00)
	out = append(out, entity...)
	return out
}

// Set attaches value to name on entity, replacing whatever value was
// there before (and retiring its reverse-index row).
func (fs featureStore) Set(entity []byte, name string, value []byte) error {
	fk := fwdKey(entity, name)
	old, ok, err := fs.txn.Get(fs.fwd, fk)
	if err != nil {
		return err
	}
	if ok {
		if err := fs.txn.Del(fs.rev, revKey(old, name, entity)); err != nil {
			return err
		}
	}
	if err := fs.txn.Put(fs.fwd, fk, value); err != nil {
		return err
	}
	return fs.txn.Put(fs.rev, revKey(value, name, entity), featureMarker)
}

// Get returns the current value of name on entity, if any.
func (fs featureStore) Get(entity []byte, name string) ([]byte, bool, error) {
	return fs.txn.Get(fs.fwd, fwdKey(entity, name))
}

// Delete removes name from entity, if set.
func (fs featureStore) Delete(entity []byte, name string) error {
	fk := fwdKey(entity, name)
	old, ok, err := fs.txn.Get(fs.fwd, fk)
	if err != nil || !ok {
		return err
	}
	if err := fs.txn.Del(fs.rev, revKey(old, name, entity)); err != nil {
		return err
	}
	return fs.txn.Del(fs.fwd, fk)
}

// VisitByValue calls cb with the owning entity id and feature name for
// every forward entry whose current value equals value exactly. The
// reverse index is keyed on the value's own bytes rather than a
// content hash (see DESIGN.md), so this is an exact-value lookup, not
// an approximate one. cb's error aborts iteration and is returned.
func (fs featureStore) VisitByValue(value []byte, cb func(entity []byte, name string) error) error {
	cur, err := fs.txn.Cursor(fs.rev)
	if err != nil {
		return err
	}
	prefix := append(append([]byte{}, value...), 0x00)
	for cur.Valid() {
		k, _ := cur.Deref()
		if bytes.HasPrefix(k, prefix) && len(k) > len(prefix)+fs.entityWidth {
			rest := k[len(prefix):]
			entity := rest[len(rest)-fs.entityWidth:]
			name := string(rest[:len(rest)-fs.entityWidth-1])
			// A longer value that starts with value+0x00 shares the
			// prefix; only report entries whose forward value matches.
			current, ok, err := fs.txn.Get(fs.fwd, fwdKey(entity, name))
			if err != nil {
				return err
			}
			if ok && bytes.Equal(current, value) {
				if err := cb(entity, name); err != nil {
					return err
				}
			}
		}
		cur.Next()
	}
	return nil
}

// DeleteEntity removes every feature currently set on entity, together
// with its reverse-index rows.
func (fs featureStore) DeleteEntity(entity []byte) error {
	cur, err := fs.txn.Cursor(fs.fwd)
	if err != nil {
		return err
	}
	prefix := append(append([]byte{}, entity...), 0x00)
	var toDelete []struct {
		name  string
		value []byte
	}
	for cur.Valid() {
		k, v := cur.Deref()
		if bytes.HasPrefix(k, prefix) {
			toDelete = append(toDelete, struct {
				name  string
				value []byte
			}{name: string(k[len(prefix):]), value: append([]byte(nil), v...)})
		}
		cur.Next()
	}
	for _, d := range toDelete {
		if err := fs.txn.Del(fs.rev, revKey(d.value, d.name, entity)); err != nil {
			return err
		}
		if err := fs.txn.Del(fs.fwd, fwdKey(entity, d.name)); err != nil {
			return err
		}
	}
	return nil
}

// DeleteGraph removes every feature belonging to any entity whose
// packed key begins with graphID (vertex features are keyed
// (graphID, vertexID, ...); edge features (graphID, src, dst, ...)),
// including their reverse-index rows, which aren't prefix-scannable
// by graph id since they're keyed by value first.
func (fs featureStore) DeleteGraph(graphID uint64) error {
	prefix := keycodec.Q(graphID)

	fwdCur, err := fs.txn.Cursor(fs.fwd)
	if err != nil {
		return err
	}
	var toDelete [][]byte
	for fwdCur.Valid() {
		k, _ := fwdCur.Deref()
		if bytes.HasPrefix(k, prefix) {
			toDelete = append(toDelete, append([]byte(nil), k...))
		}
		fwdCur.Next()
	}

	revCur, err := fs.txn.Cursor(fs.rev)
	if err != nil {
		return err
	}
	var revToDelete [][]byte
	for revCur.Valid() {
		k, _ := revCur.Deref()
		if len(k) >= fs.entityWidth {
			entity := k[len(k)-fs.entityWidth:]
			if bytes.HasPrefix(entity, prefix) {
				revToDelete = append(revToDelete, append([]byte(nil), k...))
			}
		}
		revCur.Next()
	}

	for _, k := range toDelete {
		if err := fs.txn.Del(fs.fwd, k); err != nil {
			return err
		}
	}
	for _, k := range revToDelete {
		if err := fs.txn.Del(fs.rev, k); err != nil {
			return err
		}
	}
	return nil
}
