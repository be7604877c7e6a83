// Command graphdb is a small demo of the graph engine: it opens (or
// creates) a database file, makes a graph, adds a few vertices and
// edges, attaches a feature, and prints what it finds.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/govetachun/graphdb/internal/graph"
	"github.com/govetachun/graphdb/internal/storage/kv"
)

func main() {
	path := flag.String("db", "./graph.db", "path to the database file")
	graphID := flag.Uint64("graph", 1, "graph id to open or create")
	flag.Parse()

	store, err := kv.Open(*path)
	if err != nil {
		log.Fatalf("open %s: %v", *path, err)
	}
	defer store.Close()

	txn, err := store.Begin(nil)
	if err != nil {
		log.Fatalf("begin: %v", err)
	}

	g, err := graph.MakeGraph(txn, *graphID)
	if err != nil {
		log.Fatalf("make graph %d: %v", *graphID, err)
	}

	for _, v := range []uint64{0, 1, 2} {
		if _, err := g.Vertex(v, true); err != nil {
			log.Fatalf("set vertex %d: %v", v, err)
		}
	}
	if err := g.SetEdge(0, 1, true); err != nil {
		log.Fatalf("set edge: %v", err)
	}
	if err := g.SetEdge(1, 2, true); err != nil {
		log.Fatalf("set edge: %v", err)
	}
	if err := g.SetVertexFeature(0, "label", []byte("origin")); err != nil {
		log.Fatalf("set feature: %v", err)
	}

	order, err := g.Order()
	if err != nil {
		log.Fatalf("order: %v", err)
	}
	size, err := g.Size(graph.Directed)
	if err != nil {
		log.Fatalf("size: %v", err)
	}
	edges, err := g.Edges()
	if err != nil {
		log.Fatalf("edges: %v", err)
	}

	if err := txn.Commit(); err != nil {
		log.Fatalf("commit: %v", err)
	}

	fmt.Printf("graph %d: order=%d size=%d\n", *graphID, order, size)
	for _, e := range edges {
		fmt.Printf("  %d -> %d\n", e.Src, e.Dst)
	}
}
