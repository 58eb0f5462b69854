package db

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/blacktop/unicycle/internal/model"
	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
)

// Node is one prefix the search rode.
type Node struct {
	Prefix string
	Secret bool
}

// NodeID is the DOT-safe vertex id of a prefix.
func NodeID(prefix string) string {
	return "p" + hex.EncodeToString([]byte(prefix))
}

func nodeHash(n Node) string { return NodeID(n.Prefix) }

// SearchTree rebuilds the prefixes a journaled session explored. Edges run
// from a prefix to every extension the chooser kept, weighted by its count.
func SearchTree(s *model.Session) (graph.Graph[string, Node], error) {
	g := graph.New(nodeHash, graph.Directed(), graph.PreventCycles())

	addNode := func(prefix string, attrs ...func(*graph.VertexProperties)) error {
		label := strconv.Quote(prefix)
		attrs = append(attrs, graph.VertexAttribute("label", label[1:len(label)-1]))
		if prefix == "" {
			attrs = append(attrs, graph.VertexAttribute("shape", "point"))
		}
		err := g.AddVertex(Node{Prefix: prefix, Secret: prefix == s.Secret && s.Secret != ""}, attrs...)
		if err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
			return err
		}
		return nil
	}
	addEdge := func(from, to string, count int64) error {
		err := g.AddEdge(NodeID(from), NodeID(to),
			graph.EdgeWeight(int(count)),
			graph.EdgeAttribute("label", strconv.FormatInt(count, 10)),
		)
		if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
			return fmt.Errorf("failed to add edge %q -> %q: %v", from, to, err)
		}
		return nil
	}

	for _, st := range s.Steps {
		if err := addNode(st.Prefix); err != nil {
			return nil, err
		}
		counts := make(map[string]int64, len(st.Scores))
		for _, sc := range st.Scores {
			counts[sc.Symbol] = sc.Count
		}
		for _, r := range st.Chosen {
			next := st.Prefix + string(r)
			if err := addNode(next); err != nil {
				return nil, err
			}
			if err := addEdge(st.Prefix, next, counts[string(r)]); err != nil {
				return nil, err
			}
		}
		if st.Secret != "" {
			if err := addNode(st.Secret,
				graph.VertexAttribute("color", "green"),
				graph.VertexAttribute("style", "bold"),
			); err != nil {
				return nil, err
			}
			var count int64
			if len(st.Secret) > len(st.Prefix) {
				count = counts[st.Secret[len(st.Prefix):]]
			}
			if err := addEdge(st.Prefix, st.Secret, count); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

// SecretPath returns the prefixes leading from the root to the secret.
func SecretPath(g graph.Graph[string, Node], secret string) ([]string, error) {
	ids, err := graph.ShortestPath(g, NodeID(""), NodeID(secret))
	if err != nil {
		return nil, err
	}
	path := make([]string, 0, len(ids))
	for _, id := range ids {
		n, err := g.Vertex(id)
		if err != nil {
			return nil, err
		}
		path = append(path, n.Prefix)
	}
	return path, nil
}

// WriteDOT renders the search tree of s in Graphviz DOT.
func WriteDOT(w io.Writer, s *model.Session) error {
	g, err := SearchTree(s)
	if err != nil {
		return err
	}
	return draw.DOT(g, w)
}
