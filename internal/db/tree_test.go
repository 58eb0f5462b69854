package db

import (
	"bytes"
	"testing"

	"github.com/blacktop/unicycle/internal/model"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func beamSession() *model.Session {
	scores := func(counts map[string]int64) []model.Score {
		var out []model.Score
		for _, sym := range []string{"A", "C", "X"} {
			out = append(out, model.Score{Symbol: sym, Count: counts[sym]})
		}
		return out
	}
	return &model.Session{
		ID:     "3f2a9c1e",
		Secret: "CAT",
		Steps: []model.Step{
			{Depth: 0, Prefix: "", Chosen: "XC", Scores: scores(map[string]int64{"A": 10, "C": 20, "X": 21})},
			{Depth: 1, Prefix: "X", Scores: scores(map[string]int64{"A": 30, "C": 30, "X": 30})},
			{Depth: 1, Prefix: "C", Chosen: "A", Scores: scores(map[string]int64{"A": 40, "C": 31, "X": 31})},
			{Depth: 2, Prefix: "CA", Secret: "CAT", Scores: scores(map[string]int64{"A": 41, "C": 41, "X": 41})},
		},
	}
}

func TestSearchTree(t *testing.T) {
	g, err := SearchTree(beamSession())
	require.NoError(t, err)

	adj, err := g.AdjacencyMap()
	require.NoError(t, err)
	assert.Len(t, adj, 5) // "", X, C, CA, CAT
	assert.Len(t, adj[NodeID("")], 2)
	assert.Empty(t, adj[NodeID("X")])

	e, err := g.Edge(NodeID(""), NodeID("C"))
	require.NoError(t, err)
	assert.Equal(t, 20, e.Properties.Weight)

	n, err := g.Vertex(NodeID("CAT"))
	require.NoError(t, err)
	assert.True(t, n.Secret)

	path, err := SecretPath(g, "CAT")
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"", "C", "CA", "CAT"}, path); diff != "" {
		t.Errorf("SecretPath() mismatch (-want +got):\n%s", diff)
	}
}

func TestSecretPath_Missing(t *testing.T) {
	g, err := SearchTree(beamSession())
	require.NoError(t, err)
	_, err = SecretPath(g, "ZZ")
	assert.Error(t, err)
}

func TestWriteDOT(t *testing.T) {
	s := beamSession()
	s.Steps = append(s.Steps, model.Step{Depth: 0, Prefix: "", Chosen: "\""})

	var buf bytes.Buffer
	require.NoError(t, WriteDOT(&buf, s))
	out := buf.String()
	assert.Contains(t, out, "digraph")
	assert.Contains(t, out, NodeID("CA"))
	assert.Contains(t, out, `label="\""`)
}

func TestNodeID(t *testing.T) {
	assert.Equal(t, "p", NodeID(""))
	assert.Equal(t, "p4341", NodeID("CA"))
}
