package outline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRoot() *Node {
	return &Node{
		SectionID: "doc",
		Title:     "Signals and Systems",
		Children: []*Node{
			{
				SectionID: "s1",
				Title:     "Fourier Series",
				Summary:   "Periodic signals as sums of sinusoids.",
				Anchors:   []Anchor{{Page: 3}},
				Children: []*Node{
					{SectionID: "s1a", Title: "Coefficients", Anchors: []Anchor{{Page: 4}}},
					{SectionID: "s1b", Title: "Convergence", Anchors: []Anchor{{Page: 5}}},
				},
			},
			{
				SectionID: "s2",
				Title:     "Fourier Transform",
				Summary:   "Extension to aperiodic signals.",
				Anchors:   []Anchor{{Page: 7}, {Page: 8, Kind: "figure"}},
			},
		},
	}
}

func TestNewTreeValidates(t *testing.T) {
	tests := []struct {
		name string
		root *Node
	}{
		{"nil root", nil},
		{"empty id", &Node{SectionID: "  "}},
		{
			"duplicate id",
			&Node{SectionID: "a", Children: []*Node{
				{SectionID: "b"},
				{SectionID: "b"},
			}},
		},
		{
			"nil child",
			&Node{SectionID: "a", Children: []*Node{nil}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTree(tt.root)
			require.Error(t, err)
		})
	}
}

func TestFlattenPreOrder(t *testing.T) {
	tree, err := NewTree(sampleRoot())
	require.NoError(t, err)

	ids := func(nodes []*Node) []string {
		out := make([]string, len(nodes))
		for i, n := range nodes {
			out[i] = n.SectionID
		}
		return out
	}

	flat := tree.Flatten()
	assert.Equal(t, []string{"doc", "s1", "s1a", "s1b", "s2"}, ids(flat))

	// Idempotent across repeated calls.
	assert.Equal(t, ids(flat), ids(tree.Flatten()))

	assert.Equal(t, []string{"s1", "s1a", "s1b", "s2"}, ids(tree.Sections()))
	assert.Equal(t, 5, tree.Len())
}

func TestLevelsNormalized(t *testing.T) {
	root := sampleRoot()
	root.Level = 42
	root.Children[0].Children[1].Level = -1

	tree, err := NewTree(root)
	require.NoError(t, err)

	assert.Equal(t, 0, tree.Root().Level)
	n, err := tree.Lookup("s1b")
	require.NoError(t, err)
	assert.Equal(t, 2, n.Level)
}

func TestLookup(t *testing.T) {
	tree, err := NewTree(sampleRoot())
	require.NoError(t, err)

	n, err := tree.Lookup("s2")
	require.NoError(t, err)
	assert.Equal(t, "Fourier Transform", n.Title)

	_, err = tree.Lookup("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNodeNotFound))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tree, err := NewTree(sampleRoot())
	require.NoError(t, err)

	data, err := tree.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, tree.Len(), decoded.Len())

	n, err := decoded.Lookup("s1a")
	require.NoError(t, err)
	assert.Equal(t, "Coefficients", n.Title)
	assert.Equal(t, 2, n.Level)
}

func TestDecodeInvalid(t *testing.T) {
	_, err := Decode([]byte("{not json"))
	require.Error(t, err)
}
