// Package outline models the immutable topic tree a note document is
// generated from. Trees are rebuilt upstream on every change, never
// patched in place, so anchor and section correspondence stays auditable.
package outline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNodeNotFound is returned by Lookup for an unknown section id.
var ErrNodeNotFound = errors.New("outline node not found")

// Anchor references one unit of the originally parsed material.
type Anchor struct {
	Page int    `json:"page"`
	Kind string `json:"kind,omitempty"` // text | figure | equation
	Ref  string `json:"ref,omitempty"`
}

// Node is one topic in the outline tree.
type Node struct {
	SectionID string   `json:"section_id"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary,omitempty"`
	Anchors   []Anchor `json:"anchors,omitempty"`
	Children  []*Node  `json:"children,omitempty"`
	Level     int      `json:"level"`
}

// Tree is a validated outline with a constant-time section-id index
// and a cached pre-order traversal.
type Tree struct {
	root  *Node
	index map[string]*Node
	flat  []*Node
}

// NewTree validates the tree rooted at root and builds the id index.
// Section ids must be non-empty and unique across the whole tree.
// Node levels are normalized to the actual tree depth, root at 0.
func NewTree(root *Node) (*Tree, error) {
	if root == nil {
		return nil, errors.New("outline root is nil")
	}

	t := &Tree{
		root:  root,
		index: make(map[string]*Node),
	}
	if err := t.walk(root, 0); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) walk(n *Node, depth int) error {
	id := strings.TrimSpace(n.SectionID)
	if id == "" {
		return fmt.Errorf("outline node %q has an empty section id", n.Title)
	}
	if _, dup := t.index[id]; dup {
		return fmt.Errorf("duplicate section id %q", id)
	}
	n.SectionID = id
	n.Level = depth
	t.index[id] = n
	t.flat = append(t.flat, n)

	for _, child := range n.Children {
		if child == nil {
			return fmt.Errorf("outline node %q has a nil child", id)
		}
		if err := t.walk(child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// Root returns the tree root.
func (t *Tree) Root() *Node { return t.root }

// Len returns the total node count including the root.
func (t *Tree) Len() int { return len(t.flat) }

// Flatten returns every node in pre-order, parent before children.
// The traversal is computed once at construction, so repeated calls
// return the same order.
func (t *Tree) Flatten() []*Node {
	out := make([]*Node, len(t.flat))
	copy(out, t.flat)
	return out
}

// Sections returns the generation units of the tree: every node below
// the root, in pre-order. The root itself is the document container
// and gets no section of its own.
func (t *Tree) Sections() []*Node {
	if len(t.flat) <= 1 {
		return []*Node{}
	}
	out := make([]*Node, len(t.flat)-1)
	copy(out, t.flat[1:])
	return out
}

// Lookup resolves a section id to its node in constant time.
func (t *Tree) Lookup(sectionID string) (*Node, error) {
	n, ok := t.index[sectionID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, sectionID)
	}
	return n, nil
}

// Encode serializes the tree for storage.
func (t *Tree) Encode() ([]byte, error) {
	return json.Marshal(t.root)
}

// Decode deserializes and re-validates a stored tree.
func Decode(data []byte) (*Tree, error) {
	var root Node
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode outline: %w", err)
	}
	return NewTree(&root)
}
