package proptree

import "github.com/arlojames/modularxl/internal/predict"

// Node is one node of the authoring-form MA tree (§3). property == -1
// distinguishes a leaf from an inner decision node, matching the wire
// contract's encoding.
type Node struct {
	// Property is the property id this node splits on, or -1 for a leaf.
	Property int32
	// SplitVal is the threshold: the decision is
	// "static_props_and_props[property] > splitval" -> LChild, else RChild.
	SplitVal int32
	LChild   int32
	RChild   int32

	// Leaf-only fields.
	Predictor  predict.ID
	Offset     int32
	Multiplier int32
	Context    int32 // raw (pre-clustering) context id
}

// IsLeaf reports whether n is a leaf.
func (n Node) IsLeaf() bool { return n.Property == -1 }

// Tree is the authoring-form MA tree: a heap-allocated node array forming a
// DAG that is in fact a tree rooted at index 0 (§3 invariant).
type Tree []Node

// Leaf appends a leaf node and returns its index.
func (t *Tree) Leaf(predictor predict.ID, offset, multiplier, context int32) int32 {
	idx := int32(len(*t))
	*t = append(*t, Node{Property: -1, Predictor: predictor, Offset: offset, Multiplier: multiplier, Context: context})
	return idx
}

// Split appends an inner decision node with the given children and returns
// its index.
func (t *Tree) Split(property, splitVal, lchild, rchild int32) int32 {
	idx := int32(len(*t))
	*t = append(*t, Node{Property: property, SplitVal: splitVal, LChild: lchild, RChild: rchild})
	return idx
}

// NewSingleLeafTree builds the trivial one-leaf tree used whenever the
// learner has no samples to work with, or a caller wants to force a fixed
// predictor with no meta-adaptation.
func NewSingleLeafTree(predictor predict.ID, offset, multiplier, context int32) Tree {
	t := Tree{}
	t.Leaf(predictor, offset, multiplier, context)
	return t
}

// UsesWeighted reports whether any leaf in t uses the Weighted predictor or
// any inner node splits on the WP property.
func (t Tree) UsesWeighted() bool {
	for _, n := range t {
		if n.IsLeaf() {
			if n.Predictor == predict.Weighted {
				return true
			}
			continue
		}
		if n.Property == WPPropIndex {
			return true
		}
	}
	return false
}
