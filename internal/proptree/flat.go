package proptree

import "github.com/arlojames/modularxl/internal/predict"

// FlatNode is one node of the flattened MA tree (4.D/4.E). Each flat node
// folds two authoring-tree decision levels together: a top-level decision
// (Property0, SplitVal0) picks between two second-level decisions
// (Properties[0/1], SplitVals[0/1]), whose outcome selects one of four
// grandchildren starting at ChildID. Property0 == -1 marks a flattened leaf.
type FlatNode struct {
	Property0 int32
	SplitVal0 int32

	Properties [2]int32
	SplitVals  [2]int32

	// Dummy[i] marks Properties[i]/SplitVals[i] as padding rather than a
	// real decision: branch i's authoring-tree child was already a leaf,
	// so both of its grandchild slots hold that same leaf and no property
	// is actually read to choose between them. Region-walking code (e.g.
	// chancodec's Path 1 precompute) must skip a dummy branch's split
	// rather than treat it as a genuine WP-property decision.
	Dummy [2]bool

	// ChildID is the index, in the owning FlatTree, of the first of the four
	// grandchildren reachable from this node; the other three sit at
	// ChildID+1, ChildID+2, ChildID+3 (see Lookup).
	ChildID int32

	// Leaf-only fields, valid when Property0 == -1.
	Predictor  predict.ID
	Offset     int32
	Multiplier int32
	Context    int32
}

// IsLeaf reports whether n is a flattened leaf.
func (n FlatNode) IsLeaf() bool { return n.Property0 == -1 }

// FlatTree is the traversal-ready form produced by Filter (4.E). Root is
// always at index 0.
type FlatTree struct {
	Nodes []FlatNode
	// NumProps is the property-vector length the tree was compiled against,
	// rounded up to a whole number of reference-channel tuples past
	// NumNonref (4.E: "num_props rounding").
	NumProps int
	// UseWP reports whether any leaf uses the Weighted predictor or any
	// decision node reads the WP property.
	UseWP bool
	// WPOnly reports whether every decision in the tree tests the WP
	// property and every leaf uses the Weighted predictor (4.G's wp_only
	// condition) — the precondition for channel codec fast path 1. A
	// multi-node tree that only ever splits on the WP property still
	// qualifies; it does not require a single leaf.
	WPOnly bool
}
