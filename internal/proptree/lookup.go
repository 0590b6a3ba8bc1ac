package proptree

// Lookup descends a FlatTree for one pixel's property vector and returns the
// leaf node governing it, resolving exactly two decisions per flat node
// visited (4.D). props must be at least ft.NumProps long.
func Lookup(ft FlatTree, props Vector) FlatNode {
	idx := int32(0)
	for {
		n := ft.Nodes[idx]
		if n.IsLeaf() {
			return n
		}

		// Filter pushes each decision's lchild-branch grandchildren before
		// its rchild-branch ones, so branch index 0 means "> splitval"
		// (the lchild condition) and 1 means the complementary rchild
		// branch — the same sense Filter used when building the queue.
		top := int32(1)
		if props[n.Property0] > n.SplitVal0 {
			top = 0
		}
		sub := int32(1)
		if props[n.Properties[top]] > n.SplitVals[top] {
			sub = 0
		}
		idx = n.ChildID + 2*top + sub
	}
}

// LookupNaive walks the original authoring Tree directly, evaluating static
// properties from staticProps at every decision instead of relying on
// compile-time resolution. It exists solely so tests can check flat-tree
// traversal against the unflattened tree (8. "Flattener equivalence").
func LookupNaive(tree Tree, staticProps [NumStatic]int32, props Vector) Node {
	idx := int32(0)
	for {
		n := tree[idx]
		if n.IsLeaf() {
			return n
		}
		var v int32
		if n.Property < NumStatic {
			v = staticProps[n.Property]
		} else {
			v = props[n.Property]
		}
		if v > n.SplitVal {
			idx = n.LChild
		} else {
			idx = n.RChild
		}
	}
}
