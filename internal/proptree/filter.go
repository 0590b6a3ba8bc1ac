package proptree

import "github.com/arlojames/modularxl/internal/predict"

// resolveStatic walks idx forward through any chain of decisions on static
// properties (channel, group), which are known once and for all for the
// channel this tree is being compiled for, collapsing them at compile time
// so the per-pixel traversal never has to re-check them (4.E skip-ahead).
func resolveStatic(tree Tree, idx int32, staticProps [NumStatic]int32) int32 {
	for {
		n := tree[idx]
		if n.IsLeaf() || n.Property >= NumStatic {
			return idx
		}
		if staticProps[n.Property] > n.SplitVal {
			idx = n.LChild
		} else {
			idx = n.RChild
		}
	}
}

// divCeilRoundUp rounds extra up to the next multiple of step, treating a
// non-positive extra as zero.
func divCeilRoundUp(extra, step int32) int32 {
	if extra <= 0 {
		return 0
	}
	return ((extra + step - 1) / step) * step
}

// Filter compiles an authoring Tree into a FlatTree specialized for one
// concrete (channel, group) pair, per 4.E: BFS two tree levels at a time,
// resolving static-property decisions at compile time, and padding any
// child that is itself a leaf with a dummy second-level decision so every
// flat node always owns exactly four grandchild slots.
func Filter(tree Tree, staticProps [NumStatic]int32) FlatTree {
	root := resolveStatic(tree, 0, staticProps)
	queue := []int32{root}

	var out []FlatNode
	useWP := false
	// wpOnly tracks 4.G's wp_only condition across every real decision and
	// every leaf this tree reaches: every decision must test the WP
	// property, and every leaf must use the Weighted predictor (spec.md
	// §4.G: "tree uses only the WP property for decisions and the WP
	// predictor at leaves"). Dummy second-level decisions (padding for a
	// branch that lands directly on a leaf) read no property and don't
	// participate.
	wpOnly := true
	maxProp := int32(NumStatic - 1)

	noteProp := func(p int32) {
		if p == WPPropIndex {
			useWP = true
		}
		if p > maxProp {
			maxProp = p
		}
	}

	for qi := 0; qi < len(queue); qi++ {
		node := tree[queue[qi]]

		if node.IsLeaf() {
			if node.Predictor == predict.Weighted {
				useWP = true
			} else {
				wpOnly = false
			}
			out = append(out, FlatNode{
				Property0:  -1,
				Predictor:  node.Predictor,
				Offset:     node.Offset,
				Multiplier: node.Multiplier,
				Context:    node.Context,
			})
			continue
		}

		flat := FlatNode{Property0: node.Property, SplitVal0: node.SplitVal}
		noteProp(node.Property)
		if node.Property != WPPropIndex {
			wpOnly = false
		}

		children := [2]int32{
			resolveStatic(tree, node.LChild, staticProps),
			resolveStatic(tree, node.RChild, staticProps),
		}
		flat.ChildID = int32(len(queue))
		for i, childIdx := range children {
			childNode := tree[childIdx]
			if childNode.IsLeaf() {
				// Dummy second-level decision: both grandchildren are the
				// same leaf, so the property/splitval picked here never
				// changes the outcome. Property 0 (channel) is always a
				// valid, in-range index.
				flat.Properties[i] = PropChannel
				flat.SplitVals[i] = 0
				flat.Dummy[i] = true
				queue = append(queue, childIdx, childIdx)
				continue
			}
			flat.Properties[i] = childNode.Property
			flat.SplitVals[i] = childNode.SplitVal
			noteProp(childNode.Property)
			if childNode.Property != WPPropIndex {
				wpOnly = false
			}
			queue = append(queue,
				resolveStatic(tree, childNode.LChild, staticProps),
				resolveStatic(tree, childNode.RChild, staticProps),
			)
		}
		out = append(out, flat)
	}

	numProps := int(NumNonref + divCeilRoundUp(maxProp+1-NumNonref, ExtraPropsPerChannel))
	if numProps < NumNonref {
		numProps = NumNonref
	}

	return FlatTree{
		Nodes:    out,
		NumProps: numProps,
		UseWP:    useWP,
		WPOnly:   wpOnly,
	}
}
