package proptree

import (
	"testing"

	"github.com/arlojames/modularxl/internal/predict"
)

// newSampleTree constructs:
//
//	0: channel > -1 ? 1 : 4
//	1: PropLeft > 5 ? 2 : 3
//	2: leaf(Left)
//	3: leaf(Top)
//	4: leaf(Zero)   -- unreachable for channel==0
func newSampleTree() Tree {
	t := Tree{
		{}, // 0: placeholder, filled below
		{}, // 1: placeholder
		{Property: -1, Predictor: predict.Left, Offset: 0, Multiplier: 1, Context: 0},  // 2
		{Property: -1, Predictor: predict.Top, Offset: 0, Multiplier: 1, Context: 1},   // 3
		{Property: -1, Predictor: predict.Zero, Offset: 0, Multiplier: 1, Context: 2},  // 4
	}
	t[1] = Node{Property: PropLeft, SplitVal: 5, LChild: 2, RChild: 3}
	t[0] = Node{Property: PropChannel, SplitVal: -1, LChild: 1, RChild: 4}
	return t
}

func TestFilterCollapsesStaticDecision(t *testing.T) {
	tree := newSampleTree()
	ft := Filter(tree, [NumStatic]int32{0, 0})

	if len(ft.Nodes) != 5 {
		t.Fatalf("got %d flat nodes, want 5", len(ft.Nodes))
	}
	root := ft.Nodes[0]
	if root.IsLeaf() {
		t.Fatal("root collapsed to a leaf, want the PropLeft decision")
	}
	if root.Property0 != PropLeft || root.SplitVal0 != 5 {
		t.Fatalf("root decision = (%d,%d), want (%d,5)", root.Property0, root.SplitVal0, PropLeft)
	}
	if ft.UseWP {
		t.Error("UseWP should be false: tree never touches the WP property or predictor")
	}
	if ft.WPOnly {
		t.Error("WPOnly should be false: the decision reads PropLeft and no leaf uses Weighted")
	}
}

func TestFilterWPOnlySingleLeaf(t *testing.T) {
	tree := NewSingleLeafTree(predict.Weighted, 0, 1, 7)
	ft := Filter(tree, [NumStatic]int32{0, 0})
	if !ft.WPOnly {
		t.Fatal("expected WPOnly for a single Weighted leaf")
	}
	if !ft.UseWP {
		t.Fatal("expected UseWP for a single Weighted leaf")
	}
	if len(ft.Nodes) != 1 || !ft.Nodes[0].IsLeaf() {
		t.Fatalf("expected exactly one leaf flat node, got %+v", ft.Nodes)
	}
}

// TestFilterWPOnlyMultiDecision checks that a tree which splits on the WP
// property more than once, with a Weighted leaf on every branch, still
// qualifies as WPOnly — spec.md §4.G's wp_only condition is about every
// decision and every leaf, not about node count.
func TestFilterWPOnlyMultiDecision(t *testing.T) {
	tree := Tree{
		{Property: WPPropIndex, SplitVal: 0, LChild: 1, RChild: 2}, // 0
		{Property: -1, Predictor: predict.Weighted, Context: 1},    // 1
		{Property: WPPropIndex, SplitVal: -10, LChild: 3, RChild: 4}, // 2
		{Property: -1, Predictor: predict.Weighted, Context: 2},    // 3
		{Property: -1, Predictor: predict.Weighted, Context: 3},    // 4
	}
	ft := Filter(tree, [NumStatic]int32{0, 0})
	if !ft.WPOnly {
		t.Fatal("expected WPOnly for a tree that only ever splits on the WP property")
	}
	if !ft.UseWP {
		t.Fatal("expected UseWP")
	}
}

// TestFilterWPOnlyRejectsMixedDecision checks that a single non-WP decision
// anywhere in the tree disqualifies it from WPOnly, even when every leaf
// uses the Weighted predictor.
func TestFilterWPOnlyRejectsMixedDecision(t *testing.T) {
	tree := Tree{
		{Property: PropLeft, SplitVal: 0, LChild: 1, RChild: 2},
		{Property: -1, Predictor: predict.Weighted, Context: 1},
		{Property: -1, Predictor: predict.Weighted, Context: 2},
	}
	ft := Filter(tree, [NumStatic]int32{0, 0})
	if ft.WPOnly {
		t.Fatal("expected WPOnly to be false: root decision reads PropLeft, not the WP property")
	}
}

// TestFilterWPOnlyRejectsNonWeightedLeaf checks that a non-Weighted leaf
// reachable under an all-WP decision tree disqualifies it from WPOnly.
func TestFilterWPOnlyRejectsNonWeightedLeaf(t *testing.T) {
	tree := Tree{
		{Property: WPPropIndex, SplitVal: 0, LChild: 1, RChild: 2},
		{Property: -1, Predictor: predict.Weighted, Context: 1},
		{Property: -1, Predictor: predict.Gradient, Context: 2},
	}
	ft := Filter(tree, [NumStatic]int32{0, 0})
	if ft.WPOnly {
		t.Fatal("expected WPOnly to be false: one leaf uses a non-Weighted predictor")
	}
}

func TestFilterNumPropsRounding(t *testing.T) {
	tree := Tree{
		{Property: PropTopLeft, SplitVal: 0, LChild: 1, RChild: 2},
		{Property: -1, Predictor: predict.Left},
		{Property: -1, Predictor: predict.Top},
	}
	ft := Filter(tree, [NumStatic]int32{0, 0})
	if ft.NumProps != NumNonref {
		t.Errorf("NumProps = %d, want %d (no reference property referenced)", ft.NumProps, NumNonref)
	}

	refProp := int32(NumNonref + 5) // reaches into the second reference-channel tuple
	tree2 := Tree{
		{Property: refProp, SplitVal: 0, LChild: 1, RChild: 2},
		{Property: -1, Predictor: predict.Left},
		{Property: -1, Predictor: predict.Top},
	}
	ft2 := Filter(tree2, [NumStatic]int32{0, 0})
	want := NumNonref + 2*ExtraPropsPerChannel
	if ft2.NumProps != want {
		t.Errorf("NumProps = %d, want %d", ft2.NumProps, want)
	}
}
