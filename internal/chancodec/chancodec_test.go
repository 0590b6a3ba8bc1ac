package chancodec

import (
	"math/rand"
	"testing"

	"github.com/arlojames/modularxl/internal/entropy"
	"github.com/arlojames/modularxl/internal/neighbor"
	"github.com/arlojames/modularxl/internal/predict"
	"github.com/arlojames/modularxl/internal/proptree"
	"github.com/arlojames/modularxl/internal/xlpixel"
)

func randomPlane(width, height int, seed int64, lo, hi int32) neighbor.Plane {
	r := rand.New(rand.NewSource(seed))
	pix := make([]int32, width*height)
	for i := range pix {
		pix[i] = lo + int32(r.Intn(int(hi-lo+1)))
	}
	return neighbor.Plane{Pix: pix, Width: width, Height: height}
}

func blankPlane(width, height int) neighbor.Plane {
	return neighbor.Plane{Pix: make([]int32, width*height), Width: width, Height: height}
}

func roundTrip(t *testing.T, src neighbor.Plane, params Params) {
	t.Helper()
	enc := entropy.NewEncoder()
	if err := EncodeChannel(enc, src, params); err != nil {
		t.Fatalf("EncodeChannel: %v", err)
	}
	stream := enc.Finish()

	dec, err := entropy.NewDecoder(stream)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	got := blankPlane(src.Width, src.Height)
	if err := DecodeChannel(dec, got, params); err != nil {
		t.Fatalf("DecodeChannel: %v", err)
	}
	if err := dec.CheckFinalState(); err != nil {
		t.Fatalf("CheckFinalState: %v", err)
	}
	for i := range src.Pix {
		if got.Pix[i] != src.Pix[i] {
			t.Fatalf("pixel %d: got %d, want %d", i, got.Pix[i], src.Pix[i])
		}
	}
}

func TestPath2SingleLeafZero(t *testing.T) {
	src := randomPlane(12, 9, 1, -50, 50)
	tree := proptree.NewSingleLeafTree(predict.Zero, 0, 1, 0)
	ft := proptree.Filter(tree, [proptree.NumStatic]int32{})
	roundTrip(t, src, Params{Tree: ft})
}

func TestPath3SingleLeafStatic(t *testing.T) {
	src := randomPlane(14, 10, 2, -80, 80)
	// Even pixels and an even offset keep every Gradient residual divisible
	// by the leaf's multiplier of 2, as the encoder requires.
	for i := range src.Pix {
		src.Pix[i] *= 2
	}
	tree := proptree.NewSingleLeafTree(predict.Gradient, 4, 2, 0)
	ft := proptree.Filter(tree, [proptree.NumStatic]int32{})
	roundTrip(t, src, Params{Tree: ft})
}

func TestPath1WPOnly(t *testing.T) {
	src := randomPlane(16, 11, 3, -120, 120)
	tree := proptree.NewSingleLeafTree(predict.Weighted, 1, 1, 5)
	ft := proptree.Filter(tree, [proptree.NumStatic]int32{})
	if !ft.WPOnly {
		t.Fatalf("expected filtered tree to be WPOnly")
	}
	roundTrip(t, src, Params{Tree: ft, WPHeader: predict.DefaultHeader()})
}

// buildWPOnlyMultiLeafTree constructs an authoring tree that splits twice
// on the WP property, with a distinct Weighted leaf (distinct offset, so
// the paths are distinguishable) on each of its three reachable regions.
// The root decision is written into index 0 last, after its children have
// landed at higher indices, matching Tree's "rooted at index 0" invariant.
func buildWPOnlyMultiLeafTree() proptree.Tree {
	t := proptree.Tree{{}}
	lo := t.Leaf(predict.Weighted, -3, 1, 1)
	mid := t.Leaf(predict.Weighted, 2, 1, 2)
	hi := t.Leaf(predict.Weighted, 5, 1, 3)
	inner := t.Split(proptree.WPPropIndex, -10, mid, lo)
	t[0] = proptree.Node{Property: proptree.WPPropIndex, SplitVal: 0, LChild: hi, RChild: inner}
	return t
}

func TestPath1WPOnlyMultiDecision(t *testing.T) {
	src := randomPlane(17, 12, 9, -100, 100)
	tree := buildWPOnlyMultiLeafTree()
	ft := proptree.Filter(tree, [proptree.NumStatic]int32{})
	if !ft.WPOnly {
		t.Fatalf("expected a multi-decision WP-only tree to still be WPOnly")
	}
	pth, _ := classify(ft, false)
	if pth != pathWPOnlyTable {
		t.Fatalf("expected a qualifying WP-only tree to select pathWPOnlyTable, got %d", pth)
	}
	roundTrip(t, src, Params{Tree: ft, WPHeader: predict.DefaultHeader()})
}

// buildTwoLeafTree constructs an authoring tree that splits on PropLeft,
// with distinct leaves for left<=splitVal and left>splitVal. The root
// decision lands at index 0, per Tree's "rooted at index 0" invariant.
func buildTwoLeafTree(splitVal int32, leftPred, rightPred predict.ID) proptree.Tree {
	t := proptree.Tree{{}}
	l := t.Leaf(leftPred, 0, 1, 1)
	r := t.Leaf(rightPred, 0, 1, 2)
	t[0] = proptree.Node{Property: proptree.PropLeft, SplitVal: splitVal, LChild: l, RChild: r}
	return t
}

func TestPath4MultiLeafNoWP(t *testing.T) {
	src := randomPlane(20, 15, 4, -60, 60)
	tree := buildTwoLeafTree(0, predict.Top, predict.Left)
	ft := proptree.Filter(tree, [proptree.NumStatic]int32{})
	if ft.UseWP {
		t.Fatalf("tree should not use WP")
	}
	roundTrip(t, src, Params{Tree: ft})
}

func TestPath5MultiLeafWithWP(t *testing.T) {
	src := randomPlane(18, 13, 5, -90, 90)
	tree := buildTwoLeafTree(0, predict.Weighted, predict.Gradient)
	ft := proptree.Filter(tree, [proptree.NumStatic]int32{})
	if !ft.UseWP {
		t.Fatalf("tree should use WP")
	}
	roundTrip(t, src, Params{Tree: ft, WPHeader: predict.DefaultHeader()})
}

func TestPath4WithReferenceChannels(t *testing.T) {
	src := randomPlane(10, 8, 6, -40, 40)
	ref := randomPlane(10, 8, 7, -40, 40)

	tree := proptree.Tree{{}}
	l := tree.Leaf(predict.Left, 0, 1, 1)
	r := tree.Leaf(predict.Top, 0, 1, 2)
	tree[0] = proptree.Node{Property: proptree.NumNonref, SplitVal: 0, LChild: l, RChild: r}

	ft := proptree.Filter(tree, [proptree.NumStatic]int32{})
	roundTrip(t, src, Params{Tree: ft, Refs: []neighbor.Plane{ref}})
}

// TestFastPathEquivalence checks spec.md §8's "fast-path equivalence" law:
// for a channel whose tree makes Path 1 applicable, the tokens produced by
// Path 1 must equal what the general multi-leaf-with-WP path would produce.
func TestFastPathEquivalence(t *testing.T) {
	src := randomPlane(13, 9, 8, -100, 100)
	leaf := proptree.FlatNode{Property0: -1, Predictor: predict.Weighted, Offset: 0, Multiplier: 1, Context: 3}
	ft := proptree.FlatTree{Nodes: []proptree.FlatNode{leaf}, NumProps: proptree.NumNonref, UseWP: true, WPOnly: true}

	encA := entropy.NewEncoder()
	if err := encodeWPOnly(encA, src, predict.DefaultHeader(), mustWPTable(t, ft), nil); err != nil {
		t.Fatalf("encodeWPOnly: %v", err)
	}
	streamA := encA.Finish()

	encB := entropy.NewEncoder()
	if err := encodeMultiLeaf(encB, src, Params{Tree: ft, WPHeader: predict.DefaultHeader()}, true); err != nil {
		t.Fatalf("encodeMultiLeaf: %v", err)
	}
	streamB := encB.Finish()

	if len(streamA) != len(streamB) {
		t.Fatalf("stream lengths differ: %d vs %d", len(streamA), len(streamB))
	}
	for i := range streamA {
		if streamA[i] != streamB[i] {
			t.Fatalf("streams diverge at byte %d", i)
		}
	}
}

func mustWPTable(t *testing.T, ft proptree.FlatTree) []wpEntry {
	t.Helper()
	table, ok := buildWPTable(ft, false)
	if !ok {
		t.Fatalf("buildWPTable rejected a tree that should qualify")
	}
	return table
}

// TestScratchPoolReuseAcrossSizes exercises acquireScratch/releaseScratch
// across a shrinking-then-growing sequence of reference-channel counts and
// widths, the scenario a shared sync.Pool actually sees across consecutive
// channels in one group.
func TestScratchPoolReuseAcrossSizes(t *testing.T) {
	tree := buildTwoLeafTree(0, predict.Top, predict.Left)
	ft := proptree.Filter(tree, [proptree.NumStatic]int32{})

	sizes := []struct {
		width, height, numRefs int
	}{
		{20, 6, 2},
		{6, 4, 0},
		{30, 10, 3},
		{5, 5, 1},
	}
	for i, sz := range sizes {
		src := randomPlane(sz.width, sz.height, int64(100+i), -40, 40)
		refs := make([]neighbor.Plane, sz.numRefs)
		for j := range refs {
			refs[j] = randomPlane(sz.width, sz.height, int64(200+i*10+j), -40, 40)
		}
		roundTrip(t, src, Params{Tree: ft, Refs: refs})
	}
}

func TestEncodeResidualRejectsIndivisible(t *testing.T) {
	if _, err := encodeResidual(10, 0, 0, 3); err != ErrResidualNotDivisible {
		t.Fatalf("got %v, want ErrResidualNotDivisible", err)
	}
}

func TestReconstructSaturates(t *testing.T) {
	got := reconstruct(xlpixel.PackSigned(int64(1)<<40), 0, 0, 1)
	if got != int32(2147483647) {
		t.Fatalf("expected saturation to MaxInt32, got %d", got)
	}
}
