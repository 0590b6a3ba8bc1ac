package chancodec

import (
	"fmt"

	"github.com/arlojames/modularxl/internal/neighbor"
	"github.com/arlojames/modularxl/internal/predict"
	"github.com/arlojames/modularxl/internal/proptree"
	"github.com/arlojames/modularxl/internal/xlpixel"
)

// encodeResidual computes the symbol a leaf's (offset, multiplier) pair
// requires to reconstruct actual from guess, per 4.G's "residual must be
// exactly divisible by leaf.multiplier" encode-side invariant.
func encodeResidual(actual, guess, offset, multiplier int32) (uint64, error) {
	diff := int64(actual) - int64(offset) - int64(guess)
	if multiplier == 0 || diff%int64(multiplier) != 0 {
		return 0, ErrResidualNotDivisible
	}
	return xlpixel.PackSigned(diff / int64(multiplier)), nil
}

// reconstruct is the shared decode-side formula: actual =
// sat_add(unpack(symbol)*multiplier, offset+guess).
func reconstruct(symbol uint64, guess, offset, multiplier int32) int32 {
	val := xlpixel.UnpackSigned(symbol) * xlpixel.Wide(multiplier)
	return xlpixel.SaturatingAdd(val, xlpixel.Wide(offset)+xlpixel.Wide(guess))
}

// --- Path 2: single-leaf Zero predictor, unit multiplier, zero offset ---

func encodeSingleLeafZero(w TokenWriter, channel neighbor.Plane, leaf proptree.FlatNode) error {
	for y := 0; y < channel.Height; y++ {
		for x := 0; x < channel.Width; x++ {
			actual := channel.At(x, y)
			if err := w.EmitToken(int(leaf.Context), xlpixel.PackSigned(xlpixel.Wide(actual))); err != nil {
				return fmt.Errorf("chancodec: path2 emit at (%d,%d): %w", x, y, err)
			}
		}
	}
	return nil
}

func decodeSingleLeafZero(r TokenReader, channel neighbor.Plane, leaf proptree.FlatNode) error {
	for y := 0; y < channel.Height; y++ {
		for x := 0; x < channel.Width; x++ {
			symbol, err := r.ReadSymbol(int(leaf.Context))
			if err != nil {
				return fmt.Errorf("chancodec: path2 read at (%d,%d): %w", x, y, err)
			}
			channel.Pix[y*channel.Width+x] = int32(xlpixel.UnpackSigned(symbol))
		}
	}
	return nil
}

// --- Path 3: single-leaf non-WP predictor, no property vector ---

func encodeSingleLeafStatic(w TokenWriter, channel neighbor.Plane, leaf proptree.FlatNode, rec Recorder) error {
	for y := 0; y < channel.Height; y++ {
		for x := 0; x < channel.Width; x++ {
			guess := predict.Static(leaf.Predictor, channel.Compute(x, y))
			actual := channel.At(x, y)
			symbol, err := encodeResidual(actual, guess, leaf.Offset, leaf.Multiplier)
			if err != nil {
				return fmt.Errorf("chancodec: path3 at (%d,%d): %w", x, y, err)
			}
			if err := w.EmitToken(int(leaf.Context), symbol); err != nil {
				return fmt.Errorf("chancodec: path3 emit at (%d,%d): %w", x, y, err)
			}
			if rec != nil {
				rec.RecordPredictor(x, y, leaf.Predictor)
			}
		}
	}
	return nil
}

func decodeSingleLeafStatic(r TokenReader, channel neighbor.Plane, leaf proptree.FlatNode, rec Recorder) error {
	for y := 0; y < channel.Height; y++ {
		for x := 0; x < channel.Width; x++ {
			guess := predict.Static(leaf.Predictor, channel.Compute(x, y))
			symbol, err := r.ReadSymbol(int(leaf.Context))
			if err != nil {
				return fmt.Errorf("chancodec: path3 read at (%d,%d): %w", x, y, err)
			}
			channel.Pix[y*channel.Width+x] = reconstruct(symbol, guess, leaf.Offset, leaf.Multiplier)
			if rec != nil {
				rec.RecordPredictor(x, y, leaf.Predictor)
			}
		}
	}
	return nil
}

// --- Path 1: WP-only tree with bounded property range ---

// fillWPRegion walks ft from node idx, narrowing the half-open clamped
// WP-property interval [lo, hi) at each decision exactly the way Lookup
// descends a FlatTree (4.D): branch 0 takes the ">" half of a split,
// branch 1 the "<=" half. It fills table[wpTableIndex(v)] for every v in
// [lo, hi) that idx's subtree resolves to, and reports false the moment any
// reachable leaf fails the Path 1 leaf preconditions.
func fillWPRegion(ft proptree.FlatTree, idx int32, lo, hi int32, table []wpEntry, forDecode bool) bool {
	if lo >= hi {
		return true
	}
	n := ft.Nodes[idx]
	if n.IsLeaf() {
		if n.Offset < -128 || n.Offset > 127 {
			return false
		}
		if n.Multiplier != 1 && !forDecode {
			return false
		}
		entry := wpEntry{context: n.Context, multiplier: n.Multiplier, offset: n.Offset}
		for v := lo; v < hi; v++ {
			table[wpTableIndex(v)] = entry
		}
		return true
	}

	for top := int32(0); top < 2; top++ {
		// top==0 is the ">" branch of the top-level split, top==1 the
		// "<=" branch (Lookup's convention).
		var branchLo, branchHi int32
		if top == 0 {
			branchLo, branchHi = n.SplitVal0+1, hi
		} else {
			branchLo, branchHi = lo, n.SplitVal0+1
		}
		if branchLo < lo {
			branchLo = lo
		}
		if branchHi > hi {
			branchHi = hi
		}
		if branchLo >= branchHi {
			continue
		}

		if n.Dummy[top] {
			if !fillWPRegion(ft, n.ChildID+2*top, branchLo, branchHi, table, forDecode) {
				return false
			}
			continue
		}

		for sub := int32(0); sub < 2; sub++ {
			var subLo, subHi int32
			if sub == 0 {
				subLo, subHi = n.SplitVals[top]+1, branchHi
			} else {
				subLo, subHi = branchLo, n.SplitVals[top]+1
			}
			if subLo < branchLo {
				subLo = branchLo
			}
			if subHi > branchHi {
				subHi = branchHi
			}
			if subLo >= subHi {
				continue
			}
			if !fillWPRegion(ft, n.ChildID+2*top+sub, subLo, subHi, table, forDecode) {
				return false
			}
		}
	}
	return true
}

func encodeWPOnly(w TokenWriter, channel neighbor.Plane, header predict.Header, table []wpEntry, rec Recorder) error {
	wp := predict.NewState(header, channel.Width, channel.Height)
	wp.Reset()
	for y := 0; y < channel.Height; y++ {
		for x := 0; x < channel.Width; x++ {
			win := channel.Compute(x, y)
			guess, prop := wp.Predict(win)
			entry := table[wpTableIndex(clampWPProp(prop))]
			actual := channel.At(x, y)
			symbol, err := encodeResidual(actual, guess, entry.offset, entry.multiplier)
			if err != nil {
				return fmt.Errorf("chancodec: path1 at (%d,%d): %w", x, y, err)
			}
			if err := w.EmitToken(int(entry.context), symbol); err != nil {
				return fmt.Errorf("chancodec: path1 emit at (%d,%d): %w", x, y, err)
			}
			wp.UpdateErrors(actual)
			if rec != nil {
				rec.RecordPredictor(x, y, predict.Weighted)
			}
		}
	}
	return nil
}

func decodeWPOnly(r TokenReader, channel neighbor.Plane, header predict.Header, table []wpEntry, rec Recorder) error {
	wp := predict.NewState(header, channel.Width, channel.Height)
	wp.Reset()
	for y := 0; y < channel.Height; y++ {
		for x := 0; x < channel.Width; x++ {
			win := channel.Compute(x, y)
			guess, prop := wp.Predict(win)
			entry := table[wpTableIndex(clampWPProp(prop))]
			symbol, err := r.ReadSymbol(int(entry.context))
			if err != nil {
				return fmt.Errorf("chancodec: path1 read at (%d,%d): %w", x, y, err)
			}
			actual := reconstruct(symbol, guess, entry.offset, entry.multiplier)
			channel.Pix[y*channel.Width+x] = actual
			wp.UpdateErrors(actual)
			if rec != nil {
				rec.RecordPredictor(x, y, predict.Weighted)
			}
		}
	}
	return nil
}

// --- Paths 4/5: multi-leaf tree, with or without WP ---

func encodeMultiLeaf(w TokenWriter, channel neighbor.Plane, params Params, useWP bool) error {
	numProps := params.Tree.NumProps
	if refProps := proptree.NumPropsForRefs(len(params.Refs)); refProps > numProps {
		numProps = refProps
	}
	sc := acquireScratch(numProps, len(params.Refs), channel.Width)
	defer releaseScratch(sc)
	props, refRow := sc.props, sc.refRow
	var wp *predict.State
	if useWP {
		wp = predict.NewState(params.WPHeader, channel.Width, channel.Height)
		wp.Reset()
	}

	for y := 0; y < channel.Height; y++ {
		refRow.Precompute(y, params.Refs)
		props.InitRow(int(params.StaticProps[proptree.PropChannel]), int(params.StaticProps[proptree.PropGroup]), y)
		for x := 0; x < channel.Width; x++ {
			win := channel.Compute(x, y)
			props.FillSpatial(x, win)
			refRow.WriteInto(props, x)

			var guess int32
			if useWP {
				var wpProp int32
				guess, wpProp = wp.Predict(win)
				props.FillWP(wpProp)
			} else {
				props.FillWP(0)
			}

			leaf := proptree.Lookup(params.Tree, props)
			if !useWP || leaf.Predictor != predict.Weighted {
				guess = predict.Static(leaf.Predictor, win)
			}

			actual := channel.At(x, y)
			symbol, err := encodeResidual(actual, guess, leaf.Offset, leaf.Multiplier)
			if err != nil {
				return fmt.Errorf("chancodec: multi-leaf at (%d,%d): %w", x, y, err)
			}
			if err := w.EmitToken(int(leaf.Context), symbol); err != nil {
				return fmt.Errorf("chancodec: multi-leaf emit at (%d,%d): %w", x, y, err)
			}
			if useWP {
				wp.UpdateErrors(actual)
			}
			if params.Recorder != nil {
				params.Recorder.RecordPredictor(x, y, leaf.Predictor)
			}
		}
	}
	return nil
}

func decodeMultiLeaf(r TokenReader, channel neighbor.Plane, params Params, useWP bool) error {
	numProps := params.Tree.NumProps
	if refProps := proptree.NumPropsForRefs(len(params.Refs)); refProps > numProps {
		numProps = refProps
	}
	sc := acquireScratch(numProps, len(params.Refs), channel.Width)
	defer releaseScratch(sc)
	props, refRow := sc.props, sc.refRow
	var wp *predict.State
	if useWP {
		wp = predict.NewState(params.WPHeader, channel.Width, channel.Height)
		wp.Reset()
	}

	for y := 0; y < channel.Height; y++ {
		refRow.Precompute(y, params.Refs)
		props.InitRow(int(params.StaticProps[proptree.PropChannel]), int(params.StaticProps[proptree.PropGroup]), y)
		for x := 0; x < channel.Width; x++ {
			win := channel.Compute(x, y)
			props.FillSpatial(x, win)
			refRow.WriteInto(props, x)

			var guess int32
			if useWP {
				var wpProp int32
				guess, wpProp = wp.Predict(win)
				props.FillWP(wpProp)
			} else {
				props.FillWP(0)
			}

			leaf := proptree.Lookup(params.Tree, props)
			if !useWP || leaf.Predictor != predict.Weighted {
				guess = predict.Static(leaf.Predictor, win)
			}

			symbol, err := r.ReadSymbol(int(leaf.Context))
			if err != nil {
				return fmt.Errorf("chancodec: multi-leaf read at (%d,%d): %w", x, y, err)
			}
			actual := reconstruct(symbol, guess, leaf.Offset, leaf.Multiplier)
			channel.Pix[y*channel.Width+x] = actual
			if useWP {
				wp.UpdateErrors(actual)
			}
			if params.Recorder != nil {
				params.Recorder.RecordPredictor(x, y, leaf.Predictor)
			}
		}
	}
	return nil
}
