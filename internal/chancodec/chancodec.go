// Package chancodec implements the channel codec — the per-channel
// execution engine that drives a filtered MA tree, the weighted predictor,
// and an entropy coder collaborator over one channel's pixels in raster
// order (4.G). It selects one of five equivalent paths depending on what
// the tree allows, trading generality for inner-loop cost.
package chancodec

import (
	"errors"
	"fmt"
	"sync"

	"github.com/arlojames/modularxl/internal/neighbor"
	"github.com/arlojames/modularxl/internal/predict"
	"github.com/arlojames/modularxl/internal/proptree"
	"github.com/arlojames/modularxl/internal/xlpixel"
)

// scratch bundles the per-channel buffers the multi-leaf paths read and
// write row-to-row: the property vector and the reference-channel
// precompute row (§5, SPEC_FULL.md supplemented feature 7). Pooled across
// EncodeChannel/DecodeChannel calls rather than just across rows within one
// call.
type scratch struct {
	props  proptree.Vector
	refRow *proptree.ReferenceRow
}

var scratchPool = sync.Pool{New: func() any { return new(scratch) }}

// acquireScratch returns a scratch sized for numProps properties and
// numRefs reference channels of the given width, growing and replacing any
// pooled buffer that is too small.
func acquireScratch(numProps, numRefs, width int) *scratch {
	s := scratchPool.Get().(*scratch)
	if cap(s.props) < numProps {
		s.props = proptree.NewVector(numProps)
	} else {
		s.props = s.props[:numProps]
	}
	if s.refRow == nil {
		s.refRow = proptree.NewReferenceRow(numRefs, width)
	} else {
		s.refRow.Reset(numRefs, width)
	}
	return s
}

func releaseScratch(s *scratch) {
	scratchPool.Put(s)
}

// TokenWriter is the encode-side half of the §6 entropy coder collaborator
// contract this codec depends on. *entropy.Encoder satisfies it.
type TokenWriter interface {
	EmitToken(context int, symbol uint64) error
}

// TokenReader is the decode-side half of the collaborator contract.
// *entropy.Decoder satisfies it.
type TokenReader interface {
	ReadSymbol(context int) (uint64, error)
}

// ErrResidualNotDivisible is returned by EncodeChannel when a leaf's
// multiplier does not evenly divide the residual it is asked to code — an
// invariant of tree learning (spec.md §4.G, §7 category 4: a programming
// error, not stream corruption).
var ErrResidualNotDivisible = errors.New("chancodec: residual not evenly divisible by leaf multiplier")

// Recorder optionally records which predictor fired at each coded pixel,
// standing in for the original's want_debug predictor-color image
// (SPEC_FULL.md supplemented feature 3) without pulling in an image
// rendering dependency.
type Recorder interface {
	RecordPredictor(x, y int, p predict.ID)
}

// Params bundles what EncodeChannel/DecodeChannel need beyond the pixel
// buffer itself: the filtered tree, static properties, reference channels
// already coded, and the WP configuration.
type Params struct {
	Tree        proptree.FlatTree
	StaticProps [proptree.NumStatic]int32
	Refs        []neighbor.Plane
	WPHeader    predict.Header
	Recorder    Recorder
}

// path names which of the five execution paths a filtered tree qualifies
// for, per 4.G's preconditions. classify returns a non-nil table only for
// Path 1, after the property-range precompute has succeeded.
type path int

const (
	pathWPOnlyTable path = iota
	pathSingleLeafZero
	pathSingleLeafStatic
	pathMultiLeafNoWP
	pathMultiLeafWP
)

func classify(ft proptree.FlatTree, forDecode bool) (path, []wpEntry) {
	if len(ft.Nodes) == 1 && ft.Nodes[0].IsLeaf() {
		leaf := ft.Nodes[0]
		if leaf.Predictor == predict.Zero && leaf.Multiplier == 1 && leaf.Offset == 0 {
			return pathSingleLeafZero, nil
		}
		if leaf.Predictor != predict.Weighted {
			return pathSingleLeafStatic, nil
		}
	}

	if ft.WPOnly {
		if table, ok := buildWPTable(ft, forDecode); ok {
			return pathWPOnlyTable, table
		}
	}

	if ft.UseWP {
		return pathMultiLeafWP, nil
	}
	return pathMultiLeafNoWP, nil
}

// wpEntry is one resolved (context, multiplier, offset) triple for a
// clamped WP property value, used by Path 1's lookup table.
type wpEntry struct {
	context    int32
	multiplier int32
	offset     int32
}

// buildWPTable attempts the Path 1 precompute: walk ft's decision regions —
// guaranteed by ft.WPOnly to test only the WP property at every decision —
// as half-open clamped-property intervals, seeded at
// [-WP_PROP_RANGE, WP_PROP_RANGE) (4.G Path 1), filling one table entry per
// clamped WP property value with the leaf that region resolves to. Fails
// (bails to Path 4/5) if any reachable leaf's predictor_offset escapes
// [-128,127], or — on encode only — if any reachable leaf's multiplier
// isn't 1 (4.G Path 1's preconditions; forDecode relaxes only the
// multiplier check, per the documented encode/decode asymmetry: the offset
// check stays mandatory on both sides because it bounds the table itself).
func buildWPTable(ft proptree.FlatTree, forDecode bool) ([]wpEntry, bool) {
	table := make([]wpEntry, 2*predict.PropRange)
	if !fillWPRegion(ft, 0, -predict.PropRange, predict.PropRange, table, forDecode) {
		return nil, false
	}
	return table, true
}

func clampWPProp(v int32) int32 {
	return xlpixel.Clamp(v, -predict.PropRange, predict.PropRange-1)
}

func wpTableIndex(v int32) int {
	return int(v + predict.PropRange)
}

// EncodeChannel codes channel's pixels into w, choosing the fastest path
// the tree permits. channel.Pix must already hold the source pixel values.
func EncodeChannel(w TokenWriter, channel neighbor.Plane, params Params) error {
	pth, wpTable := classify(params.Tree, false)
	switch pth {
	case pathSingleLeafZero:
		return encodeSingleLeafZero(w, channel, params.Tree.Nodes[0])
	case pathSingleLeafStatic:
		return encodeSingleLeafStatic(w, channel, params.Tree.Nodes[0], params.Recorder)
	case pathWPOnlyTable:
		return encodeWPOnly(w, channel, params.WPHeader, wpTable, params.Recorder)
	case pathMultiLeafNoWP:
		return encodeMultiLeaf(w, channel, params, false)
	case pathMultiLeafWP:
		return encodeMultiLeaf(w, channel, params, true)
	default:
		return fmt.Errorf("chancodec: unreachable path classification %d", pth)
	}
}

// DecodeChannel reconstructs channel.Pix in place from r, mirroring
// EncodeChannel's path selection exactly (both sides must agree on the
// path or the fast-path equivalence law of spec.md §8 is violated).
func DecodeChannel(r TokenReader, channel neighbor.Plane, params Params) error {
	pth, wpTable := classify(params.Tree, true)
	switch pth {
	case pathSingleLeafZero:
		return decodeSingleLeafZero(r, channel, params.Tree.Nodes[0])
	case pathSingleLeafStatic:
		return decodeSingleLeafStatic(r, channel, params.Tree.Nodes[0], params.Recorder)
	case pathWPOnlyTable:
		return decodeWPOnly(r, channel, params.WPHeader, wpTable, params.Recorder)
	case pathMultiLeafNoWP:
		return decodeMultiLeaf(r, channel, params, false)
	case pathMultiLeafWP:
		return decodeMultiLeaf(r, channel, params, true)
	default:
		return fmt.Errorf("chancodec: unreachable path classification %d", pth)
	}
}
