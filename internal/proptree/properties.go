// Package proptree implements the property vector (4.C), the authoring and
// flat MA tree forms (4.D), the tree filter/flattener (4.E), and tree
// tokenization for the wire's pre-order tree stream (§6).
package proptree

import "github.com/arlojames/modularxl/internal/neighbor"

// Static property ids (§3: "constant for all pixels of one channel").
const (
	PropChannel = 0
	PropGroup   = 1

	NumStatic = 2
)

// Non-reference property ids, starting right after the static block.
const (
	PropY = NumStatic + iota
	PropX
	PropLeft
	PropTop
	PropTopLeft
	PropTopRight
	PropTopTop
	PropLeftMinusTopLeft
	PropTopMinusTopLeft
	PropTopMinusTopRight
	PropAbsLeft
	PropAbsTop
	PropWP

	numNonrefCount
)

// NumNonref is the number of non-reference properties: the static block,
// the spatial gradients, and the single WP-derived scalar. It is also the
// id of the first reference-channel property. Matches §3's "next block up
// to K_nonref".
const NumNonref = numNonrefCount

// WPPropIndex is the property id that carries the WP property value
// (kWPProp in the original: kNumNonrefProperties - weighted::kNumProperties,
// specialized here to weighted::kNumProperties==1).
const WPPropIndex = PropWP

// ExtraPropsPerChannel is the number of property slots contributed by each
// referenced channel (§3: "one tuple of four values per previously coded
// reference channel").
const ExtraPropsPerChannel = 4

// Vector is a property vector indexed by property id, reused row-to-row per
// §5 ("scratch buffers ... allocated once per channel and reused").
type Vector []int32

// NewVector allocates a property vector sized to hold n properties.
func NewVector(n int) Vector {
	if n < NumNonref {
		n = NumNonref
	}
	return make(Vector, n)
}

// InitRow seeds the row-invariant slots (static properties and Y) before
// the per-pixel loop for row y.
func (v Vector) InitRow(channel, group, y int) {
	v[PropChannel] = int32(channel)
	v[PropGroup] = int32(group)
	v[PropY] = int32(y)
}

// FillSpatial fills the gradient-derived slots from the causal window and
// column index; WP (if used) is filled separately via FillWP since it
// requires the WP state.
func (v Vector) FillSpatial(x int, w neighbor.Window) {
	v[PropX] = int32(x)
	v[PropLeft] = w.Left
	v[PropTop] = w.Top
	v[PropTopLeft] = w.TopLeft
	v[PropTopRight] = w.TopRight
	v[PropTopTop] = w.TopTop
	v[PropLeftMinusTopLeft] = w.Left - w.TopLeft
	v[PropTopMinusTopLeft] = w.Top - w.TopLeft
	v[PropTopMinusTopRight] = w.Top - w.TopRight
	v[PropAbsLeft] = absInt32(w.Left)
	v[PropAbsTop] = absInt32(w.Top)
}

// FillWP fills the WP property slot.
func (v Vector) FillWP(wpProp int32) {
	v[WPPropIndex] = wpProp
}

func absInt32(x int32) int32 {
	if x < 0 {
		return -x
	}
	return x
}

// ReferenceRow precomputes, for one row, the ExtraPropsPerChannel values for
// every referenced channel, so the per-pixel loop does constant-stride
// reads instead of recomputing neighbor windows on reference channels
// (§4.C, supplemented feature #7 in SPEC_FULL.md).
type ReferenceRow struct {
	numRefs int
	width   int
	// vals[c] holds width*ExtraPropsPerChannel values for referenced
	// channel c, laid out [x*ExtraPropsPerChannel+slot].
	vals [][]int32
}

// NewReferenceRow allocates scratch for numRefs referenced channels of the
// given width.
func NewReferenceRow(numRefs, width int) *ReferenceRow {
	r := &ReferenceRow{numRefs: numRefs, width: width}
	r.vals = make([][]int32, numRefs)
	for i := range r.vals {
		r.vals[i] = make([]int32, width*ExtraPropsPerChannel)
	}
	return r
}

// Reset right-sizes r for numRefs referenced channels of the given width,
// reusing its existing backing slices when they are already large enough
// (pooled reuse across channel codec calls, not just across rows).
func (r *ReferenceRow) Reset(numRefs, width int) {
	r.numRefs = numRefs
	r.width = width
	if cap(r.vals) < numRefs {
		r.vals = make([][]int32, numRefs)
	} else {
		r.vals = r.vals[:numRefs]
	}
	for i := range r.vals {
		if cap(r.vals[i]) < width*ExtraPropsPerChannel {
			r.vals[i] = make([]int32, width*ExtraPropsPerChannel)
		} else {
			r.vals[i] = r.vals[i][:width*ExtraPropsPerChannel]
		}
	}
}

// Precompute fills the reference row for row y from the already-decoded (or
// source, on encode) reference channel planes.
func (r *ReferenceRow) Precompute(y int, refs []neighbor.Plane) {
	for c, plane := range refs {
		if c >= r.numRefs {
			break
		}
		out := r.vals[c]
		for x := 0; x < r.width; x++ {
			w := plane.Compute(x, y)
			val := plane.At(x, y)
			base := x * ExtraPropsPerChannel
			out[base+0] = val
			out[base+1] = val - w.Left
			out[base+2] = val - w.Top
			out[base+3] = int32(int64(w.Left) + int64(w.Top) - int64(w.TopLeft))
		}
	}
}

// WriteInto writes the precomputed reference values for column x into v,
// starting at NumNonref.
func (r *ReferenceRow) WriteInto(v Vector, x int) {
	for c := 0; c < r.numRefs; c++ {
		base := NumNonref + c*ExtraPropsPerChannel
		src := r.vals[c][x*ExtraPropsPerChannel:]
		copy(v[base:base+ExtraPropsPerChannel], src[:ExtraPropsPerChannel])
	}
}

// NumPropsForRefs returns the minimum property-vector length needed to hold
// numRefs referenced channels.
func NumPropsForRefs(numRefs int) int {
	return NumNonref + numRefs*ExtraPropsPerChannel
}
