package predict

import "github.com/arlojames/modularxl/internal/neighbor"

// PropRange bounds the WP property before it is usable as a tree decision
// value: clamp to [-PropRange, PropRange-1]. The per-value lookup table
// built by the WP-only fast path (4.G Path 1) has one entry per clamped
// value, 2*PropRange in all.
const PropRange = 512

// Header is the small, fixed bundle of WP configuration agreed between
// encoder and decoder (GroupHeader.wp_header in the wire contract).
type Header struct {
	// InitialWeights seeds the four sub-predictor weights.
	InitialWeights [4]int32
	// WeightShift controls how sharply weights favor sub-predictors with
	// low recent error:
	// weight_i = max(1, (1<<WeightShift) / max(err_i, 1)) + InitialWeights[i].
	WeightShift uint8
	// ErrorShift controls the decay rate of the per-position error
	// accumulator: err_i -= err_i>>ErrorShift each step before adding the
	// new absolute error.
	ErrorShift uint8
}

// DefaultHeader returns the WP configuration used when the caller does not
// specify one explicitly.
func DefaultHeader() Header {
	return Header{
		InitialWeights: [4]int32{16, 16, 16, 16},
		WeightShift:    12,
		ErrorShift:     3,
	}
}

// numSub is the fixed number of WP sub-predictors (§3: "four sub-predictors
// plus four signed weights").
const numSub = 4

// State is the owned, mutable companion that a channel codec drives through
// one channel in strict raster order (9. Design notes). It must never be
// shared across channels.
type State struct {
	header Header
	width  int

	// err[i] is the exponentially-decaying running absolute error of
	// sub-predictor i, evolved left-to-right, reset at channel start.
	err [numSub]int64

	// haveLast/lastSub let UpdateErrors reuse the sub-predictions Predict
	// computed for this pixel without the caller re-deriving them.
	haveLast  bool
	lastSub   [numSub]int32
}

// NewState creates a WP state for a channel of the given width, to be used
// for exactly one channel's worth of Predict/UpdateErrors calls in raster
// order.
func NewState(h Header, width, height int) *State {
	return &State{header: h, width: width}
}

// Reset clears the running error state, as happens at the start of each
// channel (§3: "evolves left-to-right each row and is reset at channel
// start").
func (s *State) Reset() {
	s.err = [numSub]int64{}
	s.haveLast = false
}

func subPredictors(w neighbor.Window) [numSub]int32 {
	return [numSub]int32{
		w.Left,
		w.Top,
		int32(int64(w.Top) + int64(w.Left) - int64(w.TopLeft)),
		int32(int64(w.Top) + int64(w.TopRight) - int64(w.TopTop)),
	}
}

// Predict computes the WP prediction and WP property for pixel (x, y) given
// its causal window. The WP property is already clamped to
// [-PropRange, PropRange-1] as required before use as a tree decision
// value (4.B).
//
// Predict must be called for every pixel in strict raster order whenever WP
// is referenced anywhere in the tree (as predictor or property); it must be
// followed by exactly one UpdateErrors call with the true pixel value
// before the next Predict.
func (s *State) Predict(w neighbor.Window) (guess int32, wpProp int32) {
	sub := subPredictors(w)
	s.lastSub = sub
	s.haveLast = true

	k := int64(1) << s.header.WeightShift
	var num, den int64
	weights := [numSub]int64{}
	for i := 0; i < numSub; i++ {
		e := s.err[i]
		if e == 0 {
			e = 1
		}
		wgt := k / e
		if wgt < 1 {
			wgt = 1
		}
		// Blend in the configured initial weight so a channel with no
		// error history yet (e==1 for all) still respects the caller's
		// prior, matching the "weights... agreed between encoder and
		// decoder" contract in §3.
		wgt += int64(s.header.InitialWeights[i])
		weights[i] = wgt
		num += wgt * int64(sub[i])
		den += wgt
	}
	if den == 0 {
		den = 1
	}
	guess = int32(num / den)

	propVal := s.err[2] - s.err[3]
	wpProp = int32(propVal)
	if wpProp < -PropRange {
		wpProp = -PropRange
	}
	if wpProp > PropRange-1 {
		wpProp = PropRange - 1
	}
	return guess, wpProp
}

// UpdateErrors folds the true pixel value into the running error state.
// Must be called exactly once per pixel, after Predict, before the next
// pixel's Predict, in raster order (4.B contract).
func (s *State) UpdateErrors(actual int32) {
	if !s.haveLast {
		return
	}
	shift := s.header.ErrorShift
	for i := 0; i < numSub; i++ {
		diff := int64(actual) - int64(s.lastSub[i])
		if diff < 0 {
			diff = -diff
		}
		s.err[i] -= s.err[i] >> shift
		s.err[i] += diff
	}
	s.haveLast = false
}
