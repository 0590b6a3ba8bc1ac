package learn

import (
	"errors"

	"github.com/arlojames/modularxl/internal/neighbor"
	"github.com/arlojames/modularxl/internal/predict"
	"github.com/arlojames/modularxl/internal/proptree"
)

// ErrForceNoWPConflict is returned when the caller asks for force_no_wp
// while the only candidate predictor is Weighted, mirroring the original's
// "Logic error: cannot force_no_wp with {Weighted}" failure (spec.md §7
// category 4, SPEC_FULL.md supplemented feature #4).
var ErrForceNoWPConflict = errors.New("learn: force_no_wp conflicts with a predictor set of {Weighted} only")

// minSamplesFloor is the "floor of ~1024 samples per channel" spec.md
// §4.H calls for regardless of how small nb_repeats is.
const minSamplesFloor = 1024

// Options mirrors the learner-relevant subset of ModularOptions (§6).
type Options struct {
	// Predictors is the candidate set; Weighted is only valid here if
	// ForceNoWP is false.
	Predictors []predict.ID
	// ForceWPOnly clips the WP-property column into WP_PROP_RANGE before
	// learning, biasing the learner toward the WP-only fast path.
	ForceWPOnly bool
	// ForceNoWP zeroes the WP-property column and removes Weighted from
	// the candidate set before learning.
	ForceNoWP bool
	// NbRepeats is the sampling fraction in [0, 1]; 0 disables learning
	// (callers should fall back to a fixed single-leaf tree instead of
	// calling GatherTreeData/LearnTree at all).
	NbRepeats float64
	// WPHeader configures the weighted predictor run during sampling.
	WPHeader predict.Header
	// MaxProperties caps how many distinct properties LearnTree may
	// split on; 0 means unlimited.
	MaxProperties int
	// NodeThreshold is the minimum sample count a node must have before
	// the learner will consider splitting it further.
	NodeThreshold int
	// SplitThreshold is the minimum estimated code-length improvement
	// (in bits) a split must achieve over its parent leaf to be kept.
	SplitThreshold float64
}

// Sample is one gathered (property_vector, residual_per_predictor) pair.
type Sample struct {
	Props    proptree.Vector
	Residual [predict.NumPredictors]int32
	Has      [predict.NumPredictors]bool
}

// GatherTreeData runs the weighted predictor and every candidate predictor
// over channel in strict raster order, recording a deterministically
// sampled subset of (property vector, residual) pairs for LearnTree.
// refs holds the already-coded channels this channel may reference, in
// reference order.
func GatherTreeData(channel neighbor.Plane, refs []neighbor.Plane, channelIdx, groupID int, opts Options) ([]Sample, error) {
	if opts.ForceNoWP && len(opts.Predictors) == 1 && opts.Predictors[0] == predict.Weighted {
		return nil, ErrForceNoWPConflict
	}

	width, height := channel.Width, channel.Height
	total := width * height
	rate := opts.NbRepeats
	if total > 0 {
		if floorRate := float64(minSamplesFloor) / float64(total); floorRate > rate {
			rate = floorRate
		}
	}
	if rate > 1 {
		rate = 1
	}

	rng := newXorshift128Plus()
	numProps := proptree.NumPropsForRefs(len(refs))
	refRow := proptree.NewReferenceRow(len(refs), width)
	wp := predict.NewState(opts.WPHeader, width, height)

	var out []Sample
	for y := 0; y < height; y++ {
		refRow.Precompute(y, refs)
		for x := 0; x < width; x++ {
			w := channel.Compute(x, y)
			guessWP, wpProp := wp.Predict(w)
			actual := channel.At(x, y)

			keep := rate >= 1 || rng.Float64() < rate

			var sample Sample
			if keep {
				sample.Props = proptree.NewVector(numProps)
				sample.Props.InitRow(channelIdx, groupID, y)
				sample.Props.FillSpatial(x, w)
				sample.Props.FillWP(wpProp)
				refRow.WriteInto(sample.Props, x)
			}

			for _, p := range opts.Predictors {
				var guess int32
				if p == predict.Weighted {
					guess = guessWP
				} else {
					guess = predict.Static(p, w)
				}
				if keep {
					sample.Residual[p] = actual - guess
					sample.Has[p] = true
				}
			}

			wp.UpdateErrors(actual)

			if keep {
				out = append(out, sample)
			}
		}
	}
	return out, nil
}
