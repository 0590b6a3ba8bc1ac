package modularxl

import (
	"github.com/arlojames/modularxl/internal/predict"
	"github.com/arlojames/modularxl/internal/proptree"
)

// PredictorSelection chooses how the learner picks its candidate predictor
// set (spec.md §6, `predictor` option).
type PredictorSelection int

const (
	// PredictorVariable makes every predictor in the bank a candidate.
	PredictorVariable PredictorSelection = iota
	// PredictorFixed uses exactly one predictor, given by
	// ModularOptions.Fixed, as the only candidate; with NbRepeats > 0 the
	// learner still builds a tree, and every leaf of it uses that predictor.
	PredictorFixed
	// PredictorBest restricts the candidate set to {Gradient, Weighted}.
	PredictorBest
)

// ModularOptions bundles the encoder's configuration knobs (spec.md §6).
// The zero value is a documented, usable default: PredictorVariable
// predictor selection, default WP header, full channel iteration, and
// nb_repeats of 0 (learning disabled, falls back to a fixed predictor
// tree) — callers that want learning must set NbRepeats explicitly.
type ModularOptions struct {
	// Predictor selects how the learner's candidate predictor set is
	// built.
	Predictor PredictorSelection
	// Fixed is the single predictor used when Predictor == PredictorFixed,
	// including for the single-leaf tree used when NbRepeats == 0. Under
	// any other selection mode that single-leaf tree uses Gradient.
	Fixed predict.ID

	// WPHeader configures the weighted predictor, written into the
	// GroupHeader bundle so the decoder need not be told separately.
	WPHeader predict.Header

	// ForceWPOnly and ForceNoWP are learner constraints (spec.md §4.H
	// step 2).
	ForceWPOnly bool
	ForceNoWP   bool

	// MaxProperties, NodeThreshold, SplitThreshold are learner knobs
	// (spec.md §6, `max_properties`,
	// `splitting_heuristics_node_threshold`, and the learner's split
	// improvement threshold).
	MaxProperties  int
	NodeThreshold  int
	SplitThreshold float64

	// NbRepeats is the learner's sampling fraction in [0, 1]; 0 disables
	// learning and falls back to a trivial single-leaf tree (Fixed under
	// PredictorFixed, Gradient otherwise).
	NbRepeats float64

	// SkipChannels and MaxChanSize shape channel iteration (spec.md §6).
	// MaxChanSize <= 0 means unbounded.
	SkipChannels int
	MaxChanSize  int

	// Identify, when set, makes Encode/Decode return immediately after
	// the GroupHeader bundle without coding any channel data
	// (SPEC_FULL.md supplemented feature 1).
	Identify bool

	// GlobalTree, when non-nil, is used as-is instead of learning a tree;
	// the GroupHeader's use_global_tree flag is set and no tree stream is
	// written. The decoder must be given the identical tree via
	// DecodeOptions.GlobalTree.
	GlobalTree proptree.Tree
}

// DecodeOptions bundles the decoder's configuration. The WP header is not
// part of this struct: it travels inside the stream's GroupHeader bundle,
// agreed between encoder and decoder at encode time (spec.md §3).
type DecodeOptions struct {
	SkipChannels int
	MaxChanSize  int

	// Identify mirrors ModularOptions.Identify: if set, Decode reads only
	// the GroupHeader and returns without touching channel data.
	Identify bool

	// GlobalTree must be supplied, and must match the tree the encoder
	// used, whenever the stream's GroupHeader declares use_global_tree.
	GlobalTree proptree.Tree
}

func predictorsFor(opts ModularOptions) []predict.ID {
	switch opts.Predictor {
	case PredictorFixed:
		return []predict.ID{opts.Fixed}
	case PredictorBest:
		return []predict.ID{predict.Gradient, predict.Weighted}
	default:
		ids := make([]predict.ID, 0, predict.NumPredictors)
		for id := predict.ID(0); id < predict.NumPredictors; id++ {
			ids = append(ids, id)
		}
		return ids
	}
}

func fallbackPredictor(opts ModularOptions) predict.ID {
	if opts.Predictor == PredictorFixed {
		return opts.Fixed
	}
	return predict.Gradient
}
