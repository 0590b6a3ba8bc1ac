// Package modularxl implements the Modular sub-coder: a lossless
// multi-channel pixel codec built from a Meta-Adaptive decision tree, a
// self-correcting weighted predictor, and the channel codec execution
// engine that drives them over one channel at a time (spec.md §§1-4).
package modularxl

import "github.com/arlojames/modularxl/internal/neighbor"

// Channel is one rectangular plane of signed 32-bit pixels. Channels carry
// no color semantics at this layer; they are an ordered sequence within an
// Image (spec.md §3).
type Channel struct {
	Width, Height int
	Pix           []int32
}

// plane adapts a Channel to the causal-neighborhood accessor every
// predictor and the property vector builder read through.
func (c Channel) plane() neighbor.Plane {
	return neighbor.Plane{Pix: c.Pix, Width: c.Width, Height: c.Height}
}

// Image is an ordered sequence of Channels plus the channel-iteration
// metadata §6 needs to compute the coded channel list.
type Image struct {
	Channels []Channel

	// NumMetaChannels is the count of leading channels exempt from the
	// max_chan_size iteration-stop rule.
	NumMetaChannels int

	// GroupID is the static property threaded through every channel's
	// property vector for this group (SPEC_FULL.md supplemented feature
	// 6: always seeded, defaulting to 0 for single-group callers).
	GroupID int

	// PendingTransforms is an opaque list of transform ids the caller
	// will apply before encoding or after decoding. This core never
	// interprets them — image transforms are out of scope (spec.md §1) —
	// but carries them through the GroupHeader bundle unmodified so the
	// wire layout matches spec.md §6 bullet 1 ("the list of pending
	// transforms").
	PendingTransforms []uint64
}

// SelectedChannels computes the ordered list of channel indices this core
// will code, per the channel selection rule shared by encoder and decoder
// (spec.md §6): iterate from skipChannels upward, skip empty channels
// (w==0 or h==0), and stop (not skip) at the first non-meta channel whose
// width or height exceeds maxChanSize.
func SelectedChannels(img *Image, skipChannels, maxChanSize int) []int {
	var out []int
	for i := skipChannels; i < len(img.Channels); i++ {
		ch := img.Channels[i]
		if ch.Width == 0 || ch.Height == 0 {
			continue
		}
		if i >= img.NumMetaChannels && maxChanSize > 0 && (ch.Width > maxChanSize || ch.Height > maxChanSize) {
			break
		}
		out = append(out, i)
	}
	return out
}
