// Package xlpixel implements the pixel-level arithmetic contract shared by
// the encoder and decoder: the widened intermediate type, saturating
// reconstruction, and the zig-zag signed/unsigned packing used to hand
// residuals to the entropy collaborator.
package xlpixel

import "math"

// Pixel is the nominal 32-bit signed pixel type.
type Pixel = int32

// Wide is the widened intermediate type used for sums of two pixels and for
// predictor arithmetic that must not lose precision or silently wrap.
// int64 comfortably holds the extra headroom a saturating 32-bit
// reconstruction needs without wrapping mid-computation.
type Wide = int64

// PackSigned zig-zag folds a signed residual into an unsigned value so it
// can be handed to the entropy collaborator as an always-non-negative
// symbol. PackSigned(x) is even for x>=0 and odd for x<0.
func PackSigned(x Wide) uint64 {
	if x < 0 {
		return uint64(-x)*2 - 1
	}
	return uint64(x) * 2
}

// UnpackSigned is the inverse of PackSigned.
func UnpackSigned(v uint64) Wide {
	if v&1 == 1 {
		return -Wide((v + 1) / 2)
	}
	return Wide(v / 2)
}

// SaturatingAdd computes a+b in the wide type and saturates the result to
// the range of Pixel. Used on every reconstruction so that a crafted stream
// cannot cause the decoder to overflow the pixel type.
func SaturatingAdd(a, b Wide) Pixel {
	sum := a + b
	if sum > math.MaxInt32 {
		return math.MaxInt32
	}
	if sum < math.MinInt32 {
		return math.MinInt32
	}
	return Pixel(sum)
}

// Clamp restricts v to [lo, hi] (lo <= hi).
func Clamp(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
