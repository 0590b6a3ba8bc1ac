// Package neighbor computes the causal pixel neighborhood used by every
// predictor and by the property vector builder. The boundary rules here are
// part of the wire contract: changing them changes what the encoder and
// decoder compute, breaking bit-compatibility with already-produced
// streams.
package neighbor

import "github.com/arlojames/modularxl/internal/xlpixel"

// Window holds the causal neighbors of one pixel.
type Window struct {
	Left, Top, TopLeft, TopRight, TopTop xlpixel.Pixel
}

// Plane is the minimal read access a row-major pixel buffer must provide.
// Decoders pass the in-progress channel buffer (already-decoded prefix);
// encoders pass the source channel.
type Plane struct {
	Pix    []xlpixel.Pixel
	Width  int
	Height int
}

// At returns the pixel at (x, y), assuming it has already been
// written/read; callers must never call this on a position not yet
// produced in raster order.
func (p Plane) At(x, y int) xlpixel.Pixel {
	return p.Pix[y*p.Width+x]
}

// Compute returns the causal window for (x, y) per the boundary rules:
//
//	left     = x>0 ? pix[y][x-1] : (y>0 ? pix[y-1][x] : 0)
//	top      = y>0 ? pix[y-1][x] : left
//	topleft  = (x>0 && y>0) ? pix[y-1][x-1] : left
//	topright = (x+1<w && y>0) ? pix[y-1][x+1] : top
//	toptop   = y>1 ? pix[y-2][x] : top
func (p Plane) Compute(x, y int) Window {
	var left xlpixel.Pixel
	if x > 0 {
		left = p.At(x-1, y)
	} else if y > 0 {
		left = p.At(x, y-1)
	}

	top := left
	if y > 0 {
		top = p.At(x, y-1)
	}

	topLeft := left
	if x > 0 && y > 0 {
		topLeft = p.At(x-1, y-1)
	}

	topRight := top
	if x+1 < p.Width && y > 0 {
		topRight = p.At(x+1, y-1)
	}

	topTop := top
	if y > 1 {
		topTop = p.At(x, y-2)
	}

	return Window{Left: left, Top: top, TopLeft: topLeft, TopRight: topRight, TopTop: topTop}
}
