// Package predict implements the closed predictor enumeration (4.F) and the
// weighted predictor state machine (4.B). Predictors are a small, fixed,
// compile-time-known set, so they are dispatched through a plain switch
// rather than an interface, the same flat-dispatch-table preference
// internal/entropy's state tables use over virtual dispatch.
package predict

import "github.com/arlojames/modularxl/internal/neighbor"

// ID identifies one predictor in the closed bank. The numeric values are
// part of the MA tree leaf encoding and must never be renumbered once a
// stream has been produced with them.
type ID uint8

const (
	Zero ID = iota
	Left
	Top
	Average0 // avg(left, top)
	Select
	Gradient
	Weighted
	TopRight
	TopLeft
	Average1 // avg(left, topleft)
	Average2 // avg(topleft, top)
	Average3 // avg(top, topright)
	Average4 // avg(avg(left, topleft), avg(top, topright))

	NumPredictors
)

// String returns the predictor's name, used by tree-printing diagnostics.
func (id ID) String() string {
	switch id {
	case Zero:
		return "Zero"
	case Left:
		return "Left"
	case Top:
		return "Top"
	case Average0:
		return "Average0"
	case Select:
		return "Select"
	case Gradient:
		return "Gradient"
	case Weighted:
		return "Weighted"
	case TopRight:
		return "TopRight"
	case TopLeft:
		return "TopLeft"
	case Average1:
		return "Average1"
	case Average2:
		return "Average2"
	case Average3:
		return "Average3"
	case Average4:
		return "Average4"
	default:
		return "Unknown"
	}
}

func avg(a, b int32) int32 {
	// Matches the well-known overflow-free average used throughout the
	// retrieved codec corpus (e.g. deepteams-webp's avg2): (a+b) rounds
	// toward -inf for odd sums, which both sides compute identically since
	// it is pure integer arithmetic.
	return int32((int64(a) + int64(b)) >> 1)
}

func clampedGradient(left, top, topLeft int32) int32 {
	// The classic MED/LOCO-I clamped gradient: left+top-topleft, clamped to
	// the range spanned by left and top. This is scenario 3 of spec.md §8.
	lo, hi := left, top
	if lo > hi {
		lo, hi = hi, lo
	}
	g := int32(int64(left) + int64(top) - int64(topLeft))
	if g < lo {
		return lo
	}
	if g > hi {
		return hi
	}
	return g
}

func selectPredict(left, top, topLeft int32) int32 {
	dLeft := abs32(left - topLeft)
	dTop := abs32(top - topLeft)
	if dLeft <= dTop {
		return top
	}
	return left
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// Static evaluates every predictor except Weighted (which needs WP state)
// for the given neighborhood and returns the prediction.
func Static(id ID, w neighbor.Window) int32 {
	switch id {
	case Zero:
		return 0
	case Left:
		return w.Left
	case Top:
		return w.Top
	case Average0:
		return avg(w.Left, w.Top)
	case Select:
		return selectPredict(w.Left, w.Top, w.TopLeft)
	case Gradient:
		return clampedGradient(w.Left, w.Top, w.TopLeft)
	case TopRight:
		return w.TopRight
	case TopLeft:
		return w.TopLeft
	case Average1:
		return avg(w.Left, w.TopLeft)
	case Average2:
		return avg(w.TopLeft, w.Top)
	case Average3:
		return avg(w.Top, w.TopRight)
	case Average4:
		return avg(avg(w.Left, w.TopLeft), avg(w.Top, w.TopRight))
	default:
		panic("predict: Static called with non-static predictor id")
	}
}

// IsStatic reports whether id can be evaluated with Static (everything
// except Weighted).
func IsStatic(id ID) bool {
	return id != Weighted
}
