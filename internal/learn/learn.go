package learn

import (
	"fmt"
	"math/bits"

	"github.com/arlojames/modularxl/internal/predict"
	"github.com/arlojames/modularxl/internal/proptree"
	"github.com/arlojames/modularxl/internal/xlpixel"
)

// defaultNodeThreshold is used whenever the caller leaves
// Options.NodeThreshold at its zero value; a zero SplitThreshold is used
// as is.
const (
	defaultNodeThreshold  = 32
	defaultMaxSplitDepth  = 12
	candidateSplitsPerCol = 8
)

// node is the learner's own intermediate tree representation, built
// top-down before being flattened into a proptree.Tree.
type node struct {
	leaf bool

	predictor  predict.ID
	offset     int32
	multiplier int32
	context    int32

	property int32
	splitVal int32
	left     *node
	right    *node
}

// builder carries the state threaded through the recursive split search:
// the active predictor set (after force_wp_only/force_no_wp adjustments)
// and a running context-id allocator.
type builder struct {
	predictors []predict.ID
	nextCtx    int32
	opts       Options
	totalCount int
}

// LearnTree builds a decision tree from gathered samples by greedily
// splitting on the property/split-value pair that most reduces estimated
// code length, per spec.md §4.H. It round-trips the result through the
// tree tokenizer before returning it (SPEC_FULL.md supplemented feature:
// tree round-trip self-check).
func LearnTree(samples []Sample, opts Options) (proptree.Tree, error) {
	if opts.ForceNoWP && len(opts.Predictors) == 1 && opts.Predictors[0] == predict.Weighted {
		return nil, ErrForceNoWPConflict
	}
	if opts.NodeThreshold <= 0 {
		opts.NodeThreshold = defaultNodeThreshold
	}

	predictors := append([]predict.ID(nil), opts.Predictors...)
	if opts.ForceNoWP {
		predictors = dropWeighted(predictors)
		for i := range samples {
			samples[i].Props.FillWP(0)
		}
	} else if opts.ForceWPOnly {
		for i := range samples {
			samples[i].Props.FillWP(xlpixel.Clamp(samples[i].Props[proptree.WPPropIndex], -predict.PropRange, predict.PropRange-1))
		}
	}

	if len(samples) == 0 || len(predictors) == 0 {
		return proptree.NewSingleLeafTree(predict.Zero, 0, 1, 0), nil
	}

	predictors = promoteBaseline(samples, predictors)

	b := &builder{predictors: predictors, opts: opts, totalCount: len(samples)}
	root := b.build(samples, 0)
	tree := toTree(root)

	if err := proptree.RoundTripCheck(tree); err != nil {
		return nil, fmt.Errorf("learn: learned tree failed its round-trip self-check: %w", err)
	}
	return tree, nil
}

func dropWeighted(predictors []predict.ID) []predict.ID {
	out := predictors[:0:0]
	for _, p := range predictors {
		if p != predict.Weighted {
			out = append(out, p)
		}
	}
	return out
}

// costOf estimates the total code length, in bits, of coding every
// sample's residual under predictor p with a crude log2(1+|v|) proxy per
// symbol, matching the "estimated code-length objective" spec.md §4.H
// calls for without committing to the real histogram-based cost model
// (which lives in the out-of-scope entropy collaborator).
func costOf(samples []Sample, p predict.ID) float64 {
	var bitsTotal float64
	for _, s := range samples {
		if !s.Has[p] {
			continue
		}
		packed := xlpixel.PackSigned(int64(s.Residual[p]))
		bitsTotal += float64(bits.Len64(packed + 1))
	}
	return bitsTotal
}

// bestPredictor picks the lowest-cost predictor among candidates for the
// given sample set.
func bestPredictor(samples []Sample, candidates []predict.ID) (predict.ID, float64) {
	best := candidates[0]
	bestCost := costOf(samples, best)
	for _, p := range candidates[1:] {
		if c := costOf(samples, p); c < bestCost {
			best, bestCost = p, c
		}
	}
	return best, bestCost
}

// promoteBaseline reorders predictors so the one with the lowest summed
// |PackSigned(residual)| across all samples comes first, per spec.md
// §4.H step 1 ("swap the one with lowest summed |residual| into position
// 0 as the baseline").
func promoteBaseline(samples []Sample, predictors []predict.ID) []predict.ID {
	bestIdx := 0
	bestSum := uint64(0)
	for i, p := range predictors {
		var sum uint64
		for _, s := range samples {
			if s.Has[p] {
				sum += xlpixel.PackSigned(int64(s.Residual[p]))
			}
		}
		if i == 0 || sum < bestSum {
			bestIdx, bestSum = i, sum
		}
	}
	out := append([]predict.ID(nil), predictors...)
	out[0], out[bestIdx] = out[bestIdx], out[0]
	return out
}

// candidateProperties returns the set of property indices present in the
// samples' property vectors, bounded by MaxProperties if set. Under
// ForceWPOnly it returns only the WP property, symmetric with how
// ForceNoWP drops the Weighted predictor from the candidate predictor set:
// a tree built from this restricted set can only ever split on WP, which
// is what makes it wp_only (spec.md §4.G) once every leaf uses Weighted.
func (b *builder) candidateProperties(samples []Sample) []int32 {
	if b.opts.ForceWPOnly {
		return []int32{proptree.WPPropIndex}
	}
	n := len(samples[0].Props)
	props := make([]int32, 0, n)
	for i := 0; i < n; i++ {
		props = append(props, int32(i))
	}
	if b.opts.MaxProperties > 0 && len(props) > b.opts.MaxProperties {
		props = props[:b.opts.MaxProperties]
	}
	return props
}

// candidateSplits picks up to candidateSplitsPerCol evenly spaced split
// values from the sorted distinct values a property takes across samples,
// standing in for the "quantize to a small external codebook" step of
// spec.md §4.H (the real codebook generator is an external collaborator).
func candidateSplits(samples []Sample, prop int32) []int32 {
	seen := make(map[int32]bool, len(samples))
	vals := make([]int32, 0, len(samples))
	for _, s := range samples {
		v := s.Props[prop]
		if !seen[v] {
			seen[v] = true
			vals = append(vals, v)
		}
	}
	for i := 1; i < len(vals); i++ {
		for j := i; j > 0 && vals[j-1] > vals[j]; j-- {
			vals[j-1], vals[j] = vals[j], vals[j-1]
		}
	}
	if len(vals) <= 1 {
		return nil
	}
	if len(vals) <= candidateSplitsPerCol {
		return vals[:len(vals)-1]
	}
	step := float64(len(vals)-1) / float64(candidateSplitsPerCol)
	out := make([]int32, 0, candidateSplitsPerCol)
	for i := 0; i < candidateSplitsPerCol; i++ {
		idx := int(float64(i) * step)
		out = append(out, vals[idx])
	}
	return out
}

func partition(samples []Sample, prop, splitVal int32) (left, right []Sample) {
	for _, s := range samples {
		if s.Props[prop] > splitVal {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}
	return left, right
}

// build recursively chooses between a leaf and a split for samples, per
// the greedy procedure of spec.md §4.H step 4.
func (b *builder) build(samples []Sample, depth int) *node {
	leafPred, leafCost := bestPredictor(samples, b.predictors)

	if depth >= defaultMaxSplitDepth || len(samples) < b.opts.NodeThreshold {
		return b.leaf(leafPred)
	}

	pixelFraction := float64(len(samples)) / float64(b.totalCount)
	scale := pixelFraction*0.9 + 0.1

	var bestGain float64
	var bestProp, bestSplit int32
	haveCandidate := false

	for _, prop := range b.candidateProperties(samples) {
		for _, sv := range candidateSplits(samples, prop) {
			left, right := partition(samples, prop, sv)
			if len(left) == 0 || len(right) == 0 {
				continue
			}
			_, leftCost := bestPredictor(left, b.predictors)
			_, rightCost := bestPredictor(right, b.predictors)
			candidateCost := scale * (leftCost + rightCost)
			gain := leafCost - candidateCost
			if !haveCandidate || gain > bestGain {
				haveCandidate, bestGain, bestProp, bestSplit = true, gain, prop, sv
			}
		}
	}

	threshold := b.opts.SplitThreshold
	if !haveCandidate || bestGain <= threshold {
		return b.leaf(leafPred)
	}

	left, right := partition(samples, bestProp, bestSplit)
	return &node{
		property: bestProp,
		splitVal: bestSplit,
		left:     b.build(left, depth+1),
		right:    b.build(right, depth+1),
	}
}

func (b *builder) leaf(p predict.ID) *node {
	ctx := b.nextCtx
	b.nextCtx++
	return &node{leaf: true, predictor: p, offset: 0, multiplier: 1, context: ctx}
}

// toTree flattens the learner's recursive node tree into a proptree.Tree,
// reserving each node's array slot before recursing into its children so
// the root always lands at index 0.
func toTree(n *node) proptree.Tree {
	var t proptree.Tree
	var build func(n *node) int32
	build = func(n *node) int32 {
		idx := int32(len(t))
		t = append(t, proptree.Node{})
		if n.leaf {
			t[idx] = proptree.Node{
				Property:   -1,
				Predictor:  n.predictor,
				Offset:     n.offset,
				Multiplier: n.multiplier,
				Context:    n.context,
			}
			return idx
		}
		l := build(n.left)
		r := build(n.right)
		t[idx] = proptree.Node{Property: n.property, SplitVal: n.splitVal, LChild: l, RChild: r}
		return idx
	}
	build(n)
	return t
}
