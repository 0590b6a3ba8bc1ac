package proptree

import (
	"fmt"

	"github.com/arlojames/modularxl/internal/predict"
	"github.com/arlojames/modularxl/internal/xlpixel"
)

func packSigned32(v int32) uint64   { return xlpixel.PackSigned(int64(v)) }
func unpackSigned32(v uint64) int32 { return int32(xlpixel.UnpackSigned(v)) }

func nodeFromLeafTokens(pred, packedOff, packedMul uint64, ctx int32) Node {
	return Node{
		Property:   -1,
		Predictor:  predict.ID(pred),
		Offset:     unpackSigned32(packedOff),
		Multiplier: unpackSigned32(packedMul),
		Context:    ctx,
	}
}

// TreeWriter is the minimal emit_token half of the §6 entropy collaborator
// contract that WriteTree needs; *entropy.Encoder satisfies it.
type TreeWriter interface {
	EmitToken(context int, symbol uint64) error
}

// TreeReader is the minimal read_symbol half of the collaborator contract;
// *entropy.Decoder satisfies it.
type TreeReader interface {
	ReadSymbol(context int) (uint64, error)
}

// WriteTree streams tree's pre-order tokens directly to an entropy
// collaborator, the wire-format counterpart of TokenizeTree (which targets
// an in-memory []Token instead, for the learner's round-trip self-check).
func WriteTree(w TreeWriter, tree Tree) error {
	var walk func(idx int32) error
	walk = func(idx int32) error {
		n := tree[idx]
		if n.IsLeaf() {
			if err := w.EmitToken(TreeCtxIsLeaf, 1); err != nil {
				return err
			}
			if err := w.EmitToken(TreeCtxPredictor, uint64(n.Predictor)); err != nil {
				return err
			}
			if err := w.EmitToken(TreeCtxOffset, packSigned32(n.Offset)); err != nil {
				return err
			}
			return w.EmitToken(TreeCtxMultiplier, packSigned32(n.Multiplier))
		}
		if err := w.EmitToken(TreeCtxIsLeaf, 0); err != nil {
			return err
		}
		if err := w.EmitToken(TreeCtxProperty, uint64(n.Property)); err != nil {
			return err
		}
		if err := w.EmitToken(TreeCtxSplitVal, packSigned32(n.SplitVal)); err != nil {
			return err
		}
		if err := walk(n.LChild); err != nil {
			return err
		}
		return walk(n.RChild)
	}
	return walk(0)
}

// ReadTree is the wire-format counterpart of DetokenizeTree, reading
// directly from an entropy collaborator instead of a pre-materialized
// []Token, using the same reserve-slot-then-recurse construction order so
// the reconstructed root always lands at index 0.
//
// Leaf Context is never transmitted on the wire: the encoder's authoring
// tree assigns each leaf a distinct raw context id in pre-order
// (internal/learn's b.nextCtx), and chancodec keys every emitted token on
// that id, so the decoder must recompute the identical running counter
// here rather than leaving Context at its zero value — otherwise every
// leaf decodes tokens under context 0 and desyncs from the encoder the
// moment a tree has more than one leaf.
func ReadTree(r TreeReader) (Tree, error) {
	var tree Tree
	var nextCtx int32
	var build func() (int32, error)
	build = func() (int32, error) {
		isLeaf, err := r.ReadSymbol(TreeCtxIsLeaf)
		if err != nil {
			return 0, fmt.Errorf("proptree: reading tree is-leaf flag: %w", err)
		}
		if isLeaf != 0 {
			pred, err := r.ReadSymbol(TreeCtxPredictor)
			if err != nil {
				return 0, fmt.Errorf("proptree: reading leaf predictor: %w", err)
			}
			packedOff, err := r.ReadSymbol(TreeCtxOffset)
			if err != nil {
				return 0, fmt.Errorf("proptree: reading leaf offset: %w", err)
			}
			packedMul, err := r.ReadSymbol(TreeCtxMultiplier)
			if err != nil {
				return 0, fmt.Errorf("proptree: reading leaf multiplier: %w", err)
			}
			ctx := nextCtx
			nextCtx++
			idx := int32(len(tree))
			tree = append(tree, nodeFromLeafTokens(pred, packedOff, packedMul, ctx))
			return idx, nil
		}

		propVal, err := r.ReadSymbol(TreeCtxProperty)
		if err != nil {
			return 0, fmt.Errorf("proptree: reading decision property: %w", err)
		}
		splitPacked, err := r.ReadSymbol(TreeCtxSplitVal)
		if err != nil {
			return 0, fmt.Errorf("proptree: reading decision splitval: %w", err)
		}
		idx := int32(len(tree))
		tree = append(tree, Node{})
		lc, err := build()
		if err != nil {
			return 0, err
		}
		rc, err := build()
		if err != nil {
			return 0, err
		}
		tree[idx] = Node{Property: int32(propVal), SplitVal: unpackSigned32(splitPacked), LChild: lc, RChild: rc}
		return idx, nil
	}
	root, err := build()
	if err != nil {
		return nil, err
	}
	if root != 0 {
		return nil, fmt.Errorf("proptree: decoded tree root landed at %d, want 0", root)
	}
	return tree, nil
}
