package proptree

import (
	"fmt"

	"github.com/arlojames/modularxl/internal/predict"
	"github.com/arlojames/modularxl/internal/xlpixel"
)

// Tree-stream context ids (§6, bullet 2: "the tree itself ... tokenized
// into a dedicated small set of contexts"). These are local to the tree
// stream and never collide with per-pixel channel contexts.
const (
	TreeCtxIsLeaf = iota
	TreeCtxProperty
	TreeCtxSplitVal
	TreeCtxPredictor
	TreeCtxOffset
	TreeCtxMultiplier

	NumTreeContexts
)

// Token is one (context, symbol) pair destined for the entropy coder
// collaborator, per the §6 emit_token/read_symbol contract.
type Token struct {
	Context int
	Symbol  uint64
}

// TokenizeTree flattens tree into its pre-order token stream: each node
// emits an is-leaf flag, then either {property, splitval} for a decision
// node (recursing left, then right) or {predictor, offset, multiplier} for
// a leaf.
func TokenizeTree(tree Tree) []Token {
	var toks []Token
	var walk func(idx int32)
	walk = func(idx int32) {
		n := tree[idx]
		if n.IsLeaf() {
			toks = append(toks, Token{TreeCtxIsLeaf, 1})
			toks = append(toks, Token{TreeCtxPredictor, uint64(n.Predictor)})
			toks = append(toks, Token{TreeCtxOffset, xlpixel.PackSigned(int64(n.Offset))})
			toks = append(toks, Token{TreeCtxMultiplier, xlpixel.PackSigned(int64(n.Multiplier))})
			return
		}
		toks = append(toks, Token{TreeCtxIsLeaf, 0})
		toks = append(toks, Token{TreeCtxProperty, uint64(n.Property)})
		toks = append(toks, Token{TreeCtxSplitVal, xlpixel.PackSigned(int64(n.SplitVal))})
		walk(n.LChild)
		walk(n.RChild)
	}
	walk(0)
	return toks
}

// tokenCursor is a tiny forward-only reader over a Token slice, giving
// DetokenizeTree the same shape as a bitstream reader without pulling in
// the entropy package (tree decoding happens before any channel is coded
// and is driven directly off emitted tokens in tests and self-checks).
type tokenCursor struct {
	toks []Token
	pos  int
}

func (c *tokenCursor) next(ctx int) (uint64, error) {
	if c.pos >= len(c.toks) {
		return 0, fmt.Errorf("proptree: tree token stream truncated")
	}
	t := c.toks[c.pos]
	c.pos++
	if t.Context != ctx {
		return 0, fmt.Errorf("proptree: tree token context mismatch: got %d, want %d", t.Context, ctx)
	}
	return t.Symbol, nil
}

// DetokenizeTree reconstructs a Tree from a token stream produced by
// TokenizeTree, appending nodes in the same pre-order the original
// recursion visited them (4.D: "the only valid reconstruction order").
func DetokenizeTree(toks []Token) (Tree, error) {
	c := &tokenCursor{toks: toks}
	var tree Tree
	// nextCtx assigns each leaf a running pre-order context id, mirroring
	// internal/learn's b.nextCtx: the token stream carries no context
	// field of its own (leaf context is implicit in leaf order), so the
	// reader must recompute it the same way the authoring side did.
	var nextCtx int32
	var build func() (int32, error)
	build = func() (int32, error) {
		isLeaf, err := c.next(TreeCtxIsLeaf)
		if err != nil {
			return 0, err
		}
		if isLeaf != 0 {
			pred, err := c.next(TreeCtxPredictor)
			if err != nil {
				return 0, err
			}
			packedOff, err := c.next(TreeCtxOffset)
			if err != nil {
				return 0, err
			}
			packedMul, err := c.next(TreeCtxMultiplier)
			if err != nil {
				return 0, err
			}
			ctx := nextCtx
			nextCtx++
			idx := int32(len(tree))
			tree = append(tree, Node{
				Property:   -1,
				Predictor:  predict.ID(pred),
				Offset:     int32(xlpixel.UnpackSigned(packedOff)),
				Multiplier: int32(xlpixel.UnpackSigned(packedMul)),
				Context:    ctx,
			})
			return idx, nil
		}

		propVal, err := c.next(TreeCtxProperty)
		if err != nil {
			return 0, err
		}
		splitPacked, err := c.next(TreeCtxSplitVal)
		if err != nil {
			return 0, err
		}
		idx := int32(len(tree))
		tree = append(tree, Node{}) // reserve slot, filled in below
		lc, err := build()
		if err != nil {
			return 0, err
		}
		rc, err := build()
		if err != nil {
			return 0, err
		}
		tree[idx] = Node{
			Property: int32(propVal),
			SplitVal: int32(xlpixel.UnpackSigned(splitPacked)),
			LChild:   lc,
			RChild:   rc,
		}
		return idx, nil
	}
	root, err := build()
	if err != nil {
		return nil, err
	}
	if root != 0 {
		return nil, fmt.Errorf("proptree: detokenized root landed at %d, want 0", root)
	}
	if c.pos != len(toks) {
		return nil, fmt.Errorf("proptree: %d trailing tree tokens", len(toks)-c.pos)
	}
	return tree, nil
}

// canonicalizeLeafContexts returns a copy of tree with every leaf's Context
// replaced by its pre-order rank among leaves (0, 1, 2, …). The token
// stream never carries a Context field — both TokenizeTree/DetokenizeTree
// and WriteTree/ReadTree derive it implicitly from leaf order — so a
// round-trip check must compare against this canonical form rather than
// tree's own Context values, which need not start at 0 for a tree that
// wasn't produced by internal/learn's sequential allocator.
func canonicalizeLeafContexts(tree Tree) Tree {
	out := append(Tree(nil), tree...)
	var nextCtx int32
	var walk func(idx int32)
	walk = func(idx int32) {
		n := out[idx]
		if n.IsLeaf() {
			n.Context = nextCtx
			nextCtx++
			out[idx] = n
			return
		}
		walk(n.LChild)
		walk(n.RChild)
	}
	walk(0)
	return out
}

// RoundTripCheck re-tokenizes and detokenizes tree, returning an error if
// the reconstruction does not produce an identical node sequence once
// tree's own leaf contexts are renumbered canonically (see
// canonicalizeLeafContexts). Callers run this once per learned tree before
// committing to it on the wire (SPEC_FULL.md supplemented feature: tree
// round-trip self-check).
func RoundTripCheck(tree Tree) error {
	toks := TokenizeTree(tree)
	got, err := DetokenizeTree(toks)
	if err != nil {
		return fmt.Errorf("proptree: round-trip detokenize failed: %w", err)
	}
	if len(got) != len(tree) {
		return fmt.Errorf("proptree: round-trip node count %d, want %d", len(got), len(tree))
	}
	want := canonicalizeLeafContexts(tree)
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("proptree: round-trip mismatch at node %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
	return nil
}
