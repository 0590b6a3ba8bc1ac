package modularxl

import (
	"bytes"
	"fmt"

	"github.com/arlojames/modularxl/internal/bitio"
	"github.com/arlojames/modularxl/internal/chancodec"
	"github.com/arlojames/modularxl/internal/entropy"
	"github.com/arlojames/modularxl/internal/learn"
	"github.com/arlojames/modularxl/internal/neighbor"
	"github.com/arlojames/modularxl/internal/predict"
	"github.com/arlojames/modularxl/internal/proptree"
)

func validateImage(img *Image) error {
	for _, ch := range img.Channels {
		if ch.Width < 0 || ch.Height < 0 {
			return ErrInvalidImage
		}
	}
	return nil
}

// chooseTree decides the single tree shared by every coded channel in this
// group: the caller's GlobalTree if supplied, a learned tree if
// opts.NbRepeats > 0, or a trivial single-leaf fallback otherwise
// (spec.md §4.H; §6 "nb_repeats ... 0 disables learning"). useGlobal
// reports whether the first case applied, for the GroupHeader flag.
func chooseTree(img *Image, channels []int, opts ModularOptions) (proptree.Tree, bool, error) {
	if opts.GlobalTree != nil {
		return opts.GlobalTree, true, nil
	}
	if opts.NbRepeats <= 0 {
		return proptree.NewSingleLeafTree(fallbackPredictor(opts), 0, 1, 0), false, nil
	}

	predictors := predictorsFor(opts)
	learnerOpts := learn.Options{
		Predictors:     predictors,
		ForceWPOnly:    opts.ForceWPOnly,
		ForceNoWP:      opts.ForceNoWP,
		NbRepeats:      opts.NbRepeats,
		WPHeader:       opts.WPHeader,
		MaxProperties:  opts.MaxProperties,
		NodeThreshold:  opts.NodeThreshold,
		SplitThreshold: opts.SplitThreshold,
	}

	var samples []learn.Sample
	var refs []neighbor.Plane
	for _, idx := range channels {
		ch := img.Channels[idx]
		s, err := learn.GatherTreeData(ch.plane(), refs, idx, img.GroupID, learnerOpts)
		if err != nil {
			return nil, false, fmt.Errorf("modularxl: gathering tree data for channel %d: %w", idx, err)
		}
		samples = append(samples, s...)
		refs = append(refs, ch.plane())
	}

	tree, err := learn.LearnTree(samples, learnerOpts)
	if err != nil {
		return nil, false, fmt.Errorf("modularxl: learning tree: %w", err)
	}
	return tree, false, nil
}

func writeLengthPrefixed(buf *bytes.Buffer, payload []byte) error {
	vw := bitio.NewVarintWriter(buf)
	if err := vw.WriteUvarint(uint64(len(payload))); err != nil {
		return err
	}
	_, err := buf.Write(payload)
	return err
}

// Encode runs the channel selection rule, picks or learns a tree, and
// codes every selected channel's pixels into a single self-contained
// byte stream: GroupHeader, then (if no global tree) a tree stream, then
// the data stream for all coded channels in order (spec.md §6).
func Encode(img *Image, opts ModularOptions) ([]byte, error) {
	if err := validateImage(img); err != nil {
		return nil, err
	}
	if opts.WPHeader == (predict.Header{}) {
		opts.WPHeader = predict.DefaultHeader()
	}

	channels := SelectedChannels(img, opts.SkipChannels, opts.MaxChanSize)

	header := GroupHeader{PendingTransforms: img.PendingTransforms, WPHeader: opts.WPHeader}

	var out bytes.Buffer
	if opts.Identify {
		header.UseGlobalTree = opts.GlobalTree != nil
		if err := writeGroupHeader(&out, header); err != nil {
			return nil, fmt.Errorf("modularxl: writing group header: %w", err)
		}
		return out.Bytes(), nil
	}

	tree, useGlobal, err := chooseTree(img, channels, opts)
	if err != nil {
		return nil, err
	}
	header.UseGlobalTree = useGlobal

	if err := writeGroupHeader(&out, header); err != nil {
		return nil, fmt.Errorf("modularxl: writing group header: %w", err)
	}

	if !useGlobal {
		treeEnc := entropy.NewEncoder()
		if err := proptree.WriteTree(treeEnc, tree); err != nil {
			return nil, fmt.Errorf("modularxl: writing tree stream: %w", err)
		}
		if err := writeLengthPrefixed(&out, treeEnc.Finish()); err != nil {
			return nil, fmt.Errorf("modularxl: framing tree stream: %w", err)
		}
	}

	dataEnc := entropy.NewEncoder()
	var refs []neighbor.Plane
	for _, idx := range channels {
		ch := img.Channels[idx]
		static := [proptree.NumStatic]int32{int32(idx), int32(img.GroupID)}
		ft := proptree.Filter(tree, static)
		params := chancodec.Params{Tree: ft, StaticProps: static, Refs: refs, WPHeader: opts.WPHeader}
		if err := chancodec.EncodeChannel(dataEnc, ch.plane(), params); err != nil {
			return nil, fmt.Errorf("modularxl: encoding channel %d: %w", idx, err)
		}
		refs = append(refs, ch.plane())
	}
	if err := writeLengthPrefixed(&out, dataEnc.Finish()); err != nil {
		return nil, fmt.Errorf("modularxl: framing data stream: %w", err)
	}

	return out.Bytes(), nil
}
