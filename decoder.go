package modularxl

import (
	"bytes"
	"fmt"
	"io"

	"github.com/arlojames/modularxl/internal/bitio"
	"github.com/arlojames/modularxl/internal/chancodec"
	"github.com/arlojames/modularxl/internal/entropy"
	"github.com/arlojames/modularxl/internal/neighbor"
	"github.com/arlojames/modularxl/internal/proptree"
)

func readLengthPrefixed(r *bytes.Reader) ([]byte, error) {
	vr := bitio.NewVarintReader(r)
	n, err := vr.ReadUvarint()
	if err != nil {
		return nil, err
	}
	// A crafted length prefix must not drive an unbounded allocation before
	// io.ReadFull ever gets a chance to fail on a too-short stream.
	if n > uint64(r.Len()) {
		return nil, fmt.Errorf("modularxl: length-prefixed block of %d bytes exceeds remaining stream length", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Decode reconstructs pixel data into target's already-sized channels from
// a stream produced by Encode. target.Channels[i].Pix is allocated (or
// reallocated) to Width*Height for every channel Decode actually codes;
// channels skipped by the iteration rule are left untouched.
func Decode(data []byte, target *Image, opts DecodeOptions) error {
	if err := validateImage(target); err != nil {
		return err
	}

	r := bytes.NewReader(data)
	header, err := readGroupHeader(r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptStream, err)
	}
	target.PendingTransforms = header.PendingTransforms

	if opts.Identify {
		return nil
	}

	var tree proptree.Tree
	if header.UseGlobalTree {
		if opts.GlobalTree == nil {
			return ErrMissingGlobalTree
		}
		tree = opts.GlobalTree
	} else {
		treeBytes, err := readLengthPrefixed(r)
		if err != nil {
			return fmt.Errorf("%w: reading tree stream: %v", ErrCorruptStream, err)
		}
		treeDec, err := entropy.NewDecoder(treeBytes)
		if err != nil {
			return fmt.Errorf("%w: opening tree stream: %v", ErrCorruptStream, err)
		}
		tree, err = proptree.ReadTree(treeDec)
		if err != nil {
			return fmt.Errorf("%w: decoding tree: %v", ErrCorruptStream, err)
		}
		if err := treeDec.CheckFinalState(); err != nil {
			return fmt.Errorf("%w: tree stream final-state check: %v", ErrCorruptStream, err)
		}
	}

	dataBytes, err := readLengthPrefixed(r)
	if err != nil {
		return fmt.Errorf("%w: reading data stream: %v", ErrCorruptStream, err)
	}
	dataDec, err := entropy.NewDecoder(dataBytes)
	if err != nil {
		return fmt.Errorf("%w: opening data stream: %v", ErrCorruptStream, err)
	}

	channels := SelectedChannels(target, opts.SkipChannels, opts.MaxChanSize)
	var refs []neighbor.Plane
	for _, idx := range channels {
		ch := target.Channels[idx]
		if len(ch.Pix) != ch.Width*ch.Height {
			ch.Pix = make([]int32, ch.Width*ch.Height)
			target.Channels[idx] = ch
		}
		static := [proptree.NumStatic]int32{int32(idx), int32(target.GroupID)}
		ft := proptree.Filter(tree, static)
		params := chancodec.Params{Tree: ft, StaticProps: static, Refs: refs, WPHeader: header.WPHeader}
		if err := chancodec.DecodeChannel(dataDec, ch.plane(), params); err != nil {
			return fmt.Errorf("%w: decoding channel %d: %v", ErrCorruptStream, idx, err)
		}
		refs = append(refs, ch.plane())
	}

	if err := dataDec.CheckFinalState(); err != nil {
		return fmt.Errorf("%w: data stream final-state check: %v", ErrCorruptStream, err)
	}
	return nil
}
