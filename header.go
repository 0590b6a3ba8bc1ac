package modularxl

import (
	"bytes"
	"fmt"

	"github.com/arlojames/modularxl/internal/bitio"
	"github.com/arlojames/modularxl/internal/predict"
)

// GroupHeader is the self-delimiting bundle that opens every Modular group
// (spec.md §6 bullet 1): the list of pending transforms, the WP
// configuration sub-bundle, and the use_global_tree flag.
type GroupHeader struct {
	PendingTransforms []uint64
	WPHeader          predict.Header
	UseGlobalTree     bool
}

func writeGroupHeader(buf *bytes.Buffer, h GroupHeader) error {
	vw := bitio.NewVarintWriter(buf)

	if err := vw.WriteUvarint(uint64(len(h.PendingTransforms))); err != nil {
		return err
	}
	for _, id := range h.PendingTransforms {
		if err := vw.WriteUvarint(id); err != nil {
			return err
		}
	}

	for _, weight := range h.WPHeader.InitialWeights {
		if err := vw.WriteSvarint(int64(weight)); err != nil {
			return err
		}
	}
	if err := buf.WriteByte(h.WPHeader.WeightShift); err != nil {
		return err
	}
	if err := buf.WriteByte(h.WPHeader.ErrorShift); err != nil {
		return err
	}

	flag := byte(0)
	if h.UseGlobalTree {
		flag = 1
	}
	return buf.WriteByte(flag)
}

func readGroupHeader(r *bytes.Reader) (GroupHeader, error) {
	vr := bitio.NewVarintReader(r)

	var h GroupHeader
	n, err := vr.ReadUvarint()
	if err != nil {
		return GroupHeader{}, fmt.Errorf("modularxl: reading transform count: %w", err)
	}
	// A crafted transform count must not drive an unbounded allocation
	// before the rest of the header (or the transform ids themselves) is
	// even validated: clamp against how many bytes could possibly remain,
	// since every transform id costs at least one varint byte.
	if n > uint64(r.Len()) {
		return GroupHeader{}, fmt.Errorf("modularxl: transform count %d exceeds remaining stream length", n)
	}
	h.PendingTransforms = make([]uint64, n)
	for i := range h.PendingTransforms {
		id, err := vr.ReadUvarint()
		if err != nil {
			return GroupHeader{}, fmt.Errorf("modularxl: reading transform %d: %w", i, err)
		}
		h.PendingTransforms[i] = id
	}

	for i := range h.WPHeader.InitialWeights {
		w, err := vr.ReadSvarint()
		if err != nil {
			return GroupHeader{}, fmt.Errorf("modularxl: reading wp_header weight %d: %w", i, err)
		}
		h.WPHeader.InitialWeights[i] = int32(w)
	}
	weightShift, err := r.ReadByte()
	if err != nil {
		return GroupHeader{}, fmt.Errorf("modularxl: reading wp_header weight_shift: %w", err)
	}
	h.WPHeader.WeightShift = weightShift
	errorShift, err := r.ReadByte()
	if err != nil {
		return GroupHeader{}, fmt.Errorf("modularxl: reading wp_header error_shift: %w", err)
	}
	h.WPHeader.ErrorShift = errorShift

	flag, err := r.ReadByte()
	if err != nil {
		return GroupHeader{}, fmt.Errorf("modularxl: reading use_global_tree flag: %w", err)
	}
	h.UseGlobalTree = flag != 0

	return h, nil
}
