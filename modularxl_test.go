package modularxl

import (
	"math/rand"
	"testing"

	"github.com/arlojames/modularxl/internal/predict"
	"github.com/arlojames/modularxl/internal/proptree"
)

func randomChannel(width, height int, seed int64, lo, hi int32) Channel {
	r := rand.New(rand.NewSource(seed))
	pix := make([]int32, width*height)
	for i := range pix {
		pix[i] = lo + int32(r.Intn(int(hi-lo+1)))
	}
	return Channel{Width: width, Height: height, Pix: pix}
}

func blankChannel(width, height int) Channel {
	return Channel{Width: width, Height: height, Pix: make([]int32, width*height)}
}

func cloneForDecode(img *Image) *Image {
	out := &Image{NumMetaChannels: img.NumMetaChannels, GroupID: img.GroupID}
	for _, ch := range img.Channels {
		out.Channels = append(out.Channels, blankChannel(ch.Width, ch.Height))
	}
	return out
}

func assertChannelsEqual(t *testing.T, got, want *Image) {
	t.Helper()
	if len(got.Channels) != len(want.Channels) {
		t.Fatalf("channel count %d, want %d", len(got.Channels), len(want.Channels))
	}
	for c := range want.Channels {
		g, w := got.Channels[c], want.Channels[c]
		if g.Width != w.Width || g.Height != w.Height {
			continue // channel not coded (skipped by iteration rule)
		}
		for i := range w.Pix {
			if g.Pix[i] != w.Pix[i] {
				t.Fatalf("channel %d pixel %d: got %d, want %d", c, i, g.Pix[i], w.Pix[i])
			}
		}
	}
}

func TestEncodeDecodeFixedPredictorRoundTrip(t *testing.T) {
	img := &Image{Channels: []Channel{randomChannel(10, 8, 1, -60, 60)}}
	opts := ModularOptions{Predictor: PredictorFixed, Fixed: predict.Left, WPHeader: predict.DefaultHeader()}

	data, err := Encode(img, opts)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got := cloneForDecode(img)
	if err := Decode(data, got, DecodeOptions{}); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	assertChannelsEqual(t, got, img)
}

func TestEncodeDecodeLearnedTreeRoundTrip(t *testing.T) {
	img := &Image{
		Channels: []Channel{
			randomChannel(16, 12, 2, -100, 100),
			randomChannel(16, 12, 3, -100, 100),
		},
	}
	opts := ModularOptions{
		Predictor:     PredictorVariable,
		WPHeader:      predict.DefaultHeader(),
		NbRepeats:     1.0,
		NodeThreshold: 8,
	}

	data, err := Encode(img, opts)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got := cloneForDecode(img)
	if err := Decode(data, got, DecodeOptions{}); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	assertChannelsEqual(t, got, img)
}

func TestEncodeDecodeGlobalTree(t *testing.T) {
	img := &Image{Channels: []Channel{randomChannel(9, 9, 4, -30, 30)}}
	tree := proptree.NewSingleLeafTree(predict.Top, 0, 1, 0)
	opts := ModularOptions{GlobalTree: tree, WPHeader: predict.DefaultHeader()}

	data, err := Encode(img, opts)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got := cloneForDecode(img)
	if err := Decode(data, got, DecodeOptions{GlobalTree: tree}); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	assertChannelsEqual(t, got, img)
}

func TestDecodeMissingGlobalTree(t *testing.T) {
	img := &Image{Channels: []Channel{randomChannel(6, 6, 5, -10, 10)}}
	tree := proptree.NewSingleLeafTree(predict.Top, 0, 1, 0)
	data, err := Encode(img, ModularOptions{GlobalTree: tree})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got := cloneForDecode(img)
	if err := Decode(data, got, DecodeOptions{}); err != ErrMissingGlobalTree {
		t.Fatalf("got %v, want ErrMissingGlobalTree", err)
	}
}

func TestIdentifyEarlyExit(t *testing.T) {
	img := &Image{Channels: []Channel{randomChannel(6, 6, 6, -10, 10)}, PendingTransforms: []uint64{1, 2, 3}}
	data, err := Encode(img, ModularOptions{Identify: true})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got := cloneForDecode(img)
	if err := Decode(data, got, DecodeOptions{Identify: true}); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.PendingTransforms) != 3 {
		t.Fatalf("expected pending transforms to survive the identify path, got %v", got.PendingTransforms)
	}
	for _, ch := range got.Channels {
		for _, v := range ch.Pix {
			if v != 0 {
				t.Fatalf("identify should not have coded any pixels")
			}
		}
	}
}

func TestDecodeCorruptStream(t *testing.T) {
	img := &Image{Channels: []Channel{randomChannel(8, 8, 7, -40, 40)}}
	opts := ModularOptions{Predictor: PredictorFixed, Fixed: predict.Gradient, WPHeader: predict.DefaultHeader()}
	data, err := Encode(img, opts)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	corrupt := append([]byte(nil), data...)
	for i := 0; i < len(corrupt); i += 7 {
		corrupt[i] ^= 0xFF
	}

	got := cloneForDecode(img)
	err = Decode(corrupt, got, DecodeOptions{})
	if err == nil {
		t.Fatalf("expected a corrupt stream to be detected")
	}
}

func TestSelectedChannelsSkipsEmptyAndStopsAtOversized(t *testing.T) {
	img := &Image{
		NumMetaChannels: 1,
		Channels: []Channel{
			{Width: 4, Height: 4},  // meta channel, always coded
			{Width: 0, Height: 5},  // empty, skipped
			{Width: 5, Height: 5},  // within bound
			{Width: 100, Height: 5}, // oversized, stops iteration
			{Width: 3, Height: 3},  // never reached
		},
	}
	got := SelectedChannels(img, 0, 10)
	want := []int{0, 2}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
