package learn

import (
	"testing"

	"github.com/arlojames/modularxl/internal/neighbor"
	"github.com/arlojames/modularxl/internal/predict"
)

func flatPlane(w, h int, fill int32) neighbor.Plane {
	pix := make([]int32, w*h)
	for i := range pix {
		pix[i] = fill
	}
	return neighbor.Plane{Pix: pix, Width: w, Height: h}
}

func TestGatherTreeDataRespectsSampleFloor(t *testing.T) {
	plane := flatPlane(64, 64, 5) // 4096 pixels, nb_repeats=0 should still floor to ~1024
	opts := Options{Predictors: []predict.ID{predict.Zero, predict.Left}, WPHeader: predict.DefaultHeader()}
	samples, err := GatherTreeData(plane, nil, 0, 0, opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) < minSamplesFloor/2 {
		t.Fatalf("got %d samples, want at least roughly the %d floor", len(samples), minSamplesFloor)
	}
}

func TestGatherTreeDataIsDeterministic(t *testing.T) {
	plane := flatPlane(16, 16, 7)
	opts := Options{Predictors: []predict.ID{predict.Zero, predict.Gradient}, WPHeader: predict.DefaultHeader(), NbRepeats: 0.5}

	a, err := GatherTreeData(plane, nil, 0, 0, opts)
	if err != nil {
		t.Fatal(err)
	}
	b, err := GatherTreeData(plane, nil, 0, 0, opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != len(b) {
		t.Fatalf("sample counts differ across runs: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Residual != b[i].Residual {
			t.Fatalf("sample %d residuals diverged", i)
		}
	}
}

func TestGatherTreeDataZeroResidualOnFlatImage(t *testing.T) {
	plane := flatPlane(8, 8, 9)
	opts := Options{Predictors: []predict.ID{predict.Zero}, WPHeader: predict.DefaultHeader(), NbRepeats: 1.0}
	samples, err := GatherTreeData(plane, nil, 0, 0, opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 64 {
		t.Fatalf("got %d samples, want 64 (full sampling)", len(samples))
	}
	for _, s := range samples {
		if s.Residual[predict.Zero] != 9 {
			t.Fatalf("Zero-predictor residual on a flat image of 9s should be 9, got %d", s.Residual[predict.Zero])
		}
	}
}

func TestGatherTreeDataForceNoWPConflict(t *testing.T) {
	plane := flatPlane(4, 4, 0)
	opts := Options{Predictors: []predict.ID{predict.Weighted}, ForceNoWP: true, WPHeader: predict.DefaultHeader()}
	_, err := GatherTreeData(plane, nil, 0, 0, opts)
	if err != ErrForceNoWPConflict {
		t.Fatalf("got %v, want ErrForceNoWPConflict", err)
	}
}
