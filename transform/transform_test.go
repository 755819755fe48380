package transform

import (
	"errors"
	"math"
	"testing"

	"github.com/ericlevine/qrdecode/bitutil"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestQuadrilateralToQuadrilateralMapsCorners(t *testing.T) {
	src := [8]float64{0, 0, 10, 0, 10, 10, 0, 10}
	dst := [8]float64{5, 7, 42, 3, 50, 48, 2, 40}
	pt := QuadrilateralToQuadrilateral(
		src[0], src[1], src[2], src[3], src[4], src[5], src[6], src[7],
		dst[0], dst[1], dst[2], dst[3], dst[4], dst[5], dst[6], dst[7])
	for i := 0; i < 8; i += 2 {
		x, y := pt.Transform(src[i], src[i+1])
		if !near(x, dst[i]) || !near(y, dst[i+1]) {
			t.Errorf("corner %d -> (%f,%f), want (%f,%f)", i/2, x, y, dst[i], dst[i+1])
		}
	}
}

func TestAffineScale(t *testing.T) {
	pt := QuadrilateralToQuadrilateral(
		0, 0, 1, 0, 1, 1, 0, 1,
		0, 0, 4, 0, 4, 4, 0, 4)
	points := []float64{0.5, 0.25, 1, 1}
	pt.TransformPoints(points)
	want := []float64{2, 1, 4, 4}
	for i := range want {
		if !near(points[i], want[i]) {
			t.Fatalf("points = %v, want %v", points, want)
		}
	}
}

func TestSampleGridScaled(t *testing.T) {
	// 3x3 pattern drawn at 4 pixels per module.
	pattern := [3][3]bool{{true, false, true}, {false, true, false}, {true, true, false}}
	image := bitutil.NewBitMatrix(12)
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			if pattern[y][x] {
				image.SetRegion(x*4, y*4, 4, 4)
			}
		}
	}
	pt := QuadrilateralToQuadrilateral(
		0, 0, 3, 0, 3, 3, 0, 3,
		0, 0, 12, 0, 12, 12, 0, 12)
	bits, err := SampleGrid(image, 3, pt)
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			if bits.Get(x, y) != pattern[y][x] {
				t.Errorf("module (%d,%d) = %v, want %v", x, y, bits.Get(x, y), pattern[y][x])
			}
		}
	}
}

func TestSampleGridOutOfBounds(t *testing.T) {
	image := bitutil.NewBitMatrix(10)
	pt := QuadrilateralToQuadrilateral(
		0, 0, 3, 0, 3, 3, 0, 3,
		0, 0, 30, 0, 30, 30, 0, 30)
	if _, err := SampleGrid(image, 3, pt); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("err = %v, want ErrOutOfBounds", err)
	}
	if _, err := SampleGrid(image, 0, pt); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("err = %v, want ErrOutOfBounds", err)
	}
}

func TestNudgePoints(t *testing.T) {
	image := bitutil.NewBitMatrix(10)
	points := []float64{-0.9, 3, 10.2, 5}
	if err := nudgePoints(image, points); err != nil {
		t.Fatal(err)
	}
	// int(-0.9) is 0 so the first point is untouched; x == width is pulled in.
	if points[0] != -0.9 || points[2] != 9 {
		t.Errorf("points = %v", points)
	}
	points = []float64{-1.5, 3, 4, 4}
	if err := nudgePoints(image, points); err != nil || points[0] != 0 {
		t.Errorf("points = %v err = %v", points, err)
	}
	points = []float64{-3, 3}
	if err := nudgePoints(image, points); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("err = %v, want ErrOutOfBounds", err)
	}
}
