package transform

import (
	"errors"

	"github.com/ericlevine/qrdecode/bitutil"
)

// ErrOutOfBounds is returned when the mapped grid leaves the image.
var ErrOutOfBounds = errors.New("transform: sampled grid falls outside the image")

// SampleGrid reads a dimension x dimension module grid from image, taking the
// pixel under the center of every module as mapped by t.
func SampleGrid(image *bitutil.BitMatrix, dimension int, t *PerspectiveTransform) (*bitutil.BitMatrix, error) {
	if dimension <= 0 {
		return nil, ErrOutOfBounds
	}
	bits := bitutil.NewBitMatrix(dimension)
	points := make([]float64, 2*dimension)
	for y := 0; y < dimension; y++ {
		for x := 0; x < dimension; x++ {
			points[2*x] = float64(x) + 0.5
			points[2*x+1] = float64(y) + 0.5
		}
		t.TransformPoints(points)
		if err := nudgePoints(image, points); err != nil {
			return nil, err
		}
		for x := 0; x < dimension; x++ {
			ix, iy := int(points[2*x]), int(points[2*x+1])
			if ix < 0 || ix >= image.Width() || iy < 0 || iy >= image.Height() {
				return nil, ErrOutOfBounds
			}
			if image.Get(ix, iy) {
				bits.Set(x, y)
			}
		}
	}
	return bits, nil
}

// nudgePoints pulls points lying exactly one pixel outside the image back onto
// its border. Only the runs at either end of the row are checked: a grid whose
// ends are inside is assumed to be inside in the middle too.
func nudgePoints(image *bitutil.BitMatrix, points []float64) error {
	width, height := image.Width(), image.Height()
	nudge := func(offset int) (bool, error) {
		x, y := int(points[offset]), int(points[offset+1])
		if x < -1 || x > width || y < -1 || y > height {
			return false, ErrOutOfBounds
		}
		nudged := false
		switch x {
		case -1:
			points[offset], nudged = 0, true
		case width:
			points[offset], nudged = float64(width-1), true
		}
		switch y {
		case -1:
			points[offset+1], nudged = 0, true
		case height:
			points[offset+1], nudged = float64(height-1), true
		}
		return nudged, nil
	}

	for offset, more := 0, true; offset+1 < len(points) && more; offset += 2 {
		var err error
		if more, err = nudge(offset); err != nil {
			return err
		}
	}
	for offset, more := len(points)-2, true; offset >= 0 && more; offset -= 2 {
		var err error
		if more, err = nudge(offset); err != nil {
			return err
		}
	}
	return nil
}
