package detector

import (
	"errors"
	"math"

	"github.com/ericlevine/qrdecode"
	"github.com/ericlevine/qrdecode/bitutil"
	"github.com/ericlevine/qrdecode/transform"
)

var (
	errModuleSize = errors.New("detector: module size below one pixel")
	errDimension  = errors.New("detector: finder spacing gives no valid symbol size")
)

const (
	minDimension = 21
	maxDimension = 177
)

// layout is the symbol geometry estimated from one finder group.
type layout struct {
	moduleSize float64
	dimension  int
	alignment  *qrdecode.Pattern
}

func estimateLayout(image *bitutil.BitMatrix, g *finderGroup) (*layout, error) {
	moduleSize := calculateModuleSize(image, g.topLeft, g.topRight, g.bottomLeft)
	if moduleSize < 1.0 {
		return nil, errModuleSize
	}
	dimension, err := computeDimension(g.topLeft, g.topRight, g.bottomLeft, moduleSize)
	if err != nil {
		return nil, err
	}

	l := &layout{moduleSize: moduleSize, dimension: dimension}
	if dimension > minDimension {
		// Version 2 and up carry an alignment pattern three modules in from
		// the bottom-right corner of the finder parallelogram.
		tl, tr, bl := g.topLeft, g.topRight, g.bottomLeft
		bottomRightX := tr.x - tl.x + bl.x
		bottomRightY := tr.y - tl.y + bl.y
		correction := 1.0 - 3.0/float64(dimension-7)
		estX := int(tl.x + correction*(bottomRightX-tl.x))
		estY := int(tl.y + correction*(bottomRightY-tl.y))
		for factor := 4; factor <= 16; factor <<= 1 {
			if ap, ok := findAlignmentInRegion(image, moduleSize, estX, estY, float64(factor)); ok {
				l.alignment = ap
				break
			}
		}
	}
	return l, nil
}

// computeDimension rounds the finder spacing to the nearest size of the form
// 4v+17.
func computeDimension(topLeft, topRight, bottomLeft *finderPattern, moduleSize float64) (int, error) {
	tltr := round(qrdecode.Distance(topLeft.point(), topRight.point()) / moduleSize)
	tlbl := round(qrdecode.Distance(topLeft.point(), bottomLeft.point()) / moduleSize)
	dimension := (tltr+tlbl)/2 + 7
	switch dimension & 0x03 {
	case 0:
		dimension++
	case 2:
		dimension--
	case 3:
		return 0, errDimension
	}
	if dimension < minDimension || dimension > maxDimension {
		return 0, errDimension
	}
	return dimension, nil
}

func round(f float64) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}

// symbolTransform maps symbol module coordinates to image pixels. Finder
// centers sit 3.5 modules in from their corners; the alignment center, when
// used, sits 6.5 modules in from the bottom-right corner.
func symbolTransform(topLeft, topRight, bottomLeft *finderPattern, alignment *qrdecode.Pattern, dimension int) *transform.PerspectiveTransform {
	dimMinusThree := float64(dimension) - 3.5
	var bottomRightX, bottomRightY, sourceBottomRight float64
	if alignment != nil {
		bottomRightX, bottomRightY = alignment.X, alignment.Y
		sourceBottomRight = dimMinusThree - 3.0
	} else {
		bottomRightX = topRight.x - topLeft.x + bottomLeft.x
		bottomRightY = topRight.y - topLeft.y + bottomLeft.y
		sourceBottomRight = dimMinusThree
	}
	return transform.QuadrilateralToQuadrilateral(
		3.5, 3.5, dimMinusThree, 3.5, sourceBottomRight, sourceBottomRight, 3.5, dimMinusThree,
		topLeft.x, topLeft.y, topRight.x, topRight.y, bottomRightX, bottomRightY, bottomLeft.x, bottomLeft.y,
	)
}

func calculateModuleSize(image *bitutil.BitMatrix, topLeft, topRight, bottomLeft *finderPattern) float64 {
	return (moduleSizeOneWay(image, topLeft, topRight) + moduleSizeOneWay(image, topLeft, bottomLeft)) / 2.0
}

// moduleSizeOneWay measures the dark-light-dark run across each of the two
// finders along the line joining them. Each run spans seven modules.
func moduleSizeOneWay(image *bitutil.BitMatrix, pattern, other *finderPattern) float64 {
	est1 := runBothWays(image, int(pattern.x), int(pattern.y), int(other.x), int(other.y))
	est2 := runBothWays(image, int(other.x), int(other.y), int(pattern.x), int(pattern.y))
	switch {
	case math.IsNaN(est1):
		return est2 / 7.0
	case math.IsNaN(est2):
		return est1 / 7.0
	}
	return (est1 + est2) / 14.0
}

// runBothWays measures the run from (fromX, fromY) toward (toX, toY) and the
// mirrored run away from it, clipping the mirrored end to the image.
func runBothWays(image *bitutil.BitMatrix, fromX, fromY, toX, toY int) float64 {
	result := blackWhiteBlackRun(image, fromX, fromY, toX, toY)

	w, h := image.Width(), image.Height()
	scale := 1.0
	otherToX := fromX - (toX - fromX)
	if otherToX < 0 {
		scale = float64(fromX) / float64(fromX-otherToX)
		otherToX = 0
	} else if otherToX >= w {
		scale = float64(w-1-fromX) / float64(otherToX-fromX)
		otherToX = w - 1
	}
	otherToY := int(float64(fromY) - float64(toY-fromY)*scale)

	scale = 1.0
	if otherToY < 0 {
		scale = float64(fromY) / float64(fromY-otherToY)
		otherToY = 0
	} else if otherToY >= h {
		scale = float64(h-1-fromY) / float64(otherToY-fromY)
		otherToY = h - 1
	}
	otherToX = int(float64(fromX) + float64(otherToX-fromX)*scale)

	result += blackWhiteBlackRun(image, fromX, fromY, otherToX, otherToY)
	// The center pixel was counted twice.
	return result - 1.0
}

// blackWhiteBlackRun walks a Bresenham line from a dark pixel at (fromX,
// fromY) and returns the distance to the end of the second dark run, or NaN if
// the line ends first.
func blackWhiteBlackRun(image *bitutil.BitMatrix, fromX, fromY, toX, toY int) float64 {
	steep := abs(toY-fromY) > abs(toX-fromX)
	if steep {
		fromX, fromY = fromY, fromX
		toX, toY = toY, toX
	}
	dx := abs(toX - fromX)
	dy := abs(toY - fromY)
	e := -dx / 2
	xstep, ystep := 1, 1
	if fromX > toX {
		xstep = -1
	}
	if fromY > toY {
		ystep = -1
	}

	state := 0
	xLimit := toX + xstep
	for x, y := fromX, fromY; x != xLimit; x += xstep {
		realX, realY := x, y
		if steep {
			realX, realY = y, x
		}
		// state 1 looks for dark, states 0 and 2 for light.
		if (state == 1) == image.Get(realX, realY) {
			if state == 2 {
				return distance(x, y, fromX, fromY)
			}
			state++
		}
		e += dy
		if e > 0 {
			if y == toY {
				break
			}
			y += ystep
			e -= dx
		}
	}
	if state == 2 {
		return distance(toX+xstep, toY, fromX, fromY)
	}
	return math.NaN()
}

func distance(x1, y1, x2, y2 int) float64 {
	dx := float64(x1 - x2)
	dy := float64(y1 - y2)
	return math.Sqrt(dx*dx + dy*dy)
}
