package detector

import (
	"math"

	"github.com/ericlevine/qrdecode"
	"github.com/ericlevine/qrdecode/bitutil"
)

// alignmentFinder looks for the light-dark-light 1:1:1 cross section through
// the center of an alignment pattern inside a search window.
type alignmentFinder struct {
	image         *bitutil.BitMatrix
	startX        int
	startY        int
	width, height int
	moduleSize    float64
	centers       []qrdecode.Pattern
}

// find scans rows from the middle of the window outward. The first center
// confirmed twice wins; failing that, the first center seen at all.
func (f *alignmentFinder) find() (*qrdecode.Pattern, bool) {
	maxX := f.startX + f.width
	middleY := f.startY + f.height/2

	for gen := 0; gen < f.height; gen++ {
		offset := (gen + 1) / 2
		if gen&1 == 1 {
			offset = -offset
		}
		y := middleY + offset

		var counts [3]int
		x := f.startX
		// A run cut by the window edge has unknown length; skip it.
		for x < maxX && !f.image.Get(x, y) {
			x++
		}
		state := 0
		for ; x < maxX; x++ {
			if !f.image.Get(x, y) {
				if state == 1 {
					state++
				}
				counts[state]++
				continue
			}
			switch state {
			case 1:
				counts[1]++
			case 2:
				if f.foundPatternCross(counts) {
					if p, ok := f.handlePossibleCenter(counts, y, x); ok {
						return p, true
					}
				}
				counts = [3]int{counts[2], 1, 0}
				state = 1
			default:
				state++
				counts[state]++
			}
		}
		if f.foundPatternCross(counts) {
			if p, ok := f.handlePossibleCenter(counts, y, maxX); ok {
				return p, true
			}
		}
	}

	if len(f.centers) > 0 {
		p := f.centers[0]
		return &p, true
	}
	return nil, false
}

func (f *alignmentFinder) foundPatternCross(counts [3]int) bool {
	maxVariance := f.moduleSize / 2.0
	for _, c := range counts {
		if math.Abs(f.moduleSize-float64(c)) >= maxVariance {
			return false
		}
	}
	return true
}

func alignmentCenterFromEnd(counts [3]int, end int) float64 {
	return float64(end-counts[2]) - float64(counts[1])/2.0
}

func (f *alignmentFinder) handlePossibleCenter(counts [3]int, y, x int) (*qrdecode.Pattern, bool) {
	total := counts[0] + counts[1] + counts[2]
	centerX := alignmentCenterFromEnd(counts, x)
	centerY := f.crossCheckVertical(y, int(centerX), 2*counts[1], total)
	if math.IsNaN(centerY) {
		return nil, false
	}
	moduleSize := float64(total) / 3.0
	for _, c := range f.centers {
		if math.Abs(centerY-c.Y) <= moduleSize && math.Abs(centerX-c.X) <= moduleSize {
			diff := math.Abs(moduleSize - c.ModuleSize)
			if diff <= 1.0 || diff <= c.ModuleSize {
				return &qrdecode.Pattern{
					X:          (c.X + centerX) / 2.0,
					Y:          (c.Y + centerY) / 2.0,
					ModuleSize: (c.ModuleSize + moduleSize) / 2.0,
				}, true
			}
		}
	}
	f.centers = append(f.centers, qrdecode.Pattern{X: centerX, Y: centerY, ModuleSize: moduleSize})
	return nil, false
}

func (f *alignmentFinder) crossCheckVertical(startY, centerX, maxCount, originalTotal int) float64 {
	img := f.image
	maxY := img.Height()
	var counts [3]int

	y := startY
	for y >= 0 && img.Get(centerX, y) && counts[1] <= maxCount {
		counts[1]++
		y--
	}
	if y < 0 || counts[1] > maxCount {
		return math.NaN()
	}
	for y >= 0 && !img.Get(centerX, y) && counts[0] <= maxCount {
		counts[0]++
		y--
	}
	if counts[0] > maxCount {
		return math.NaN()
	}

	y = startY + 1
	for y < maxY && img.Get(centerX, y) && counts[1] <= maxCount {
		counts[1]++
		y++
	}
	if y == maxY || counts[1] > maxCount {
		return math.NaN()
	}
	for y < maxY && !img.Get(centerX, y) && counts[2] <= maxCount {
		counts[2]++
		y++
	}
	if counts[2] > maxCount {
		return math.NaN()
	}

	total := counts[0] + counts[1] + counts[2]
	if 5*abs(total-originalTotal) >= 2*originalTotal {
		return math.NaN()
	}
	if !f.foundPatternCross(counts) {
		return math.NaN()
	}
	return alignmentCenterFromEnd(counts, y)
}

// findAlignmentInRegion searches a square window of allowanceFactor module
// sizes around the estimated alignment center.
func findAlignmentInRegion(image *bitutil.BitMatrix, moduleSize float64, estX, estY int, allowanceFactor float64) (*qrdecode.Pattern, bool) {
	allowance := int(allowanceFactor * moduleSize)
	left := max(0, estX-allowance)
	right := min(image.Width()-1, estX+allowance)
	if float64(right-left) < moduleSize*3 {
		return nil, false
	}
	top := max(0, estY-allowance)
	bottom := min(image.Height()-1, estY+allowance)
	if float64(bottom-top) < moduleSize*3 {
		return nil, false
	}

	f := &alignmentFinder{
		image:      image,
		startX:     left,
		startY:     top,
		width:      right - left,
		height:     bottom - top,
		moduleSize: moduleSize,
	}
	return f.find()
}
