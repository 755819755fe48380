package detector

import (
	"math"
	"sort"

	"github.com/ericlevine/qrdecode"
	"github.com/ericlevine/qrdecode/bitutil"
)

const (
	minSkip      = 3
	maxModules   = 97
	centerQuorum = 2

	maxModuleCountPerEdge    = 180.0
	minModuleCountPerEdge    = 9.0
	diffModSizeCutoffPercent = 0.05
	diffModSizeCutoff        = 0.5
)

// finderPattern is a confirmed finder center. count is the number of scan
// rows that agreed on it.
type finderPattern struct {
	x, y       float64
	moduleSize float64
	count      int
}

func (fp *finderPattern) point() qrdecode.Point {
	return qrdecode.Point{X: fp.x, Y: fp.y}
}

func (fp *finderPattern) pattern() qrdecode.Pattern {
	return qrdecode.Pattern{X: fp.x, Y: fp.y, ModuleSize: fp.moduleSize}
}

func (fp *finderPattern) aboutEquals(moduleSize, y, x float64) bool {
	if math.Abs(y-fp.y) <= moduleSize && math.Abs(x-fp.x) <= moduleSize {
		diff := math.Abs(moduleSize - fp.moduleSize)
		return diff <= 1.0 || diff <= fp.moduleSize
	}
	return false
}

func (fp *finderPattern) combineEstimate(y, x, moduleSize float64) *finderPattern {
	n := float64(fp.count)
	c := n + 1
	return &finderPattern{
		x:          (n*fp.x + x) / c,
		y:          (n*fp.y + y) / c,
		moduleSize: (n*fp.moduleSize + moduleSize) / c,
		count:      fp.count + 1,
	}
}

// finderGroup is three finder patterns that could be the corners of one
// symbol, ordered top-left, top-right, bottom-left.
type finderGroup struct {
	topLeft, topRight, bottomLeft *finderPattern
	// skew is how far the group is from a right isosceles triangle.
	skew float64
}

func (g *finderGroup) patterns() [3]*finderPattern {
	return [3]*finderPattern{g.topLeft, g.topRight, g.bottomLeft}
}

type finder struct {
	image   *bitutil.BitMatrix
	centers []*finderPattern
}

// scan walks every skip-th row looking for the 1:1:3:1:1 dark/light run
// pattern of a finder and records every center that survives the vertical,
// horizontal and diagonal cross checks. Unlike a single-symbol search it never
// stops early, so all symbols in the image contribute centers.
func (f *finder) scan(tryHarder bool) {
	maxY := f.image.Height()
	maxX := f.image.Width()

	skip := (3 * maxY) / (4 * maxModules)
	if skip < minSkip || tryHarder {
		skip = minSkip
	}

	var counts [5]int
	for y := skip - 1; y < maxY; y += skip {
		counts = [5]int{}
		state := 0
		for x := 0; x < maxX; x++ {
			if f.image.Get(x, y) {
				if state&1 == 1 {
					state++
				}
				counts[state]++
				continue
			}
			if state&1 == 1 {
				counts[state]++
				continue
			}
			if state != 4 {
				state++
				counts[state]++
				continue
			}
			if foundPatternCross(counts) && f.handlePossibleCenter(counts, y, x) {
				state = 0
				counts = [5]int{}
			} else {
				shiftCounts2(&counts)
				state = 3
			}
		}
		if foundPatternCross(counts) {
			f.handlePossibleCenter(counts, y, maxX)
		}
	}
}

func shiftCounts2(counts *[5]int) {
	counts[0] = counts[2]
	counts[1] = counts[3]
	counts[2] = counts[4]
	counts[3] = 1
	counts[4] = 0
}

func foundPatternCross(counts [5]int) bool {
	return checkRatios(counts, 2.0)
}

func foundPatternDiagonal(counts [5]int) bool {
	return checkRatios(counts, 1.333)
}

// checkRatios reports whether counts look like 1:1:3:1:1 within
// moduleSize/divisor per module.
func checkRatios(counts [5]int, divisor float64) bool {
	total := 0
	for _, c := range counts {
		if c == 0 {
			return false
		}
		total += c
	}
	if total < 7 {
		return false
	}
	moduleSize := float64(total) / 7.0
	maxVariance := moduleSize / divisor
	return math.Abs(moduleSize-float64(counts[0])) < maxVariance &&
		math.Abs(moduleSize-float64(counts[1])) < maxVariance &&
		math.Abs(3.0*moduleSize-float64(counts[2])) < 3*maxVariance &&
		math.Abs(moduleSize-float64(counts[3])) < maxVariance &&
		math.Abs(moduleSize-float64(counts[4])) < maxVariance
}

func centerFromEnd(counts [5]int, end int) float64 {
	return float64(end-counts[4]-counts[3]) - float64(counts[2])/2.0
}

func sum(counts [5]int) int {
	return counts[0] + counts[1] + counts[2] + counts[3] + counts[4]
}

// handlePossibleCenter confirms a horizontal hit ending at x on row y and
// either merges it into a known center or records a new one.
func (f *finder) handlePossibleCenter(counts [5]int, y, x int) bool {
	total := sum(counts)
	centerX := centerFromEnd(counts, x)
	centerY := f.crossCheckVertical(y, int(centerX), counts[2], total)
	if math.IsNaN(centerY) {
		return false
	}
	centerX = f.crossCheckHorizontal(int(centerX), int(centerY), counts[2], total)
	if math.IsNaN(centerX) || !f.crossCheckDiagonal(int(centerY), int(centerX)) {
		return false
	}

	moduleSize := float64(total) / 7.0
	for i, c := range f.centers {
		if c.aboutEquals(moduleSize, centerY, centerX) {
			f.centers[i] = c.combineEstimate(centerY, centerX, moduleSize)
			return true
		}
	}
	f.centers = append(f.centers, &finderPattern{x: centerX, y: centerY, moduleSize: moduleSize, count: 1})
	return true
}

func (f *finder) crossCheckDiagonal(centerY, centerX int) bool {
	var counts [5]int
	img := f.image

	i := 0
	for centerY >= i && centerX >= i && img.Get(centerX-i, centerY-i) {
		counts[2]++
		i++
	}
	if counts[2] == 0 {
		return false
	}
	for centerY >= i && centerX >= i && !img.Get(centerX-i, centerY-i) {
		counts[1]++
		i++
	}
	if counts[1] == 0 {
		return false
	}
	for centerY >= i && centerX >= i && img.Get(centerX-i, centerY-i) {
		counts[0]++
		i++
	}
	if counts[0] == 0 {
		return false
	}

	maxY, maxX := img.Height(), img.Width()
	i = 1
	for centerY+i < maxY && centerX+i < maxX && img.Get(centerX+i, centerY+i) {
		counts[2]++
		i++
	}
	for centerY+i < maxY && centerX+i < maxX && !img.Get(centerX+i, centerY+i) {
		counts[3]++
		i++
	}
	if counts[3] == 0 {
		return false
	}
	for centerY+i < maxY && centerX+i < maxX && img.Get(centerX+i, centerY+i) {
		counts[4]++
		i++
	}
	if counts[4] == 0 {
		return false
	}
	return foundPatternDiagonal(counts)
}

func (f *finder) crossCheckVertical(startY, centerX, maxCount, originalTotal int) float64 {
	img := f.image
	maxY := img.Height()
	var counts [5]int

	y := startY
	for y >= 0 && img.Get(centerX, y) {
		counts[2]++
		y--
	}
	if y < 0 {
		return math.NaN()
	}
	for y >= 0 && !img.Get(centerX, y) && counts[1] <= maxCount {
		counts[1]++
		y--
	}
	if y < 0 || counts[1] > maxCount {
		return math.NaN()
	}
	for y >= 0 && img.Get(centerX, y) && counts[0] <= maxCount {
		counts[0]++
		y--
	}
	if counts[0] > maxCount {
		return math.NaN()
	}

	y = startY + 1
	for y < maxY && img.Get(centerX, y) {
		counts[2]++
		y++
	}
	if y == maxY {
		return math.NaN()
	}
	for y < maxY && !img.Get(centerX, y) && counts[3] < maxCount {
		counts[3]++
		y++
	}
	if y == maxY || counts[3] >= maxCount {
		return math.NaN()
	}
	for y < maxY && img.Get(centerX, y) && counts[4] < maxCount {
		counts[4]++
		y++
	}
	if counts[4] >= maxCount {
		return math.NaN()
	}

	// The vertical run must be about as long as the horizontal one.
	if 5*abs(sum(counts)-originalTotal) >= 2*originalTotal {
		return math.NaN()
	}
	if !foundPatternCross(counts) {
		return math.NaN()
	}
	return centerFromEnd(counts, y)
}

func (f *finder) crossCheckHorizontal(startX, centerY, maxCount, originalTotal int) float64 {
	img := f.image
	maxX := img.Width()
	var counts [5]int

	x := startX
	for x >= 0 && img.Get(x, centerY) {
		counts[2]++
		x--
	}
	if x < 0 {
		return math.NaN()
	}
	for x >= 0 && !img.Get(x, centerY) && counts[1] <= maxCount {
		counts[1]++
		x--
	}
	if x < 0 || counts[1] > maxCount {
		return math.NaN()
	}
	for x >= 0 && img.Get(x, centerY) && counts[0] <= maxCount {
		counts[0]++
		x--
	}
	if counts[0] > maxCount {
		return math.NaN()
	}

	x = startX + 1
	for x < maxX && img.Get(x, centerY) {
		counts[2]++
		x++
	}
	if x == maxX {
		return math.NaN()
	}
	for x < maxX && !img.Get(x, centerY) && counts[3] < maxCount {
		counts[3]++
		x++
	}
	if x == maxX || counts[3] >= maxCount {
		return math.NaN()
	}
	for x < maxX && img.Get(x, centerY) && counts[4] < maxCount {
		counts[4]++
		x++
	}
	if counts[4] >= maxCount {
		return math.NaN()
	}

	if 5*abs(sum(counts)-originalTotal) >= originalTotal {
		return math.NaN()
	}
	if !foundPatternCross(counts) {
		return math.NaN()
	}
	return centerFromEnd(counts, x)
}

// groups returns every triple of confirmed centers that could form one
// symbol: similar module sizes, a plausible module count per edge, and two
// nearly equal legs meeting at a right angle. Groups are ordered from the most
// to the least square.
func (f *finder) groups() []*finderGroup {
	var confirmed []*finderPattern
	for _, c := range f.centers {
		if c.count >= centerQuorum {
			confirmed = append(confirmed, c)
		}
	}
	size := len(confirmed)
	if size < 3 {
		return nil
	}

	sort.SliceStable(confirmed, func(i, j int) bool {
		return confirmed[i].moduleSize > confirmed[j].moduleSize
	})

	var groups []*finderGroup
	for i1 := 0; i1 < size-2; i1++ {
		p1 := confirmed[i1]
		for i2 := i1 + 1; i2 < size-1; i2++ {
			p2 := confirmed[i2]
			if !similarModuleSize(p1, p2) {
				break
			}
			for i3 := i2 + 1; i3 < size; i3++ {
				p3 := confirmed[i3]
				if !similarModuleSize(p2, p3) {
					break
				}
				if g := newFinderGroup(p1, p2, p3); g != nil {
					groups = append(groups, g)
				}
			}
		}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].skew < groups[j].skew
	})
	return groups
}

// similarModuleSize reports whether two centers are close enough in module
// size to belong to the same symbol. Centers are sorted by descending module
// size, so a false result ends the inner loop.
func similarModuleSize(a, b *finderPattern) bool {
	diff := math.Abs(a.moduleSize - b.moduleSize)
	ratio := diff / math.Min(a.moduleSize, b.moduleSize)
	return diff <= diffModSizeCutoff || ratio < diffModSizeCutoffPercent
}

func newFinderGroup(p1, p2, p3 *finderPattern) *finderGroup {
	byPattern := map[qrdecode.Pattern]*finderPattern{
		p1.pattern(): p1,
		p2.pattern(): p2,
		p3.pattern(): p3,
	}
	ordered := qrdecode.OrderBestPatterns([3]qrdecode.Pattern{p1.pattern(), p2.pattern(), p3.pattern()})
	bottomLeft, topLeft, topRight := byPattern[ordered[0]], byPattern[ordered[1]], byPattern[ordered[2]]
	if len(byPattern) < 3 {
		// Two centers with identical coordinates and size.
		return nil
	}

	dA := qrdecode.Distance(topLeft.point(), bottomLeft.point())
	dC := qrdecode.Distance(topRight.point(), bottomLeft.point())
	dB := qrdecode.Distance(topLeft.point(), topRight.point())

	moduleCount := (dA + dB) / (p1.moduleSize * 2.0)
	if moduleCount > maxModuleCountPerEdge || moduleCount < minModuleCountPerEdge {
		return nil
	}

	// Legs of equal length.
	vABBC := math.Abs((dA - dB) / math.Min(dA, dB))
	if vABBC >= 0.1 {
		return nil
	}

	// Right angle at the top-left.
	dCpy := math.Sqrt(dA*dA + dB*dB)
	vPyC := math.Abs((dC - dCpy) / math.Min(dC, dCpy))
	if vPyC >= 0.1 {
		return nil
	}

	return &finderGroup{
		topLeft:    topLeft,
		topRight:   topRight,
		bottomLeft: bottomLeft,
		skew:       vABBC + vPyC,
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
