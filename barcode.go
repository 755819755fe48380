// Package qrdecode locates and decodes QR codes in raster images and reports,
// for every symbol found, its text together with the landmarks needed to draw
// or verify the detection.
package qrdecode

import "math"

// Point is a location in image pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pattern is a finder or alignment pattern center with its estimated module
// size in pixels.
type Pattern struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	ModuleSize float64 `json:"moduleSize"`
}

// Point returns the pattern center.
func (p Pattern) Point() Point {
	return Point{X: p.X, Y: p.Y}
}

// DecodeResult is one decoded symbol with its geometry.
type DecodeResult struct {
	Content string `json:"content"`

	// Finder holds the top-left, top-right and bottom-left finder centers.
	Finder [3]Pattern `json:"finder"`

	// Alignment is nil when the symbol was sampled without an alignment pattern.
	Alignment *Pattern `json:"alignment"`

	// Timing holds the top-left, top-right and bottom-left timing sample points.
	Timing [3]Point `json:"timing"`

	// Corners holds the top-left, top-right, bottom-right and bottom-left
	// outer corners of the symbol.
	Corners [4]Point `json:"corners"`
}

// Distance returns the distance between two points.
func Distance(a, b Point) float64 {
	return math.Sqrt((a.X-b.X)*(a.X-b.X) + (a.Y-b.Y)*(a.Y-b.Y))
}

// CrossProductZ computes the z component of the cross product of the vectors
// b->c and b->a. It is positive when a, b, c turn clockwise in image
// coordinates (y pointing down).
func CrossProductZ(a, b, c Point) float64 {
	return (c.X-b.X)*(a.Y-b.Y) - (c.Y-b.Y)*(a.X-b.X)
}

// OrderBestPatterns orders three finder patterns as bottom-left, top-left,
// top-right: the top-left pattern is the one opposite the longest side and the
// remaining two are swapped if needed so the triple turns clockwise.
func OrderBestPatterns(patterns [3]Pattern) [3]Pattern {
	p0, p1, p2 := patterns[0].Point(), patterns[1].Point(), patterns[2].Point()
	d01 := Distance(p0, p1)
	d12 := Distance(p1, p2)
	d02 := Distance(p0, p2)

	var a, b, c Pattern
	switch {
	case d12 >= d01 && d12 >= d02:
		b, a, c = patterns[0], patterns[1], patterns[2]
	case d02 >= d01 && d02 >= d12:
		b, a, c = patterns[1], patterns[0], patterns[2]
	default:
		b, a, c = patterns[2], patterns[0], patterns[1]
	}

	// b is the top-left corner.
	if CrossProductZ(a.Point(), b.Point(), c.Point()) < 0 {
		a, c = c, a
	}
	return [3]Pattern{a, b, c}
}
