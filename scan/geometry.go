package scan

import (
	"github.com/ericlevine/qrdecode"
	"github.com/ericlevine/qrdecode/qrcode/detector"
)

// timingOffset is the module coordinate of the first timing sample, the
// center of the module diagonally inside each finder pattern.
const timingOffset = 6.5

// Extract builds the result for a decoded candidate. Finder and alignment
// centers are taken from the candidate as found; corners and timing points
// come from its module-to-pixel mapping.
func Extract(c *detector.Candidate, content string) qrdecode.DecodeResult {
	size := float64(c.Size)
	res := qrdecode.DecodeResult{
		Content: content,
		Finder:  [3]qrdecode.Pattern{c.Finder.TopLeft, c.Finder.TopRight, c.Finder.BottomLeft},
		Timing: [3]qrdecode.Point{
			c.Mapping(timingOffset, timingOffset),
			c.Mapping(size-timingOffset, timingOffset),
			c.Mapping(timingOffset, size-timingOffset),
		},
		Corners: [4]qrdecode.Point{
			c.Mapping(0, 0),
			c.Mapping(size, 0),
			c.Mapping(size, size),
			c.Mapping(0, size),
		},
	}
	if c.Alignment != nil {
		a := *c.Alignment
		res.Alignment = &a
	}
	return res
}
