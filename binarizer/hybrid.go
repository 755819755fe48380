package binarizer

import (
	"github.com/ericlevine/qrdecode"
	"github.com/ericlevine/qrdecode/bitutil"
)

const (
	blockSizePower   = 3
	blockSize        = 1 << blockSizePower
	blockSizeMask    = blockSize - 1
	minimumDimension = blockSize * 5
	minDynamicRange  = 24
)

// Hybrid thresholds every 8x8 block against the average black point of the
// surrounding 5x5 blocks. It copes with shadows and gradients far better than
// a single global threshold.
type Hybrid struct {
	source qrdecode.LuminanceSource
	matrix *bitutil.BitMatrix
}

// NewHybrid creates a Hybrid binarizer over source.
func NewHybrid(source qrdecode.LuminanceSource) *Hybrid {
	return &Hybrid{source: source}
}

func (h *Hybrid) LuminanceSource() qrdecode.LuminanceSource {
	return h.source
}

// BlackMatrix computes the matrix on first use and returns the same matrix on
// later calls. Callers that need to mutate it must Clone it first.
func (h *Hybrid) BlackMatrix() (*bitutil.BitMatrix, error) {
	if h.matrix != nil {
		return h.matrix, nil
	}
	width, height := h.source.Width(), h.source.Height()
	if width < minimumDimension || height < minimumDimension {
		m, err := NewGlobalHistogram(h.source).BlackMatrix()
		if err != nil {
			return nil, err
		}
		h.matrix = m
		return m, nil
	}

	luminances := h.source.Matrix()
	g := blockGrid{
		width:     width,
		height:    height,
		subWidth:  (width + blockSizeMask) >> blockSizePower,
		subHeight: (height + blockSizeMask) >> blockSizePower,
	}
	blackPoints := g.blackPoints(luminances)

	m := bitutil.NewBitMatrixWithSize(width, height)
	g.threshold(luminances, blackPoints, m)
	h.matrix = m
	return m, nil
}

type blockGrid struct {
	width, height       int
	subWidth, subHeight int
}

// offset returns the pixel offset of block index i, clamped so the last
// block stays inside an image whose size is not a multiple of blockSize.
func offset(i, limit int) int {
	return min(i<<blockSizePower, limit-blockSize)
}

func (g blockGrid) threshold(luminances []byte, blackPoints []int, m *bitutil.BitMatrix) {
	for y := 0; y < g.subHeight; y++ {
		yoffset := offset(y, g.height)
		top := clamp(y, 2, g.subHeight-3)
		for x := 0; x < g.subWidth; x++ {
			xoffset := offset(x, g.width)
			left := clamp(x, 2, g.subWidth-3)
			sum := 0
			for dy := -2; dy <= 2; dy++ {
				row := blackPoints[(top+dy)*g.subWidth:]
				for dx := -2; dx <= 2; dx++ {
					sum += row[left+dx]
				}
			}
			thresholdBlock(luminances, xoffset, yoffset, sum/25, g.width, m)
		}
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func thresholdBlock(luminances []byte, xoffset, yoffset, threshold, stride int, m *bitutil.BitMatrix) {
	for y := 0; y < blockSize; y++ {
		base := (yoffset+y)*stride + xoffset
		for x := 0; x < blockSize; x++ {
			if int(luminances[base+x]) <= threshold {
				m.Set(xoffset+x, yoffset+y)
			}
		}
	}
}

// blackPoints estimates one black point per block. Low contrast blocks are
// assumed to be background and borrow from their already computed neighbours.
func (g blockGrid) blackPoints(luminances []byte) []int {
	points := make([]int, g.subWidth*g.subHeight)
	for y := 0; y < g.subHeight; y++ {
		yoffset := offset(y, g.height)
		for x := 0; x < g.subWidth; x++ {
			xoffset := offset(x, g.width)
			sum, lo, hi := 0, 0xFF, 0
			for yy := 0; yy < blockSize; yy++ {
				base := (yoffset+yy)*g.width + xoffset
				for xx := 0; xx < blockSize; xx++ {
					pixel := int(luminances[base+xx])
					sum += pixel
					lo = min(lo, pixel)
					hi = max(hi, pixel)
				}
				if hi-lo > minDynamicRange {
					// Enough contrast: finish the sum without tracking extremes.
					for yy++; yy < blockSize; yy++ {
						base := (yoffset+yy)*g.width + xoffset
						for xx := 0; xx < blockSize; xx++ {
							sum += int(luminances[base+xx])
						}
					}
				}
			}

			average := sum >> (blockSizePower * 2)
			if hi-lo <= minDynamicRange {
				average = lo / 2
				if y > 0 && x > 0 {
					neighbours := (points[(y-1)*g.subWidth+x] + 2*points[y*g.subWidth+x-1] +
						points[(y-1)*g.subWidth+x-1]) / 4
					if lo < neighbours {
						average = neighbours
					}
				}
			}
			points[y*g.subWidth+x] = average
		}
	}
	return points
}
