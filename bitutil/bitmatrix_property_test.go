package bitutil

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func fill(width, height int, seed int64) *BitMatrix {
	bm := NewBitMatrixWithSize(width, height)
	state := uint64(seed)*6364136223846793005 + 1442695040888963407
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			state = state*6364136223846793005 + 1442695040888963407
			if state>>63 == 1 {
				bm.Set(x, y)
			}
		}
	}
	return bm
}

func TestFlipAll_Involution(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("flipping twice restores the matrix", prop.ForAll(
		func(width, height int, seed int64) bool {
			orig := fill(width, height, seed)
			bm := orig.Clone()
			bm.FlipAll()
			bm.FlipAll()
			return bm.Equals(orig)
		},
		gen.IntRange(1, 100),
		gen.IntRange(1, 40),
		gen.Int64(),
	))

	properties.Property("flipping inverts every bit", prop.ForAll(
		func(width, height int, seed int64) bool {
			orig := fill(width, height, seed)
			bm := orig.Clone()
			bm.FlipAll()
			for y := 0; y < height; y++ {
				for x := 0; x < width; x++ {
					if bm.Get(x, y) == orig.Get(x, y) {
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(1, 100),
		gen.IntRange(1, 40),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
