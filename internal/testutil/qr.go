// Package testutil renders QR fixtures for tests.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/makiuchi-d/gozxing"
	qrwriter "github.com/makiuchi-d/gozxing/qrcode"
	"github.com/makiuchi-d/gozxing/qrcode/decoder"

	"github.com/ericlevine/qrdecode"
)

// QuietZone is the margin, in modules, rendered around every symbol.
const QuietZone = 4

// Symbol describes where a rendered symbol sits in its image.
type Symbol struct {
	Content    string
	Dimension  int
	ModuleSize int
	// Bounds covers the symbol modules, excluding the quiet zone.
	Bounds image.Rectangle
}

// Corners returns the outer top-left, top-right, bottom-right and bottom-left
// corners of the symbol.
func (s Symbol) Corners() [4]qrdecode.Point {
	b := s.Bounds
	return [4]qrdecode.Point{
		{X: float64(b.Min.X), Y: float64(b.Min.Y)},
		{X: float64(b.Max.X), Y: float64(b.Min.Y)},
		{X: float64(b.Max.X), Y: float64(b.Max.Y)},
		{X: float64(b.Min.X), Y: float64(b.Max.Y)},
	}
}

// Module returns the pixel position of a point given in module coordinates.
func (s Symbol) Module(x, y float64) qrdecode.Point {
	ms := float64(s.ModuleSize)
	return qrdecode.Point{X: float64(s.Bounds.Min.X) + x*ms, Y: float64(s.Bounds.Min.Y) + y*ms}
}

// Offset moves the symbol by p.
func (s Symbol) Offset(p image.Point) Symbol {
	s.Bounds = s.Bounds.Add(p)
	return s
}

// QR renders content at moduleSize pixels per module with a quiet zone.
func QR(tb testing.TB, content string, moduleSize int) (*image.NRGBA, Symbol) {
	tb.Helper()
	hints := map[gozxing.EncodeHintType]interface{}{
		gozxing.EncodeHintType_ERROR_CORRECTION: decoder.ErrorCorrectionLevel_M,
		gozxing.EncodeHintType_MARGIN:           QuietZone,
		gozxing.EncodeHintType_CHARACTER_SET:    "UTF-8",
	}
	bm, err := qrwriter.NewQRCodeWriter().Encode(content, gozxing.BarcodeFormat_QR_CODE, 1, 1, hints)
	if err != nil {
		tb.Fatalf("encode %q: %v", content, err)
	}

	w, h := bm.GetWidth(), bm.GetHeight()
	img := imaging.New(w*moduleSize, h*moduleSize, color.White)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !bm.Get(x, y) {
				continue
			}
			for dy := 0; dy < moduleSize; dy++ {
				for dx := 0; dx < moduleSize; dx++ {
					img.Set(x*moduleSize+dx, y*moduleSize+dy, color.Black)
				}
			}
		}
	}

	dim := w - 2*QuietZone
	min := image.Pt(QuietZone*moduleSize, QuietZone*moduleSize)
	return img, Symbol{
		Content:    content,
		Dimension:  dim,
		ModuleSize: moduleSize,
		Bounds:     image.Rectangle{Min: min, Max: min.Add(image.Pt(dim*moduleSize, dim*moduleSize))},
	}
}

// Canvas returns a white w x h image.
func Canvas(w, h int) *image.NRGBA {
	return imaging.New(w, h, color.White)
}

// Place pastes a rendered symbol onto canvas with its top-left at at.
func Place(canvas image.Image, img image.Image, sym Symbol, at image.Point) (*image.NRGBA, Symbol) {
	return imaging.Paste(canvas, img, at), sym.Offset(at)
}

// Invert swaps dark and light.
func Invert(img image.Image) *image.NRGBA {
	return imaging.Invert(img)
}

// PNG encodes img.
func PNG(tb testing.TB, img image.Image) []byte {
	tb.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		tb.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
