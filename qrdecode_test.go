package qrdecode_test

import (
	"errors"
	"image"
	"image/color"
	"io"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericlevine/qrdecode"
)

func pat(x, y float64) qrdecode.Pattern {
	return qrdecode.Pattern{X: x, Y: y, ModuleSize: 1}
}

func TestOrderBestPatterns(t *testing.T) {
	tl, tr, bl := pat(10, 10), pat(90, 10), pat(10, 90)
	want := [3]qrdecode.Pattern{bl, tl, tr}

	// Every input order yields bottom-left, top-left, top-right.
	for _, in := range [][3]qrdecode.Pattern{
		{tl, tr, bl}, {tl, bl, tr}, {tr, tl, bl},
		{tr, bl, tl}, {bl, tl, tr}, {bl, tr, tl},
	} {
		assert.Equal(t, want, qrdecode.OrderBestPatterns(in), "input %v", in)
	}
}

func TestOrderBestPatternsRotated(t *testing.T) {
	// Rotated 90 degrees counter-clockwise: top-left is now at the bottom.
	tl, tr, bl := pat(10, 90), pat(10, 10), pat(90, 90)
	got := qrdecode.OrderBestPatterns([3]qrdecode.Pattern{tr, bl, tl})
	assert.Equal(t, [3]qrdecode.Pattern{bl, tl, tr}, got)
}

func TestCrossProductZ(t *testing.T) {
	a := qrdecode.Point{X: 0, Y: 10}
	b := qrdecode.Point{X: 0, Y: 0}
	c := qrdecode.Point{X: 10, Y: 0}
	assert.Positive(t, qrdecode.CrossProductZ(a, b, c))
	assert.Negative(t, qrdecode.CrossProductZ(c, b, a))
	assert.Zero(t, qrdecode.CrossProductZ(a, b, qrdecode.Point{X: 0, Y: 20}))
}

func TestDistance(t *testing.T) {
	assert.InDelta(t, 5, qrdecode.Distance(qrdecode.Point{X: 1, Y: 1}, qrdecode.Point{X: 4, Y: 5}), 1e-12)
}

func TestImageLoadError(t *testing.T) {
	err := error(&qrdecode.ImageLoadError{Ref: "photo.png", Err: io.ErrUnexpectedEOF})
	assert.ErrorIs(t, err, qrdecode.ErrImageLoad)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.NotErrorIs(t, err, qrdecode.ErrFormat)
	assert.Equal(t, "qrdecode: load photo.png: unexpected EOF", err.Error())

	var le *qrdecode.ImageLoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "photo.png", le.Ref)

	long := "data:image/png;base64," + strings.Repeat("A", 500)
	msg := (&qrdecode.ImageLoadError{Ref: long, Err: io.EOF}).Error()
	assert.Less(t, len(msg), 120)
	assert.Contains(t, msg, "...")

	// 63 ASCII bytes put byte 64 in the middle of the first 3-byte rune.
	path := "/" + strings.Repeat("a", 62) + strings.Repeat("图片", 20) + ".png"
	msg = (&qrdecode.ImageLoadError{Ref: path, Err: io.EOF}).Error()
	assert.True(t, utf8.ValidString(msg), msg)
	assert.Contains(t, msg, strings.Repeat("a", 62)+"...")
}

func TestImageLuminanceSource(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	img.Set(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	img.Set(1, 0, color.NRGBA{R: 0, G: 0, B: 0, A: 255})
	img.Set(2, 0, color.NRGBA{R: 255, G: 0, B: 0, A: 255})
	img.Set(0, 1, color.NRGBA{R: 0, G: 255, B: 0, A: 255})
	img.Set(1, 1, color.NRGBA{R: 0, G: 0, B: 255, A: 255})
	// (2,1) stays fully transparent.

	src := qrdecode.NewImageLuminanceSource(img)
	assert.Equal(t, 3, src.Width())
	assert.Equal(t, 2, src.Height())
	assert.Equal(t, []byte{255, 0, 76, 150, 29, 255}, src.Matrix())

	row := src.Row(1, nil)
	assert.Equal(t, []byte{150, 29, 255}, row)
	assert.Nil(t, src.Row(2, nil))

	// Matrix returns a copy.
	m := src.Matrix()
	m[0] = 1
	assert.Equal(t, byte(255), src.Matrix()[0])
}

func TestImageLuminanceSourceGraySubImage(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range g.Pix {
		g.Pix[i] = byte(i)
	}
	sub := g.SubImage(image.Rect(1, 1, 3, 3)).(*image.Gray)

	src := qrdecode.NewImageLuminanceSource(sub)
	assert.Equal(t, []byte{5, 6, 9, 10}, src.Matrix())
}
