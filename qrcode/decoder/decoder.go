// Package decoder turns a sampled QR module grid into text. Format and version
// parsing, unmasking, Reed-Solomon correction and segment decoding are done by
// gozxing; this package adapts our module matrix to it and normalizes its
// failures.
package decoder

import (
	"fmt"

	"github.com/makiuchi-d/gozxing"
	zxdecoder "github.com/makiuchi-d/gozxing/qrcode/decoder"

	"github.com/ericlevine/qrdecode"
	"github.com/ericlevine/qrdecode/bitutil"
)

// Symbol is the decoded payload of one QR symbol.
type Symbol struct {
	Text            string
	RawBytes        []byte
	ECLevel         string
	ErrorsCorrected int
}

// Options configure payload decoding.
type Options struct {
	// CharacterSet overrides the byte-mode character set guess, for example
	// "UTF-8" or "Shift_JIS".
	CharacterSet string
}

// Decoder is stateless and safe for concurrent use.
type Decoder struct {
	hints map[gozxing.DecodeHintType]interface{}
}

// New returns a Decoder with the given options.
func New(opts Options) *Decoder {
	hints := make(map[gozxing.DecodeHintType]interface{})
	if opts.CharacterSet != "" {
		hints[gozxing.DecodeHintType_CHARACTER_SET] = opts.CharacterSet
	}
	return &Decoder{hints: hints}
}

// Decode reads the symbol in matrix. Every failure, including a panic inside
// the payload decoder, is returned as an error matching qrdecode.ErrFormat.
func (d *Decoder) Decode(matrix *bitutil.BitMatrix) (sym *Symbol, err error) {
	if matrix == nil || matrix.Width() != matrix.Height() {
		return nil, fmt.Errorf("%w: module grid must be square", qrdecode.ErrFormat)
	}
	defer func() {
		if r := recover(); r != nil {
			sym = nil
			err = fmt.Errorf("%w: panic: %v", qrdecode.ErrFormat, r)
		}
	}()

	res, err := zxdecoder.NewDecoder().DecodeBoolMap(toBoolMap(matrix), d.hints)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", qrdecode.ErrFormat, err)
	}
	return &Symbol{
		Text:            res.GetText(),
		RawBytes:        res.GetRawBytes(),
		ECLevel:         res.GetECLevel(),
		ErrorsCorrected: res.GetErrorsCorrected(),
	}, nil
}

// toBoolMap lays the matrix out row-major, image[y][x].
func toBoolMap(matrix *bitutil.BitMatrix) [][]bool {
	image := make([][]bool, matrix.Height())
	for y := range image {
		row := make([]bool, matrix.Width())
		for x := range row {
			row[x] = matrix.Get(x, y)
		}
		image[y] = row
	}
	return image
}
