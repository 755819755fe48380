package qrdecode

import "github.com/ericlevine/qrdecode/bitutil"

// LuminanceSource provides access to greyscale luminance values for an image.
type LuminanceSource interface {
	// Row returns a row of luminance data. If row is non-nil and large enough,
	// it should be reused.
	Row(y int, row []byte) []byte

	// Matrix returns the entire luminance matrix.
	Matrix() []byte

	Width() int
	Height() int
}

// Binarizer converts luminance data to a two-colour matrix where set bits are
// dark modules.
type Binarizer interface {
	BlackMatrix() (*bitutil.BitMatrix, error)
	LuminanceSource() LuminanceSource
}
