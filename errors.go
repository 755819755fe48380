package qrdecode

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrNotFound is returned when no symbol, pattern or usable contrast is found.
	ErrNotFound = errors.New("qrdecode: not found")

	// ErrFormat is returned when a sampled symbol cannot be decoded.
	ErrFormat = errors.New("qrdecode: format error")

	// ErrImageLoad is matched by every error caused by fetching or decoding the
	// input image.
	ErrImageLoad = errors.New("qrdecode: image load failed")
)

// ImageLoadError reports an image reference that could not be turned into
// pixels.
type ImageLoadError struct {
	Ref string
	Err error
}

func (e *ImageLoadError) Error() string {
	return fmt.Sprintf("qrdecode: load %s: %v", shortRef(e.Ref), e.Err)
}

func (e *ImageLoadError) Unwrap() error { return e.Err }

// Is reports true for ErrImageLoad.
func (e *ImageLoadError) Is(target error) bool { return target == ErrImageLoad }

// shortRef keeps data URIs readable in messages.
func shortRef(ref string) string {
	const max = 64
	if len(ref) <= max {
		return ref
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(ref[cut]) {
		cut--
	}
	return ref[:cut] + "..."
}
