// Package scan finds and decodes every QR symbol in an image.
//
// A scan binarizes the image once and sweeps it twice, first as is and then
// with dark and light swapped, so light-on-dark symbols are found too. The
// normal sweep wins whenever it found anything.
package scan

import (
	"context"
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ericlevine/qrdecode"
	"github.com/ericlevine/qrdecode/binarizer"
	"github.com/ericlevine/qrdecode/bitutil"
	"github.com/ericlevine/qrdecode/internal/loader"
	"github.com/ericlevine/qrdecode/qrcode/decoder"
	"github.com/ericlevine/qrdecode/qrcode/detector"
)

// Detector starts a candidate search over a bitmap.
type Detector interface {
	Detect(image *bitutil.BitMatrix) (Candidates, error)
}

// Candidates yields candidates one at a time. The argument to Next reports
// how the previously returned candidate decoded.
type Candidates interface {
	Next(fb detector.Feedback) (*detector.Candidate, bool)
}

// SymbolDecoder decodes a sampled module grid.
type SymbolDecoder interface {
	Decode(matrix *bitutil.BitMatrix) (*decoder.Symbol, error)
}

// ImageLoader resolves an image reference to pixels.
type ImageLoader interface {
	Load(ctx context.Context, ref string) (image.Image, error)
}

// Options configure a Scanner. Zero values select the built-in
// implementations.
type Options struct {
	TryHarder    bool
	CharacterSet string
	// ParallelPasses runs the normal and inverted sweeps concurrently.
	ParallelPasses bool

	Logger   *zap.Logger
	Loader   ImageLoader
	Detector Detector
	Decoder  SymbolDecoder
	// Binarizer builds the thresholding step for an image. Nil selects
	// binarizer.NewHybrid.
	Binarizer func(qrdecode.LuminanceSource) qrdecode.Binarizer
}

// Scanner is safe for concurrent use.
type Scanner struct {
	detector  Detector
	decoder   SymbolDecoder
	loader    ImageLoader
	binarizer func(qrdecode.LuminanceSource) qrdecode.Binarizer
	log       *zap.Logger
	parallel  bool
}

// New returns a Scanner.
func New(opts Options) *Scanner {
	s := &Scanner{
		detector:  opts.Detector,
		decoder:   opts.Decoder,
		loader:    opts.Loader,
		binarizer: opts.Binarizer,
		log:       opts.Logger,
		parallel:  opts.ParallelPasses,
	}
	if s.binarizer == nil {
		s.binarizer = func(src qrdecode.LuminanceSource) qrdecode.Binarizer {
			return binarizer.NewHybrid(src)
		}
	}
	if s.detector == nil {
		s.detector = qrDetector{detector.New(detector.Options{TryHarder: opts.TryHarder})}
	}
	if s.decoder == nil {
		s.decoder = decoder.New(decoder.Options{CharacterSet: opts.CharacterSet})
	}
	if s.loader == nil {
		s.loader = loader.New(loader.Options{})
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

type qrDetector struct {
	d *detector.Detector
}

func (q qrDetector) Detect(image *bitutil.BitMatrix) (Candidates, error) {
	return q.d.Detect(image)
}

// Decode loads the image behind ref and scans it. A reference that cannot be
// loaded yields an error matching qrdecode.ErrImageLoad. Finding nothing is
// not an error: the result is then empty.
func (s *Scanner) Decode(ctx context.Context, ref string) ([]qrdecode.DecodeResult, error) {
	img, err := s.loader.Load(ctx, ref)
	if err != nil {
		if !errors.Is(err, qrdecode.ErrImageLoad) {
			err = &qrdecode.ImageLoadError{Ref: ref, Err: err}
		}
		return nil, err
	}
	return s.DecodeImage(ctx, img)
}

// DecodeImage scans img with both polarities. Both sweeps always run to
// completion; the inverted result is returned only when the normal one is
// empty.
func (s *Scanner) DecodeImage(ctx context.Context, img image.Image) ([]qrdecode.DecodeResult, error) {
	if img == nil || img.Bounds().Empty() {
		return []qrdecode.DecodeResult{}, nil
	}

	b := s.binarizer(qrdecode.NewImageLuminanceSource(img))
	bits, err := b.BlackMatrix()
	if errors.Is(err, qrdecode.ErrNotFound) {
		src := b.LuminanceSource()
		s.log.Debug("no usable contrast", zap.Int("width", src.Width()), zap.Int("height", src.Height()))
		return []qrdecode.DecodeResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan: binarize: %w", err)
	}
	flipped := bits.Clone()
	flipped.FlipAll()

	var normalResults, invertedResults []qrdecode.DecodeResult
	if s.parallel {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			normalResults, err = s.sweep(gctx, bits, normal)
			return err
		})
		g.Go(func() (err error) {
			invertedResults, err = s.sweep(gctx, flipped, inverted)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		if normalResults, err = s.sweep(ctx, bits, normal); err != nil {
			return nil, err
		}
		if invertedResults, err = s.sweep(ctx, flipped, inverted); err != nil {
			return nil, err
		}
	}

	switch {
	case len(normalResults) > 0:
		return normalResults, nil
	case len(invertedResults) > 0:
		return invertedResults, nil
	}
	return []qrdecode.DecodeResult{}, nil
}
