package scan

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ericlevine/qrdecode"
	"github.com/ericlevine/qrdecode/bitutil"
	"github.com/ericlevine/qrdecode/qrcode/detector"
)

type polarity string

const (
	normal   polarity = "normal"
	inverted polarity = "inverted"
)

// sweep drives one candidate sequence to exhaustion. Every candidate is
// decoded and the outcome is handed to the very next call to Next. A failed
// candidate is dropped; it never ends the sweep.
func (s *Scanner) sweep(ctx context.Context, bits *bitutil.BitMatrix, p polarity) ([]qrdecode.DecodeResult, error) {
	seq, err := s.detector.Detect(bits)
	if err != nil {
		return nil, fmt.Errorf("scan: detector: %w", err)
	}

	log := s.log.With(zap.String("polarity", string(p)))
	var results []qrdecode.DecodeResult
	fb := detector.FeedbackNone
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, ok := seq.Next(fb)
		if !ok {
			break
		}
		n++
		sym, err := s.decoder.Decode(c.Matrix)
		if err != nil {
			log.Debug("candidate rejected", zap.Int("candidate", n), zap.Int("size", c.Size), zap.Error(err))
			fb = detector.FeedbackFailed
			continue
		}
		results = append(results, Extract(c, sym.Text))
		fb = detector.FeedbackDecoded
	}

	log.Debug("pass finished", zap.Int("candidates", n), zap.Int("decoded", len(results)))
	return results, nil
}
