// Package detector finds QR symbol candidates in a binarized image. Candidates
// are produced lazily and the caller reports, for each one, whether it
// decoded; that report prunes the rest of the search.
package detector

import (
	"errors"
	"fmt"

	"github.com/ericlevine/qrdecode"
	"github.com/ericlevine/qrdecode/bitutil"
	"github.com/ericlevine/qrdecode/transform"
)

// ErrNilImage is returned by Detect when no bitmap is given.
var ErrNilImage = errors.New("detector: nil image")

// Feedback reports the outcome of decoding the previously returned candidate.
type Feedback int

const (
	// FeedbackNone is passed on the first call to Next, before any candidate
	// has been returned.
	FeedbackNone Feedback = iota
	FeedbackDecoded
	FeedbackFailed
)

func (f Feedback) String() string {
	switch f {
	case FeedbackNone:
		return "none"
	case FeedbackDecoded:
		return "decoded"
	case FeedbackFailed:
		return "failed"
	default:
		return fmt.Sprintf("Feedback(%d)", int(f))
	}
}

// FinderPatterns are the three finder centers of a candidate.
type FinderPatterns struct {
	TopLeft    qrdecode.Pattern
	TopRight   qrdecode.Pattern
	BottomLeft qrdecode.Pattern
}

// Candidate is one sampled symbol hypothesis.
type Candidate struct {
	// Size is the number of modules per side.
	Size      int
	Finder    FinderPatterns
	Alignment *qrdecode.Pattern
	// Matrix is the Size x Size module grid sampled from the image.
	Matrix *bitutil.BitMatrix

	mapping func(x, y float64) qrdecode.Point
}

// NewCandidate assembles a candidate from parts. mapping converts symbol
// module coordinates to image pixels.
func NewCandidate(size int, finder FinderPatterns, alignment *qrdecode.Pattern,
	matrix *bitutil.BitMatrix, mapping func(x, y float64) qrdecode.Point) *Candidate {
	return &Candidate{
		Size:      size,
		Finder:    finder,
		Alignment: alignment,
		Matrix:    matrix,
		mapping:   mapping,
	}
}

// Mapping converts a point in symbol module coordinates, where (0,0) is the
// outer top-left corner and (Size,Size) the outer bottom-right corner, to
// image pixel coordinates.
func (c *Candidate) Mapping(x, y float64) qrdecode.Point {
	return c.mapping(x, y)
}

// Options tune the candidate search.
type Options struct {
	// TryHarder scans every third row regardless of image height.
	TryHarder bool
}

// Detector creates candidate sequences. It holds no per-image state and is
// safe for concurrent use.
type Detector struct {
	opts Options
}

// New returns a Detector with the given options.
func New(opts Options) *Detector {
	return &Detector{opts: opts}
}

// Detect starts a candidate sequence over image. No scanning happens until
// the first call to Next. The sequence reads image but never modifies it.
func (d *Detector) Detect(image *bitutil.BitMatrix) (*Sequence, error) {
	if image == nil {
		return nil, ErrNilImage
	}
	return &Sequence{image: image, opts: d.opts}, nil
}

// Sequence yields the candidates found in one bitmap. It is not safe for
// concurrent use.
//
// Every finder group is tried with its alignment pattern first, when one was
// found, and then without. A group that decodes marks its three finder
// patterns used: its remaining alternatives are dropped and any later group
// sharing one of those patterns is skipped.
type Sequence struct {
	image *bitutil.BitMatrix
	opts  Options

	started bool
	done    bool

	groups  []*finderGroup
	next    int
	used    map[*finderPattern]bool
	current *finderGroup
	layout  *layout
	pending []*qrdecode.Pattern
}

// Next reports the outcome of the previous candidate and returns the next
// one. The boolean is false once the sequence is exhausted. Any feedback
// other than FeedbackDecoded after the first call counts as a failure.
func (s *Sequence) Next(fb Feedback) (*Candidate, bool) {
	if s.done {
		return nil, false
	}
	if !s.started {
		s.started = true
		f := &finder{image: s.image}
		f.scan(s.opts.TryHarder)
		s.groups = f.groups()
		s.used = make(map[*finderPattern]bool)
	} else if fb == FeedbackDecoded && s.current != nil {
		for _, p := range s.current.patterns() {
			s.used[p] = true
		}
		s.pending = nil
	}

	for {
		for len(s.pending) > 0 {
			alignment := s.pending[0]
			s.pending = s.pending[1:]
			if c, ok := s.sample(alignment); ok {
				return c, true
			}
		}
		if s.next >= len(s.groups) {
			s.done = true
			s.current = nil
			return nil, false
		}
		g := s.groups[s.next]
		s.next++
		if s.isUsed(g) {
			continue
		}
		l, err := estimateLayout(s.image, g)
		if err != nil {
			continue
		}
		s.current = g
		s.layout = l
		if l.alignment != nil {
			s.pending = []*qrdecode.Pattern{l.alignment, nil}
		} else {
			s.pending = []*qrdecode.Pattern{nil}
		}
	}
}

func (s *Sequence) isUsed(g *finderGroup) bool {
	for _, p := range g.patterns() {
		if s.used[p] {
			return true
		}
	}
	return false
}

func (s *Sequence) sample(alignment *qrdecode.Pattern) (*Candidate, bool) {
	g, dim := s.current, s.layout.dimension
	t := symbolTransform(g.topLeft, g.topRight, g.bottomLeft, alignment, dim)
	bits, err := transform.SampleGrid(s.image, dim, t)
	if err != nil {
		return nil, false
	}
	return NewCandidate(dim,
		FinderPatterns{
			TopLeft:    g.topLeft.pattern(),
			TopRight:   g.topRight.pattern(),
			BottomLeft: g.bottomLeft.pattern(),
		},
		alignment,
		bits,
		func(x, y float64) qrdecode.Point {
			px, py := t.Transform(x, y)
			return qrdecode.Point{X: px, Y: py}
		},
	), true
}
