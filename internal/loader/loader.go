// Package loader resolves image references (paths, file and http URLs, data
// URIs) to decoded images.
package loader

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	// Formats beyond the PNG, JPEG and GIF decoders imaging registers.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/ericlevine/qrdecode"
)

const (
	DefaultTimeout  = 15 * time.Second
	DefaultMaxBytes = 20 << 20
)

var (
	ErrTooLarge         = errors.New("loader: image exceeds size limit")
	ErrRemoteDisabled   = errors.New("loader: remote references are disabled")
	ErrLocalDisabled    = errors.New("loader: file references are disabled")
	ErrUnsupportedRef   = errors.New("loader: unsupported reference")
	errMalformedDataURI = errors.New("loader: malformed data URI")
)

// Options configure a Loader.
type Options struct {
	// Timeout bounds a remote fetch. Zero means DefaultTimeout.
	Timeout time.Duration
	// MaxBytes caps the encoded image size. Zero means DefaultMaxBytes.
	MaxBytes int64
	// DenyRemote rejects http and https references.
	DenyRemote bool
	// DenyLocal rejects file paths and file URLs.
	DenyLocal bool
	Client    *http.Client
}

// Loader is safe for concurrent use.
type Loader struct {
	opts   Options
	client *http.Client
}

// New returns a Loader.
func New(opts Options) *Loader {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Loader{opts: opts, client: client}
}

// Load fetches and decodes the image behind ref. Every error is an
// *qrdecode.ImageLoadError.
func (l *Loader) Load(ctx context.Context, ref string) (image.Image, error) {
	data, err := l.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	img, err := DecodeBytes(data)
	if err != nil {
		return nil, &qrdecode.ImageLoadError{Ref: ref, Err: err}
	}
	return img, nil
}

// Fetch returns the encoded bytes behind ref.
func (l *Loader) Fetch(ctx context.Context, ref string) ([]byte, error) {
	data, err := l.fetch(ctx, ref)
	if err != nil {
		return nil, &qrdecode.ImageLoadError{Ref: ref, Err: err}
	}
	return data, nil
}

func (l *Loader) fetch(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case ref == "":
		return nil, ErrUnsupportedRef
	case strings.HasPrefix(ref, "data:"):
		return l.dataURI(ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		if l.opts.DenyRemote {
			return nil, ErrRemoteDisabled
		}
		return l.remote(ctx, ref)
	case strings.HasPrefix(ref, "file://"):
		if l.opts.DenyLocal {
			return nil, ErrLocalDisabled
		}
		u, err := url.Parse(ref)
		if err != nil {
			return nil, err
		}
		return l.file(u.Path)
	case strings.Contains(ref, "://"):
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRef, ref[:strings.Index(ref, "://")])
	case l.opts.DenyLocal:
		return nil, ErrLocalDisabled
	}
	return l.file(ref)
}

func (l *Loader) file(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return l.readLimited(f)
}

func (l *Loader) remote(ctx context.Context, ref string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "image/*")
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("loader: GET returned %s", resp.Status)
	}
	if resp.ContentLength > l.opts.MaxBytes {
		return nil, ErrTooLarge
	}
	return l.readLimited(resp.Body)
}

// dataURI decodes data:[<mediatype>][;base64],<payload>.
func (l *Loader) dataURI(ref string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, errMalformedDataURI
	}
	var data []byte
	if strings.HasSuffix(meta, ";base64") {
		var err error
		data, err = base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
		if err != nil {
			// Some clients drop the padding.
			if data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "=")); err != nil {
				return nil, fmt.Errorf("%w: %w", errMalformedDataURI, err)
			}
		}
	} else {
		s, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errMalformedDataURI, err)
		}
		data = []byte(s)
	}
	if int64(len(data)) > l.opts.MaxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

func (l *Loader) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.opts.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > l.opts.MaxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

// DecodeBytes decodes an encoded image, applying any EXIF orientation.
func DecodeBytes(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("loader: empty image data")
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("loader: decode: %w", err)
	}
	return img, nil
}
