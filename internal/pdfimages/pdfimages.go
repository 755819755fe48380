// Package pdfimages pulls the embedded images out of PDF pages and scans them.
package pdfimages

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/ericlevine/qrdecode"
	"github.com/ericlevine/qrdecode/internal/loader"
)

// Page holds the images embedded in one page, in extraction order.
type Page struct {
	Number int
	Images []image.Image
}

// Extract returns the images of the selected pages of the PDF at path, sorted
// by page number. pages is a list like "1-3,5"; empty selects every page.
// Pages without images are omitted.
func Extract(path, pages string) ([]Page, error) {
	selected, err := ParsePages(pages)
	if err != nil {
		return nil, fmt.Errorf("pdfimages: page range %q: %w", pages, err)
	}

	dir, err := os.MkdirTemp("", "qrdecode-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("pdfimages: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	var pageStrings []string
	for _, p := range selected {
		pageStrings = append(pageStrings, strconv.Itoa(p))
	}
	if err := api.ExtractImagesFile(path, dir, pageStrings, nil); err != nil {
		return nil, fmt.Errorf("pdfimages: extract %s: %w", path, err)
	}
	return collect(dir, pdfBaseName(path))
}

// collect groups extracted files by page. Files are named
// <base>_<page>_<image>.<ext>; anything else, or anything that does not
// decode, is skipped. Within a page, images keep the numeric order of their
// resource names, so Im2 comes before Im10.
func collect(dir, base string) ([]Page, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("pdfimages: %w", err)
	}

	type extracted struct {
		name string
		img  image.Image
	}
	byPage := make(map[int][]extracted)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n, name, ok := splitName(e.Name(), base)
		if !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		img, err := loader.DecodeBytes(data)
		if err != nil {
			continue
		}
		byPage[n] = append(byPage[n], extracted{name: name, img: img})
	}

	out := make([]Page, 0, len(byPage))
	for n, files := range byPage {
		sort.Slice(files, func(i, j int) bool { return imageLess(files[i].name, files[j].name) })
		imgs := make([]image.Image, len(files))
		for i, f := range files {
			imgs[i] = f.img
		}
		out = append(out, Page{Number: n, Images: imgs})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func pdfBaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// splitName returns the page number and the image resource name (without
// extension) of an extracted file.
func splitName(file, base string) (int, string, bool) {
	rest, ok := strings.CutPrefix(file, base+"_")
	if !ok {
		return 0, "", false
	}
	digits, name, ok := strings.Cut(rest, "_")
	if !ok {
		return 0, "", false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, "", false
	}
	return n, strings.TrimSuffix(name, filepath.Ext(name)), true
}

// imageLess orders resource names by their trailing number, then by name.
func imageLess(a, b string) bool {
	pa, na := trailingNumber(a)
	pb, nb := trailingNumber(b)
	if pa != pb {
		return pa < pb
	}
	if na != nb {
		return na < nb
	}
	return a < b
}

func trailingNumber(s string) (string, int) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	n, err := strconv.Atoi(s[i:])
	if err != nil {
		return s, -1
	}
	return s[:i], n
}

// maxPage bounds page numbers accepted by ParsePages.
const maxPage = 1 << 16

// ParsePages expands a page list such as "1-3,5" into page numbers. Repeated
// pages are listed once.
func ParsePages(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var pages []int
	seen := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		from, to, isRange := strings.Cut(part, "-")
		start, err := strconv.Atoi(strings.TrimSpace(from))
		if err != nil || start < 1 {
			return nil, fmt.Errorf("invalid page %q", part)
		}
		end := start
		if isRange {
			if end, err = strconv.Atoi(strings.TrimSpace(to)); err != nil || end < start {
				return nil, fmt.Errorf("invalid range %q", part)
			}
		}
		if end > maxPage {
			return nil, fmt.Errorf("page %d beyond %d", end, maxPage)
		}
		for p := start; p <= end; p++ {
			if !seen[p] {
				seen[p] = true
				pages = append(pages, p)
			}
		}
	}
	return pages, nil
}

// ImageScanner scans one image.
type ImageScanner interface {
	DecodeImage(ctx context.Context, img image.Image) ([]qrdecode.DecodeResult, error)
}

// Result is the outcome for one embedded image. Image counts from 1 within
// its page.
type Result struct {
	Page    int                     `json:"page" yaml:"page"`
	Image   int                     `json:"image" yaml:"image"`
	Results []qrdecode.DecodeResult `json:"results" yaml:"results"`
}

// Scan extracts the selected pages and scans every image on them. A positive
// timeout bounds the scan of each image separately.
func Scan(ctx context.Context, s ImageScanner, path, pages string, timeout time.Duration) ([]Result, error) {
	extracted, err := Extract(path, pages)
	if err != nil {
		return nil, err
	}
	var out []Result
	for _, p := range extracted {
		for i, img := range p.Images {
			results, err := scanOne(ctx, s, img, timeout)
			if err != nil {
				return nil, fmt.Errorf("pdfimages: page %d image %d: %w", p.Number, i+1, err)
			}
			out = append(out, Result{Page: p.Number, Image: i + 1, Results: results})
		}
	}
	return out, nil
}

func scanOne(ctx context.Context, s ImageScanner, img image.Image, timeout time.Duration) ([]qrdecode.DecodeResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.DecodeImage(ctx, img)
}
