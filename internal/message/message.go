// Package message answers chat messages that carry an image with the text of
// the QR codes found in it.
package message

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/ericlevine/qrdecode"
)

// Element is one node of a rich chat message, such as text, an image or a
// quote wrapping other elements.
type Element struct {
	Type     string            `json:"type"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []Element         `json:"children,omitempty"`
}

// Message is an inbound chat message.
type Message struct {
	ID       string    `json:"id"`
	Elements []Element `json:"elements"`
}

// FirstImage returns the first img element with a src, searching depth
// first in document order.
func FirstImage(elements []Element) (Element, bool) {
	for _, e := range elements {
		if e.Type == "img" && e.Attrs["src"] != "" {
			return e, true
		}
		if img, ok := FirstImage(e.Children); ok {
			return img, true
		}
	}
	return Element{}, false
}

// FormatReply is prefix followed by the content of every result on its own
// line.
func FormatReply(prefix string, results []qrdecode.DecodeResult) string {
	var sb strings.Builder
	sb.WriteString(prefix)
	for _, r := range results {
		sb.WriteString(r.Content)
		sb.WriteByte('\n')
	}
	return norm.NFC.String(sb.String())
}

// Scanner is the part of scan.Scanner the adapter needs.
type Scanner interface {
	Decode(ctx context.Context, ref string) ([]qrdecode.DecodeResult, error)
}

// Adapter turns messages into replies.
type Adapter struct {
	scanner Scanner
	prefix  string
	log     *zap.Logger
}

// NewAdapter returns an Adapter replying with prefix.
func NewAdapter(scanner Scanner, prefix string, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{scanner: scanner, prefix: prefix, log: log}
}

// Handle scans the first image of msg. ok is false when there is nothing to
// say: no image, or no code in it. Load failures are returned, never turned
// into a reply.
func (a *Adapter) Handle(ctx context.Context, msg Message) (reply string, ok bool, err error) {
	img, found := FirstImage(msg.Elements)
	if !found {
		return "", false, nil
	}
	results, err := a.scanner.Decode(ctx, img.Attrs["src"])
	if err != nil {
		return "", false, err
	}
	if len(results) == 0 {
		a.log.Debug("no code in image", zap.String("message_id", msg.ID))
		return "", false, nil
	}
	return FormatReply(a.prefix, results), true, nil
}
