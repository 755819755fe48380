package message

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericlevine/qrdecode"
)

type fakeScanner struct {
	refs    []string
	results []qrdecode.DecodeResult
	err     error
}

func (f *fakeScanner) Decode(_ context.Context, ref string) ([]qrdecode.DecodeResult, error) {
	f.refs = append(f.refs, ref)
	return f.results, f.err
}

func img(src string) Element {
	return Element{Type: "img", Attrs: map[string]string{"src": src}}
}

func TestFirstImage(t *testing.T) {
	elems := []Element{
		{Type: "text", Attrs: map[string]string{"content": "look"}},
		{Type: "img"},
		{Type: "quote", Children: []Element{img("nested.png")}},
		img("second.png"),
	}
	e, ok := FirstImage(elems)
	require.True(t, ok)
	assert.Equal(t, "nested.png", e.Attrs["src"])

	_, ok = FirstImage([]Element{{Type: "text"}})
	assert.False(t, ok)
}

func TestFormatReply(t *testing.T) {
	got := FormatReply("图片识别结果：", []qrdecode.DecodeResult{{Content: "a"}, {Content: "b"}})
	assert.Equal(t, "图片识别结果：a\nb\n", got)

	// Decomposed e + combining acute is composed.
	assert.Equal(t, "\u00e9\n", FormatReply("", []qrdecode.DecodeResult{{Content: "e\u0301"}}))
}

func TestHandle(t *testing.T) {
	ctx := context.Background()

	t.Run("no image", func(t *testing.T) {
		s := &fakeScanner{}
		_, ok, err := NewAdapter(s, "p:", nil).Handle(ctx, Message{Elements: []Element{{Type: "text"}}})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, s.refs)
	})

	t.Run("no results", func(t *testing.T) {
		s := &fakeScanner{results: []qrdecode.DecodeResult{}}
		_, ok, err := NewAdapter(s, "p:", nil).Handle(ctx, Message{Elements: []Element{img("a.png")}})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, []string{"a.png"}, s.refs)
	})

	t.Run("reply", func(t *testing.T) {
		s := &fakeScanner{results: []qrdecode.DecodeResult{{Content: "hello"}}}
		reply, ok, err := NewAdapter(s, "p:", nil).Handle(ctx, Message{Elements: []Element{img("a.png"), img("b.png")}})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "p:hello\n", reply)
		assert.Equal(t, []string{"a.png"}, s.refs)
	})

	t.Run("load error", func(t *testing.T) {
		s := &fakeScanner{err: &qrdecode.ImageLoadError{Ref: "a.png", Err: errors.New("boom")}}
		_, ok, err := NewAdapter(s, "p:", nil).Handle(ctx, Message{Elements: []Element{img("a.png")}})
		assert.ErrorIs(t, err, qrdecode.ErrImageLoad)
		assert.False(t, ok)
	})
}
