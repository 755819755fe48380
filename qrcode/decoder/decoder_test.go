package decoder

import (
	"errors"
	"testing"

	"github.com/makiuchi-d/gozxing"
	qrwriter "github.com/makiuchi-d/gozxing/qrcode"
	zxdecoder "github.com/makiuchi-d/gozxing/qrcode/decoder"

	"github.com/ericlevine/qrdecode"
	"github.com/ericlevine/qrdecode/bitutil"
)

// modules renders content with no quiet zone, one bit per module.
func modules(t *testing.T, content string) *bitutil.BitMatrix {
	t.Helper()
	hints := map[gozxing.EncodeHintType]interface{}{
		gozxing.EncodeHintType_ERROR_CORRECTION: zxdecoder.ErrorCorrectionLevel_M,
		gozxing.EncodeHintType_MARGIN:           0,
		gozxing.EncodeHintType_CHARACTER_SET:    "UTF-8",
	}
	bm, err := qrwriter.NewQRCodeWriter().Encode(content, gozxing.BarcodeFormat_QR_CODE, 1, 1, hints)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out := bitutil.NewBitMatrixWithSize(bm.GetWidth(), bm.GetHeight())
	for y := 0; y < bm.GetHeight(); y++ {
		for x := 0; x < bm.GetWidth(); x++ {
			if bm.Get(x, y) {
				out.Set(x, y)
			}
		}
	}
	return out
}

func TestDecode(t *testing.T) {
	for _, content := range []string{"hello", "https://example.com/a?b=c", "二维码 テスト"} {
		sym, err := New(Options{}).Decode(modules(t, content))
		if err != nil {
			t.Fatalf("%q: %v", content, err)
		}
		if sym.Text != content {
			t.Errorf("got %q, want %q", sym.Text, content)
		}
		if sym.ECLevel != "M" {
			t.Errorf("%q: EC level %q, want M", content, sym.ECLevel)
		}
		if len(sym.RawBytes) == 0 {
			t.Errorf("%q: no raw bytes", content)
		}
	}
}

func TestDecodeCorrectsErrors(t *testing.T) {
	m := modules(t, "a few damaged modules")
	// Flip two modules in the bottom-right data region.
	m.Flip(m.Width()-1, m.Height()-1)
	m.Flip(m.Width()-2, m.Height()-3)

	sym, err := New(Options{}).Decode(m)
	if err != nil {
		t.Fatal(err)
	}
	if sym.Text != "a few damaged modules" {
		t.Errorf("got %q", sym.Text)
	}
}

func TestDecodeFailures(t *testing.T) {
	blank := bitutil.NewBitMatrix(21)
	noise := bitutil.NewBitMatrix(25)
	for y := 0; y < 25; y++ {
		for x := 0; x < 25; x++ {
			if (x*7+y*13)%5 < 2 {
				noise.Set(x, y)
			}
		}
	}
	for name, m := range map[string]*bitutil.BitMatrix{
		"nil":        nil,
		"not square": bitutil.NewBitMatrixWithSize(21, 25),
		"blank":      blank,
		"noise":      noise,
		"bad size":   bitutil.NewBitMatrix(22),
	} {
		_, err := New(Options{}).Decode(m)
		if !errors.Is(err, qrdecode.ErrFormat) {
			t.Errorf("%s: got %v, want ErrFormat", name, err)
		}
	}
}
