package bitutil

import "testing"

func TestBitMatrixGetSet(t *testing.T) {
	bm := NewBitMatrixWithSize(10, 10)
	bm.Set(3, 5)
	if !bm.Get(3, 5) {
		t.Error("bit (3,5) should be set")
	}
	if bm.Get(5, 3) {
		t.Error("bit (5,3) should not be set")
	}
	bm.Unset(3, 5)
	if bm.Get(3, 5) {
		t.Error("bit (3,5) should be unset")
	}
}

func TestBitMatrixFlip(t *testing.T) {
	bm := NewBitMatrixWithSize(4, 4)
	bm.Flip(1, 2)
	if !bm.Get(1, 2) {
		t.Error("bit should be set after flip")
	}
	bm.Flip(1, 2)
	if bm.Get(1, 2) {
		t.Error("bit should be unset after double flip")
	}
}

func TestBitMatrixFlipAll(t *testing.T) {
	bm := NewBitMatrixWithSize(37, 3)
	bm.Set(0, 0)
	bm.Set(36, 2)
	bm.FlipAll()
	if bm.Get(0, 0) || bm.Get(36, 2) {
		t.Error("set bits should be cleared by FlipAll")
	}
	if !bm.Get(35, 2) || !bm.Get(1, 0) {
		t.Error("unset bits should be set by FlipAll")
	}

	full := NewBitMatrixWithSize(37, 3)
	full.SetRegion(0, 0, 37, 3)
	empty := NewBitMatrixWithSize(37, 3)
	empty.FlipAll()
	if !empty.Equals(full) {
		t.Error("flipped empty matrix should equal a full matrix")
	}
}

func TestBitMatrixSetRegion(t *testing.T) {
	bm := NewBitMatrixWithSize(8, 8)
	bm.SetRegion(2, 2, 4, 4)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			expected := x >= 2 && x < 6 && y >= 2 && y < 6
			if bm.Get(x, y) != expected {
				t.Errorf("(%d,%d) = %v, want %v", x, y, bm.Get(x, y), expected)
			}
		}
	}
}

func TestBitMatrixClone(t *testing.T) {
	bm := NewBitMatrixWithSize(8, 8)
	bm.Set(1, 1)
	clone := bm.Clone()
	clone.Set(2, 2)
	if bm.Get(2, 2) {
		t.Error("modifying clone should not affect original")
	}
	if !clone.Get(1, 1) {
		t.Error("clone should keep original bits")
	}
}

func TestBitMatrixEquals(t *testing.T) {
	a := NewBitMatrixWithSize(4, 4)
	b := NewBitMatrixWithSize(4, 4)
	a.Set(1, 2)
	b.Set(1, 2)
	if !a.Equals(b) {
		t.Error("equal matrices should be equal")
	}
	b.Set(3, 3)
	if a.Equals(b) {
		t.Error("different matrices should not be equal")
	}
	if a.Equals(nil) {
		t.Error("nil should not be equal")
	}
}

func TestParseStringMatrix(t *testing.T) {
	bm, err := ParseStringMatrix("X . X\n. X .\n", "X ", ". ")
	if err == nil {
		t.Fatalf("expected error for trailing cell without separator, got\n%s", bm)
	}

	bm, err = ParseStringMatrix("X . X \n. X . \n", "X ", ". ")
	if err != nil {
		t.Fatal(err)
	}
	if bm.Width() != 3 || bm.Height() != 2 {
		t.Fatalf("size = %dx%d, want 3x2", bm.Width(), bm.Height())
	}
	if !bm.Get(0, 0) || bm.Get(1, 0) || !bm.Get(1, 1) {
		t.Errorf("unexpected bits:\n%s", bm)
	}
	if got := bm.StringWithChars("X ", ". "); got != "X . X \n. X . \n" {
		t.Errorf("round trip = %q", got)
	}

	if _, err := ParseStringMatrix("X \nX X \n", "X ", ". "); err == nil {
		t.Error("expected error for ragged rows")
	}
}
