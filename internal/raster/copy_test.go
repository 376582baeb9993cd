package raster

import (
	"errors"
	"testing"
)

func TestCopyRect(t *testing.T) {
	g := newTestGuardian(t, 1<<20)
	src, _ := New[int32](g, Int32Kind{NoDataValue: -1}, Config{Name: "src", Dims: Dimensions{Rows: 10, Cols: 10, ChunkRows: 3, ChunkCols: 3}})
	dst, _ := NewNumeric[int32](g, Int32Kind{NoDataValue: -9}, Eager, Config{Name: "dst", Dims: Dimensions{Rows: 6, Cols: 6, ChunkRows: 4, ChunkCols: 4}})
	for r := int64(0); r < 10; r++ {
		for c := int64(0); c < 10; c++ {
			if (r+c)%5 != 0 {
				src.Set(r, c, int32(r*10+c))
			}
		}
	}
	dst.Fill(0)
	dst.Update()

	// rows 2..6, cols 3..7 land at dst (1, 2); the last column falls off the edge
	if err := CopyRect(dst.Grid, src, Rect{Row0: 2, Col0: 3, Row1: 7, Col1: 8}, 1, 2); err != nil {
		t.Fatalf("CopyRect: %v", err)
	}
	if dst.Record().Fresh {
		t.Error("destination statistics fresh after CopyRect")
	}
	for r := int64(2); r < 7; r++ {
		for c := int64(3); c < 7; c++ {
			want, _ := src.Get(r, c)
			if want == -1 {
				want = -9
			}
			if got, _ := dst.Get(r-1, c-1); got != want {
				t.Errorf("dst(%d,%d) = %d, want %d", r-1, c-1, got, want)
			}
		}
	}
	if got, _ := dst.Get(0, 0); got != 0 {
		t.Errorf("cell outside the copy = %d, want 0", got)
	}
	if src.Pins().Len() != 0 || dst.Pins().Len() != 0 {
		t.Error("pins left after CopyRect")
	}
}

func TestCopyRectOverlap(t *testing.T) {
	g := newTestGuardian(t, 1<<20)
	grid, _ := New[int32](g, Int32Kind{}, Config{Name: "self", Dims: Dimensions{Rows: 8, Cols: 8}})
	err := CopyRect(grid, grid, Rect{Row1: 4, Col1: 4}, 2, 2)
	if !errors.Is(err, ErrDimensions) {
		t.Errorf("overlapping copy = %v, want ErrDimensions", err)
	}
	grid.Set(0, 0, 5)
	if err := CopyRect(grid, grid, Rect{Row1: 4, Col1: 4}, 4, 4); err != nil {
		t.Fatalf("disjoint copy: %v", err)
	}
	if v, _ := grid.Get(4, 4); v != 5 {
		t.Errorf("copied cell = %d, want 5", v)
	}
}

func TestClone(t *testing.T) {
	g := newTestGuardian(t, 1<<20)
	src, _ := NewNumeric[float64](g, Float64Kind{NoDataValue: -1}, Eager, Config{Name: "orig", Dims: Dimensions{Rows: 20, Cols: 20, ChunkRows: 8, ChunkCols: 8}})
	src.Set(0, 0, 1)
	src.Set(19, 19, 3)
	src.Set(9, 9, 2)

	dup, err := CloneNumeric(src, Lazy, Config{Name: "copy"})
	if err != nil {
		t.Fatalf("CloneNumeric: %v", err)
	}
	if r := dup.Record(); !r.Fresh || r.Count != 3 || r.Max != 3 {
		t.Errorf("cloned record = %+v", r)
	}
	dup.Set(0, 0, 7)
	if v, _ := src.Get(0, 0); v != 1 {
		t.Errorf("write to clone changed source: %v", v)
	}
	for _, cell := range [][2]int64{{19, 19}, {9, 9}, {5, 5}} {
		a, _ := src.Get(cell[0], cell[1])
		b, _ := dup.Get(cell[0], cell[1])
		if a != b {
			t.Errorf("cell %v: source %v, clone %v", cell, a, b)
		}
	}
}
