package raster

import (
	"errors"
	"testing"
)

func TestCoordinateRoundTrip(t *testing.T) {
	d := Dimensions{Rows: 1000, Cols: 777, ChunkRows: 64, ChunkCols: 100}.withDefaults()
	for _, row := range []int64{0, 1, 63, 64, 65, 999} {
		for _, col := range []int64{0, 99, 100, 776} {
			c, lr, lc := d.ChunkOf(row, col)
			if got := d.GlobalRow(c.Row, lr); got != row {
				t.Errorf("row %d -> chunk %d local %d -> %d", row, c.Row, lr, got)
			}
			if got := d.GlobalCol(c.Col, lc); got != col {
				t.Errorf("col %d -> chunk %d local %d -> %d", col, c.Col, lc, got)
			}
		}
	}
}

func TestChunkShapeAtEdges(t *testing.T) {
	d := Dimensions{Rows: 5, Cols: 3, ChunkRows: 2, ChunkCols: 2}.withDefaults()
	if d.ChunkGridRows() != 3 || d.ChunkGridCols() != 2 || d.ChunkCount() != 6 {
		t.Fatalf("chunk grid %dx%d", d.ChunkGridRows(), d.ChunkGridCols())
	}
	tests := []struct {
		c          ChunkCoord
		rows, cols int
	}{
		{ChunkCoord{0, 0}, 2, 2},
		{ChunkCoord{0, 1}, 2, 1},
		{ChunkCoord{2, 0}, 1, 2},
		{ChunkCoord{2, 1}, 1, 1},
	}
	for _, tt := range tests {
		if rows, cols := d.ChunkShape(tt.c); rows != tt.rows || cols != tt.cols {
			t.Errorf("ChunkShape(%s) = %dx%d, want %dx%d", tt.c, rows, cols, tt.rows, tt.cols)
		}
	}
}

func TestSpatialMapping(t *testing.T) {
	d := Dimensions{Rows: 10, Cols: 10, XMin: 100, YMin: 200, CellSize: 30}.withDefaults()
	if got := d.RowAt(200); got != 0 {
		t.Errorf("RowAt(ymin) = %d", got)
	}
	if got := d.RowAt(229.9); got != 0 {
		t.Errorf("RowAt(229.9) = %d", got)
	}
	if got := d.ColAt(99); got != -1 {
		t.Errorf("ColAt west of grid = %d, want -1", got)
	}
	if got := d.CellX(2); got != 175 {
		t.Errorf("CellX(2) = %v, want 175", got)
	}
	if got := d.CellY(9); got != 485 {
		t.Errorf("CellY(9) = %v, want 485", got)
	}
}

func TestDimensionsValidate(t *testing.T) {
	bad := []Dimensions{
		{Rows: 0, Cols: 5},
		{Rows: 5, Cols: -1},
		{Rows: 5, Cols: 5, ChunkRows: -2},
		{Rows: 5, Cols: 5, CellSize: -1},
	}
	for _, d := range bad {
		if err := d.withDefaults().Validate(); !errors.Is(err, ErrDimensions) {
			t.Errorf("Validate(%+v) = %v, want ErrDimensions", d, err)
		}
	}
}
