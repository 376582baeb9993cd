package raster

import (
	"fmt"
	"math"
)

// ChunkCoord addresses a chunk within a grid.
type ChunkCoord struct {
	Row int64 `json:"row"`
	Col int64 `json:"col"`
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("(%d,%d)", c.Row, c.Col)
}

// less orders chunk coordinates row-major.
func (c ChunkCoord) less(o ChunkCoord) bool {
	if c.Row != o.Row {
		return c.Row < o.Row
	}
	return c.Col < o.Col
}

// Cell addresses a cell within a grid.
type Cell struct {
	Row int64
	Col int64
}

// Rect is a half-open cell rectangle [Row0, Row1) × [Col0, Col1).
type Rect struct {
	Row0, Col0 int64
	Row1, Col1 int64
}

// Empty reports whether the rectangle holds no cells.
func (r Rect) Empty() bool {
	return r.Row1 <= r.Row0 || r.Col1 <= r.Col0
}

// Intersect clips r to o.
func (r Rect) Intersect(o Rect) Rect {
	r.Row0 = max(r.Row0, o.Row0)
	r.Col0 = max(r.Col0, o.Col0)
	r.Row1 = min(r.Row1, o.Row1)
	r.Col1 = min(r.Col1, o.Col1)
	return r
}

// Dimensions describes a grid's shape, chunking and spatial frame. Row 0 is
// the southernmost row; cell (r, c) covers
// [XMin + c*CellSize, XMin + (c+1)*CellSize) × [YMin + r*CellSize, YMin + (r+1)*CellSize).
type Dimensions struct {
	Rows      int64   `json:"rows"`
	Cols      int64   `json:"cols"`
	ChunkRows int     `json:"chunk_rows"`
	ChunkCols int     `json:"chunk_cols"`
	XMin      float64 `json:"xmin"`
	YMin      float64 `json:"ymin"`
	CellSize  float64 `json:"cell_size"`
}

const defaultChunkSize = 256

// withDefaults fills unset chunk and cell sizes.
func (d Dimensions) withDefaults() Dimensions {
	if d.ChunkRows == 0 {
		d.ChunkRows = defaultChunkSize
	}
	if d.ChunkCols == 0 {
		d.ChunkCols = defaultChunkSize
	}
	if d.CellSize == 0 {
		d.CellSize = 1
	}
	return d
}

// Validate checks that the dimensions describe a usable grid.
func (d Dimensions) Validate() error {
	switch {
	case d.Rows <= 0 || d.Cols <= 0:
		return fmt.Errorf("%w: %d rows x %d cols", ErrDimensions, d.Rows, d.Cols)
	case d.ChunkRows <= 0 || d.ChunkCols <= 0:
		return fmt.Errorf("%w: chunk %dx%d", ErrDimensions, d.ChunkRows, d.ChunkCols)
	case int64(d.ChunkRows)*int64(d.ChunkCols) > math.MaxInt32:
		return fmt.Errorf("%w: chunk %dx%d holds too many cells", ErrDimensions, d.ChunkRows, d.ChunkCols)
	case !(d.CellSize > 0) || math.IsInf(d.CellSize, 0):
		return fmt.Errorf("%w: cell size %v", ErrDimensions, d.CellSize)
	}
	return nil
}

// Bounds returns the rectangle covering the whole grid.
func (d Dimensions) Bounds() Rect {
	return Rect{Row1: d.Rows, Col1: d.Cols}
}

// Contains reports whether (row, col) lies inside the grid.
func (d Dimensions) Contains(row, col int64) bool {
	return row >= 0 && row < d.Rows && col >= 0 && col < d.Cols
}

// Cells returns the number of cells in the grid.
func (d Dimensions) Cells() int64 {
	return d.Rows * d.Cols
}

// ChunkGridRows returns the number of chunk rows (the last may be short).
func (d Dimensions) ChunkGridRows() int64 {
	return (d.Rows + int64(d.ChunkRows) - 1) / int64(d.ChunkRows)
}

// ChunkGridCols returns the number of chunk columns (the last may be narrow).
func (d Dimensions) ChunkGridCols() int64 {
	return (d.Cols + int64(d.ChunkCols) - 1) / int64(d.ChunkCols)
}

// ChunkCount returns the total number of chunk coordinates.
func (d Dimensions) ChunkCount() int64 {
	return d.ChunkGridRows() * d.ChunkGridCols()
}

func (d Dimensions) ChunkRowOf(row int64) int64 { return row / int64(d.ChunkRows) }
func (d Dimensions) ChunkColOf(col int64) int64 { return col / int64(d.ChunkCols) }
func (d Dimensions) LocalRowOf(row int64) int   { return int(row % int64(d.ChunkRows)) }
func (d Dimensions) LocalColOf(col int64) int   { return int(col % int64(d.ChunkCols)) }

// GlobalRow reverses ChunkRowOf/LocalRowOf.
func (d Dimensions) GlobalRow(chunkRow int64, localRow int) int64 {
	return chunkRow*int64(d.ChunkRows) + int64(localRow)
}

// GlobalCol reverses ChunkColOf/LocalColOf.
func (d Dimensions) GlobalCol(chunkCol int64, localCol int) int64 {
	return chunkCol*int64(d.ChunkCols) + int64(localCol)
}

// ChunkOf returns the chunk holding (row, col) and the cell's local position.
func (d Dimensions) ChunkOf(row, col int64) (ChunkCoord, int, int) {
	return ChunkCoord{Row: d.ChunkRowOf(row), Col: d.ChunkColOf(col)}, d.LocalRowOf(row), d.LocalColOf(col)
}

// ChunkShape returns the row and column count of the chunk at c; edge chunks
// are shorter and narrower when the grid is not a multiple of the chunk size.
func (d Dimensions) ChunkShape(c ChunkCoord) (rows, cols int) {
	rows = d.ChunkRows
	if rem := d.Rows - c.Row*int64(d.ChunkRows); rem < int64(rows) {
		rows = int(rem)
	}
	cols = d.ChunkCols
	if rem := d.Cols - c.Col*int64(d.ChunkCols); rem < int64(cols) {
		cols = int(rem)
	}
	return rows, cols
}

// ChunkRect returns the cell rectangle covered by chunk c.
func (d Dimensions) ChunkRect(c ChunkCoord) Rect {
	rows, cols := d.ChunkShape(c)
	r0 := c.Row * int64(d.ChunkRows)
	c0 := c.Col * int64(d.ChunkCols)
	return Rect{Row0: r0, Col0: c0, Row1: r0 + int64(rows), Col1: c0 + int64(cols)}
}

// validChunk reports whether c addresses a chunk of the grid.
func (d Dimensions) validChunk(c ChunkCoord) bool {
	return c.Row >= 0 && c.Row < d.ChunkGridRows() && c.Col >= 0 && c.Col < d.ChunkGridCols()
}

// RowAt returns the row containing y; it may lie outside the grid.
func (d Dimensions) RowAt(y float64) int64 {
	return int64(math.Floor((y - d.YMin) / d.CellSize))
}

// ColAt returns the column containing x; it may lie outside the grid.
func (d Dimensions) ColAt(x float64) int64 {
	return int64(math.Floor((x - d.XMin) / d.CellSize))
}

// CellX returns the x coordinate of the centre of column col.
func (d Dimensions) CellX(col int64) float64 {
	return d.XMin + (float64(col)+0.5)*d.CellSize
}

// CellY returns the y coordinate of the centre of row row.
func (d Dimensions) CellY(row int64) float64 {
	return d.YMin + (float64(row)+0.5)*d.CellSize
}
