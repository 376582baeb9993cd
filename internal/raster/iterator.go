package raster

import "iter"

// Chunks yields every chunk coordinate of the grid in row-major order.
func (g *Grid[T]) Chunks() iter.Seq[ChunkCoord] {
	return func(yield func(ChunkCoord) bool) {
		rows, cols := g.dims.ChunkGridRows(), g.dims.ChunkGridCols()
		for r := int64(0); r < rows; r++ {
			for c := int64(0); c < cols; c++ {
				if !yield(ChunkCoord{Row: r, Col: c}) {
					return
				}
			}
		}
	}
}

// CellIterator walks every cell of a grid, chunk by chunk in row-major chunk
// order and row-major within each chunk. The chunk under the cursor is pinned
// until the iterator moves past it or is closed.
//
//	it := grid.Cells()
//	defer it.Close()
//	for it.Next() {
//		use(it.Cell(), it.Value())
//	}
//	if err := it.Err(); err != nil { ... }
//
// The iterator cannot be restarted. Calling Next again after it returned
// false panics, including after Close.
type CellIterator[T comparable] struct {
	g *Grid[T]

	idx, total int64
	gridCols   int64

	s          *slot[T]
	coord      ChunkCoord
	rows, cols int
	lr, lc     int
	release    func()

	exhausted bool
	closed    bool
	err       error
}

// Cells returns an iterator over every cell of the grid.
func (g *Grid[T]) Cells() *CellIterator[T] {
	return &CellIterator[T]{
		g:        g,
		total:    g.dims.ChunkCount(),
		gridCols: g.dims.ChunkGridCols(),
	}
}

// Next advances to the next cell, loading the next chunk when the current
// one is used up. It returns false at the end or on error.
func (it *CellIterator[T]) Next() bool {
	if it.exhausted {
		panic("raster: CellIterator.Next called after iteration ended")
	}
	if it.closed {
		it.exhausted = true
		return false
	}
	for {
		if it.s != nil {
			it.lc++
			if it.lc == it.cols {
				it.lc = 0
				it.lr++
			}
			if it.lr < it.rows {
				return true
			}
			it.releaseChunk()
		}
		if it.idx >= it.total {
			it.finish()
			return false
		}
		if err := it.advance(); err != nil {
			it.err = err
			it.finish()
			return false
		}
	}
}

// advance pins and loads the next chunk and positions the cursor just
// before its first cell.
func (it *CellIterator[T]) advance() error {
	g := it.g
	if g.closed {
		return ErrClosed
	}
	c := ChunkCoord{Row: it.idx / it.gridCols, Col: it.idx % it.gridCols}
	it.idx++

	release := g.pins.Pin(c)
	var s *slot[T]
	err := g.guardian.Do(func() error {
		var err error
		s, err = g.ensureResident(c)
		return err
	})
	if err != nil {
		release()
		return err
	}
	it.s = s
	it.coord = c
	it.release = release
	it.rows, it.cols = g.dims.ChunkShape(c)
	it.lr, it.lc = 0, -1
	return nil
}

func (it *CellIterator[T]) releaseChunk() {
	if it.release != nil {
		it.release()
		it.release = nil
	}
	it.s = nil
}

func (it *CellIterator[T]) finish() {
	it.releaseChunk()
	it.exhausted = true
}

// Cell returns the coordinates of the current cell.
func (it *CellIterator[T]) Cell() Cell {
	if it.s == nil {
		panic("raster: CellIterator.Cell called without a current cell")
	}
	return Cell{
		Row: it.g.dims.GlobalRow(it.coord.Row, it.lr),
		Col: it.g.dims.GlobalCol(it.coord.Col, it.lc),
	}
}

// Value returns the value of the current cell. It reads through the
// directory slot so writes made during iteration are visible.
func (it *CellIterator[T]) Value() T {
	if it.s == nil {
		panic("raster: CellIterator.Value called without a current cell")
	}
	return it.s.chunk.Get(it.lr, it.lc)
}

// Err returns the error that ended iteration, if any.
func (it *CellIterator[T]) Err() error { return it.err }

// Close releases the current pin. The next call to Next returns false and
// any later one panics.
func (it *CellIterator[T]) Close() {
	it.releaseChunk()
	it.closed = true
}
