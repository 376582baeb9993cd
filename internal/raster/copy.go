package raster

import (
	"fmt"
	"maps"
)

// copyChunk returns an independent copy of ch.
func copyChunk[T comparable](ch Chunk[T]) Chunk[T] {
	switch k := ch.(type) {
	case *ConstantChunk[T]:
		return NewConstantChunk(k.rows, k.cols, k.v)
	case *DenseChunk[T]:
		d := &DenseChunk[T]{rows: k.rows, cols: k.cols, vals: make([]T, len(k.vals))}
		copy(d.vals, k.vals)
		return d
	case *SparseChunk[T]:
		return &SparseChunk[T]{rows: k.rows, cols: k.cols, def: k.def, ex: maps.Clone(k.ex)}
	}
	panic(fmt.Sprintf("raster: unknown chunk type %T", ch))
}

// Clone creates a new grid named cfg.Name with the dimensions and contents
// of src. Chunks are copied whole, keeping their representation.
func Clone[T comparable](src *Grid[T], cfg Config) (*Grid[T], error) {
	if src.closed {
		return nil, ErrClosed
	}
	cfg.Dims = src.dims
	dst, err := New(src.guardian, src.kind, cfg)
	if err != nil {
		return nil, err
	}
	if err := cloneChunks(src, dst); err != nil {
		dst.Close()
		return nil, err
	}
	return dst, nil
}

func cloneChunks[T comparable](src, dst *Grid[T]) error {
	for c := range src.Chunks() {
		s, ok := src.dir.get(c)
		if !ok || (s.chunk == nil && !s.persisted) {
			continue
		}
		release := src.pins.Pin(c)
		err := src.guardian.Do(func() error {
			s, err := src.ensureResident(c)
			if err != nil {
				return err
			}
			fp := s.chunk.Footprint()
			if err := dst.guardian.CheckAndMaybeFreeMemory(fp); err != nil {
				return err
			}
			if err := dst.guardian.Alloc(fp); err != nil {
				return err
			}
			d := dst.dir.getOrCreate(c)
			dst.install(d, copyChunk(s.chunk))
			d.dirty = true
			return nil
		})
		release()
		if err != nil {
			return err
		}
	}
	return nil
}

// CloneNumeric clones a numeric grid. A fresh statistics record is copied;
// a stale one leaves the clone stale too.
func CloneNumeric[T Number](src *NumericGrid[T], policy StatsPolicy, cfg Config) (*NumericGrid[T], error) {
	grid, err := Clone(src.Grid, cfg)
	if err != nil {
		return nil, err
	}
	ng := attachStats(grid, policy)
	if !src.stats.fresh() {
		ng.stats.invalidate()
		return ng, nil
	}
	r := src.stats.snapshot()
	acc := newAccumulator(grid.nodata)
	acc.count = r.Count
	acc.sum.Set(r.Sum)
	acc.min, acc.minCount = r.Min, r.MinCount
	acc.max, acc.maxCount = r.Max, r.MaxCount
	ng.stats.reset(acc)
	return ng, nil
}

// CopyRect copies the cells of src inside rect to dst, placing rect's
// origin at (dstRow, dstCol). No-data in src becomes no-data in dst; cells
// landing outside dst are dropped. Writes skip statistics tracking, so a
// numeric dst is stale afterwards. When src and dst are the same grid the
// source and destination rectangles must not overlap.
func CopyRect[T comparable](dst, src *Grid[T], rect Rect, dstRow, dstCol int64) error {
	if src.closed || dst.closed {
		return ErrClosed
	}
	rect = rect.Intersect(src.dims.Bounds())
	if rect.Empty() {
		return nil
	}
	dr, dc := dstRow-rect.Row0, dstCol-rect.Col0
	if src == dst {
		moved := Rect{Row0: rect.Row0 + dr, Col0: rect.Col0 + dc, Row1: rect.Row1 + dr, Col1: rect.Col1 + dc}
		if !rect.Intersect(moved).Empty() {
			return fmt.Errorf("%w: overlapping copy within %s", ErrDimensions, src.name)
		}
	}

	r0, r1 := src.dims.ChunkRowOf(rect.Row0), src.dims.ChunkRowOf(rect.Row1-1)
	c0, c1 := src.dims.ChunkColOf(rect.Col0), src.dims.ChunkColOf(rect.Col1-1)
	for cr := r0; cr <= r1; cr++ {
		for cc := c0; cc <= c1; cc++ {
			c := ChunkCoord{Row: cr, Col: cc}
			if err := copyChunkCells(dst, src, c, rect, dr, dc); err != nil {
				return err
			}
		}
	}
	return nil
}

// copyChunkCells copies the part of rect inside source chunk c. The source
// chunk stays pinned while dst writes may trigger eviction.
func copyChunkCells[T comparable](dst, src *Grid[T], c ChunkCoord, rect Rect, dr, dc int64) error {
	release := src.pins.Pin(c)
	defer release()

	var s *slot[T]
	err := src.guardian.Do(func() error {
		var err error
		s, err = src.ensureResident(c)
		return err
	})
	if err != nil {
		return err
	}

	part := src.dims.ChunkRect(c).Intersect(rect)
	for row := part.Row0; row < part.Row1; row++ {
		for col := part.Col0; col < part.Col1; col++ {
			v := s.chunk.Get(src.dims.LocalRowOf(row), src.dims.LocalColOf(col))
			if v == src.nodata {
				v = dst.nodata
			}
			if _, err := dst.SetFast(row+dr, col+dc, v); err != nil {
				return err
			}
		}
	}
	return nil
}
