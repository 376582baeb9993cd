package raster

import (
	"fmt"

	"github.com/freeeve/chunkgrid/internal/store"
)

func (g *Grid[T]) key(c ChunkCoord, gen uint64) store.ChunkKey {
	return store.ChunkKey{Grid: g.name, Row: c.Row, Col: c.Col, Gen: gen}
}

// ensureResident returns the slot for c with its chunk in memory, loading it
// from the store or materializing Constant(no-data). Callers run it inside
// Guardian.Do.
func (g *Grid[T]) ensureResident(c ChunkCoord) (*slot[T], error) {
	s := g.dir.getOrCreate(c)
	if s.chunk != nil {
		g.guardian.touch(g.id, c)
		return s, nil
	}

	rows, cols := g.dims.ChunkShape(c)
	var ch Chunk[T]
	if s.persisted {
		data, ok, err := g.store.Load(g.key(c, s.gen))
		if err != nil {
			return nil, fmt.Errorf("load chunk %s: %w", c, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s%s listed but missing from store", ErrCorruptChunk, g.name, c)
		}
		if err := g.guardian.CheckAndMaybeFreeMemory(int64(len(data))); err != nil {
			return nil, err
		}
		ch, err = decodeChunk(g.kind, data, rows, cols)
		if err != nil {
			return nil, fmt.Errorf("%s%s: %w", g.name, c, err)
		}
		g.guardian.recordLoad()
	} else {
		if err := g.guardian.CheckAndMaybeFreeMemory(constantFootprint[T]()); err != nil {
			return nil, err
		}
		ch = NewConstantChunk(rows, cols, g.nodata)
	}

	if err := g.guardian.Alloc(ch.Footprint()); err != nil {
		return nil, err
	}
	g.install(s, ch)
	return s, nil
}

// install puts ch in s and reports its footprint to the guardian. Every chunk
// that enters memory or changes representation goes through here.
func (g *Grid[T]) install(s *slot[T], ch Chunk[T]) {
	g.dir.setChunk(s, ch)
	g.guardian.track(g.id, s.coord, ch.Footprint())
}

// Get returns the value at (row, col). Cells outside the grid read as
// no-data.
func (g *Grid[T]) Get(row, col int64) (T, error) {
	if g.closed {
		return g.nodata, ErrClosed
	}
	if !g.dims.Contains(row, col) {
		return g.nodata, nil
	}
	c, lr, lc := g.dims.ChunkOf(row, col)
	var v T
	err := g.guardian.Do(func() error {
		s, err := g.ensureResident(c)
		if err != nil {
			return err
		}
		v = s.chunk.Get(lr, lc)
		return nil
	})
	if err != nil {
		return g.nodata, err
	}
	return v, nil
}

// GetAt returns the value of the cell containing the point (x, y).
func (g *Grid[T]) GetAt(x, y float64) (T, error) {
	return g.Get(g.dims.RowAt(y), g.dims.ColAt(x))
}

// Set writes v at (row, col) and returns the previous value. Writes outside
// the grid are ignored and return no-data.
func (g *Grid[T]) Set(row, col int64, v T) (T, error) {
	return g.set(row, col, v, true)
}

// SetFast writes like Set but skips statistics tracking and marks the
// statistics stale instead. Use it for bulk loads and call Update afterwards.
func (g *Grid[T]) SetFast(row, col int64, v T) (T, error) {
	return g.set(row, col, v, false)
}

func (g *Grid[T]) set(row, col int64, v T, tracked bool) (T, error) {
	if g.closed {
		return g.nodata, ErrClosed
	}
	if !g.dims.Contains(row, col) {
		return g.nodata, nil
	}
	v = g.kind.Canonical(v)
	c, lr, lc := g.dims.ChunkOf(row, col)

	release := g.pins.Pin(c)
	defer release()

	var prev T
	var target *slot[T]
	err := g.guardian.Do(func() error {
		s, err := g.ensureResident(c)
		if err != nil {
			return err
		}
		target = s
		if growth := s.chunk.Growth(lr, lc, v); growth > 0 {
			if err := g.guardian.CheckAndMaybeFreeMemory(growth); err != nil {
				return err
			}
			if err := g.guardian.Alloc(growth); err != nil {
				return err
			}
		}

		before := s.chunk.Footprint()
		old, next := s.chunk.Set(lr, lc, v)
		if next != s.chunk || next.Footprint() != before {
			g.install(s, next)
		}
		prev = old
		return nil
	})
	if err != nil {
		return g.nodata, err
	}

	if prev != v {
		target.dirty = true
		if g.obs != nil {
			if tracked {
				g.obs.onWrite(prev, v)
			} else {
				g.obs.invalidate()
			}
		}
	}
	return prev, nil
}

// Fill sets every cell to v. Each chunk becomes Constant(v).
func (g *Grid[T]) Fill(v T) error {
	if g.closed {
		return ErrClosed
	}
	v = g.kind.Canonical(v)
	for c := range g.Chunks() {
		s := g.dir.getOrCreate(c)
		if k, ok := s.chunk.(*ConstantChunk[T]); ok && k.v == v {
			continue
		}
		if s.chunk == nil && !s.persisted && v == g.nodata {
			continue
		}
		rows, cols := g.dims.ChunkShape(c)
		ch := NewConstantChunk(rows, cols, v)
		err := g.guardian.Do(func() error {
			if s.chunk != nil {
				g.install(s, ch)
				return nil
			}
			if err := g.guardian.CheckAndMaybeFreeMemory(ch.Footprint()); err != nil {
				return err
			}
			if err := g.guardian.Alloc(ch.Footprint()); err != nil {
				return err
			}
			g.install(s, ch)
			return nil
		})
		if err != nil {
			return err
		}
		s.dirty = true
	}
	if g.obs != nil {
		g.obs.invalidate()
	}
	return nil
}

// persist encodes the chunk in s and writes it to the store under the working
// generation. The payload the saved header lists stays untouched.
func (g *Grid[T]) persist(s *slot[T]) error {
	data := encodeChunk(g.kind, s.chunk)
	if err := g.store.Store(g.key(s.coord, g.gen), data); err != nil {
		return fmt.Errorf("store chunk %s%s: %w", g.name, s.coord, err)
	}
	s.dirty = false
	s.persisted = true
	s.gen = g.gen
	g.guardian.recordPersist()
	return nil
}

func (g *Grid[T]) gridName() string { return g.name }

func (g *Grid[T]) victim(c ChunkCoord) (victimInfo, bool) {
	s, ok := g.dir.get(c)
	if !ok || s.chunk == nil {
		return victimInfo{}, false
	}
	return victimInfo{
		rep:    s.chunk.Representation(),
		dirty:  s.dirty,
		pinned: g.pins.Pinned(c),
	}, true
}

func (g *Grid[T]) evict(c ChunkCoord) error {
	s, ok := g.dir.get(c)
	if !ok || s.chunk == nil {
		return nil
	}
	if s.dirty {
		if err := g.persist(s); err != nil {
			return err
		}
	}
	g.dir.setChunk(s, nil)
	return nil
}

func (g *Grid[T]) flushDirty() (int, error) {
	n := 0
	for _, s := range g.dir.residentSlots() {
		if !s.dirty {
			continue
		}
		if err := g.persist(s); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
