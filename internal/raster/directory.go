package raster

import (
	"github.com/google/btree"
)

// slot is the directory entry for one chunk coordinate. chunk is nil while
// the chunk is absent from memory.
type slot[T comparable] struct {
	coord     ChunkCoord
	chunk     Chunk[T]
	dirty     bool   // modified since last persisted (or since creation)
	persisted bool   // the backing store holds a payload for coord
	gen       uint64 // generation of that payload
	committed uint64 // generation listed in the saved header, 0 if none
}

// directory maps chunk coordinates to slots in row-major order. Coordinates
// that were never touched have no slot.
type directory[T comparable] struct {
	tree     *btree.BTreeG[*slot[T]]
	resident int
}

func newDirectory[T comparable]() *directory[T] {
	return &directory[T]{
		tree: btree.NewG(32, func(a, b *slot[T]) bool { return a.coord.less(b.coord) }),
	}
}

func (d *directory[T]) get(c ChunkCoord) (*slot[T], bool) {
	return d.tree.Get(&slot[T]{coord: c})
}

// getOrCreate returns the slot for c, adding an empty one if needed.
func (d *directory[T]) getOrCreate(c ChunkCoord) *slot[T] {
	if s, ok := d.get(c); ok {
		return s
	}
	s := &slot[T]{coord: c}
	d.tree.ReplaceOrInsert(s)
	return s
}

func (d *directory[T]) remove(c ChunkCoord) {
	d.tree.Delete(&slot[T]{coord: c})
}

// setChunk installs or clears the chunk of s, keeping the resident count.
func (d *directory[T]) setChunk(s *slot[T], ch Chunk[T]) {
	switch {
	case s.chunk == nil && ch != nil:
		d.resident++
	case s.chunk != nil && ch == nil:
		d.resident--
	}
	s.chunk = ch
}

// ascend visits slots in row-major order until fn returns false.
func (d *directory[T]) ascend(fn func(s *slot[T]) bool) {
	d.tree.Ascend(func(s *slot[T]) bool { return fn(s) })
}

// residentSlots returns the slots holding a chunk, row-major.
func (d *directory[T]) residentSlots() []*slot[T] {
	out := make([]*slot[T], 0, d.resident)
	d.ascend(func(s *slot[T]) bool {
		if s.chunk != nil {
			out = append(out, s)
		}
		return true
	})
	return out
}

func (d *directory[T]) len() int { return d.tree.Len() }
