package raster

import "unsafe"

// Representation identifies a chunk variant.
type Representation uint8

const (
	Constant Representation = iota + 1
	Dense
	Sparse
)

func (r Representation) String() string {
	switch r {
	case Constant:
		return "constant"
	case Dense:
		return "dense"
	case Sparse:
		return "sparse"
	default:
		return "unknown"
	}
}

// Footprint estimates, in bytes.
const (
	chunkOverhead    = 64 // struct, slot and directory node share
	sparseEntryBytes = 24 // map key + bucket overhead, excluding the value
)

// Chunk is one rectangular tile of a grid. The variants are ConstantChunk,
// DenseChunk and SparseChunk; no other implementations exist.
//
// Set never changes a chunk's variant in place. When a write needs another
// representation, Set returns the replacement as next and leaves the receiver
// untouched; the caller installs next in the directory.
type Chunk[T comparable] interface {
	Rows() int
	Cols() int
	Representation() Representation
	Get(r, c int) T
	Set(r, c int, v T) (prev T, next Chunk[T])
	// Growth is the number of bytes Set(r, c, v) would add to Footprint.
	Growth(r, c int, v T) int64
	Footprint() int64
	// Runs calls fn for runs of equal values covering every cell exactly once.
	Runs(fn func(v T, n int64))
	sealed()
}

func cellBytes[T any]() int64 {
	var v T
	return int64(unsafe.Sizeof(v))
}

func constantFootprint[T any]() int64 {
	return chunkOverhead + cellBytes[T]()
}

func denseFootprint[T any](rows, cols int) int64 {
	return chunkOverhead + int64(rows)*int64(cols)*cellBytes[T]()
}

func sparseFootprint[T any](exceptions int) int64 {
	return chunkOverhead + cellBytes[T]() + int64(exceptions)*(sparseEntryBytes+cellBytes[T]())
}

// Compact returns the smallest representation of ch's contents, or ch itself
// when it is already the smallest. The dominant value of a Sparse result is
// the most frequent value.
func Compact[T comparable](ch Chunk[T]) Chunk[T] {
	rows, cols := ch.Rows(), ch.Cols()
	cells := int64(rows) * int64(cols)

	counts := make(map[T]int64)
	ch.Runs(func(v T, n int64) { counts[v] += n })

	var dominant T
	var best int64 = -1
	for v, n := range counts {
		if n > best {
			dominant, best = v, n
		}
	}

	if best == cells {
		if ch.Representation() == Constant {
			return ch
		}
		return NewConstantChunk(rows, cols, dominant)
	}

	sparseSize := sparseFootprint[T](int(cells - best))
	denseSize := denseFootprint[T](rows, cols)
	if sparseSize < denseSize {
		if sp, ok := ch.(*SparseChunk[T]); ok && sp.def == dominant {
			return ch
		}
		sp := NewSparseChunk(rows, cols, dominant)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				if v := ch.Get(r, c); v != dominant {
					sp.ex[int32(r*cols+c)] = v
				}
			}
		}
		return sp
	}
	if ch.Representation() == Dense {
		return ch
	}
	return toDense(ch)
}

// toDense materializes any chunk as a DenseChunk.
func toDense[T comparable](ch Chunk[T]) *DenseChunk[T] {
	rows, cols := ch.Rows(), ch.Cols()
	d := &DenseChunk[T]{rows: rows, cols: cols, vals: make([]T, rows*cols)}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			d.vals[r*cols+c] = ch.Get(r, c)
		}
	}
	return d
}
