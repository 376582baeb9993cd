package raster

// ConstantChunk holds one value for every cell.
type ConstantChunk[T comparable] struct {
	rows, cols int
	v          T
}

// NewConstantChunk returns a rows×cols chunk filled with v.
func NewConstantChunk[T comparable](rows, cols int, v T) *ConstantChunk[T] {
	return &ConstantChunk[T]{rows: rows, cols: cols, v: v}
}

func (k *ConstantChunk[T]) Rows() int                      { return k.rows }
func (k *ConstantChunk[T]) Cols() int                      { return k.cols }
func (k *ConstantChunk[T]) Representation() Representation { return Constant }
func (k *ConstantChunk[T]) Get(r, c int) T                 { return k.v }
func (k *ConstantChunk[T]) Value() T                       { return k.v }
func (k *ConstantChunk[T]) Footprint() int64               { return constantFootprint[T]() }
func (k *ConstantChunk[T]) sealed()                        {}

// Set converts to a SparseChunk whose default is the old constant, since a
// single differing write leaves the constant dominant.
func (k *ConstantChunk[T]) Set(r, c int, v T) (T, Chunk[T]) {
	if v == k.v {
		return k.v, k
	}
	sp := NewSparseChunk(k.rows, k.cols, k.v)
	sp.ex[int32(r*k.cols+c)] = v
	return k.v, sp
}

func (k *ConstantChunk[T]) Growth(r, c int, v T) int64 {
	if v == k.v {
		return 0
	}
	return sparseFootprint[T](1) - k.Footprint()
}

func (k *ConstantChunk[T]) Runs(fn func(v T, n int64)) {
	fn(k.v, int64(k.rows)*int64(k.cols))
}
