package raster

// DenseChunk stores one value per cell, row-major.
type DenseChunk[T comparable] struct {
	rows, cols int
	vals       []T
}

// NewDenseChunk returns a rows×cols chunk with every cell set to fill.
func NewDenseChunk[T comparable](rows, cols int, fill T) *DenseChunk[T] {
	d := &DenseChunk[T]{rows: rows, cols: cols, vals: make([]T, rows*cols)}
	var zero T
	if fill != zero {
		for i := range d.vals {
			d.vals[i] = fill
		}
	}
	return d
}

func (d *DenseChunk[T]) Rows() int                      { return d.rows }
func (d *DenseChunk[T]) Cols() int                      { return d.cols }
func (d *DenseChunk[T]) Representation() Representation { return Dense }
func (d *DenseChunk[T]) Get(r, c int) T                 { return d.vals[r*d.cols+c] }
func (d *DenseChunk[T]) Growth(r, c int, v T) int64     { return 0 }
func (d *DenseChunk[T]) Footprint() int64               { return denseFootprint[T](d.rows, d.cols) }
func (d *DenseChunk[T]) sealed()                        {}

func (d *DenseChunk[T]) Set(r, c int, v T) (T, Chunk[T]) {
	i := r*d.cols + c
	prev := d.vals[i]
	d.vals[i] = v
	return prev, d
}

// Runs groups consecutive equal cells so uniform rows cost one callback.
func (d *DenseChunk[T]) Runs(fn func(v T, n int64)) {
	if len(d.vals) == 0 {
		return
	}
	cur, n := d.vals[0], int64(1)
	for _, v := range d.vals[1:] {
		if v == cur {
			n++
			continue
		}
		fn(cur, n)
		cur, n = v, 1
	}
	fn(cur, n)
}
