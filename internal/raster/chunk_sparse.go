package raster

// SparseChunk stores a default value plus the cells that differ from it,
// keyed by local row-major index.
type SparseChunk[T comparable] struct {
	rows, cols int
	def        T
	ex         map[int32]T
}

// NewSparseChunk returns a rows×cols chunk whose cells all equal def.
func NewSparseChunk[T comparable](rows, cols int, def T) *SparseChunk[T] {
	return &SparseChunk[T]{rows: rows, cols: cols, def: def, ex: make(map[int32]T)}
}

func (s *SparseChunk[T]) Rows() int                      { return s.rows }
func (s *SparseChunk[T]) Cols() int                      { return s.cols }
func (s *SparseChunk[T]) Representation() Representation { return Sparse }
func (s *SparseChunk[T]) Default() T                     { return s.def }
func (s *SparseChunk[T]) Exceptions() int                { return len(s.ex) }
func (s *SparseChunk[T]) Footprint() int64               { return sparseFootprint[T](len(s.ex)) }
func (s *SparseChunk[T]) sealed()                        {}

func (s *SparseChunk[T]) Get(r, c int) T {
	if v, ok := s.ex[int32(r*s.cols+c)]; ok {
		return v
	}
	return s.def
}

// Set inserts or removes an exception. Once the exceptions would outweigh a
// dense buffer, the chunk converts to Dense.
func (s *SparseChunk[T]) Set(r, c int, v T) (T, Chunk[T]) {
	i := int32(r*s.cols + c)
	prev, had := s.ex[i]
	if !had {
		prev = s.def
	}
	switch {
	case v == s.def:
		delete(s.ex, i)
	case had:
		s.ex[i] = v
	case sparseFootprint[T](len(s.ex)+1) > denseFootprint[T](s.rows, s.cols):
		d := toDense[T](s)
		d.vals[i] = v
		return prev, d
	default:
		s.ex[i] = v
	}
	return prev, s
}

func (s *SparseChunk[T]) Growth(r, c int, v T) int64 {
	i := int32(r*s.cols + c)
	if _, had := s.ex[i]; had || v == s.def {
		return 0
	}
	next := sparseFootprint[T](len(s.ex) + 1)
	if dense := denseFootprint[T](s.rows, s.cols); next > dense {
		return dense - s.Footprint()
	}
	return next - s.Footprint()
}

func (s *SparseChunk[T]) Runs(fn func(v T, n int64)) {
	if n := int64(s.rows)*int64(s.cols) - int64(len(s.ex)); n > 0 {
		fn(s.def, n)
	}
	for _, v := range s.ex {
		fn(v, 1)
	}
}
