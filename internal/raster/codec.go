package raster

import (
	"encoding/binary"
	"fmt"
	"slices"
)

// Chunk payload layout (all integers uvarint unless noted):
//
//	magic 'K' (1 byte) | version (1 byte) | representation (1 byte)
//	rows | cols | cell size
//	Constant: value
//	Dense:    rows*cols values, row-major
//	Sparse:   default value | n | n × (index, value), indices ascending
//
// Values use the grid Kind's fixed-width encoding.
const (
	codecMagic   = 'K'
	codecVersion = 1
)

func encodeChunk[T comparable](kind Kind[T], ch Chunk[T]) []byte {
	size := kind.Size()
	rows, cols := ch.Rows(), ch.Cols()

	buf := make([]byte, 0, 3+3*binary.MaxVarintLen64+int(ch.Footprint()))
	buf = append(buf, codecMagic, codecVersion, byte(ch.Representation()))
	buf = binary.AppendUvarint(buf, uint64(rows))
	buf = binary.AppendUvarint(buf, uint64(cols))
	buf = binary.AppendUvarint(buf, uint64(size))

	val := make([]byte, size)
	putVal := func(v T) {
		kind.Put(val, v)
		buf = append(buf, val...)
	}

	switch k := ch.(type) {
	case *ConstantChunk[T]:
		putVal(k.v)
	case *DenseChunk[T]:
		for _, v := range k.vals {
			putVal(v)
		}
	case *SparseChunk[T]:
		putVal(k.def)
		buf = binary.AppendUvarint(buf, uint64(len(k.ex)))
		idx := make([]int32, 0, len(k.ex))
		for i := range k.ex {
			idx = append(idx, i)
		}
		slices.Sort(idx)
		for _, i := range idx {
			buf = binary.AppendUvarint(buf, uint64(i))
			putVal(k.ex[i])
		}
	}
	return buf
}

// chunkDecoder walks a payload, recording the first error.
type chunkDecoder[T comparable] struct {
	kind Kind[T]
	data []byte
	err  error
}

func (d *chunkDecoder[T]) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s", ErrCorruptChunk, fmt.Sprintf(format, args...))
	}
}

func (d *chunkDecoder[T]) uvarint(what string) uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.data)
	if n <= 0 {
		d.fail("bad %s", what)
		return 0
	}
	d.data = d.data[n:]
	return v
}

func (d *chunkDecoder[T]) value() T {
	var zero T
	if d.err != nil {
		return zero
	}
	size := d.kind.Size()
	if len(d.data) < size {
		d.fail("value truncated: %d bytes left, need %d", len(d.data), size)
		return zero
	}
	v := d.kind.Get(d.data[:size])
	d.data = d.data[size:]
	return v
}

// decodeChunk parses a payload produced by encodeChunk. wantRows/wantCols
// are the shape the directory expects at this coordinate.
func decodeChunk[T comparable](kind Kind[T], data []byte, wantRows, wantCols int) (Chunk[T], error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("%w: payload too short: %d bytes", ErrCorruptChunk, len(data))
	}
	if data[0] != codecMagic || data[1] != codecVersion {
		return nil, fmt.Errorf("%w: bad header %#x %#x", ErrCorruptChunk, data[0], data[1])
	}
	rep := Representation(data[2])
	d := &chunkDecoder[T]{kind: kind, data: data[3:]}

	rows := d.uvarint("rows")
	cols := d.uvarint("cols")
	size := d.uvarint("cell size")
	if d.err != nil {
		return nil, d.err
	}
	if rows != uint64(wantRows) || cols != uint64(wantCols) {
		return nil, fmt.Errorf("%w: shape %dx%d, want %dx%d", ErrCorruptChunk, rows, cols, wantRows, wantCols)
	}
	if size != uint64(kind.Size()) {
		return nil, fmt.Errorf("%w: cell size %d, %s uses %d", ErrCorruptChunk, size, kind.Name(), kind.Size())
	}

	var ch Chunk[T]
	switch rep {
	case Constant:
		ch = NewConstantChunk(wantRows, wantCols, d.value())
	case Dense:
		cells := wantRows * wantCols
		if len(d.data) != cells*kind.Size() {
			return nil, fmt.Errorf("%w: dense payload %d bytes, want %d", ErrCorruptChunk, len(d.data), cells*kind.Size())
		}
		dc := &DenseChunk[T]{rows: wantRows, cols: wantCols, vals: make([]T, cells)}
		for i := range dc.vals {
			dc.vals[i] = d.value()
		}
		ch = dc
	case Sparse:
		sp := NewSparseChunk(wantRows, wantCols, d.value())
		n := d.uvarint("exception count")
		cells := uint64(wantRows * wantCols)
		if n > cells {
			d.fail("%d exceptions in %d cells", n, cells)
		}
		for j := uint64(0); j < n && d.err == nil; j++ {
			i := d.uvarint("exception index")
			v := d.value()
			if i >= cells {
				d.fail("exception index %d out of range", i)
			}
			sp.ex[int32(i)] = v
		}
		ch = sp
	default:
		return nil, fmt.Errorf("%w: unknown representation %d", ErrCorruptChunk, rep)
	}
	if d.err != nil {
		return nil, d.err
	}
	if len(d.data) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptChunk, len(d.data))
	}
	return ch, nil
}
