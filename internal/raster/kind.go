package raster

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Number is the set of numeric cell types that carry statistics.
type Number interface {
	~int32 | ~int64 | ~float32 | ~float64
}

// Kind describes how cells of type T are stored: the no-data value, the
// fixed-width binary encoding used by the chunk codec, and the text form used
// by metadata and ASCII import/export.
type Kind[T comparable] interface {
	Name() string
	NoData() T
	// Canonical maps values the grid cannot hold (NaN, ±Inf) to NoData.
	Canonical(v T) T
	Size() int
	Put(b []byte, v T)
	Get(b []byte) T
	Format(v T) string
	Parse(s string) (T, error)
}

// DefaultFloatNoData is the conventional sentinel for float grids.
const DefaultFloatNoData = -math.MaxFloat64

// Float64Kind stores float64 cells with a no-data sentinel.
type Float64Kind struct {
	NoDataValue float64
}

func (Float64Kind) Name() string      { return "float64" }
func (k Float64Kind) NoData() float64 { return k.NoDataValue }
func (Float64Kind) Size() int         { return 8 }
func (Float64Kind) Put(b []byte, v float64) {
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
}
func (Float64Kind) Get(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}
func (k Float64Kind) Canonical(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return k.NoDataValue
	}
	return v
}
func (Float64Kind) Format(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
func (Float64Kind) Parse(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// Float32Kind stores float32 cells with a no-data sentinel.
type Float32Kind struct {
	NoDataValue float32
}

func (Float32Kind) Name() string      { return "float32" }
func (k Float32Kind) NoData() float32 { return k.NoDataValue }
func (Float32Kind) Size() int         { return 4 }
func (Float32Kind) Put(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}
func (Float32Kind) Get(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
func (k Float32Kind) Canonical(v float32) float32 {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return k.NoDataValue
	}
	return v
}
func (Float32Kind) Format(v float32) string { return strconv.FormatFloat(float64(v), 'g', -1, 32) }
func (Float32Kind) Parse(s string) (float32, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	return float32(f), err
}

// Int32Kind stores int32 cells with a no-data sentinel.
type Int32Kind struct {
	NoDataValue int32
}

func (Int32Kind) Name() string            { return "int32" }
func (k Int32Kind) NoData() int32         { return k.NoDataValue }
func (Int32Kind) Canonical(v int32) int32 { return v }
func (Int32Kind) Size() int               { return 4 }
func (Int32Kind) Put(b []byte, v int32)   { binary.LittleEndian.PutUint32(b, uint32(v)) }
func (Int32Kind) Get(b []byte) int32      { return int32(binary.LittleEndian.Uint32(b)) }
func (Int32Kind) Format(v int32) string   { return strconv.FormatInt(int64(v), 10) }
func (Int32Kind) Parse(s string) (int32, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	return int32(n), err
}

// Int64Kind stores int64 cells with a no-data sentinel.
type Int64Kind struct {
	NoDataValue int64
}

func (Int64Kind) Name() string            { return "int64" }
func (k Int64Kind) NoData() int64         { return k.NoDataValue }
func (Int64Kind) Canonical(v int64) int64 { return v }
func (Int64Kind) Size() int               { return 8 }
func (Int64Kind) Put(b []byte, v int64)   { binary.LittleEndian.PutUint64(b, uint64(v)) }
func (Int64Kind) Get(b []byte) int64      { return int64(binary.LittleEndian.Uint64(b)) }
func (Int64Kind) Format(v int64) string   { return strconv.FormatInt(v, 10) }
func (Int64Kind) Parse(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

// Bool is a tri-state cell value. The zero value is Null, the boolean
// grid's equivalent of no-data.
type Bool int8

const (
	Null Bool = iota
	False
	True
)

// BoolOf converts a Go bool.
func BoolOf(b bool) Bool {
	if b {
		return True
	}
	return False
}

func (b Bool) String() string {
	switch b {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "null"
	}
}

// BoolKind stores tri-state Bool cells, one byte each.
type BoolKind struct{}

func (BoolKind) Name() string         { return "bool" }
func (BoolKind) NoData() Bool         { return Null }
func (BoolKind) Size() int            { return 1 }
func (BoolKind) Put(b []byte, v Bool) { b[0] = byte(v) }
func (BoolKind) Get(b []byte) Bool    { return Bool(b[0]) }
func (BoolKind) Format(v Bool) string { return v.String() }
func (BoolKind) Canonical(v Bool) Bool {
	if v != True && v != False {
		return Null
	}
	return v
}
func (BoolKind) Parse(s string) (Bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "t":
		return True, nil
	case "0", "false", "f":
		return False, nil
	case "", "null", "nodata":
		return Null, nil
	}
	return Null, fmt.Errorf("parse bool %q", s)
}

// validateKind rejects no-data values that cannot be compared with ==.
func validateKind[T comparable](kind Kind[T]) error {
	nd := kind.NoData()
	if nd != nd {
		return fmt.Errorf("%w: %s no-data value must not be NaN", ErrKindMismatch, kind.Name())
	}
	return nil
}
