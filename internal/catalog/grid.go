package catalog

import (
	"fmt"
	"io"
	"math"
	"math/big"

	"github.com/freeeve/chunkgrid/internal/esri"
	"github.com/freeeve/chunkgrid/internal/raster"
	"github.com/freeeve/chunkgrid/internal/render"
)

// Grid is an opened grid of any kind.
type Grid interface {
	Name() string
	Kind() string
	Dims() raster.Dimensions
	// Get formats one cell.
	Get(row, col int64) (string, error)
	// Set parses and writes one cell, returning the previous value.
	// "nodata" clears a numeric cell.
	Set(row, col int64, value string) (string, error)
	Summary() (Summary, error)
	Classes(n int) ([]Class, error)
	Render(w io.Writer, opts render.Options) error
	Export(w io.Writer) error
	Save() error
	Close()
}

// Summary describes the data cells of a numeric grid.
type Summary struct {
	Count    int64   `json:"count"`
	Sum      string  `json:"sum"`
	Mean     string  `json:"mean,omitempty"`
	StdDev   float64 `json:"stddev"`
	Min      string  `json:"min,omitempty"`
	MinCount int64   `json:"min_count,omitempty"`
	Max      string  `json:"max,omitempty"`
	MaxCount int64   `json:"max_count,omitempty"`
	// Rescanned is set when the record was stale and had to be recomputed.
	Rescanned bool `json:"rescanned"`
}

// Class is one equal-frequency class.
type Class struct {
	Min      string `json:"min"`
	Max      string `json:"max"`
	Count    int64  `json:"count"`
	Distinct int    `json:"distinct"`
}

type numericGrid[T raster.Number] struct {
	g *raster.NumericGrid[T]
}

func wrap[T raster.Number](g *raster.NumericGrid[T], err error) (Grid, error) {
	if err != nil {
		return nil, err
	}
	return numericGrid[T]{g}, nil
}

func (n numericGrid[T]) Name() string            { return n.g.Name() }
func (n numericGrid[T]) Kind() string            { return n.g.Kind().Name() }
func (n numericGrid[T]) Dims() raster.Dimensions { return n.g.Dims() }
func (n numericGrid[T]) Save() error             { return n.g.Save() }
func (n numericGrid[T]) Close()                  { n.g.Close() }

func (n numericGrid[T]) Export(w io.Writer) error {
	return esri.Export(w, n.g.Grid)
}

func (n numericGrid[T]) Render(w io.Writer, opts render.Options) error {
	return render.PNG(w, n.g, opts)
}

func (n numericGrid[T]) Get(row, col int64) (string, error) {
	v, err := n.g.Get(row, col)
	if err != nil {
		return "", err
	}
	return n.g.Kind().Format(v), nil
}

func (n numericGrid[T]) Set(row, col int64, value string) (string, error) {
	kind := n.g.Kind()
	v := n.g.NoData()
	if value != "nodata" {
		var err error
		if v, err = kind.Parse(value); err != nil {
			return "", fmt.Errorf("parse %s value %q: %w", kind.Name(), value, err)
		}
	}
	prev, err := n.g.Set(row, col, v)
	if err != nil {
		return "", err
	}
	return kind.Format(prev), nil
}

func (n numericGrid[T]) Summary() (Summary, error) {
	s := Summary{Rescanned: !n.g.Record().Fresh}
	r, err := n.g.Current()
	if err != nil {
		return s, err
	}
	kind := n.g.Kind()
	s.Count, s.Sum = r.Count, r.Sum.RatString()
	if r.Count == 0 {
		return s, nil
	}
	s.Min, s.MinCount = kind.Format(r.Min), r.MinCount
	s.Max, s.MaxCount = kind.Format(r.Max), r.MaxCount
	mean, err := r.Mean()
	if err != nil {
		return s, err
	}
	s.Mean = formatRat(mean)
	if s.StdDev, err = n.g.StandardDeviation(); err != nil {
		return s, err
	}
	return s, nil
}

// formatRat prints r exactly when it is an integer, otherwise to float64
// precision.
func formatRat(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	f, _ := r.Float64()
	if math.IsInf(f, 0) {
		return r.FloatString(6)
	}
	return fmt.Sprint(f)
}

func (n numericGrid[T]) Classes(k int) ([]Class, error) {
	c, err := n.g.EqualFrequencyClasses(k)
	if err != nil {
		return nil, err
	}
	kind := n.g.Kind()
	out := make([]Class, len(c.Classes))
	for i, cl := range c.Classes {
		out[i] = Class{
			Min:      kind.Format(cl.Min),
			Max:      kind.Format(cl.Max),
			Count:    cl.Count,
			Distinct: cl.Distinct,
		}
	}
	return out, nil
}

type boolGrid struct {
	g *raster.Grid[raster.Bool]
}

func (b boolGrid) Name() string                 { return b.g.Name() }
func (b boolGrid) Kind() string                 { return "bool" }
func (b boolGrid) Dims() raster.Dimensions      { return b.g.Dims() }
func (b boolGrid) Save() error                  { return b.g.Save() }
func (b boolGrid) Close()                       { b.g.Close() }
func (b boolGrid) Export(io.Writer) error       { return ErrNotNumeric }
func (b boolGrid) Summary() (Summary, error)    { return Summary{}, ErrNotNumeric }
func (b boolGrid) Classes(int) ([]Class, error) { return nil, ErrNotNumeric }

func (b boolGrid) Render(w io.Writer, opts render.Options) error {
	return render.Mask(w, b.g, opts.MaxPixels)
}

func (b boolGrid) Get(row, col int64) (string, error) {
	v, err := b.g.Get(row, col)
	return v.String(), err
}

func (b boolGrid) Set(row, col int64, value string) (string, error) {
	v, err := raster.BoolKind{}.Parse(value)
	if err != nil {
		return "", err
	}
	prev, err := b.g.Set(row, col, v)
	return prev.String(), err
}
