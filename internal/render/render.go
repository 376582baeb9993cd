// Package render draws raster grids as PNG images. North is up; no-data
// cells are transparent.
package render

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/freeeve/chunkgrid/internal/raster"
)

// ErrTooLarge is returned when the image would exceed Options.MaxPixels.
var ErrTooLarge = errors.New("render: grid too large for an image")

// DefaultRamp runs from dark purple through teal to yellow.
var DefaultRamp = []colorful.Color{
	colorful.MustParseHex("#440154"),
	colorful.MustParseHex("#21918c"),
	colorful.MustParseHex("#fde725"),
}

// Options controls rendering.
type Options struct {
	Ramp      []colorful.Color // color stops, low to high; default DefaultRamp
	Classes   int              // >0 colors by equal-frequency class instead of min-max
	MaxPixels int64            // default 1<<26
}

func (o Options) withDefaults() Options {
	if len(o.Ramp) < 2 {
		o.Ramp = DefaultRamp
	}
	if o.MaxPixels == 0 {
		o.MaxPixels = 1 << 26
	}
	return o
}

func newImage(d raster.Dimensions, limit int64) (*image.NRGBA, error) {
	if d.Rows*d.Cols > limit {
		return nil, fmt.Errorf("%w: %dx%d cells, limit %d", ErrTooLarge, d.Rows, d.Cols, limit)
	}
	return image.NewNRGBA(image.Rect(0, 0, int(d.Cols), int(d.Rows))), nil
}

// PNG renders a numeric grid, scaling values between the grid's minimum and
// maximum, or by class when opts.Classes is set.
func PNG[T raster.Number](w io.Writer, grid *raster.NumericGrid[T], opts Options) error {
	opts = opts.withDefaults()
	d := grid.Dims()
	img, err := newImage(d, opts.MaxPixels)
	if err != nil {
		return err
	}

	scale, err := scaler(grid, opts)
	if err != nil {
		return err
	}

	nodata := grid.NoData()
	it := grid.Cells()
	defer it.Close()
	for it.Next() {
		v := it.Value()
		if v == nodata {
			continue
		}
		c := it.Cell()
		img.SetNRGBA(int(c.Col), int(d.Rows-1-c.Row), ramp(opts.Ramp, scale(v)))
	}
	if err := it.Err(); err != nil {
		return err
	}
	return encode(w, img)
}

// scaler maps a data value to a ramp position in [0, 1].
func scaler[T raster.Number](grid *raster.NumericGrid[T], opts Options) (func(T) float64, error) {
	if opts.Classes > 0 {
		cls, err := grid.EqualFrequencyClasses(opts.Classes)
		if err != nil {
			return nil, err
		}
		n := len(cls.Classes)
		return func(v T) float64 {
			i := cls.ClassOf(v)
			if i < 0 || n < 2 {
				return 0
			}
			return float64(i) / float64(n-1)
		}, nil
	}

	rec, err := grid.Current()
	if err != nil {
		return nil, err
	}
	lo, hi := float64(rec.Min), float64(rec.Max)
	return func(v T) float64 {
		if hi == lo {
			return 0.5
		}
		return (float64(v) - lo) / (hi - lo)
	}, nil
}

// Mask renders a boolean grid: True white, False black, Null transparent.
func Mask(w io.Writer, grid *raster.Grid[raster.Bool], maxPixels int64) error {
	if maxPixels == 0 {
		maxPixels = 1 << 26
	}
	d := grid.Dims()
	img, err := newImage(d, maxPixels)
	if err != nil {
		return err
	}
	it := grid.Cells()
	defer it.Close()
	for it.Next() {
		c := it.Cell()
		switch it.Value() {
		case raster.True:
			img.SetNRGBA(int(c.Col), int(d.Rows-1-c.Row), color.NRGBA{255, 255, 255, 255})
		case raster.False:
			img.SetNRGBA(int(c.Col), int(d.Rows-1-c.Row), color.NRGBA{0, 0, 0, 255})
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	return encode(w, img)
}

func ramp(stops []colorful.Color, t float64) color.NRGBA {
	t = min(max(t, 0), 1)
	seg := t * float64(len(stops)-1)
	i := int(seg)
	if i >= len(stops)-1 {
		i = len(stops) - 2
	}
	r, g, b := stops[i].BlendLab(stops[i+1], seg-float64(i)).Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

func encode(w io.Writer, img image.Image) error {
	bw := bufio.NewWriter(w)
	if err := png.Encode(bw, img); err != nil {
		return fmt.Errorf("render: encode png: %w", err)
	}
	return bw.Flush()
}
