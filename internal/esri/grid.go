package esri

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/freeeve/chunkgrid/internal/raster"
	"github.com/freeeve/chunkgrid/internal/store"
)

// ImportConfig configures Import.
type ImportConfig struct {
	Name      string
	ChunkRows int // default 256
	ChunkCols int // default 256
	Store     store.Store
	Policy    raster.StatsPolicy
	Logger    *zerolog.Logger
}

// Import reads an ESRI ASCII grid into a new numeric grid registered with g.
// Cells matching the file's NODATA_value become the kind's no-data value.
// The load bypasses per-cell statistics and rescans once at the end.
func Import[T raster.Number](r io.Reader, g *raster.Guardian, kind raster.Kind[T], cfg ImportConfig) (*raster.NumericGrid[T], error) {
	rd, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	return ImportFrom(rd, g, kind, cfg)
}

// ImportFrom is Import for a reader whose header was already parsed.
func ImportFrom[T raster.Number](rd *Reader, g *raster.Guardian, kind raster.Kind[T], cfg ImportConfig) (*raster.NumericGrid[T], error) {
	h := rd.Header()

	grid, err := raster.NewNumeric(g, kind, cfg.Policy, raster.Config{
		Name:   cfg.Name,
		Store:  cfg.Store,
		Logger: cfg.Logger,
		Dims: raster.Dimensions{
			Rows:      h.Rows,
			Cols:      h.Cols,
			ChunkRows: cfg.ChunkRows,
			ChunkCols: cfg.ChunkCols,
			XMin:      h.XLLCorner,
			YMin:      h.YLLCorner,
			CellSize:  h.CellSize,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := load(rd, grid, kind); err != nil {
		grid.Close()
		return nil, err
	}
	return grid, nil
}

func load[T raster.Number](rd *Reader, grid *raster.NumericGrid[T], kind raster.Kind[T]) error {
	h := rd.Header()
	b := grid.Bulk()
	for {
		row, col, tok, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if h.IsNoData(tok) {
			continue
		}
		v, err := kind.Parse(tok)
		if err != nil {
			return &ParseError{Line: rd.Line(), Msg: fmt.Sprintf("bad %s cell %q", kind.Name(), tok)}
		}
		if err := b.Set(row, col, v); err != nil {
			return err
		}
	}
	return b.Finish()
}

// Export writes grid as an ESRI ASCII grid, north row first. No-data cells
// are written as the kind's no-data value, which is also the header's
// NODATA_value.
func Export[T comparable](w io.Writer, grid *raster.Grid[T]) error {
	d := grid.Dims()
	kind := grid.Kind()
	wr, err := NewWriter(w, Header{
		Cols:      d.Cols,
		Rows:      d.Rows,
		XLLCorner: d.XMin,
		YLLCorner: d.YMin,
		CellSize:  d.CellSize,
		NoData:    kind.Format(grid.NoData()),
	})
	if err != nil {
		return err
	}
	for row := d.Rows - 1; row >= 0; row-- {
		for col := int64(0); col < d.Cols; col++ {
			v, err := grid.Get(row, col)
			if err != nil {
				return fmt.Errorf("esri: read cell (%d,%d): %w", row, col, err)
			}
			if err := wr.WriteToken(kind.Format(v)); err != nil {
				return err
			}
		}
	}
	return wr.Close()
}

// Summary logs the shape of a header.
func Summary(log zerolog.Logger, h Header) {
	log.Info().
		Int64("rows", h.Rows).
		Int64("cols", h.Cols).
		Float64("cellsize", h.CellSize).
		Str("cells", humanize.Comma(h.Rows*h.Cols)).
		Str("nodata", h.NoData).
		Msg("esri grid")
}
