// Package catalog opens saved grids without knowing their cell kind in
// advance. Grids are exposed through a kind-independent interface whose
// values travel as text.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/freeeve/chunkgrid/internal/esri"
	"github.com/freeeve/chunkgrid/internal/raster"
	"github.com/freeeve/chunkgrid/internal/store"
)

// ErrNotNumeric is returned for numeric operations on boolean grids.
var ErrNotNumeric = errors.New("grid is not numeric")

// ErrExists is returned when creating a grid whose name is taken.
var ErrExists = errors.New("grid already exists")

// Kinds lists the cell kinds a catalog can create.
var Kinds = []string{"float64", "float32", "int32", "int64", "bool"}

// Store is a backing store that can enumerate and drop grids.
type Store interface {
	store.Store
	Grids() ([]string, error)
	DeleteGrid(grid string) error
}

// Catalog creates, opens and removes grids in one store under one guardian.
// It keeps grids opened through Acquire until Close.
type Catalog struct {
	store    Store
	guardian *raster.Guardian
	policy   raster.StatsPolicy
	open     map[string]Grid
}

// New returns a catalog. policy applies to new grids and to saved grids
// whose header names none.
func New(st Store, g *raster.Guardian, policy raster.StatsPolicy) *Catalog {
	return &Catalog{
		store:    st,
		guardian: g,
		policy:   policy,
		open:     make(map[string]Grid),
	}
}

// Names lists the saved grids, sorted.
func (c *Catalog) Names() ([]string, error) {
	names, err := c.store.Grids()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Meta reads a saved grid header.
func (c *Catalog) Meta(name string) (raster.Meta, error) {
	return raster.ReadMeta(c.store, name)
}

// Remove closes name if it is held open and deletes it from the store.
func (c *Catalog) Remove(name string) error {
	if _, err := c.Meta(name); err != nil {
		return err
	}
	if g, ok := c.open[name]; ok {
		g.Close()
		delete(c.open, name)
	}
	return c.store.DeleteGrid(name)
}

// DefaultNoData returns the conventional no-data text for a kind.
func DefaultNoData(kind string) string {
	switch kind {
	case "float64", "float32":
		return "-9999"
	case "int32":
		return fmt.Sprint(math.MinInt32)
	case "int64":
		return fmt.Sprint(int64(math.MinInt64))
	}
	return ""
}

// headerNoData picks the no-data value for a grid imported from a file with
// header h: the file's NODATA_value when it fits the kind, otherwise the
// kind's default. Integral float spellings such as -9999.0 are accepted for
// integer kinds.
func headerNoData(kind string, h esri.Header) string {
	if !h.HasNoData() {
		return DefaultNoData(kind)
	}
	tok := h.NoData
	switch kind {
	case "int32", "int64":
		if f, err := strconv.ParseFloat(tok, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			tok = strconv.FormatInt(int64(f), 10)
		}
	}
	var err error
	switch kind {
	case "float64":
		_, err = floatKind64(tok)
	case "float32":
		_, err = floatKind32(tok)
	case "int32":
		_, err = intKind32(tok)
	case "int64":
		_, err = intKind64(tok)
	}
	if err != nil {
		return DefaultNoData(kind)
	}
	return tok
}

// Create makes an empty grid of the named kind. It is not saved until
// Grid.Save.
func (c *Catalog) Create(kind, nodata string, cfg raster.Config) (Grid, error) {
	if _, err := c.Meta(cfg.Name); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, cfg.Name)
	} else if !errors.Is(err, raster.ErrGridNotFound) {
		return nil, err
	}
	if nodata == "" {
		nodata = DefaultNoData(kind)
	}
	cfg.Store = c.store
	switch kind {
	case "float64":
		k, err := floatKind64(nodata)
		if err != nil {
			return nil, err
		}
		return wrap[float64](raster.NewNumeric(c.guardian, k, c.policy, cfg))
	case "float32":
		k, err := floatKind32(nodata)
		if err != nil {
			return nil, err
		}
		return wrap[float32](raster.NewNumeric(c.guardian, k, c.policy, cfg))
	case "int32":
		k, err := intKind32(nodata)
		if err != nil {
			return nil, err
		}
		return wrap[int32](raster.NewNumeric(c.guardian, k, c.policy, cfg))
	case "int64":
		k, err := intKind64(nodata)
		if err != nil {
			return nil, err
		}
		return wrap[int64](raster.NewNumeric(c.guardian, k, c.policy, cfg))
	case "bool":
		g, err := raster.NewBool(c.guardian, cfg)
		if err != nil {
			return nil, err
		}
		return boolGrid{g}, nil
	}
	return nil, fmt.Errorf("unknown kind %q (want one of %v)", kind, Kinds)
}

// Import reads an ESRI ASCII grid into a new numeric grid of the named kind
// and saves it. An empty nodata uses the file's NODATA_value, or the kind's
// default when the file has none.
func (c *Catalog) Import(r io.Reader, kind, nodata string, cfg esri.ImportConfig) (Grid, error) {
	if _, err := c.Meta(cfg.Name); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, cfg.Name)
	}
	rd, err := esri.NewReader(r)
	if err != nil {
		return nil, err
	}
	if nodata == "" {
		nodata = headerNoData(kind, rd.Header())
	}
	cfg.Store = c.store
	cfg.Policy = c.policy

	var g Grid
	switch kind {
	case "float64":
		k, kerr := floatKind64(nodata)
		if kerr != nil {
			return nil, kerr
		}
		g, err = wrap[float64](esri.ImportFrom(rd, c.guardian, k, cfg))
	case "float32":
		k, kerr := floatKind32(nodata)
		if kerr != nil {
			return nil, kerr
		}
		g, err = wrap[float32](esri.ImportFrom(rd, c.guardian, k, cfg))
	case "int32":
		k, kerr := intKind32(nodata)
		if kerr != nil {
			return nil, kerr
		}
		g, err = wrap[int32](esri.ImportFrom(rd, c.guardian, k, cfg))
	case "int64":
		k, kerr := intKind64(nodata)
		if kerr != nil {
			return nil, kerr
		}
		g, err = wrap[int64](esri.ImportFrom(rd, c.guardian, k, cfg))
	default:
		return nil, fmt.Errorf("cannot import %q cells", kind)
	}
	if err != nil {
		return nil, err
	}
	if err := g.Save(); err != nil {
		g.Close()
		return nil, err
	}
	return g, nil
}

// Open opens a saved grid, picking the cell kind from its header. The caller
// closes it.
func (c *Catalog) Open(name string) (Grid, raster.Meta, error) {
	meta, err := c.Meta(name)
	if err != nil {
		return nil, meta, err
	}
	cfg := raster.Config{Name: name, Store: c.store}
	policy := c.policy
	if meta.Policy != "" {
		if policy, err = raster.ParseStatsPolicy(meta.Policy); err != nil {
			return nil, meta, err
		}
	}

	var g Grid
	switch meta.Kind {
	case "float64":
		k, kerr := floatKind64(meta.NoData)
		if kerr != nil {
			return nil, meta, kerr
		}
		g, err = wrap[float64](raster.OpenNumeric(c.guardian, k, policy, cfg))
	case "float32":
		k, kerr := floatKind32(meta.NoData)
		if kerr != nil {
			return nil, meta, kerr
		}
		g, err = wrap[float32](raster.OpenNumeric(c.guardian, k, policy, cfg))
	case "int32":
		k, kerr := intKind32(meta.NoData)
		if kerr != nil {
			return nil, meta, kerr
		}
		g, err = wrap[int32](raster.OpenNumeric(c.guardian, k, policy, cfg))
	case "int64":
		k, kerr := intKind64(meta.NoData)
		if kerr != nil {
			return nil, meta, kerr
		}
		g, err = wrap[int64](raster.OpenNumeric(c.guardian, k, policy, cfg))
	case "bool":
		var bg *raster.Grid[raster.Bool]
		bg, _, err = raster.Open[raster.Bool](c.guardian, raster.BoolKind{}, cfg)
		if err == nil {
			g = boolGrid{bg}
		}
	default:
		return nil, meta, fmt.Errorf("%s: unsupported kind %q", name, meta.Kind)
	}
	return g, meta, err
}

// Acquire returns name, opening it on first use and holding it open until
// Close. Acquired grids share the guardian, so cold chunks of one are
// evicted to make room for another.
func (c *Catalog) Acquire(name string) (Grid, error) {
	if g, ok := c.open[name]; ok {
		return g, nil
	}
	g, _, err := c.Open(name)
	if err != nil {
		return nil, err
	}
	c.open[name] = g
	return g, nil
}

// Close saves and closes every acquired grid.
func (c *Catalog) Close() error {
	var errs []error
	for name, g := range c.open {
		if err := g.Save(); err != nil {
			errs = append(errs, fmt.Errorf("save %s: %w", name, err))
		}
		g.Close()
		delete(c.open, name)
	}
	return errors.Join(errs...)
}

func parseKind[T raster.Number](base raster.Kind[T], nodata string, with func(T) raster.Kind[T]) (raster.Kind[T], error) {
	v, err := base.Parse(nodata)
	if err != nil {
		return nil, fmt.Errorf("parse %s no-data %q: %w", base.Name(), nodata, err)
	}
	return with(v), nil
}

func floatKind64(nodata string) (raster.Kind[float64], error) {
	return parseKind[float64](raster.Float64Kind{}, nodata, func(v float64) raster.Kind[float64] {
		return raster.Float64Kind{NoDataValue: v}
	})
}

func floatKind32(nodata string) (raster.Kind[float32], error) {
	return parseKind[float32](raster.Float32Kind{}, nodata, func(v float32) raster.Kind[float32] {
		return raster.Float32Kind{NoDataValue: v}
	})
}

func intKind32(nodata string) (raster.Kind[int32], error) {
	return parseKind[int32](raster.Int32Kind{}, nodata, func(v int32) raster.Kind[int32] {
		return raster.Int32Kind{NoDataValue: v}
	})
}

func intKind64(nodata string) (raster.Kind[int64], error) {
	return parseKind[int64](raster.Int64Kind{}, nodata, func(v int64) raster.Kind[int64] {
		return raster.Int64Kind{NoDataValue: v}
	})
}
