package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/freeeve/chunkgrid/internal/catalog"
	"github.com/freeeve/chunkgrid/internal/raster"
)

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func newCreateCmd(a *app) *cobra.Command {
	var (
		kind   string
		nodata string
		dims   raster.Dimensions
	)
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create an empty grid where every cell is no-data.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dims.ChunkRows == 0 {
				dims.ChunkRows = a.cfg.Grid.ChunkRows
			}
			if dims.ChunkCols == 0 {
				dims.ChunkCols = a.cfg.Grid.ChunkCols
			}
			g, err := a.cat.Create(kind, nodata, raster.Config{Name: args[0], Dims: dims})
			if err != nil {
				return err
			}
			defer g.Close()
			return g.Save()
		},
	}
	f := cmd.Flags()
	f.StringVar(&kind, "kind", "float64", "cell kind: "+strings.Join(catalog.Kinds, ", "))
	f.StringVar(&nodata, "nodata", "", "no-data value (numeric kinds)")
	f.Int64Var(&dims.Rows, "rows", 0, "number of rows")
	f.Int64Var(&dims.Cols, "cols", 0, "number of columns")
	f.IntVar(&dims.ChunkRows, "chunk-rows", 0, "chunk height (default grid.chunk_rows)")
	f.IntVar(&dims.ChunkCols, "chunk-cols", 0, "chunk width (default grid.chunk_cols)")
	f.Float64Var(&dims.XMin, "xmin", 0, "x of the lower-left corner")
	f.Float64Var(&dims.YMin, "ymin", 0, "y of the lower-left corner")
	f.Float64Var(&dims.CellSize, "cellsize", 1, "cell edge length")
	return cmd
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info NAME",
		Short: "Show a grid header.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.cat.Meta(args[0])
			if err != nil {
				return err
			}
			d := m.Dims
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "name\t%s\n", m.Name)
			fmt.Fprintf(w, "kind\t%s\n", m.Kind)
			fmt.Fprintf(w, "nodata\t%s\n", m.NoData)
			fmt.Fprintf(w, "size\t%d x %d (%s cells)\n", d.Rows, d.Cols, humanize.Comma(d.Cells()))
			fmt.Fprintf(w, "chunks\t%d x %d, %d stored of %d\n", d.ChunkRows, d.ChunkCols, len(m.Chunks), d.ChunkCount())
			fmt.Fprintf(w, "origin\t%g, %g\n", d.XMin, d.YMin)
			fmt.Fprintf(w, "cellsize\t%g\n", d.CellSize)
			if m.Policy != "" {
				fmt.Fprintf(w, "stats\t%s\n", m.Policy)
			}
			if m.Stats != nil {
				fmt.Fprintf(w, "count\t%s\n", humanize.Comma(m.Stats.Count))
				if m.Stats.Count > 0 {
					fmt.Fprintf(w, "min\t%s (x%d)\n", m.Stats.Min, m.Stats.MinCount)
					fmt.Fprintf(w, "max\t%s (x%d)\n", m.Stats.Max, m.Stats.MaxCount)
				}
			}
			return w.Flush()
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the grids in the store.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := a.cat.Names()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range names {
				m, err := a.cat.Meta(name)
				if err != nil {
					a.log.Warn().Err(err).Str("grid", name).Msg("skipping")
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%d x %d\n", name, m.Kind, m.Dims.Rows, m.Dims.Cols)
			}
			return w.Flush()
		},
	}
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm NAME",
		Short: "Delete a grid and its chunks from the store.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.cat.Remove(args[0])
		},
	}
}
