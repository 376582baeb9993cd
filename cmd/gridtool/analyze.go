package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/spf13/cobra"

	"github.com/freeeve/chunkgrid/internal/render"
)

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats NAME",
		Short: "Print count, sum, extremes, mean and standard deviation.",
		Long: `stats prints the statistics of a numeric grid. A record saved with the grid
is used as is; a stale one is recomputed and saved back.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, _, err := a.cat.Open(args[0])
			if err != nil {
				return err
			}
			defer g.Close()
			s, err := g.Summary()
			if err != nil {
				return err
			}
			if s.Rescanned {
				if err := g.Save(); err != nil {
					return err
				}
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "count\t%s\n", humanize.Comma(s.Count))
			fmt.Fprintf(w, "sum\t%s\n", s.Sum)
			if s.Count > 0 {
				fmt.Fprintf(w, "min\t%s (x%d)\n", s.Min, s.MinCount)
				fmt.Fprintf(w, "max\t%s (x%d)\n", s.Max, s.MaxCount)
				fmt.Fprintf(w, "mean\t%s\n", s.Mean)
				fmt.Fprintf(w, "stddev\t%g\n", s.StdDev)
			}
			return w.Flush()
		},
	}
}

func newClassifyCmd(a *app) *cobra.Command {
	var classes int
	cmd := &cobra.Command{
		Use:   "classify NAME",
		Short: "Split the non-zero data cells into equal-frequency classes.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, _, err := a.cat.Open(args[0])
			if err != nil {
				return err
			}
			defer g.Close()
			rows, err := g.Classes(classes)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(w, "class\tmin\tmax\tcells\tdistinct\t")
			for i, r := range rows {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t\n", i+1, r.Min, r.Max, humanize.Comma(r.Count), r.Distinct)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&classes, "classes", "n", 5, "number of classes")
	return cmd
}

func newRenderCmd(a *app) *cobra.Command {
	var (
		out       string
		classes   int
		maxPixels int64
		ramp      []string
	)
	cmd := &cobra.Command{
		Use:   "render NAME",
		Short: "Draw a grid as a PNG image.",
		Long: `render draws a numeric grid through a color ramp, scaled between its minimum
and maximum or by equal-frequency class. Boolean grids are drawn as a mask.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := render.Options{Classes: classes, MaxPixels: maxPixels}
			for _, hex := range ramp {
				c, err := colorful.Hex(hex)
				if err != nil {
					return fmt.Errorf("--ramp %q: %w", hex, err)
				}
				opts.Ramp = append(opts.Ramp, c)
			}
			if len(ramp) == 1 {
				return fmt.Errorf("--ramp needs at least two colors")
			}
			g, _, err := a.cat.Open(args[0])
			if err != nil {
				return err
			}
			defer g.Close()
			if out == "" {
				out = g.Name() + ".png"
			}
			if err := writeOutput(cmd, out, func(w io.Writer) error { return g.Render(w, opts) }); err != nil {
				return err
			}
			a.log.Info().Str("file", out).Msg("rendered")
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&out, "output", "o", "", "PNG file (default NAME.png)")
	f.IntVarP(&classes, "classes", "n", 0, "color by this many equal-frequency classes")
	f.Int64Var(&maxPixels, "max-pixels", 0, "refuse grids with more cells than this (default 67108864)")
	f.StringSliceVar(&ramp, "ramp", nil, "color stops as hex, low to high")
	return cmd
}

func parseCell(args []string) (row, col int64, err error) {
	if row, err = strconv.ParseInt(args[1], 10, 64); err != nil {
		return 0, 0, fmt.Errorf("row %q: %w", args[1], err)
	}
	if col, err = strconv.ParseInt(args[2], 10, 64); err != nil {
		return 0, 0, fmt.Errorf("col %q: %w", args[2], err)
	}
	return row, col, nil
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME ROW COL",
		Short: "Print one cell. Row 0 is the southern edge.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, col, err := parseCell(args)
			if err != nil {
				return err
			}
			g, _, err := a.cat.Open(args[0])
			if err != nil {
				return err
			}
			defer g.Close()
			v, err := g.Get(row, col)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func newSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set NAME ROW COL VALUE",
		Short: `Write one cell and save the grid. VALUE "nodata" clears a numeric cell.`,
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, col, err := parseCell(args)
			if err != nil {
				return err
			}
			g, _, err := a.cat.Open(args[0])
			if err != nil {
				return err
			}
			defer g.Close()
			prev, err := g.Set(row, col, args[3])
			if err != nil {
				return err
			}
			if err := g.Save(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prev)
			return nil
		},
	}
}
