package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/freeeve/chunkgrid/internal/esri"
)

func newImportCmd(a *app) *cobra.Command {
	var (
		name      string
		kind      string
		nodata    string
		chunkRows int
		chunkCols int
	)
	cmd := &cobra.Command{
		Use:   "import FILE.asc",
		Short: "Import an ESRI ASCII grid into the store.",
		Long: `import reads an ESRI ASCII grid and saves it in the store. Cells equal to
the file's NODATA_value become the grid's no-data value, which defaults to the
file's NODATA_value when it has one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			h, err := readHeader(path)
			if err != nil {
				return err
			}
			esri.Summary(a.log, h)
			if name == "" {
				name = baseName(path)
			}
			if chunkRows == 0 {
				chunkRows = a.cfg.Grid.ChunkRows
			}
			if chunkCols == 0 {
				chunkCols = a.cfg.Grid.ChunkCols
			}

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			g, err := a.cat.Import(f, kind, nodata, esri.ImportConfig{
				Name:      name,
				ChunkRows: chunkRows,
				ChunkCols: chunkCols,
				Logger:    &a.log,
			})
			if err != nil {
				return fmt.Errorf("import %s: %w", path, err)
			}
			defer g.Close()
			d := g.Dims()
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s: %s cells (%d x %d) as %s\n",
				name, humanize.Comma(d.Cells()), d.Rows, d.Cols, kind)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "grid name (default: file name without extension)")
	cmd.Flags().StringVar(&kind, "kind", "float64", "cell kind: float64, float32, int32 or int64")
	cmd.Flags().StringVar(&nodata, "nodata", "", "no-data value of the new grid")
	cmd.Flags().IntVar(&chunkRows, "chunk-rows", 0, "chunk height (default grid.chunk_rows)")
	cmd.Flags().IntVar(&chunkCols, "chunk-cols", 0, "chunk width (default grid.chunk_cols)")
	return cmd
}

func readHeader(path string) (esri.Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return esri.Header{}, err
	}
	defer f.Close()
	rd, err := esri.NewReader(f)
	if err != nil {
		return esri.Header{}, fmt.Errorf("%s: %w", path, err)
	}
	return rd.Header(), nil
}

func newExportCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export NAME",
		Short: "Write a grid as ESRI ASCII.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, _, err := a.cat.Open(args[0])
			if err != nil {
				return err
			}
			defer g.Close()
			return writeOutput(cmd, out, g.export)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	return cmd
}

// writeOutput runs write against path, or stdout when path is empty. A
// file is written to a temporary sibling and renamed into place.
func writeOutput(cmd *cobra.Command, path string, write func(io.Writer) error) error {
	if path == "" {
		bw := bufio.NewWriter(cmd.OutOrStdout())
		if err := write(bw); err != nil {
			return err
		}
		return bw.Flush()
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
