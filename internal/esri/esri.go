// Package esri reads and writes ESRI ASCII grids and moves them in and out
// of raster grids.
//
// The file's first data line is the northern edge of the grid. Raster grids
// put row 0 in the south, so the Reader reports rows already flipped.
package esri

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ErrFormat is wrapped by every parse error.
var ErrFormat = errors.New("esri: malformed grid")

// maxLine bounds one text line; wide grids keep a whole row on a line.
const maxLine = 64 << 20

// Header is the ESRI ASCII grid header. XLLCorner and YLLCorner are always
// the lower-left corner, even when the file gave cell centres.
type Header struct {
	Cols      int64
	Rows      int64
	XLLCorner float64
	YLLCorner float64
	CellSize  float64
	NoData    string // raw NODATA_value token; empty when absent
}

// HasNoData reports whether the header declared a NODATA_value.
func (h Header) HasNoData() bool { return h.NoData != "" }

// ParseError locates a parse failure.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("esri: line %d: %s", e.Line, e.Msg)
}

func (e *ParseError) Unwrap() error { return ErrFormat }

// Reader streams the cells of an ESRI ASCII grid in file order.
type Reader struct {
	sc      *bufio.Scanner
	line    int
	header  Header
	pending []string // tokens left on the current line
	next    int64    // index of the next cell in file order
}

// NewReader parses the header and returns a reader positioned at the first
// cell.
func NewReader(r io.Reader) (*Reader, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	rd := &Reader{sc: sc}
	if err := rd.readHeader(); err != nil {
		return nil, err
	}
	return rd, nil
}

// Header returns the parsed header.
func (r *Reader) Header() Header { return r.header }

func (r *Reader) fail(format string, args ...any) error {
	return &ParseError{Line: r.line, Msg: fmt.Sprintf(format, args...)}
}

func (r *Reader) readHeader() error {
	seen := map[string]string{}
	var xCenter, yCenter bool
	for {
		if !r.sc.Scan() {
			if err := r.sc.Err(); err != nil {
				return fmt.Errorf("esri: read header: %w", err)
			}
			break
		}
		r.line++
		fields := strings.Fields(r.sc.Text())
		if len(fields) == 0 {
			continue
		}
		key := strings.ToLower(fields[0])
		if _, err := strconv.ParseFloat(fields[0], 64); err == nil {
			r.pending = fields // first data line
			break
		}
		if len(fields) != 2 {
			return r.fail("header line %q: want key and value", r.sc.Text())
		}
		switch key {
		case "xllcenter":
			xCenter = true
			key = "xllcorner"
		case "yllcenter":
			yCenter = true
			key = "yllcorner"
		case "ncols", "nrows", "xllcorner", "yllcorner", "cellsize", "nodata_value":
		default:
			return r.fail("unknown header key %q", fields[0])
		}
		if _, dup := seen[key]; dup {
			return r.fail("duplicate header key %q", fields[0])
		}
		seen[key] = fields[1]
	}

	for _, k := range []string{"ncols", "nrows", "xllcorner", "yllcorner", "cellsize"} {
		if _, ok := seen[k]; !ok {
			return r.fail("header is missing %s", k)
		}
	}
	h := &r.header
	var err error
	if h.Cols, err = strconv.ParseInt(seen["ncols"], 10, 64); err != nil || h.Cols <= 0 {
		return r.fail("bad ncols %q", seen["ncols"])
	}
	if h.Rows, err = strconv.ParseInt(seen["nrows"], 10, 64); err != nil || h.Rows <= 0 {
		return r.fail("bad nrows %q", seen["nrows"])
	}
	if h.CellSize, err = strconv.ParseFloat(seen["cellsize"], 64); err != nil || !(h.CellSize > 0) {
		return r.fail("bad cellsize %q", seen["cellsize"])
	}
	if h.XLLCorner, err = strconv.ParseFloat(seen["xllcorner"], 64); err != nil {
		return r.fail("bad x origin %q", seen["xllcorner"])
	}
	if h.YLLCorner, err = strconv.ParseFloat(seen["yllcorner"], 64); err != nil {
		return r.fail("bad y origin %q", seen["yllcorner"])
	}
	if xCenter {
		h.XLLCorner -= h.CellSize / 2
	}
	if yCenter {
		h.YLLCorner -= h.CellSize / 2
	}
	h.NoData = seen["nodata_value"]
	return nil
}

// Next returns the next cell. row counts from the south edge. The token is
// returned unparsed so callers can parse it for their cell type. Next
// returns io.EOF after the last cell.
func (r *Reader) Next() (row, col int64, token string, err error) {
	total := r.header.Rows * r.header.Cols
	for len(r.pending) == 0 {
		if !r.sc.Scan() {
			if err := r.sc.Err(); err != nil {
				return 0, 0, "", fmt.Errorf("esri: read line %d: %w", r.line+1, err)
			}
			if r.next < total {
				return 0, 0, "", r.fail("truncated: %d of %d cells", r.next, total)
			}
			return 0, 0, "", io.EOF
		}
		r.line++
		r.pending = strings.Fields(r.sc.Text())
	}
	if r.next >= total {
		return 0, 0, "", r.fail("more than %d cells", total)
	}
	token, r.pending = r.pending[0], r.pending[1:]
	fileRow := r.next / r.header.Cols
	col = r.next % r.header.Cols
	r.next++
	return r.header.Rows - 1 - fileRow, col, token, nil
}

// Line returns the line number of the last token read.
func (r *Reader) Line() int { return r.line }

// IsNoData reports whether token spells the header's NODATA_value. Numeric
// spellings that differ in text ("-9999" and "-9999.0") match.
func (h Header) IsNoData(token string) bool {
	if h.NoData == "" {
		return false
	}
	if token == h.NoData {
		return true
	}
	a, err1 := strconv.ParseFloat(token, 64)
	b, err2 := strconv.ParseFloat(h.NoData, 64)
	return err1 == nil && err2 == nil && (a == b || (math.IsNaN(a) && math.IsNaN(b)))
}

// Writer writes an ESRI ASCII grid. Cells must be written in file order:
// north row first, west to east.
type Writer struct {
	bw      *bufio.Writer
	header  Header
	written int64
}

// NewWriter writes h and returns a writer for its cells.
func NewWriter(w io.Writer, h Header) (*Writer, error) {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ncols %d\nnrows %d\n", h.Cols, h.Rows)
	fmt.Fprintf(bw, "xllcorner %s\nyllcorner %s\n", formatFloat(h.XLLCorner), formatFloat(h.YLLCorner))
	fmt.Fprintf(bw, "cellsize %s\n", formatFloat(h.CellSize))
	if h.NoData != "" {
		fmt.Fprintf(bw, "NODATA_value %s\n", h.NoData)
	}
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("esri: write header: %w", err)
	}
	return &Writer{bw: bw, header: h}, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// WriteToken writes the next cell.
func (w *Writer) WriteToken(token string) error {
	total := w.header.Rows * w.header.Cols
	if w.written >= total {
		return fmt.Errorf("esri: more than %d cells written", total)
	}
	if w.written%w.header.Cols != 0 {
		w.bw.WriteByte(' ')
	}
	w.bw.WriteString(token)
	w.written++
	if w.written%w.header.Cols == 0 {
		if err := w.bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes buffered output and checks that every cell was written.
func (w *Writer) Close() error {
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("esri: flush: %w", err)
	}
	if total := w.header.Rows * w.header.Cols; w.written != total {
		return fmt.Errorf("esri: wrote %d of %d cells", w.written, total)
	}
	return nil
}
