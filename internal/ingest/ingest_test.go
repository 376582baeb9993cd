package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/freeeve/chunkgrid/internal/catalog"
	"github.com/freeeve/chunkgrid/internal/raster"
	"github.com/freeeve/chunkgrid/internal/store"
)

const sample = `ncols 2
nrows 2
xllcorner 0
yllcorner 0
cellsize 1
NODATA_value -9999
1 2
3 -9999
`

func TestProcessNewFiles(t *testing.T) {
	st, err := store.NewDirStore(store.DirConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	g, err := raster.NewGuardian(raster.GuardianConfig{MemoryBudget: 1 << 20})
	if err != nil {
		t.Fatal(err)
	}
	cat := catalog.New(st, g, raster.Eager)

	watch := t.TempDir()
	write := func(name string, data []byte) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(watch, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("plain.asc", []byte(sample))
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	write("packed.asc.zst", enc.EncodeAll([]byte(sample), nil))
	enc.Close()
	write("broken.asc", []byte("ncols 2\n"))
	write("notes.txt", []byte("ignored"))

	w, err := NewWorker(Config{WatchDir: watch, Kind: "int32", Logger: zerolog.Nop()}, cat)
	if err != nil {
		t.Fatal(err)
	}
	n, err := w.ProcessNewFiles(context.Background())
	if err != nil {
		t.Fatalf("ProcessNewFiles: %v", err)
	}
	if n != 2 {
		t.Errorf("imported %d files, want 2", n)
	}

	for _, name := range []string{"plain", "packed"} {
		grid, meta, err := cat.Open(name)
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		if meta.Kind != "int32" {
			t.Errorf("%s kind = %s", name, meta.Kind)
		}
		if v, _ := grid.Get(1, 1); v != "2" {
			t.Errorf("%s north-east cell = %s, want 2", name, v)
		}
		grid.Close()
	}

	for _, path := range []string{
		filepath.Join(watch, "processed", "plain.asc"),
		filepath.Join(watch, "processed", "packed.asc.zst"),
		filepath.Join(watch, "failed", "broken.asc"),
		filepath.Join(watch, "notes.txt"),
	} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected %s: %v", path, err)
		}
	}

	// a second pass finds nothing new
	if n, err := w.ProcessNewFiles(context.Background()); err != nil || n != 0 {
		t.Errorf("second pass = %d, %v", n, err)
	}
}

func TestDisabled(t *testing.T) {
	w, err := NewWorker(Config{}, nil)
	if w != nil || err != nil {
		t.Errorf("NewWorker without a directory = %v, %v", w, err)
	}
}

func TestGridName(t *testing.T) {
	tests := map[string]string{
		"dem.asc":     "dem",
		"dem.asc.zst": "dem",
	}
	for in, want := range tests {
		if got := gridName(in); got != want {
			t.Errorf("gridName(%q) = %q, want %q", in, got, want)
		}
	}
}
