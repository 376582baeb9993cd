package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/freeeve/chunkgrid/internal/raster"
)

func TestParse(t *testing.T) {
	cfg, err := Parse(`
[guardian]
memory_budget = "1GiB"
reserve = "64 MiB"

[store]
dir = "/var/lib/grids"
compression = "best"

[grid]
chunk_rows = 128
stats = "lazy"

[log]
level = "debug"
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := Config{
		Guardian: GuardianSection{MemoryBudget: 1 << 30, Reserve: 64 << 20},
		Store:    StoreSection{Dir: "/var/lib/grids", Compression: "best"},
		Grid:     GridSection{ChunkRows: 128, ChunkCols: 256, Stats: "lazy"},
		Log:      LogSection{Level: "debug"},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config (-want +got):\n%s", diff)
	}
	if cfg.Policy() != raster.Lazy || cfg.Level() != zerolog.DebugLevel {
		t.Errorf("Policy=%v Level=%v", cfg.Policy(), cfg.Level())
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"unknown key", "[guardian]\nbudget = \"1GiB\"\n", "unknown keys: guardian.budget"},
		{"bad size", "[guardian]\nmemory_budget = \"lots\"\n", "parse size"},
		{"reserve too big", "[guardian]\nmemory_budget = \"1MiB\"\nreserve = \"2MiB\"\n", "must be below"},
		{"bad compression", "[store]\ncompression = \"max\"\n", "store.compression"},
		{"bad stats", "[grid]\nstats = \"often\"\n", "grid.stats"},
		{"bad level", "[log]\nlevel = \"loud\"\n", "log.level"},
		{"bad chunk", "[grid]\nchunk_cols = 0\n", "chunk size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.in)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gridtool.toml")
	if err := os.WriteFile(path, []byte("[guardian]\nmemory_budget = \"32MB\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Guardian.MemoryBudget != 32_000_000 {
		t.Errorf("memory_budget = %d", cfg.Guardian.MemoryBudget)
	}
	if cfg.Guardian.MemoryBudget.String() != "31 MiB" {
		t.Errorf("String = %q", cfg.Guardian.MemoryBudget.String())
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
}
