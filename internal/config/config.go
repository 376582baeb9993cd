// Package config loads gridtool settings from TOML.
//
//	[guardian]
//	memory_budget = "512MiB"
//	reserve = "32MiB"
//
//	[store]
//	dir = "./data"
//	compression = "fast"
//
//	[grid]
//	chunk_rows = 256
//	chunk_cols = 256
//	stats = "eager"
//
//	[log]
//	level = "info"
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/freeeve/chunkgrid/internal/raster"
)

// ByteSize is a byte count written as "512MiB", "4GB" or "1048576".
type ByteSize int64

// UnmarshalText parses a human-readable size.
func (b *ByteSize) UnmarshalText(text []byte) error {
	n, err := humanize.ParseBytes(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse size %q: %w", text, err)
	}
	*b = ByteSize(n)
	return nil
}

// MarshalText writes the size in IEC units.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b ByteSize) String() string { return humanize.IBytes(uint64(b)) }

// Config is the complete configuration.
type Config struct {
	Guardian GuardianSection `toml:"guardian"`
	Store    StoreSection    `toml:"store"`
	Grid     GridSection     `toml:"grid"`
	Log      LogSection      `toml:"log"`
}

type GuardianSection struct {
	MemoryBudget ByteSize `toml:"memory_budget"`
	Reserve      ByteSize `toml:"reserve"` // 0 means a sixteenth of the budget
}

type StoreSection struct {
	Dir         string `toml:"dir"`
	Compression string `toml:"compression"` // "fast" or "best"
}

type GridSection struct {
	ChunkRows int    `toml:"chunk_rows"`
	ChunkCols int    `toml:"chunk_cols"`
	Stats     string `toml:"stats"` // "eager" or "lazy"
}

type LogSection struct {
	Level string `toml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Guardian: GuardianSection{MemoryBudget: 256 << 20},
		Store:    StoreSection{Dir: "./data", Compression: "fast"},
		Grid:     GridSection{ChunkRows: 256, ChunkCols: 256, Stats: "eager"},
		Log:      LogSection{Level: "info"},
	}
}

// Load reads path over the defaults. Unknown keys are an error so typos do
// not pass silently.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.decode(string(data)); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML text over the defaults.
func Parse(text string) (Config, error) {
	cfg := Default()
	err := cfg.decode(text)
	return cfg, err
}

func (c *Config) decode(text string) error {
	md, err := toml.Decode(text, c)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return c.Validate()
}

// Validate checks values the decoder cannot.
func (c Config) Validate() error {
	if c.Guardian.MemoryBudget <= 0 {
		return fmt.Errorf("guardian.memory_budget must be positive")
	}
	if c.Guardian.Reserve >= c.Guardian.MemoryBudget {
		return fmt.Errorf("guardian.reserve %s must be below memory_budget %s", c.Guardian.Reserve, c.Guardian.MemoryBudget)
	}
	if c.Grid.ChunkRows <= 0 || c.Grid.ChunkCols <= 0 {
		return fmt.Errorf("grid chunk size %dx%d must be positive", c.Grid.ChunkRows, c.Grid.ChunkCols)
	}
	switch c.Store.Compression {
	case "fast", "best":
	default:
		return fmt.Errorf("store.compression %q: want fast or best", c.Store.Compression)
	}
	if _, err := raster.ParseStatsPolicy(c.Grid.Stats); err != nil {
		return fmt.Errorf("grid.stats: %w", err)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Policy returns the configured statistics policy.
func (c Config) Policy() raster.StatsPolicy {
	p, _ := raster.ParseStatsPolicy(c.Grid.Stats)
	return p
}

// Level returns the configured log level.
func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
