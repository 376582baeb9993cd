// Package ingest watches a directory and imports the ESRI ASCII grids
// dropped into it.
package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/freeeve/chunkgrid/internal/catalog"
	"github.com/freeeve/chunkgrid/internal/esri"
)

// Config configures the ingest worker.
type Config struct {
	WatchDir     string        // directory to watch for .asc and .asc.zst files
	ProcessedDir string        // imported files are moved here, default WatchDir/processed
	FailedDir    string        // files that failed to import, default WatchDir/failed
	Kind         string        // cell kind of imported grids, default float64
	ChunkRows    int           // default 256
	ChunkCols    int           // default 256
	PollInterval time.Duration // default 10s
	// Lock is held while a file is imported; share it with anything else
	// touching the catalog. Default is a private mutex.
	Lock   sync.Locker
	Logger zerolog.Logger
}

// Worker watches a folder and imports grid files into a catalog.
type Worker struct {
	cfg Config
	cat *catalog.Catalog
	log zerolog.Logger
}

// NewWorker creates a worker. It returns nil when no WatchDir is set.
func NewWorker(cfg Config, cat *catalog.Catalog) (*Worker, error) {
	if cfg.WatchDir == "" {
		return nil, nil // Disabled
	}
	if cfg.ProcessedDir == "" {
		cfg.ProcessedDir = filepath.Join(cfg.WatchDir, "processed")
	}
	if cfg.FailedDir == "" {
		cfg.FailedDir = filepath.Join(cfg.WatchDir, "failed")
	}
	if cfg.Kind == "" {
		cfg.Kind = "float64"
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.Lock == nil {
		cfg.Lock = &sync.Mutex{}
	}

	for _, dir := range []string{cfg.WatchDir, cfg.ProcessedDir, cfg.FailedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	return &Worker{
		cfg: cfg,
		cat: cat,
		log: cfg.Logger,
	}, nil
}

// Run polls the watch directory until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().
		Str("watch_dir", w.cfg.WatchDir).
		Str("processed_dir", w.cfg.ProcessedDir).
		Str("kind", w.cfg.Kind).
		Msg("ingest worker started")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.ProcessNewFiles(ctx); err != nil {
				w.log.Warn().Err(err).Msg("process files failed")
			}
		}
	}
}

// ProcessNewFiles imports every grid file waiting in the watch directory, in
// name order, and returns how many were imported. Each file is moved to the
// processed or failed directory afterwards.
func (w *Worker) ProcessNewFiles(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.cfg.WatchDir)
	if err != nil {
		return 0, err
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && isGridFile(e.Name()) {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return 0, nil
	}
	sort.Strings(files)
	w.log.Info().Int("files", len(files)).Msg("found grid files to import")

	var processed, failed int
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		src := filepath.Join(w.cfg.WatchDir, name)
		dest := filepath.Join(w.cfg.ProcessedDir, name)
		if err := w.importFile(src); err != nil {
			w.log.Error().Err(err).Str("file", name).Msg("import failed")
			dest = filepath.Join(w.cfg.FailedDir, name)
			failed++
		} else {
			processed++
		}
		if err := os.Rename(src, dest); err != nil {
			w.log.Warn().Err(err).Str("file", name).Msg("move failed")
		}
	}

	w.log.Info().Int("processed", processed).Int("failed", failed).Msg("batch complete")
	return processed, nil
}

func (w *Worker) importFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("zstd: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	w.cfg.Lock.Lock()
	defer w.cfg.Lock.Unlock()

	start := time.Now()
	g, err := w.cat.Import(r, w.cfg.Kind, "", esri.ImportConfig{
		Name:      gridName(filepath.Base(path)),
		ChunkRows: w.cfg.ChunkRows,
		ChunkCols: w.cfg.ChunkCols,
		Logger:    &w.log,
	})
	if err != nil {
		return err
	}
	defer g.Close()
	d := g.Dims()
	w.log.Info().
		Str("grid", g.Name()).
		Int64("rows", d.Rows).
		Int64("cols", d.Cols).
		Dur("dur", time.Since(start)).
		Msg("imported")
	return nil
}

func isGridFile(name string) bool {
	return strings.HasSuffix(name, ".asc") || strings.HasSuffix(name, ".asc.zst")
}

// gridName strips the .asc and .zst extensions.
func gridName(file string) string {
	return strings.TrimSuffix(strings.TrimSuffix(file, ".zst"), ".asc")
}
