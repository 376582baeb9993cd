// Command gridtool imports, inspects, edits and renders chunked raster grids
// kept in a directory store.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/freeeve/chunkgrid/internal/catalog"
	"github.com/freeeve/chunkgrid/internal/config"
	"github.com/freeeve/chunkgrid/internal/logx"
	"github.com/freeeve/chunkgrid/internal/raster"
	"github.com/freeeve/chunkgrid/internal/store"
)

// app is the state shared by every subcommand, built before it runs.
type app struct {
	cfg      config.Config
	log      zerolog.Logger
	store    *store.DirStore
	guardian *raster.Guardian
	cat      *catalog.Catalog
	registry *prometheus.Registry
	started  time.Time
}

type rootFlags struct {
	configPath string
	storeDir   string
	budget     string
	logLevel   string
	metrics    string
}

func newRoot() *cobra.Command {
	var (
		flags rootFlags
		a     = &app{}
	)
	root := &cobra.Command{
		Use:   "gridtool",
		Short: "Manage chunked raster grids.",
		Long: `gridtool keeps large raster grids in a directory store, loading chunks
on demand under a fixed memory budget. Grids are imported from and exported
to ESRI ASCII, and can be summarized, classified and rendered.`,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd, flags)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown(flags.metrics)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "TOML configuration file")
	pf.StringVar(&flags.storeDir, "store", "", "grid store directory (overrides store.dir)")
	pf.StringVar(&flags.budget, "budget", "", "chunk memory budget such as 512MiB (overrides guardian.memory_budget)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (overrides log.level)")
	pf.StringVar(&flags.metrics, "metrics", "", "write guardian metrics in Prometheus text format to this file on exit")

	root.AddCommand(
		newImportCmd(a),
		newExportCmd(a),
		newCreateCmd(a),
		newInfoCmd(a),
		newListCmd(a),
		newRemoveCmd(a),
		newStatsCmd(a),
		newClassifyCmd(a),
		newRenderCmd(a),
		newGetCmd(a),
		newSetCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, flags rootFlags) error {
	a.started = time.Now()
	cfg := config.Default()
	if flags.configPath != "" {
		var err error
		if cfg, err = config.Load(flags.configPath); err != nil {
			return err
		}
	}
	if flags.storeDir != "" {
		cfg.Store.Dir = flags.storeDir
	}
	if flags.budget != "" {
		if err := cfg.Guardian.MemoryBudget.UnmarshalText([]byte(flags.budget)); err != nil {
			return fmt.Errorf("--budget: %w", err)
		}
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logx.NewLoggerTo(cmd.ErrOrStderr(), cfg.Level())

	st, err := store.NewDirStore(store.DirConfig{
		Dir:         cfg.Store.Dir,
		Compression: cfg.Store.Compression,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.store = st

	a.registry = prometheus.NewRegistry()
	a.guardian, err = raster.NewGuardian(raster.GuardianConfig{
		MemoryBudget: int64(cfg.Guardian.MemoryBudget),
		Reserve:      int64(cfg.Guardian.Reserve),
		Logger:       &a.log,
		Registerer:   a.registry,
	})
	if err != nil {
		st.Close()
		return err
	}
	a.cat = catalog.New(st, a.guardian, cfg.Policy())
	a.log.Debug().
		Str("store", st.Dir()).
		Str("budget", cfg.Guardian.MemoryBudget.String()).
		Msg("ready")
	return nil
}

func (a *app) teardown(metricsPath string) error {
	if a.store == nil {
		return nil
	}
	defer a.store.Close()

	gs := a.guardian.Stats()
	ss := a.store.Stats()
	a.log.Debug().
		Str("resident", humanize.IBytes(uint64(gs.Resident))).
		Uint64("evictions", gs.Evictions).
		Uint64("persists", gs.Persists).
		Uint64("loads", gs.Loads).
		Str("disk_written", humanize.IBytes(ss.DiskBytes)).
		Dur("elapsed", time.Since(a.started)).
		Msg("done")

	if metricsPath == "" {
		return nil
	}
	return writeMetrics(a.registry, metricsPath)
}

func writeMetrics(reg prometheus.Gatherer, path string) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(f, mf); err != nil {
			f.Close()
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return f.Close()
}

func main() {
	if err := newRoot().Execute(); err != nil {
		os.Exit(1)
	}
}
