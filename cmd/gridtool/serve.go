package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/freeeve/chunkgrid/internal/httpapi"
	"github.com/freeeve/chunkgrid/internal/ingest"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr      string
		maxPixels int64
		watch     string
		kind      string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the store's grids over a read-only HTTP API.",
		Long: `serve answers cell, statistics, class and image queries for every grid in
the store. Opened grids stay open and share the memory budget; Prometheus
metrics are served on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var mu sync.Mutex
			worker, err := ingest.NewWorker(ingest.Config{
				WatchDir:  watch,
				Kind:      kind,
				ChunkRows: a.cfg.Grid.ChunkRows,
				ChunkCols: a.cfg.Grid.ChunkCols,
				Lock:      &mu,
				Logger:    a.log.With().Str("component", "ingest").Logger(),
			}, a.cat)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr: addr,
				Handler: httpapi.NewRouter(httpapi.Config{
					Catalog:   a.cat,
					Guardian:  a.guardian,
					Gatherer:  a.registry,
					MaxPixels: maxPixels,
					Lock:      &mu,
					Logger:    a.log.With().Str("component", "http").Logger(),
				}),
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				a.log.Info().Str("addr", srv.Addr).Msg("listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
				close(errc)
			}()

			var wg sync.WaitGroup
			if worker != nil {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						a.log.Error().Err(err).Msg("ingest worker stopped")
					}
				}()
			}

			var serveErr error
			select {
			case serveErr = <-errc:
			case <-ctx.Done():
			}
			a.log.Info().Msg("shutting down...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.log.Warn().Err(err).Msg("http server shutdown error")
			}
			stop()
			wg.Wait()

			mu.Lock()
			defer mu.Unlock()
			return errors.Join(serveErr, a.cat.Close())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8007", "listen address")
	cmd.Flags().StringVar(&watch, "watch", "", "import .asc and .asc.zst files dropped into this directory")
	cmd.Flags().StringVar(&kind, "watch-kind", "float64", "cell kind of watched imports")
	cmd.Flags().Int64Var(&maxPixels, "max-pixels", 0, "largest grid served as an image (default 16777216)")
	return cmd
}
