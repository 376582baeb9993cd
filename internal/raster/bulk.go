package raster

import (
	"time"

	"github.com/dustin/go-humanize"
)

// BulkLoader writes many cells without per-write statistics tracking.
// Finish brings the statistics of a numeric grid up to date in one rescan.
type BulkLoader[T comparable] struct {
	g       *Grid[T]
	update  func() error
	written int64
	started time.Time
}

// Bulk starts a bulk load into g.
func (g *Grid[T]) Bulk() *BulkLoader[T] {
	if g.obs != nil {
		g.obs.invalidate()
	}
	return &BulkLoader[T]{g: g, started: time.Now()}
}

// Bulk starts a bulk load whose Finish rescans the statistics.
func (g *NumericGrid[T]) Bulk() *BulkLoader[T] {
	b := g.Grid.Bulk()
	b.update = g.Update
	return b
}

// Set writes v at (row, col).
func (b *BulkLoader[T]) Set(row, col int64, v T) error {
	if _, err := b.g.SetFast(row, col, v); err != nil {
		return err
	}
	b.written++
	return nil
}

// Written returns the number of Set calls so far.
func (b *BulkLoader[T]) Written() int64 { return b.written }

// Finish ends the load, compacting resident chunks and updating statistics.
func (b *BulkLoader[T]) Finish() error {
	saved, err := b.g.Compact()
	if err != nil {
		return err
	}
	if b.update != nil {
		if err := b.update(); err != nil {
			return err
		}
	}
	st := b.g.guardian.Stats()
	b.g.log.Info().
		Int64("cells", b.written).
		Str("compacted", humanize.IBytes(uint64(max(saved, 0)))).
		Str("resident", humanize.IBytes(uint64(st.Resident))).
		Uint64("evictions", st.Evictions).
		Dur("took", time.Since(b.started)).
		Msg("bulk load finished")
	return nil
}
