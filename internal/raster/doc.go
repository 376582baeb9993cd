// Package raster stores very large two-dimensional grids as rectangular
// chunks that are materialized on demand, kept under a memory budget and
// swapped to a backing store when the budget runs out.
//
// Layers, bottom up:
//   - Kind: cell value trait (numeric with a no-data sentinel, or tri-state Bool)
//   - Chunk: Constant, Dense or Sparse tile; writes may return a converted chunk
//   - directory: btree of chunk slots per grid, row-major order
//   - Guardian: shared memory accountant; pins, victim selection, evict-and-retry
//   - Grid: cell access, iteration, copy, bulk load, persistence
//   - Stats: eager or lazy count/sum/min/max plus derived statistics
//
// Nothing in this package is safe for concurrent use. A Guardian and every
// grid registered with it must be driven from one goroutine; a concurrent
// caller needs one mutex covering the directory, pin set and statistics of
// each grid, held across the Guardian calls that touch that grid.
package raster
