// Package store provides backing stores for swapped-out raster chunks.
//
// A store is a flat namespace of opaque chunk payloads keyed by grid name and
// chunk coordinate, plus one metadata blob per grid. The raster package owns
// the payload format; stores only move bytes.
//
// Implementations:
//   - MemStore: maps in memory, for tests and small grids
//   - DirStore: one zstd-compressed file per chunk under <dir>/<grid>/,
//     written to a temp file and renamed into place
package store
