package raster

import "errors"

var (
	// ErrMemoryExhausted signals that an allocation would exceed the
	// Guardian budget. Guardian.Do recovers from it by evicting and retrying.
	ErrMemoryExhausted = errors.New("chunk memory exhausted")

	// ErrOutOfMemory is returned when an eviction pass could free nothing,
	// usually because every resident chunk is pinned.
	ErrOutOfMemory = errors.New("out of chunk memory: nothing left to evict")

	// ErrCorruptChunk is returned when a persisted chunk cannot be decoded.
	ErrCorruptChunk = errors.New("corrupt chunk")

	// ErrNotExact is returned when an aggregate does not fit a narrower type.
	ErrNotExact = errors.New("value does not fit exactly")

	// ErrNoData is returned by derived statistics of a grid without data cells.
	ErrNoData = errors.New("grid has no data cells")

	ErrDimensions    = errors.New("invalid grid dimensions")
	ErrKindMismatch  = errors.New("cell kind mismatch")
	ErrClosed        = errors.New("grid is closed")
	ErrDuplicateGrid = errors.New("grid name already registered")
	ErrGridNotFound  = errors.New("grid not found in store")
)
