package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a key is not found in the store.
var ErrNotFound = errors.New("not found")

// ErrInvalidGrid is returned for grid names that cannot be used as a namespace.
var ErrInvalidGrid = errors.New("invalid grid name")

// ChunkKey identifies one persisted chunk payload. Gen separates payloads
// written for the same chunk between two grid saves.
type ChunkKey struct {
	Grid string
	Row  int64
	Col  int64
	Gen  uint64
}

func (k ChunkKey) String() string {
	return fmt.Sprintf("%s[%d,%d]@%d", k.Grid, k.Row, k.Col, k.Gen)
}

// Stats holds I/O counters for a store.
type Stats struct {
	Loads        uint64 // Load calls that found a payload
	Misses       uint64 // Load calls that found nothing
	Stores       uint64
	Deletes      uint64
	BytesRead    uint64 // payload bytes returned by Load
	BytesWritten uint64 // payload bytes accepted by Store (before compression)
	DiskBytes    uint64 // bytes written to disk after compression (DirStore only)
}

// Store persists chunk payloads and grid metadata.
//
// Load reports (nil, false, nil) when nothing was ever stored for a key;
// a missing chunk is not an error.
type Store interface {
	Load(key ChunkKey) ([]byte, bool, error)
	Store(key ChunkKey, data []byte) error
	Delete(key ChunkKey) error

	LoadMeta(grid string) ([]byte, bool, error)
	StoreMeta(grid string, data []byte) error

	Stats() Stats
}

// ValidateGrid checks that a grid name is usable as a directory name.
func ValidateGrid(grid string) error {
	switch {
	case grid == "", grid == ".", grid == "..":
		return fmt.Errorf("%w: %q", ErrInvalidGrid, grid)
	case grid == statsFileName, grid == statsFileName+".tmp":
		return fmt.Errorf("%w: %q is reserved", ErrInvalidGrid, grid)
	case strings.ContainsAny(grid, `/\`+"\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidGrid, grid)
	}
	return nil
}
