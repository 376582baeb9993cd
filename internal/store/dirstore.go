package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const (
	chunkExt     = ".chk"
	metaFileName = "meta.json"
)

// DirConfig configures a DirStore
type DirConfig struct {
	Dir         string
	Compression string // "fast" (default) or "best"
}

// DirStore persists each chunk as its own zstd-compressed file:
//
//	<dir>/<grid>/c_<row>_<col>.chk
//	<dir>/<grid>/meta.json
//
// Files are written to a .tmp sibling and renamed, so a crash never leaves a
// half-written chunk behind.
type DirStore struct {
	dir     string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	stats   *StatsCollector
}

// NewDirStore opens (creating if needed) a directory-backed store
func NewDirStore(cfg DirConfig) (*DirStore, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("dir store: empty directory")
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, err
	}

	level := zstd.SpeedFastest
	switch cfg.Compression {
	case "", "fast":
	case "best":
		level = zstd.SpeedBestCompression
	default:
		return nil, fmt.Errorf("dir store: unknown compression %q", cfg.Compression)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, err
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		encoder.Close()
		return nil, err
	}

	s := &DirStore{
		dir:     cfg.Dir,
		encoder: encoder,
		decoder: decoder,
		stats:   NewStatsCollector(cfg.Dir),
	}
	if err := s.stats.LoadMetadata(); err != nil {
		s.Close()
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	return s, nil
}

// Dir returns the root directory
func (s *DirStore) Dir() string {
	return s.dir
}

func (s *DirStore) gridDir(grid string) string {
	return filepath.Join(s.dir, grid)
}

func (s *DirStore) chunkPath(key ChunkKey) string {
	return filepath.Join(s.gridDir(key.Grid), fmt.Sprintf("c_%d_%d_g%d%s", key.Row, key.Col, key.Gen, chunkExt))
}

// Load reads and decompresses the chunk file for key
func (s *DirStore) Load(key ChunkKey) ([]byte, bool, error) {
	if err := ValidateGrid(key.Grid); err != nil {
		return nil, false, err
	}
	raw, err := os.ReadFile(s.chunkPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			s.stats.recordMiss()
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read chunk %s: %w", key, err)
	}
	data, err := s.decoder.DecodeAll(raw, nil)
	if err != nil {
		return nil, false, fmt.Errorf("decompress chunk %s: %w", key, err)
	}
	s.stats.recordLoad(len(data))
	return data, true, nil
}

// Store compresses data and writes it atomically
func (s *DirStore) Store(key ChunkKey, data []byte) error {
	if err := ValidateGrid(key.Grid); err != nil {
		return err
	}
	if err := os.MkdirAll(s.gridDir(key.Grid), 0755); err != nil {
		return err
	}
	compressed := s.encoder.EncodeAll(data, nil)
	if err := writeFileAtomic(s.chunkPath(key), compressed); err != nil {
		return fmt.Errorf("write chunk %s: %w", key, err)
	}
	s.stats.recordStore(len(data), len(compressed))
	return nil
}

// Delete removes the chunk file for key
func (s *DirStore) Delete(key ChunkKey) error {
	if err := ValidateGrid(key.Grid); err != nil {
		return err
	}
	err := os.Remove(s.chunkPath(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	s.stats.recordDelete()
	return nil
}

// LoadMeta reads <dir>/<grid>/meta.json
func (s *DirStore) LoadMeta(grid string) ([]byte, bool, error) {
	if err := ValidateGrid(grid); err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(filepath.Join(s.gridDir(grid), metaFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// StoreMeta writes <dir>/<grid>/meta.json atomically
func (s *DirStore) StoreMeta(grid string, data []byte) error {
	if err := ValidateGrid(grid); err != nil {
		return err
	}
	if err := os.MkdirAll(s.gridDir(grid), 0755); err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(s.gridDir(grid), metaFileName), data)
}

// DeleteGrid removes every file belonging to grid
func (s *DirStore) DeleteGrid(grid string) error {
	if err := ValidateGrid(grid); err != nil {
		return err
	}
	return os.RemoveAll(s.gridDir(grid))
}

// Grids lists the grid namespaces that have metadata on disk
func (s *DirStore) Grids() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var grids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.dir, e.Name(), metaFileName)); err == nil {
			grids = append(grids, e.Name())
		}
	}
	return grids, nil
}

// Stats returns I/O counters
func (s *DirStore) Stats() Stats {
	return s.stats.Stats()
}

// Close saves counters and releases the codecs
func (s *DirStore) Close() error {
	err := s.stats.SaveMetadata()
	s.encoder.Close()
	s.decoder.Close()
	return err
}
