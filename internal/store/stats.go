package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
)

// Metadata holds persistent store counters.
type Metadata struct {
	TotalStores  uint64 `json:"total_stores"`
	TotalLoads   uint64 `json:"total_loads"`
	BytesWritten uint64 `json:"bytes_written"`
	DiskBytes    uint64 `json:"disk_bytes"`
}

// StatsCollector collects and tracks I/O statistics for a store
type StatsCollector struct {
	loads        uint64
	misses       uint64
	stores       uint64
	deletes      uint64
	bytesRead    uint64
	bytesWritten uint64
	diskBytes    uint64

	// Path for metadata persistence ("" = in-memory only)
	dir string
}

// NewStatsCollector creates a new stats collector
func NewStatsCollector(dir string) *StatsCollector {
	return &StatsCollector{dir: dir}
}

func (s *StatsCollector) recordLoad(n int) {
	atomic.AddUint64(&s.loads, 1)
	atomic.AddUint64(&s.bytesRead, uint64(n))
}

func (s *StatsCollector) recordMiss() {
	atomic.AddUint64(&s.misses, 1)
}

func (s *StatsCollector) recordStore(n, disk int) {
	atomic.AddUint64(&s.stores, 1)
	atomic.AddUint64(&s.bytesWritten, uint64(n))
	atomic.AddUint64(&s.diskBytes, uint64(disk))
}

func (s *StatsCollector) recordDelete() {
	atomic.AddUint64(&s.deletes, 1)
}

// Stats returns the current statistics
func (s *StatsCollector) Stats() Stats {
	return Stats{
		Loads:        atomic.LoadUint64(&s.loads),
		Misses:       atomic.LoadUint64(&s.misses),
		Stores:       atomic.LoadUint64(&s.stores),
		Deletes:      atomic.LoadUint64(&s.deletes),
		BytesRead:    atomic.LoadUint64(&s.bytesRead),
		BytesWritten: atomic.LoadUint64(&s.bytesWritten),
		DiskBytes:    atomic.LoadUint64(&s.diskBytes),
	}
}

// statsFileName holds the persistent counters in the store root, next to the
// grid directories.
const statsFileName = "store.json"

// metadataPath returns the path to the metadata file
func (s *StatsCollector) metadataPath() string {
	return filepath.Join(s.dir, statsFileName)
}

// LoadMetadata loads persistent counters from disk
func (s *StatsCollector) LoadMetadata() error {
	if s.dir == "" {
		return nil
	}
	data, err := os.ReadFile(s.metadataPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return err
	}

	atomic.StoreUint64(&s.stores, meta.TotalStores)
	atomic.StoreUint64(&s.loads, meta.TotalLoads)
	atomic.StoreUint64(&s.bytesWritten, meta.BytesWritten)
	atomic.StoreUint64(&s.diskBytes, meta.DiskBytes)
	return nil
}

// SaveMetadata saves persistent counters to disk
func (s *StatsCollector) SaveMetadata() error {
	if s.dir == "" {
		return nil
	}
	meta := Metadata{
		TotalStores:  atomic.LoadUint64(&s.stores),
		TotalLoads:   atomic.LoadUint64(&s.loads),
		BytesWritten: atomic.LoadUint64(&s.bytesWritten),
		DiskBytes:    atomic.LoadUint64(&s.diskBytes),
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.metadataPath(), data)
}

// writeFileAtomic writes to a temp file then renames it over path
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
