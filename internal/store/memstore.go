package store

import (
	"sync"
)

// MemStore keeps chunk payloads in memory. Payloads are copied on the way in
// and out so callers may reuse their buffers.
type MemStore struct {
	mu     sync.RWMutex
	chunks map[ChunkKey][]byte
	meta   map[string][]byte
	stats  *StatsCollector
}

// NewMemStore creates an empty in-memory store
func NewMemStore() *MemStore {
	return &MemStore{
		chunks: make(map[ChunkKey][]byte),
		meta:   make(map[string][]byte),
		stats:  NewStatsCollector(""),
	}
}

// Load returns a copy of the payload stored for key
func (m *MemStore) Load(key ChunkKey) ([]byte, bool, error) {
	m.mu.RLock()
	data, ok := m.chunks[key]
	m.mu.RUnlock()
	if !ok {
		m.stats.recordMiss()
		return nil, false, nil
	}
	m.stats.recordLoad(len(data))
	return append([]byte(nil), data...), true, nil
}

// Store saves a copy of data under key, replacing any previous payload
func (m *MemStore) Store(key ChunkKey, data []byte) error {
	if err := ValidateGrid(key.Grid); err != nil {
		return err
	}
	m.mu.Lock()
	m.chunks[key] = append([]byte(nil), data...)
	m.mu.Unlock()
	m.stats.recordStore(len(data), 0)
	return nil
}

// Delete removes the payload for key. Deleting a missing key is not an error.
func (m *MemStore) Delete(key ChunkKey) error {
	m.mu.Lock()
	delete(m.chunks, key)
	m.mu.Unlock()
	m.stats.recordDelete()
	return nil
}

// LoadMeta returns the metadata blob for grid
func (m *MemStore) LoadMeta(grid string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.meta[grid]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

// StoreMeta saves the metadata blob for grid
func (m *MemStore) StoreMeta(grid string, data []byte) error {
	if err := ValidateGrid(grid); err != nil {
		return err
	}
	m.mu.Lock()
	m.meta[grid] = append([]byte(nil), data...)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored chunks across all grids
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

// Stats returns I/O counters
func (m *MemStore) Stats() Stats {
	return m.stats.Stats()
}
