package raster

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/freeeve/chunkgrid/internal/store"
)

// Config configures a grid.
type Config struct {
	Name   string          // unique per Guardian; also the backing-store namespace
	Dims   Dimensions      // ChunkRows/ChunkCols default to 256, CellSize to 1
	Store  store.Store     // nil means a fresh in-memory store
	Logger *zerolog.Logger // nil means the Guardian's logger
}

// Grid is a chunked two-dimensional grid of T cells. Every cell starts as the
// kind's no-data value.
type Grid[T comparable] struct {
	name   string
	dims   Dimensions
	kind   Kind[T]
	nodata T

	dir      *directory[T]
	pins     *PinSet
	guardian *Guardian
	store    store.Store
	log      zerolog.Logger

	// obs sees every tracked write; nil for grids without statistics
	obs observer[T]

	// gen is the payload generation persist writes; the saved header holds
	// generations below it
	gen uint64

	id     int
	closed bool
}

// observer is fed the old and new value of every tracked write.
type observer[T comparable] interface {
	onWrite(prev, next T)
	invalidate()
}

// New creates an empty grid registered with g.
func New[T comparable](g *Guardian, kind Kind[T], cfg Config) (*Grid[T], error) {
	if g == nil {
		return nil, errors.New("raster: nil guardian")
	}
	if err := validateKind(kind); err != nil {
		return nil, err
	}
	if err := store.ValidateGrid(cfg.Name); err != nil {
		return nil, err
	}
	dims := cfg.Dims.withDefaults()
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	if cfg.Store == nil {
		cfg.Store = store.NewMemStore()
	}
	log := g.log
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	grid := &Grid[T]{
		name:     cfg.Name,
		dims:     dims,
		kind:     kind,
		nodata:   kind.NoData(),
		dir:      newDirectory[T](),
		pins:     newPinSet(),
		guardian: g,
		store:    cfg.Store,
		log:      log.With().Str("grid", cfg.Name).Logger(),
		gen:      1,
	}
	id, err := g.register(grid)
	if err != nil {
		return nil, err
	}
	grid.id = id
	return grid, nil
}

// NewBool creates an empty tri-state boolean grid; every cell starts Null.
func NewBool(g *Guardian, cfg Config) (*Grid[Bool], error) {
	return New[Bool](g, BoolKind{}, cfg)
}

// Name returns the grid name.
func (g *Grid[T]) Name() string { return g.name }

// Dims returns the grid dimensions.
func (g *Grid[T]) Dims() Dimensions { return g.dims }

// Kind returns the cell kind.
func (g *Grid[T]) Kind() Kind[T] { return g.kind }

// NoData returns the no-data value (Null for boolean grids).
func (g *Grid[T]) NoData() T { return g.nodata }

// IsNoData reports whether v is the no-data value.
func (g *Grid[T]) IsNoData(v T) bool { return g.kind.Canonical(v) == g.nodata }

// Guardian returns the guardian the grid is registered with.
func (g *Grid[T]) Guardian() *Guardian { return g.guardian }

// Pins returns the grid's pin set. Operations spanning several chunks pin
// them here so eviction passes leave them resident.
func (g *Grid[T]) Pins() *PinSet { return g.pins }

// ResidentChunks returns how many chunks are in memory.
func (g *Grid[T]) ResidentChunks() int { return g.dir.resident }

// Representation returns the representation of the chunk at c, loading it if
// needed.
func (g *Grid[T]) Representation(c ChunkCoord) (Representation, error) {
	if !g.dims.validChunk(c) {
		return 0, fmt.Errorf("%w: chunk %s outside grid", ErrDimensions, c)
	}
	var rep Representation
	err := g.guardian.Do(func() error {
		s, err := g.ensureResident(c)
		if err != nil {
			return err
		}
		rep = s.chunk.Representation()
		return nil
	})
	return rep, err
}

// Meta is the persisted grid header.
type Meta struct {
	Name   string        `json:"name"`
	Kind   string        `json:"kind"`
	NoData string        `json:"nodata"`
	Dims   Dimensions    `json:"dims"`
	Gen    uint64        `json:"gen"`
	Chunks []StoredChunk `json:"chunks,omitempty"` // coordinates with a stored payload
	Policy string        `json:"policy,omitempty"`
	Stats  *StatsMeta    `json:"stats,omitempty"`
}

// StoredChunk is a chunk coordinate and the generation of its committed
// payload.
type StoredChunk struct {
	ChunkCoord
	Gen uint64 `json:"gen"`
}

// StatsMeta is a fresh statistics record in text form.
type StatsMeta struct {
	Count    int64  `json:"count"`
	Sum      string `json:"sum"`
	Min      string `json:"min,omitempty"`
	MinCount int64  `json:"min_count,omitempty"`
	Max      string `json:"max,omitempty"`
	MaxCount int64  `json:"max_count,omitempty"`
}

// ReadMeta loads the header of a saved grid.
func ReadMeta(st store.Store, name string) (Meta, error) {
	var m Meta
	data, ok, err := st.LoadMeta(name)
	if err != nil {
		return m, fmt.Errorf("load meta %s: %w", name, err)
	}
	if !ok {
		return m, fmt.Errorf("%w: %s", ErrGridNotFound, name)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode meta %s: %w", name, err)
	}
	return m, nil
}

// Open registers a previously saved grid with g. Chunks stay in the store
// until first touched.
func Open[T comparable](g *Guardian, kind Kind[T], cfg Config) (*Grid[T], Meta, error) {
	if cfg.Store == nil {
		return nil, Meta{}, errors.New("raster: open needs a store")
	}
	m, err := ReadMeta(cfg.Store, cfg.Name)
	if err != nil {
		return nil, m, err
	}
	if m.Kind != kind.Name() {
		return nil, m, fmt.Errorf("%w: %s holds %s cells, not %s", ErrKindMismatch, cfg.Name, m.Kind, kind.Name())
	}
	nd, err := kind.Parse(m.NoData)
	if err != nil || nd != kind.NoData() {
		return nil, m, fmt.Errorf("%w: %s no-data %q does not match %s", ErrKindMismatch, cfg.Name, m.NoData, kind.Format(kind.NoData()))
	}

	cfg.Dims = m.Dims
	grid, err := New(g, kind, cfg)
	if err != nil {
		return nil, m, err
	}
	gen := m.Gen
	for _, c := range m.Chunks {
		if !grid.dims.validChunk(c.ChunkCoord) {
			grid.Close()
			return nil, m, fmt.Errorf("%w: %s lists chunk %s outside the grid", ErrCorruptChunk, cfg.Name, c.ChunkCoord)
		}
		s := grid.dir.getOrCreate(c.ChunkCoord)
		s.persisted = true
		s.gen, s.committed = c.Gen, c.Gen
		gen = max(gen, c.Gen)
	}
	grid.gen = gen + 1
	grid.log.Debug().Int("chunks", len(m.Chunks)).Msg("opened grid")
	return grid, m, nil
}

// meta builds the grid header.
func (g *Grid[T]) meta() Meta {
	m := Meta{
		Name:   g.name,
		Kind:   g.kind.Name(),
		NoData: g.kind.Format(g.nodata),
		Dims:   g.dims,
		Gen:    g.gen,
	}
	g.dir.ascend(func(s *slot[T]) bool {
		if s.persisted {
			m.Chunks = append(m.Chunks, StoredChunk{ChunkCoord: s.coord, Gen: s.gen})
		}
		return true
	})
	return m
}

// Save persists every modified chunk and then the grid header, which is the
// commit point: Open only reads payloads a header lists. Chunks stay
// resident.
func (g *Grid[T]) Save() error {
	return g.saveWith(nil)
}

func (g *Grid[T]) saveWith(decorate func(*Meta)) error {
	if g.closed {
		return ErrClosed
	}
	n, err := g.flushDirty()
	if err != nil {
		return err
	}
	m := g.meta()
	if decorate != nil {
		decorate(&m)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	if err := g.store.StoreMeta(g.name, data); err != nil {
		return fmt.Errorf("store meta %s: %w", g.name, err)
	}
	g.commit()
	g.log.Debug().Int("persisted", n).Int("chunks", len(m.Chunks)).Msg("saved grid")
	return nil
}

// commit marks the payloads just listed in the header as committed and
// removes the ones they replace.
func (g *Grid[T]) commit() {
	g.dir.ascend(func(s *slot[T]) bool {
		if !s.persisted || s.committed == s.gen {
			return true
		}
		if s.committed != 0 {
			g.dropPayload(s.coord, s.committed)
		}
		s.committed = s.gen
		return true
	})
	g.gen++
}

// dropPayload deletes a payload no header refers to. A failure only leaves
// an orphan file behind.
func (g *Grid[T]) dropPayload(c ChunkCoord, gen uint64) {
	if err := g.store.Delete(g.key(c, gen)); err != nil {
		g.log.Warn().Err(err).Stringer("chunk", c).Uint64("gen", gen).Msg("delete stale chunk")
	}
}

// Close unregisters the grid and drops its chunks without persisting them.
// Chunks written since the last Save, including those persisted by eviction
// or FlushAll, are discarded; a reopened grid sees the saved state.
func (g *Grid[T]) Close() {
	if g.closed {
		return
	}
	g.dir.ascend(func(s *slot[T]) bool {
		if s.persisted && s.gen != s.committed {
			g.dropPayload(s.coord, s.gen)
		}
		return true
	})
	g.guardian.unregister(g.id)
	g.dir = newDirectory[T]()
	g.closed = true
}

// Compact re-selects the smallest representation for every resident chunk.
// It returns the bytes saved.
func (g *Grid[T]) Compact() (int64, error) {
	if g.closed {
		return 0, ErrClosed
	}
	var saved int64
	for _, s := range g.dir.residentSlots() {
		before := s.chunk.Footprint()
		next := Compact(s.chunk)
		if next == s.chunk {
			continue
		}
		g.install(s, next)
		saved += before - next.Footprint()
	}
	g.log.Debug().Int64("saved", saved).Msg("compacted chunks")
	return saved, nil
}
