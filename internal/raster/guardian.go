package raster

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// GuardianConfig configures a Guardian
type GuardianConfig struct {
	MemoryBudget int64                 // bytes of chunk footprint allowed, default 256MiB
	Reserve      int64                 // soft headroom kept free by proactive eviction, default MemoryBudget/16
	Logger       *zerolog.Logger       // nil disables logging; evictions log at debug
	Registerer   prometheus.Registerer // optional; registers chunkgrid_* collectors
}

// GuardianStats is a snapshot of the guardian's accounting.
type GuardianStats struct {
	Budget    int64
	Reserve   int64
	Resident  int64 // estimated bytes held by resident chunks
	Chunks    int   // resident chunks across all grids
	Grids     int
	Evictions uint64
	Persists  uint64
	Loads     uint64
	Exhausted uint64 // allocations refused with ErrMemoryExhausted
}

// owner is the guardian's view of a registered grid.
type owner interface {
	gridName() string
	victim(c ChunkCoord) (victimInfo, bool)
	// evict drops the chunk at c, persisting it first when dirty.
	evict(c ChunkCoord) error
	flushDirty() (int, error)
}

type victimInfo struct {
	rep    Representation
	dirty  bool
	pinned bool
}

// tier orders eviction candidates: cheapest first.
func (v victimInfo) tier() int {
	switch {
	case v.rep == Constant:
		return 2 // not worth swapping: frees almost nothing
	case v.dirty:
		return 1 // must be persisted before dropping
	default:
		return 0 // drop without I/O
	}
}

type residentKey struct {
	owner int
	coord ChunkCoord
}

// Guardian keeps the combined footprint of resident chunks, across every grid
// registered with it, under a memory budget.
//
// Every path that materializes or enlarges a chunk calls
// CheckAndMaybeFreeMemory and then Alloc inside an operation run by Do. Alloc
// refuses with ErrMemoryExhausted when the budget would be exceeded; Do then
// drops the reserve, evicts unpinned chunks (persisting modified ones),
// restores the reserve and reruns the whole operation. An eviction pass that
// frees nothing ends the loop with ErrOutOfMemory.
type Guardian struct {
	budget            int64
	reserve           int64
	configuredReserve int64
	resident          int64
	lastNeed          int64

	owners map[int]owner
	names  map[string]int
	nextID int

	// recency of resident chunks; value is the chunk footprint
	lru *simplelru.LRU[residentKey, int64]

	evictions uint64
	persists  uint64
	loads     uint64
	exhausted uint64

	log     zerolog.Logger
	metrics *guardianMetrics
}

const lruCapacity = 1 << 30

// NewGuardian creates a guardian
func NewGuardian(cfg GuardianConfig) (*Guardian, error) {
	if cfg.MemoryBudget == 0 {
		cfg.MemoryBudget = 256 * 1024 * 1024
	}
	if cfg.MemoryBudget < 0 {
		return nil, fmt.Errorf("guardian: negative memory budget %d", cfg.MemoryBudget)
	}
	if cfg.Reserve == 0 {
		cfg.Reserve = cfg.MemoryBudget / 16
	}
	if cfg.Reserve < 0 || cfg.Reserve >= cfg.MemoryBudget {
		cfg.Reserve = 0
	}

	lru, err := simplelru.NewLRU[residentKey, int64](lruCapacity, nil)
	if err != nil {
		return nil, err
	}

	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	g := &Guardian{
		budget:            cfg.MemoryBudget,
		reserve:           cfg.Reserve,
		configuredReserve: cfg.Reserve,
		owners:            make(map[int]owner),
		names:             make(map[string]int),
		lru:               lru,
		log:               log.With().Str("component", "guardian").Logger(),
		metrics:           newGuardianMetrics(),
	}
	if cfg.Registerer != nil {
		if err := g.metrics.register(cfg.Registerer); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return g, nil
}

// Budget returns the configured memory budget in bytes.
func (g *Guardian) Budget() int64 { return g.budget }

// Resident returns the estimated footprint of resident chunks.
func (g *Guardian) Resident() int64 { return g.resident }

func (g *Guardian) register(o owner) (int, error) {
	name := o.gridName()
	if _, ok := g.names[name]; ok {
		return 0, fmt.Errorf("%w: %q", ErrDuplicateGrid, name)
	}
	g.nextID++
	g.owners[g.nextID] = o
	g.names[name] = g.nextID
	return g.nextID, nil
}

// unregister forgets an owner and every resident chunk it had.
func (g *Guardian) unregister(id int) {
	o, ok := g.owners[id]
	if !ok {
		return
	}
	for _, k := range g.lru.Keys() {
		if k.owner == id {
			g.untrack(id, k.coord)
		}
	}
	delete(g.names, o.gridName())
	delete(g.owners, id)
}

// track records (or updates) the footprint of a resident chunk and marks it
// most recently used.
func (g *Guardian) track(id int, c ChunkCoord, size int64) {
	key := residentKey{owner: id, coord: c}
	if old, ok := g.lru.Peek(key); ok {
		g.resident -= old
	}
	g.lru.Add(key, size)
	g.resident += size
	g.metrics.resident.Set(float64(g.resident))
}

func (g *Guardian) touch(id int, c ChunkCoord) {
	g.lru.Get(residentKey{owner: id, coord: c})
}

func (g *Guardian) untrack(id int, c ChunkCoord) {
	key := residentKey{owner: id, coord: c}
	if old, ok := g.lru.Peek(key); ok {
		g.resident -= old
		g.lru.Remove(key)
		g.metrics.resident.Set(float64(g.resident))
	}
}

func (g *Guardian) recordLoad() {
	g.loads++
	g.metrics.loads.Inc()
}

func (g *Guardian) recordPersist() {
	g.persists++
	g.metrics.persists.Inc()
}

// Alloc checks that need more bytes fit the budget. It returns
// ErrMemoryExhausted when they do not; callers return that error from the
// operation they run under Do.
func (g *Guardian) Alloc(need int64) error {
	if need <= 0 || g.resident+need <= g.budget {
		return nil
	}
	g.lastNeed = need
	g.exhausted++
	g.metrics.exhausted.Inc()
	return fmt.Errorf("%w: need %d bytes with %d of %d resident", ErrMemoryExhausted, need, g.resident, g.budget)
}

// CheckAndMaybeFreeMemory proactively evicts unpinned chunks when need more
// bytes would cut into the reserve. It never fails for lack of victims; Alloc
// is the hard limit.
func (g *Guardian) CheckAndMaybeFreeMemory(need int64) error {
	limit := g.budget - g.reserve
	if g.resident+need <= limit {
		return nil
	}
	_, err := g.evictUntil(limit - need)
	return err
}

// Do runs op, evicting and rerunning it from the start each time it fails with
// ErrMemoryExhausted. op must be safe to rerun: state it built before the
// failure is discarded, not resumed.
func (g *Guardian) Do(op func() error) error {
	for {
		err := op()
		if !errors.Is(err, ErrMemoryExhausted) {
			return err
		}

		need := g.lastNeed
		g.reserve = 0
		n, ferr := g.evictUntil(g.budget - need)
		g.reserve = g.configuredReserve
		if ferr != nil {
			return ferr
		}
		if n == 0 {
			g.log.Warn().
				Str("need", humanize.IBytes(uint64(max(need, 0)))).
				Str("resident", humanize.IBytes(uint64(g.resident))).
				Str("budget", humanize.IBytes(uint64(g.budget))).
				Int("chunks", g.lru.Len()).
				Msg("eviction freed nothing")
			return fmt.Errorf("%w: need %d bytes with %d of %d resident in %d chunks",
				ErrOutOfMemory, need, g.resident, g.budget, g.lru.Len())
		}
		g.log.Debug().Int("evicted", n).Int64("need", need).Msg("retrying after eviction")
	}
}

// candidates lists evictable chunks, cheapest tier first and least recently
// used first within a tier. The most recently used chunk goes last whatever
// its tier, so alternating reads of two chunks do not evict each other while
// a colder dirty chunk stays resident.
func (g *Guardian) candidates() []residentKey {
	keys := g.lru.Keys() // oldest first
	var (
		tiers  [3][]residentKey
		newest []residentKey
	)
	for i, k := range keys {
		o, ok := g.owners[k.owner]
		if !ok {
			continue
		}
		info, ok := o.victim(k.coord)
		if !ok || info.pinned {
			continue
		}
		if i == len(keys)-1 {
			newest = append(newest, k)
			continue
		}
		t := info.tier()
		tiers[t] = append(tiers[t], k)
	}
	out := make([]residentKey, 0, len(keys))
	for _, t := range tiers {
		out = append(out, t...)
	}
	return append(out, newest...)
}

// evictUntil evicts candidates until the resident footprint is at most
// target, returning how many chunks it evicted.
func (g *Guardian) evictUntil(target int64) (int, error) {
	if g.resident <= target {
		return 0, nil
	}
	before := g.resident
	n := 0
	for _, k := range g.candidates() {
		if g.resident <= target {
			break
		}
		o := g.owners[k.owner]
		if err := o.evict(k.coord); err != nil {
			return n, fmt.Errorf("evict %s%s: %w", o.gridName(), k.coord, err)
		}
		g.untrack(k.owner, k.coord)
		n++
		g.evictions++
		g.metrics.evictions.Inc()
	}
	if n > 0 {
		g.log.Debug().
			Int("chunks", n).
			Str("freed", humanize.IBytes(uint64(before-g.resident))).
			Str("resident", humanize.IBytes(uint64(g.resident))).
			Msg("evicted chunks")
	}
	return n, nil
}

// FlushAll persists every modified resident chunk of every registered grid
// without evicting anything.
func (g *Guardian) FlushAll() (int, error) {
	ids := make([]int, 0, len(g.owners))
	for id := range g.owners {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	total := 0
	for _, id := range ids {
		n, err := g.owners[id].flushDirty()
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Stats returns a snapshot of the guardian's accounting.
func (g *Guardian) Stats() GuardianStats {
	return GuardianStats{
		Budget:    g.budget,
		Reserve:   g.reserve,
		Resident:  g.resident,
		Chunks:    g.lru.Len(),
		Grids:     len(g.owners),
		Evictions: g.evictions,
		Persists:  g.persists,
		Loads:     g.loads,
		Exhausted: g.exhausted,
	}
}
