package raster

import (
	"fmt"
	"math"
	"math/big"
)

// StatsPolicy selects how a numeric grid keeps its statistics record fresh.
type StatsPolicy uint8

const (
	// Eager updates count, sum, min and max on every write. Only removing the
	// last instance of the minimum or maximum forces a rescan.
	Eager StatsPolicy = iota
	// Lazy marks the record stale on every write; Update rescans.
	Lazy
)

func (p StatsPolicy) String() string {
	if p == Lazy {
		return "lazy"
	}
	return "eager"
}

// ParseStatsPolicy parses "eager" or "lazy".
func ParseStatsPolicy(s string) (StatsPolicy, error) {
	switch s {
	case "eager", "":
		return Eager, nil
	case "lazy":
		return Lazy, nil
	}
	return 0, fmt.Errorf("unknown stats policy %q", s)
}

// Record is a snapshot of a grid's aggregate statistics over data cells.
// Min and Max are meaningful only when Count > 0.
type Record[T Number] struct {
	Count    int64
	Sum      *big.Rat
	Min      T
	MinCount int64
	Max      T
	MaxCount int64
	// Fresh reports whether the record reflects every write made so far.
	Fresh bool
}

// Mean returns the exact arithmetic mean.
func (r Record[T]) Mean() (*big.Rat, error) {
	if r.Count == 0 {
		return nil, ErrNoData
	}
	return new(big.Rat).Quo(r.Sum, new(big.Rat).SetInt64(r.Count)), nil
}

// SumInt64 returns the sum when it is an integer that fits in an int64.
func (r Record[T]) SumInt64() (int64, error) {
	if !r.Sum.IsInt() || !r.Sum.Num().IsInt64() {
		return 0, fmt.Errorf("%w: sum %s as int64", ErrNotExact, r.Sum.RatString())
	}
	return r.Sum.Num().Int64(), nil
}

// SumFloat64 returns the sum rounded to the nearest float64.
func (r Record[T]) SumFloat64() float64 {
	f, _ := r.Sum.Float64()
	return f
}

// statsTracker is one of the two StatsPolicy implementations.
type statsTracker[T Number] interface {
	observer[T]
	policy() StatsPolicy
	fresh() bool
	snapshot() Record[T]
	reset(acc *accumulator[T])
}

// accumulator holds the mutable aggregate shared by both policies.
type accumulator[T Number] struct {
	nodata             T
	count              int64
	sum                big.Rat
	min, max           T
	minCount, maxCount int64
	scratch            big.Rat
}

func newAccumulator[T Number](nodata T) *accumulator[T] {
	return &accumulator[T]{nodata: nodata}
}

// integral reports whether T is an integer type.
func integral[T Number]() bool {
	f := 0.5
	return T(f) == 0
}

func ratOf[T Number](dst *big.Rat, v T) *big.Rat {
	if integral[T]() {
		return dst.SetInt64(int64(v))
	}
	return dst.SetFloat64(float64(v))
}

// addRun adds n cells of value v.
func (a *accumulator[T]) addRun(v T, n int64) {
	if v == a.nodata || n <= 0 {
		return
	}
	if a.count == 0 {
		a.min, a.minCount = v, n
		a.max, a.maxCount = v, n
	} else {
		switch {
		case v < a.min:
			a.min, a.minCount = v, n
		case v == a.min:
			a.minCount += n
		}
		switch {
		case v > a.max:
			a.max, a.maxCount = v, n
		case v == a.max:
			a.maxCount += n
		}
	}
	a.count += n
	ratOf(&a.scratch, v)
	if n != 1 {
		var k big.Rat
		a.scratch.Mul(&a.scratch, k.SetInt64(n))
	}
	a.sum.Add(&a.sum, &a.scratch)
}

// remove takes one cell of value v out. It returns false when v was the last
// instance of the minimum or maximum, which leaves min or max unknown.
func (a *accumulator[T]) remove(v T) bool {
	if v == a.nodata || a.count == 0 {
		return true
	}
	a.count--
	a.sum.Sub(&a.sum, ratOf(&a.scratch, v))
	if a.count == 0 {
		a.clear()
		return true
	}
	ok := true
	if v == a.min {
		a.minCount--
		ok = a.minCount > 0
	}
	if v == a.max {
		a.maxCount--
		ok = ok && a.maxCount > 0
	}
	return ok
}

func (a *accumulator[T]) clear() {
	nd := a.nodata
	*a = accumulator[T]{nodata: nd}
}

func (a *accumulator[T]) record(fresh bool) Record[T] {
	return Record[T]{
		Count:    a.count,
		Sum:      new(big.Rat).Set(&a.sum),
		Min:      a.min,
		MinCount: a.minCount,
		Max:      a.max,
		MaxCount: a.maxCount,
		Fresh:    fresh,
	}
}

type eagerTracker[T Number] struct {
	acc   *accumulator[T]
	stale bool
}

func (t *eagerTracker[T]) policy() StatsPolicy { return Eager }
func (t *eagerTracker[T]) fresh() bool         { return !t.stale }
func (t *eagerTracker[T]) invalidate()         { t.stale = true }
func (t *eagerTracker[T]) snapshot() Record[T] { return t.acc.record(!t.stale) }

func (t *eagerTracker[T]) reset(acc *accumulator[T]) {
	t.acc = acc
	t.stale = false
}

func (t *eagerTracker[T]) onWrite(prev, next T) {
	if t.stale || prev == next {
		return
	}
	if !t.acc.remove(prev) {
		t.stale = true
		return
	}
	t.acc.addRun(next, 1)
}

type lazyTracker[T Number] struct {
	acc   *accumulator[T]
	stale bool
}

func (t *lazyTracker[T]) policy() StatsPolicy  { return Lazy }
func (t *lazyTracker[T]) fresh() bool          { return !t.stale }
func (t *lazyTracker[T]) invalidate()          { t.stale = true }
func (t *lazyTracker[T]) onWrite(prev, next T) { t.stale = true }
func (t *lazyTracker[T]) snapshot() Record[T]  { return t.acc.record(!t.stale) }

func (t *lazyTracker[T]) reset(acc *accumulator[T]) {
	t.acc = acc
	t.stale = false
}

func newTracker[T Number](p StatsPolicy, nodata T) statsTracker[T] {
	if p == Lazy {
		return &lazyTracker[T]{acc: newAccumulator(nodata)}
	}
	return &eagerTracker[T]{acc: newAccumulator(nodata)}
}

// NumericGrid is a Grid of numbers with a statistics record maintained under
// a StatsPolicy.
type NumericGrid[T Number] struct {
	*Grid[T]
	stats statsTracker[T]
}

// NewNumeric creates an empty numeric grid. Its statistics start fresh: no
// data cells.
func NewNumeric[T Number](g *Guardian, kind Kind[T], policy StatsPolicy, cfg Config) (*NumericGrid[T], error) {
	grid, err := New(g, kind, cfg)
	if err != nil {
		return nil, err
	}
	return attachStats(grid, policy), nil
}

func attachStats[T Number](grid *Grid[T], policy StatsPolicy) *NumericGrid[T] {
	t := newTracker(policy, grid.nodata)
	grid.obs = t
	return &NumericGrid[T]{Grid: grid, stats: t}
}

// OpenNumeric opens a saved numeric grid. A statistics record saved with the
// grid is restored as fresh; otherwise the record is stale until Update.
func OpenNumeric[T Number](g *Guardian, kind Kind[T], policy StatsPolicy, cfg Config) (*NumericGrid[T], error) {
	grid, m, err := Open(g, kind, cfg)
	if err != nil {
		return nil, err
	}
	ng := attachStats(grid, policy)
	if m.Stats == nil {
		ng.stats.invalidate()
		return ng, nil
	}
	acc, err := accumulatorFromMeta(kind, m.Stats)
	if err != nil {
		grid.Close()
		return nil, fmt.Errorf("%s stats: %w", cfg.Name, err)
	}
	ng.stats.reset(acc)
	return ng, nil
}

func accumulatorFromMeta[T Number](kind Kind[T], sm *StatsMeta) (*accumulator[T], error) {
	acc := newAccumulator(kind.NoData())
	if sm.Count == 0 {
		return acc, nil
	}
	if _, ok := acc.sum.SetString(sm.Sum); !ok {
		return nil, fmt.Errorf("bad sum %q", sm.Sum)
	}
	var err error
	if acc.min, err = kind.Parse(sm.Min); err != nil {
		return nil, err
	}
	if acc.max, err = kind.Parse(sm.Max); err != nil {
		return nil, err
	}
	acc.count, acc.minCount, acc.maxCount = sm.Count, sm.MinCount, sm.MaxCount
	return acc, nil
}

// Policy returns the grid's statistics policy.
func (g *NumericGrid[T]) Policy() StatsPolicy { return g.stats.policy() }

// Record returns the current statistics record without rescanning; check
// Fresh before trusting it.
func (g *NumericGrid[T]) Record() Record[T] { return g.stats.snapshot() }

// Current returns a fresh statistics record, rescanning if needed.
func (g *NumericGrid[T]) Current() (Record[T], error) {
	if !g.stats.fresh() {
		if err := g.Update(); err != nil {
			return Record[T]{}, err
		}
	}
	return g.stats.snapshot(), nil
}

// Update recomputes the statistics from every cell.
func (g *NumericGrid[T]) Update() error {
	acc := newAccumulator(g.nodata)
	if err := g.visitRuns(acc.addRun); err != nil {
		return err
	}
	g.stats.reset(acc)
	return nil
}

// Mean returns the exact mean of the data cells.
func (g *NumericGrid[T]) Mean() (*big.Rat, error) {
	r, err := g.Current()
	if err != nil {
		return nil, err
	}
	return r.Mean()
}

// StandardDeviation returns the sample standard deviation (n-1 denominator)
// of the data cells. The squared deviations are summed exactly in one extra
// pass over the grid. It is 0 for a single data cell.
func (g *NumericGrid[T]) StandardDeviation() (float64, error) {
	r, err := g.Current()
	if err != nil {
		return 0, err
	}
	mean, err := r.Mean()
	if err != nil {
		return 0, err
	}
	if r.Count < 2 {
		return 0, nil
	}

	var ss, d, k big.Rat
	err = g.visitRuns(func(v T, n int64) {
		if v == g.nodata {
			return
		}
		ratOf(&d, v)
		d.Sub(&d, mean)
		d.Mul(&d, &d)
		d.Mul(&d, k.SetInt64(n))
		ss.Add(&ss, &d)
	})
	if err != nil {
		return 0, err
	}
	ss.Quo(&ss, k.SetInt64(r.Count-1))

	prec := uint(max(64, ss.Num().BitLen()+ss.Denom().BitLen()))
	variance := new(big.Float).SetPrec(prec).SetRat(&ss)
	sd, _ := new(big.Float).SetPrec(prec).Sqrt(variance).Float64()
	if math.IsInf(sd, 0) {
		return sd, fmt.Errorf("%w: standard deviation overflows float64", ErrNotExact)
	}
	return sd, nil
}

// Save persists the grid like Grid.Save and stores a fresh statistics record
// with the header.
func (g *NumericGrid[T]) Save() error {
	return g.saveWith(func(m *Meta) {
		m.Policy = g.stats.policy().String()
		if !g.stats.fresh() {
			return
		}
		r := g.stats.snapshot()
		sm := &StatsMeta{Count: r.Count, Sum: r.Sum.RatString()}
		if r.Count > 0 {
			sm.Min, sm.MinCount = g.kind.Format(r.Min), r.MinCount
			sm.Max, sm.MaxCount = g.kind.Format(r.Max), r.MaxCount
		}
		m.Stats = sm
	})
}

// visitRuns feeds fn runs of values covering every cell of the grid, one
// chunk at a time. Chunks with no stored payload that are not resident are
// reported as a single no-data run without being loaded.
func (g *Grid[T]) visitRuns(fn func(v T, n int64)) error {
	if g.closed {
		return ErrClosed
	}
	for c := range g.Chunks() {
		s, ok := g.dir.get(c)
		if !ok || (s.chunk == nil && !s.persisted) {
			rows, cols := g.dims.ChunkShape(c)
			fn(g.nodata, int64(rows)*int64(cols))
			continue
		}
		release := g.pins.Pin(c)
		err := g.guardian.Do(func() error {
			s, err := g.ensureResident(c)
			if err != nil {
				return err
			}
			s.chunk.Runs(fn)
			return nil
		})
		release()
		if err != nil {
			return err
		}
	}
	return nil
}
