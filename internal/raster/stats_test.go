package raster

import (
	"errors"
	"math"
	"math/big"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/stat"
)

func bigRat(n int64) *big.Rat { return big.NewRat(n, 1) }

// recordView flattens a Record for comparison.
type recordView struct {
	Count              int64
	Sum                string
	Min, Max           float64
	MinCount, MaxCount int64
}

func viewOf[T Number](r Record[T]) recordView {
	v := recordView{Count: r.Count, Sum: r.Sum.RatString()}
	if r.Count > 0 {
		v.Min, v.MinCount = float64(r.Min), r.MinCount
		v.Max, v.MaxCount = float64(r.Max), r.MaxCount
	}
	return v
}

// bruteForce computes the record by reading every cell.
func bruteForce[T Number](t *testing.T, grid *NumericGrid[T]) recordView {
	t.Helper()
	acc := newAccumulator(grid.NoData())
	d := grid.Dims()
	for r := int64(0); r < d.Rows; r++ {
		for c := int64(0); c < d.Cols; c++ {
			v, err := grid.Get(r, c)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			acc.addRun(v, 1)
		}
	}
	return viewOf(acc.record(true))
}

func TestEagerMatchesRescan(t *testing.T) {
	g := newTestGuardian(t, 1<<20)
	grid, err := NewNumeric[int32](g, Int32Kind{NoDataValue: -1}, Eager, Config{
		Name: "eager",
		Dims: Dimensions{Rows: 10, Cols: 10, ChunkRows: 4, ChunkCols: 4},
	})
	if err != nil {
		t.Fatalf("NewNumeric: %v", err)
	}

	rng := rand.New(rand.NewPCG(7, 11))
	stale := 0
	for i := 0; i < 2000; i++ {
		v := rng.Int32N(6) - 1 // -1 is no-data
		if _, err := grid.Set(rng.Int64N(10), rng.Int64N(10), v); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if !grid.Record().Fresh {
			stale++
		}
		if i%97 == 0 {
			r, err := grid.Current()
			if err != nil {
				t.Fatalf("Current: %v", err)
			}
			if diff := cmp.Diff(bruteForce(t, grid), viewOf(r)); diff != "" {
				t.Fatalf("write %d: eager record differs from rescan (-want +got):\n%s", i, diff)
			}
		}
	}
	r, _ := grid.Current()
	if diff := cmp.Diff(bruteForce(t, grid), viewOf(r)); diff != "" {
		t.Errorf("final record differs (-want +got):\n%s", diff)
	}
	if stale == 0 {
		t.Log("no write removed the last min or max")
	}
}

func TestEagerLosesExtremum(t *testing.T) {
	g := newTestGuardian(t, 1<<20)
	grid, _ := NewNumeric[int64](g, Int64Kind{NoDataValue: -1}, Eager, Config{Name: "ext", Dims: Dimensions{Rows: 3, Cols: 3}})
	grid.Set(0, 0, 1)
	grid.Set(0, 1, 5)
	grid.Set(0, 2, 5)
	grid.Set(0, 1, 3) // one 5 left
	if r := grid.Record(); !r.Fresh || r.Max != 5 || r.MaxCount != 1 {
		t.Fatalf("record = %+v", r)
	}
	grid.Set(0, 2, 3) // last 5 gone
	if grid.Record().Fresh {
		t.Fatal("record still fresh after removing the last maximum")
	}
	r, err := grid.Current()
	if err != nil || !r.Fresh || r.Max != 3 || r.MaxCount != 2 || r.Min != 1 {
		t.Errorf("Current = (%+v, %v)", r, err)
	}
}

func TestLazyUpdateIsIdempotent(t *testing.T) {
	g := newTestGuardian(t, 1<<20)
	grid, _ := NewNumeric[float64](g, Float64Kind{NoDataValue: -9999}, Lazy, Config{
		Name: "lazy",
		Dims: Dimensions{Rows: 20, Cols: 20, ChunkRows: 8, ChunkCols: 8},
	})
	grid.Set(1, 1, 2.5)
	grid.Set(19, 19, -4)
	if grid.Record().Fresh {
		t.Fatal("lazy record fresh after a write")
	}
	if err := grid.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}
	first := viewOf(grid.Record())
	if err := grid.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if diff := cmp.Diff(first, viewOf(grid.Record())); diff != "" {
		t.Errorf("second Update changed the record (-first +second):\n%s", diff)
	}
	if first.Count != 2 || first.Sum != "-3/2" {
		t.Errorf("record = %+v", first)
	}
}

func TestFastWritesMarkStale(t *testing.T) {
	g := newTestGuardian(t, 1<<20)
	grid, _ := NewNumeric[int32](g, Int32Kind{NoDataValue: -1}, Eager, Config{Name: "fast", Dims: Dimensions{Rows: 4, Cols: 4}})
	grid.SetFast(0, 0, 9)
	if grid.Record().Fresh {
		t.Fatal("record fresh after a fast write")
	}
	r, err := grid.Current()
	if err != nil || r.Count != 1 || r.Max != 9 {
		t.Errorf("Current = (%+v, %v)", r, err)
	}
}

func TestMeanAndStandardDeviation(t *testing.T) {
	g := newTestGuardian(t, 1<<20)
	grid, _ := NewNumeric[float64](g, Float64Kind{NoDataValue: DefaultFloatNoData}, Lazy, Config{
		Name: "sd",
		Dims: Dimensions{Rows: 30, Cols: 30, ChunkRows: 7, ChunkCols: 9},
	})
	rng := rand.New(rand.NewPCG(3, 5))
	var xs []float64
	for r := int64(0); r < 30; r++ {
		for c := int64(0); c < 30; c++ {
			if rng.IntN(4) == 0 {
				continue
			}
			v := math.Round(rng.NormFloat64()*1000) / 8
			grid.Set(r, c, v)
			xs = append(xs, v)
		}
	}

	mean, err := grid.Mean()
	if err != nil {
		t.Fatalf("Mean: %v", err)
	}
	if got, _ := mean.Float64(); math.Abs(got-stat.Mean(xs, nil)) > 1e-9 {
		t.Errorf("Mean = %v, gonum says %v", got, stat.Mean(xs, nil))
	}
	sd, err := grid.StandardDeviation()
	if err != nil {
		t.Fatalf("StandardDeviation: %v", err)
	}
	if want := stat.StdDev(xs, nil); math.Abs(sd-want) > 1e-9*want {
		t.Errorf("StandardDeviation = %v, gonum says %v", sd, want)
	}
}

func TestDerivedStatisticsEdgeCases(t *testing.T) {
	g := newTestGuardian(t, 1<<20)
	grid, _ := NewNumeric[int32](g, Int32Kind{NoDataValue: -1}, Eager, Config{Name: "edge", Dims: Dimensions{Rows: 2, Cols: 2}})
	if _, err := grid.Mean(); !errors.Is(err, ErrNoData) {
		t.Errorf("Mean of empty grid = %v, want ErrNoData", err)
	}
	grid.Set(0, 0, 4)
	if sd, err := grid.StandardDeviation(); err != nil || sd != 0 {
		t.Errorf("StandardDeviation of one cell = (%v, %v), want 0", sd, err)
	}
}

func TestSumInt64(t *testing.T) {
	g := newTestGuardian(t, 1<<20)
	ints, _ := NewNumeric[int64](g, Int64Kind{NoDataValue: math.MinInt64}, Eager, Config{Name: "i", Dims: Dimensions{Rows: 2, Cols: 2}})
	ints.Set(0, 0, math.MaxInt64)
	if s, err := ints.Record().SumInt64(); err != nil || s != math.MaxInt64 {
		t.Errorf("SumInt64 = (%d, %v)", s, err)
	}
	ints.Set(0, 1, 1)
	if _, err := ints.Record().SumInt64(); !errors.Is(err, ErrNotExact) {
		t.Errorf("overflowing SumInt64 = %v, want ErrNotExact", err)
	}

	floats, _ := NewNumeric[float32](g, Float32Kind{NoDataValue: -1}, Eager, Config{Name: "f", Dims: Dimensions{Rows: 2, Cols: 2}})
	floats.Set(1, 1, 0.5)
	if _, err := floats.Record().SumInt64(); !errors.Is(err, ErrNotExact) {
		t.Errorf("fractional SumInt64 = %v, want ErrNotExact", err)
	}
	if got := floats.Record().SumFloat64(); got != 0.5 {
		t.Errorf("SumFloat64 = %v", got)
	}
}

func TestParseStatsPolicy(t *testing.T) {
	for in, want := range map[string]StatsPolicy{"": Eager, "eager": Eager, "lazy": Lazy} {
		if got, err := ParseStatsPolicy(in); err != nil || got != want {
			t.Errorf("ParseStatsPolicy(%q) = (%v, %v)", in, got, err)
		}
	}
	if _, err := ParseStatsPolicy("sometimes"); err == nil {
		t.Error("unknown policy accepted")
	}
}
