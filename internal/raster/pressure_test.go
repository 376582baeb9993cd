package raster

import (
	"math/big"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// A 5000-byte budget holds two dense 16×16 float64 chunks; the grids below
// have eight, so every multi-chunk operation runs through eviction.
const tightBudget = 5000

// cellValue is the distinct value written at (r, c) of a 32×64 grid.
func cellValue(r, c int64) float64 { return float64(r*64 + c + 1) }

// filledGrid is a 32×64 float64 grid of two rows of four 16×16 chunks, every
// cell holding cellValue. All chunks are dense.
func filledGrid(t *testing.T, g *Guardian, name string, policy StatsPolicy) *NumericGrid[float64] {
	t.Helper()
	grid, err := NewNumeric[float64](g, Float64Kind{NoDataValue: -1}, policy, Config{
		Name: name,
		Dims: Dimensions{Rows: 32, Cols: 64, ChunkRows: 16, ChunkCols: 16},
	})
	if err != nil {
		t.Fatalf("NewNumeric: %v", err)
	}
	for r := int64(0); r < 32; r++ {
		for c := int64(0); c < 64; c++ {
			if _, err := grid.Set(r, c, cellValue(r, c)); err != nil {
				t.Fatalf("Set(%d,%d): %v", r, c, err)
			}
		}
	}
	return grid
}

func checkFilled(t *testing.T, grid *Grid[float64]) {
	t.Helper()
	for r := int64(0); r < 32; r++ {
		for c := int64(0); c < 64; c++ {
			got, err := grid.Get(r, c)
			if err != nil {
				t.Fatalf("%s Get(%d,%d): %v", grid.Name(), r, c, err)
			}
			if want := cellValue(r, c); got != want {
				t.Fatalf("%s(%d,%d) = %v, want %v", grid.Name(), r, c, got, want)
			}
		}
	}
}

func checkEvicted(t *testing.T, g *Guardian) {
	t.Helper()
	st := g.Stats()
	if st.Evictions == 0 {
		t.Fatalf("no evictions under a %d byte budget", st.Budget)
	}
	if st.Resident > st.Budget {
		t.Errorf("resident %d over budget %d", st.Resident, st.Budget)
	}
}

// checkFullRecord checks r against the contents written by filledGrid.
func checkFullRecord(t *testing.T, r Record[float64]) {
	t.Helper()
	if !r.Fresh || r.Count != 2048 || r.Sum.Cmp(big.NewRat(2048*2049/2, 1)) != 0 || r.Min != 1 || r.Max != 2048 {
		t.Errorf("record = {Fresh:%v Count:%d Sum:%s Min:%v Max:%v}", r.Fresh, r.Count, r.Sum.RatString(), r.Min, r.Max)
	}
}

func TestCellIteratorUnderPressure(t *testing.T) {
	g := newTestGuardian(t, tightBudget)
	grid := filledGrid(t, g, "iter", Lazy)
	before := g.Stats().Evictions

	it := grid.Cells()
	defer it.Close()
	n := 0
	for it.Next() {
		cell := it.Cell()
		if v := it.Value(); v != cellValue(cell.Row, cell.Col) {
			t.Fatalf("value at %v = %v", cell, v)
		}
		c, _, _ := grid.Dims().ChunkOf(cell.Row, cell.Col)
		if !grid.Pins().Pinned(c) || !isResident(grid.Grid, c) {
			t.Fatalf("chunk %s not pinned and resident while iterating it", c)
		}
		n++
	}
	if err := it.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}
	if n != 2048 {
		t.Errorf("iterated %d cells, want 2048", n)
	}
	if g.Stats().Evictions == before {
		t.Error("iteration reloaded chunks without evicting any")
	}
	checkEvicted(t, g)
	if grid.Pins().Len() != 0 {
		t.Errorf("%d pins held after iteration", grid.Pins().Len())
	}
}

func TestUpdateUnderPressure(t *testing.T) {
	g := newTestGuardian(t, tightBudget)
	grid := filledGrid(t, g, "rescan", Lazy)
	if err := grid.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}
	checkFullRecord(t, grid.Record())
	checkEvicted(t, g)
	if grid.Pins().Len() != 0 {
		t.Errorf("%d pins held after Update", grid.Pins().Len())
	}
}

func TestEagerStatsUnderPressure(t *testing.T) {
	g := newTestGuardian(t, tightBudget)
	grid := filledGrid(t, g, "eager", Eager)
	checkFullRecord(t, grid.Record())
	checkEvicted(t, g)
}

func TestClassifyUnderPressure(t *testing.T) {
	g := newTestGuardian(t, tightBudget)
	grid := filledGrid(t, g, "classes", Lazy)
	c, err := grid.EqualFrequencyClasses(4)
	if err != nil {
		t.Fatalf("EqualFrequencyClasses: %v", err)
	}
	want := []Class[float64]{
		{Min: 1, Max: 512, Count: 512, Distinct: 512},
		{Min: 513, Max: 1024, Count: 512, Distinct: 512},
		{Min: 1025, Max: 1536, Count: 512, Distinct: 512},
		{Min: 1537, Max: 2048, Count: 512, Distinct: 512},
	}
	if diff := cmp.Diff(want, c.Classes); diff != "" {
		t.Errorf("classes (-want +got):\n%s", diff)
	}
	checkEvicted(t, g)
}

func TestCopyRectUnderPressure(t *testing.T) {
	g := newTestGuardian(t, tightBudget)
	src := filledGrid(t, g, "src", Lazy)
	dst, err := NewNumeric[float64](g, Float64Kind{NoDataValue: -1}, Eager, Config{
		Name: "dst",
		Dims: src.Dims(),
	})
	if err != nil {
		t.Fatalf("NewNumeric: %v", err)
	}
	if err := CopyRect(dst.Grid, src.Grid, src.Dims().Bounds(), 0, 0); err != nil {
		t.Fatalf("CopyRect: %v", err)
	}
	checkFilled(t, dst.Grid)
	checkFilled(t, src.Grid)
	checkEvicted(t, g)
	if src.Pins().Len() != 0 || dst.Pins().Len() != 0 {
		t.Error("pins left after CopyRect")
	}
	r, err := dst.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	checkFullRecord(t, r)
}

func TestCloneUnderPressure(t *testing.T) {
	g := newTestGuardian(t, tightBudget)
	src := filledGrid(t, g, "orig", Eager)
	dup, err := CloneNumeric(src, Lazy, Config{Name: "dup"})
	if err != nil {
		t.Fatalf("CloneNumeric: %v", err)
	}
	checkFullRecord(t, dup.Record())
	checkFilled(t, dup.Grid)
	checkFilled(t, src.Grid)
	checkEvicted(t, g)
	if src.Pins().Len() != 0 {
		t.Errorf("%d source pins left after Clone", src.Pins().Len())
	}
}

func TestBulkLoadUnderPressure(t *testing.T) {
	g := newTestGuardian(t, tightBudget)
	grid, err := NewNumeric[float64](g, Float64Kind{NoDataValue: -1}, Eager, Config{
		Name: "bulk",
		Dims: Dimensions{Rows: 32, Cols: 64, ChunkRows: 16, ChunkCols: 16},
	})
	if err != nil {
		t.Fatalf("NewNumeric: %v", err)
	}
	b := grid.Bulk()
	for r := int64(0); r < 32; r++ {
		for c := int64(0); c < 64; c++ {
			if err := b.Set(r, c, cellValue(r, c)); err != nil {
				t.Fatalf("Set(%d,%d): %v", r, c, err)
			}
		}
	}
	if err := b.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	checkFullRecord(t, grid.Record())
	checkFilled(t, grid.Grid)
	checkEvicted(t, g)
}

func TestAlternatingReadsKeepBothChunks(t *testing.T) {
	g := newTestGuardian(t, tightBudget)
	grid := stripGrid(t, g, "pingpong")
	fillChunk(t, grid, 0, 0)
	fillChunk(t, grid, 1, 100)
	if err := grid.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := g.CheckAndMaybeFreeMemory(g.Budget()); err != nil {
		t.Fatalf("CheckAndMaybeFreeMemory: %v", err)
	}
	fillChunk(t, grid, 3, 300) // cold and dirty

	loads := g.Stats().Loads
	for i := 0; i < 10; i++ {
		if _, err := grid.Get(0, 0); err != nil {
			t.Fatalf("Get: %v", err)
		}
		if _, err := grid.Get(0, 16); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
	if got := g.Stats().Loads - loads; got != 2 {
		t.Errorf("alternating reads loaded %d chunks, want 2", got)
	}
	if isResident(grid, ChunkCoord{0, 3}) {
		t.Error("cold dirty chunk kept ahead of the chunks being read")
	}
	if v, _ := grid.Get(0, 48); v != 300 {
		t.Errorf("evicted dirty chunk reloaded as %v, want 300", v)
	}
}
