package raster

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/freeeve/chunkgrid/internal/store"
)

func TestScenarioFirstWrite(t *testing.T) {
	g := newTestGuardian(t, 1<<20)
	grid, err := NewNumeric[float64](g, Float64Kind{NoDataValue: -1}, Eager, Config{
		Name: "a",
		Dims: Dimensions{Rows: 4, Cols: 4, ChunkRows: 2, ChunkCols: 2},
	})
	if err != nil {
		t.Fatalf("NewNumeric: %v", err)
	}
	for c := range grid.Chunks() {
		if rep, err := grid.Representation(c); err != nil || rep != Constant {
			t.Fatalf("chunk %s = (%v, %v), want constant", c, rep, err)
		}
	}

	prev, err := grid.Set(0, 0, 5)
	if err != nil || prev != -1 {
		t.Fatalf("Set = (%v, %v), want (-1, nil)", prev, err)
	}
	if v, _ := grid.Get(0, 0); v != 5 {
		t.Errorf("Get(0,0) = %v, want 5", v)
	}
	if v, _ := grid.Get(0, 1); v != -1 {
		t.Errorf("Get(0,1) = %v, want -1", v)
	}
	if rep, _ := grid.Representation(ChunkCoord{0, 0}); rep != Sparse {
		t.Errorf("written chunk is %s, want sparse", rep)
	}

	r := grid.Record()
	if !r.Fresh || r.Count != 1 || r.Sum.Cmp(bigRat(5)) != 0 ||
		r.Min != 5 || r.MinCount != 1 || r.Max != 5 || r.MaxCount != 1 {
		t.Errorf("record = %+v", r)
	}
}

func TestGetSetRoundTrip(t *testing.T) {
	g := newTestGuardian(t, 1<<20)
	grid, err := New[int32](g, Int32Kind{NoDataValue: math.MinInt32}, Config{
		Name: "rt",
		Dims: Dimensions{Rows: 37, Cols: 23, ChunkRows: 8, ChunkCols: 5},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rng := rand.New(rand.NewPCG(1, 2))
	model := map[Cell]int32{}
	for i := 0; i < 3000; i++ {
		cell := Cell{Row: rng.Int64N(37), Col: rng.Int64N(23)}
		v := rng.Int32N(6)
		want, ok := model[cell]
		if !ok {
			want = math.MinInt32
		}
		prev, err := grid.Set(cell.Row, cell.Col, v)
		if err != nil {
			t.Fatalf("Set: %v", err)
		}
		if prev != want {
			t.Fatalf("Set(%v) returned %d, want previous %d", cell, prev, want)
		}
		model[cell] = v
	}
	for cell, want := range model {
		if got, err := grid.Get(cell.Row, cell.Col); err != nil || got != want {
			t.Fatalf("Get(%v) = (%d, %v), want %d", cell, got, err, want)
		}
	}
}

func TestOutOfBounds(t *testing.T) {
	g := newTestGuardian(t, 1<<20)
	grid := stripGrid(t, g, "oob")
	for _, cell := range [][2]int64{{-1, 0}, {0, -1}, {16, 0}, {0, 64}} {
		if prev, err := grid.Set(cell[0], cell[1], 3); err != nil || prev != -1 {
			t.Errorf("Set%v = (%v, %v), want (-1, nil)", cell, prev, err)
		}
		if v, err := grid.Get(cell[0], cell[1]); err != nil || v != -1 {
			t.Errorf("Get%v = (%v, %v), want (-1, nil)", cell, v, err)
		}
	}
	if grid.ResidentChunks() != 0 {
		t.Errorf("out-of-bounds access materialized %d chunks", grid.ResidentChunks())
	}
}

func TestNonFiniteBecomesNoData(t *testing.T) {
	g := newTestGuardian(t, 1<<20)
	grid := stripGrid(t, g, "nan")
	grid.Set(1, 1, 4)
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		grid.Set(1, 1, v)
		if got, _ := grid.Get(1, 1); got != -1 {
			t.Errorf("after writing %v cell = %v, want no-data", v, got)
		}
	}
}

func TestBoolGrid(t *testing.T) {
	g := newTestGuardian(t, 1<<20)
	grid, err := NewBool(g, Config{Name: "mask", Dims: Dimensions{Rows: 10, Cols: 10, ChunkRows: 4, ChunkCols: 4}})
	if err != nil {
		t.Fatalf("NewBool: %v", err)
	}
	if v, _ := grid.Get(3, 3); v != Null {
		t.Errorf("new cell = %s, want null", v)
	}
	grid.Set(3, 3, True)
	grid.Set(9, 9, False)
	if v, _ := grid.Get(3, 3); v != True {
		t.Errorf("Get(3,3) = %s", v)
	}
	if v, _ := grid.Get(9, 9); v != False {
		t.Errorf("Get(9,9) = %s", v)
	}
	if v, _ := grid.Get(10, 0); v != Null {
		t.Errorf("out of bounds = %s, want null", v)
	}
}

func TestGetAt(t *testing.T) {
	g := newTestGuardian(t, 1<<20)
	grid, err := New[int64](g, Int64Kind{NoDataValue: -1}, Config{
		Name: "geo",
		Dims: Dimensions{Rows: 10, Cols: 10, XMin: 500, YMin: 1000, CellSize: 10},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	grid.Set(2, 7, 42)
	if v, _ := grid.GetAt(575, 1025); v != 42 {
		t.Errorf("GetAt = %d, want 42", v)
	}
	if v, _ := grid.GetAt(0, 0); v != -1 {
		t.Errorf("GetAt outside = %d, want -1", v)
	}
}

func TestFill(t *testing.T) {
	g := newTestGuardian(t, 1<<20)
	grid, err := NewNumeric[int32](g, Int32Kind{NoDataValue: -1}, Lazy, Config{
		Name: "fill",
		Dims: Dimensions{Rows: 9, Cols: 9, ChunkRows: 4, ChunkCols: 4},
	})
	if err != nil {
		t.Fatalf("NewNumeric: %v", err)
	}
	grid.Set(0, 0, 8)
	if err := grid.Fill(3); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	for c := range grid.Chunks() {
		if rep, _ := grid.Representation(c); rep != Constant {
			t.Errorf("chunk %s is %s after Fill", c, rep)
		}
	}
	r, err := grid.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if r.Count != 81 || r.Min != 3 || r.Max != 3 || r.MaxCount != 81 {
		t.Errorf("record after Fill = %+v", r)
	}
}

func TestSaveAndOpen(t *testing.T) {
	ds, err := store.NewDirStore(store.DirConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}
	defer ds.Close()
	kind := Float64Kind{NoDataValue: DefaultFloatNoData}

	g1 := newTestGuardian(t, 1<<20)
	grid, err := NewNumeric[float64](g1, kind, Eager, Config{
		Name:  "dem",
		Dims:  Dimensions{Rows: 40, Cols: 30, ChunkRows: 16, ChunkCols: 16, XMin: 10, YMin: 20, CellSize: 5},
		Store: ds,
	})
	if err != nil {
		t.Fatalf("NewNumeric: %v", err)
	}
	for i := int64(0); i < 40; i++ {
		grid.Set(i, i%30, float64(i)/4)
	}
	want := grid.Record()
	if err := grid.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	grid.Close()
	if _, err := grid.Get(0, 0); !errors.Is(err, ErrClosed) {
		t.Errorf("Get after Close = %v, want ErrClosed", err)
	}

	g2 := newTestGuardian(t, 1<<20)
	opened, err := OpenNumeric[float64](g2, kind, Lazy, Config{Name: "dem", Store: ds})
	if err != nil {
		t.Fatalf("OpenNumeric: %v", err)
	}
	if opened.Dims() != grid.Dims() {
		t.Errorf("dims = %+v, want %+v", opened.Dims(), grid.Dims())
	}
	got := opened.Record()
	if !got.Fresh || got.Count != want.Count || got.Sum.Cmp(want.Sum) != 0 || got.Min != want.Min || got.Max != want.Max {
		t.Errorf("restored record %+v, want %+v", got, want)
	}
	if opened.ResidentChunks() != 0 {
		t.Errorf("Open loaded %d chunks eagerly", opened.ResidentChunks())
	}
	for i := int64(0); i < 40; i++ {
		if v, err := opened.Get(i, i%30); err != nil || v != float64(i)/4 {
			t.Fatalf("Get(%d) = (%v, %v)", i, v, err)
		}
	}
	if v, _ := opened.Get(0, 29); v != DefaultFloatNoData {
		t.Errorf("unwritten cell = %v", v)
	}

	if _, err := OpenNumeric[int32](g2, Int32Kind{}, Eager, Config{Name: "dem2", Store: ds}); !errors.Is(err, ErrGridNotFound) {
		t.Errorf("open missing = %v, want ErrGridNotFound", err)
	}
	if _, _, err := Open[int32](newTestGuardian(t, 1<<20), Int32Kind{}, Config{Name: "dem", Store: ds}); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("open with wrong kind = %v, want ErrKindMismatch", err)
	}
}

func TestCloseDiscardsWritesSinceSave(t *testing.T) {
	ms := store.NewMemStore()
	kind := Int32Kind{NoDataValue: -1}
	cfg := Config{
		Name:  "commit",
		Dims:  Dimensions{Rows: 4, Cols: 4, ChunkRows: 2, ChunkCols: 2},
		Store: ms,
	}
	g := newTestGuardian(t, 1<<20)
	grid, err := NewNumeric[int32](g, kind, Eager, cfg)
	if err != nil {
		t.Fatalf("NewNumeric: %v", err)
	}
	grid.Set(0, 0, 5)
	if err := grid.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	grid.Set(0, 0, 7)
	grid.Set(3, 3, 2)
	if n, err := g.FlushAll(); err != nil || n != 2 {
		t.Fatalf("FlushAll = (%d, %v), want 2 chunks", n, err)
	}
	if err := g.CheckAndMaybeFreeMemory(g.Budget()); err != nil {
		t.Fatalf("CheckAndMaybeFreeMemory: %v", err)
	}
	grid.Close()

	opened, err := OpenNumeric[int32](newTestGuardian(t, 1<<20), kind, Eager, cfg)
	if err != nil {
		t.Fatalf("OpenNumeric: %v", err)
	}
	if v, _ := opened.Get(0, 0); v != 5 {
		t.Errorf("Get(0,0) = %d, want the saved 5", v)
	}
	if v, _ := opened.Get(3, 3); v != -1 {
		t.Errorf("Get(3,3) = %d, want no-data", v)
	}
	r := opened.Record()
	if !r.Fresh {
		t.Fatal("restored record is stale")
	}
	if got, want := viewOf(r), bruteForce(t, opened); got != want {
		t.Errorf("restored record %+v, rescan %+v", got, want)
	}
	for _, key := range []store.ChunkKey{
		{Grid: "commit", Row: 0, Col: 0, Gen: 2},
		{Grid: "commit", Row: 1, Col: 1, Gen: 2},
	} {
		if _, ok, _ := ms.Load(key); ok {
			t.Errorf("unsaved payload %s left in the store", key)
		}
	}
}

func TestSaveReplacesCommittedPayload(t *testing.T) {
	ms := store.NewMemStore()
	kind := Int32Kind{NoDataValue: -1}
	cfg := Config{
		Name:  "resave",
		Dims:  Dimensions{Rows: 4, Cols: 4, ChunkRows: 2, ChunkCols: 2},
		Store: ms,
	}
	g := newTestGuardian(t, 1<<20)
	grid, err := NewNumeric[int32](g, kind, Eager, cfg)
	if err != nil {
		t.Fatalf("NewNumeric: %v", err)
	}
	grid.Set(0, 0, 5)
	grid.Set(2, 2, 1)
	if err := grid.Save(); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	grid.Set(0, 0, 7)
	if err := g.CheckAndMaybeFreeMemory(g.Budget()); err != nil {
		t.Fatalf("CheckAndMaybeFreeMemory: %v", err)
	}
	if err := grid.Save(); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	grid.Close()

	if _, ok, _ := ms.Load(store.ChunkKey{Grid: "resave", Row: 0, Col: 0, Gen: 1}); ok {
		t.Error("replaced payload still stored")
	}
	opened, err := OpenNumeric[int32](newTestGuardian(t, 1<<20), kind, Lazy, cfg)
	if err != nil {
		t.Fatalf("OpenNumeric: %v", err)
	}
	if v, _ := opened.Get(0, 0); v != 7 {
		t.Errorf("Get(0,0) = %d, want 7", v)
	}
	if v, _ := opened.Get(2, 2); v != 1 {
		t.Errorf("Get(2,2) = %d, want the untouched 1", v)
	}
	r, err := opened.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if got, want := viewOf(r), bruteForce(t, opened); got != want {
		t.Errorf("restored record %+v, rescan %+v", got, want)
	}
}

func TestCorruptChunkIsFatal(t *testing.T) {
	ms := store.NewMemStore()
	g := newTestGuardian(t, 1<<20)
	grid, err := New[int32](g, Int32Kind{NoDataValue: -1}, Config{
		Name:  "bad",
		Dims:  Dimensions{Rows: 4, Cols: 4, ChunkRows: 2, ChunkCols: 2},
		Store: ms,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	grid.Set(3, 3, 1)
	if err := grid.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	grid.Close()
	if err := ms.Store(store.ChunkKey{Grid: "bad", Row: 1, Col: 1, Gen: 1}, []byte{'K', 1, 2, 0xff}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	opened, _, err := Open[int32](g, Int32Kind{NoDataValue: -1}, Config{Name: "bad", Store: ms})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := opened.Get(3, 3); !errors.Is(err, ErrCorruptChunk) {
		t.Errorf("Get = %v, want ErrCorruptChunk", err)
	}
	if v, err := opened.Get(0, 0); err != nil || v != -1 {
		t.Errorf("intact chunk Get = (%v, %v)", v, err)
	}
}

func TestCompactGrid(t *testing.T) {
	g := newTestGuardian(t, 1<<20)
	grid := stripGrid(t, g, "compact")
	fillChunk(t, grid, 0, 0)
	for r := int64(0); r < 16; r++ {
		for c := int64(0); c < 16; c++ {
			grid.Set(r, c, 7)
		}
	}
	before := g.Resident()
	saved, err := grid.Compact()
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if saved <= 0 || g.Resident() != before-saved {
		t.Errorf("saved %d, resident %d -> %d", saved, before, g.Resident())
	}
	if rep, _ := grid.Representation(ChunkCoord{0, 0}); rep != Constant {
		t.Errorf("uniform chunk compacted to %s", rep)
	}
}
