package raster

import (
	"fmt"
	"sort"

	"github.com/google/btree"
)

// Class is one equal-frequency class: the data values in [Min, Max].
type Class[T Number] struct {
	Min, Max T
	Count    int64 // cells in the class
	Distinct int   // distinct values in the class
}

// Classification partitions a grid's data values into classes of roughly
// equal cell count.
type Classification[T Number] struct {
	Classes []Class[T]
	Total   int64 // cells classified
	Target  int64 // wanted cells per class
}

// ClassOf returns the index of the class holding v, or -1 when v falls
// outside every class.
func (c *Classification[T]) ClassOf(v T) int {
	i := sort.Search(len(c.Classes), func(i int) bool { return c.Classes[i].Max >= v })
	if i < len(c.Classes) && c.Classes[i].Min <= v {
		return i
	}
	return -1
}

// Breaks returns the upper bound of every class.
func (c *Classification[T]) Breaks() []T {
	out := make([]T, len(c.Classes))
	for i, cl := range c.Classes {
		out[i] = cl.Max
	}
	return out
}

type valueCount[T Number] struct {
	v T
	n int64
}

// histogram counts cells per distinct value in ascending value order.
type histogram[T Number] struct {
	tree  *btree.BTreeG[*valueCount[T]]
	total int64
}

func newHistogram[T Number]() *histogram[T] {
	return &histogram[T]{
		tree: btree.NewG(32, func(a, b *valueCount[T]) bool { return a.v < b.v }),
	}
}

func (h *histogram[T]) add(v T, n int64) {
	h.total += n
	if e, ok := h.tree.Get(&valueCount[T]{v: v}); ok {
		e.n += n
		return
	}
	h.tree.ReplaceOrInsert(&valueCount[T]{v: v, n: n})
}

// EqualFrequencyClasses splits the data values, excluding no-data and zero,
// into at most n classes of about ceil(total/n) cells each. Cells sharing a
// value always land in the same class: a run that would push a class over
// the target starts the next class instead, and the last class takes
// whatever remains. Fewer than n classes come back when there are fewer
// distinct values.
func (g *NumericGrid[T]) EqualFrequencyClasses(n int) (*Classification[T], error) {
	if n <= 0 {
		return nil, fmt.Errorf("class count %d must be positive", n)
	}
	h := newHistogram[T]()
	err := g.visitRuns(func(v T, k int64) {
		if v != g.nodata && v != 0 {
			h.add(v, k)
		}
	})
	if err != nil {
		return nil, err
	}
	return classify(h, n), nil
}

func classify[T Number](h *histogram[T], n int) *Classification[T] {
	out := &Classification[T]{Total: h.total}
	if h.total == 0 {
		return out
	}
	out.Target = (h.total + int64(n) - 1) / int64(n)

	var cur *Class[T]
	h.tree.Ascend(func(e *valueCount[T]) bool {
		overflow := cur != nil && cur.Count+e.n > out.Target
		if cur == nil || (overflow && len(out.Classes) < n) {
			out.Classes = append(out.Classes, Class[T]{Min: e.v})
			cur = &out.Classes[len(out.Classes)-1]
		}
		cur.Max = e.v
		cur.Count += e.n
		cur.Distinct++
		return true
	})
	return out
}
