package raster

// PinSet is the set of chunk coordinates of one grid that in-flight
// operations have declared in use. Pins are reference counted so nested
// operations can pin the same chunk. Pinned chunks are never evicted.
type PinSet struct {
	counts map[ChunkCoord]int
}

func newPinSet() *PinSet {
	return &PinSet{counts: make(map[ChunkCoord]int)}
}

// Pin protects coords until the returned release func is called. release is
// safe to call more than once; only the first call has an effect.
func (p *PinSet) Pin(coords ...ChunkCoord) (release func()) {
	for _, c := range coords {
		p.counts[c]++
	}
	released := false
	return func() {
		if released {
			return
		}
		released = true
		for _, c := range coords {
			if p.counts[c] <= 1 {
				delete(p.counts, c)
			} else {
				p.counts[c]--
			}
		}
	}
}

// Pinned reports whether c is pinned.
func (p *PinSet) Pinned(c ChunkCoord) bool {
	return p.counts[c] > 0
}

// Len returns the number of distinct pinned coordinates.
func (p *PinSet) Len() int {
	return len(p.counts)
}
