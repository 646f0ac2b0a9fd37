package store

// idSequence hands out account ids. Callers hold Store.mu.
type idSequence struct {
	last int64
}

func newIDSequence() *idSequence {
	return &idSequence{}
}

func (g *idSequence) next() int64 {
	g.last++
	return g.last
}

// observe keeps the sequence ahead of ids loaded from the state file.
func (g *idSequence) observe(id int64) {
	if id > g.last {
		g.last = id
	}
}
