package mesh

import "gonum.org/v1/gonum/spatial/r3"

// History is a bounded FIFO of past vertex positions. Once full, each Push
// drops the oldest entry.
type History struct {
	buf   []r3.Vec
	start int
	n     int
}

// NewHistory returns an empty history holding at most capacity positions.
func NewHistory(capacity int) History {
	if capacity < 1 {
		capacity = 1
	}
	return History{buf: make([]r3.Vec, capacity)}
}

// Push appends p, evicting the oldest position when full.
func (h *History) Push(p r3.Vec) {
	if len(h.buf) == 0 {
		*h = NewHistory(1)
	}
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = p
		h.n++
		return
	}
	h.buf[h.start] = p
	h.start = (h.start + 1) % len(h.buf)
}

func (h *History) Len() int { return h.n }

func (h *History) Cap() int { return len(h.buf) }

func (h *History) Full() bool { return len(h.buf) > 0 && h.n == len(h.buf) }

// Mean returns the average of the stored positions, or the zero vector when empty.
func (h *History) Mean() r3.Vec {
	if h.n == 0 {
		return r3.Vec{}
	}
	var sum r3.Vec
	for i := 0; i < h.n; i++ {
		sum = r3.Add(sum, h.buf[(h.start+i)%len(h.buf)])
	}
	return r3.Scale(1/float64(h.n), sum)
}

// Reset empties the history, keeping its capacity.
func (h *History) Reset() {
	h.start = 0
	h.n = 0
}
