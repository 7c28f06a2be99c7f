package merge

// Ring is a fixed-capacity FIFO that evicts the oldest element when full.
//
// Not safe for concurrent use.
type Ring[T any] struct {
	buf   []T
	start int
	size  int
}

// NewRing creates a ring holding at most capacity elements (minimum 1).
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}

	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when the ring is full.
//
// Returns:
//   - bool: true if an element was evicted
func (r *Ring[T]) Push(v T) bool {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++

		return false
	}

	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)

	return true
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int {
	return r.size
}

// Items returns the elements from oldest to newest.
func (r *Ring[T]) Items() []T {
	out := make([]T, r.size)
	for i := range r.size {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}

	return out
}

// Each calls fn with a pointer to every element, oldest first, allowing in-place updates.
func (r *Ring[T]) Each(fn func(*T)) {
	for i := range r.size {
		fn(&r.buf[(r.start+i)%len(r.buf)])
	}
}

// Reset drops every element.
func (r *Ring[T]) Reset() {
	clear(r.buf)
	r.start = 0
	r.size = 0
}
