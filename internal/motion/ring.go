package motion

// ring is a fixed-capacity FIFO. Pushing onto a full ring overwrites the
// oldest entry.
type ring[T any] struct {
	buf   []T
	pos   int
	count int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	r.buf[r.pos] = v
	r.pos = (r.pos + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// values returns the stored entries oldest first.
func (r *ring[T]) values() []T {
	if r.count == 0 {
		return nil
	}
	out := make([]T, r.count)
	if r.count < len(r.buf) {
		copy(out, r.buf[:r.count])
		return out
	}
	n := copy(out, r.buf[r.pos:])
	copy(out[n:], r.buf[:r.pos])
	return out
}

// each calls fn on every entry oldest first without allocating.
func (r *ring[T]) each(fn func(i int, v T)) {
	start := 0
	if r.count == len(r.buf) {
		start = r.pos
	}
	for i := 0; i < r.count; i++ {
		fn(i, r.buf[(start+i)%len(r.buf)])
	}
}

func (r *ring[T]) len() int { return r.count }

func (r *ring[T]) capacity() int { return len(r.buf) }

func (r *ring[T]) clear() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.pos = 0
	r.count = 0
}
