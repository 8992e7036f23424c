package queue

// Ring is a fixed-capacity FIFO that overwrites its oldest entry when full.
// Not safe for concurrent use; the caller must synchronize.
type Ring[T any] struct {
	buf     []T
	head    int // oldest entry
	count   int
	dropped int64
}

// NewRing creates a ring holding at most capacity entries. Capacity below
// one is raised to one.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v. When the ring is full the oldest entry is evicted and
// returned with ok set.
func (r *Ring[T]) Push(v T) (evicted T, ok bool) {
	if r.count == len(r.buf) {
		evicted, ok = r.buf[r.head], true
		r.head = (r.head + 1) % len(r.buf)
		r.count--
		r.dropped++
	}
	r.buf[(r.head+r.count)%len(r.buf)] = v
	r.count++
	return evicted, ok
}

// Pop removes and returns the oldest entry.
func (r *Ring[T]) Pop() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	v := r.buf[r.head]
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.count--
	return v, true
}

// Drain removes every entry, oldest first. It returns nil when empty.
func (r *Ring[T]) Drain() []T {
	if r.count == 0 {
		return nil
	}
	out := make([]T, 0, r.count)
	for {
		v, ok := r.Pop()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

// Len returns the number of entries held.
func (r *Ring[T]) Len() int {
	return r.count
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Dropped returns the number of entries evicted since creation.
func (r *Ring[T]) Dropped() int64 {
	return r.dropped
}
