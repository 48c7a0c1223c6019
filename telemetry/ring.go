package telemetry

import "fmt"

// Ring is a fixed-capacity FIFO buffer. Appending to a full ring evicts
// exactly the single oldest element; elements are never reordered or
// bulk-truncated. The zero value is not usable; construct with NewRing.
//
// Ring is not safe for concurrent use. The sampler loop is the sole writer
// and readers must go through Snapshot, which returns an independent copy.
type Ring[T any] struct {
	buf   []T
	head  int // index of the oldest element
	count int
}

// NewRing creates a ring holding at most capacity elements.
func NewRing[T any](capacity int) (*Ring[T], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("telemetry: ring capacity must be positive, got %d", capacity)
	}
	return &Ring[T]{buf: make([]T, capacity)}, nil
}

// Append adds v as the newest element, evicting the oldest if the ring is
// full. It is O(1).
func (r *Ring[T]) Append(v T) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = v
		r.count++
		return
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
}

// Len returns the number of retained elements.
func (r *Ring[T]) Len() int { return r.count }

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Latest returns the newest element, or false if the ring is empty.
func (r *Ring[T]) Latest() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.buf[(r.head+r.count-1)%len(r.buf)], true
}

// Snapshot returns the retained elements oldest first, as a freshly
// allocated slice. Mutating the result never affects the ring, and two
// calls without an intervening Append return equal slices.
func (r *Ring[T]) Snapshot() []T {
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}
