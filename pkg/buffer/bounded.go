// Package buffer provides a fixed-capacity, slot-stable container. It is
// the one piece of shared plumbing behind every queue in the engine: the
// id/token histories, the response store, and the fling/retry queues are
// all a Bounded[T] underneath, grounded in the original's fixed-size
// ArrayVec<Option<T>> buffers.
package buffer

// Bounded holds up to a fixed number of T values, each in its own slot.
// A slot's index is stable: removing an entry nils the slot rather than
// shifting the ones after it, so a caller mid-walk over Slots never has
// the ground shift under it. The only operation that reshuffles slots is
// the compaction Push performs when it finds the buffer full.
type Bounded[T any] struct {
	slots []*T
}

// NewBounded allocates a buffer with room for capacity entries.
func NewBounded[T any](capacity int) *Bounded[T] {
	return &Bounded[T]{slots: make([]*T, capacity)}
}

// Cap reports the buffer's fixed capacity.
func (b *Bounded[T]) Cap() int {
	return len(b.slots)
}

// Len reports how many slots are currently occupied.
func (b *Bounded[T]) Len() int {
	n := 0
	for _, s := range b.slots {
		if s != nil {
			n++
		}
	}
	return n
}

// Slots exposes the live backing slice. A nil entry is a vacant slot; a
// non-nil entry can be read, mutated in place through the pointer, or
// cleared by assigning slots[i] = nil. Index stability means code that
// walks this slice and clears entries as it goes (the fling/retry queue
// drains) never needs to re-scan from the top.
func (b *Bounded[T]) Slots() []*T {
	return b.slots
}

func (b *Bounded[T]) firstVacant() int {
	for i, s := range b.slots {
		if s == nil {
			return i
		}
	}
	return -1
}

// compact squeezes every present entry down to the front of the slice,
// in place, discarding the gaps. This is the one place slot indices are
// allowed to move.
func (b *Bounded[T]) compact() {
	write := 0
	for _, s := range b.slots {
		if s != nil {
			b.slots[write] = s
			write++
		}
	}
	for i := write; i < len(b.slots); i++ {
		b.slots[i] = nil
	}
}

// Push places v in the first vacant slot. If no slot is vacant it
// compacts and retries once; since any vacated slot is already reused by
// the first search, that compaction finds no gap to close and the retry
// fails exactly when the first search did. It returns true on success; on
// failure it returns v back to the caller unchanged along with false, so
// the caller can decide whether that's fatal (the engine treats a
// post-compaction-still-full push as a programming error and panics — see
// SPEC_FULL.md §6).
func (b *Bounded[T]) Push(v T) (T, bool) {
	if i := b.firstVacant(); i >= 0 {
		b.slots[i] = &v
		var zero T
		return zero, true
	}
	b.compact()
	if i := b.firstVacant(); i >= 0 {
		b.slots[i] = &v
		var zero T
		return zero, true
	}
	return v, false
}

// TakeIf removes and returns the first present entry matching pred. The
// slot it occupied is nilled but its neighbours keep their indices.
func (b *Bounded[T]) TakeIf(pred func(T) bool) (T, bool) {
	for i, s := range b.slots {
		if s != nil && pred(*s) {
			v := *s
			b.slots[i] = nil
			return v, true
		}
	}
	var zero T
	return zero, false
}

// Present copies out every occupied slot's value, in slot order.
func (b *Bounded[T]) Present() []T {
	out := make([]T, 0, len(b.slots))
	for _, s := range b.slots {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}
