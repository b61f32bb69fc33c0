// Package stamp attaches a point-in-time marker to arbitrary values and
// picks the most recent of a set under wraparound-safe comparison.
package stamp

import "github.com/simeonmiteff/go-coap/pkg/clock"

// Stamped pairs a value with the clock instant it was recorded at.
type Stamped[T any] struct {
	Value T
	At    clock.Instant
}

// New stamps v with at.
func New[T any](v T, at clock.Instant) Stamped[T] {
	return Stamped[T]{Value: v, At: at}
}

// laterWrap reports whether a is strictly later than b, treating the
// 32-bit instant space as circular: the comparison is based on the signed
// difference, so a single wraparound of the underlying clock does not
// make an old entry appear newest.
func laterWrap(a, b clock.Instant) bool {
	return int32(a-b) > 0
}

// FindLatest reduces items to the one with the greatest instant under
// wrap-safe comparison, mirroring a fold over Option<Stamped<T>> that
// keeps whichever side compares later. Ties keep the earlier-seen item.
// Returns the zero value and false for an empty slice.
func FindLatest[T any](items []Stamped[T]) (Stamped[T], bool) {
	var latest Stamped[T]
	found := false
	for _, it := range items {
		if !found || laterWrap(it.At, latest.At) {
			latest = it
			found = true
		}
	}
	return latest, found
}

// FindOldest is FindLatest's complement: it reduces items to the one with
// the least instant under the same wrap-safe comparison. Used to pick an
// eviction candidate out of a bounded history that has hit capacity.
// Ties keep the earlier-seen item. Returns the zero value and false for
// an empty slice.
func FindOldest[T any](items []Stamped[T]) (Stamped[T], bool) {
	var oldest Stamped[T]
	found := false
	for _, it := range items {
		if !found || laterWrap(oldest.At, it.At) {
			oldest = it
			found = true
		}
	}
	return oldest, found
}
