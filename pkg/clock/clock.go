// Package clock abstracts "now" behind a fixed-width instant so the
// engine's retry math and the tests that exercise it agree on what time
// looks like without either depending on wall-clock time.Time.
package clock

import (
	"errors"
	"time"
)

// Instant is milliseconds since some epoch private to the Clock that
// produced it. It is deliberately fixed-width (not int64) so that the
// "latest of a sequence" comparisons in package stamp exercise the same
// wrap-safe arithmetic a long-lived embedded clock would need; at one
// tick per millisecond it wraps after roughly 49.7 days.
type Instant uint32

// ErrUnavailable is returned by a Clock that cannot currently report the
// time (e.g. a mock clock configured to simulate a hardware clock fault).
var ErrUnavailable = errors.New("clock: time unavailable")

// Clock reports the current Instant. It is the one source of "now" the
// engine consults; everything else derives from it.
type Clock interface {
	TryNow() (Instant, error)
}

// Std is a Clock backed by the monotonic reading behind time.Now(),
// rebased to zero at construction.
type Std struct {
	start time.Time
}

// NewStd returns a Clock whose Instant 0 is "now".
func NewStd() *Std {
	return &Std{start: time.Now()}
}

// TryNow never fails for Std; the error return exists so mock clocks used
// in tests can simulate a clock that does.
func (c *Std) TryNow() (Instant, error) {
	return Instant(time.Since(c.start).Milliseconds()), nil
}
