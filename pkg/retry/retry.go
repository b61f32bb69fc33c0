// Package retry implements the exponential-backoff timer the engine
// attaches to every outstanding confirmable message, grounded in the
// original core's ad-hoc retryable() helper and toad/src/config.rs's
// Strategy::Exponential.
package retry

import "github.com/simeonmiteff/go-coap/pkg/clock"

// Strategy describes how a Timer's deadline grows between attempts.
// Exponential is the only strategy the original implementation ships;
// InitialDelayMillis is the delay before the first retry.
type Strategy struct {
	InitialDelayMillis uint32
}

// Exponential builds the one strategy kind this package supports.
func Exponential(initialDelayMillis uint32) Strategy {
	return Strategy{InitialDelayMillis: initialDelayMillis}
}

// DefaultStrategy is the ad-hoc retry strategy the engine uses for every
// confirmable send unless told otherwise: 100ms initial delay. This is
// the literal default baked into the original core's retryable(), distinct
// from (and currently unwired to) config.Data's ConRetryStrategy knob —
// see DESIGN.md.
var DefaultStrategy = Exponential(100)

// DefaultMaxAttempts is the attempts ceiling paired with DefaultStrategy.
const DefaultMaxAttempts = 5

// Outcome is what a Timer says to do on a given tick.
type Outcome int

const (
	// Wait: the next scheduled attempt hasn't arrived yet.
	Wait Outcome = iota
	// Retry: resend now; the timer has rescheduled itself for next time.
	Retry
	// GiveUp: attempts are exhausted and the deadline has passed again.
	GiveUp
)

func (o Outcome) String() string {
	switch o {
	case Wait:
		return "wait"
	case Retry:
		return "retry"
	case GiveUp:
		return "give-up"
	default:
		return "unknown"
	}
}

// Timer tracks one message's retransmission schedule.
type Timer struct {
	delay        uint32
	next         clock.Instant
	attemptsLeft int
}

// NewTimer starts a retry schedule as of now, with the first retry due
// after strategy.InitialDelayMillis and at most maxAttempts retries
// total before giving up.
func NewTimer(now clock.Instant, strategy Strategy, maxAttempts int) *Timer {
	return &Timer{
		delay:        strategy.InitialDelayMillis,
		next:         now + clock.Instant(strategy.InitialDelayMillis),
		attemptsLeft: maxAttempts,
	}
}

// before reports whether a is strictly earlier than b under the same
// wrap-safe comparison package stamp uses for clock instants.
func before(a, b clock.Instant) bool {
	return int32(a-b) < 0
}

// WhatShouldIDo reports what the caller should do about this message at
// instant now, advancing internal state on Retry: the delay doubles and
// the next deadline is rebased from now, so callers are expected to
// invoke this once per tick rather than speculatively.
func (t *Timer) WhatShouldIDo(now clock.Instant) Outcome {
	if before(now, t.next) {
		return Wait
	}
	if t.attemptsLeft <= 0 {
		return GiveUp
	}
	t.attemptsLeft--
	t.delay *= 2
	t.next = now + clock.Instant(t.delay)
	return Retry
}
