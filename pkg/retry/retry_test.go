package retry

import (
	"testing"

	"github.com/simeonmiteff/go-coap/pkg/clock"
)

func TestTimerWaitsBeforeDeadline(t *testing.T) {
	timer := NewTimer(0, Exponential(100), 5)
	if got := timer.WhatShouldIDo(50); got != Wait {
		t.Fatalf("expected Wait, got %v", got)
	}
}

func TestTimerRetriesAtDeadline(t *testing.T) {
	timer := NewTimer(0, Exponential(100), 5)
	if got := timer.WhatShouldIDo(100); got != Retry {
		t.Fatalf("expected Retry, got %v", got)
	}
	// Having just retried, the next deadline is further out.
	if got := timer.WhatShouldIDo(150); got != Wait {
		t.Fatalf("expected Wait immediately after a retry, got %v", got)
	}
}

func TestTimerGivesUpAfterAttemptsExhausted(t *testing.T) {
	timer := NewTimer(0, Exponential(10), 2)

	var now clock.Instant
	outcomes := []Outcome{}
	for i := 0; i < 4; i++ {
		now += 100 // comfortably past any deadline this strategy produces
		outcomes = append(outcomes, timer.WhatShouldIDo(now))
	}

	last := outcomes[len(outcomes)-1]
	if last != GiveUp {
		t.Fatalf("expected eventual GiveUp, got sequence %v", outcomes)
	}

	// Once exhausted, it never reports Retry again.
	if got := timer.WhatShouldIDo(now + 1000); got != GiveUp {
		t.Fatalf("expected GiveUp to stick, got %v", got)
	}
}
