package buffer

import "testing"

func TestPushAndTakeIf(t *testing.T) {
	b := NewBounded[int](4)
	for i := 1; i <= 4; i++ {
		if _, ok := b.Push(i); !ok {
			t.Fatalf("Push(%d) failed unexpectedly", i)
		}
	}
	if b.Len() != 4 {
		t.Fatalf("expected 4 entries, got %d", b.Len())
	}

	v, ok := b.TakeIf(func(x int) bool { return x == 3 })
	if !ok || v != 3 {
		t.Fatalf("TakeIf: got (%d, %v)", v, ok)
	}
	if b.Len() != 3 {
		t.Fatalf("expected 3 entries after take, got %d", b.Len())
	}
}

func TestTakeIfDoesNotShiftOtherSlots(t *testing.T) {
	b := NewBounded[int](4)
	for i := 1; i <= 4; i++ {
		b.Push(i)
	}
	b.TakeIf(func(x int) bool { return x == 2 })

	slots := b.Slots()
	if slots[0] == nil || *slots[0] != 1 {
		t.Fatalf("slot 0 disturbed: %v", slots[0])
	}
	if slots[1] != nil {
		t.Fatalf("slot 1 should be vacant, got %v", *slots[1])
	}
	if slots[2] == nil || *slots[2] != 3 {
		t.Fatalf("slot 2 disturbed: %v", slots[2])
	}
	if slots[3] == nil || *slots[3] != 4 {
		t.Fatalf("slot 3 disturbed: %v", slots[3])
	}
}

func TestPushReusesVacatedSlotWhenFull(t *testing.T) {
	b := NewBounded[int](3)
	b.Push(1)
	b.Push(2)
	b.Push(3)
	b.TakeIf(func(x int) bool { return x == 1 }) // vacates slot 0, leaves [_, 2, 3]

	if _, ok := b.Push(4); !ok {
		t.Fatal("expected Push to succeed by reusing the vacated slot")
	}
	present := b.Present()
	if len(present) != 3 {
		t.Fatalf("expected 3 present entries, got %d: %v", len(present), present)
	}
}

func TestPushFailsWhenGenuinelyFull(t *testing.T) {
	b := NewBounded[int](2)
	b.Push(1)
	b.Push(2)
	v, ok := b.Push(3)
	if ok {
		t.Fatal("expected Push to fail on a genuinely full buffer")
	}
	if v != 3 {
		t.Fatalf("expected the rejected value back, got %d", v)
	}
}
