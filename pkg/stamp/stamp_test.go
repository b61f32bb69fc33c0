package stamp

import "testing"

func TestFindLatestEmpty(t *testing.T) {
	if _, ok := FindLatest[int](nil); ok {
		t.Fatal("expected no result for an empty slice")
	}
}

func TestFindLatestPicksGreatestInstant(t *testing.T) {
	items := []Stamped[string]{
		New("a", 10),
		New("b", 30),
		New("c", 20),
	}
	latest, ok := FindLatest(items)
	if !ok || latest.Value != "b" {
		t.Fatalf("expected b, got %+v (ok=%v)", latest, ok)
	}
}

func TestFindLatestIsWrapSafe(t *testing.T) {
	// A clock that has wrapped around: the item stamped just after
	// wraparound (small instant value) is actually the later one.
	items := []Stamped[string]{
		New("before-wrap", 4294967290),
		New("after-wrap", 5),
	}
	latest, ok := FindLatest(items)
	if !ok || latest.Value != "after-wrap" {
		t.Fatalf("expected after-wrap to be latest, got %+v", latest)
	}
}

func TestFindOldestEmpty(t *testing.T) {
	if _, ok := FindOldest[int](nil); ok {
		t.Fatal("expected no result for an empty slice")
	}
}

func TestFindOldestPicksLeastInstant(t *testing.T) {
	items := []Stamped[string]{
		New("a", 10),
		New("b", 30),
		New("c", 20),
	}
	oldest, ok := FindOldest(items)
	if !ok || oldest.Value != "a" {
		t.Fatalf("expected a, got %+v (ok=%v)", oldest, ok)
	}
}

func TestFindOldestIsWrapSafe(t *testing.T) {
	items := []Stamped[string]{
		New("before-wrap", 4294967290),
		New("after-wrap", 5),
	}
	oldest, ok := FindOldest(items)
	if !ok || oldest.Value != "before-wrap" {
		t.Fatalf("expected before-wrap to be oldest, got %+v", oldest)
	}
}
