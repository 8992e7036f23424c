package queue

import (
	"slices"
	"testing"
)

func TestRingEmpty(t *testing.T) {
	r := NewRing[int](10)
	if got := r.Drain(); got != nil {
		t.Errorf("expected nil from empty drain, got %v", got)
	}
	if _, ok := r.Pop(); ok {
		t.Error("expected Pop on empty ring to fail")
	}
	if r.Len() != 0 {
		t.Errorf("expected len 0, got %d", r.Len())
	}
}

func TestRingPushAndDrain(t *testing.T) {
	r := NewRing[int](10)
	for i := 0; i < 5; i++ {
		if _, evicted := r.Push(i); evicted {
			t.Fatalf("push %d: unexpected eviction", i)
		}
	}

	got := r.Drain()
	if want := []int{0, 1, 2, 3, 4}; !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got := r.Drain(); got != nil {
		t.Errorf("expected nil from second drain, got %v", got)
	}
}

func TestRingOverflowEvictsOldest(t *testing.T) {
	r := NewRing[int](5)

	var evicted []int
	for i := 0; i < 8; i++ {
		if v, ok := r.Push(i); ok {
			evicted = append(evicted, v)
		}
	}

	if want := []int{0, 1, 2}; !slices.Equal(evicted, want) {
		t.Errorf("evicted: got %v, want %v", evicted, want)
	}
	if got, want := r.Drain(), []int{3, 4, 5, 6, 7}; !slices.Equal(got, want) {
		t.Errorf("kept: got %v, want %v", got, want)
	}
	if r.Dropped() != 3 {
		t.Errorf("expected 3 dropped, got %d", r.Dropped())
	}
}

func TestRingPopWraps(t *testing.T) {
	r := NewRing[string](3)
	r.Push("a")
	r.Push("b")
	if v, _ := r.Pop(); v != "a" {
		t.Errorf("got %q, want a", v)
	}
	r.Push("c")
	r.Push("d")
	r.Push("e")

	if got, want := r.Drain(), []string{"c", "d", "e"}; !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if r.Dropped() != 1 {
		t.Errorf("expected 1 dropped, got %d", r.Dropped())
	}
}

func TestRingMultipleCycles(t *testing.T) {
	r := NewRing[int](5)
	for i := 0; i < 3; i++ {
		r.Push(i)
	}
	if got := r.Drain(); len(got) != 3 {
		t.Fatalf("cycle 1: expected 3 items, got %d", len(got))
	}

	for i := 10; i < 14; i++ {
		r.Push(i)
	}
	if got, want := r.Drain(), []int{10, 11, 12, 13}; !slices.Equal(got, want) {
		t.Errorf("cycle 2: got %v, want %v", got, want)
	}
}

func TestRingMinimumCapacity(t *testing.T) {
	r := NewRing[int](0)
	if r.Cap() != 1 {
		t.Fatalf("expected capacity 1, got %d", r.Cap())
	}
	r.Push(1)
	if v, ok := r.Push(2); !ok || v != 1 {
		t.Errorf("expected eviction of 1, got %d %v", v, ok)
	}
}
