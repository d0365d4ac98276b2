package fifo

import "testing"

func Test_PushPop_SingleElement(t *testing.T) {
	f := New(4)
	f.Push(42)
	if f.Len() != 1 {
		t.Fatalf("expected len 1, got %d", f.Len())
	}
	if got := f.Pop(); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if f.Len() != 0 {
		t.Fatalf("expected len 0 after pop, got %d", f.Len())
	}
}

func Test_Pop_EmptyReturnsZero(t *testing.T) {
	f := New(4)
	if got := f.Pop(); got != 0 {
		t.Fatalf("expected sentinel 0 on empty pop, got %d", got)
	}
}

func Test_Push_PreservesOrder(t *testing.T) {
	f := New(8)
	want := []uint32{1, 2, 3, 4, 5}
	for _, v := range want {
		f.Push(v)
	}
	for _, v := range want {
		if got := f.Pop(); got != v {
			t.Fatalf("order violated: got %d, want %d", got, v)
		}
	}
}

func Test_Push_DropOldestOnOverflow(t *testing.T) {
	f := New(3)
	f.Push(1)
	f.Push(2)
	f.Push(3)
	f.Push(4) // evicts 1
	if f.Len() != f.Capacity() {
		t.Fatalf("expected len unchanged at capacity, got %d", f.Len())
	}
	got := []uint32{f.Pop(), f.Pop(), f.Pop()}
	want := []uint32{2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("overflow order mismatch: got %v, want %v", got, want)
		}
	}
}

// Scenario #6 from spec.md §8: capacity 3, push v1..v4, pop four times
// returns v2,v3,v4,0.
func Test_Scenario_CapacityThreePushFourPopFour(t *testing.T) {
	f := New(3)
	f.Push(10)
	f.Push(20)
	f.Push(30)
	f.Push(40)
	want := []uint32{20, 30, 40, 0}
	for i, w := range want {
		if got := f.Pop(); got != w {
			t.Fatalf("pop %d: got %d, want %d", i, got, w)
		}
	}
}

func Test_Clear(t *testing.T) {
	f := New(4)
	f.Push(1)
	f.Push(2)
	f.Clear()
	if f.Len() != 0 {
		t.Fatalf("expected len 0 after Clear, got %d", f.Len())
	}
	if f.Capacity() != 4 {
		t.Fatalf("Clear must not change capacity, got %d", f.Capacity())
	}
}

func Test_CapacityInvariant(t *testing.T) {
	f := New(5)
	for i := uint32(0); i < 20; i++ {
		f.Push(i)
		if f.Len() > f.Capacity() {
			t.Fatalf("len %d exceeded capacity %d", f.Len(), f.Capacity())
		}
	}
}
