package idpool

import "testing"

func TestPoolAscending(t *testing.T) {
	p := New(100, 1<<32-1)

	for i := uint32(0); i < 100; i++ {
		n, ok := p.Get()
		if !ok {
			t.Fatalf("pool reported full at %d/100", i)
		}
		if n != i {
			t.Fatalf("Get() = %d, want %d", n, i)
		}
	}
	if _, ok := p.Get(); ok {
		t.Fatal("pool should be exhausted")
	}
}

func TestPoolFreeLIFO(t *testing.T) {
	p := New(10, 1<<32-1)
	var got []uint32
	for i := 0; i < 10; i++ {
		n, ok := p.Get()
		if !ok {
			t.Fatalf("pool full at %d", i)
		}
		got = append(got, n)
	}
	for i := len(got) - 1; i >= 0; i-- {
		p.Free(got[i])
	}
	if n, ok := p.Get(); !ok || n != 0 {
		t.Fatalf("Get() after full free = (%d, %v), want (0, true)", n, ok)
	}
}

func TestPoolSkipsReserved(t *testing.T) {
	p := New(5, 2)
	for i := 0; i < 4; i++ {
		n, ok := p.Get()
		if !ok {
			t.Fatalf("pool full at %d", i)
		}
		if n == 2 {
			t.Fatal("pool returned reserved id 2")
		}
	}
}
