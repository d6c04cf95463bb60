package syncmap

import "testing"

func TestMap(t *testing.T) {
	m := New[string, int]()
	m.Put("foo", 82)

	if v, ok := m.Get("foo"); !ok || v != 82 {
		t.Fatalf("Get(foo) = (%d, %v), want (82, true)", v, ok)
	}
	if m.Add("foo", 1) {
		t.Fatal("Add overwrote existing key")
	}
	if !m.Add("bar", 2) {
		t.Fatal("Add failed on new key")
	}
	if !m.Update("foo", func(v int) int { return v + 1 }) {
		t.Fatal("Update did not find foo")
	}
	if v, _ := m.Get("foo"); v != 83 {
		t.Fatalf("after Update, foo = %d, want 83", v)
	}
	if v, ok := m.Del("bar"); !ok || v != 2 {
		t.Fatalf("Del(bar) = (%d, %v), want (2, true)", v, ok)
	}
	if _, ok := m.Get("bar"); ok {
		t.Fatal("bar still present after Del")
	}
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
}
