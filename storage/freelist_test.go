package storage

import "testing"

func TestFreelistPushPop(t *testing.T) {
	f := NewFreelist(0)
	if !f.Empty() {
		t.Fatal("expected new free-list to be empty")
	}

	old := f.Push(5)
	if old != 0 {
		t.Fatalf("expected old head 0, got %d", old)
	}
	if f.Head() != 5 {
		t.Fatalf("expected head 5, got %d", f.Head())
	}

	old = f.Push(9)
	if old != 5 {
		t.Fatalf("expected old head 5, got %d", old)
	}

	popped := f.Pop(5) // page 9's chain link, read by the caller, points back at 5
	if popped != 9 {
		t.Fatalf("expected pop to return 9, got %d", popped)
	}
	if f.Head() != 5 {
		t.Fatalf("expected head 5 after pop, got %d", f.Head())
	}

	f.Pop(0)
	if !f.Empty() {
		t.Fatal("expected free-list to be empty after popping its last page")
	}
}
