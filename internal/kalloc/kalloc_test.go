package kalloc

import "testing"

func newTestHeap(t *testing.T, size int) *Heap {
	t.Helper()
	h := &Heap{}
	Init(h, make([]byte, size))
	return h
}

func TestAllocReturnsDistinctNonOverlappingBlocks(t *testing.T) {
	h := newTestHeap(t, 4096)
	a := h.Alloc(64)
	b := h.Alloc(64)
	a[0] = 1
	b[0] = 2
	if a[0] == b[0] {
		t.Fatal("blocks alias the same memory")
	}
}

func TestAllocRoundsUpToMinBlock(t *testing.T) {
	h := newTestHeap(t, 4096)
	b := h.Alloc(1)
	if len(b) != MinBlockSize {
		t.Fatalf("len(b) = %d, want %d", len(b), MinBlockSize)
	}
}

func TestFreeThenReallocReusesSpace(t *testing.T) {
	h := newTestHeap(t, 4096)
	a := h.Alloc(128)
	h.Free(a)
	b := h.Alloc(128)
	if len(b) != 128 && len(b) != MinBlockSize<<orderFor(128) {
		t.Fatalf("unexpected realloc size %d", len(b))
	}
	if &b[0] != &a[0] {
		t.Fatal("realloc did not reuse the freed block")
	}
}

func TestBuddyCoalescesOnFree(t *testing.T) {
	h := newTestHeap(t, 256) // order = 3 (32<<3 = 256)
	a := h.Alloc(32)
	b := h.Alloc(32)
	c := h.Alloc(32)
	h.Free(a)
	h.Free(b)
	h.Free(c)
	// The whole arena should have coalesced back into one free block at
	// the top order, letting a single large allocation succeed.
	whole := h.Alloc(256)
	if len(whole) != 256 {
		t.Fatalf("len(whole) = %d, want 256 (buddies did not coalesce)", len(whole))
	}
}

func TestExhaustionPanics(t *testing.T) {
	h := newTestHeap(t, 128)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on heap exhaustion")
		}
	}()
	h.Alloc(64)
	h.Alloc(64)
	h.Alloc(64) // no room left
}

func TestFreeOfUnallocatedBlockPanics(t *testing.T) {
	h := newTestHeap(t, 256)
	stray := make([]byte, 32)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic freeing a block the heap never allocated")
		}
	}()
	h.Free(stray)
}
