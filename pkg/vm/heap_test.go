package vm

import (
	"testing"

	"pcode/pkg/image"
	"pcode/pkg/pcode"
)

func newHeapMachine(t *testing.T, coalesce bool) *Machine {
	t.Helper()
	img := &image.Image{Code: []byte{pcode.END}, HeapSize: 1024}
	return load(t, img, Options{Coalesce: coalesce})
}

func mustNew(t *testing.T, h *Heap, size int) uint16 {
	t.Helper()
	ptr, r := h.New(size)
	if r != ExitGo {
		t.Fatalf("New(%d) = %v", size, r)
	}
	return ptr
}

func TestHeapReusesDisposedChunk(t *testing.T) {
	m := newHeapMachine(t, false)
	for _, size := range []int{1, 8, 24, 100, 500} {
		first := mustNew(t, &m.Heap, size)
		if r := m.Heap.Dispose(first); r != ExitGo {
			t.Fatalf("Dispose: %v", r)
		}
		if again := mustNew(t, &m.Heap, size); again != first {
			t.Errorf("size %d: second allocation at %d, want %d", size, again, first)
		}
		m.Heap.Dispose(first)
	}
}

func TestHeapAlignment(t *testing.T) {
	m := newHeapMachine(t, false)
	for _, size := range []int{1, 9, 17, 40} {
		ptr := mustNew(t, &m.Heap, size)
		if (int(ptr)-chunkHeader-int(m.Layout.HeapBase))%HeapUnit != 0 {
			t.Errorf("chunk for size %d at %d is not unit aligned", size, ptr)
		}
	}
}

func TestHeapAllocationFailure(t *testing.T) {
	m := newHeapMachine(t, false)
	ptr, r := m.Heap.New(4096)
	if r != ExitNewFailed {
		t.Fatalf("New(4096) = %v, want %v", r, ExitNewFailed)
	}
	if ptr != 0 {
		t.Errorf("failed allocation returned %d, want 0", ptr)
	}
	// the heap is untouched
	if got := m.Heap.MaxAvail(); got != 1024-chunkHeader {
		t.Errorf("MaxAvail = %d, want %d", got, 1024-chunkHeader)
	}
}

func TestHeapDispose(t *testing.T) {
	m := newHeapMachine(t, false)
	ptr := mustNew(t, &m.Heap, 10)
	if r := m.Heap.Dispose(ptr); r != ExitGo {
		t.Fatalf("Dispose: %v", r)
	}
	if r := m.Heap.Dispose(ptr); r != ExitDoubleDispose {
		t.Errorf("second Dispose = %v, want %v", r, ExitDoubleDispose)
	}
	if r := m.Heap.Dispose(ptr + 2); r != ExitBadAddress {
		t.Errorf("Dispose of interior pointer = %v, want %v", r, ExitBadAddress)
	}
	if r := m.Heap.Dispose(0); r != ExitBadAddress {
		t.Errorf("Dispose(0) = %v, want %v", r, ExitBadAddress)
	}
}

func TestHeapFreeListOrder(t *testing.T) {
	m := newHeapMachine(t, false)
	big := mustNew(t, &m.Heap, 100)
	mustNew(t, &m.Heap, 8) // keeps big and small apart
	small := mustNew(t, &m.Heap, 8)
	mustNew(t, &m.Heap, 8)
	m.Heap.Dispose(big)
	m.Heap.Dispose(small)

	// first fit over an ascending list picks the smallest chunk that fits
	if got := mustNew(t, &m.Heap, 8); got != small {
		t.Errorf("New(8) = %d, want the small chunk %d", got, small)
	}
	if got := mustNew(t, &m.Heap, 60); got != big {
		t.Errorf("New(60) = %d, want the big chunk %d", got, big)
	}
}

func TestHeapCoalescing(t *testing.T) {
	tests := []struct {
		name     string
		coalesce bool
		reuse    bool
	}{
		{"fragmenting by default", false, false},
		{"coalescing when enabled", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newHeapMachine(t, tt.coalesce)
			a := mustNew(t, &m.Heap, 24) // two units each
			b := mustNew(t, &m.Heap, 24)
			m.Heap.Dispose(a)
			m.Heap.Dispose(b)

			combined := mustNew(t, &m.Heap, 4*HeapUnit-chunkHeader)
			if got := combined == a; got != tt.reuse {
				t.Errorf("combined allocation at %d (first chunk %d), reuse = %v, want %v", combined, a, got, tt.reuse)
			}
		})
	}
}

func TestHeapCoalescedHeapRestoresCapacity(t *testing.T) {
	m := newHeapMachine(t, true)
	var ptrs []uint16
	for range 10 {
		ptrs = append(ptrs, mustNew(t, &m.Heap, 40))
	}
	for _, p := range []int{1, 3, 5, 7, 9, 0, 2, 4, 6, 8} {
		if r := m.Heap.Dispose(ptrs[p]); r != ExitGo {
			t.Fatalf("Dispose(%d): %v", ptrs[p], r)
		}
	}
	if got := m.Heap.MaxAvail(); got != 1024-chunkHeader {
		t.Errorf("MaxAvail after freeing everything = %d, want %d", got, 1024-chunkHeader)
	}
}

func TestLibNewAndDispose(t *testing.T) {
	b := pcode.NewBuilder().
		Op16(pcode.INDS, 2).
		Push(30).Lib(pcode.LibNEW).Op16(pcode.ST, 0).
		Op16(pcode.LD, 0).Push(0x1234).Op(pcode.STI).
		Op16(pcode.LD, 0).Op(pcode.LDI).
		Op16(pcode.LD, 0).Lib(pcode.LibDISPOSE).
		Op(pcode.END)
	m := mustHalt(t, b)
	if m.ExitCode != 0x1234 {
		t.Errorf("value read back through heap pointer = %#x, want 0x1234", m.ExitCode)
	}
}

func TestLibNewFailureFaults(t *testing.T) {
	b := pcode.NewBuilder().Push(-1).Lib(pcode.LibNEW).Op(pcode.END)
	m, reason := runProgram(t, b)
	if reason != ExitNewFailed {
		t.Fatalf("Run = %v, want %v", reason, ExitNewFailed)
	}
	if m.PC != 3 {
		t.Errorf("PC = %d, want 3 (the LIB instruction)", m.PC)
	}
}
