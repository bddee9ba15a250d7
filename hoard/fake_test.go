//go:build linux

package hoard

import (
	"fmt"
	"math/bits"
	"sync"
	"unsafe"
)

// fakePageSupply hands out page-aligned regions carved from a fresh plain Go
// heap allocation on every Grow call, standing in for the mmap-backed
// internal/pagesupply.Supply in tests. Each chunk is
// retained for the life of the fake so the GC never reclaims memory the
// allocator under test still references.
type fakePageSupply struct {
	mu          sync.Mutex
	pageSize    uintptr
	logPageSize uint
	chunks      [][]byte
}

func newFakePageSupply(pageSize uintptr) *fakePageSupply {
	return &fakePageSupply{
		pageSize:    pageSize,
		logPageSize: uint(bits.TrailingZeros(uint(pageSize))),
	}
}

func (f *fakePageSupply) PageSize() uintptr { return f.pageSize }
func (f *fakePageSupply) LogPageSize() uint { return f.logPageSize }

func (f *fakePageSupply) Grow(nPages int) (unsafe.Pointer, error) {
	if nPages <= 0 {
		return nil, fmt.Errorf("fakePageSupply: nPages must be positive, got %d", nPages)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	need := uintptr(nPages) * f.pageSize
	chunk := make([]byte, need+f.pageSize)
	f.chunks = append(f.chunks, chunk)

	base := uintptr(unsafe.Pointer(&chunk[0]))
	aligned := (base + f.pageSize - 1) &^ (f.pageSize - 1)
	return unsafe.Pointer(aligned), nil
}

// fakeThreadID lets tests pin a goroutine to a specific arena deterministically.
type fakeThreadID struct {
	mu  sync.Mutex
	cur int
}

func (f *fakeThreadID) ID() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cur
}

func (f *fakeThreadID) set(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cur = id
}

type fakeCPUCount int

func (c fakeCPUCount) Count() int { return int(c) }

// newTestAllocator wires a fakePageSupply (4 KiB pages) and a fakeThreadID
// pinned to thread 0, with P processors.
func newTestAllocator(p int) (*Allocator, *fakeThreadID) {
	tid := &fakeThreadID{}
	a, err := New(Config{
		PageSupply: newFakePageSupply(4096),
		ThreadID:   tid,
		CPUCount:   fakeCPUCount(p),
		Debug:      true,
	})
	if err != nil {
		panic(err)
	}
	return a, tid
}
