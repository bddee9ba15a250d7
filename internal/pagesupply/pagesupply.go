//go:build linux

// Package pagesupply is the concrete page-supply collaborator: it grows the
// process address space by whole pages and reports the system's page size.
// The core (package hoard) treats this as an external primitive and
// serializes all calls into it under the page-store mutex; this package adds
// no locking of its own.
package pagesupply

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Supply grows the process image with anonymous, page-aligned mappings.
// It is not itself safe for concurrent use without external serialization —
// package hoard provides that serialization.
type Supply struct {
	pageSize    uintptr
	logPageSize uint
}

// New probes the system page size once and returns a ready Supply.
func New() (*Supply, error) {
	sz := unix.Getpagesize()
	if sz <= 0 || sz&(sz-1) != 0 {
		return nil, fmt.Errorf("pagesupply: page size %d is not a positive power of two", sz)
	}
	return &Supply{
		pageSize:    uintptr(sz),
		logPageSize: uint(trailingZeros(uint64(sz))),
	}, nil
}

// PageSize reports the page size in bytes.
func (s *Supply) PageSize() uintptr { return s.pageSize }

// LogPageSize reports log2 of the page size.
func (s *Supply) LogPageSize() uint { return s.logPageSize }

// Grow maps nPages contiguous, page-aligned pages and returns the base
// address. The mapping is anonymous and never released back to the OS —
// the allocator caches reclaimed pages itself; released memory is never
// handed back to the kernel.
func (s *Supply) Grow(nPages int) (unsafe.Pointer, error) {
	if nPages <= 0 {
		return nil, fmt.Errorf("pagesupply: nPages must be positive, got %d", nPages)
	}
	length := uintptr(nPages) * s.pageSize
	b, err := unix.Mmap(-1, 0, int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("pagesupply: mmap %d pages: %w", nPages, err)
	}
	return unsafe.Pointer(&b[0]), nil
}

func trailingZeros(v uint64) int {
	n := 0
	for v&1 == 0 && v != 0 {
		v >>= 1
		n++
	}
	return n
}
