//go:build linux

// Package threadid is the concrete thread-identity collaborator: it yields a
// small integer stable per OS thread, for arena selection in package hoard.
//
// Go has no goroutine-local storage, so unlike a pthread-per-call design this
// reads the OS thread the calling goroutine currently runs on. A goroutine
// may be rescheduled onto a different OS thread between two calls; that only
// perturbs which arena the caller lands on next time (a locality heuristic),
// it never affects correctness — package hoard's retry protocol already
// tolerates a superblock whose owner changed underneath a caller.
package threadid

import (
	"sync"

	"golang.org/x/sys/unix"
)

// registry folds raw OS tids into a dense small integer on first sight,
// standing in for a thread-local cache: Go has no TLS, so the cache is a
// process-wide map keyed by tid instead of a per-thread slot.
type registry struct {
	mu   sync.Mutex
	next int
	ids  map[int]int
}

var global = &registry{ids: make(map[int]int)}

// ID returns a small integer identifying the OS thread the calling goroutine
// currently runs on.
func ID() int {
	tid := unix.Gettid()

	global.mu.Lock()
	defer global.mu.Unlock()
	if id, ok := global.ids[tid]; ok {
		return id
	}
	id := global.next
	global.next++
	global.ids[tid] = id
	return id
}
