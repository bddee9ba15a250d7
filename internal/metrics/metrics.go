// Package metrics publishes allocator counters via expvar. It is purely
// observational: nothing in package hoard's lock-ordering or retry logic
// depends on it. The counters are expvar.Int values, which update
// atomically; package hoard updates them both inside and outside its
// lock-held sections and takes no mutex for them.
package metrics

import "expvar"

// Set is one allocator instance's published counters. Each Allocator gets
// its own Set under a unique name so multiple allocators in one process
// don't collide in the global expvar map.
type Set struct {
	BytesInUse     *expvar.Int
	PagesAllocated *expvar.Int
	Migrations     *expvar.Int
	HugeBlocks     *expvar.Int
}

// New publishes a fresh counter set under name and returns it. name must be
// unique per process; New panics via expvar.Publish's own panic if it isn't,
// matching expvar's documented behavior.
func New(name string) *Set {
	s := &Set{
		BytesInUse:     new(expvar.Int),
		PagesAllocated: new(expvar.Int),
		Migrations:     new(expvar.Int),
		HugeBlocks:     new(expvar.Int),
	}
	m := new(expvar.Map).Init()
	m.Set("bytes_in_use", s.BytesInUse)
	m.Set("pages_allocated", s.PagesAllocated)
	m.Set("migrations", s.Migrations)
	m.Set("huge_blocks", s.HugeBlocks)
	expvar.Publish(name, m)
	return s
}
