//go:build linux

// Package hoard implements a concurrent, multi-threaded general-purpose
// allocator in the style of Hoard: a per-thread arena of superblocks drawn
// from a global arena, backed by an OS-level page store, with fullness-bin
// placement and an under-utilization migration policy that returns
// superblocks threads aren't using back to the global arena.
package hoard

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/hoardgo/hoard/internal/metrics"
)

// Allocator is the process-wide handle returned by New. It owns the page
// store, the global arena (index 0), and one arena per processor
// (index 1..P), and exposes the two public entry points: Allocate and
// Release.
type Allocator struct {
	cfg         Config
	pageSize    uintptr
	logPageSize uint
	store       *pageStore
	arenas      []*arena // arenas[0] is global; arenas[1..numArenas] are thread-facing
	numArenas   int
	log         *logger
	metrics     *metrics.Set
}

// New initializes the page store, probes the page size and CPU count, and
// zero-initializes the global arena plus one arena per processor. It
// returns a non-nil error on any collaborator failure, with no partial
// state retained.
func New(cfg Config) (*Allocator, error) {
	if err := cfg.fillDefaults(); err != nil {
		return nil, fmt.Errorf("hoard: init: %w", err)
	}

	pageSize := cfg.PageSupply.PageSize()
	logPageSize := cfg.PageSupply.LogPageSize()
	if pageSize == 0 || pageSize&(pageSize-1) != 0 {
		return nil, fmt.Errorf("hoard: init: page size %d is not a power of two", pageSize)
	}
	if pageSize/2 < maxBlockSize {
		return nil, fmt.Errorf("hoard: init: page size %d too small to hold the largest size class", pageSize)
	}
	if uintptr(1)<<logPageSize != pageSize {
		return nil, fmt.Errorf("hoard: init: log page size %d disagrees with page size %d", logPageSize, pageSize)
	}

	p := cfg.CPUCount.Count()
	if p <= 0 {
		return nil, fmt.Errorf("hoard: init: cpu count must be positive, got %d", p)
	}

	arenas := make([]*arena, p+1)
	for i := range arenas {
		arenas[i] = &arena{idx: int32(i)}
	}

	a := &Allocator{
		cfg:         cfg,
		pageSize:    pageSize,
		logPageSize: logPageSize,
		store:       newPageStore(cfg.PageSupply),
		arenas:      arenas,
		numArenas:   p,
		log:         newLogger(cfg.Logger),
		metrics:     cfg.metricsSet(),
	}
	a.log.info("initialized", "cpus", p, "page_size", pageSize)
	return a, nil
}

// arenaFor hashes a thread id modulo P, plus one, into the thread-facing
// arena range 1..P.
func (a *Allocator) arenaFor(threadID int) *arena {
	idx := 1 + threadID%a.numArenas
	return a.arenas[idx]
}

// Allocate returns a block of at least size bytes, aligned to at least the
// block's slot size for non-huge requests. A huge request's block begins
// immediately after the header at the start of its first page: that page
// is page-aligned, the block itself is offset from it by headerSize.
func (a *Allocator) Allocate(size uintptr) (unsafe.Pointer, error) {
	if size == 0 {
		return nil, ErrInvalidSize
	}
	if size > a.pageSize/2 {
		return a.allocateHuge(size)
	}
	return a.allocateNormal(size)
}

func (a *Allocator) allocateNormal(size uintptr) (unsafe.Pointer, error) {
	sizeClass := sizeClassFor(size)
	slotSz := slotSize(sizeClass)

	tid := a.cfg.ThreadID.ID()
	ar := a.arenaFor(tid)

	ar.mu.Lock()

	sb, _, ok := ar.findCandidate(sizeClass, a.pageSize)
	if !ok {
		global := a.arenas[0]
		global.mu.Lock()
		var bin int32
		sb, bin, ok = global.findCandidate(sizeClass, a.pageSize)
		if ok {
			moveSuperblock(global, ar, sb, sizeClass, bin, a.pageSize, a.logPageSize)
			sb.ownerArena = ar.idx
		}
		global.mu.Unlock()
	}

	if !ok {
		var err error
		sb, err = a.createSuperblock(ar, sizeClass)
		if err != nil {
			ar.mu.Unlock()
			a.log.error("out of address space", "size", size, "pages", 1, "err", err)
			os.Exit(1)
		}
	}

	// We now hold ar.mu and sb.mu.
	slots := slotsPerSuperblock(slotSz, a.pageSize)
	idx := sb.nextFreeSlot(slots)
	if idx < 0 {
		sb.mu.Unlock()
		ar.mu.Unlock()
		panic("hoard: internal: next_free_slot failed on a superblock known not to be full")
	}
	sb.setBit(idx)
	sb.inUse += uint32(slotSz)
	ar.inUse += uint64(slotSz)
	moveSuperblock(ar, nil, sb, sizeClass, sb.binIdx, a.pageSize, a.logPageSize)
	ptr := slotAddress(sb, idx, slotSz)

	if a.cfg.Debug {
		a.assertSuperblock(sb)
	}
	sb.mu.Unlock()
	if a.cfg.Debug {
		a.assertArena(ar)
	}
	ar.mu.Unlock()

	if a.metrics != nil {
		a.metrics.BytesInUse.Add(int64(slotSz))
	}
	return ptr, nil
}

// createSuperblock obtains a fresh page, initializes it as a superblock for
// sizeClass at the head of bin 0, and returns it with its mutex already
// held. The ordering here — initialize, then immediately lock it before
// releasing the arena mutex — bypasses the non-blocking pattern
// findCandidate uses; that's fine, since the superblock is brand new and
// uncontended, so a blocking Lock here can never wait.
func (a *Allocator) createSuperblock(ar *arena, sizeClass int) (*superblockHeader, error) {
	sb, err := a.store.obtain(1)
	if err != nil {
		return nil, fmt.Errorf("hoard: grow address space: %w", err)
	}
	sb.ownerArena = ar.idx
	sb.szClass = int32(sizeClass)
	sb.binIdx = 0
	ar.bins[sizeClass][0].insert(sb)
	ar.pagesAllocated++
	if a.metrics != nil {
		a.metrics.PagesAllocated.Add(1)
	}
	sb.mu.Lock()
	return sb, nil
}

// allocateHuge bypasses arenas and bitmaps entirely: requests over half the
// page size get k contiguous pages, with one header at the front.
func (a *Allocator) allocateHuge(size uintptr) (unsafe.Pointer, error) {
	capacity := a.pageSize - headerSize
	k := int((size + capacity - 1) / capacity)

	sb, err := a.store.obtain(k)
	if err != nil {
		a.log.error("out of address space", "size", size, "pages", k, "err", err)
		os.Exit(1)
	}
	sb.pageCount = int32(k)
	if a.metrics != nil {
		a.metrics.HugeBlocks.Add(1)
		a.metrics.PagesAllocated.Add(int64(k))
	}
	return unsafe.Pointer(headerEndOf(sb)), nil
}

// Release returns p, previously returned by Allocate on this Allocator and
// not yet released, to its superblock (or, for huge blocks, to the page
// store).
func (a *Allocator) Release(p unsafe.Pointer) {
	hdr := headerForPointer(p, a.pageSize)

	if hdr.pageCount > 0 {
		a.releaseHuge(hdr)
		return
	}

	ar := a.acquireOwnerThenSuperblock(hdr)

	sizeClass := int(hdr.szClass)
	slotSz := slotSize(sizeClass)
	idx := slotIndexForPointer(hdr, p, slotSz)
	hdr.clearBit(idx)
	hdr.inUse -= uint32(slotSz)
	ar.inUse -= uint64(slotSz)
	moveSuperblock(ar, ar, hdr, sizeClass, hdr.binIdx, a.pageSize, a.logPageSize)

	if a.cfg.Debug {
		a.assertSuperblock(hdr)
	}
	hdr.mu.Unlock()

	if a.metrics != nil {
		a.metrics.BytesInUse.Add(-int64(slotSz))
	}

	if a.shouldMigrate(ar) {
		if a.migrateUnderutilized(ar) {
			return // migrateUnderutilized already released ar.mu
		}
	}
	if a.cfg.Debug {
		a.assertArena(ar)
	}
	ar.mu.Unlock()
}

// acquireOwnerThenSuperblock implements the release-path retry protocol:
// snapshot the owner, acquire that arena's mutex, then the
// superblock's; if the owner changed between the two acquisitions (another
// thread migrated it), release both and retry with the new owner. This
// upholds lock-ordering rule 2 without deadlocking against an in-flight
// migration. Returns the owning arena with both mutexes held.
func (a *Allocator) acquireOwnerThenSuperblock(hdr *superblockHeader) *arena {
	for {
		ownerSnapshot := hdr.ownerArena
		ar := a.arenas[ownerSnapshot]
		ar.mu.Lock()
		hdr.mu.Lock()
		if hdr.ownerArena != ownerSnapshot {
			hdr.mu.Unlock()
			ar.mu.Unlock()
			continue
		}
		return ar
	}
}

func (a *Allocator) releaseHuge(hdr *superblockHeader) {
	k := int(hdr.pageCount)
	base := uintptr(unsafe.Pointer(hdr))
	for i := 0; i < k; i++ {
		page := (*superblockHeader)(unsafe.Pointer(base + uintptr(i)*a.pageSize))
		*page = superblockHeader{}
		a.store.releasePage(page)
	}
	if a.metrics != nil {
		a.metrics.HugeBlocks.Add(-1)
		a.metrics.PagesAllocated.Add(-int64(k))
	}
}

// shouldMigrate evaluates both emptiness thresholds that gate whether a
// thread arena donates a superblock back to the global arena. Caller must
// hold ar.mu.
func (a *Allocator) shouldMigrate(ar *arena) bool {
	if ar.isGlobal() {
		return false
	}
	pagesAllocated := int64(ar.pagesAllocated)
	inUse := int64(ar.inUse)
	if inUse >= pagesAllocated-emptinessK {
		return false
	}
	limit := (1 - emptinessF) * float64(ar.pagesAllocated) * float64(a.pageSize)
	return float64(inUse) < limit
}

// migrateUnderutilized walks size classes 0..numSizeClasses-1, inspecting
// the head of fullness bin 0 in each and attempting a non-blocking
// acquisition of its mutex. Caller must hold ar.mu and the global arena's
// mutex must be free.
//
// Returns true if ar.mu was already released as part of reclaiming a
// wholly-empty superblock; the caller must not unlock ar.mu again in that
// case.
func (a *Allocator) migrateUnderutilized(ar *arena) bool {
	global := a.arenas[0]
	global.mu.Lock()

	for sizeClass := 0; sizeClass < numSizeClasses; sizeClass++ {
		head := ar.bins[sizeClass][0].first
		if head == nil {
			continue
		}
		if !head.mu.TryLock() {
			continue
		}
		sb := head

		if sb.inUse == 0 {
			ar.bins[sizeClass][0].remove(sb)
			ar.pagesAllocated--
			sb.mu.Unlock()
			global.mu.Unlock()
			ar.mu.Unlock()
			a.store.releasePage(sb)
			if a.metrics != nil {
				a.metrics.Migrations.Add(1)
				a.metrics.PagesAllocated.Add(-1)
			}
			a.log.debug("migrated empty superblock to page store", "arena", ar.idx, "size_class", sizeClass)
			return true
		}

		moveSuperblock(ar, global, sb, sizeClass, 0, a.pageSize, a.logPageSize)
		sb.ownerArena = global.idx
		sb.mu.Unlock()
		if a.metrics != nil {
			a.metrics.Migrations.Add(1)
		}
		a.log.debug("migrated superblock to global arena", "arena", ar.idx, "size_class", sizeClass)
		break
	}

	global.mu.Unlock()
	return false
}

func (a *Allocator) assertSuperblock(sb *superblockHeader) {
	if err := checkSuperblockInvariants(sb, a.pageSize, a.logPageSize); err != nil {
		a.log.error("superblock invariant violated", "err", err)
	}
}

func (a *Allocator) assertArena(ar *arena) {
	if err := checkArenaInvariants(ar); err != nil {
		a.log.error("arena invariant violated", "err", err)
	}
}
