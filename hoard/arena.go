//go:build linux

package hoard

import "sync"

// arena is a per-thread (index 1..P) or the global (index 0) container of
// superblocks, partitioned by size class and then by fullness bin. Its
// mutex guards the bin matrix and the aggregate counters; it is always
// acquired before any superblock mutex the arena currently owns.
type arena struct {
	idx            int32
	mu             sync.Mutex
	inUse          uint64 // bytes currently allocated from superblocks this arena owns
	pagesAllocated uint64 // count of superblocks this arena owns
	bins           [numSizeClasses][numFullnessBins]superblockList
}

func (a *arena) isGlobal() bool { return a.idx == 0 }

// findCandidate walks fullness bins from B-2 down to 0 (skipping the full
// bin), trying a non-blocking acquisition of each candidate's mutex. On
// success it re-verifies the candidate isn't full (it may have filled
// since being observed in the list) before returning it locked. The
// caller must already hold a.mu.
func (a *arena) findCandidate(sizeClass int, pageSize uintptr) (sb *superblockHeader, bin int32, ok bool) {
	slotSz := slotSize(sizeClass)
	for b := numFullnessBins - 2; b >= 0; b-- {
		for s := a.bins[sizeClass][b].first; s != nil; s = s.next {
			if !s.mu.TryLock() {
				continue
			}
			if s.isFull(slotSz, pageSize) {
				s.mu.Unlock()
				continue
			}
			return s, int32(b), true
		}
	}
	return nil, 0, false
}

// moveSuperblock is the single primitive that relocates a superblock
// between list cells, optionally between two arenas. Callers
// must already hold from.mu, to.mu (if to is non-nil and distinct from
// from), and sb.mu; moveSuperblock performs no locking of its own.
func moveSuperblock(from, to *arena, sb *superblockHeader, sizeClass int, oldBin int32, pageSize uintptr, logPageSize uint) {
	slotSz := slotSize(sizeClass)
	full := sb.isFull(slotSz, pageSize)
	newBin := binForUse(sb.inUse, full, logPageSize)

	if newBin != oldBin || to != nil {
		from.bins[sizeClass][oldBin].remove(sb)
		dest := from
		if to != nil {
			dest = to
		}
		dest.bins[sizeClass][newBin].insert(sb)
		sb.binIdx = newBin
	}

	if to != nil && from != to {
		from.inUse -= uint64(sb.inUse)
		to.inUse += uint64(sb.inUse)
		from.pagesAllocated--
		to.pagesAllocated++
	}
}
