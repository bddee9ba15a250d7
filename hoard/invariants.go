//go:build linux

package hoard

import "github.com/hoardgo/hoard/internal/invariants"

// checkSuperblockInvariants verifies that a non-huge superblock's byte
// usage agrees with its popcount, that its fullness bin agrees with its
// usage, and that its full/not-full state agrees with nextFreeSlot. Caller
// must hold sb.mu.
func checkSuperblockInvariants(sb *superblockHeader, pageSize uintptr, logPageSize uint) error {
	slotSz := slotSize(int(sb.szClass))
	slots := slotsPerSuperblock(slotSz, pageSize)

	wantInUse := uintptr(sb.popcount()) * slotSz
	if err := invariants.Check(uintptr(sb.inUse) == wantInUse,
		"superblock in_use=%d, popcount*slotSize=%d", sb.inUse, wantInUse); err != nil {
		return err
	}

	full := sb.isFull(slotSz, pageSize)
	wantBin := binForUse(sb.inUse, full, logPageSize)
	if err := invariants.Check(sb.binIdx == wantBin,
		"superblock bin_idx=%d, want=%d", sb.binIdx, wantBin); err != nil {
		return err
	}

	if err := invariants.Check(full == (sb.nextFreeSlot(slots) == -1),
		"isFull()=%v disagrees with nextFreeSlot()", full); err != nil {
		return err
	}
	return nil
}

// checkArenaInvariants verifies that an arena's aggregate counters agree
// with the superblocks it actually owns. Caller must hold ar.mu. Reads
// each superblock's inUse without that superblock's
// own mutex held, so — like the teacher's debug-only assertions — this is
// a best-effort consistency check, not a linearizable snapshot.
func checkArenaInvariants(ar *arena) error {
	var sumInUse uint64
	var count uint64
	for sc := 0; sc < numSizeClasses; sc++ {
		for b := 0; b < numFullnessBins; b++ {
			for s := ar.bins[sc][b].first; s != nil; s = s.next {
				sumInUse += uint64(s.inUse)
				count++
			}
		}
	}
	if err := invariants.Check(sumInUse == ar.inUse,
		"arena in_use=%d, sum over owned superblocks=%d", ar.inUse, sumInUse); err != nil {
		return err
	}
	if err := invariants.Check(count == ar.pagesAllocated,
		"arena pages_allocated=%d, owned superblock count=%d", ar.pagesAllocated, count); err != nil {
		return err
	}
	return nil
}
