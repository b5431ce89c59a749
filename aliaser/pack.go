// Package aliaser packs the scheduling infos of a single aliasing group
// into a linear heap space using bucket-based first-fit with conflict
// intervals, assigning each a heap offset while guaranteeing that any two
// entries whose byte ranges overlap have disjoint lifetimes.
package aliaser

import "sort"

// Lifetime is a closed pass-index interval during which an entry's
// contents must be preserved.
type Lifetime struct {
	First, Last int
}

// overlaps reports closed-interval overlap: a.First <= b.Last && b.First <= a.Last.
func (a Lifetime) overlaps(b Lifetime) bool {
	return a.First <= b.Last && b.First <= a.Last
}

// Entry is one resource to be packed: its lifetime, its size, and an
// opaque Key the caller uses to read back the assigned placement.
type Entry struct {
	Key      interface{}
	Lifetime Lifetime
	Size     uint64
}

// Placement is the packing result for one entry.
type Placement struct {
	Key                  interface{}
	Offset               uint64
	NeedsAliasingBarrier bool
}

// Result is the outcome of Pack: the total heap size required and each
// entry's placement.
type Result struct {
	HeapSize   uint64
	Placements []Placement
}

type placed struct {
	entry  Entry
	offset uint64 // relative to the bucket's start; globalStart is added when the bucket closes
}

// Pack packs entries into a linear heap. An empty entries slice still
// returns a heap size of 1, so the backend can create a minimal heap.
func Pack(entries []Entry) Result {
	if len(entries) == 0 {
		return Result{HeapSize: 1}
	}

	remaining := make([]Entry, len(entries))
	copy(remaining, entries)
	sort.SliceStable(remaining, func(i, j int) bool {
		return remaining[i].Size > remaining[j].Size
	})

	result := Result{}
	barrierKeys := make(map[interface{}]bool)

	var globalStart uint64
	for len(remaining) > 0 {
		anchor := remaining[0]
		bucketAvailable := anchor.Size
		bucket := []placed{{entry: anchor, offset: 0}}
		consumed := map[int]bool{0: true}

		for i := 1; i < len(remaining); i++ {
			candidate := remaining[i]
			region, ok := findBestFitRegion(bucket, bucketAvailable, candidate)
			if !ok {
				continue
			}
			barrierKeys[candidate.Key] = true
			barrierKeys[bucket[0].entry.Key] = true
			bucket = append(bucket, placed{entry: candidate, offset: region})
			consumed[i] = true
		}

		for _, p := range bucket {
			result.Placements = append(result.Placements, Placement{
				Key:                  p.entry.Key,
				Offset:               globalStart + p.offset,
				NeedsAliasingBarrier: barrierKeys[p.entry.Key],
			})
		}

		result.HeapSize += bucketAvailable
		globalStart += bucketAvailable

		next := remaining[:0]
		for i, e := range remaining {
			if !consumed[i] {
				next = append(next, e)
			}
		}
		remaining = next
	}

	return result
}

// findBestFitRegion computes the non-aliasable regions of the current
// bucket (intervals occupied by entries whose lifetime intersects
// candidate's), sweeps the gaps between them, and returns the offset of
// the smallest free region that is at least candidate.Size, relative to
// the bucket's own start (not globalStart).
func findBestFitRegion(bucket []placed, bucketAvailable uint64, candidate Entry) (uint64, bool) {
	type interval struct{ start, end uint64 } // end is exclusive
	var blocked []interval
	for _, p := range bucket {
		if !p.entry.Lifetime.overlaps(candidate.Lifetime) {
			continue
		}
		blocked = append(blocked, interval{start: p.offset, end: p.offset + p.entry.Size})
	}
	sort.Slice(blocked, func(i, j int) bool { return blocked[i].start < blocked[j].start })

	type free struct{ offset, size uint64 }
	var freeRegions []free
	cursor := uint64(0)
	for _, b := range blocked {
		if b.start > cursor {
			freeRegions = append(freeRegions, free{offset: cursor, size: b.start - cursor})
		}
		if b.end > cursor {
			cursor = b.end
		}
	}
	if cursor < bucketAvailable {
		freeRegions = append(freeRegions, free{offset: cursor, size: bucketAvailable - cursor})
	}

	bestIdx := -1
	for i, r := range freeRegions {
		if r.size < candidate.Size {
			continue
		}
		if bestIdx == -1 || r.size < freeRegions[bestIdx].size {
			bestIdx = i
		}
	}
	if bestIdx == -1 {
		return 0, false
	}
	return freeRegions[bestIdx].offset, true
}
