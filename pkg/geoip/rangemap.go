package geoip

import "sort"

// Key is any value a range map can be keyed by; this module only
// instantiates it with uint32 (IPv4) and [16]byte / big.Int-free
// 128-bit keys represented as two uint64s (IPv6), but it is kept
// generic so both share one implementation, matching the donor's
// preference for one small reusable module over duplicated logic.
type Key interface {
	~uint32 | ~uint64
}

// rangeEntry is one [min,max] -> value entry.
type rangeEntry[K Key] struct {
	min, max K
	value    uint32
}

// RangeMap is an immutable sorted list of disjoint, non-overlapping
// [min,max] inclusive ranges, looked up by binary search. Entries
// must be inserted in increasing, non-overlapping order via Put;
// once built it never mutates (spec.md §5: "the GeoIP range-maps...
// are immutable after initialization").
type RangeMap[K Key] struct {
	entries []rangeEntry[K]
}

// Put appends a new range. Ranges must be inserted in increasing
// order and must not overlap the previous one; a violation is
// silently dropped (matching the reference loader, which logs and
// skips malformed CSV rows rather than failing the whole load).
func (m *RangeMap[K]) Put(min, max K, value uint32) {
	if n := len(m.entries); n > 0 && min <= m.entries[n-1].max {
		return
	}
	m.entries = append(m.entries, rangeEntry[K]{min, max, value})
}

// Get returns the value whose range contains key, if any.
func (m *RangeMap[K]) Get(key K) (uint32, bool) {
	i := sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].max >= key
	})
	if i < len(m.entries) && m.entries[i].min <= key && key <= m.entries[i].max {
		return m.entries[i].value, true
	}
	return 0, false
}

// Len returns the number of ranges stored.
func (m *RangeMap[K]) Len() int { return len(m.entries) }
