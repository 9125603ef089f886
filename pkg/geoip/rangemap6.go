package geoip

import (
	"bytes"
	"sort"
)

// rangeEntry6 is one [min,max] -> value entry keyed by a 128-bit
// address represented as big-endian bytes (so byte-wise comparison
// equals numeric comparison, same trick net/netip relies on).
type rangeEntry6 struct {
	min, max [16]byte
	value    uint32
}

// RangeMap6 is the IPv6 analogue of RangeMap, since Go has no native
// 128-bit integer to satisfy a single generic Key constraint.
type RangeMap6 struct {
	entries []rangeEntry6
}

func (m *RangeMap6) Put(min, max [16]byte, value uint32) {
	if n := len(m.entries); n > 0 && bytes.Compare(min[:], m.entries[n-1].max[:]) <= 0 {
		return
	}
	m.entries = append(m.entries, rangeEntry6{min, max, value})
}

func (m *RangeMap6) Get(key [16]byte) (uint32, bool) {
	i := sort.Search(len(m.entries), func(i int) bool {
		return bytes.Compare(m.entries[i].max[:], key[:]) >= 0
	})
	if i < len(m.entries) &&
		bytes.Compare(m.entries[i].min[:], key[:]) <= 0 &&
		bytes.Compare(key[:], m.entries[i].max[:]) <= 0 {
		return m.entries[i].value, true
	}
	return 0, false
}

func (m *RangeMap6) Len() int { return len(m.entries) }
