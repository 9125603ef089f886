package geoip

import (
	"encoding/csv"
	"io"
	"net/netip"
	"strconv"
)

// Map resolves an IP address to an IpInfo via the frozen GeoLite2-
// style CSV range map, per spec.md §3: "entries whose end fits in 32
// bits live in the IPv4 map, others in the IPv6 map." Immutable after
// Load returns (spec.md §5).
type Map struct {
	four RangeMap[uint32]
	six  RangeMap6
}

// Load reads a GeoLite2-City-Blocks-style CSV: columns 0 and 1 are
// the inclusive numeric start/end of range, column 2 is the ISO
// alpha-2 country code, columns 7 and 8 are latitude/longitude. Rows
// with fewer than 9 columns or a missing lat/long are skipped,
// matching original_source/src/util/ip_info_map.rs's parse_record.
func Load(r io.Reader) (*Map, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	m := &Map{}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 9 || rec[7] == "" || rec[8] == "" {
			continue
		}
		start, err := strconv.ParseUint(rec[0], 10, 64)
		if err != nil {
			continue
		}
		end, err := strconv.ParseUint(rec[1], 10, 64)
		if err != nil {
			continue
		}
		if len(rec[2]) != 2 {
			continue
		}
		country, err := NewCountry(rec[2][0], rec[2][1])
		if err != nil {
			continue
		}
		lat, err := strconv.ParseFloat(rec[7], 64)
		if err != nil {
			continue
		}
		long, err := strconv.ParseFloat(rec[8], 64)
		if err != nil {
			continue
		}
		info := IpInfo{Country: country, Lat: lat, Long: long}
		packed := info.ToU32()

		if end <= 0xFFFFFFFF {
			m.four.Put(uint32(start), uint32(end), packed)
		} else {
			var minB, maxB [16]byte
			putUint128(&minB, start)
			putUint128(&maxB, end)
			m.six.Put(minB, maxB, packed)
		}
	}
	return m, nil
}

func putUint128(b *[16]byte, v uint64) {
	for i := 15; i >= 8; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

// Lookup resolves addr to an IpInfo, if a covering range exists.
func (m *Map) Lookup(addr netip.Addr) (IpInfo, bool) {
	addr = addr.Unmap()
	if addr.Is4() {
		b := addr.As4()
		v := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
		if packed, ok := m.four.Get(v); ok {
			return FromU32(packed), true
		}
		return IpInfo{}, false
	}
	b := addr.As16()
	if packed, ok := m.six.Get(b); ok {
		return FromU32(packed), true
	}
	return IpInfo{}, false
}

// Len returns the total number of ranges loaded across both maps.
func (m *Map) Len() int { return m.four.Len() + m.six.Len() }
