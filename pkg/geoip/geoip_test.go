package geoip

import (
	"net/netip"
	"strings"
	"testing"
)

func TestIpInfoRoundTrip(t *testing.T) {
	cases := []IpInfo{
		{Country: [2]byte{'U', 'S'}, Lat: 37.751, Long: -97.822},
		{Country: [2]byte{'C', 'A'}, Lat: 56.130, Long: -106.346},
		{Country: [2]byte{'A', 'A'}, Lat: -90, Long: -180},
		{Country: [2]byte{'Z', 'Z'}, Lat: 89.9, Long: 179.9},
	}
	for _, c := range cases {
		packed := c.ToU32()
		got := FromU32(packed)
		if got.Country != c.Country {
			t.Fatalf("country mismatch: want %s got %s", c.CountryString(), got.CountryString())
		}
		// Fixed-point quantizes to ~0.176 degree steps (360/2048); allow slack.
		if diff := got.Lat - c.Lat; diff > 0.2 || diff < -0.2 {
			t.Fatalf("lat mismatch: want %v got %v", c.Lat, got.Lat)
		}
		if diff := got.Long - c.Long; diff > 0.2 || diff < -0.2 {
			t.Fatalf("long mismatch: want %v got %v", c.Long, got.Long)
		}
	}
}

func TestMapLookupIPv4(t *testing.T) {
	csv := "16777216,16777471,US,,,,,37.751,-97.822\n" +
		"16777472,16778239,CN,,,,,34.7732,113.7220\n"
	m, err := Load(strings.NewReader(csv))
	if err != nil {
		t.Fatal(err)
	}
	info, ok := m.Lookup(netip.MustParseAddr("1.0.0.5"))
	if !ok {
		t.Fatal("expected a match")
	}
	if info.CountryString() != "US" {
		t.Fatalf("country = %q, want US", info.CountryString())
	}
	if _, ok := m.Lookup(netip.MustParseAddr("8.8.8.8")); ok {
		t.Fatal("expected no match for address outside loaded ranges")
	}
}

func TestHaversineNearest(t *testing.T) {
	from := LatLong{Lat: 40.0, Long: -75.0}
	points := []LatLong{
		{Lat: 51.5, Long: -0.1},   // London
		{Lat: 40.7, Long: -74.0},  // NYC, close
		{Lat: -33.9, Long: 151.2}, // Sydney
	}
	if got := Nearest(from, points); got != 1 {
		t.Fatalf("Nearest = %d, want 1 (NYC)", got)
	}
}
