package connid

import (
	"math/rand"
	"testing"

	"github.com/worldhost/server/pkg/wtypes"
)

func TestParseRenderRoundTrip(t *testing.T) {
	// P1: rendering a ConnectionId then parsing yields the same id.
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		want := wtypes.ConnectionId(rng.Uint64() % uint64(wtypes.MaxConnectionId))
		s := Render(want)
		got, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if got != want {
			t.Fatalf("round trip mismatch: want %d got %d (via %q)", want, got, s)
		}
	}
}

func TestParseShortFormRoundTrip(t *testing.T) {
	// P1 (9-digit form) for ids small enough to be representable,
	// i.e. < 36^9.
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 1000; i++ {
		want := rng.Uint64() % 101559956668416 // 36^9
		s := padShort(want)
		got, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if uint64(got) != want {
			t.Fatalf("round trip mismatch: want %d got %d (via %q)", want, got, s)
		}
	}
}

func padShort(v uint64) string {
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	buf := make([]byte, 9)
	for i := 8; i >= 0; i-- {
		buf[i] = digits[v%36]
		v /= 36
	}
	return string(buf)
}

func TestParseZeroAndMax(t *testing.T) {
	zero, err := Parse("000000000")
	if err != nil || zero != 0 {
		t.Fatalf("Parse(000000000) = %v, %v; want 0, nil", zero, err)
	}
	max, err := Parse("zzzzzzzzz")
	if err != nil {
		t.Fatalf("Parse(zzzzzzzzz): %v", err)
	}
	if uint64(max) != 101559956668415 { // 36^9 - 1
		t.Fatalf("Parse(zzzzzzzzz) = %d, want 36^9-1", max)
	}
}

func TestParseBadShort(t *testing.T) {
	_, err := Parse("foo")
	if err == nil {
		t.Fatal("expected error")
	}
	want := "Expected nine digit short connection ID, found 3 digits."
	if err.Error() != want {
		t.Fatalf("err = %q, want %q", err.Error(), want)
	}
}

func TestParseFirstDictionaryWord(t *testing.T) {
	w0, w1, w2 := wordsByIndex[0], wordsByIndex[0], wordsByIndex[0]
	id, err := Parse(w0 + "-" + w1 + "-" + w2)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if id != 0 {
		t.Fatalf("id = %d, want 0", id)
	}
	if Render(id) != w0+"-"+w1+"-"+w2 {
		t.Fatalf("Render(0) = %q", Render(id))
	}
}
