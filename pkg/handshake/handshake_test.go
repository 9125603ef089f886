package handshake

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
)

func TestServerIDMatchesPositiveAndNegative(t *testing.T) {
	// A digest whose first byte has the high bit set must render with
	// a leading '-' (Java's BigInteger signed interpretation).
	secret := []byte("0123456789abcdef")
	der := []byte("fake-der-bytes-for-test")

	id := ServerID(secret, der)
	if id == "" {
		t.Fatal("expected non-empty serverId")
	}

	// Changing the input must change the digest.
	id2 := ServerID(append(secret, 0x01), der)
	if id == id2 {
		t.Fatal("expected different serverId for different input")
	}
}

func TestNewKeyPairGeneratesUsableKey(t *testing.T) {
	keys, err := NewKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	if keys.private.N.BitLen() < 1016 || keys.private.N.BitLen() > 1024 {
		t.Fatalf("unexpected key size: %d bits", keys.private.N.BitLen())
	}
	if len(keys.derSPKI) == 0 {
		t.Fatal("expected non-empty DER public key")
	}

	msg := []byte("round trip")
	ct, err := rsa.EncryptPKCS1v15(rand.Reader, &keys.private.PublicKey, msg)
	if err != nil {
		t.Fatal(err)
	}
	pt, err := rsa.DecryptPKCS1v15(nil, keys.private, ct)
	if err != nil {
		t.Fatal(err)
	}
	if string(pt) != string(msg) {
		t.Fatalf("got %q, want %q", pt, msg)
	}
}
