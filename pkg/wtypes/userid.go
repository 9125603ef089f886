package wtypes

import (
	"crypto/md5"

	"github.com/google/uuid"
)

// UserId is a 128-bit identifier with a 4-bit version field, same
// layout as a standard UUID. Version 4 means "online" (a real
// Mojang-style account); any other version means "offline", whose
// canonical identity is derived deterministically from a username.
type UserId uuid.UUID

// Nil and Max are the two reserved identities that profile
// verification must reject outright (spec.md §4.4).
var (
	Nil UserId = UserId(uuid.Nil)
	Max UserId = UserId{
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	}
)

// IsOnline reports whether u is a version-4 (real account) identity.
func (u UserId) IsOnline() bool {
	return (u[6] & 0xf0) == 0x40
}

// Reserved reports whether u is the nil or max UUID, both of which
// profile verification rejects unconditionally.
func (u UserId) Reserved() bool {
	return u == Nil || u == Max
}

func (u UserId) String() string {
	return uuid.UUID(u).String()
}

// ParseUserId parses the canonical hyphenated UUID string form.
func ParseUserId(s string) (UserId, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return UserId{}, err
	}
	return UserId(id), nil
}

// OfflineUserId derives the canonical offline identity for a
// username using the historical "name-UUID-from-bytes" algorithm:
// MD5 of the ASCII string "OfflinePlayer:<name>", with the version
// nibble forced to 3 and the variant bits forced to the RFC-4122
// form. This MUST match the reference Java implementation bit for
// bit (spec.md invariant P6).
func OfflineUserId(name string) UserId {
	sum := md5.Sum([]byte("OfflinePlayer:" + name))
	sum[6] = (sum[6] & 0x0f) | 0x30 // version 3
	sum[8] = (sum[8] & 0x3f) | 0x80 // RFC-4122 variant
	return UserId(sum)
}

// SecurityLevel classifies the trust level of a session.
type SecurityLevel uint8

const (
	Insecure SecurityLevel = 0
	Offline  SecurityLevel = 1
	Secure   SecurityLevel = 2
)

func (s SecurityLevel) String() string {
	switch s {
	case Insecure:
		return "Insecure"
	case Offline:
		return "Offline"
	case Secure:
		return "Secure"
	default:
		return "SecurityLevel(?)"
	}
}

// DeriveSecurityLevel implements spec.md §3's SecurityLevel
// derivation from (user id, negotiated-authenticated?).
func DeriveSecurityLevel(id UserId, authenticated bool) SecurityLevel {
	if !authenticated {
		return Insecure
	}
	if id.IsOnline() {
		return Secure
	}
	return Offline
}
