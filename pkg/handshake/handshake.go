// Package handshake implements the control-plane handshake state
// machine of spec.md §4.3: Greeted -> AuthChallenged -> Verified ->
// Live | Rejected. Grounded on spec.md §4.3 directly (the retrieval
// pack's original_source/src/minecraft_crypt.rs supplies the
// RSA-keypair/SHA-1-digest shape reused below) and on the donor's
// RSA/x509 handling idiom in pkg/origin for key marshalling style.
package handshake

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"math/big"
	"net/netip"

	"github.com/google/uuid"
	"github.com/worldhost/server/pkg/proto"
	"github.com/worldhost/server/pkg/wire"
	"github.com/worldhost/server/pkg/wtypes"
)

// rsaBits is the key size mandated by spec.md §4.3.3.a.
const rsaBits = 1024

// greeting is the constant 0xFAFA0000 the server sends before its
// public key, per spec.md §4.3.3.a.
const greeting uint32 = 0xFAFA0000

// ErrLivenessPing is returned by Negotiate when the peer closed the
// connection before sending any bytes at all: spec.md §4.3.1 treats
// this as a liveness check, not an error.
var ErrLivenessPing = errors.New("handshake: connection closed before sending any data")

// KeyPair holds the server's RSA-1024 key pair, generated once at
// startup and reused for every connection's challenge/response.
type KeyPair struct {
	private *rsa.PrivateKey
	derSPKI []byte
}

// NewKeyPair generates a fresh 1024-bit RSA key pair.
func NewKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	return &KeyPair{private: priv, derSPKI: der}, nil
}

// Verifier resolves a (requested user id, username, serverId) triple
// to a profile-verification result, per spec.md §4.4. Implemented by
// pkg/profile.
type Verifier interface {
	Verify(requested wtypes.UserId, username, serverId string) VerifyResult
}

// VerifyResult is the outcome of profile verification.
type VerifyResult struct {
	UUID    wtypes.UserId // the UUID to actually use for this connection
	Fatal   bool          // connection must be rejected
	Message string        // warning (non-fatal) or error (fatal) text
}

// Outcome is the result of a successful (non-rejected) handshake.
type Outcome struct {
	UserID      wtypes.UserId
	ConnID      wtypes.ConnectionId
	Username    string
	Protocol    uint32
	Security    wtypes.SecurityLevel
	Warning     string // non-fatal warning to send once Live, if non-empty
	ReadCipher  *wire.Cipher
	WriteCipher *wire.Cipher
}

// RejectedError is returned when the handshake concludes with a
// critical Error frame; the connection must be closed after it is
// sent.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string { return "handshake: rejected: " + e.Message }

// Negotiate runs the full handshake state machine over conn for one
// freshly-accepted connection, per spec.md §4.3. verifier may be nil
// only for pre-NEW_AUTH_PROTOCOL (legacy) connections.
func Negotiate(conn *wire.Conn, remoteIP netip.Addr, keys *KeyPair, verifier Verifier) (*Outcome, error) {
	if !conn.HasData() {
		return nil, ErrLivenessPing
	}

	version, err := conn.ReadUint32()
	if err != nil {
		return nil, err
	}
	if !proto.Supported(version) {
		sendCriticalError(conn, "Unsupported protocol version")
		return nil, &RejectedError{Message: "Unsupported protocol version"}
	}

	if version < proto.NewAuthProtocol {
		return legacyHandshake(conn, version)
	}
	return modernHandshake(conn, remoteIP, version, keys, verifier)
}

func legacyHandshake(conn *wire.Conn, version uint32) (*Outcome, error) {
	var idBuf [16]byte
	if err := conn.ReadRaw(idBuf[:]); err != nil {
		return nil, err
	}
	userID := wtypes.UserId(uuid.UUID(idBuf))
	cidVal, err := conn.ReadUint32()
	if err != nil {
		return nil, err
	}
	cidHigh, err := conn.ReadUint32()
	if err != nil {
		return nil, err
	}
	cid := wtypes.ConnectionId(uint64(cidVal)<<32 | uint64(cidHigh))
	return &Outcome{
		UserID:   userID,
		ConnID:   cid,
		Protocol: version,
		Security: wtypes.Insecure,
	}, nil
}

func modernHandshake(conn *wire.Conn, remoteIP netip.Addr, version uint32, keys *KeyPair, verifier Verifier) (*Outcome, error) {
	if err := conn.WriteRaw(u32Bytes(greeting)); err != nil {
		return nil, err
	}
	if err := writeU16Prefixed(conn, keys.derSPKI); err != nil {
		return nil, err
	}
	challenge := make([]byte, 16)
	if _, err := rand.Read(challenge); err != nil {
		return nil, err
	}
	if err := writeU16Prefixed(conn, challenge); err != nil {
		return nil, err
	}

	encryptedChallenge, err := readU16Prefixed(conn)
	if err != nil {
		return nil, err
	}
	encryptedSecret, err := readU16Prefixed(conn)
	if err != nil {
		return nil, err
	}
	var userIDBuf [16]byte
	if err := conn.ReadRaw(userIDBuf[:]); err != nil {
		return nil, err
	}
	requestedUserID := wtypes.UserId(uuid.UUID(userIDBuf))
	username, err := readString(conn)
	if err != nil {
		return nil, err
	}
	cidBytes, err := conn.ReadUint32()
	if err != nil {
		return nil, err
	}
	cidBytes2, err := conn.ReadUint32()
	if err != nil {
		return nil, err
	}
	cid := wtypes.ConnectionId(uint64(cidBytes)<<32 | uint64(cidBytes2))

	decryptedChallenge, err := rsa.DecryptPKCS1v15(rand.Reader, keys.private, encryptedChallenge)
	if err != nil || !bytesEqual(decryptedChallenge, challenge) {
		sendCriticalError(conn, "Challenge failed")
		return nil, &RejectedError{Message: "Challenge failed"}
	}
	secret, err := rsa.DecryptPKCS1v15(rand.Reader, keys.private, encryptedSecret)
	if err != nil {
		sendCriticalError(conn, "Challenge failed")
		return nil, &RejectedError{Message: "Challenge failed"}
	}

	serverId := ServerID(secret, keys.derSPKI)

	var verified VerifyResult
	if verifier != nil {
		verified = verifier.Verify(requestedUserID, username, serverId)
	} else {
		verified = VerifyResult{UUID: requestedUserID}
	}
	if verified.Fatal {
		sendCriticalError(conn, verified.Message)
		return nil, &RejectedError{Message: verified.Message}
	}

	security := wtypes.DeriveSecurityLevel(verified.UUID, true)

	var rc, wc *wire.Cipher
	if version >= proto.EncryptedProtocol {
		rc, err = wire.NewCipher(secret, true)
		if err != nil {
			return nil, err
		}
		wc, err = wire.NewCipher(secret, false)
		if err != nil {
			return nil, err
		}
		conn.SetReadCipher(rc)
		conn.SetWriteCipher(wc)
	}

	return &Outcome{
		UserID:      verified.UUID,
		ConnID:      cid,
		Username:    username,
		Protocol:    version,
		Security:    security,
		Warning:     verified.Message,
		ReadCipher:  rc,
		WriteCipher: wc,
	}, nil
}

// ServerID computes the Mojang-style serverId: the SHA-1 digest of
// ("" || secret || DER(publicKey)), interpreted as a signed
// big-endian big integer and rendered as lowercase hex with no
// leading zeros (spec.md §4.3.3.d).
func ServerID(secret, publicKeyDER []byte) string {
	h := sha1.New()
	h.Write(secret)
	h.Write(publicKeyDER)
	digest := h.Sum(nil)

	n := new(big.Int).SetBytes(digest)
	if digest[0]&0x80 != 0 {
		// negative: subtract 2^(8*len(digest)) to get the two's
		// complement signed interpretation Java's BigInteger uses.
		mod := new(big.Int).Lsh(big.NewInt(1), uint(len(digest)*8))
		n.Sub(n, mod)
	}
	return n.Text(16)
}

func sendCriticalError(conn *wire.Conn, message string) {
	payload := proto.EncodeS2C(proto.S2CError{Message: message, Critical: true}, proto.Current)
	_ = conn.WriteFrame(proto.S2CError{}.TypeID(), payload)
}

func writeU16Prefixed(conn *wire.Conn, b []byte) error {
	if err := conn.WriteRaw(u16Bytes(uint16(len(b)))); err != nil {
		return err
	}
	return conn.WriteRaw(b)
}

func readU16Prefixed(conn *wire.Conn) ([]byte, error) {
	lenBuf, err := readU16(conn)
	if err != nil {
		return nil, err
	}
	b := make([]byte, lenBuf)
	if err := conn.ReadRaw(b); err != nil {
		return nil, err
	}
	return b, nil
}

func readU16(conn *wire.Conn) (uint16, error) {
	var b [2]byte
	if err := conn.ReadRaw(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readString(conn *wire.Conn) (string, error) {
	n, err := readU16(conn)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if err := conn.ReadRaw(b); err != nil {
		return "", err
	}
	return string(b), nil
}

func u32Bytes(v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return b[:]
}

func u16Bytes(v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return b[:]
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
