// Package proto implements the client<->server message codecs and
// the protocol-version gating table from spec.md §4.2 and §6.
// Grounded on original_source/src/protocol/{c2s_message,s2c_message,
// join_type,protocol_versions}.rs for field order and decode
// behaviour, cross-checked against spec.md §6's wire table.
package proto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"

	"github.com/google/uuid"
	"github.com/worldhost/server/pkg/wtypes"
)

// ErrShortRead is returned by Reader methods when the buffer is
// exhausted before a complete value could be decoded.
var ErrShortRead = errors.New("proto: unexpected end of message")

// Reader decodes the primitive wire types from spec.md §6's
// conventions section out of an in-memory payload.
type Reader struct {
	b []byte
	i int
}

func NewReader(b []byte) *Reader { return &Reader{b: b} }

func (r *Reader) need(n int) error {
	if len(r.b)-r.i < n {
		return ErrShortRead
	}
	return nil
}

func (r *Reader) U8() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.b[r.i]
	r.i++
	return v, nil
}

func (r *Reader) U16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.b[r.i:])
	r.i += 2
	return v, nil
}

func (r *Reader) U32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.b[r.i:])
	r.i += 4
	return v, nil
}

func (r *Reader) U64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.b[r.i:])
	r.i += 8
	return v, nil
}

func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := r.b[r.i : r.i+n]
	r.i += n
	return v, nil
}

// Remainder returns every byte not yet consumed.
func (r *Reader) Remainder() []byte {
	v := r.b[r.i:]
	r.i = len(r.b)
	return v
}

// String decodes a u16 byte-length + UTF-8 string.
func (r *Reader) String() (string, error) {
	n, err := r.U16()
	if err != nil {
		return "", err
	}
	b, err := r.Bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UUID decodes a 16-byte UUID into a wtypes.UserId.
func (r *Reader) UUID() (wtypes.UserId, error) {
	b, err := r.Bytes(16)
	if err != nil {
		return wtypes.UserId{}, err
	}
	var u uuid.UUID
	copy(u[:], b)
	return wtypes.UserId(u), nil
}

// ConnectionId decodes a u64 connection id.
func (r *Reader) ConnectionId() (wtypes.ConnectionId, error) {
	v, err := r.U64()
	if err != nil {
		return 0, err
	}
	return wtypes.ConnectionId(v), nil
}

// Security decodes a 1-byte security level.
func (r *Reader) Security() (wtypes.SecurityLevel, error) {
	v, err := r.U8()
	if err != nil {
		return 0, err
	}
	return wtypes.SecurityLevel(v), nil
}

// IPAddr decodes a u8 length (4 or 16) + octets IP address.
func (r *Reader) IPAddr() (netip.Addr, error) {
	n, err := r.U8()
	if err != nil {
		return netip.Addr{}, err
	}
	b, err := r.Bytes(int(n))
	if err != nil {
		return netip.Addr{}, err
	}
	switch n {
	case 4:
		return netip.AddrFrom4([4]byte(b)), nil
	case 16:
		return netip.AddrFrom16([16]byte(b)), nil
	default:
		return netip.Addr{}, fmt.Errorf("proto: invalid ip-addr length %d", n)
	}
}

// UUIDSlice decodes a u32 count followed by that many UUIDs.
func (r *Reader) UUIDSlice() ([]wtypes.UserId, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	out := make([]wtypes.UserId, 0, n)
	for i := uint32(0); i < n; i++ {
		u, err := r.UUID()
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// LengthPrefixedBytes decodes a u32 length + that many raw bytes.
func (r *Reader) LengthPrefixedBytes() ([]byte, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	return r.Bytes(int(n))
}

// Writer encodes the primitive wire types into a growable buffer.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) U8(v byte) { w.buf = append(w.buf, v) }

func (w *Writer) U16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) U32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) U64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

func (w *Writer) String(s string) {
	w.U16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *Writer) UUID(u wtypes.UserId) {
	w.buf = append(w.buf, u[:]...)
}

func (w *Writer) ConnectionId(c wtypes.ConnectionId) {
	w.U64(uint64(c))
}

func (w *Writer) Security(s wtypes.SecurityLevel) {
	w.U8(byte(s))
}

func (w *Writer) IPAddr(addr netip.Addr) {
	addr = addr.Unmap()
	if addr.Is4() {
		w.U8(4)
		b := addr.As4()
		w.Raw(b[:])
	} else {
		w.U8(16)
		b := addr.As16()
		w.Raw(b[:])
	}
}

func (w *Writer) UUIDSlice(ids []wtypes.UserId) {
	w.U32(uint32(len(ids)))
	for _, id := range ids {
		w.UUID(id)
	}
}

func (w *Writer) LengthPrefixedBytes(b []byte) {
	w.U32(uint32(len(b)))
	w.Raw(b)
}
