package relay

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// readVarInt decodes a Minecraft-protocol VarInt, grounded on
// original_source/src/util/mc_packet.rs's read_var_int.
func readVarInt(r io.ByteReader) (int32, error) {
	var value int32
	var position uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		value |= int32(b&0x7f) << position
		if b&0x80 == 0 {
			break
		}
		position += 7
		if position >= 32 {
			return 0, fmt.Errorf("relay: VarInt is too big")
		}
	}
	return value, nil
}

// writeVarInt appends the VarInt encoding of value to buf.
func writeVarInt(buf *bytes.Buffer, value int32) {
	for {
		if value & ^int32(0x7f) == 0 {
			buf.WriteByte(byte(value))
			return
		}
		buf.WriteByte(byte(value&0x7f | 0x80))
		value = int32(uint32(value) >> 7)
	}
}

// readMCString decodes a VarInt-length-prefixed UTF-8 string, no
// longer than maxLength bytes.
func readMCString(r *bytes.Reader, maxLength int) (string, error) {
	length, err := readVarInt(r)
	if err != nil {
		return "", err
	}
	if length < 0 || int(length) > maxLength {
		return "", fmt.Errorf("relay: string exceeds max length (%d bytes)", maxLength)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// writeMCString appends a VarInt-length-prefixed string to buf.
func writeMCString(buf *bytes.Buffer, s string, maxLength int) error {
	if len(s) > maxLength {
		return fmt.Errorf("relay: string exceeds max length (%d bytes)", maxLength)
	}
	writeVarInt(buf, int32(len(s)))
	buf.WriteString(s)
	return nil
}

func readU16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

// writeFramedPacket writes a VarInt length prefix followed by data.
func writeFramedPacket(w io.Writer, data []byte) error {
	var buf bytes.Buffer
	writeVarInt(&buf, int32(len(data)))
	buf.Write(data)
	_, err := w.Write(buf.Bytes())
	return err
}

// writeDisconnect sends a game-protocol disconnect for the given
// handshake nextState, matching the status (1) or login (2) flow's
// expected packet shape. Grounded on
// original_source/src/modules/proxy_server.rs's disconnect().
func writeDisconnect(w io.Writer, nextState int32, message string) error {
	jsonMessage := fmt.Sprintf(`{"text":"%s","color":"red"}`, message)

	var packetData bytes.Buffer
	packetData.WriteByte(0x00)
	switch nextState {
	case 1:
		if err := writeMCString(&packetData, fmt.Sprintf(`{"description":%s}`, jsonMessage), 32767); err != nil {
			return err
		}
	case 2:
		if err := writeMCString(&packetData, jsonMessage, 262144); err != nil {
			return err
		}
	}
	if err := writeFramedPacket(w, packetData.Bytes()); err != nil {
		return err
	}

	if nextState == 1 {
		pong := append([]byte{0x01}, make([]byte, 8)...)
		return writeFramedPacket(w, pong)
	}
	return nil
}
