// Package protocol implements the wire formats used by Git's Smart HTTP v1
// transport: pkt-line framing, capability negotiation, packfile parsing and
// delta resolution, ref-name validation, and ref-update command parsing.
//
// For more details about Git's packet format, see:
//   - https://git-scm.com/docs/gitprotocol-common
//   - https://git-scm.com/docs/gitprotocol-pack
//   - https://git-scm.com/docs/pack-format
package protocol

import (
	"errors"
	"fmt"
	"strconv"
)

// A non-binary line SHOULD be terminated by an LF, which if present MUST be
// included in the total length. The maximum length of a pkt-line's data
// component is 65516 bytes; the 4-byte hex length prefix brings the total to
// 65520 bytes.
const (
	// PktLineLengthSize is the size of the length field in a pkt-line (4 ASCII hex digits).
	PktLineLengthSize = 4

	// MaxPktLineDataSize is the maximum size of the data field in a pkt-line.
	MaxPktLineDataSize = 65516

	// MaxPktLineSize is the maximum total size of a pkt-line, length field included.
	MaxPktLineSize = MaxPktLineDataSize + PktLineLengthSize
)

// Reserved length values. FLUSH ("0000") ends a section of the protocol.
// DELIM ("0001") separates sections within a single message (protocol v2
// only uses it, but the codec must still recognise and emit it, per the
// framing contract in the spec).
const (
	FlushLine = "0000"
	DelimLine = "0001"
)

var (
	// ErrPayloadTooLarge is returned when attempting to encode a payload larger than MaxPktLineDataSize.
	ErrPayloadTooLarge = errors.New("pkt-line: payload too large")

	// ErrMalformedPktLine is returned when a pkt-line's length header is not valid hex,
	// or the declared length exceeds MaxPktLineSize.
	ErrMalformedPktLine = errors.New("pkt-line: malformed length header")
)

// PacketKind classifies a decoded pkt-line.
type PacketKind int

const (
	// KindData is a regular pkt-line carrying a payload.
	KindData PacketKind = iota
	// KindFlush is the "0000" sentinel.
	KindFlush
	// KindDelim is the "0001" sentinel.
	KindDelim
	// KindIncomplete means the buffer did not contain a full pkt-line yet.
	KindIncomplete
)

func (k PacketKind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindFlush:
		return "flush"
	case KindDelim:
		return "delim"
	case KindIncomplete:
		return "incomplete"
	default:
		return fmt.Sprintf("PacketKind(%d)", int(k))
	}
}

// Packet is the result of decoding a single pkt-line.
type Packet struct {
	Kind PacketKind
	// Payload holds the data for KindData packets. It is nil for all other kinds.
	Payload []byte
	// BytesConsumed is the number of input bytes this packet consumed, including
	// the 4-byte length header. It is 0 for KindIncomplete.
	BytesConsumed int
}

// Encode prepends a 4-character lowercase hex length (including the 4 prefix
// bytes themselves) to payload. Binary payloads are permitted; the codec
// never interprets the content.
func Encode(payload []byte) ([]byte, error) {
	if len(payload) > MaxPktLineDataSize {
		return nil, ErrPayloadTooLarge
	}

	out := make([]byte, len(payload)+PktLineLengthSize)
	copy(out, fmt.Sprintf("%04x", len(payload)+PktLineLengthSize))
	copy(out[PktLineLengthSize:], payload)
	return out, nil
}

// EncodeFlush returns the wire bytes for a flush-pkt.
func EncodeFlush() []byte {
	return []byte(FlushLine)
}

// EncodeDelim returns the wire bytes for a delim-pkt.
func EncodeDelim() []byte {
	return []byte(DelimLine)
}

// Decode decodes a single pkt-line from the start of buf.
//
// If buf does not yet contain a complete pkt-line, Decode returns a packet
// with Kind == KindIncomplete and BytesConsumed == 0; callers should treat
// this as "read more bytes and retry", not as an error.
func Decode(buf []byte) (Packet, error) {
	if len(buf) < PktLineLengthSize {
		return Packet{Kind: KindIncomplete}, nil
	}

	length, err := strconv.ParseUint(string(buf[:PktLineLengthSize]), 16, 32)
	if err != nil {
		return Packet{}, fmt.Errorf("%w: %s", ErrMalformedPktLine, err)
	}
	if length > MaxPktLineSize {
		return Packet{}, fmt.Errorf("%w: length %d exceeds maximum %d", ErrMalformedPktLine, length, MaxPktLineSize)
	}

	switch length {
	case 0:
		return Packet{Kind: KindFlush, BytesConsumed: PktLineLengthSize}, nil
	case 1:
		return Packet{Kind: KindDelim, BytesConsumed: PktLineLengthSize}, nil
	case 2, 3:
		// Reserved lengths with no payload; the spec only names FLUSH (0) and
		// DELIM (1) as reserved sentinels, so treat others under 4 as malformed.
		return Packet{}, fmt.Errorf("%w: reserved length %d", ErrMalformedPktLine, length)
	}

	if uint64(len(buf)) < length {
		return Packet{Kind: KindIncomplete}, nil
	}

	payload := buf[PktLineLengthSize:length]
	out := make([]byte, len(payload))
	copy(out, payload)

	return Packet{
		Kind:          KindData,
		Payload:       out,
		BytesConsumed: int(length),
	}, nil
}

// DecodeStream consumes as many complete pkt-lines as it can find in buf,
// returning them in order along with the unconsumed suffix (which may be an
// empty slice, or a partial pkt-line awaiting more bytes). Stream decoding
// never blocks and never errors on a partial trailing packet; it only errors
// on a malformed length header.
//
// For every byte sequence s whose length headers use lowercase hex digits,
// concatenating the raw wire bytes of the returned packets with the returned
// remainder reproduces s exactly (raw bytes re-encode headers in lowercase).
func DecodeStream(buf []byte) (packets []Packet, remainder []byte, err error) {
	offset := 0
	for offset < len(buf) {
		pkt, err := Decode(buf[offset:])
		if err != nil {
			return packets, buf[offset:], err
		}
		if pkt.Kind == KindIncomplete {
			break
		}
		packets = append(packets, pkt)
		offset += pkt.BytesConsumed
	}
	return packets, buf[offset:], nil
}

// RawBytes reconstructs the wire bytes for a decoded packet. It is the
// inverse of Decode/DecodeStream and is primarily useful for tests asserting
// round-trip and stream-completeness properties.
func (p Packet) RawBytes() []byte {
	switch p.Kind {
	case KindFlush:
		return []byte(FlushLine)
	case KindDelim:
		return []byte(DelimLine)
	case KindData:
		encoded, _ := Encode(p.Payload)
		return encoded
	default:
		return nil
	}
}
