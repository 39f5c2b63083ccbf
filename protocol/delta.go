package protocol

import "fmt"

// ApplyDelta reconstructs an object's content by replaying a delta
// instruction stream against its base object's content.
//
// The instruction stream begins with two size varints (source length, target
// length), followed by a sequence of copy and insert instructions:
//
//	copy:   1xxxxxxx [offset1] [offset2] [offset3] [offset4] [size1] [size2] [size3]
//	insert: 0xxxxxxx <xxxxxxx bytes of literal data>
//
// A leading byte of 0x00 is reserved and is always an error.
func ApplyDelta(base, delta []byte) ([]byte, error) {
	sourceSize, rest := deltaHeaderSize(delta)
	if uint(len(base)) != sourceSize {
		return nil, fmt.Errorf("%w: source size %d does not match base length %d", ErrInvalidDelta, sourceSize, len(base))
	}
	targetSize, rest := deltaHeaderSize(rest)

	out := make([]byte, 0, targetSize)
	for len(rest) > 0 {
		cmd := rest[0]
		rest = rest[1:]

		switch {
		case cmd&0x80 != 0:
			var offset, size uint32
			if cmd&0x01 != 0 {
				offset |= uint32(rest[0])
				rest = rest[1:]
			}
			if cmd&0x02 != 0 {
				offset |= uint32(rest[0]) << 8
				rest = rest[1:]
			}
			if cmd&0x04 != 0 {
				offset |= uint32(rest[0]) << 16
				rest = rest[1:]
			}
			if cmd&0x08 != 0 {
				offset |= uint32(rest[0]) << 24
				rest = rest[1:]
			}
			if cmd&0x10 != 0 {
				size |= uint32(rest[0])
				rest = rest[1:]
			}
			if cmd&0x20 != 0 {
				size |= uint32(rest[0]) << 8
				rest = rest[1:]
			}
			if cmd&0x40 != 0 {
				size |= uint32(rest[0]) << 16
				rest = rest[1:]
			}
			if size == 0 {
				size = 0x10000
			}
			if uint64(offset)+uint64(size) > uint64(len(base)) {
				return nil, fmt.Errorf("%w: copy instruction [%d,%d) out of range for base length %d", ErrInvalidDelta, offset, offset+size, len(base))
			}
			out = append(out, base[offset:offset+size]...)

		case cmd != 0:
			n := int(cmd)
			if len(rest) < n {
				return nil, fmt.Errorf("%w: truncated insert payload", ErrInvalidDelta)
			}
			out = append(out, rest[:n]...)
			rest = rest[n:]

		default:
			return nil, fmt.Errorf("%w: reserved opcode 0x00", ErrInvalidDelta)
		}
	}

	if uint(len(out)) != targetSize {
		return nil, fmt.Errorf("%w: reconstructed length %d does not match target size %d", ErrInvalidDelta, len(out), targetSize)
	}
	return out, nil
}

// deltaHeaderSize decodes a delta size varint (little-endian 7-bit groups,
// continuation signalled by the high bit) from the start of b, returning the
// decoded size and the unconsumed remainder.
func deltaHeaderSize(b []byte) (uint, []byte) {
	var size, shift uint
	var i int
	for i < len(b) {
		c := b[i]
		size |= (uint(c) & 0x7f) << shift
		i++
		shift += 7
		if c&0x80 == 0 {
			break
		}
	}
	return size, b[i:]
}
