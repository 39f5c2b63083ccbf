package protocol

import (
	"bytes"
	"crypto/sha1"
	"fmt"

	"github.com/klauspost/compress/zlib"

	"githost.dev/githost/protocol/object"
)

// PackObject is the minimal shape WritePackfile needs for each object it
// writes: its type and its raw, uncompressed content. Deltification is not
// performed on write; every object is stored whole. This trades pack size
// for the considerably simpler, more auditable encoder - acceptable for a
// server that is not competing on wire bytes with upstream git.
type PackObject struct {
	Type object.Type
	Data []byte
}

// WritePackfile encodes objects as a full (non-thin, non-deltified) v2
// packfile: the "PACK" header, each object's variable-length type+size
// header followed by its zlib-compressed content, and a trailing SHA-1
// checksum over everything written so far.
func WritePackfile(objects []PackObject) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(packSignature)
	writeUint32BE(&buf, 2)
	writeUint32BE(&buf, uint32(len(objects)))

	for _, obj := range objects {
		writeObjectHeader(&buf, obj.Type, uint64(len(obj.Data)))
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(obj.Data); err != nil {
			return nil, fmt.Errorf("protocol: compress object: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("protocol: flush compressed object: %w", err)
		}
	}

	sum := sha1.Sum(buf.Bytes())
	buf.Write(sum[:])
	return buf.Bytes(), nil
}

func writeUint32BE(buf *bytes.Buffer, v uint32) {
	buf.WriteByte(byte(v >> 24))
	buf.WriteByte(byte(v >> 16))
	buf.WriteByte(byte(v >> 8))
	buf.WriteByte(byte(v))
}

// writeObjectHeader encodes the type+size word using the same variable-length
// scheme readObjectHeader decodes: 3 type bits and 4 size bits in the first
// byte, 7 more size bits per continuation byte, least-significant-group first.
func writeObjectHeader(buf *bytes.Buffer, typ object.Type, size uint64) {
	first := byte(typ&0x7) << 4
	first |= byte(size & 0x0f)
	size >>= 4
	if size > 0 {
		first |= 0x80
	}
	buf.WriteByte(first)
	for size > 0 {
		b := byte(size & 0x7f)
		size >>= 7
		if size > 0 {
			b |= 0x80
		}
		buf.WriteByte(b)
	}
}
