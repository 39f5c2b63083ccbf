package protocol

import (
	"bytes"
	"crypto"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"githost.dev/githost/protocol/hash"
	"githost.dev/githost/protocol/object"
)

// A Packfile is the wire format exchanged during upload-pack and
// receive-pack. Its layout is defined here: https://git-scm.com/docs/pack-format
//
//	4-byte signature: "PACK"
//	4-byte version (big-endian, 2 or 3)
//	4-byte object count (big-endian)
//	<count> object entries
//	20-byte SHA-1 checksum of everything preceding it
//
// Each object entry starts with a variable-length type-and-size header (3-bit
// type, size in 7-bit big-endian-ordered little-endian groups), optionally
// followed by a delta base reference (a negative relative offset for
// OBJ_OFS_DELTA, a 20-byte object id for OBJ_REF_DELTA), followed by a zlib
// stream holding the object's content (for non-delta objects) or its delta
// instruction stream (for delta objects).
type Packfile struct {
	Version uint32
	Objects []PackedObject
	Checksum [20]byte
}

// PackedObject is one decoded-but-not-yet-delta-resolved entry from a
// packfile.
type PackedObject struct {
	Type object.Type

	// Offset is this entry's header position within the packfile, including
	// the 12-byte PACK header. Other entries' BaseOffset fields refer to it.
	Offset int

	// BaseOffset is set when Type == object.TypeOfsDelta: the absolute
	// offset of the base object within the same pack.
	BaseOffset int

	// BaseSha is set when Type == object.TypeRefDelta: the object id of the
	// base, which may lie outside this pack (a thin pack).
	BaseSha string

	// Data holds the inflated object content for non-delta entries, or the
	// inflated delta instruction stream for delta entries.
	Data []byte
}

const (
	packSignature    = "PACK"
	packHeaderSize   = 12
	packChecksumSize = sha1.Size
)

// ParsePackfile performs the first pass over a packfile: it walks every
// entry, inflates its zlib payload, and records delta base references
// without attempting to resolve them. Delta resolution is a separate pass
// (ResolveDeltas) so that thin-pack bases living outside the pack can be
// supplied by the caller.
func ParsePackfile(payload []byte) (*Packfile, error) {
	if len(payload) < packHeaderSize+packChecksumSize {
		return nil, NewPackParseError(0, fmt.Errorf("%w: payload shorter than minimum pack size", ErrBadPackMagic))
	}
	if string(payload[:4]) != packSignature {
		return nil, NewPackParseError(0, ErrBadPackMagic)
	}

	version := binary.BigEndian.Uint32(payload[4:8])
	if version != 2 && version != 3 {
		return nil, NewPackParseError(4, ErrUnsupportedPackVersion)
	}
	count := binary.BigEndian.Uint32(payload[8:12])

	body := payload[:len(payload)-packChecksumSize]
	trailer := payload[len(payload)-packChecksumSize:]

	sum := sha1.Sum(body)
	if !bytes.Equal(sum[:], trailer) {
		return nil, NewPackParseError(len(body), ErrChecksumMismatch)
	}

	reader := bytes.NewReader(payload[packHeaderSize : len(payload)-packChecksumSize])
	bodyLen := reader.Len()

	objects := make([]PackedObject, 0, count)
	for i := uint32(0); i < count; i++ {
		offset := packHeaderSize + (bodyLen - reader.Len())

		typ, size, err := readObjectHeader(reader)
		if err != nil {
			return nil, NewPackParseError(offset, fmt.Errorf("%w: %s", ErrCorruptObject, err))
		}

		obj := PackedObject{Type: typ, Offset: offset}

		switch typ {
		case object.TypeCommit, object.TypeTree, object.TypeBlob, object.TypeTag:
			// no base reference to read
		case object.TypeOfsDelta:
			relOffset, err := readOfsDeltaOffset(reader)
			if err != nil {
				return nil, NewPackParseError(offset, fmt.Errorf("%w: %s", ErrCorruptObject, err))
			}
			obj.BaseOffset = offset - int(relOffset)
			if obj.BaseOffset < packHeaderSize || obj.BaseOffset >= offset {
				return nil, NewPackParseError(offset, fmt.Errorf("%w: ofs-delta base offset %d out of range", ErrCorruptObject, obj.BaseOffset))
			}
		case object.TypeRefDelta:
			var sha [20]byte
			if _, err := io.ReadFull(reader, sha[:]); err != nil {
				return nil, NewPackParseError(offset, fmt.Errorf("%w: %s", ErrCorruptObject, err))
			}
			obj.BaseSha = hex.EncodeToString(sha[:])
		default:
			return nil, NewPackParseError(offset, fmt.Errorf("%w: unexpected object type %s", ErrCorruptObject, typ))
		}

		data, err := inflateExactly(reader, size)
		if err != nil {
			return nil, NewPackParseError(offset, fmt.Errorf("%w: %s", ErrDecompressionError, err))
		}
		obj.Data = data

		objects = append(objects, obj)
	}

	var checksum [20]byte
	copy(checksum[:], trailer)

	return &Packfile{Version: version, Objects: objects, Checksum: checksum}, nil
}

// readObjectHeader decodes the type-and-size varint at the head of a pack
// entry. Size is encoded in 7-bit little-endian groups; the first byte's
// low 4 bits hold the least-significant size bits, subsequent bytes hold 7
// each.
func readObjectHeader(r io.ByteReader) (object.Type, uint64, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	typ := object.Type((b >> 4) & 0x07)
	size := uint64(b & 0x0f)
	shift := uint(4)

	for b&0x80 != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		size |= uint64(b&0x7f) << shift
		shift += 7
	}
	return typ, size, nil
}

// readOfsDeltaOffset decodes the negative relative offset that follows an
// OBJ_OFS_DELTA header. This varint encoding is specific to ofs-delta base
// references and differs from both the object-size varint and the
// delta-instruction size varint.
func readOfsDeltaOffset(r io.ByteReader) (int64, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	offset := int64(b & 0x7f)
	for b&0x80 != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, err
		}
		offset++
		offset = (offset << 7) | int64(b&0x7f)
	}
	return offset, nil
}

// inflateExactly zlib-inflates exactly wantSize bytes from r. Passing a
// bytes.Reader (which implements io.ByteReader) ensures the flate decoder
// consumes only the bytes that belong to this stream, leaving r positioned
// at the first byte of the next pack entry.
func inflateExactly(r io.Reader, wantSize uint64) ([]byte, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, err
	}
	data := make([]byte, wantSize)
	if _, err := io.ReadFull(zr, data); err != nil {
		return nil, err
	}
	if err := zr.Close(); err != nil {
		return nil, err
	}
	return data, nil
}

// ResolvedObject is a packed object after delta resolution: concrete type
// and full content, with its object id computed.
type ResolvedObject struct {
	Sha  string
	Type object.Type
	Data []byte
}

// ExternalBaseLookup resolves a ref-delta base object id that is not present
// in the pack being resolved. Receive-pack accepts thin packs whose delta
// bases already exist in the repository's object store; upload-pack never
// produces these, so a nil lookup is valid when resolving packs that are
// known to be self-contained.
type ExternalBaseLookup func(sha string) (data []byte, typ object.Type, ok bool)

// ResolveDeltas applies every delta in pf against its base, iterating to a
// fixed point so that a delta may itself be based on another unresolved
// delta in the same pack, regardless of entry order. It returns
// ErrUnresolvedDelta if a full pass makes no progress while deltas remain
// outstanding.
func ResolveDeltas(pf *Packfile, lookupExternal ExternalBaseLookup) ([]ResolvedObject, error) {
	resolved := make([]*ResolvedObject, len(pf.Objects))
	byOffset := make(map[int]*ResolvedObject, len(pf.Objects))
	bySha := make(map[string]*ResolvedObject, len(pf.Objects))

	remaining := len(pf.Objects)
	for remaining > 0 {
		progressed := false

		for i, obj := range pf.Objects {
			if resolved[i] != nil {
				continue
			}

			var base *ResolvedObject
			switch obj.Type {
			case object.TypeCommit, object.TypeTree, object.TypeBlob, object.TypeTag:
				r := &ResolvedObject{
					Sha:  computeObjectSha(obj.Type, obj.Data),
					Type: obj.Type,
					Data: obj.Data,
				}
				resolved[i] = r
				byOffset[obj.Offset] = r
				bySha[r.Sha] = r
				remaining--
				progressed = true
				continue

			case object.TypeOfsDelta:
				base = byOffset[obj.BaseOffset]

			case object.TypeRefDelta:
				if b, ok := bySha[obj.BaseSha]; ok {
					base = b
				} else if lookupExternal != nil {
					if data, typ, ok := lookupExternal(obj.BaseSha); ok {
						base = &ResolvedObject{Sha: obj.BaseSha, Type: typ, Data: data}
						bySha[obj.BaseSha] = base
					}
				}
			}

			if base == nil {
				continue
			}

			data, err := ApplyDelta(base.Data, obj.Data)
			if err != nil {
				return nil, NewPackParseError(obj.Offset, err)
			}

			r := &ResolvedObject{
				Sha:  computeObjectSha(base.Type, data),
				Type: base.Type,
				Data: data,
			}
			resolved[i] = r
			byOffset[obj.Offset] = r
			bySha[r.Sha] = r
			remaining--
			progressed = true
		}

		if remaining > 0 && !progressed {
			return nil, ErrUnresolvedDelta
		}
	}

	out := make([]ResolvedObject, len(resolved))
	for i, r := range resolved {
		out[i] = *r
	}
	return out, nil
}

// computeObjectSha computes a Git object id over the resolved object's
// header and content.
func computeObjectSha(typ object.Type, data []byte) string {
	h, err := hash.Object(crypto.SHA1, typ, data)
	if err != nil {
		// crypto.SHA1 is linked in by this package's own import of
		// crypto/sha1; Object can only fail for an unlinked algorithm.
		panic(err)
	}
	return h.String()
}
