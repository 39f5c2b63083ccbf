package cdc

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// magic delimits every serialized batch, front and back, so a reader
// tailing the sink can resynchronise after a partial write.
var magic = [4]byte{'P', 'A', 'R', '1'}

// Serialize encodes rows as JSON, zstd-compresses the result, and frames it
// as: magic, compressed body, little-endian uint32 body length, magic.
// The trailing length lets a reader seek backwards to the start of the
// previous frame without re-scanning from the beginning of the stream.
func Serialize(rows []Row) ([]byte, error) {
	body, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("cdc: marshal rows: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("cdc: new zstd writer: %w", err)
	}
	compressed := enc.EncodeAll(body, nil)
	_ = enc.Close()

	var buf bytes.Buffer
	buf.Write(magic[:])
	buf.Write(compressed)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(compressed)))
	buf.Write(magic[:])
	return buf.Bytes(), nil
}

// Deserialize reverses Serialize, validating both magic markers and the
// length field before decompressing.
func Deserialize(framed []byte) ([]Row, error) {
	if len(framed) < 8+len(magic)*2 {
		return nil, fmt.Errorf("cdc: frame too short")
	}
	if !bytes.Equal(framed[:4], magic[:]) {
		return nil, fmt.Errorf("cdc: bad leading magic")
	}
	if !bytes.Equal(framed[len(framed)-4:], magic[:]) {
		return nil, fmt.Errorf("cdc: bad trailing magic")
	}

	lengthOffset := len(framed) - 8
	length := binary.LittleEndian.Uint32(framed[lengthOffset : lengthOffset+4])
	compressed := framed[4:lengthOffset]
	if uint32(len(compressed)) != length {
		return nil, fmt.Errorf("cdc: length mismatch: header says %d, body is %d", length, len(compressed))
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("cdc: new zstd reader: %w", err)
	}
	defer dec.Close()

	body, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("cdc: decompress: %w", err)
	}

	var rows []Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("cdc: unmarshal rows: %w", err)
	}
	return rows, nil
}
