package transport

import (
	"io"

	"githost.dev/githost/protocol"
)

// writePkt encodes payload as a pkt-line and writes it to w. Encoding can
// only fail when payload exceeds protocol.MaxPktLineDataSize, which none of
// the fixed-format lines this server emits ever do; callers that can't
// prove that statically should chunk the payload themselves (see
// writeSideBand) rather than rely on this swallowing the error.
func writePkt(w io.Writer, payload []byte) error {
	encoded, err := protocol.Encode(payload)
	if err != nil {
		return err
	}
	_, err = w.Write(encoded)
	return err
}

func writeFlush(w io.Writer) error {
	_, err := w.Write([]byte(protocol.FlushLine))
	return err
}
