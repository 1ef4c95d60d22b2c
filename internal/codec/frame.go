package codec

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameLen bounds the length prefix so a corrupt or hostile peer
// cannot make the reliable channel allocate unbounded memory.
const MaxFrameLen = 1 << 20 // 1 MiB

// EncodeFrame serializes msg and prepends the 4-byte big-endian length
// prefix used by the reliable stream channel (§4.1, §6).
func EncodeFrame(msg Message) ([]byte, error) {
	payload, err := Encode(msg)
	if err != nil {
		return nil, err
	}
	framed := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(framed, uint32(len(payload)))
	copy(framed[4:], payload)
	return framed, nil
}

// ReadFrame reads one length-prefixed frame from r and decodes it. It
// returns ErrMalformed for a bad/oversized length or a truncated
// payload, and the underlying io error (including io.EOF) otherwise.
func ReadFrame(r io.Reader) (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 || length > MaxFrameLen {
		return nil, malformed(fmt.Sprintf("frame length %d out of bounds", length))
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, malformed("truncated frame payload")
		}
		return nil, err
	}
	return Decode(payload)
}

// WriteFrame encodes and writes one frame to w.
func WriteFrame(w io.Writer, msg Message) error {
	framed, err := EncodeFrame(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(framed)
	return err
}
