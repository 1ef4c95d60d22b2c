// Package codec implements the wire framing and tagged-union message
// encoding described in §4.1: little-endian scalars, length-prefixed
// strings, option<T> as a presence byte plus payload, and a uint32 tag
// in front of each message variant. The helper shape (a *bytes.Buffer
// wrapped by small write/read functions over encoding/binary) is
// grounded on the ACC broadcasting SDK's network/buffer.go.
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrMalformed classifies every decode failure — bad length, truncated
// payload, unknown tag — per §4.1/§7. It never escalates to a panic.
var ErrMalformed = errors.New("codec: malformed message")

func malformed(reason string) error {
	return fmt.Errorf("%w: %s", ErrMalformed, reason)
}

type writer struct {
	buf bytes.Buffer
}

func newWriter() *writer { return &writer{} }

func (w *writer) bytes() []byte { return w.buf.Bytes() }

func (w *writer) writeUint8(v uint8)   { w.buf.WriteByte(v) }
func (w *writer) writeBool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

func (w *writer) writeUint16(v uint16) { binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *writer) writeUint32(v uint32) { binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *writer) writeInt32(v int32)   { binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *writer) writeInt64(v int64)   { binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *writer) writeUint64(v uint64) { binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *writer) writeFloat64(v float64) { binary.Write(&w.buf, binary.LittleEndian, v) }

func (w *writer) writeString(s string) {
	w.writeUint16(uint16(len(s)))
	w.buf.WriteString(s)
}

func (w *writer) writeBytes16(b []byte) { w.buf.Write(b) }

func (w *writer) writeOptionInt32(v *int32) {
	if v == nil {
		w.writeUint8(0)
		return
	}
	w.writeUint8(1)
	w.writeInt32(*v)
}

func (w *writer) writeOptionUint16(v *uint16) {
	if v == nil {
		w.writeUint8(0)
		return
	}
	w.writeUint8(1)
	w.writeUint16(*v)
}

func (w *writer) writeOptionInt64(v *int64) {
	if v == nil {
		w.writeUint8(0)
		return
	}
	w.writeUint8(1)
	w.writeInt64(*v)
}

type reader struct {
	buf *bytes.Reader
}

func newReader(data []byte) *reader { return &reader{buf: bytes.NewReader(data)} }

func (r *reader) readUint8() (uint8, error) {
	b, err := r.buf.ReadByte()
	if err != nil {
		return 0, malformed("truncated uint8")
	}
	return b, nil
}

func (r *reader) readBool() (bool, error) {
	b, err := r.readUint8()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (r *reader) readUint16() (uint16, error) {
	var v uint16
	if err := binary.Read(r.buf, binary.LittleEndian, &v); err != nil {
		return 0, malformed("truncated uint16")
	}
	return v, nil
}

func (r *reader) readUint32() (uint32, error) {
	var v uint32
	if err := binary.Read(r.buf, binary.LittleEndian, &v); err != nil {
		return 0, malformed("truncated uint32")
	}
	return v, nil
}

func (r *reader) readInt32() (int32, error) {
	var v int32
	if err := binary.Read(r.buf, binary.LittleEndian, &v); err != nil {
		return 0, malformed("truncated int32")
	}
	return v, nil
}

func (r *reader) readInt64() (int64, error) {
	var v int64
	if err := binary.Read(r.buf, binary.LittleEndian, &v); err != nil {
		return 0, malformed("truncated int64")
	}
	return v, nil
}

func (r *reader) readUint64() (uint64, error) {
	var v uint64
	if err := binary.Read(r.buf, binary.LittleEndian, &v); err != nil {
		return 0, malformed("truncated uint64")
	}
	return v, nil
}

func (r *reader) readFloat64() (float64, error) {
	var v float64
	if err := binary.Read(r.buf, binary.LittleEndian, &v); err != nil {
		return 0, malformed("truncated float64")
	}
	return v, nil
}

func (r *reader) readString() (string, error) {
	length, err := r.readUint16()
	if err != nil {
		return "", malformed("truncated string length")
	}
	b := make([]byte, length)
	n, err := r.buf.Read(b)
	if err != nil || n != int(length) {
		return "", malformed("truncated string body")
	}
	return string(b), nil
}

func (r *reader) readBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	read, err := r.buf.Read(b)
	if err != nil || read != n {
		return nil, malformed("truncated bytes")
	}
	return b, nil
}

func (r *reader) readOptionInt32() (*int32, error) {
	present, err := r.readUint8()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	v, err := r.readInt32()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *reader) readOptionUint16() (*uint16, error) {
	present, err := r.readUint8()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	v, err := r.readUint16()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *reader) readOptionInt64() (*int64, error) {
	present, err := r.readUint8()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	v, err := r.readInt64()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (w *writer) writeUUID(id uuid.UUID) { w.buf.Write(id[:]) }

func (r *reader) readUUID() (uuid.UUID, error) {
	b, err := r.readBytes(16)
	if err != nil {
		return uuid.Nil, malformed("truncated uuid")
	}
	var id uuid.UUID
	copy(id[:], b)
	return id, nil
}

func (r *reader) finished() bool {
	return r.buf.Len() == 0
}
