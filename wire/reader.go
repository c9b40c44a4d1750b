// Package wire holds the byte-level plumbing of the game protocol: a
// bounds-checked cursor over inbound messages, an output message builder,
// Latin-1 string coding and the frame codec (length prefix, checksum and
// XTEA).
package wire

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
)

// Order is a byte order usable for both reading and appending.
type Order interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// ParseOrder maps "little"/"le" and "big"/"be" to a byte order. An empty
// name selects little-endian.
func ParseOrder(name string) (Order, error) {
	switch name {
	case "", "little", "le":
		return binary.LittleEndian, nil
	case "big", "be":
		return binary.BigEndian, nil
	}
	return nil, fmt.Errorf("unknown byte order %q", name)
}

// OrOrder returns o, or little-endian when o is nil.
func OrOrder(o Order) Order {
	if o == nil {
		return binary.LittleEndian
	}
	return o
}

// ErrShortRead is matched by every ShortReadError.
var ErrShortRead = errors.New("short read")

// ShortReadError reports a field that ran past the end of the message.
type ShortReadError struct {
	Offset int
	Need   int
	Have   int
}

func (e *ShortReadError) Error() string {
	return fmt.Sprintf("short read at offset %d: need %d bytes, have %d", e.Offset, e.Need, e.Have)
}

func (e *ShortReadError) Is(target error) bool { return target == ErrShortRead }

// Reader is a sequential cursor over one message. The first failed read
// latches an error; later reads return zero values so decoders can check
// Err once per field group instead of after every read.
type Reader struct {
	buf   []byte
	pos   int
	order Order
	err   error
}

// NewReader returns a little-endian reader, the order servers of this
// protocol family use.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b, order: binary.LittleEndian}
}

func NewReaderOrder(b []byte, order Order) *Reader {
	if order == nil {
		order = binary.LittleEndian
	}
	return &Reader{buf: b, order: order}
}

func (r *Reader) Err() error     { return r.err }
func (r *Reader) Pos() int       { return r.pos }
func (r *Reader) Len() int       { return len(r.buf) }
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Fail latches err unless an earlier error is already set.
func (r *Reader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.buf) {
		r.err = &ShortReadError{Offset: r.pos, Need: n, Have: len(r.buf) - r.pos}
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *Reader) U8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) I8() int8 { return int8(r.U8()) }

func (r *Reader) U16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return r.order.Uint16(b)
}

func (r *Reader) U32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return r.order.Uint32(b)
}

func (r *Reader) U64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return r.order.Uint64(b)
}

// Bool reads one byte and reports whether it is non-zero.
func (r *Reader) Bool() bool { return r.U8() != 0 }

// Double reads the protocol's fixed-point encoding: a precision byte
// followed by a u32 biased by 0x7fffffff.
func (r *Reader) Double() float64 {
	precision := r.U8()
	v := int64(r.U32()) - math.MaxInt32
	if r.err != nil {
		return 0
	}
	return float64(v) / math.Pow(10, float64(precision))
}

// String reads a u16 length and that many Latin-1 bytes.
func (r *Reader) String() string {
	n := int(r.U16())
	b := r.take(n)
	if b == nil {
		return ""
	}
	return DecodeLatin1(b)
}

// Bytes returns the next n bytes without copying.
func (r *Reader) Bytes(n int) []byte { return r.take(n) }

func (r *Reader) Skip(n int) { r.take(n) }

// Peek16 returns the next u16 without consuming it.
func (r *Reader) Peek16() uint16 {
	if r.err != nil {
		return 0
	}
	if r.pos+2 > len(r.buf) {
		r.err = &ShortReadError{Offset: r.pos, Need: 2, Have: len(r.buf) - r.pos}
		return 0
	}
	return r.order.Uint16(r.buf[r.pos:])
}

// Rest consumes and returns every unread byte.
func (r *Reader) Rest() []byte {
	if r.err != nil {
		return nil
	}
	b := r.buf[r.pos:]
	r.pos = len(r.buf)
	return b
}

// Preview hex-encodes up to n bytes starting at the cursor, for logs.
func (r *Reader) Preview(n int) string {
	start := r.pos
	if start > len(r.buf) {
		start = len(r.buf)
	}
	end := start + n
	if end > len(r.buf) {
		end = len(r.buf)
	}
	return hex.EncodeToString(r.buf[start:end])
}

// PreviewAt hex-encodes up to n bytes starting at off.
func (r *Reader) PreviewAt(off, n int) string {
	if off < 0 {
		off = 0
	}
	if off > len(r.buf) {
		off = len(r.buf)
	}
	end := off + n
	if end > len(r.buf) {
		end = len(r.buf)
	}
	return hex.EncodeToString(r.buf[off:end])
}
