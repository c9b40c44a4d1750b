package wire

import (
	"encoding/binary"
	"math"
)

// Writer builds one outbound message.
type Writer struct {
	buf   []byte
	order Order
}

func NewWriter() *Writer {
	return &Writer{order: binary.LittleEndian}
}

func NewWriterOrder(order Order) *Writer {
	if order == nil {
		order = binary.LittleEndian
	}
	return &Writer{order: order}
}

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }

func (w *Writer) U8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

func (w *Writer) Bool(v bool) *Writer {
	if v {
		return w.U8(1)
	}
	return w.U8(0)
}

func (w *Writer) U16(v uint16) *Writer {
	w.buf = w.order.AppendUint16(w.buf, v)
	return w
}

func (w *Writer) U32(v uint32) *Writer {
	w.buf = w.order.AppendUint32(w.buf, v)
	return w
}

func (w *Writer) U64(v uint64) *Writer {
	w.buf = w.order.AppendUint64(w.buf, v)
	return w
}

// String writes a u16 length and the Latin-1 encoding of s. Runes outside
// Latin-1 become '?'.
func (w *Writer) String(s string) *Writer {
	b := EncodeLatin1(s)
	if len(b) > math.MaxUint16 {
		b = b[:math.MaxUint16]
	}
	w.U16(uint16(len(b)))
	w.buf = append(w.buf, b...)
	return w
}

func (w *Writer) Raw(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// Double writes the fixed-point form read by Reader.Double.
func (w *Writer) Double(v float64, precision uint8) *Writer {
	scaled := int64(math.Round(v*math.Pow(10, float64(precision)))) + math.MaxInt32
	w.U8(precision)
	w.U32(uint32(scaled))
	return w
}

// PadTo appends zero bytes until the message is n bytes long.
func (w *Writer) PadTo(n int) *Writer {
	for len(w.buf) < n {
		w.buf = append(w.buf, 0)
	}
	return w
}
