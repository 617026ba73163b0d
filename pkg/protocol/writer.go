package protocol

import (
	"encoding/binary"
	"math"
)

// Writer appends big-endian TraCI primitives to a buffer.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty writer.
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of written bytes.
func (w *Writer) Len() int {
	return len(w.buf)
}

func (w *Writer) Ubyte(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

func (w *Writer) Byte(v int8) *Writer {
	w.buf = append(w.buf, byte(v))
	return w
}

func (w *Writer) Int(v int32) *Writer {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
	return w
}

func (w *Writer) Double(v float64) *Writer {
	w.buf = binary.BigEndian.AppendUint64(w.buf, math.Float64bits(v))
	return w
}

func (w *Writer) String(v string) *Writer {
	w.Int(int32(len(v)))
	w.buf = append(w.buf, v...)
	return w
}

func (w *Writer) StringList(v []string) *Writer {
	w.Int(int32(len(v)))
	for _, s := range v {
		w.String(s)
	}
	return w
}

// Raw appends bytes unchanged.
func (w *Writer) Raw(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// Value writes the type tag followed by the value bytes. Compound values
// write their item count and then each item tagged.
func (w *Writer) Value(v Value) *Writer {
	w.Ubyte(v.Tag())
	switch t := v.(type) {
	case Ubyte:
		w.Ubyte(uint8(t))
	case Byte:
		w.Byte(int8(t))
	case Int:
		w.Int(int32(t))
	case Double:
		w.Double(float64(t))
	case Str:
		w.String(string(t))
	case StringList:
		w.StringList(t)
	case Compound:
		w.Int(int32(len(t)))
		for _, item := range t {
			w.Value(item)
		}
	case Position2D:
		w.Double(t.X).Double(t.Y)
	case Position3D:
		w.Double(t.X).Double(t.Y).Double(t.Z)
	case Color:
		w.Ubyte(t.R).Ubyte(t.G).Ubyte(t.B).Ubyte(t.A)
	}
	return w
}
