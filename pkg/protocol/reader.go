package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const maxCompoundDepth = 16

// Reader decodes big-endian TraCI primitives from a byte slice. The first
// failure sticks: later reads return zero values and Err reports the cause.
type Reader struct {
	buf []byte
	pos int
	err error
}

// NewReader reads from b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Err returns the first decode failure.
func (r *Reader) Err() error {
	return r.err
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// Offset returns the read position.
func (r *Reader) Offset() int {
	return r.pos
}

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.Remaining() < n {
		r.fail(fmt.Errorf("need %d bytes at offset %d, have %d: %w", n, r.pos, r.Remaining(), io.ErrUnexpectedEOF))
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *Reader) Ubyte() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Byte() int8 {
	return int8(r.Ubyte())
}

func (r *Reader) Int() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (r *Reader) Double() float64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b))
}

func (r *Reader) String() string {
	n := r.Int()
	if r.err != nil {
		return ""
	}
	if n < 0 {
		r.fail(fmt.Errorf("negative string length %d at offset %d", n, r.pos-4))
		return ""
	}
	return string(r.take(int(n)))
}

func (r *Reader) StringList() []string {
	n := r.count(4)
	if r.err != nil {
		return nil
	}
	out := make([]string, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, r.String())
	}
	if r.err != nil {
		return nil
	}
	return out
}

// count reads an element count and rejects values that cannot fit in the
// remaining bytes given a minimum element size.
func (r *Reader) count(minElem int) int {
	n := r.Int()
	if r.err != nil {
		return 0
	}
	if n < 0 || int(n)*minElem > r.Remaining() {
		r.fail(fmt.Errorf("element count %d exceeds remaining %d bytes", n, r.Remaining()))
		return 0
	}
	return int(n)
}

// Skip discards n bytes.
func (r *Reader) Skip(n int) {
	r.take(n)
}

// Rest returns all unread bytes.
func (r *Reader) Rest() []byte {
	return r.take(r.Remaining())
}

// ExpectUbyte reads one byte and fails unless it equals want.
func (r *Reader) ExpectUbyte(want uint8, what string) {
	got := r.Ubyte()
	if r.err == nil && got != want {
		r.fail(fmt.Errorf("%s: expected 0x%02x, read 0x%02x at offset %d", what, want, got, r.pos-1))
	}
}

// ExpectTag reads a type tag and fails unless it equals want.
func (r *Reader) ExpectTag(want byte) {
	got := r.Ubyte()
	if r.err == nil && got != want {
		r.fail(&TagMismatchError{Expected: want, Actual: got})
	}
}

func (r *Reader) TypedInt() int32 {
	r.ExpectTag(TypeInteger)
	return r.Int()
}

func (r *Reader) TypedDouble() float64 {
	r.ExpectTag(TypeDouble)
	return r.Double()
}

func (r *Reader) TypedString() string {
	r.ExpectTag(TypeString)
	return r.String()
}

func (r *Reader) TypedStringList() []string {
	r.ExpectTag(TypeStringList)
	return r.StringList()
}

// Value reads a tag and the value it announces.
func (r *Reader) Value() Value {
	return r.value(0)
}

func (r *Reader) value(depth int) Value {
	tag := r.Ubyte()
	if r.err != nil {
		return nil
	}
	return r.untagged(tag, depth)
}

// Untagged reads a value whose tag was already consumed.
func (r *Reader) Untagged(tag byte) Value {
	return r.untagged(tag, 0)
}

func (r *Reader) untagged(tag byte, depth int) Value {
	var v Value
	switch tag {
	case TypeUbyte:
		v = Ubyte(r.Ubyte())
	case TypeByte:
		v = Byte(r.Byte())
	case TypeInteger:
		v = Int(r.Int())
	case TypeDouble:
		v = Double(r.Double())
	case TypeString:
		v = Str(r.String())
	case TypeStringList:
		v = StringList(r.StringList())
	case TypePosition2D:
		v = Position2D{X: r.Double(), Y: r.Double()}
	case TypePosition3D:
		v = Position3D{X: r.Double(), Y: r.Double(), Z: r.Double()}
	case TypeColor:
		v = Color{R: r.Ubyte(), G: r.Ubyte(), B: r.Ubyte(), A: r.Ubyte()}
	case TypeCompound:
		if depth >= maxCompoundDepth {
			r.fail(fmt.Errorf("compound nesting deeper than %d", maxCompoundDepth))
			return nil
		}
		n := r.count(1)
		items := make(Compound, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			items = append(items, r.value(depth+1))
		}
		v = items
	default:
		r.fail(fmt.Errorf("unknown type tag 0x%02x at offset %d", tag, r.pos-1))
		return nil
	}
	if r.err != nil {
		return nil
	}
	return v
}
