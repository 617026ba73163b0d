package protocol

import (
	"fmt"
	"strings"
)

// Value is a type-tagged TraCI value. The concrete types below are the only
// implementations; Reader.Value returns them and Writer.Value writes them.
type Value interface {
	Tag() byte
	String() string
}

type (
	Ubyte      uint8
	Byte       int8
	Int        int32
	Double     float64
	Str        string
	StringList []string
	Compound   []Value
)

// Position2D is an x/y network position.
type Position2D struct {
	X, Y float64
}

// Position3D is an x/y/z network position.
type Position3D struct {
	X, Y, Z float64
}

// Color is an RGBA color.
type Color struct {
	R, G, B, A uint8
}

func (Ubyte) Tag() byte      { return TypeUbyte }
func (Byte) Tag() byte       { return TypeByte }
func (Int) Tag() byte        { return TypeInteger }
func (Double) Tag() byte     { return TypeDouble }
func (Str) Tag() byte        { return TypeString }
func (StringList) Tag() byte { return TypeStringList }
func (Compound) Tag() byte   { return TypeCompound }
func (Position2D) Tag() byte { return TypePosition2D }
func (Position3D) Tag() byte { return TypePosition3D }
func (Color) Tag() byte      { return TypeColor }

func (v Ubyte) String() string      { return fmt.Sprintf("ubyte(%d)", uint8(v)) }
func (v Byte) String() string       { return fmt.Sprintf("byte(%d)", int8(v)) }
func (v Int) String() string        { return fmt.Sprintf("int(%d)", int32(v)) }
func (v Double) String() string     { return fmt.Sprintf("double(%g)", float64(v)) }
func (v Str) String() string        { return fmt.Sprintf("string(%q)", string(v)) }
func (v StringList) String() string { return fmt.Sprintf("stringList%q", []string(v)) }
func (v Position2D) String() string { return fmt.Sprintf("pos2d(%g,%g)", v.X, v.Y) }
func (v Position3D) String() string { return fmt.Sprintf("pos3d(%g,%g,%g)", v.X, v.Y, v.Z) }
func (v Color) String() string      { return fmt.Sprintf("color(%d,%d,%d,%d)", v.R, v.G, v.B, v.A) }

func (v Compound) String() string {
	parts := make([]string, len(v))
	for i, item := range v {
		parts[i] = item.String()
	}
	return "compound[" + strings.Join(parts, ",") + "]"
}

// TagName returns a readable name for a type tag.
func TagName(tag byte) string {
	switch tag {
	case TypePosition2D:
		return "position2d"
	case TypePosition3D:
		return "position3d"
	case TypeUbyte:
		return "ubyte"
	case TypeByte:
		return "byte"
	case TypeInteger:
		return "integer"
	case TypeDouble:
		return "double"
	case TypeString:
		return "string"
	case TypeStringList:
		return "stringList"
	case TypeCompound:
		return "compound"
	case TypeColor:
		return "color"
	default:
		return fmt.Sprintf("unknown(0x%02x)", tag)
	}
}

// The As* helpers convert a decoded value into a Go value. A value of the
// wrong type is a protocol error, not a business error.

func AsDouble(v Value) (float64, error) {
	d, ok := v.(Double)
	if !ok {
		return 0, tagMismatch(TypeDouble, v)
	}
	return float64(d), nil
}

// AsInt accepts integers and both byte forms, since SUMO widened some
// variables from ubyte to integer over time.
func AsInt(v Value) (int32, error) {
	switch t := v.(type) {
	case Int:
		return int32(t), nil
	case Ubyte:
		return int32(t), nil
	case Byte:
		return int32(t), nil
	default:
		return 0, tagMismatch(TypeInteger, v)
	}
}

func AsString(v Value) (string, error) {
	s, ok := v.(Str)
	if !ok {
		return "", tagMismatch(TypeString, v)
	}
	return string(s), nil
}

func AsStringList(v Value) ([]string, error) {
	l, ok := v.(StringList)
	if !ok {
		return nil, tagMismatch(TypeStringList, v)
	}
	return []string(l), nil
}

func AsCompound(v Value) (Compound, error) {
	c, ok := v.(Compound)
	if !ok {
		return nil, tagMismatch(TypeCompound, v)
	}
	return c, nil
}

func AsPosition3D(v Value) (Position3D, error) {
	switch t := v.(type) {
	case Position3D:
		return t, nil
	case Position2D:
		return Position3D{X: t.X, Y: t.Y}, nil
	default:
		return Position3D{}, tagMismatch(TypePosition3D, v)
	}
}

// TagMismatchError reports a value whose tag differs from the expected one.
type TagMismatchError struct {
	Expected byte
	Actual   byte
}

func (e *TagMismatchError) Error() string {
	return fmt.Sprintf("expected %s, read %s", TagName(e.Expected), TagName(e.Actual))
}

func tagMismatch(expected byte, v Value) error {
	var actual byte
	if v != nil {
		actual = v.Tag()
	}
	return &TagMismatchError{Expected: expected, Actual: actual}
}
