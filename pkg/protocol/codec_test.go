package protocol

import (
	"bytes"
	"errors"
	"io"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestFraming(t *testing.T) {
	msg := NewRequest(CmdGetVehicleVariable).Variable(VarTaxiFleet).ID("").Param(Int(-1)).Message()

	expected := []byte{
		0x00, 0x00, 0x00, 0x10, // total length
		0x0c,                   // command length
		CmdGetVehicleVariable,
		VarTaxiFleet,
		0x00, 0x00, 0x00, 0x00, // empty id
		TypeInteger, 0xff, 0xff, 0xff, 0xff,
	}
	assert.Equal(t, expected, msg)
}

func TestExtendedCommandLength(t *testing.T) {
	long := strings.Repeat("x", 300)
	body := NewRequest(CmdSetVehicleVariable).String(long).Body()

	// 0x00 marker, int32 length, opcode
	assert.Equal(t, byte(0), body[0])
	assert.Equal(t, []byte{0x00, 0x00, 0x01, 0x36}, body[1:5])
	assert.Equal(t, CmdSetVehicleVariable, body[5])

	r := NewReader(body)
	id, content := r.Command()
	require.NoError(t, r.Err())
	assert.Equal(t, CmdSetVehicleVariable, id)
	assert.Equal(t, long, content.String())
	assert.Zero(t, r.Remaining())
}

func TestValueRoundTrip(t *testing.T) {
	manyIDs := make(StringList, 10000)
	for i := range manyIDs {
		manyIDs[i] = "veh" + strings.Repeat("9", i%7)
	}

	tests := []struct {
		name  string
		value Value
	}{
		{name: "ubyte", value: Ubyte(255)},
		{name: "byte", value: Byte(-128)},
		{name: "int min", value: Int(math.MinInt32)},
		{name: "int max", value: Int(math.MaxInt32)},
		{name: "double", value: Double(-1073741824.0)},
		{name: "empty string", value: Str("")},
		{name: "utf8 string", value: Str("Kreuzung Süd")},
		{name: "empty string list", value: StringList{}},
		{name: "string list with empty entries", value: StringList{"", "a", ""}},
		{name: "large string list", value: manyIDs},
		{name: "position2d", value: Position2D{X: 10, Y: 20}},
		{name: "position3d", value: Position3D{X: -1, Y: 0.5, Z: 3}},
		{name: "color", value: Color{R: 1, G: 2, B: 3, A: 255}},
		{name: "empty compound", value: Compound{}},
		{name: "leader compound", value: Compound{Str(""), Double(-1)}},
		{
			name: "nested compound",
			value: Compound{
				Int(2),
				Compound{Str("res_7"), StringList{"p1"}, Compound{}},
				StringList{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := NewWriter().Value(tt.value).Bytes()
			r := NewReader(encoded)
			decoded := r.Value()
			require.NoError(t, r.Err())
			assert.Equal(t, tt.value, decoded)
			assert.Zero(t, r.Remaining())
		})
	}
}

func TestTruncatedValuesFail(t *testing.T) {
	v := Compound{Str("res_1"), StringList{"p1", "p2"}, Double(12.5), Int(1), Position3D{X: 1}}
	encoded := NewWriter().Value(v).Bytes()

	for n := 0; n < len(encoded); n++ {
		r := NewReader(encoded[:n])
		assert.NotPanics(t, func() { r.Value() })
		assert.Error(t, r.Err(), "prefix of %d bytes", n)
	}
}

func TestRandomBytesDoNotPanic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		buf := make([]byte, rng.Intn(64))
		rng.Read(buf)
		assert.NotPanics(t, func() {
			r := NewReader(buf)
			for r.Err() == nil && r.Remaining() > 0 {
				r.Value()
			}
		})
	}
}

func TestReaderErrors(t *testing.T) {
	t.Run("tag mismatch", func(t *testing.T) {
		r := NewReader(NewWriter().Value(Double(1)).Bytes())
		assert.Zero(t, r.TypedInt())

		var mismatch *TagMismatchError
		require.True(t, errors.As(r.Err(), &mismatch))
		assert.Equal(t, TypeInteger, mismatch.Expected)
		assert.Equal(t, TypeDouble, mismatch.Actual)
	})

	t.Run("negative string length", func(t *testing.T) {
		r := NewReader(NewWriter().Int(-5).Bytes())
		assert.Equal(t, "", r.String())
		assert.Error(t, r.Err())
	})

	t.Run("list count larger than payload", func(t *testing.T) {
		r := NewReader(NewWriter().Int(1 << 20).String("a").Bytes())
		assert.Nil(t, r.StringList())
		assert.Error(t, r.Err())
	})

	t.Run("unknown tag", func(t *testing.T) {
		r := NewReader([]byte{0x42, 0x00})
		assert.Nil(t, r.Value())
		assert.Error(t, r.Err())
	})

	t.Run("errors stick", func(t *testing.T) {
		r := NewReader([]byte{0x01})
		r.Int()
		first := r.Err()
		require.Error(t, first)
		r.Ubyte()
		assert.Same(t, first, r.Err())
	})

	t.Run("deep nesting", func(t *testing.T) {
		var v Value = Int(1)
		for i := 0; i < maxCompoundDepth+2; i++ {
			v = Compound{v}
		}
		r := NewReader(NewWriter().Value(v).Bytes())
		assert.Nil(t, r.Value())
		assert.Error(t, r.Err())
	})
}

func TestMessageIO(t *testing.T) {
	var buf bytes.Buffer
	body := NewRequest(CmdSimStep).Double(1.5).Body()
	require.NoError(t, WriteMessage(&buf, body))

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, body, got)

	t.Run("oversized length", func(t *testing.T) {
		_, err := ReadMessage(bytes.NewReader([]byte{0x7f, 0xff, 0xff, 0xff}))
		assert.Error(t, err)
	})

	t.Run("length below header", func(t *testing.T) {
		_, err := ReadMessage(bytes.NewReader([]byte{0x00, 0x00, 0x00, 0x02}))
		assert.Error(t, err)
	})

	t.Run("short body", func(t *testing.T) {
		_, err := ReadMessage(bytes.NewReader([]byte{0x00, 0x00, 0x00, 0x08, 0x01}))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}

func TestDecodeResponse(t *testing.T) {
	t.Run("ok status with variable", func(t *testing.T) {
		body := append(EncodeStatus(CmdGetVehicleVariable, StatusOK, ""),
			EncodeVariable(RespGetVehicleVariable, VarTaxiFleet, "", StringList{"cab_1", "cab_2"})...)

		resp, err := DecodeResponse(body, CmdGetVehicleVariable)
		require.NoError(t, err)
		assert.Equal(t, StatusOK, resp.Status.Result)

		id, v, err := resp.Variable(RespGetVehicleVariable, VarTaxiFleet)
		require.NoError(t, err)
		assert.Equal(t, "", id)
		assert.Equal(t, StringList{"cab_1", "cab_2"}, v)
	})

	t.Run("error status keeps description", func(t *testing.T) {
		body := EncodeStatus(CmdSetVehicleVariable, StatusErr, "Vehicle 'x' is not known")

		resp, err := DecodeResponse(body, CmdSetVehicleVariable)
		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, "Vehicle 'x' is not known", statusErr.Description)
		require.NotNil(t, resp)
		assert.Equal(t, StatusErr, resp.Status.Result)
	})

	t.Run("status for other command", func(t *testing.T) {
		body := EncodeStatus(CmdSimStep, StatusOK, "")

		_, err := DecodeResponse(body, CmdSetOrder)
		var desync *DesyncError
		assert.True(t, errors.As(err, &desync))
	})

	t.Run("truncated status", func(t *testing.T) {
		body := EncodeStatus(CmdSimStep, StatusOK, "description")

		_, err := DecodeResponse(body[:len(body)-3], CmdSimStep)
		var desync *DesyncError
		assert.True(t, errors.As(err, &desync))
	})

	t.Run("wrong variable in response", func(t *testing.T) {
		body := append(EncodeStatus(CmdGetPersonVariable, StatusOK, ""),
			EncodeVariable(RespGetPersonVariable, VarTypeID, "p1", Str("DEFAULT_PEDTYPE"))...)

		resp, err := DecodeResponse(body, CmdGetPersonVariable)
		require.NoError(t, err)
		_, _, err = resp.Variable(RespGetPersonVariable, VarTaxiReservations)
		var desync *DesyncError
		assert.True(t, errors.As(err, &desync))
	})
}
