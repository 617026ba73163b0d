package errors

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArgsAndWrap(t *testing.T) {
	err := CommandFailed.Args("vehicle.dispatchTaxi", "Vehicle 'cab_9' is not known")
	assert.Equal(t, "command vehicle.dispatchTaxi failed: Vehicle 'cab_9' is not known", err.Error())
	assert.Equal(t, 2001, err.Code())
	assert.Equal(t, Recoverable, err.Class())

	wrapped := ProtocolDesync.Wrap(io.ErrUnexpectedEOF, "simulation.step")
	assert.Equal(t, "protocol desynchronized in simulation.step: unexpected EOF", wrapped.Error())
	assert.Equal(t, "protocol desynchronized in simulation.step", wrapped.Message())
	assert.ErrorIs(t, wrapped, io.ErrUnexpectedEOF)

	// templates are not modified by Args
	assert.Equal(t, "command %s failed: %s", CommandFailed.Message())
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("subscribe v1: %w", NotSupported.Args("vehicle.subscribe", "API_18"))

	assert.True(t, Is(err, NotSupported))
	assert.False(t, Is(err, CommandFailed))

	var coded *Error
	assert.True(t, As(err, &coded))
	assert.Equal(t, NotSupported.Code(), coded.Code())
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{name: "command failed", err: CommandFailed.Args("x", "y"), fatal: false},
		{name: "wrapped recoverable", err: fmt.Errorf("facade: %w", InvalidArgument.Args("dt")), fatal: false},
		{name: "desync", err: ProtocolDesync.Args("x"), fatal: true},
		{name: "library load", err: LibraryLoad.Args("not found"), fatal: true},
		{name: "uncoded", err: New("boom"), fatal: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
			assert.Equal(t, !tt.fatal, IsRecoverable(tt.err))
		})
	}

	assert.False(t, IsFatal(nil))
	assert.False(t, IsRecoverable(nil))
	assert.Equal(t, "fatal", Fatal.String())
}
