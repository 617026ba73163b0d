package idmap

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromNative(t *testing.T) {
	tr := NewTransformer("vehicle", SequenceGenerator("veh_"))

	first, err := tr.FromNative("flow0.0")
	require.NoError(t, err)
	assert.Equal(t, "veh_0", first)

	again, err := tr.FromNative("flow0.0")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	second, err := tr.FromNative("flow0.1")
	require.NoError(t, err)
	assert.Equal(t, "veh_1", second)

	native, err := tr.ToNative("veh_1")
	require.NoError(t, err)
	assert.Equal(t, "flow0.1", native)
	assert.Equal(t, 2, tr.Len())
}

func TestToNativeRegistersCanonicalFirst(t *testing.T) {
	tr := NewTransformer("vehicle", SequenceGenerator("veh_"))

	native, err := tr.ToNative("cab_3")
	require.NoError(t, err)
	assert.Equal(t, "cab_3", native)

	canonical, err := tr.FromNative("cab_3")
	require.NoError(t, err)
	assert.Equal(t, "cab_3", canonical)
	assert.Equal(t, 1, tr.Len())
}

func TestGeneratedNameSkipsTakenCanonical(t *testing.T) {
	tr := NewTransformer("vehicle", SequenceGenerator("veh_"))

	_, err := tr.ToNative("veh_0")
	require.NoError(t, err)

	canonical, err := tr.FromNative("sumo_a")
	require.NoError(t, err)
	assert.Equal(t, "veh_1", canonical)
}

func TestToNativeConflict(t *testing.T) {
	tr := NewTransformer("vehicle", SequenceGenerator("veh_"))

	_, err := tr.FromNative("x")
	require.NoError(t, err)

	_, err = tr.ToNative("x")
	assert.Error(t, err)
}

func TestGeneratorExhaustion(t *testing.T) {
	tr := NewTransformer("person", func() string { return "same" })

	_, err := tr.ToNative("same")
	require.NoError(t, err)

	_, err = tr.FromNative("p1")
	assert.Error(t, err)
}

func TestResetYieldsFreshCanonical(t *testing.T) {
	tr := NewTransformer("vehicle", SequenceGenerator("veh_"))

	before, err := tr.FromNative("v1")
	require.NoError(t, err)

	tr.Reset()
	assert.Zero(t, tr.Len())
	_, known := tr.Canonical("v1")
	assert.False(t, known)

	after, err := tr.FromNative("v1")
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestBijectionUnderRandomCalls(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tr := NewTransformer("vehicle", SequenceGenerator("veh_"))

	nativeOf := map[string]string{}
	canonicalOf := map[string]string{}

	for i := 0; i < 5000; i++ {
		var native, canonical string
		var err error
		if rng.Intn(2) == 0 {
			native = fmt.Sprintf("n%d", rng.Intn(200))
			canonical, err = tr.FromNative(native)
		} else {
			// canonical-side names overlap with generated ones on purpose
			canonical = fmt.Sprintf("veh_%d", rng.Intn(200))
			native, err = tr.ToNative(canonical)
		}
		if err != nil {
			continue
		}

		if prev, ok := canonicalOf[native]; ok {
			require.Equal(t, prev, canonical, "native %s changed canonical id", native)
		}
		if prev, ok := nativeOf[canonical]; ok {
			require.Equal(t, prev, native, "canonical %s changed native id", canonical)
		}
		canonicalOf[native] = canonical
		nativeOf[canonical] = native
	}

	assert.Equal(t, len(canonicalOf), len(nativeOf))
	assert.Equal(t, len(canonicalOf), tr.Len())
}

func TestLookupsDoNotRegister(t *testing.T) {
	tr := NewTransformer("person", SequenceGenerator("p_"))

	_, ok := tr.Native("p_0")
	assert.False(t, ok)
	_, ok = tr.Canonical("ped1")
	assert.False(t, ok)
	assert.Zero(t, tr.Len())
}
