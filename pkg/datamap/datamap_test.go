package datamap

import (
	"math/rand"
	"testing"

	"github.com/sealbox/sealbox/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDescriptors(n int) []types.ChunkDescriptor {
	rnd := rand.New(rand.NewSource(7))
	descs := make([]types.ChunkDescriptor, n)
	for i := range descs {
		var addr, deriv [types.HashSize]byte
		rnd.Read(addr[:])
		rnd.Read(deriv[:])
		descs[i] = types.ChunkDescriptor{
			Index:      uint32(i),
			Address:    addr,
			Derivation: deriv,
			PlainSize:  1024,
			CipherSize: 1060,
		}
	}
	return descs
}

func TestMarshal_RoundTrip(t *testing.T) {
	descs := testDescriptors(5)
	dm := Build(descs, 5*1024, types.HashData([]byte("checksum source")))

	serialized, err := Marshal(dm)
	require.NoError(t, err)

	decoded, err := Unmarshal(serialized)
	require.NoError(t, err)
	assert.Equal(t, dm, decoded)
}

func TestMarshal_InlineRoundTrip(t *testing.T) {
	payload := []byte("small enough to live inside the map")
	dm := BuildInline(payload)

	serialized, err := Marshal(dm)
	require.NoError(t, err)

	decoded, err := Unmarshal(serialized)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded.Inline)
	assert.Equal(t, uint64(len(payload)), decoded.TotalSize)
	assert.True(t, decoded.IsInline())
}

func TestMarshal_Deterministic(t *testing.T) {
	dm := Build(testDescriptors(20), 20*1024, types.HashData([]byte("x")))

	first, err := Marshal(dm)
	require.NoError(t, err)
	second, err := Marshal(dm)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestUnmarshal_Garbage(t *testing.T) {
	_, err := Unmarshal([]byte("definitely not cbor"))
	assert.ErrorIs(t, err, types.ErrMalformedMap)
}

func TestUnmarshal_SizeDisagreement(t *testing.T) {
	dm := Build(testDescriptors(3), 9999, types.HashData([]byte("x")))
	serialized, err := Marshal(dm)
	require.NoError(t, err)

	_, err = Unmarshal(serialized)
	assert.ErrorIs(t, err, types.ErrMalformedMap)
}

func TestUnmarshal_BadDescriptorIndex(t *testing.T) {
	descs := testDescriptors(3)
	descs[2].Index = 7
	serialized, err := Marshal(Build(descs, 3*1024, types.HashData([]byte("x"))))
	require.NoError(t, err)

	_, err = Unmarshal(serialized)
	assert.ErrorIs(t, err, types.ErrMalformedMap)
}

func TestNeedsShrink(t *testing.T) {
	small := Build(testDescriptors(3), 3*1024, types.HashData([]byte("x")))
	assert.False(t, NeedsShrink(small))

	// ~150 serialized bytes per descriptor; 600 of them clear 64KiB.
	big := Build(testDescriptors(600), 600*1024, types.HashData([]byte("x")))
	assert.True(t, NeedsShrink(big))
}

func TestWrap_LevelAccounting(t *testing.T) {
	inner := Build(testDescriptors(3), 3*1024, types.HashData([]byte("x")))
	serialized, err := Marshal(inner)
	require.NoError(t, err)

	outer := Wrap(testDescriptors(3), uint64(len(serialized)), types.HashData(serialized), inner.Level)
	assert.Equal(t, uint8(1), outer.Level)
	assert.True(t, outer.IsIndirect())
	assert.False(t, inner.IsIndirect())
}
