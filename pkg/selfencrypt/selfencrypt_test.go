package selfencrypt

import (
	"math/rand"
	"testing"

	"github.com/sealbox/sealbox/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChunks(t *testing.T, sizes ...int) [][]byte {
	t.Helper()
	rnd := rand.New(rand.NewSource(42))
	chunks := make([][]byte, len(sizes))
	for i, size := range sizes {
		chunks[i] = make([]byte, size)
		rnd.Read(chunks[i])
	}
	return chunks
}

func TestEncryptChunks_RoundTrip(t *testing.T) {
	plain := testChunks(t, 1024, 1024, 1030)

	encrypted, err := EncryptChunks(plain)
	require.NoError(t, err)
	require.Len(t, encrypted, 3)

	for i, ec := range encrypted {
		decrypted, err := DecryptChunk(ec.Descriptor, ec.Chunk.Data)
		require.NoError(t, err, "chunk %d", i)
		assert.Equal(t, plain[i], decrypted, "chunk %d", i)
	}
}

func TestEncryptChunks_TooFewChunks(t *testing.T) {
	_, err := EncryptChunks(testChunks(t, 1024, 1024))
	assert.Error(t, err)
}

func TestEncryptChunks_Deterministic(t *testing.T) {
	plain := testChunks(t, 2048, 2048, 2048)

	first, err := EncryptChunks(plain)
	require.NoError(t, err)
	second, err := EncryptChunks(plain)
	require.NoError(t, err)

	for i := range first {
		assert.Equal(t, first[i].Descriptor, second[i].Descriptor, "chunk %d", i)
		assert.Equal(t, first[i].Chunk.Data, second[i].Chunk.Data, "chunk %d", i)
	}
}

func TestEncryptChunks_DescriptorFields(t *testing.T) {
	plain := testChunks(t, 1024, 1500, 2000)

	encrypted, err := EncryptChunks(plain)
	require.NoError(t, err)

	seen := map[types.Hash]bool{}
	for i, ec := range encrypted {
		assert.Equal(t, uint32(i), ec.Descriptor.Index)
		assert.Equal(t, uint64(len(plain[i])), ec.Descriptor.PlainSize)
		assert.Equal(t, uint64(len(ec.Chunk.Data)), ec.Descriptor.CipherSize)
		assert.Equal(t, types.HashData(ec.Chunk.Data), ec.Descriptor.Address)
		assert.False(t, seen[ec.Descriptor.Address], "duplicate address for chunk %d", i)
		seen[ec.Descriptor.Address] = true
	}
}

func TestEncryptChunks_CiphertextDiffersFromPlaintext(t *testing.T) {
	plain := testChunks(t, 1024, 1024, 1024)

	encrypted, err := EncryptChunks(plain)
	require.NoError(t, err)

	for i, ec := range encrypted {
		assert.NotEqual(t, plain[i], ec.Chunk.Data, "chunk %d", i)
	}
}

func TestDecryptChunk_TamperedCiphertext(t *testing.T) {
	plain := testChunks(t, 1024, 1024, 1024)

	encrypted, err := EncryptChunks(plain)
	require.NoError(t, err)

	tampered := make([]byte, len(encrypted[1].Chunk.Data))
	copy(tampered, encrypted[1].Chunk.Data)
	tampered[len(tampered)/2] ^= 0x01

	_, err = DecryptChunk(encrypted[1].Descriptor, tampered)
	var corrupt *types.CorruptChunkError
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, encrypted[1].Descriptor.Address, corrupt.Address)
}

func TestDecryptChunk_WrongDerivation(t *testing.T) {
	plain := testChunks(t, 1024, 1024, 1024)

	encrypted, err := EncryptChunks(plain)
	require.NoError(t, err)

	// A descriptor with foreign key material must fail authentication, not
	// produce silent wrong output. The ciphertext is untouched, so the
	// address check passes and the failure comes from the AEAD open.
	desc := encrypted[0].Descriptor
	desc.Derivation = types.HashData([]byte("not the real material"))

	_, err = DecryptChunk(desc, encrypted[0].Chunk.Data)
	var corrupt *types.CorruptChunkError
	require.ErrorAs(t, err, &corrupt)
}

func TestDeriveMaterial_NeighborDependency(t *testing.T) {
	a := [][]byte{[]byte("chunk-a!"), []byte("chunk-b!"), []byte("chunk-c!")}
	b := [][]byte{[]byte("chunk-a!"), []byte("chunk-b!"), []byte("chunk-X!")}

	srcA := make([]types.Hash, 3)
	srcB := make([]types.Hash, 3)
	for i := range a {
		srcA[i] = types.HashData(a[i])
		srcB[i] = types.HashData(b[i])
	}

	// Changing chunk 2 changes the material for every chunk: 0 and 1 both
	// have chunk 2 as a cyclic neighbor.
	for i := 0; i < 3; i++ {
		assert.NotEqual(t, DeriveMaterial(srcA, i), DeriveMaterial(srcB, i), "chunk %d", i)
	}
}
