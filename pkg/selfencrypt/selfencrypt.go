// Package selfencrypt transforms ordered plaintext chunks into ciphertext
// chunks whose keys are derived from the plaintext itself, so no external
// key material is ever stored or transmitted.
//
// For chunk i of n, the key material is the SHA-512 digest of the chunk's
// own plaintext hash concatenated with the plaintext hashes of its cyclic
// neighbors (i-1 mod n and i+1 mod n). The digest is stored in the chunk's
// descriptor, which decouples decryption from the neighbor dependency chain:
// any chunk can be decrypted independently given its descriptor.
//
// Each chunk is lzma-compressed before sealing with XChaCha20-Poly1305, and
// its content address is the SHA-512 hash of the resulting ciphertext. The
// whole transform is deterministic: byte-identical input always yields
// byte-identical ciphertext and addresses.
package selfencrypt

import (
	"bytes"
	"crypto/sha512"
	"fmt"
	"runtime"
	"sync"

	"github.com/sealbox/sealbox/pkg/types"
	"github.com/ulikunitz/xz/lzma"
	"golang.org/x/crypto/chacha20poly1305"
)

// EncryptedChunk pairs a sealed chunk with the descriptor needed to reverse
// the transform.
type EncryptedChunk struct {
	Descriptor types.ChunkDescriptor
	Chunk      types.Chunk
}

// DeriveMaterial computes the key material for chunk index given the
// plaintext hashes of all chunks in order.
func DeriveMaterial(srcHashes []types.Hash, index int) types.Hash {
	n := len(srcHashes)
	prev := (index + n - 1) % n
	next := (index + 1) % n

	var buf bytes.Buffer
	buf.Write(srcHashes[index].Bytes())
	buf.Write(srcHashes[prev].Bytes())
	buf.Write(srcHashes[next].Bytes())
	return types.Hash(sha512.Sum512(buf.Bytes()))
}

func keyAndNonce(material types.Hash) (key, nonce []byte) {
	return material[:chacha20poly1305.KeySize], material[chacha20poly1305.KeySize : chacha20poly1305.KeySize+chacha20poly1305.NonceSizeX]
}

// EncryptChunk seals a single plaintext chunk with the given key material.
func EncryptChunk(plain []byte, material types.Hash, index int) (EncryptedChunk, error) {
	compressed, err := compressWithLzma(plain)
	if err != nil {
		return EncryptedChunk{}, &types.EncryptionError{Err: err}
	}

	key, nonce := keyAndNonce(material)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return EncryptedChunk{}, &types.EncryptionError{Err: err}
	}

	cipherdata := aead.Seal(nil, nonce, compressed, nil)
	chunk := types.NewChunk(cipherdata)

	return EncryptedChunk{
		Descriptor: types.ChunkDescriptor{
			Index:      uint32(index),
			Address:    chunk.Address,
			Derivation: material,
			PlainSize:  uint64(len(plain)),
			CipherSize: uint64(len(cipherdata)),
		},
		Chunk: chunk,
	}, nil
}

// EncryptChunks seals an ordered plaintext chunk sequence, preserving order.
// Chunks are processed in parallel; the result is collected back into split
// order before returning.
func EncryptChunks(plain [][]byte) ([]EncryptedChunk, error) {
	if len(plain) < 3 {
		return nil, fmt.Errorf("selfencrypt: need at least 3 chunks, got %d", len(plain))
	}

	srcHashes := make([]types.Hash, len(plain))
	for i, p := range plain {
		srcHashes[i] = types.HashData(p)
	}

	numberOfWorkers := runtime.NumCPU()
	workerLimit := make(chan struct{}, numberOfWorkers)

	results := make([]EncryptedChunk, len(plain))
	errs := make([]error, len(plain))
	var wg sync.WaitGroup

	for i := range plain {
		i := i
		wg.Add(1)
		workerLimit <- struct{}{}
		go func() {
			defer wg.Done()
			material := DeriveMaterial(srcHashes, i)
			results[i], errs[i] = EncryptChunk(plain[i], material, i)
			<-workerLimit
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}

// DecryptChunk reverses the transform for one chunk. The ciphertext is
// verified against the descriptor's address before any decryption happens;
// a mismatch, an authentication failure, or a plaintext size disagreement
// all surface as CorruptChunkError.
func DecryptChunk(desc types.ChunkDescriptor, cipherdata []byte) ([]byte, error) {
	if types.HashData(cipherdata) != desc.Address {
		return nil, &types.CorruptChunkError{Address: desc.Address, Reason: "ciphertext does not match address"}
	}

	key, nonce := keyAndNonce(desc.Derivation)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, &types.EncryptionError{Err: err}
	}

	compressed, err := aead.Open(nil, nonce, cipherdata, nil)
	if err != nil {
		return nil, &types.CorruptChunkError{Address: desc.Address, Reason: "authentication failed"}
	}

	plain, err := decompressWithLzma(compressed)
	if err != nil {
		return nil, &types.CorruptChunkError{Address: desc.Address, Reason: fmt.Sprintf("decompression failed: %v", err)}
	}

	if uint64(len(plain)) != desc.PlainSize {
		return nil, &types.CorruptChunkError{Address: desc.Address, Reason: "plaintext size mismatch"}
	}

	return plain, nil
}

func compressWithLzma(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err = w.Write(data); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressWithLzma(data []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err = buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
