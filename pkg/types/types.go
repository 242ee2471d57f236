package types

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
)

// HashSize is the width of all content addresses and derivation material.
const HashSize = sha512.Size

// Hash is a SHA-512 digest. It serves two roles: the content address of a
// chunk (hash of its ciphertext) and the key-derivation material stored in
// a ChunkDescriptor.
type Hash [HashSize]byte

// HashData returns the SHA-512 digest of data.
func HashData(data []byte) Hash {
	return Hash(sha512.Sum512(data))
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) Bytes() []byte {
	return h[:]
}

// HashFromBytes sets h from a raw 64-byte slice.
func (h *Hash) HashFromBytes(b []byte) error {
	if len(b) != HashSize {
		return fmt.Errorf("invalid byte length for Hash: %d", len(b))
	}
	copy(h[:], b)
	return nil
}

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Chunk is an immutable ciphertext buffer identified by its content address.
// Address is always the SHA-512 hash of Data; a chunk is never mutated after
// creation.
type Chunk struct {
	Address Hash
	Data    []byte
}

// NewChunk builds a chunk from ciphertext, computing its address.
func NewChunk(cipherdata []byte) Chunk {
	return Chunk{
		Address: HashData(cipherdata),
		Data:    cipherdata,
	}
}

// Verify recomputes the hash of Data and compares it to Address.
func (c Chunk) Verify() bool {
	return HashData(c.Data) == c.Address
}

// ChunkDescriptor records everything needed to locate and decrypt one chunk.
// Derivation carries the full key material computed at encryption time, so a
// chunk can be decrypted without access to its neighbors' plaintext.
type ChunkDescriptor struct {
	// Index is the position of the chunk in the original split order.
	Index uint32

	// Address is the SHA-512 hash of the chunk's ciphertext, used to fetch
	// it from the store and to verify integrity on retrieval.
	Address Hash

	// Derivation is the combined neighbor-hash digest the cipher key and
	// nonce are sliced from.
	Derivation Hash

	// PlainSize is the plaintext length of the chunk in bytes.
	PlainSize uint64

	// CipherSize is the stored ciphertext length in bytes.
	CipherSize uint64
}

// DataMap is the sole artifact a caller must retain to reconstruct uploaded
// data. Exactly one of the following holds:
//
//   - Inline is non-nil: the payload was below the multi-chunk minimum and is
//     stored directly in the map, no chunks exist.
//   - Level == 0: concatenating the decrypted chunks in descriptor order
//     reproduces the original bytes.
//   - Level > 0: the chunks decode to the serialized DataMap one level down
//     (a map pointing at a map). TotalSize and Checksum then refer to those
//     serialized bytes, not to user data.
type DataMap struct {
	TotalSize uint64
	Checksum  Hash
	Level     uint8
	Chunks    []ChunkDescriptor
	Inline    []byte
}

// IsInline reports whether the map carries its payload directly.
func (dm DataMap) IsInline() bool {
	return dm.Inline != nil
}

// IsIndirect reports whether the map's chunks decode to another serialized
// DataMap rather than to user data.
func (dm DataMap) IsIndirect() bool {
	return dm.Level > 0
}

func (dm DataMap) String() string {
	if dm.IsInline() {
		return fmt.Sprintf("DataMap{inline, %d bytes}", dm.TotalSize)
	}
	return fmt.Sprintf("DataMap{level=%d, chunks=%d, %d bytes}", dm.Level, len(dm.Chunks), dm.TotalSize)
}
