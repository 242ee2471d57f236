// Package datamap builds and serializes the metadata describing how to
// reconstruct original data from its encrypted chunks.
//
// The wire format is deterministic CBOR: the same DataMap always serializes
// to the same bytes. That matters because an oversized map is itself fed
// back through the chunk/encrypt pipeline, and reproducible addresses
// require reproducible input bytes.
package datamap

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/sealbox/sealbox/pkg/types"
)

const (
	// MaxInlineBytes is the serialized size above which a DataMap is not
	// handed back to the caller directly but re-encrypted into a smaller
	// map pointing at the map (roughly 400 descriptors).
	MaxInlineBytes = 64 * 1024

	// MaxDepth caps map-of-a-map recursion. Each wrap level shrinks the
	// map by orders of magnitude, so realistic data never comes close; the
	// cap only guards against malformed or adversarial maps.
	MaxDepth = 16
)

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Build assembles a level-0 DataMap from the descriptors produced during
// encryption. totalSize and checksum describe the original plaintext stream.
func Build(descriptors []types.ChunkDescriptor, totalSize uint64, checksum types.Hash) types.DataMap {
	return types.DataMap{
		TotalSize: totalSize,
		Checksum:  checksum,
		Level:     0,
		Chunks:    descriptors,
	}
}

// BuildInline assembles a DataMap carrying its payload directly. Used for
// data below the multi-chunk minimum.
func BuildInline(data []byte) types.DataMap {
	inline := make([]byte, len(data))
	copy(inline, data)
	return types.DataMap{
		TotalSize: uint64(len(data)),
		Checksum:  types.HashData(data),
		Inline:    inline,
	}
}

// Wrap assembles a DataMap one level above child: its descriptors decode to
// the serialized bytes of child rather than to user data.
func Wrap(descriptors []types.ChunkDescriptor, serializedSize uint64, checksum types.Hash, childLevel uint8) types.DataMap {
	return types.DataMap{
		TotalSize: serializedSize,
		Checksum:  checksum,
		Level:     childLevel + 1,
		Chunks:    descriptors,
	}
}

// NeedsShrink reports whether dm's serialized form exceeds the inline
// threshold and must be re-encrypted into an indirect map.
func NeedsShrink(dm types.DataMap) bool {
	serialized, err := Marshal(dm)
	if err != nil {
		// Marshal of a well-formed map cannot fail; treat failure as
		// nothing-to-shrink and let the later Marshal surface the error.
		return false
	}
	return len(serialized) > MaxInlineBytes
}

type wireDescriptor struct {
	Index      uint32 `cbor:"1,keyasint"`
	Address    []byte `cbor:"2,keyasint"`
	Derivation []byte `cbor:"3,keyasint"`
	PlainSize  uint64 `cbor:"4,keyasint"`
	CipherSize uint64 `cbor:"5,keyasint"`
}

type wireMap struct {
	TotalSize uint64           `cbor:"1,keyasint"`
	Checksum  []byte           `cbor:"2,keyasint"`
	Level     uint8            `cbor:"3,keyasint"`
	Chunks    []wireDescriptor `cbor:"4,keyasint,omitempty"`
	Inline    []byte           `cbor:"5,keyasint,omitempty"`
}

// Marshal serializes dm to its deterministic wire encoding.
func Marshal(dm types.DataMap) ([]byte, error) {
	wire := wireMap{
		TotalSize: dm.TotalSize,
		Checksum:  dm.Checksum.Bytes(),
		Level:     dm.Level,
		Inline:    dm.Inline,
	}
	if len(dm.Chunks) > 0 {
		wire.Chunks = make([]wireDescriptor, len(dm.Chunks))
		for i, desc := range dm.Chunks {
			wire.Chunks[i] = wireDescriptor{
				Index:      desc.Index,
				Address:    desc.Address.Bytes(),
				Derivation: desc.Derivation.Bytes(),
				PlainSize:  desc.PlainSize,
				CipherSize: desc.CipherSize,
			}
		}
	}
	return encMode.Marshal(wire)
}

// Unmarshal decodes and validates a serialized DataMap. Structural problems
// surface as ErrMalformedMap.
func Unmarshal(data []byte) (types.DataMap, error) {
	var wire wireMap
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return types.DataMap{}, fmt.Errorf("%w: %v", types.ErrMalformedMap, err)
	}

	dm := types.DataMap{
		TotalSize: wire.TotalSize,
		Level:     wire.Level,
		Inline:    wire.Inline,
	}
	if err := dm.Checksum.HashFromBytes(wire.Checksum); err != nil {
		return types.DataMap{}, fmt.Errorf("%w: checksum: %v", types.ErrMalformedMap, err)
	}

	if wire.Inline != nil {
		if len(wire.Chunks) > 0 {
			return types.DataMap{}, fmt.Errorf("%w: both inline payload and chunk descriptors present", types.ErrMalformedMap)
		}
		if wire.Level != 0 {
			return types.DataMap{}, fmt.Errorf("%w: inline payload with nonzero level", types.ErrMalformedMap)
		}
		if uint64(len(wire.Inline)) != wire.TotalSize {
			return types.DataMap{}, fmt.Errorf("%w: inline payload size disagrees with total size", types.ErrMalformedMap)
		}
		return dm, nil
	}

	if len(wire.Chunks) == 0 {
		return types.DataMap{}, fmt.Errorf("%w: no inline payload and no chunk descriptors", types.ErrMalformedMap)
	}

	dm.Chunks = make([]types.ChunkDescriptor, len(wire.Chunks))
	for i, wd := range wire.Chunks {
		if wd.Index != uint32(i) {
			return types.DataMap{}, fmt.Errorf("%w: descriptor %d carries index %d", types.ErrMalformedMap, i, wd.Index)
		}
		desc := types.ChunkDescriptor{
			Index:      wd.Index,
			PlainSize:  wd.PlainSize,
			CipherSize: wd.CipherSize,
		}
		if err := desc.Address.HashFromBytes(wd.Address); err != nil {
			return types.DataMap{}, fmt.Errorf("%w: descriptor %d address: %v", types.ErrMalformedMap, i, err)
		}
		if err := desc.Derivation.HashFromBytes(wd.Derivation); err != nil {
			return types.DataMap{}, fmt.Errorf("%w: descriptor %d derivation: %v", types.ErrMalformedMap, i, err)
		}
		dm.Chunks[i] = desc
	}

	var plainTotal uint64
	for _, desc := range dm.Chunks {
		plainTotal += desc.PlainSize
	}
	if plainTotal != dm.TotalSize {
		return types.DataMap{}, fmt.Errorf("%w: descriptor sizes sum to %d, total size is %d", types.ErrMalformedMap, plainTotal, dm.TotalSize)
	}

	return dm, nil
}
