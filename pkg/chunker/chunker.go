// Package chunker splits a byte stream into a deterministic sequence of
// plaintext chunks. Boundaries are a pure function of the total input size,
// never of the content, so identical inputs always produce identical chunk
// sequences. That property underlies deduplication and reproducible
// addresses further down the pipeline.
package chunker

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	boxochunker "github.com/ipfs/boxo/chunker"
)

const (
	// MaxChunkSize is the target upper bound for a single chunk.
	MaxChunkSize = 1024 * 1024

	// MinChunkCount is the smallest number of chunks the self-encryption
	// scheme can operate on; every chunk needs two neighbors.
	MinChunkCount = 3

	// MinSourceSize is the smallest input that goes through the full
	// pipeline. Anything below it is signaled to the caller via ErrTooSmall
	// and should be stored inline instead.
	MinSourceSize = 3 * 1024
)

var (
	// ErrEmptyInput is returned for zero-length input.
	ErrEmptyInput = errors.New("chunker: empty input")

	// ErrTooSmall is returned for input below MinSourceSize. The caller is
	// expected to take the inline single-buffer path; the input is never
	// silently padded.
	ErrTooSmall = errors.New("chunker: input below minimum multi-chunk size")
)

// Plan returns the chunk count and base chunk size for an input of
// totalSize bytes under the default MaxChunkSize target. All chunks have the
// base size except the last, which absorbs the division remainder (at most
// count-1 extra bytes).
func Plan(totalSize uint64) (count int, baseSize int) {
	return PlanWithSize(totalSize, MaxChunkSize)
}

// PlanWithSize is Plan with an explicit target chunk size. The boundaries
// stay a pure function of (totalSize, maxChunkSize), so determinism holds
// per configured target.
func PlanWithSize(totalSize uint64, maxChunkSize int) (count int, baseSize int) {
	if totalSize <= uint64(MinChunkCount)*uint64(maxChunkSize) {
		count = MinChunkCount
	} else {
		count = int((totalSize + uint64(maxChunkSize) - 1) / uint64(maxChunkSize))
	}
	baseSize = int(totalSize / uint64(count))
	return count, baseSize
}

// SizeOfChunk returns the plaintext size of chunk index for an input of
// totalSize bytes, per the same plan Split follows.
func SizeOfChunk(totalSize uint64, index int) int {
	count, baseSize := Plan(totalSize)
	if index < count-1 {
		return baseSize
	}
	return int(totalSize) - (count-1)*baseSize
}

// Split divides data into its planned chunk sequence under the default
// target chunk size. It returns ErrEmptyInput for empty data and ErrTooSmall
// for data below MinSourceSize.
func Split(data []byte) ([][]byte, error) {
	return SplitWithSize(data, MaxChunkSize)
}

// SplitWithSize is Split with an explicit target chunk size.
func SplitWithSize(data []byte, maxChunkSize int) ([][]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	if len(data) < MinSourceSize {
		return nil, ErrTooSmall
	}
	if maxChunkSize < MinSourceSize/MinChunkCount {
		return nil, fmt.Errorf("chunker: target chunk size %d below minimum %d", maxChunkSize, MinSourceSize/MinChunkCount)
	}

	count, baseSize := PlanWithSize(uint64(len(data)), maxChunkSize)

	splitter := boxochunker.NewSizeSplitter(bytes.NewReader(data), int64(baseSize))

	chunks := make([][]byte, 0, count+1)
	for {
		chunk, err := splitter.NextBytes()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("chunker: error reading chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}

	// The splitter emits fixed-size pieces plus a remainder when the size
	// does not divide evenly. Fold the remainder into the last planned chunk.
	for len(chunks) > count {
		tail := chunks[len(chunks)-1]
		chunks = chunks[:len(chunks)-1]
		last := chunks[len(chunks)-1]
		merged := make([]byte, 0, len(last)+len(tail))
		merged = append(merged, last...)
		merged = append(merged, tail...)
		chunks[len(chunks)-1] = merged
	}

	if len(chunks) != count {
		return nil, fmt.Errorf("chunker: produced %d chunks, planned %d", len(chunks), count)
	}

	return chunks, nil
}
