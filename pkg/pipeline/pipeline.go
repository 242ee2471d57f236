// Package pipeline orchestrates the full upload and download paths: split,
// self-encrypt, store, and the inverse. It owns the map-of-a-map recursion
// and the ordered reassembly of concurrently fetched chunks.
package pipeline

import (
	"bytes"
	"context"
	"crypto/sha512"
	"fmt"
	"io"

	"github.com/sealbox/sealbox/pkg/chunker"
	"github.com/sealbox/sealbox/pkg/datamap"
	"github.com/sealbox/sealbox/pkg/netclient"
	"github.com/sealbox/sealbox/pkg/selfencrypt"
	"github.com/sealbox/sealbox/pkg/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Config tunes the pipeline.
type Config struct {
	// Concurrency bounds simultaneous store requests. Defaults to 8.
	Concurrency int
	// MaxInlineBytes overrides the serialized-map size above which the map
	// is re-encrypted into an indirect map. Zero uses datamap.MaxInlineBytes.
	// Values below the chunker minimum are clamped up to it.
	MaxInlineBytes int
	// MaxChunkSize overrides the target chunk size. Zero uses
	// chunker.MaxChunkSize. Maps written with one target are still readable
	// with any other; descriptors carry all sizes explicitly.
	MaxChunkSize int
	// Logger is an optional logger. If nil, a default logrus logger is used.
	Logger *logrus.Logger
}

const defaultConcurrency = 8

// Pipeline wires the chunker, self-encryptor, and network client together.
type Pipeline struct {
	client      *netclient.Client
	log         *logrus.Logger
	concurrency int
	maxInline   int
	maxChunk    int
}

// New creates a Pipeline over the given client.
func New(client *netclient.Client, cfg Config) *Pipeline {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.MaxInlineBytes <= 0 {
		cfg.MaxInlineBytes = datamap.MaxInlineBytes
	}
	if cfg.MaxInlineBytes < chunker.MinSourceSize {
		cfg.MaxInlineBytes = chunker.MinSourceSize
	}
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = chunker.MaxChunkSize
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Pipeline{
		client:      client,
		log:         cfg.Logger,
		concurrency: cfg.Concurrency,
		maxInline:   cfg.MaxInlineBytes,
		maxChunk:    cfg.MaxChunkSize,
	}
}

// Upload transforms data into encrypted chunks on the store and returns the
// DataMap needed to get it back. Empty input is an error; input below the
// multi-chunk minimum is stored inline in the map without touching the
// store.
func (p *Pipeline) Upload(ctx context.Context, data []byte) (types.DataMap, error) {
	if len(data) == 0 {
		return types.DataMap{}, types.ErrEmptyInput
	}
	if len(data) < chunker.MinSourceSize {
		p.log.WithField("size", len(data)).Debug("input below multi-chunk minimum, storing inline")
		return datamap.BuildInline(data), nil
	}

	descriptors, err := p.encryptAndPut(ctx, data)
	if err != nil {
		return types.DataMap{}, err
	}
	dm := datamap.Build(descriptors, uint64(len(data)), types.HashData(data))

	// Shrink until the map fits inline: serialize, feed the serialization
	// back through the same split/encrypt/put transform, and hand the
	// caller the map pointing at the map.
	for depth := 0; ; depth++ {
		serialized, err := datamap.Marshal(dm)
		if err != nil {
			return types.DataMap{}, fmt.Errorf("pipeline: serializing data map: %w", err)
		}
		if len(serialized) <= p.maxInline {
			return dm, nil
		}
		if depth >= datamap.MaxDepth {
			return types.DataMap{}, types.ErrMapTooDeep
		}

		p.log.WithFields(logrus.Fields{
			"level":      dm.Level,
			"serialized": len(serialized),
			"chunks":     len(dm.Chunks),
		}).Debug("data map exceeds inline threshold, wrapping")

		descriptors, err := p.encryptAndPut(ctx, serialized)
		if err != nil {
			return types.DataMap{}, err
		}
		dm = datamap.Wrap(descriptors, uint64(len(serialized)), types.HashData(serialized), dm.Level)
	}
}

// encryptAndPut runs one level of the forward transform: split data, seal
// every chunk, and store them concurrently.
func (p *Pipeline) encryptAndPut(ctx context.Context, data []byte) ([]types.ChunkDescriptor, error) {
	plainChunks, err := chunker.SplitWithSize(data, p.maxChunk)
	if err != nil {
		return nil, err
	}

	encrypted, err := selfencrypt.EncryptChunks(plainChunks)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, ec := range encrypted {
		ec := ec
		g.Go(func() error {
			return p.client.Put(gctx, ec.Chunk)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	descriptors := make([]types.ChunkDescriptor, len(encrypted))
	for i, ec := range encrypted {
		descriptors[i] = ec.Descriptor
	}
	return descriptors, nil
}

// Download reconstructs the original byte stream described by dm.
func (p *Pipeline) Download(ctx context.Context, dm types.DataMap) ([]byte, error) {
	var buf bytes.Buffer
	if err := p.DownloadTo(ctx, dm, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DownloadTo reconstructs the stream described by dm and writes it to w in
// original order. Indirect (map-of-a-map) levels are resolved first; chunk
// fetches run concurrently and out-of-order arrivals are buffered so output
// is emitted strictly in sequence. The full-stream checksum recorded in the
// map is verified; on mismatch, everything already written to w must be
// treated as untrusted.
func (p *Pipeline) DownloadTo(ctx context.Context, dm types.DataMap, w io.Writer) error {
	dm, err := p.resolve(ctx, dm)
	if err != nil {
		return err
	}

	if dm.IsInline() {
		if uint64(len(dm.Inline)) != dm.TotalSize || types.HashData(dm.Inline) != dm.Checksum {
			return types.ErrAssemblyIntegrity
		}
		_, err := w.Write(dm.Inline)
		return err
	}

	return p.assemble(ctx, dm, w)
}

// resolve fetches and decodes indirect map levels until a level-0 map (or an
// inline one) remains. The recursion depth is capped.
func (p *Pipeline) resolve(ctx context.Context, dm types.DataMap) (types.DataMap, error) {
	for depth := 0; dm.IsIndirect(); depth++ {
		if depth >= datamap.MaxDepth {
			return types.DataMap{}, types.ErrMapTooDeep
		}

		var buf bytes.Buffer
		if err := p.assemble(ctx, dm, &buf); err != nil {
			return types.DataMap{}, fmt.Errorf("pipeline: resolving level %d map: %w", dm.Level, err)
		}

		inner, err := datamap.Unmarshal(buf.Bytes())
		if err != nil {
			return types.DataMap{}, err
		}
		if inner.Level >= dm.Level {
			return types.DataMap{}, fmt.Errorf("%w: level %d map decodes to level %d", types.ErrMalformedMap, dm.Level, inner.Level)
		}
		dm = inner
	}
	return dm, nil
}

type fetchedChunk struct {
	index int
	plain []byte
}

// assemble fetches and decrypts every chunk of a flat map concurrently and
// writes the plaintext to w in descriptor order, releasing buffers as the
// contiguous prefix advances.
func (p *Pipeline) assemble(ctx context.Context, dm types.DataMap, w io.Writer) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	results := make(chan fetchedChunk, p.concurrency)

	// Enqueue fetches from a separate goroutine: SetLimit makes g.Go block,
	// and the main goroutine has to keep draining results meanwhile.
	go func() {
		for _, desc := range dm.Chunks {
			desc := desc
			g.Go(func() error {
				cipherdata, err := p.client.Get(gctx, desc.Address)
				if err != nil {
					return err
				}
				plain, err := selfencrypt.DecryptChunk(desc, cipherdata)
				if err != nil {
					return err
				}
				select {
				case results <- fetchedChunk{index: int(desc.Index), plain: plain}:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
		g.Wait()
		close(results)
	}()

	hasher := sha512.New()
	var written uint64
	pending := make(map[int][]byte)
	next := 0
	var writeErr error

	for fc := range results {
		if writeErr != nil {
			continue // drain; the error is reported below
		}
		pending[fc.index] = fc.plain
		for {
			plain, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			if _, err := w.Write(plain); err != nil {
				writeErr = fmt.Errorf("pipeline: writing output: %w", err)
				break
			}
			hasher.Write(plain)
			written += uint64(len(plain))
			next++
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if writeErr != nil {
		return writeErr
	}

	if next != len(dm.Chunks) || written != dm.TotalSize {
		return types.ErrAssemblyIntegrity
	}
	var checksum types.Hash
	if err := checksum.HashFromBytes(hasher.Sum(nil)); err != nil {
		return err
	}
	if checksum != dm.Checksum {
		return types.ErrAssemblyIntegrity
	}

	return nil
}
