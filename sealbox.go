// Package sealbox turns arbitrary byte streams into immutable,
// content-addressed, self-encrypted chunks on a decentralized store, and
// reconstructs the original bytes from the DataMap the upload hands back.
//
// Encryption keys are derived from the plaintext itself (hashes of each
// chunk's cyclic neighbors), so no key material is ever stored or
// transmitted, and identical data always produces identical chunks and
// addresses. The DataMap is the only artifact a caller must retain.
package sealbox

import (
	"bytes"
	"context"
	"io"

	"github.com/sealbox/sealbox/pkg/badgerstore"
	"github.com/sealbox/sealbox/pkg/netclient"
	"github.com/sealbox/sealbox/pkg/pipeline"
	"github.com/sealbox/sealbox/pkg/types"
)

// Sealbox is the main handle. It owns the network client and the transform
// pipeline; the underlying chunk store is either caller-provided (New) or a
// badger-backed local store (Open).
type Sealbox struct {
	config   Config
	pipeline *pipeline.Pipeline
	store    netclient.ChunkStore
	local    *badgerstore.Store
}

// New creates a Sealbox over an existing chunk store.
func New(store netclient.ChunkStore, config Config) *Sealbox {
	config.applyDefaults()

	client := netclient.New(store, netclient.Config{
		MaxAttempts:    config.MaxAttempts,
		BaseBackoff:    config.BaseBackoff,
		RequestTimeout: config.RequestTimeout,
		Logger:         config.Logger,
	})

	return &Sealbox{
		config: config,
		store:  store,
		pipeline: pipeline.New(client, pipeline.Config{
			Concurrency: config.Concurrency,
			Logger:      config.Logger,
		}),
	}
}

// Open creates a Sealbox backed by a badger store at config.StorePath.
func Open(config Config) (*Sealbox, error) {
	config.applyDefaults()

	local, err := badgerstore.NewStore(badgerstore.StoreConfig{
		Path:          config.StorePath,
		MinimumFreeGB: config.MinimumFreeGB,
		Logger:        config.Logger,
	})
	if err != nil {
		return nil, err
	}

	sb := New(local, config)
	sb.local = local
	return sb, nil
}

// Upload transforms data into encrypted chunks on the store and returns the
// DataMap required to reconstruct it.
func (sb *Sealbox) Upload(ctx context.Context, data []byte) (types.DataMap, error) {
	return sb.pipeline.Upload(ctx, data)
}

// UploadReader reads r to its end and uploads the content.
func (sb *Sealbox) UploadReader(ctx context.Context, r io.Reader) (types.DataMap, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return types.DataMap{}, err
	}
	return sb.Upload(ctx, buf.Bytes())
}

// Download reconstructs the byte stream described by dm.
func (sb *Sealbox) Download(ctx context.Context, dm types.DataMap) ([]byte, error) {
	return sb.pipeline.Download(ctx, dm)
}

// DownloadTo reconstructs the stream described by dm and writes it to w in
// original order, streaming chunks as the contiguous prefix completes.
func (sb *Sealbox) DownloadTo(ctx context.Context, dm types.DataMap, w io.Writer) error {
	return sb.pipeline.DownloadTo(ctx, dm, w)
}

// Close releases the local store if Open created one. A Sealbox over a
// caller-provided store has nothing to close.
func (sb *Sealbox) Close() error {
	if sb.local != nil {
		return sb.local.Close()
	}
	return nil
}
