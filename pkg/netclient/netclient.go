// Package netclient performs content-addressed put/get against a
// decentralized chunk store. It layers retry with bounded exponential
// backoff, deduplication, in-flight request coalescing, and integrity
// verification on top of the raw ChunkStore interface.
package netclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sealbox/sealbox/pkg/types"
	"github.com/sirupsen/logrus"
)

// ChunkStore is the boundary to the underlying decentralized store. The
// store must report missing content with types.ErrNotFound and mark
// retryable conditions by wrapping them in types.TransientError; every other
// error is treated as terminal.
//
// Put is idempotent: storing the same address twice is harmless because
// equal addresses imply equal content.
type ChunkStore interface {
	Put(ctx context.Context, chunk types.Chunk) error
	Get(ctx context.Context, address types.Hash) ([]byte, error)
	Has(ctx context.Context, address types.Hash) (bool, error)
}

// Config tunes the client's retry and timeout behavior.
type Config struct {
	// MaxAttempts is the number of tries per request before the transient
	// failure is surfaced as terminal. Defaults to 3.
	MaxAttempts int
	// BaseBackoff is the delay before the first retry; it doubles on each
	// further attempt. Defaults to 250ms.
	BaseBackoff time.Duration
	// RequestTimeout bounds each individual store call. Zero means no
	// per-request timeout beyond the caller's context.
	RequestTimeout time.Duration
	// Logger is an optional logger. If nil, a default logrus logger is used.
	Logger *logrus.Logger
}

const (
	defaultMaxAttempts = 3
	defaultBaseBackoff = 250 * time.Millisecond
)

// Client wraps a ChunkStore with the retry, dedup, and verification policy.
// It keeps no persistent state beyond the in-flight request table.
type Client struct {
	store ChunkStore
	cfg   Config
	log   *logrus.Logger

	inflightMu sync.Mutex
	inflight   map[types.Hash]*sync.WaitGroup
}

// New creates a Client over the given store.
func New(store ChunkStore, cfg Config) *Client {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Client{
		store:    store,
		cfg:      cfg,
		log:      cfg.Logger,
		inflight: make(map[types.Hash]*sync.WaitGroup),
	}
}

// Put uploads a chunk unless the store already holds its address. Concurrent
// puts of the same address are coalesced: one request goes out, the rest
// wait for it.
func (c *Client) Put(ctx context.Context, chunk types.Chunk) error {
	for {
		c.inflightMu.Lock()
		if wg, ok := c.inflight[chunk.Address]; ok {
			c.inflightMu.Unlock()
			wg.Wait()
			// The winning request finished (or failed); re-check existence
			// rather than assuming its outcome.
			continue
		}
		wg := &sync.WaitGroup{}
		wg.Add(1)
		c.inflight[chunk.Address] = wg
		c.inflightMu.Unlock()

		err := c.putOnce(ctx, chunk)

		c.inflightMu.Lock()
		delete(c.inflight, chunk.Address)
		c.inflightMu.Unlock()
		wg.Done()

		return err
	}
}

func (c *Client) putOnce(ctx context.Context, chunk types.Chunk) error {
	exists, err := withRetry(c, ctx, "has", chunk.Address, func(ctx context.Context) (bool, error) {
		return c.store.Has(ctx, chunk.Address)
	})
	if err == nil && exists {
		c.log.WithField("address", chunk.Address.String()).Debug("chunk already stored, skipping upload")
		return nil
	}
	// An existence check failure is not fatal: content-addressed puts are
	// idempotent, so fall through and upload.

	_, err = withRetry(c, ctx, "put", chunk.Address, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.store.Put(ctx, chunk)
	})
	return err
}

// Get fetches the chunk stored under address and verifies the returned bytes
// against it. A hash mismatch surfaces as CorruptChunkError, never as a
// retry and never silently.
func (c *Client) Get(ctx context.Context, address types.Hash) ([]byte, error) {
	data, err := withRetry(c, ctx, "get", address, func(ctx context.Context) ([]byte, error) {
		return c.store.Get(ctx, address)
	})
	if err != nil {
		return nil, err
	}

	if types.HashData(data) != address {
		return nil, &types.CorruptChunkError{Address: address, Reason: "store returned bytes that do not hash to the requested address"}
	}

	return data, nil
}

// Has queries existence by address with the usual retry policy.
func (c *Client) Has(ctx context.Context, address types.Hash) (bool, error) {
	return withRetry(c, ctx, "has", address, func(ctx context.Context) (bool, error) {
		return c.store.Has(ctx, address)
	})
}

// withRetry runs op with bounded exponential backoff on transient errors.
// Terminal errors return immediately; exhausting the attempt budget returns
// the last transient error.
func withRetry[T any](c *Client, ctx context.Context, kind string, address types.Hash, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.cfg.BaseBackoff * (1 << (attempt - 1))
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}
		}

		opCtx := ctx
		var cancel context.CancelFunc
		if c.cfg.RequestTimeout > 0 {
			opCtx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		}
		result, err := op(opCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !types.IsTransient(err) {
			return zero, err
		}

		c.log.WithFields(logrus.Fields{
			"op":      kind,
			"address": address.String(),
			"attempt": attempt + 1,
		}).Warnf("transient store failure, retrying: %v", err)
	}

	return zero, fmt.Errorf("netclient: %s %s failed after %d attempts: %w", kind, address, c.cfg.MaxAttempts, lastErr)
}
