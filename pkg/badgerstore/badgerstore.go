// Package badgerstore provides a disk-backed ChunkStore on top of badger.
// It stands in for the decentralized network store in examples, integration
// tests, and single-node deployments.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/sealbox/sealbox/pkg/types"
	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

// StoreConfig configures the on-disk store.
type StoreConfig struct {
	// Path is the badger data directory. It must exist.
	Path string
	// MinimumFreeGB refuses to open the store when the filesystem holding
	// Path has less free space. Zero disables the check.
	MinimumFreeGB uint
	// Logger is an optional logger. If nil, a default logrus logger is used.
	Logger *logrus.Logger
}

// Store is a ChunkStore persisting chunks in badger, keyed by address.
type Store struct {
	config       StoreConfig
	badgerDB     *badger.DB
	log          *logrus.Logger
	readCounter  uint64
	writeCounter uint64
}

// NewStore opens (or creates) the badger-backed store at config.Path.
func NewStore(config StoreConfig) (*Store, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	if err := config.check(); err != nil {
		return nil, fmt.Errorf("error checking config for badgerstore: %w", err)
	}

	opts := badger.DefaultOptions(config.Path)
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 100 // 100MB per value log file
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening badger at %s: %w", config.Path, err)
	}

	usage, err := disk.Usage(config.Path)
	if err == nil {
		config.Logger.WithFields(logrus.Fields{
			"path":     config.Path,
			"free_gb":  fmt.Sprintf("%.2f", float64(usage.Free)/1e9),
			"total_gb": fmt.Sprintf("%.2f", float64(usage.Total)/1e9),
			"used_pct": fmt.Sprintf("%.1f", usage.UsedPercent),
		}).Info("chunk store opened")
	}

	return &Store{
		config:   config,
		badgerDB: db,
		log:      config.Logger,
	}, nil
}

func (sc *StoreConfig) check() error {
	if sc.Path == "" {
		return errors.New("no path provided in configuration")
	}

	info, err := os.Stat(sc.Path)
	if os.IsNotExist(err) {
		return errors.New("path does not exist")
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("path is not a directory")
	}

	if sc.MinimumFreeGB > 0 {
		usage, err := disk.Usage(sc.Path)
		if err != nil {
			return fmt.Errorf("unable to read disk usage for %s: %w", sc.Path, err)
		}
		freeGB := usage.Free / (1024 * 1024 * 1024)
		if freeGB < uint64(sc.MinimumFreeGB) {
			return errors.New("not enough space available on disk")
		}
	}

	return nil
}

// Put stores the chunk under its address. Rewriting an existing address is
// harmless: content addressing guarantees the bytes are identical.
func (s *Store) Put(ctx context.Context, chunk types.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	atomic.AddUint64(&s.writeCounter, 1)

	err := s.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Set(chunk.Address.Bytes(), chunk.Data)
	})
	if err != nil {
		return fmt.Errorf("error writing chunk %s: %w", chunk.Address, err)
	}
	return nil
}

// Get returns the chunk bytes stored under address, or types.ErrNotFound.
func (s *Store) Get(ctx context.Context, address types.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	atomic.AddUint64(&s.readCounter, 1)

	var data []byte
	err := s.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(address.Bytes())
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error reading chunk %s: %w", address, err)
	}
	return data, nil
}

// Has reports whether a chunk exists under address.
func (s *Store) Has(ctx context.Context, address types.Hash) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	atomic.AddUint64(&s.readCounter, 1)

	err := s.badgerDB.View(func(txn *badger.Txn) error {
		_, err := txn.Get(address.Bytes())
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error checking chunk %s: %w", address, err)
	}
	return true, nil
}

// ReadOps returns the number of read operations since open.
func (s *Store) ReadOps() uint64 {
	return atomic.LoadUint64(&s.readCounter)
}

// WriteOps returns the number of write operations since open.
func (s *Store) WriteOps() uint64 {
	return atomic.LoadUint64(&s.writeCounter)
}

// Close flushes and closes the underlying badger database.
func (s *Store) Close() error {
	return s.badgerDB.Close()
}
