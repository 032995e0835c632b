// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

// Package checkpoint records per-unit write progress so an interrupted upload can resume
// without repeating a write that the ledger already accepted.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"

	"github.com/ethereum/go-ethereum/core/rawdb"
	flag "github.com/spf13/pflag"

	"github.com/offchainlabs/chunkposter/checkpoint/leveldb"
	"github.com/offchainlabs/chunkposter/checkpoint/redis"
	"github.com/offchainlabs/chunkposter/checkpoint/slice"
	"github.com/offchainlabs/chunkposter/checkpoint/storage"
	"github.com/offchainlabs/chunkposter/util/redisutil"
)

// Storage holds unit records keyed by unit index. Put is a compare-and-swap:
// it fails with storage.ErrStorageRace unless prev matches what is stored (nil for absent).
type Storage interface {
	Get(ctx context.Context, index uint64) (*storage.UnitRecord, error)
	GetContents(ctx context.Context, startingIndex uint64, maxResults uint64) ([]*storage.UnitRecord, error)
	Put(ctx context.Context, index uint64, prev, new *storage.UnitRecord) error
	Length(ctx context.Context) (int, error)
	IsPersistent() bool
}

var (
	_ Storage = (*slice.Storage[storage.UnitRecord])(nil)
	_ Storage = (*leveldb.Storage[storage.UnitRecord])(nil)
	_ Storage = (*redis.Storage[storage.UnitRecord])(nil)
)

const (
	StorageMemory  = "memory"
	StorageLevelDB = "leveldb"
	StorageRedis   = "redis"
)

type Config struct {
	Storage   string `koanf:"storage"`
	Directory string `koanf:"directory"`
	RedisUrl  string `koanf:"redis-url"`
	Prefix    string `koanf:"prefix"`
}

var DefaultConfig = Config{
	Storage:   StorageMemory,
	Directory: "",
	RedisUrl:  "",
	Prefix:    "chunkposter",
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".storage", DefaultConfig.Storage, "where unit progress is recorded (memory, leveldb or redis)")
	f.String(prefix+".directory", DefaultConfig.Directory, "directory of the leveldb checkpoint database")
	f.String(prefix+".redis-url", DefaultConfig.RedisUrl, "redis url for the redis checkpoint storage")
	f.String(prefix+".prefix", DefaultConfig.Prefix, "key prefix for checkpoint records")
}

func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case StorageLevelDB:
		if c.Directory == "" {
			return errors.New("leveldb checkpoint storage requires a directory")
		}
	case StorageRedis:
		if c.RedisUrl == "" {
			return errors.New("redis checkpoint storage requires a redis url")
		}
	default:
		return fmt.Errorf("unknown checkpoint storage %q", c.Storage)
	}
	return nil
}

// Open returns the storage holding imageID's records and a function releasing it.
func Open(ctx context.Context, config *Config, imageID *big.Int) (Storage, func() error, error) {
	if err := config.Validate(); err != nil {
		return nil, nil, err
	}
	noop := func() error { return nil }
	switch config.Storage {
	case StorageLevelDB:
		db, err := rawdb.NewLevelDBDatabase(filepath.Join(config.Directory, "checkpoint"), 0, 0, "checkpoint", false)
		if err != nil {
			return nil, nil, fmt.Errorf("opening checkpoint database: %w", err)
		}
		prefix := fmt.Sprintf("%s/%s/%s/", config.Prefix, storage.CheckpointPrefix, imageID)
		return leveldb.New[storage.UnitRecord](db, []byte(prefix)), db.Close, nil
	case StorageRedis:
		client, err := redisutil.RedisClientFromURL(config.RedisUrl)
		if err != nil {
			return nil, nil, err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connecting to checkpoint redis: %w", err)
		}
		key := fmt.Sprintf("%s:%s:%s", config.Prefix, storage.CheckpointPrefix, imageID)
		s, err := redis.NewStorage[storage.UnitRecord](client, key)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return s, client.Close, nil
	default:
		return slice.NewStorage[storage.UnitRecord](), noop, nil
	}
}
