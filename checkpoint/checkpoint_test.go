// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

package checkpoint

import (
	"context"
	"errors"
	"math/big"
	"path"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/offchainlabs/chunkposter/checkpoint/leveldb"
	"github.com/offchainlabs/chunkposter/checkpoint/redis"
	"github.com/offchainlabs/chunkposter/checkpoint/slice"
	"github.com/offchainlabs/chunkposter/checkpoint/storage"
	"github.com/offchainlabs/chunkposter/util/redisutil"
)

func newLevelDBStorage(t *testing.T) Storage {
	t.Helper()
	db, err := rawdb.NewLevelDBDatabase(path.Join(t.TempDir(), "level.db"), 0, 0, "default", false)
	if err != nil {
		t.Fatalf("NewLevelDBDatabase() unexpected error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return leveldb.New[storage.UnitRecord](db, []byte("test/"))
}

func newRedisStorage(ctx context.Context, t *testing.T) Storage {
	t.Helper()
	redisUrl := redisutil.CreateTestRedis(ctx, t)
	client, err := redisutil.RedisClientFromURL(redisUrl)
	if err != nil {
		t.Fatalf("RedisClientFromURL(%q) unexpected error: %v", redisUrl, err)
	}
	s, err := redis.NewStorage[storage.UnitRecord](client, "test")
	if err != nil {
		t.Fatalf("redis.NewStorage() unexpected error: %v", err)
	}
	return s
}

func storages(ctx context.Context, t *testing.T) map[string]Storage {
	t.Helper()
	return map[string]Storage{
		"levelDB": newLevelDBStorage(t),
		"slice":   slice.NewStorage[storage.UnitRecord](),
		"redis":   newRedisStorage(ctx, t),
	}
}

func record(index uint64) *storage.UnitRecord {
	return &storage.UnitRecord{
		Index:      index,
		Nonce:      100 + index,
		TxHash:     common.BigToHash(new(big.Int).SetUint64(index + 1)),
		Dispatched: true,
		UpdatedAt:  storage.RlpTime(time.Unix(1700000000+int64(index), 0)),
	}
}

func settled(r *storage.UnitRecord) *storage.UnitRecord {
	next := *r
	next.Settled = true
	next.Success = true
	next.GasUsed = 50_000
	next.FeePaid = big.NewInt(123456789)
	return &next
}

var recordComparer = cmp.Comparer(func(a, b *storage.UnitRecord) bool {
	same, err := storage.EncodedEqual(a, b)
	return err == nil && same
})

func TestGetContents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Units settle out of order, leaving holes.
	indices := []uint64{12, 3, 0, 9, 10, 4}
	for name, s := range storages(ctx, t) {
		for _, idx := range indices {
			require.NoError(t, s.Put(ctx, idx, nil, record(idx)), name)
		}
		for _, tc := range []struct {
			desc       string
			startIdx   uint64
			maxResults uint64
			want       []uint64
		}{
			{desc: "from start", startIdx: 0, maxResults: 3, want: []uint64{0, 3, 4}},
			{desc: "crossing digit boundary", startIdx: 5, maxResults: 2, want: []uint64{9, 10}},
			{desc: "max results past the end", startIdx: 10, maxResults: 10, want: []uint64{10, 12}},
			{desc: "no results requested", startIdx: 0, maxResults: 0, want: nil},
			{desc: "start past the end", startIdx: 13, maxResults: 5, want: nil},
		} {
			t.Run(name+"_"+tc.desc, func(t *testing.T) {
				values, err := s.GetContents(ctx, tc.startIdx, tc.maxResults)
				if err != nil {
					t.Fatalf("GetContents(%d, %d) unexpected error: %v", tc.startIdx, tc.maxResults, err)
				}
				var want []*storage.UnitRecord
				for _, idx := range tc.want {
					want = append(want, record(idx))
				}
				if diff := cmp.Diff(want, values, recordComparer); diff != "" {
					t.Errorf("GetContents(%d, %d) unexpected diff:\n%s", tc.startIdx, tc.maxResults, diff)
				}
			})
		}
		length, err := s.Length(ctx)
		require.NoError(t, err)
		require.Equal(t, len(indices), length, name)
	}
}

func TestPutCompareAndSwap(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for name, s := range storages(ctx, t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.Get(ctx, 7)
			require.NoError(t, err)
			require.Nil(t, got)

			dispatched := record(7)
			require.NoError(t, s.Put(ctx, 7, nil, dispatched))
			err = s.Put(ctx, 7, nil, dispatched)
			require.True(t, errors.Is(err, storage.ErrStorageRace), "second insert: %v", err)

			stale := record(7)
			stale.Nonce = 1
			err = s.Put(ctx, 7, stale, settled(dispatched))
			require.True(t, errors.Is(err, storage.ErrStorageRace), "stale prev: %v", err)

			require.NoError(t, s.Put(ctx, 7, dispatched, settled(dispatched)))
			got, err = s.Get(ctx, 7)
			require.NoError(t, err)
			if diff := cmp.Diff(settled(dispatched), got, recordComparer); diff != "" {
				t.Errorf("Get(7) unexpected diff:\n%s", diff)
			}
			require.True(t, got.Completed())

			length, err := s.Length(ctx)
			require.NoError(t, err)
			require.Equal(t, 1, length)
			require.Error(t, s.Put(ctx, 8, nil, nil))
		})
	}
}

func TestOpenLevelDBPersists(t *testing.T) {
	ctx := context.Background()
	config := DefaultConfig
	config.Storage = StorageLevelDB
	config.Directory = t.TempDir()
	imageID := big.NewInt(42)

	s, closeFn, err := Open(ctx, &config, imageID)
	require.NoError(t, err)
	require.True(t, s.IsPersistent())
	require.NoError(t, s.Put(ctx, 2, nil, settled(record(2))))
	require.NoError(t, closeFn())

	s, closeFn, err = Open(ctx, &config, imageID)
	require.NoError(t, err)
	got, err := s.Get(ctx, 2)
	require.NoError(t, err)
	require.True(t, got.Completed())
	require.NoError(t, closeFn())

	// Another image shares the database but not the records.
	other, closeFn, err := Open(ctx, &config, big.NewInt(420))
	require.NoError(t, err)
	defer closeFn()
	got, err = other.Get(ctx, 2)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestOpenRedisSeparatesImages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	config := DefaultConfig
	config.Storage = StorageRedis
	config.RedisUrl = redisutil.CreateTestRedis(ctx, t)

	first, closeFirst, err := Open(ctx, &config, big.NewInt(1))
	require.NoError(t, err)
	defer closeFirst()
	second, closeSecond, err := Open(ctx, &config, big.NewInt(10))
	require.NoError(t, err)
	defer closeSecond()

	require.NoError(t, first.Put(ctx, 0, nil, record(0)))
	got, err := second.Get(ctx, 0)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestConfigValidate(t *testing.T) {
	config := DefaultConfig
	require.NoError(t, config.Validate())
	config.Storage = StorageLevelDB
	require.Error(t, config.Validate())
	config.Storage = StorageRedis
	require.Error(t, config.Validate())
	config.Storage = "postgres"
	require.Error(t, config.Validate())
}
