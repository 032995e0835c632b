// Copyright 2021-2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/redis/go-redis/v9"

	"github.com/offchainlabs/chunkposter/checkpoint/storage"
)

// Storage keeps RLP encoded items in a Redis sorted set scored by index.
// Items must encode their own index: two equal encodings cannot coexist in the set.
type Storage[Item any] struct {
	client redis.UniversalClient
	key    string
}

func NewStorage[Item any](client redis.UniversalClient, key string) (*Storage[Item], error) {
	if client == nil {
		return nil, errors.New("redis client is nil")
	}
	return &Storage[Item]{client: client, key: key}, nil
}

func (s *Storage[Item]) decodeItem(data string) (*Item, error) {
	var item Item
	if err := rlp.DecodeBytes([]byte(data), &item); err != nil {
		return nil, fmt.Errorf("decoding item: %w", err)
	}
	return &item, nil
}

func indexRange(index uint64) *redis.ZRangeBy {
	score := strconv.FormatUint(index, 10)
	return &redis.ZRangeBy{Min: score, Max: score}
}

func (s *Storage[Item]) Get(ctx context.Context, index uint64) (*Item, error) {
	members, err := s.client.ZRangeByScore(ctx, s.key, indexRange(index)).Result()
	if err != nil {
		return nil, err
	}
	switch len(members) {
	case 0:
		return nil, nil
	case 1:
		return s.decodeItem(members[0])
	default:
		return nil, fmt.Errorf("expected at most one item at index %v but found %v", index, len(members))
	}
}

func (s *Storage[Item]) GetContents(ctx context.Context, startingIndex uint64, maxResults uint64) ([]*Item, error) {
	if maxResults == 0 {
		return nil, nil
	}
	members, err := s.client.ZRangeByScore(ctx, s.key, &redis.ZRangeBy{
		Min:   strconv.FormatUint(startingIndex, 10),
		Max:   "+inf",
		Count: int64(maxResults),
	}).Result()
	if err != nil {
		return nil, err
	}
	var items []*Item
	for _, member := range members {
		item, err := s.decodeItem(member)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Storage[Item]) Put(ctx context.Context, index uint64, prev, new *Item) error {
	if new == nil {
		return fmt.Errorf("tried to insert nil item at index %v", index)
	}
	action := func(tx *redis.Tx) error {
		members, err := tx.ZRangeByScore(ctx, s.key, indexRange(index)).Result()
		if err != nil {
			return fmt.Errorf("reading item at index %v: %w", index, err)
		}
		if len(members) > 1 {
			return fmt.Errorf("expected at most one item at index %v but found %v", index, len(members))
		}
		if prev == nil {
			if len(members) != 0 {
				return fmt.Errorf("%w: expected no item at index %v", storage.ErrStorageRace, index)
			}
		} else {
			prevEnc, err := rlp.EncodeToBytes(prev)
			if err != nil {
				return fmt.Errorf("encoding previous item: %w", err)
			}
			if len(members) == 0 || members[0] != string(prevEnc) {
				return fmt.Errorf("%w: replacing different item than expected at index %v", storage.ErrStorageRace, index)
			}
		}
		newEnc, err := rlp.EncodeToBytes(new)
		if err != nil {
			return fmt.Errorf("encoding new item: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(members) == 1 {
				pipe.ZRem(ctx, s.key, members[0])
			}
			pipe.ZAdd(ctx, s.key, redis.Z{Score: float64(index), Member: string(newEnc)})
			return nil
		})
		return err
	}
	err := s.client.Watch(ctx, action, s.key)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: %w", storage.ErrStorageRace, err)
	}
	return err
}

func (s *Storage[Item]) Length(ctx context.Context) (int, error) {
	count, err := s.client.ZCard(ctx, s.key).Result()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *Storage[Item]) IsPersistent() bool {
	return true
}
