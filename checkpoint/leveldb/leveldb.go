// Copyright 2021-2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

package leveldb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/offchainlabs/chunkposter/checkpoint/storage"
)

// Storage implements leveldb based checkpoint storage. Every key lives under the
// storage's prefix so several images can share one database.
type Storage[Item any] struct {
	// Lock is used for using iterator and WriteBatch.
	lock   sync.Mutex
	db     ethdb.Database
	prefix []byte
}

// Keys that an index scan must never reach should be lexicographically less
// than the minimum index (that is "0"), hence the prefix ".".
var countKey = []byte(".count_key")

func New[Item any](db ethdb.Database, prefix []byte) *Storage[Item] {
	return &Storage[Item]{db: db, prefix: prefix}
}

func (s *Storage[Item]) decodeItem(data []byte) (*Item, error) {
	var item Item
	if err := rlp.DecodeBytes(data, &item); err != nil {
		return nil, fmt.Errorf("decoding item: %w", err)
	}
	return &item, nil
}

func (s *Storage[Item]) key(k []byte) []byte {
	return append(append([]byte{}, s.prefix...), k...)
}

func idxToKey(idx uint64) []byte {
	return []byte(fmt.Sprintf("%019d", idx))
}

func (s *Storage[Item]) Get(_ context.Context, index uint64) (*Item, error) {
	val, err := s.db.Get(s.key(idxToKey(index)))
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s.decodeItem(val)
}

func (s *Storage[Item]) GetContents(_ context.Context, startingIndex uint64, maxResults uint64) ([]*Item, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	var res []*Item
	it := s.db.NewIterator(s.prefix, idxToKey(startingIndex))
	defer it.Release()
	for i := uint64(0); i < maxResults; i++ {
		if !it.Next() {
			break
		}
		item, err := s.decodeItem(it.Value())
		if err != nil {
			return nil, err
		}
		res = append(res, item)
	}
	return res, it.Error()
}

// valueAt returns the value at key. If it doesn't exist then it returns
// encoded bytes of nil.
func (s *Storage[Item]) valueAt(key []byte) ([]byte, bool, error) {
	val, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			enc, err := rlp.EncodeToBytes((*Item)(nil))
			return enc, false, err
		}
		return nil, false, err
	}
	return val, true, nil
}

func (s *Storage[Item]) Put(ctx context.Context, index uint64, prev *Item, new *Item) error {
	if new == nil {
		return fmt.Errorf("tried to insert nil item at index %v", index)
	}
	s.lock.Lock()
	defer s.lock.Unlock()

	key := s.key(idxToKey(index))
	stored, existed, err := s.valueAt(key)
	if err != nil {
		return err
	}
	prevEnc, err := rlp.EncodeToBytes(prev)
	if err != nil {
		return fmt.Errorf("encoding previous item: %w", err)
	}
	if !bytes.Equal(stored, prevEnc) {
		return fmt.Errorf("%w: replacing different item than expected at index %v", storage.ErrStorageRace, index)
	}
	newEnc, err := rlp.EncodeToBytes(new)
	if err != nil {
		return fmt.Errorf("encoding new item: %w", err)
	}
	b := s.db.NewBatch()
	if err := b.Put(key, newEnc); err != nil {
		return fmt.Errorf("updating value at: %v:  %w", key, err)
	}
	if !existed {
		cnt, err := s.Length(ctx)
		if err != nil {
			return err
		}
		if err := b.Put(s.key(countKey), []byte(strconv.Itoa(cnt+1))); err != nil {
			return fmt.Errorf("updating length counter: %w", err)
		}
	}
	return b.Write()
}

func (s *Storage[Item]) Length(context.Context) (int, error) {
	val, err := s.db.Get(s.key(countKey))
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return strconv.Atoi(string(val))
}

func (s *Storage[Item]) IsPersistent() bool {
	return true
}
