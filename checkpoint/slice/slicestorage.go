// Copyright 2021-2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

package slice

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/offchainlabs/chunkposter/checkpoint/storage"
)

// Storage keeps items in memory, indexed sparsely. It does not survive the process.
type Storage[Item any] struct {
	mutex sync.Mutex
	items map[uint64]*Item
}

func NewStorage[Item any]() *Storage[Item] {
	return &Storage[Item]{items: make(map[uint64]*Item)}
}

func (s *Storage[Item]) Get(_ context.Context, index uint64) (*Item, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.items[index], nil
}

func (s *Storage[Item]) GetContents(_ context.Context, startingIndex uint64, maxResults uint64) ([]*Item, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var indices []uint64
	for idx := range s.items {
		if idx >= startingIndex {
			indices = append(indices, idx)
		}
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	if uint64(len(indices)) > maxResults {
		indices = indices[:maxResults]
	}
	var res []*Item
	for _, idx := range indices {
		res = append(res, s.items[idx])
	}
	return res, nil
}

func (s *Storage[Item]) Put(_ context.Context, index uint64, prevItem *Item, newItem *Item) error {
	if newItem == nil {
		return fmt.Errorf("tried to insert nil item at index %v", index)
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	same, err := storage.EncodedEqual(prevItem, s.items[index])
	if err != nil {
		return err
	}
	if !same {
		return fmt.Errorf("%w: replacing different item than expected at index %v", storage.ErrStorageRace, index)
	}
	s.items[index] = newItem
	return nil
}

func (s *Storage[Item]) Length(context.Context) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.items), nil
}

func (s *Storage[Item]) IsPersistent() bool {
	return false
}
