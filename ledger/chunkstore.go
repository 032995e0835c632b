// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ChunkStoreABI is the interface of the on-chain image chunk store.
const ChunkStoreABI = `[
	{"inputs":[],"stateMutability":"nonpayable","type":"constructor"},
	{"anonymous":false,"inputs":[
		{"indexed":true,"internalType":"uint256","name":"imageId","type":"uint256"},
		{"indexed":true,"internalType":"uint256","name":"chunkId","type":"uint256"},
		{"indexed":false,"internalType":"uint256","name":"chunkSize","type":"uint256"}],
	 "name":"ChunkStored","type":"event"},
	{"inputs":[{"internalType":"uint256","name":"imageId","type":"uint256"}],"name":"getImage",
	 "outputs":[{"internalType":"bytes","name":"","type":"bytes"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"","type":"uint256"},{"internalType":"uint256","name":"","type":"uint256"}],
	 "name":"imageChunks","outputs":[{"internalType":"bytes","name":"","type":"bytes"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"owner","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"imageId","type":"uint256"},{"internalType":"bytes","name":"_dataChunk","type":"bytes"}],
	 "name":"storeImageChunk","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"","type":"uint256"}],"name":"totalChunks",
	 "outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const (
	storeChunkMethod = "storeImageChunk"
	chunkStoredEvent = "ChunkStored"
)

var ErrNotStoreChunkCall = errors.New("calldata is not a storeImageChunk call")

// ChunkStore encodes calls to, and decodes events from, a chunk store contract.
type ChunkStore struct {
	Address common.Address
	abi     abi.ABI
}

func NewChunkStore(address common.Address) (*ChunkStore, error) {
	parsed, err := abi.JSON(strings.NewReader(ChunkStoreABI))
	if err != nil {
		return nil, fmt.Errorf("parsing chunk store abi: %w", err)
	}
	return &ChunkStore{Address: address, abi: parsed}, nil
}

func (c *ChunkStore) PackStoreChunk(imageID *big.Int, chunk []byte) ([]byte, error) {
	return c.abi.Pack(storeChunkMethod, imageID, chunk)
}

// UnpackStoreChunk is the inverse of PackStoreChunk.
func (c *ChunkStore) UnpackStoreChunk(calldata []byte) (*big.Int, []byte, error) {
	method := c.abi.Methods[storeChunkMethod]
	if len(calldata) < 4 || !bytes.Equal(calldata[:4], method.ID) {
		return nil, nil, ErrNotStoreChunkCall
	}
	args, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("unpacking storeImageChunk arguments: %w", err)
	}
	imageID, ok := args[0].(*big.Int)
	if !ok {
		return nil, nil, ErrNotStoreChunkCall
	}
	chunk, ok := args[1].([]byte)
	if !ok {
		return nil, nil, ErrNotStoreChunkCall
	}
	return imageID, chunk, nil
}

type ChunkStored struct {
	ImageID   *big.Int
	ChunkID   *big.Int
	ChunkSize *big.Int
}

// ChunkStoredLog builds the log the contract emits for a stored chunk.
func (c *ChunkStore) ChunkStoredLog(event *ChunkStored) (*types.Log, error) {
	data, err := c.abi.Events[chunkStoredEvent].Inputs.NonIndexed().Pack(event.ChunkSize)
	if err != nil {
		return nil, err
	}
	return &types.Log{
		Address: c.Address,
		Topics: []common.Hash{
			c.abi.Events[chunkStoredEvent].ID,
			common.BigToHash(event.ImageID),
			common.BigToHash(event.ChunkID),
		},
		Data: data,
	}, nil
}

// ParseChunkStored returns the first ChunkStored event the contract emitted in receipt, or nil.
func (c *ChunkStore) ParseChunkStored(receipt *types.Receipt) (*ChunkStored, error) {
	event := c.abi.Events[chunkStoredEvent]
	for _, l := range receipt.Logs {
		if l.Address != c.Address || len(l.Topics) != 3 || l.Topics[0] != event.ID {
			continue
		}
		values, err := event.Inputs.NonIndexed().Unpack(l.Data)
		if err != nil {
			return nil, fmt.Errorf("unpacking %s data: %w", chunkStoredEvent, err)
		}
		size, ok := values[0].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("unexpected %s chunk size type %T", chunkStoredEvent, values[0])
		}
		return &ChunkStored{
			ImageID:   l.Topics[1].Big(),
			ChunkID:   l.Topics[2].Big(),
			ChunkSize: size,
		}, nil
	}
	return nil, nil
}
