// Copyright 2021-2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

package storage

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

var (
	ErrStorageRace = errors.New("storage race error")

	CheckpointPrefix string = "c" // the prefix for all checkpoint keys
)

// UnitRecord is the durable progress of a single unit write. Dispatched means a signed
// transaction with TxHash may have reached the ledger; Settled means its outcome is known.
// DataHash is the keccak256 of the unit's bytes.
type UnitRecord struct {
	Index      uint64
	Nonce      uint64
	Size       uint64
	DataHash   common.Hash
	TxHash     common.Hash
	Dispatched bool
	Settled    bool
	Success    bool
	GasUsed    uint64
	FeePaid    *big.Int `rlp:"nil"`
	UpdatedAt  RlpTime
}

// Completed reports whether the unit's write is known to have succeeded.
func (r *UnitRecord) Completed() bool {
	return r != nil && r.Settled && r.Success
}

func (r *UnitRecord) String() string {
	return fmt.Sprintf("unit %d (nonce %d, tx %v, dispatched %v, settled %v, success %v)", r.Index, r.Nonce, r.TxHash, r.Dispatched, r.Settled, r.Success)
}

// EncodedEqual compares two items by their RLP encoding, treating nil as its own encoding.
func EncodedEqual[Item any](a, b *Item) (bool, error) {
	aEnc, err := rlp.EncodeToBytes(a)
	if err != nil {
		return false, fmt.Errorf("encoding item: %w", err)
	}
	bEnc, err := rlp.EncodeToBytes(b)
	if err != nil {
		return false, fmt.Errorf("encoding item: %w", err)
	}
	return bytes.Equal(aEnc, bEnc), nil
}
