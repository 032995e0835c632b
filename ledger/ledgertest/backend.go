// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

// Package ledgertest provides an in-memory ledger for exercising the chunk poster.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"

	"github.com/offchainlabs/chunkposter/ledger"
)

const (
	DefaultBaseGas    = 30_000
	DefaultGasPerByte = 700
)

var (
	ErrNonceTooLow      = errors.New("nonce too low")
	ErrAlreadyKnown     = errors.New("already known")
	ErrFeeCapTooLow     = errors.New("max fee per gas less than block base fee")
	ErrExecutionReverts = errors.New("execution reverted")
)

// Write is a transaction the backend accepted, in arrival order.
type Write struct {
	Tx      *types.Transaction
	From    common.Address
	ImageID *big.Int
	Chunk   []byte
}

type pendingReceipt struct {
	receipt *types.Receipt
	readyAt time.Time
}

// Backend is a single-account-aware fake ledger. It enforces nonce uniqueness, base fee
// pricing and gas limits, and mines accepted transactions immediately unless delayed.
// Hooks may be set before use to script failures.
type Backend struct {
	Store      *ledger.ChunkStore
	BaseGas    uint64
	GasPerByte uint64

	// HeaderErr fails HeaderByNumber when it returns non-nil.
	HeaderErr func() error
	// Reverts marks a chunk write as failing on execution and estimation.
	Reverts func(imageID *big.Int, chunk []byte) bool
	// RevertsOnlyOnExecution makes Reverts apply to mined transactions but not estimation.
	RevertsOnlyOnExecution bool
	// SendErr rejects a transaction at dispatch when it returns non-nil.
	SendErr func(tx *types.Transaction) error
	// LostSendErr fails SendTransaction after the transaction was accepted, as when the
	// node's reply never arrives.
	LostSendErr func(tx *types.Transaction) error
	// SettleDelay holds a mined receipt back for the returned duration.
	SettleDelay func(tx *types.Transaction) time.Duration

	mutex         sync.Mutex
	chainID       *big.Int
	signer        types.Signer
	baseFee       *big.Int
	blockNumber   uint64
	nonces        map[common.Address]uint64
	usedNonces    map[common.Address]map[uint64]bool
	receipts      map[common.Hash]*pendingReceipt
	writes        []Write
	chunkCounts   map[string]uint64
	estimateCalls int
}

func NewBackend(store *ledger.ChunkStore) *Backend {
	chainID := big.NewInt(1337)
	return &Backend{
		Store:       store,
		BaseGas:     DefaultBaseGas,
		GasPerByte:  DefaultGasPerByte,
		chainID:     chainID,
		signer:      types.LatestSignerForChainID(chainID),
		baseFee:     big.NewInt(params.GWei),
		nonces:      make(map[common.Address]uint64),
		usedNonces:  make(map[common.Address]map[uint64]bool),
		receipts:    make(map[common.Hash]*pendingReceipt),
		chunkCounts: make(map[string]uint64),
	}
}

var _ ledger.Client = (*Backend)(nil)

// SetBaseFee changes the base fee of the pending block. A nil base fee models a pre-London chain.
func (b *Backend) SetBaseFee(baseFee *big.Int) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.baseFee = baseFee
}

// SetNonce sets the account's next nonce, as if earlier transactions had been mined.
func (b *Backend) SetNonce(account common.Address, nonce uint64) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.nonces[account] = nonce
}

func (b *Backend) Writes() []Write {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return append([]Write(nil), b.writes...)
}

func (b *Backend) EstimateCalls() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.estimateCalls
}

// GasFor is the gas a chunk write of the given size consumes.
func (b *Backend) GasFor(chunkLen int) uint64 {
	return b.BaseGas + b.GasPerByte*uint64(chunkLen)
}

func (b *Backend) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.chainID), nil
}

func (b *Backend) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	if b.HeaderErr != nil {
		if err := b.HeaderErr(); err != nil {
			return nil, err
		}
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	header := &types.Header{Number: new(big.Int).SetUint64(b.blockNumber + 1)}
	if b.baseFee != nil {
		header.BaseFee = new(big.Int).Set(b.baseFee)
	}
	return header, nil
}

func (b *Backend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	next := b.nonces[account]
	for b.usedNonces[account][next] {
		next++
	}
	return next, nil
}

func (b *Backend) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	b.mutex.Lock()
	b.estimateCalls++
	baseFee := b.baseFee
	b.mutex.Unlock()
	if msg.To == nil || *msg.To != b.Store.Address {
		return 0, fmt.Errorf("unexpected call target %v", msg.To)
	}
	if msg.GasFeeCap != nil && baseFee != nil && msg.GasFeeCap.Cmp(baseFee) < 0 {
		return 0, ErrFeeCapTooLow
	}
	imageID, chunk, err := b.Store.UnpackStoreChunk(msg.Data)
	if err != nil {
		return 0, err
	}
	if b.Reverts != nil && !b.RevertsOnlyOnExecution && b.Reverts(imageID, chunk) {
		return 0, ErrExecutionReverts
	}
	return b.GasFor(len(chunk)), nil
}

func (b *Backend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	from, err := types.Sender(b.signer, tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if b.SendErr != nil {
		if err := b.SendErr(tx); err != nil {
			return err
		}
	}
	if tx.To() == nil || *tx.To() != b.Store.Address {
		return fmt.Errorf("unexpected transaction target %v", tx.To())
	}
	imageID, chunk, err := b.Store.UnpackStoreChunk(tx.Data())
	if err != nil {
		return err
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	if tx.Nonce() < b.nonces[from] {
		return ErrNonceTooLow
	}
	if b.usedNonces[from][tx.Nonce()] {
		return ErrAlreadyKnown
	}
	if b.baseFee != nil && tx.GasFeeCap().Cmp(b.baseFee) < 0 {
		return ErrFeeCapTooLow
	}
	if b.usedNonces[from] == nil {
		b.usedNonces[from] = make(map[uint64]bool)
	}
	b.usedNonces[from][tx.Nonce()] = true
	b.writes = append(b.writes, Write{Tx: tx, From: from, ImageID: imageID, Chunk: chunk})

	b.blockNumber++
	receipt := &types.Receipt{
		Type:              tx.Type(),
		Status:            types.ReceiptStatusSuccessful,
		TxHash:            tx.Hash(),
		BlockNumber:       new(big.Int).SetUint64(b.blockNumber),
		BlockHash:         crypto.Keccak256Hash(new(big.Int).SetUint64(b.blockNumber).Bytes()),
		EffectiveGasPrice: b.effectiveGasPrice(tx),
	}
	needed := b.GasFor(len(chunk))
	reverts := b.Reverts != nil && b.Reverts(imageID, chunk)
	switch {
	case tx.Gas() < needed:
		receipt.Status = types.ReceiptStatusFailed
		receipt.GasUsed = tx.Gas()
	case reverts:
		receipt.Status = types.ReceiptStatusFailed
		receipt.GasUsed = needed
	default:
		receipt.GasUsed = needed
		key := imageID.String()
		stored, err := b.Store.ChunkStoredLog(&ledger.ChunkStored{
			ImageID:   imageID,
			ChunkID:   new(big.Int).SetUint64(b.chunkCounts[key]),
			ChunkSize: big.NewInt(int64(len(chunk))),
		})
		if err != nil {
			return err
		}
		stored.TxHash = tx.Hash()
		receipt.Logs = []*types.Log{stored}
		b.chunkCounts[key]++
	}
	receipt.CumulativeGasUsed = receipt.GasUsed
	readyAt := time.Now()
	if b.SettleDelay != nil {
		readyAt = readyAt.Add(b.SettleDelay(tx))
	}
	b.receipts[tx.Hash()] = &pendingReceipt{receipt: receipt, readyAt: readyAt}
	if b.LostSendErr != nil {
		return b.LostSendErr(tx)
	}
	return nil
}

// the mutex must be held by the caller
func (b *Backend) effectiveGasPrice(tx *types.Transaction) *big.Int {
	if b.baseFee == nil {
		return new(big.Int).Set(tx.GasFeeCap())
	}
	price := new(big.Int).Add(b.baseFee, tx.GasTipCap())
	if price.Cmp(tx.GasFeeCap()) > 0 {
		price.Set(tx.GasFeeCap())
	}
	return price
}

func (b *Backend) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	pending, ok := b.receipts[txHash]
	if !ok || time.Now().Before(pending.readyAt) {
		return nil, ethereum.NotFound
	}
	return pending.receipt, nil
}

// StoredChunks returns the chunks successfully stored for imageID in sender nonce order,
// the order a chain includes one sender's transactions in.
func (b *Backend) StoredChunks(imageID *big.Int) [][]byte {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	var writes []Write
	for _, write := range b.writes {
		if write.ImageID.Cmp(imageID) != 0 {
			continue
		}
		if b.receipts[write.Tx.Hash()].receipt.Status == types.ReceiptStatusSuccessful {
			writes = append(writes, write)
		}
	}
	sort.SliceStable(writes, func(i, j int) bool { return writes[i].Tx.Nonce() < writes[j].Tx.Nonce() })
	chunks := make([][]byte, 0, len(writes))
	for _, write := range writes {
		chunks = append(chunks, write.Chunk)
	}
	return chunks
}
