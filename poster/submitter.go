// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

package poster

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/offchainlabs/chunkposter/ledger"
)

// errWriteReverted marks a settlement failure whose outcome is known: the write executed and failed.
var errWriteReverted = errors.New("write reverted")

// WriteRequest fully determines one chunk write. It is not modified once built.
type WriteRequest struct {
	ImageID   *big.Int
	UnitIndex uint64
	From      common.Address
	To        common.Address
	Calldata  []byte
	Nonce     uint64
	Fee       *FeeBid
	GasLimit  uint64
}

// WithGasLimit returns a copy of the request carrying the given gas limit.
func (r *WriteRequest) WithGasLimit(gasLimit uint64) *WriteRequest {
	req := *r
	req.GasLimit = gasLimit
	return &req
}

// Receipt is the settled outcome of a write as reported by the ledger.
type Receipt struct {
	TxHash        common.Hash
	UnitIndex     uint64
	Nonce         uint64
	CostUnits     uint64
	FeePaid       *big.Int
	BlockNumber   uint64
	LedgerChunkID *big.Int // nil if the receipt carried no ChunkStored event
	Success       bool
}

type Submitter struct {
	client         ledger.Client
	auth           *bind.TransactOpts
	store          *ledger.ChunkStore
	receiptTimeout time.Duration
	pollInterval   time.Duration
}

func NewSubmitter(client ledger.Client, auth *bind.TransactOpts, store *ledger.ChunkStore, config *Config) *Submitter {
	return &Submitter{
		client:         client,
		auth:           auth,
		store:          store,
		receiptTimeout: config.ReceiptTimeout,
		pollInterval:   config.ReceiptPollInterval,
	}
}

// Submit signs and sends exactly one transaction for req, then waits for it to settle.
// It never retries. beforeDispatch, if non-nil, is called with the signed transaction's
// hash right before sending; an error from it cancels the send. No receipt is returned
// on failure. Only ErrSettlementFailed implies the transaction reached the ledger.
func (s *Submitter) Submit(ctx context.Context, req *WriteRequest, beforeDispatch func(common.Hash) error) (*Receipt, error) {
	if req.GasLimit == 0 {
		return nil, fmt.Errorf("%w: write request for unit %d has no gas limit", ErrAuthorizationFailed, req.UnitIndex)
	}
	tx, err := s.authorize(req)
	if err != nil {
		return nil, err
	}
	if beforeDispatch != nil {
		if err := beforeDispatch(tx.Hash()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDispatchFailed, err)
		}
	}
	if err := s.client.SendTransaction(ctx, tx); err != nil {
		log.Warn("failed to send chunk write", "err", err, "index", req.UnitIndex, "nonce", req.Nonce, "feeCap", req.Fee.MaxFee)
		return nil, fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}
	log.Debug("sent chunk write", "index", req.UnitIndex, "nonce", req.Nonce, "hash", tx.Hash(), "feeCap", req.Fee.MaxFee, "gasLimit", req.GasLimit)
	return s.Settle(ctx, req.UnitIndex, req.Nonce, tx.Hash())
}

func (s *Submitter) authorize(req *WriteRequest) (*types.Transaction, error) {
	if s.auth == nil || s.auth.Signer == nil {
		return nil, fmt.Errorf("%w: no signer configured", ErrAuthorizationFailed)
	}
	if req.From != s.auth.From {
		return nil, fmt.Errorf("%w: request sender %v does not match signer %v", ErrAuthorizationFailed, req.From, s.auth.From)
	}
	if req.Fee == nil {
		return nil, fmt.Errorf("%w: write request for unit %d has no fee bid", ErrAuthorizationFailed, req.UnitIndex)
	}
	to := req.To
	inner := types.DynamicFeeTx{
		Nonce:     req.Nonce,
		GasTipCap: new(big.Int).Set(req.Fee.PriorityFee),
		GasFeeCap: new(big.Int).Set(req.Fee.MaxFee),
		Gas:       req.GasLimit,
		To:        &to,
		Value:     new(big.Int),
		Data:      req.Calldata,
	}
	tx, err := s.auth.Signer(s.auth.From, types.NewTx(&inner))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthorizationFailed, err)
	}
	return tx, nil
}

// Settle waits, up to the receipt timeout, for txHash to be included and converts the
// ledger's receipt. A reverted write is a settlement failure.
func (s *Submitter) Settle(ctx context.Context, unitIndex, nonce uint64, txHash common.Hash) (*Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.receiptTimeout)
	defer cancel()
	receipt, err := ledger.WaitForReceipt(waitCtx, s.client, txHash, s.pollInterval)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: no receipt for %v after %v: %w", ErrSettlementFailed, txHash, s.receiptTimeout, err)
		}
		return nil, fmt.Errorf("%w: waiting for %v: %w", ErrSettlementFailed, txHash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %w: %v in block %v using %d gas", ErrSettlementFailed, errWriteReverted, txHash, receipt.BlockNumber, receipt.GasUsed)
	}
	result := &Receipt{
		TxHash:    txHash,
		UnitIndex: unitIndex,
		Nonce:     nonce,
		CostUnits: receipt.GasUsed,
		Success:   true,
	}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if receipt.EffectiveGasPrice != nil {
		result.FeePaid = new(big.Int).Mul(receipt.EffectiveGasPrice, new(big.Int).SetUint64(receipt.GasUsed))
	} else {
		result.FeePaid = new(big.Int)
	}
	if s.store != nil {
		stored, err := s.store.ParseChunkStored(receipt)
		if err != nil {
			log.Warn("failed to parse ChunkStored event", "hash", txHash, "err", err)
		} else if stored != nil {
			result.LedgerChunkID = stored.ChunkID
		}
	}
	return result, nil
}
