// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

package poster

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/offchainlabs/chunkposter/checkpoint"
	"github.com/offchainlabs/chunkposter/checkpoint/storage"
	"github.com/offchainlabs/chunkposter/chunker"
	"github.com/offchainlabs/chunkposter/ledger"
)

var (
	unitsSucceededCounter = metrics.NewRegisteredCounter("chunkposter/units/succeeded", nil)
	unitsFailedCounter    = metrics.NewRegisteredCounter("chunkposter/units/failed", nil)
	unitsResumedCounter   = metrics.NewRegisteredCounter("chunkposter/units/resumed", nil)
	unitsMisplacedCounter = metrics.NewRegisteredCounter("chunkposter/units/misplaced", nil)
	gasUsedCounter        = metrics.NewRegisteredCounter("chunkposter/gas/used", nil)
	nonceGapsCounter      = metrics.NewRegisteredCounter("chunkposter/nonce/gaps", nil)
	unitDurationTimer     = metrics.NewRegisteredTimer("chunkposter/unit/duration", nil)
	lastCompletedGauge    = metrics.NewRegisteredGauge("chunkposter/unit/lastcompleted", nil)
)

// UnitResult is what happened to one unit during a run.
type UnitResult struct {
	Index      uint64
	Size       int
	Nonce      uint64
	TxHash     common.Hash
	Dispatched bool // a signed write was handed to the ledger
	Resumed    bool // completed by an earlier run
	Receipt    *Receipt
	Duration   time.Duration
	Err        error
}

// Summary describes one run. It is always produced, whether or not the run completed.
type Summary struct {
	ImageID            *big.Int
	UnitsTotal         int
	UnitsAttempted     int
	UnitsSucceeded     int
	UnitsResumed       int
	TotalCost          uint64
	TotalFeeWei        *big.Int
	Aborted            bool
	AbortedAt          int64
	LastCompletedIndex int64
	SequenceGaps       []uint64
	Duration           time.Duration
	Units              []UnitResult
	Err                error
}

// Completed reports whether every unit of the payload is now on the ledger.
func (s *Summary) Completed() bool {
	return !s.Aborted && s.Err == nil && s.UnitsSucceeded+s.UnitsResumed == s.UnitsTotal
}

func (s *Summary) tally() {
	for i := range s.Units {
		unit := &s.Units[i]
		if unit.Dispatched {
			s.UnitsAttempted++
		}
		if unit.Resumed {
			s.UnitsResumed++
			s.LastCompletedIndex = max(s.LastCompletedIndex, int64(unit.Index))
		}
		if unit.Receipt != nil && unit.Receipt.Success {
			s.UnitsSucceeded++
			s.TotalCost += unit.Receipt.CostUnits
			if unit.Receipt.FeePaid != nil {
				s.TotalFeeWei.Add(s.TotalFeeWei, unit.Receipt.FeePaid)
			}
			s.LastCompletedIndex = max(s.LastCompletedIndex, int64(unit.Index))
		}
	}
}

// Pipeline uploads payloads chunk by chunk from a single sender.
type Pipeline struct {
	config      *Config
	client      ledger.Client
	auth        *bind.TransactOpts
	store       *ledger.ChunkStore
	checkpoints checkpoint.Storage
}

// NewPipeline returns a pipeline; checkpoints may be nil to disable recording progress.
func NewPipeline(config *Config, client ledger.Client, auth *bind.TransactOpts, store *ledger.ChunkStore, checkpoints checkpoint.Storage) *Pipeline {
	return &Pipeline{
		config:      config,
		client:      client,
		auth:        auth,
		store:       store,
		checkpoints: checkpoints,
	}
}

// run is the state owned by a single Pipeline.Run.
type run struct {
	*Pipeline
	summary   *Summary
	sequencer *Sequencer
	fees      *FeeOracle
	gas       *GasEstimator
	submitter *Submitter

	checkpointMutex sync.Mutex
	records         map[uint64]*storage.UnitRecord
}

// Run uploads payload as imageID. It never returns an error: failures are reported in the summary.
func (p *Pipeline) Run(ctx context.Context, imageID *big.Int, payload []byte) *Summary {
	started := time.Now()
	summary := &Summary{
		ImageID:            imageID,
		AbortedAt:          -1,
		LastCompletedIndex: -1,
		TotalFeeWei:        new(big.Int),
	}
	r := &run{
		Pipeline: p,
		summary:  summary,
		records:  make(map[uint64]*storage.UnitRecord),
	}
	pending, err := r.prepare(ctx, imageID, payload)
	if err != nil {
		summary.Aborted = true
		summary.Err = err
	} else if len(pending) > 0 {
		result := NewBatchScheduler(r.sequencer, p.config.BatchSize).Run(ctx, pending, r.writeUnit)
		summary.Aborted = result.Aborted
		summary.AbortedAt = result.AbortedAt
		summary.Err = result.Err
	}
	summary.tally()
	if r.sequencer != nil {
		summary.SequenceGaps = r.sequencer.Gaps()
	}
	summary.Duration = time.Since(started)
	if summary.LastCompletedIndex >= 0 {
		lastCompletedGauge.Update(summary.LastCompletedIndex)
	}
	logSummary(summary)
	return summary
}

func (r *run) prepare(ctx context.Context, imageID *big.Int, payload []byte) ([]chunker.Unit, error) {
	if err := r.config.Validate(); err != nil {
		return nil, err
	}
	switch {
	case r.client == nil:
		return nil, fmt.Errorf("%w: no ledger client", ErrConfigurationInvalid)
	case r.auth == nil:
		return nil, fmt.Errorf("%w: no sender credentials", ErrConfigurationInvalid)
	case r.store == nil:
		return nil, fmt.Errorf("%w: no chunk store contract", ErrConfigurationInvalid)
	case imageID == nil || imageID.Sign() < 0 || imageID.BitLen() > 256:
		return nil, fmt.Errorf("%w: image id %v is not a uint256", ErrConfigurationInvalid, imageID)
	}
	units, err := chunker.Split(imageID, payload, r.config.UnitSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigurationInvalid, err)
	}
	r.summary.UnitsTotal = len(units)
	r.summary.Units = make([]UnitResult, len(units))
	for i, unit := range units {
		r.summary.Units[i] = UnitResult{Index: unit.Index, Size: unit.Len()}
	}
	pending, err := r.loadCheckpoints(ctx, units)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}
	r.sequencer, err = NewSequencer(ctx, r.client, r.auth.From)
	if err != nil {
		return nil, err
	}
	r.fees = NewFeeOracle(r.client, r.config)
	r.gas = NewGasEstimator(r.client, r.config)
	r.submitter = NewSubmitter(r.client, r.auth, r.store, r.config)
	log.Info("starting chunk upload", "image", imageID, "bytes", len(payload), "units", len(units), "pending", len(pending), "from", r.auth.From, "firstNonce", r.sequencer.Peek())
	return pending, nil
}

// loadCheckpoints returns the units that still need writing. Records of earlier runs
// are only trusted when resuming; otherwise they are overwritten. The ledger appends
// chunks in the order they settle, so a resumed run may only skip a prefix of the payload.
func (r *run) loadCheckpoints(ctx context.Context, units []chunker.Unit) ([]chunker.Unit, error) {
	if r.checkpoints == nil {
		return units, nil
	}
	count, err := r.checkpoints.Length(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting checkpoints: %w", err)
	}
	if count == 0 {
		return units, nil
	}
	contents, err := r.checkpoints.GetContents(ctx, 0, uint64(count))
	if err != nil {
		return nil, fmt.Errorf("reading checkpoints: %w", err)
	}
	for _, rec := range contents {
		if rec.Index >= uint64(len(units)) {
			if r.config.Resume {
				return nil, fmt.Errorf("%w: checkpoint exists for unit %d but the payload has %d units, was the payload changed?", ErrConfigurationInvalid, rec.Index, len(units))
			}
			continue
		}
		r.records[rec.Index] = rec
	}

	var pending []chunker.Unit
	var skipped []*storage.UnitRecord
	var outOfOrder []uint64
	for _, unit := range units {
		rec := r.records[unit.Index]
		if rec == nil || !r.config.Resume {
			pending = append(pending, unit)
			continue
		}
		if rec.Size != uint64(unit.Len()) {
			return nil, fmt.Errorf("%w: checkpoint of unit %d has %d bytes but the unit has %d, was unit-size changed?", ErrConfigurationInvalid, unit.Index, rec.Size, unit.Len())
		}
		if rec.DataHash != crypto.Keccak256Hash(unit.Data) {
			return nil, fmt.Errorf("%w: checkpoint of unit %d was written for different data, was the payload changed?", ErrConfigurationInvalid, unit.Index)
		}
		if !rec.Settled && rec.TxHash != (common.Hash{}) {
			rec, err = r.resolve(ctx, rec)
			if err != nil {
				return nil, err
			}
		}
		switch {
		case !rec.Completed():
			pending = append(pending, unit)
		case len(pending) > 0:
			outOfOrder = append(outOfOrder, unit.Index)
		default:
			skipped = append(skipped, rec)
		}
	}
	if len(outOfOrder) > 0 {
		return nil, fmt.Errorf("%w: units %v were stored while unit %d is missing, upload the payload under a new image id", ErrOutOfOrder, outOfOrder, pending[0].Index)
	}
	for _, rec := range skipped {
		result := &r.summary.Units[rec.Index]
		result.Resumed = true
		result.Nonce = rec.Nonce
		result.TxHash = rec.TxHash
		unitsResumedCounter.Inc(1)
		log.Debug("skipping unit written by an earlier run", "index", rec.Index, "nonce", rec.Nonce, "hash", rec.TxHash)
	}
	return pending, nil
}

// resolve looks up the outcome of a write an earlier run signed but never saw settle.
// A write the ledger has no receipt for may still be pending, so writing the unit again
// could store it twice. Only a write whose send failed and whose nonce is still unused
// is known not to have reached the ledger; that record is returned unchanged.
func (r *run) resolve(ctx context.Context, rec *storage.UnitRecord) (*storage.UnitRecord, error) {
	receipt, err := r.client.TransactionReceipt(ctx, rec.TxHash)
	if errors.Is(err, ethereum.NotFound) {
		if rec.Dispatched {
			return nil, newUnitError(rec.Index, rec.Nonce, ErrUnresolvedWrite, fmt.Errorf("no receipt for %v", rec.TxHash))
		}
		next, err := r.client.PendingNonceAt(ctx, r.auth.From)
		if err != nil {
			return nil, fmt.Errorf("%w: fetching pending nonce: %w", ErrLedgerUnavailable, err)
		}
		if rec.Nonce < next {
			return nil, newUnitError(rec.Index, rec.Nonce, ErrUnresolvedWrite, fmt.Errorf("send of %v failed but nonce %d has since been used", rec.TxHash, rec.Nonce))
		}
		return rec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fetching receipt of %v: %w", ErrLedgerUnavailable, rec.TxHash, err)
	}
	update := *rec
	update.Dispatched = true
	update.Settled = true
	update.Success = receipt.Status == types.ReceiptStatusSuccessful
	update.GasUsed = receipt.GasUsed
	if receipt.EffectiveGasPrice != nil {
		update.FeePaid = new(big.Int).Mul(receipt.EffectiveGasPrice, new(big.Int).SetUint64(receipt.GasUsed))
	}
	if err := r.record(ctx, &update); err != nil {
		return nil, fmt.Errorf("checkpointing resolved unit %d: %w", rec.Index, err)
	}
	log.Info("resolved write from an earlier run", "index", rec.Index, "nonce", rec.Nonce, "hash", rec.TxHash, "success", update.Success)
	return &update, nil
}

// record replaces the checkpoint of update.Index. Writes are serialized so that
// backends sharing one key across units never race each other.
func (r *run) record(ctx context.Context, update *storage.UnitRecord) error {
	if r.checkpoints == nil {
		return nil
	}
	r.checkpointMutex.Lock()
	defer r.checkpointMutex.Unlock()
	update.UpdatedAt = storage.RlpTime(time.Now())
	if err := r.checkpoints.Put(ctx, update.Index, r.records[update.Index], update); err != nil {
		return err
	}
	r.records[update.Index] = update
	return nil
}

func (r *run) writeUnit(ctx context.Context, unit chunker.Unit, nonce uint64) error {
	result := &r.summary.Units[unit.Index]
	result.Nonce = nonce
	started := time.Now()
	receipt, err := r.submitUnit(ctx, unit, nonce, result)
	result.Duration = time.Since(started)
	unitDurationTimer.Update(result.Duration)
	if err != nil {
		unitErr := newUnitError(unit.Index, nonce, nil, err)
		result.Err = unitErr
		if !errors.Is(err, ErrSettlementFailed) {
			r.sequencer.Release(nonce, err)
		}
		unitsFailedCounter.Inc(1)
		log.Warn("unit failed", "image", unit.ImageID, "index", unit.Index, "nonce", nonce, "size", unit.Len(), "dispatched", result.Dispatched, "hash", result.TxHash, "duration", result.Duration, "err", err)
		return unitErr
	}
	result.Receipt = receipt
	unitsSucceededCounter.Inc(1)
	if receipt.LedgerChunkID != nil && receipt.LedgerChunkID.Cmp(new(big.Int).SetUint64(unit.Index)) != 0 {
		unitsMisplacedCounter.Inc(1)
		log.Warn("chunk stored at an unexpected position", "image", unit.ImageID, "index", unit.Index, "chunkId", receipt.LedgerChunkID, "hash", receipt.TxHash)
	}
	gasUsedCounter.Inc(int64(receipt.CostUnits))
	log.Info("unit settled", "image", unit.ImageID, "index", unit.Index, "nonce", nonce, "size", unit.Len(), "gasUsed", receipt.CostUnits, "feePaid", receipt.FeePaid, "block", receipt.BlockNumber, "chunkId", receipt.LedgerChunkID, "hash", receipt.TxHash, "duration", result.Duration)
	return nil
}

func (r *run) submitUnit(ctx context.Context, unit chunker.Unit, nonce uint64, result *UnitResult) (*Receipt, error) {
	calldata, err := r.store.PackStoreChunk(unit.ImageID, unit.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: packing chunk: %w", ErrConfigurationInvalid, err)
	}
	fee, err := r.fees.Quote(ctx)
	if err != nil {
		return nil, err
	}
	req := &WriteRequest{
		ImageID:   unit.ImageID,
		UnitIndex: unit.Index,
		From:      r.auth.From,
		To:        r.store.Address,
		Calldata:  calldata,
		Nonce:     nonce,
		Fee:       fee,
	}
	estimate, err := r.gas.Estimate(ctx, req)
	if err != nil {
		return nil, err
	}
	req = req.WithGasLimit(estimate.Limit)
	receipt, err := r.submitter.Submit(ctx, req, func(txHash common.Hash) error {
		err := r.record(ctx, newUnitRecord(unit, nonce, txHash))
		if err != nil {
			return fmt.Errorf("checkpointing unit %d: %w", unit.Index, err)
		}
		result.TxHash = txHash
		result.Dispatched = true
		return nil
	})
	r.recordOutcome(ctx, unit, nonce, result, receipt, err)
	return receipt, err
}

// recordOutcome checkpoints what is known about a dispatched write. A write that timed
// out is left as dispatched for a later run to resolve.
func (r *run) recordOutcome(ctx context.Context, unit chunker.Unit, nonce uint64, result *UnitResult, receipt *Receipt, err error) {
	if !result.Dispatched {
		return
	}
	update := newUnitRecord(unit, nonce, result.TxHash)
	switch {
	case err == nil:
		update.Settled = true
		update.Success = true
		update.GasUsed = receipt.CostUnits
		update.FeePaid = receipt.FeePaid
	case errors.Is(err, errWriteReverted):
		update.Settled = true
	case errors.Is(err, ErrDispatchFailed):
		update.Dispatched = false
	default:
		return
	}
	if err := r.record(ctx, update); err != nil {
		log.Error("failed to checkpoint unit outcome", "index", unit.Index, "hash", result.TxHash, "err", err)
	}
}

// newUnitRecord is the checkpoint of a write signed for unit and about to be sent.
func newUnitRecord(unit chunker.Unit, nonce uint64, txHash common.Hash) *storage.UnitRecord {
	return &storage.UnitRecord{
		Index:      unit.Index,
		Nonce:      nonce,
		Size:       uint64(unit.Len()),
		DataHash:   crypto.Keccak256Hash(unit.Data),
		TxHash:     txHash,
		Dispatched: true,
	}
}

func logSummary(s *Summary) {
	logFn, msg := log.Info, "chunk upload finished"
	if s.Aborted {
		logFn, msg = log.Error, "chunk upload aborted"
	}
	logFn(msg,
		"image", s.ImageID,
		"units", s.UnitsTotal,
		"attempted", s.UnitsAttempted,
		"succeeded", s.UnitsSucceeded,
		"resumed", s.UnitsResumed,
		"gasUsed", s.TotalCost,
		"feePaid", s.TotalFeeWei,
		"lastCompleted", s.LastCompletedIndex,
		"abortedAt", s.AbortedAt,
		"gaps", len(s.SequenceGaps),
		"duration", s.Duration,
		"err", s.Err,
	)
}
