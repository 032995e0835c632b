// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

package poster

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/offchainlabs/chunkposter/chunker"
)

// UnitWork writes one unit using the nonce claimed for it.
type UnitWork func(ctx context.Context, unit chunker.Unit, nonce uint64) error

type BatchResult struct {
	Admitted  int
	Batches   int
	Aborted   bool
	AbortedAt int64 // index of the first failed or unadmitted unit, -1 if not aborted
	Err       error
}

// BatchScheduler runs unit writes in windows of at most batchSize. Nonces are claimed
// in index order on the calling goroutine before each write starts. After a window is
// fully joined, any failure in it stops admission of further units.
type BatchScheduler struct {
	sequencer *Sequencer
	batchSize int
}

func NewBatchScheduler(sequencer *Sequencer, batchSize int) *BatchScheduler {
	return &BatchScheduler{sequencer: sequencer, batchSize: max(batchSize, 1)}
}

// Run admits units in order. Cancelling ctx stops admission at the next batch boundary;
// work already started keeps running on a context that is never cancelled.
func (s *BatchScheduler) Run(ctx context.Context, units []chunker.Unit, work UnitWork) *BatchResult {
	result := &BatchResult{AbortedAt: -1}
	workCtx := context.WithoutCancel(ctx)
	for start := 0; start < len(units); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			result.Aborted = true
			result.AbortedAt = int64(units[start].Index)
			result.Err = fmt.Errorf("stopped before unit %d: %w", units[start].Index, err)
			return result
		}
		batch := units[start:min(start+s.batchSize, len(units))]
		errs := make([]error, len(batch))
		var g errgroup.Group
		for i, unit := range batch {
			i, unit := i, unit
			nonce := s.sequencer.ClaimNext()
			g.Go(func() error {
				errs[i] = work(workCtx, unit, nonce)
				return errs[i]
			})
		}
		batchErr := g.Wait()
		result.Admitted += len(batch)
		result.Batches++
		if batchErr == nil {
			continue
		}
		result.Aborted = true
		for i, err := range errs {
			if err != nil {
				result.AbortedAt = int64(batch[i].Index)
				break
			}
		}
		result.Err = errors.Join(errs...)
		return result
	}
	return result
}
